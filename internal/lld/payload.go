package lld

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidPayload marks a discovery value that cannot be reconciled at all.
var ErrInvalidPayload = errors.New("invalid discovery payload")

// payloadError carries the operator-facing message stored on the rule.
type payloadError string

func (e payloadError) Error() string { return string(e) }

func (e payloadError) Is(target error) bool { return target == ErrInvalidPayload }

// Record is one discovered object: macro name to value, e.g. {#IFNAME} -> eth0.
type Record map[string]string

// Value returns the value of macro in the record.
func (r Record) Value(macro string) (string, bool) {
	v, ok := r[macro]
	return v, ok
}

// ParsePayload parses {"data":[{...},...]} into records, preserving order.
// Non-object array elements are skipped; scalar values are taken as their
// JSON text.
func ParsePayload(payload string) ([]Record, error) {
	if !gjson.Valid(payload) {
		return nil, payloadError("Value should be a JSON object.")
	}
	root := gjson.Parse(payload)
	if !root.IsObject() {
		return nil, payloadError("Value should be a JSON object.")
	}

	var data gjson.Result
	root.ForEach(func(k, v gjson.Result) bool {
		if k.String() == "data" {
			data = v
			return false
		}
		return true
	})
	if !data.IsArray() {
		return nil, payloadError(`Cannot find the "data" array in the received JSON object.`)
	}

	records := make([]Record, 0, len(data.Array()))
	data.ForEach(func(_, row gjson.Result) bool {
		if !row.IsObject() {
			return true
		}
		rec := Record{}
		row.ForEach(func(k, v gjson.Result) bool {
			if v.Type == gjson.String {
				rec[k.String()] = v.Str
			} else {
				rec[k.String()] = v.Raw
			}
			return true
		})
		records = append(records, rec)
		return true
	})
	return records, nil
}
