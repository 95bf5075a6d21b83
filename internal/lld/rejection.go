package lld

import (
	"strings"

	"lldsync/core-go/internal/sqlcgen"
)

// Rejection is a candidate that could not be created or updated. It never
// aborts a run; rejections are collected and shown on the discovery rule.
type Rejection struct {
	Kind   sqlcgen.EntityKind
	Update bool
	Name   string
	Reason string
}

func (r *Rejection) Error() string {
	op := "create"
	if r.Update {
		op = "update"
	}
	return "Cannot " + op + " " + string(r.Kind) + " [" + r.Name + "]: " + r.Reason
}

func alreadyExists(kind sqlcgen.EntityKind, update bool, name string) *Rejection {
	return &Rejection{Kind: kind, Update: update, Name: name, Reason: string(kind) + " already exists"}
}

func missingItem(kind sqlcgen.EntityKind, update bool, name, key string) *Rejection {
	return &Rejection{Kind: kind, Update: update, Name: name, Reason: "item [" + key + "] does not exist"}
}

// renderRejections formats rejections one per line, as stored in the rule's
// error column.
func renderRejections(rejections []*Rejection) string {
	var b strings.Builder
	for _, r := range rejections {
		b.WriteString(r.Error())
		b.WriteByte('\n')
	}
	return b.String()
}
