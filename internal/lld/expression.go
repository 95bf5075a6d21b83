package lld

import (
	"sort"
	"strconv"
	"strings"
)

// FunctionRef is a trigger function resolved to the item it reads.
type FunctionRef struct {
	FunctionID int64
	Host       string
	Key        string
	Function   string
	Parameter  string
}

func (f FunctionRef) String() string {
	return f.Host + ":" + f.Key + "." + f.Function + "(" + f.Parameter + ")"
}

// FunctionTable is a set of function references sorted by id. Build it with
// NewFunctionTable; lookups binary-search the sorted slice.
type FunctionTable struct {
	refs []FunctionRef
}

// NewFunctionTable copies and sorts refs by function id.
func NewFunctionTable(refs []FunctionRef) FunctionTable {
	sorted := make([]FunctionRef, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FunctionID < sorted[j].FunctionID })
	return FunctionTable{refs: sorted}
}

func (t FunctionTable) Lookup(id int64) (FunctionRef, bool) {
	i := sort.Search(len(t.refs), func(i int) bool { return t.refs[i].FunctionID >= id })
	if i < len(t.refs) && t.refs[i].FunctionID == id {
		return t.refs[i], true
	}
	return FunctionRef{}, false
}

func (t FunctionTable) Len() int { return len(t.refs) }

// ExpandExpression replaces every {functionid} token of a short trigger
// expression with {host:key.function(parameter)}. Tokens that are not a
// function id, or whose id is not in the table, are kept verbatim.
func ExpandExpression(expr string, functions FunctionTable) string {
	return rewriteFunctionTokens(expr, func(id int64) (string, bool) {
		f, ok := functions.Lookup(id)
		if !ok {
			return "", false
		}
		return "{" + f.String() + "}", true
	})
}

// remapFunctionIDs rewrites {old} tokens to {new} using ids.
func remapFunctionIDs(expr string, ids map[int64]int64) string {
	return rewriteFunctionTokens(expr, func(id int64) (string, bool) {
		n, ok := ids[id]
		if !ok {
			return "", false
		}
		return "{" + strconv.FormatInt(n, 10) + "}", true
	})
}

// functionIDs returns the distinct function ids of expr in order of appearance.
func functionIDs(expr string) []int64 {
	var ids []int64
	seen := make(map[int64]struct{})
	rewriteFunctionTokens(expr, func(id int64) (string, bool) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return "", false
	})
	return ids
}

// rewriteFunctionTokens scans expr for {digits} tokens and replaces each with
// the text returned by fn; tokens fn declines are copied unchanged.
func rewriteFunctionTokens(expr string, fn func(id int64) (string, bool)) string {
	var b strings.Builder
	b.Grow(len(expr))
	for i := 0; i < len(expr); {
		if expr[i] != '{' {
			b.WriteByte(expr[i])
			i++
			continue
		}
		end := strings.IndexByte(expr[i+1:], '}')
		if end < 0 {
			b.WriteString(expr[i:])
			break
		}
		end += i + 1
		id, ok := parseFunctionID(expr[i+1 : end])
		if !ok {
			// Not a function token; a later brace may still open one.
			b.WriteByte('{')
			i++
			continue
		}
		if repl, ok := fn(id); ok {
			b.WriteString(repl)
		} else {
			b.WriteString(expr[i : end+1])
		}
		i = end + 1
	}
	return b.String()
}

func parseFunctionID(token string) (int64, bool) {
	if token == "" {
		return 0, false
	}
	for i := 0; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
