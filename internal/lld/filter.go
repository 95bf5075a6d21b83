package lld

import (
	"strings"

	"github.com/grafana/regexp"

	"lldsync/core-go/internal/sqlcgen"
)

// Global regular expression types.
const (
	ExpressionIncluded    int16 = 0
	ExpressionAnyIncluded int16 = 1
	ExpressionNotIncluded int16 = 2
	ExpressionTrue        int16 = 3
	ExpressionFalse       int16 = 4
)

// Filter selects the records of a discovery payload that take part in
// reconciliation: the value of Macro must match Pattern.
type Filter struct {
	Macro   string
	Pattern string
}

// ParseFilter splits a rule filter stored as "{#MACRO}:pattern".
func ParseFilter(s string) Filter {
	macro, pattern, ok := strings.Cut(s, ":")
	if !ok {
		return Filter{}
	}
	return Filter{Macro: strings.TrimSpace(macro), Pattern: pattern}
}

// GlobalRegexpName returns the referenced global regular expression name when
// the pattern has the form "@name".
func (f Filter) GlobalRegexpName() (string, bool) {
	if strings.HasPrefix(f.Pattern, "@") {
		return f.Pattern[1:], true
	}
	return "", false
}

// Accepts reports whether rec passes the filter. An empty filter accepts
// everything; a record without the filter macro is rejected.
func (f Filter) Accepts(rec Record, regexps *RegexpSet) bool {
	if f.Macro == "" || f.Pattern == "" {
		return true
	}
	value, ok := rec.Value(f.Macro)
	if !ok {
		return false
	}
	return regexps.Match(value, f.Pattern, true)
}

// RegexpSet holds global regular expressions by name and caches compiled
// patterns. The zero value and a nil set are ready to use.
type RegexpSet struct {
	named    map[string][]sqlcgen.RegexpExpression
	compiled map[string]*regexp.Regexp
}

// NewRegexpSet groups expressions by their regular expression name.
func NewRegexpSet(expressions []sqlcgen.RegexpExpression) *RegexpSet {
	s := &RegexpSet{named: make(map[string][]sqlcgen.RegexpExpression)}
	for _, e := range expressions {
		s.named[e.Name] = append(s.named[e.Name], e)
	}
	return s
}

// Match evaluates pattern against value. A pattern of the form "@name" is
// looked up case-sensitively among the global expressions and matches when
// every expression of that name matches. Patterns that fail to compile and
// unknown names never match.
func (s *RegexpSet) Match(value, pattern string, caseSensitive bool) bool {
	if name, ok := strings.CutPrefix(pattern, "@"); ok {
		if s == nil {
			return false
		}
		exprs := s.named[name]
		if len(exprs) == 0 {
			return false
		}
		for _, e := range exprs {
			if !s.matchExpression(value, e) {
				return false
			}
		}
		return true
	}
	return s.matchRegexp(value, pattern, caseSensitive)
}

func (s *RegexpSet) matchExpression(value string, e sqlcgen.RegexpExpression) bool {
	switch e.ExpressionType {
	case ExpressionIncluded:
		return contains(value, e.Expression, e.CaseSensitive)
	case ExpressionAnyIncluded:
		delim := e.Delimiter
		if delim == "" {
			delim = ","
		}
		for _, part := range strings.Split(e.Expression, delim) {
			if part != "" && contains(value, part, e.CaseSensitive) {
				return true
			}
		}
		return false
	case ExpressionNotIncluded:
		return !contains(value, e.Expression, e.CaseSensitive)
	case ExpressionTrue:
		return s.matchRegexp(value, e.Expression, e.CaseSensitive)
	case ExpressionFalse:
		re := s.compile(e.Expression, e.CaseSensitive)
		return re != nil && !re.MatchString(value)
	default:
		return false
	}
}

func (s *RegexpSet) matchRegexp(value, pattern string, caseSensitive bool) bool {
	re := s.compile(pattern, caseSensitive)
	return re != nil && re.MatchString(value)
}

func (s *RegexpSet) compile(pattern string, caseSensitive bool) *regexp.Regexp {
	src := pattern
	if !caseSensitive {
		src = "(?i)" + pattern
	}
	if s != nil {
		if re, ok := s.compiled[src]; ok {
			return re
		}
	}
	re, err := regexp.Compile(src)
	if err != nil {
		re = nil
	}
	if s != nil {
		if s.compiled == nil {
			s.compiled = make(map[string]*regexp.Regexp)
		}
		s.compiled[src] = re
	}
	return re
}

func contains(value, sub string, caseSensitive bool) bool {
	if caseSensitive {
		return strings.Contains(value, sub)
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(sub))
}
