package lld

import (
	"strings"
)

// Substituter expands discovery macros ({#NAME}) from a record into templates.
// Both methods are total: macros missing from the record stay literal.
type Substituter interface {
	// Text expands macros anywhere in s.
	Text(s string, rec Record) string
	// Key expands macros in the parameters of an item key, quoting
	// parameters whose substituted value would break the key syntax.
	Key(key string, rec Record) string
}

// DiscoveryMacros is the default Substituter.
type DiscoveryMacros struct{}

func (DiscoveryMacros) Text(s string, rec Record) string {
	return expandDiscoveryMacros(s, rec)
}

func (DiscoveryMacros) Key(key string, rec Record) string {
	open := strings.IndexByte(key, '[')
	if open < 0 || !strings.HasSuffix(key, "]") {
		return key
	}
	var b strings.Builder
	b.Grow(len(key))
	b.WriteString(key[:open+1])
	if !expandKeyParams(&b, key[open+1:len(key)-1], rec) {
		// Unbalanced quoting or nesting: fall back to plain substitution.
		return expandDiscoveryMacros(key, rec)
	}
	b.WriteByte(']')
	return b.String()
}

func isMacroNameChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '.'
}

// expandDiscoveryMacros replaces every {#NAME} found in rec.
func expandDiscoveryMacros(s string, rec Record) string {
	if len(rec) == 0 || !strings.Contains(s, "{#") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '{' && i+1 < len(s) && s[i+1] == '#' {
			j := i + 2
			for j < len(s) && isMacroNameChar(s[j]) {
				j++
			}
			if j < len(s) && s[j] == '}' && j > i+2 {
				if v, ok := rec[s[i:j+1]]; ok {
					b.WriteString(v)
					i = j + 1
					continue
				}
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// expandKeyParams writes the substituted parameter list params into b. It
// reports false when params is not a well-formed parameter list.
func expandKeyParams(b *strings.Builder, params string, rec Record) bool {
	i := 0
	for {
		// Leading spaces belong to the parameter separator.
		for i < len(params) && params[i] == ' ' {
			b.WriteByte(' ')
			i++
		}

		switch {
		case i < len(params) && params[i] == '"':
			end, ok := quotedEnd(params, i)
			if !ok {
				return false
			}
			b.WriteByte('"')
			v := expandDiscoveryMacros(params[i+1:end], rec)
			b.WriteString(escapeQuotes(v))
			b.WriteByte('"')
			i = end + 1
			for i < len(params) && params[i] == ' ' {
				b.WriteByte(' ')
				i++
			}
		case i < len(params) && params[i] == '[':
			end, ok := arrayEnd(params, i)
			if !ok {
				return false
			}
			b.WriteByte('[')
			if !expandKeyParams(b, params[i+1:end], rec) {
				return false
			}
			b.WriteByte(']')
			i = end + 1
			for i < len(params) && params[i] == ' ' {
				b.WriteByte(' ')
				i++
			}
		default:
			end := strings.IndexByte(params[i:], ',')
			if end < 0 {
				end = len(params)
			} else {
				end += i
			}
			raw := params[i:end]
			if strings.ContainsAny(raw, "[]\"") {
				return false
			}
			b.WriteString(quoteIfNeeded(expandDiscoveryMacros(raw, rec), raw))
			i = end
		}

		if i >= len(params) {
			return true
		}
		if params[i] != ',' {
			return false
		}
		b.WriteByte(',')
		i++
	}
}

// quotedEnd returns the index of the quote closing the parameter opened at start.
func quotedEnd(s string, start int) (int, bool) {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) && s[i+1] == '"' {
				i++
			}
		case '"':
			return i, true
		}
	}
	return 0, false
}

// arrayEnd returns the index of the bracket closing the array opened at start.
func arrayEnd(s string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '"':
			end, ok := quotedEnd(s, i)
			if !ok {
				return 0, false
			}
			i = end
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func escapeQuotes(s string) string {
	if !strings.Contains(s, `"`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '"' && (i == 0 || s[i-1] != '\\') {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// quoteIfNeeded quotes an unquoted parameter whose substituted value would
// otherwise be parsed differently. Parameters without macros are kept as is.
func quoteIfNeeded(v, raw string) string {
	if v == raw {
		return v
	}
	if v != "" && (strings.ContainsAny(v, ",]") || v[0] == '"' || v[0] == ' ') {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}

// expandUserMacros replaces {$NAME} with host macro values, falling back to
// global ones. Unknown macros stay literal.
func expandUserMacros(s string, hostMacros, globalMacros map[string]string) string {
	if !strings.Contains(s, "{$") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '{' && i+1 < len(s) && s[i+1] == '$' {
			if end := strings.IndexByte(s[i:], '}'); end > 0 {
				macro := s[i : i+end+1]
				if v, ok := hostMacros[macro]; ok {
					b.WriteString(v)
					i += end + 1
					continue
				}
				if v, ok := globalMacros[macro]; ok {
					b.WriteString(v)
					i += end + 1
					continue
				}
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
