package options

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Lookup is a read view over a merged tree scoped to one
// (category, subcategory) pair. Resolution order for any key:
//
//	explicit override → extractor.<cat>.<sub>.key → extractor.<cat>.key →
//	extractor.key → caller-supplied default
//
// First match wins. Lookups are cheap values; construct one per job.
type Lookup struct {
	tree        *Tree
	category    string
	subcategory string
	overrides   map[string]any
}

// NewLookup builds a lookup scoped to category/subcategory. overrides holds
// the highest-precedence entries (CLI -o key=value); it may be nil.
func (t *Tree) NewLookup(category, subcategory string, overrides map[string]any) Lookup {
	return Lookup{
		tree:        t,
		category:    category,
		subcategory: subcategory,
		overrides:   overrides,
	}
}

// Get resolves key through the precedence chain. The second result is false
// when no layer defines the key.
func (l Lookup) Get(key string) (any, bool) {
	if l.overrides != nil {
		if v, ok := l.overrides[key]; ok {
			return v, true
		}
	}
	if l.subcategory != "" {
		if v, ok := l.tree.get("extractor", l.category, l.subcategory, key); ok {
			return v, true
		}
	}
	if l.category != "" {
		if v, ok := l.tree.get("extractor", l.category, key); ok {
			return v, true
		}
	}
	if v, ok := l.tree.get("extractor", key); ok {
		return v, true
	}
	return nil, false
}

// String resolves key as a string, applying environment interpolation at
// read time so the merged tree stays reusable across scopes.
func (l Lookup) String(key, def string) string {
	v, ok := l.Get(key)
	if !ok {
		return Interpolate(def)
	}
	return Interpolate(cast.ToString(v))
}

// Int resolves key as an int.
func (l Lookup) Int(key string, def int) int {
	v, ok := l.Get(key)
	if !ok {
		return def
	}
	return cast.ToInt(v)
}

// Bool resolves key as a bool.
func (l Lookup) Bool(key string, def bool) bool {
	v, ok := l.Get(key)
	if !ok {
		return def
	}
	return cast.ToBool(v)
}

// Float resolves key as a float64.
func (l Lookup) Float(key string, def float64) float64 {
	v, ok := l.Get(key)
	if !ok {
		return def
	}
	return cast.ToFloat64(v)
}

// Duration resolves key as a duration ("30s", integer seconds).
func (l Lookup) Duration(key string, def time.Duration) time.Duration {
	v, ok := l.Get(key)
	if !ok {
		return def
	}
	if s, err := cast.ToStringE(v); err == nil {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	if n, err := cast.ToInt64E(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

// StringSlice resolves key as a list of strings. A scalar value is wrapped
// in a one-element slice.
func (l Lookup) StringSlice(key string) []string {
	v, ok := l.Get(key)
	if !ok {
		return nil
	}
	switch v.(type) {
	case []any, []string:
		return cast.ToStringSlice(v)
	default:
		return []string{cast.ToString(v)}
	}
}

// StringMap resolves key as a string-keyed mapping, or nil.
func (l Lookup) StringMap(key string) map[string]any {
	v, ok := l.Get(key)
	if !ok {
		return nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil
	}
	return m
}

// Category returns the lookup's category scope.
func (l Lookup) Category() string { return l.category }

// Subcategory returns the lookup's subcategory scope.
func (l Lookup) Subcategory() string { return l.subcategory }

// Interpolate expands home-directory and environment tokens in s: a leading
// "~" plus "${VAR}" and "$VAR" references. Pure string substitution; the
// underlying tree is never modified.
func Interpolate(s string) string {
	if s == "" {
		return s
	}
	if s == "~" || strings.HasPrefix(s, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			s = home + s[1:]
		}
	}
	if strings.ContainsRune(s, '$') {
		s = expandEnv(s)
	}
	return s
}

// expandEnv substitutes ${VAR} and $VAR references from the environment.
// Unset variables keep their original spelling, braced or bare.
func expandEnv(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '$' || i+1 >= len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}
		if s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				b.WriteString(s[i:])
				break
			}
			name := s[i+2 : i+2+end]
			if v, ok := os.LookupEnv(name); ok {
				b.WriteString(v)
			} else {
				b.WriteString(s[i : i+3+end])
			}
			i += end + 3
			continue
		}
		j := i + 1
		for j < len(s) && isNameByte(s[j]) {
			j++
		}
		if j == i+1 {
			b.WriteByte('$')
			i++
			continue
		}
		if v, ok := os.LookupEnv(s[i+1 : j]); ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i:j])
		}
		i = j
	}
	return b.String()
}

func isNameByte(c byte) bool {
	return c == '_' ||
		c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9'
}
