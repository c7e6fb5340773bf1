// Package format compiles filename templates and evaluates them against
// metadata records. Formatting is pure and deterministic: the same
// (template, record) pair always yields the same relative path.
package format

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"

	"github.com/Guiraud/gallery-dl/internal/extractor"
)

// FieldError reports a template reference no fallback could satisfy. It
// fails only the record being formatted; the job continues.
type FieldError struct {
	Expr string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("format: no value for {%s}", e.Expr)
}

// Template is a compiled filename template.
type Template struct {
	source   string
	segments []segment
}

// segment is either literal text or a field reference with fallbacks.
type segment struct {
	literal string
	chain   []alternative
	expr    string
}

// alternative is one arm of a fallback chain: a dotted field path or a
// quoted literal default.
type alternative struct {
	field   string
	literal string
	isLit   bool
}

// Compile parses a template. References use `{a.b | c | "default"}`: dotted
// paths descend into nested fields, alternatives are tried left to right,
// and a trailing quoted literal is an unconditional default.
func Compile(source string) (*Template, error) {
	t := &Template{source: source}
	rest := source
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			t.segments = append(t.segments, segment{literal: rest})
			break
		}
		if open > 0 {
			t.segments = append(t.segments, segment{literal: rest[:open]})
		}
		closeIdx := strings.IndexByte(rest[open:], '}')
		if closeIdx < 0 {
			return nil, eris.Errorf("format: unclosed reference in %q", source)
		}
		expr := rest[open+1 : open+closeIdx]
		seg, err := compileExpr(expr)
		if err != nil {
			return nil, err
		}
		t.segments = append(t.segments, seg)
		rest = rest[open+closeIdx+1:]
	}
	return t, nil
}

func compileExpr(expr string) (segment, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return segment{}, eris.New("format: empty reference")
	}
	seg := segment{expr: trimmed}
	for _, arm := range strings.Split(trimmed, "|") {
		arm = strings.TrimSpace(arm)
		if arm == "" {
			return segment{}, eris.Errorf("format: empty alternative in {%s}", trimmed)
		}
		if strings.HasPrefix(arm, `"`) {
			if len(arm) < 2 || !strings.HasSuffix(arm, `"`) {
				return segment{}, eris.Errorf("format: unterminated literal in {%s}", trimmed)
			}
			seg.chain = append(seg.chain, alternative{literal: arm[1 : len(arm)-1], isLit: true})
			continue
		}
		seg.chain = append(seg.chain, alternative{field: arm})
	}
	return seg, nil
}

// Source returns the template text the Template was compiled from.
func (t *Template) Source() string { return t.source }

// Format evaluates the template against a record. A reference whose whole
// fallback chain is unresolved yields a FieldError.
func (t *Template) Format(rec *extractor.Record) (string, error) {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.chain == nil {
			b.WriteString(seg.literal)
			continue
		}
		val, ok := evalChain(seg.chain, rec)
		if !ok {
			return "", &FieldError{Expr: seg.expr}
		}
		b.WriteString(SanitizeComponent(val))
	}
	return b.String(), nil
}

func evalChain(chain []alternative, rec *extractor.Record) (string, bool) {
	for _, alt := range chain {
		if alt.isLit {
			return alt.literal, true
		}
		if v, ok := rec.Get(alt.field); ok && v != nil {
			return cast.ToString(v), true
		}
	}
	return "", false
}
