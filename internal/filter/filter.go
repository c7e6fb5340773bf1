// Package filter compiles boolean expressions over metadata record fields,
// used to include or exclude items before download. Records failing the
// predicate are dropped without counting as failures.
//
// The language supports Python-style chained comparisons
// ("10 <= chapter < 20"), equality on numbers and strings, && / || / !,
// and parentheses.
package filter

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"

	"github.com/Guiraud/gallery-dl/internal/extractor"
)

// Predicate evaluates a compiled expression against one record. A missing
// field makes the enclosing comparison false.
type Predicate func(rec *extractor.Record) bool

// Compile parses expr into a predicate. A malformed expression is a
// configuration error, surfaced at startup before any job runs.
func Compile(expr string) (Predicate, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, eris.Errorf("filter: unexpected %q in %q", p.peek().text, expr)
	}
	return node.eval, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(expr string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(expr[i+1:], c)
			if end < 0 {
				return nil, eris.Errorf("filter: unterminated string in %q", expr)
			}
			toks = append(toks, token{tokString, expr[i+1 : i+1+end]})
			i += end + 2
		case strings.ContainsRune("<>=!&|", rune(c)):
			op := expr[i : i+1]
			if i+1 < len(expr) && (expr[i+1] == '=' || expr[i+1] == c) {
				op = expr[i : i+2]
			}
			switch op {
			case "<", "<=", ">", ">=", "==", "!=", "&&", "||", "!":
				toks = append(toks, token{tokOp, op})
				i += len(op)
			default:
				return nil, eris.Errorf("filter: invalid operator %q in %q", op, expr)
			}
		case c >= '0' && c <= '9' || c == '-' && i+1 < len(expr) && expr[i+1] >= '0' && expr[i+1] <= '9':
			j := i + 1
			for j < len(expr) && (expr[j] >= '0' && expr[j] <= '9' || expr[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, expr[i:j]})
			i = j
		case unicode.IsLetter(rune(c)) || c == '_':
			j := i + 1
			for j < len(expr) && (unicode.IsLetter(rune(expr[j])) || unicode.IsDigit(rune(expr[j])) || expr[j] == '_' || expr[j] == '.') {
				j++
			}
			toks = append(toks, token{tokIdent, expr[i:j]})
			i = j
		default:
			return nil, eris.Errorf("filter: unexpected character %q in %q", string(c), expr)
		}
	}
	if len(toks) == 0 {
		return nil, eris.New("filter: empty expression")
	}
	return toks, nil
}

type node interface {
	eval(rec *extractor.Record) bool
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) eof() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token {
	if p.eof() {
		return token{}
	}
	return p.toks[p.pos]
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	if p.eof() || p.toks[p.pos].kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if p.toks[p.pos].text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

type boolNode struct {
	op          string
	left, right node
}

func (n *boolNode) eval(rec *extractor.Record) bool {
	if n.op == "&&" {
		return n.left.eval(rec) && n.right.eval(rec)
	}
	return n.left.eval(rec) || n.right.eval(rec)
}

type notNode struct{ inner node }

func (n *notNode) eval(rec *extractor.Record) bool { return !n.inner.eval(rec) }

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("||"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &boolNode{op: "||", left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&&"); !ok {
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &boolNode{op: "&&", left: left, right: right}
	}
}

func (p *parser) parseNot() (node, error) {
	if _, ok := p.acceptOp("!"); ok {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if !p.eof() && p.peek().kind == tokLParen {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.eof() || p.peek().kind != tokRParen {
			return nil, eris.New("filter: missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	}
	return p.parseComparison()
}

// comparisonNode holds a chain: a <= b < c means (a<=b) && (b<c).
type comparisonNode struct {
	operands []operand
	ops      []string
}

func (p *parser) parseComparison() (node, error) {
	first, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	cmp := &comparisonNode{operands: []operand{first}}
	for {
		op, ok := p.acceptOp("<", "<=", ">", ">=", "==", "!=")
		if !ok {
			break
		}
		next, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		cmp.ops = append(cmp.ops, op)
		cmp.operands = append(cmp.operands, next)
	}
	if len(cmp.ops) == 0 {
		// A bare operand is truthy: non-zero number, non-empty string,
		// present field.
		return &truthyNode{op: first}, nil
	}
	return cmp, nil
}

type truthyNode struct{ op operand }

func (n *truthyNode) eval(rec *extractor.Record) bool {
	v, ok := n.op.value(rec)
	if !ok || v == nil {
		return false
	}
	if f, err := cast.ToFloat64E(v); err == nil {
		return f != 0
	}
	return cast.ToString(v) != ""
}

func (n *comparisonNode) eval(rec *extractor.Record) bool {
	for i, op := range n.ops {
		lv, lok := n.operands[i].value(rec)
		rv, rok := n.operands[i+1].value(rec)
		if !lok || !rok {
			return false
		}
		if !compare(op, lv, rv) {
			return false
		}
	}
	return true
}

func compare(op string, lv, rv any) bool {
	lf, lerr := cast.ToFloat64E(lv)
	rf, rerr := cast.ToFloat64E(rv)
	if lerr == nil && rerr == nil {
		switch op {
		case "<":
			return lf < rf
		case "<=":
			return lf <= rf
		case ">":
			return lf > rf
		case ">=":
			return lf >= rf
		case "==":
			return lf == rf
		case "!=":
			return lf != rf
		}
	}
	ls, rs := cast.ToString(lv), cast.ToString(rv)
	switch op {
	case "<":
		return ls < rs
	case "<=":
		return ls <= rs
	case ">":
		return ls > rs
	case ">=":
		return ls >= rs
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	}
	return false
}

// operand is a literal value or a record field reference.
type operand struct {
	lit   any
	field string
}

func (o operand) value(rec *extractor.Record) (any, bool) {
	if o.field != "" {
		return rec.Get(o.field)
	}
	return o.lit, true
}

func (p *parser) parseOperand() (operand, error) {
	if p.eof() {
		return operand{}, eris.New("filter: expected operand")
	}
	tok := p.toks[p.pos]
	switch tok.kind {
	case tokNumber:
		p.pos++
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return operand{}, eris.Wrapf(err, "filter: bad number %q", tok.text)
		}
		return operand{lit: f}, nil
	case tokString:
		p.pos++
		return operand{lit: tok.text}, nil
	case tokIdent:
		p.pos++
		switch tok.text {
		case "true":
			return operand{lit: true}, nil
		case "false":
			return operand{lit: false}, nil
		}
		return operand{field: tok.text}, nil
	default:
		return operand{}, eris.Errorf("filter: expected operand, found %q", tok.text)
	}
}
