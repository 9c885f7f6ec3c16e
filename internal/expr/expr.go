// Package expr implements the small boolean condition DSL shared by policy
// rules, stage gating expressions, and approval conditions.
//
// The grammar is deliberately tiny so the evaluated surface stays auditable:
//
//	expr    := or
//	or      := and ( ("||" | "or") and )*
//	and     := unary ( ("&&" | "and") unary )*
//	unary   := ("!" | "not") unary | primary
//	primary := "(" expr ")" | operand [ cmpop operand ]
//	operand := path | literal
//
// Comparison operators: == != > >= < <=. Literals: single- or double-quoted
// strings, decimal numbers, true, false, null. Paths are dotted identifiers
// resolved against the run context; a missing path is "undefined" and makes
// any comparison false, with one exception: `path != null` evaluates true
// for an undefined path. A bare operand is evaluated for truthiness.
//
// This is a hand-written precedence-climbing parser — not an embedded
// general-purpose expression engine — per the design requirement that every
// gate in the system remain trivially reviewable.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/w3rt/w3rt/internal/runctx"
)

// Node is a parsed expression.
type Node interface {
	// String renders the node in canonical source form, used in error
	// messages and audit reasons.
	String() string
}

// Operand is a leaf: either a dotted context path or a literal value.
type Operand struct {
	// IsPath distinguishes a context path from a literal.
	IsPath bool

	// Path is the dotted path when IsPath is true.
	Path string

	// Literal holds the parsed literal value (nil, bool, int64, float64,
	// string) when IsPath is false.
	Literal any
}

// Cmp is a binary comparison between two operands.
type Cmp struct {
	Left  Operand
	Op    string
	Right Operand
}

// Truthy evaluates a bare operand for truthiness.
type Truthy struct {
	Operand Operand
}

// Not negates its operand expression.
type Not struct {
	X Node
}

// And is a short-circuit conjunction.
type And struct {
	X, Y Node
}

// Or is a short-circuit disjunction.
type Or struct {
	X, Y Node
}

func (o Operand) String() string {
	if o.IsPath {
		return o.Path
	}
	switch t := o.Literal.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (c Cmp) String() string    { return c.Left.String() + " " + c.Op + " " + c.Right.String() }
func (t Truthy) String() string { return t.Operand.String() }
func (n Not) String() string    { return "!(" + n.X.String() + ")" }
func (a And) String() string    { return "(" + a.X.String() + " && " + a.Y.String() + ")" }
func (o Or) String() string     { return "(" + o.X.String() + " || " + o.Y.String() + ")" }

// ParseError describes a syntax error with its byte position in the source.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("expr: parse error at offset %d: %s", e.Pos, e.Msg)
}

// Parse compiles src into an expression tree.
func Parse(src string) (Node, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, &ParseError{Pos: p.tok.pos, Msg: fmt.Sprintf("unexpected %q after expression", p.tok.text)}
	}
	return node, nil
}

// Eval evaluates a parsed expression against the run context.
func Eval(n Node, ctx *runctx.Map) bool {
	switch t := n.(type) {
	case Or:
		return Eval(t.X, ctx) || Eval(t.Y, ctx)
	case And:
		return Eval(t.X, ctx) && Eval(t.Y, ctx)
	case Not:
		return !Eval(t.X, ctx)
	case Cmp:
		lv, lok := resolve(t.Left, ctx)
		rv, rok := resolve(t.Right, ctx)
		return compare(lv, lok, t.Op, rv, rok)
	case Truthy:
		v, ok := resolve(t.Operand, ctx)
		return ok && isTruthy(v)
	default:
		return false
	}
}

// EvalString parses and evaluates src in one call. An empty source is
// treated as true (no condition).
func EvalString(src string, ctx *runctx.Map) (bool, error) {
	if strings.TrimSpace(src) == "" {
		return true, nil
	}
	node, err := Parse(src)
	if err != nil {
		return false, err
	}
	return Eval(node, ctx), nil
}

// resolve produces an operand's value and whether it is defined.
func resolve(o Operand, ctx *runctx.Map) (any, bool) {
	if !o.IsPath {
		return o.Literal, true
	}
	if ctx == nil {
		return nil, false
	}
	return ctx.Get(o.Path)
}

// compare implements the DSL's comparison semantics. Undefined operands make
// every comparison false, except inequality against a defined null, which is
// true (an absent value is indeed "not null"... and also not anything else).
func compare(a any, aok bool, op string, b any, bok bool) bool {
	if !aok {
		return op == "!=" && bok && b == nil
	}
	if !bok {
		return op == "!=" && a == nil
	}

	switch op {
	case "==":
		return valuesEqual(a, b)
	case "!=":
		return !valuesEqual(a, b)
	}

	// Ordering operators.
	if af, aIsNum := toFloat(a); aIsNum {
		if bf, bIsNum := toFloat(b); bIsNum {
			switch op {
			case ">":
				return af > bf
			case ">=":
				return af >= bf
			case "<":
				return af < bf
			case "<=":
				return af <= bf
			}
		}
		return false
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			switch op {
			case ">":
				return as > bs
			case ">=":
				return as >= bs
			case "<":
				return as < bs
			case "<=":
				return as <= bs
			}
		}
	}
	return false
}

// valuesEqual compares two defined values. Numbers compare numerically
// across int64/float64; all other cross-type comparisons are unequal.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch at := a.(type) {
	case string:
		bs, ok := b.(string)
		return ok && at == bs
	case bool:
		bb, ok := b.(bool)
		return ok && at == bb
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

// isTruthy reports the truthiness of a defined value: false for nil, false,
// zero, and the empty string; composites are truthy when non-empty.
func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = And{X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.tok.kind == tokNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{X: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	if p.tok.kind == tokLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, &ParseError{Pos: p.tok.pos, Msg: "expected closing parenthesis"}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.tok.kind == tokCmpOp {
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return Cmp{Left: left, Op: op, Right: right}, nil
	}

	return Truthy{Operand: left}, nil
}

func (p *parser) parseOperand() (Operand, error) {
	tok := p.tok
	switch tok.kind {
	case tokPath:
		if err := p.advance(); err != nil {
			return Operand{}, err
		}
		return Operand{IsPath: true, Path: tok.text}, nil
	case tokString:
		if err := p.advance(); err != nil {
			return Operand{}, err
		}
		return Operand{Literal: tok.text}, nil
	case tokNumber:
		if err := p.advance(); err != nil {
			return Operand{}, err
		}
		if !strings.ContainsAny(tok.text, ".eE") {
			if i, err := strconv.ParseInt(tok.text, 10, 64); err == nil {
				return Operand{Literal: i}, nil
			}
		}
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return Operand{}, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("invalid number %q", tok.text)}
		}
		return Operand{Literal: f}, nil
	case tokTrue:
		if err := p.advance(); err != nil {
			return Operand{}, err
		}
		return Operand{Literal: true}, nil
	case tokFalse:
		if err := p.advance(); err != nil {
			return Operand{}, err
		}
		return Operand{Literal: false}, nil
	case tokNull:
		if err := p.advance(); err != nil {
			return Operand{}, err
		}
		return Operand{Literal: nil}, nil
	case tokEOF:
		return Operand{}, &ParseError{Pos: tok.pos, Msg: "unexpected end of expression"}
	default:
		return Operand{}, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
	}
}

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokPath
	tokString
	tokNumber
	tokTrue
	tokFalse
	tokNull
	tokCmpOp
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: src}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(rune(l.src[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch c {
	case '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case '&':
		if l.peekAt(1) == '&' {
			l.pos += 2
			return token{kind: tokAnd, text: "&&", pos: start}, nil
		}
		return token{}, &ParseError{Pos: start, Msg: "expected \"&&\""}
	case '|':
		if l.peekAt(1) == '|' {
			l.pos += 2
			return token{kind: tokOr, text: "||", pos: start}, nil
		}
		return token{}, &ParseError{Pos: start, Msg: "expected \"||\""}
	case '!':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokCmpOp, text: "!=", pos: start}, nil
		}
		l.pos++
		return token{kind: tokNot, text: "!", pos: start}, nil
	case '=':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokCmpOp, text: "==", pos: start}, nil
		}
		return token{}, &ParseError{Pos: start, Msg: "expected \"==\""}
	case '>':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokCmpOp, text: ">=", pos: start}, nil
		}
		l.pos++
		return token{kind: tokCmpOp, text: ">", pos: start}, nil
	case '<':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokCmpOp, text: "<=", pos: start}, nil
		}
		l.pos++
		return token{kind: tokCmpOp, text: "<", pos: start}, nil
	case '\'', '"':
		return l.lexString(c)
	}

	if c == '-' || isDigit(c) {
		return l.lexNumber()
	}
	if isIdentStart(c) {
		return l.lexPathOrKeyword()
	}

	return token{}, &ParseError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", string(c))}
}

func (l *lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++ // consume opening quote
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\\' && l.pos+1 < len(l.src) {
			next := l.src[l.pos+1]
			if next == quote || next == '\\' {
				b.WriteByte(next)
				l.pos += 2
				continue
			}
		}
		if c == quote {
			l.pos++
			return token{kind: tokString, text: b.String(), pos: start}, nil
		}
		b.WriteByte(c)
		l.pos++
	}
	return token{}, &ParseError{Pos: start, Msg: "unterminated string literal"}
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
		if l.pos >= len(l.src) || !isDigit(l.src[l.pos]) {
			return token{}, &ParseError{Pos: start, Msg: "expected digits after \"-\""}
		}
	}
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		l.pos++
	}
	return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}, nil
}

func (l *lexer) lexPathOrKeyword() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && (isIdentPart(l.src[l.pos]) || l.src[l.pos] == '.') {
		l.pos++
	}
	text := l.src[start:l.pos]
	switch text {
	case "and":
		return token{kind: tokAnd, text: text, pos: start}, nil
	case "or":
		return token{kind: tokOr, text: text, pos: start}, nil
	case "not":
		return token{kind: tokNot, text: text, pos: start}, nil
	case "true":
		return token{kind: tokTrue, text: text, pos: start}, nil
	case "false":
		return token{kind: tokFalse, text: text, pos: start}, nil
	case "null":
		return token{kind: tokNull, text: text, pos: start}, nil
	}
	return token{kind: tokPath, text: text, pos: start}, nil
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || unicode.IsLetter(rune(c)) }
func isIdentPart(c byte) bool  { return c == '_' || unicode.IsLetter(rune(c)) || isDigit(c) }
