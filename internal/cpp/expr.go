package cpp

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrExpression indicates a conditional expression that could not be parsed.
	ErrExpression = errors.New("invalid preprocessor expression")

	// ErrNotInteger indicates a token sequence that does not evaluate to an integer.
	ErrNotInteger = errors.New("expression is not an integer constant")
)

// exprParser evaluates integer constant expressions by precedence climbing.
// Identifiers left after macro expansion evaluate to 0 and are reported
// through unknown.
type exprParser struct {
	toks    []Token
	pos     int
	unknown []string
}

func newExprParser(toks []Token) *exprParser {
	var clean []Token
	for _, t := range toks {
		if !t.IsSpace() {
			clean = append(clean, t)
		}
	}
	return &exprParser{toks: clean}
}

func (p *exprParser) eval() (int64, error) {
	if len(p.toks) == 0 {
		return 0, errors.Wrap(ErrExpression, "empty expression")
	}
	v, err := p.ternary()
	if err != nil {
		return 0, err
	}
	if p.pos < len(p.toks) {
		return 0, errors.Wrapf(ErrExpression, "unexpected %q", p.toks[p.pos].Text)
	}
	return v, nil
}

func (p *exprParser) peek() string {
	if p.pos < len(p.toks) && p.toks[p.pos].Kind == Punct {
		return p.toks[p.pos].Text
	}
	return ""
}

func (p *exprParser) ternary() (int64, error) {
	cond, err := p.binary(0)
	if err != nil {
		return 0, err
	}
	if p.peek() != "?" {
		return cond, nil
	}
	p.pos++
	a, err := p.ternary()
	if err != nil {
		return 0, err
	}
	if p.peek() != ":" {
		return 0, errors.Wrap(ErrExpression, "expected ':' in conditional expression")
	}
	p.pos++
	b, err := p.ternary()
	if err != nil {
		return 0, err
	}
	if cond != 0 {
		return a, nil
	}
	return b, nil
}

var binaryPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"|":  3,
	"^":  4,
	"&":  5,
	"==": 6, "!=": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

func (p *exprParser) binary(minPrec int) (int64, error) {
	lhs, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		prec, ok := binaryPrec[op]
		if !ok || prec <= minPrec {
			return lhs, nil
		}
		p.pos++
		rhs, err := p.binary(prec)
		if err != nil {
			return 0, err
		}
		lhs, err = apply(op, lhs, rhs)
		if err != nil {
			return 0, err
		}
	}
}

func apply(op string, a, b int64) (int64, error) {
	switch op {
	case "||":
		return boolInt(a != 0 || b != 0), nil
	case "&&":
		return boolInt(a != 0 && b != 0), nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "&":
		return a & b, nil
	case "==":
		return boolInt(a == b), nil
	case "!=":
		return boolInt(a != b), nil
	case "<":
		return boolInt(a < b), nil
	case ">":
		return boolInt(a > b), nil
	case "<=":
		return boolInt(a <= b), nil
	case ">=":
		return boolInt(a >= b), nil
	case "<<":
		return a << uint64(b), nil
	case ">>":
		return a >> uint64(b), nil
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/", "%":
		if b == 0 {
			return 0, errors.Wrap(ErrExpression, "division by zero")
		}
		if op == "/" {
			return a / b, nil
		}
		return a % b, nil
	}
	return 0, errors.Wrapf(ErrExpression, "unsupported operator %q", op)
}

func (p *exprParser) unary() (int64, error) {
	switch p.peek() {
	case "+", "-", "!", "~":
		op := p.toks[p.pos].Text
		p.pos++
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		switch op {
		case "-":
			return -v, nil
		case "!":
			return boolInt(v == 0), nil
		case "~":
			return ^v, nil
		}
		return v, nil
	case "(":
		p.pos++
		v, err := p.ternary()
		if err != nil {
			return 0, err
		}
		if p.peek() != ")" {
			return 0, errors.Wrap(ErrExpression, "missing ')'")
		}
		p.pos++
		return v, nil
	}
	return p.primary()
}

func (p *exprParser) primary() (int64, error) {
	if p.pos >= len(p.toks) {
		return 0, errors.Wrap(ErrExpression, "unexpected end of expression")
	}
	t := p.toks[p.pos]
	p.pos++
	switch t.Kind {
	case Number:
		return parseNumber(t.Text)
	case Char:
		return parseChar(t.Text)
	case Ident:
		p.unknown = append(p.unknown, t.Text)
		return 0, nil
	case String:
		return 0, errors.Wrapf(ErrNotInteger, "string literal %s", t.Text)
	}
	return 0, errors.Wrapf(ErrExpression, "unexpected %q", t.Text)
}

func parseNumber(text string) (int64, error) {
	s := strings.ReplaceAll(text, "'", "")
	s = strings.TrimRight(s, "uUlLzZ")
	base := 10
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		base, s = 16, s[2:]
	case strings.HasPrefix(s, "0b") || strings.HasPrefix(s, "0B"):
		base, s = 2, s[2:]
	case len(s) > 1 && s[0] == '0':
		base, s = 8, s[1:]
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrNotInteger, "number %s", text)
	}
	return int64(v), nil
}

func parseChar(text string) (int64, error) {
	i := strings.IndexByte(text, '\'')
	body := text[i+1 : len(text)-1]
	v, _, _, err := strconv.UnquoteChar(body, '\'')
	if err != nil {
		return 0, errors.Wrapf(ErrNotInteger, "char literal %s", text)
	}
	return int64(v), nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
