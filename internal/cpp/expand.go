package cpp

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnterminatedCall indicates a function-like macro call missing its ')'.
var ErrUnterminatedCall = errors.New("unterminated macro invocation")

// expand macro-expands a token sequence, rescanning every replacement.
func (c *Context) expand(toks []Token) ([]Token, error) {
	in := append([]Token(nil), toks...)
	out := make([]Token, 0, len(toks))

	for len(in) > 0 {
		t := in[0]
		in = in[1:]

		if t.Kind != Ident {
			out = append(out, t)
			continue
		}
		m, ok := c.macros[t.Text]
		if !ok || t.hidden(t.Text) {
			out = append(out, t)
			continue
		}

		if !m.FuncLike {
			repl := make([]Token, 0, len(m.Body))
			for _, b := range m.Body {
				repl = append(repl, b.withHide(t.hide, m.Name, t.Line))
			}
			in = append(repl, in...)
			continue
		}

		open := skipSpace(in, 0)
		if open >= len(in) || in[open].Kind != Punct || in[open].Text != "(" {
			out = append(out, t)
			continue
		}

		args, rest, err := collectArgs(m, in[open+1:])
		if err != nil {
			return nil, errors.Wrapf(err, "%s at line %d", m.Name, t.Line)
		}
		in = rest

		if m.Variadic && len(args) < len(m.Params) {
			args = append(args, nil)
		}
		if len(args) != len(m.Params) {
			c.logger.Debugw("Macro argument count mismatch",
				"macro", m.Name,
				"line", t.Line,
				"want", len(m.Params),
				"got", len(args))
		}

		c.record(Invocation{Macro: m.Name, Args: args, Line: t.Line})

		repl, err := c.substitute(m, args)
		if err != nil {
			return nil, errors.Wrapf(err, "%s at line %d", m.Name, t.Line)
		}
		for i := range repl {
			repl[i] = repl[i].withHide(t.hide, m.Name, t.Line)
		}
		in = append(repl, in...)
	}

	return out, nil
}

// collectArgs reads call arguments after the opening parenthesis and returns
// them trimmed, together with the remaining input.
func collectArgs(m *Macro, in []Token) ([][]Token, []Token, error) {
	var (
		args  [][]Token
		cur   []Token
		depth = 1
	)
	for i, t := range in {
		if t.Kind == Newline {
			t = Token{Kind: Whitespace, Text: " ", Line: t.Line, hide: t.hide}
		}
		if t.Kind == Punct {
			switch t.Text {
			case "(":
				depth++
			case ")":
				depth--
				if depth == 0 {
					args = append(args, Trim(cur))
					if len(m.Params) == 0 && len(args) == 1 && len(args[0]) == 0 {
						args = nil
					}
					return args, in[i+1:], nil
				}
			case ",":
				variadicTail := m.Variadic && len(args) >= len(m.Params)-1
				if depth == 1 && !variadicTail {
					args = append(args, Trim(cur))
					cur = nil
					continue
				}
			}
		}
		cur = append(cur, t)
	}
	return nil, nil, ErrUnterminatedCall
}

// substitute replaces parameters in a function-like macro body.
func (c *Context) substitute(m *Macro, args [][]Token) ([]Token, error) {
	expanded := make(map[int][]Token)
	arg := func(idx int) []Token {
		if idx < len(args) {
			return args[idx]
		}
		return nil
	}
	param := func(t Token) int {
		if t.Kind != Ident {
			return -1
		}
		for i, p := range m.Params {
			if p == t.Text {
				return i
			}
		}
		return -1
	}

	body := m.Body
	var out []Token
	for i := 0; i < len(body); i++ {
		t := body[i]

		if t.Kind == Punct && (t.Text == "#" || t.Text == "%:") {
			j := skipSpace(body, i+1)
			if j < len(body) {
				if idx := param(body[j]); idx >= 0 {
					out = append(out, Token{Kind: String, Text: stringify(arg(idx)), Line: t.Line})
					i = j
					continue
				}
			}
		}

		idx := param(t)
		if idx < 0 {
			out = append(out, t)
			continue
		}

		if pastedBefore(body, i) || pastedAfter(body, i) {
			out = append(out, arg(idx)...)
			continue
		}

		if _, ok := expanded[idx]; !ok {
			e, err := c.expand(arg(idx))
			if err != nil {
				return nil, err
			}
			expanded[idx] = e
		}
		out = append(out, expanded[idx]...)
	}

	return paste(out), nil
}

func pastedBefore(body []Token, i int) bool {
	for j := i - 1; j >= 0; j-- {
		if body[j].IsSpace() {
			continue
		}
		return body[j].Kind == Punct && (body[j].Text == "##" || body[j].Text == "%:%:")
	}
	return false
}

func pastedAfter(body []Token, i int) bool {
	j := skipSpace(body, i+1)
	return j < len(body) && body[j].Kind == Punct && (body[j].Text == "##" || body[j].Text == "%:%:")
}

// paste applies ## operators.
func paste(toks []Token) []Token {
	var out []Token
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if !(t.Kind == Punct && (t.Text == "##" || t.Text == "%:%:")) {
			out = append(out, t)
			continue
		}
		for len(out) > 0 && out[len(out)-1].IsSpace() {
			out = out[:len(out)-1]
		}
		j := skipSpace(toks, i+1)
		if j >= len(toks) {
			break
		}
		if len(out) == 0 {
			i = j - 1
			continue
		}
		left := out[len(out)-1]
		joined := Lex([]byte(left.Text + toks[j].Text))
		if len(joined) == 1 {
			joined[0].Line = left.Line
			out[len(out)-1] = joined[0]
		} else {
			out = append(out, toks[j])
		}
		i = j
	}
	return out
}

// stringify implements the # operator.
func stringify(toks []Token) string {
	var sb strings.Builder
	sb.WriteByte('"')
	space := false
	for _, t := range Trim(toks) {
		if t.IsSpace() {
			space = true
			continue
		}
		if space {
			sb.WriteByte(' ')
			space = false
		}
		if t.Kind == String || t.Kind == Char {
			sb.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(t.Text))
			continue
		}
		sb.WriteString(t.Text)
	}
	sb.WriteByte('"')
	return sb.String()
}
