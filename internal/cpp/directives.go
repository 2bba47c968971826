package cpp

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// cond tracks one #if group.
type cond struct {
	parentActive bool
	active       bool
	taken        bool
	passthru     bool
	sawElse      bool
}

// process runs directives and expands text for one file.
func (c *Context) process(name string, toks []Token, out *strings.Builder) error {
	if c.depth > maxIncludeDepth {
		return errors.Wrapf(ErrIncludeDepth, "at %s", name)
	}

	var stack []*cond
	active := func() bool {
		return len(stack) == 0 || stack[len(stack)-1].active
	}

	var run []Token
	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		expanded, err := c.expand(run)
		run = run[:0]
		if err != nil {
			return err
		}
		out.WriteString(Text(expanded))
		return nil
	}

	lines := splitLines(toks)
	for n, line := range lines {
		i := skipSpace(line, 0)
		if i >= len(line) || line[i].Kind != Punct || (line[i].Text != "#" && line[i].Text != "%:") {
			if active() {
				run = append(run, line...)
			}
			continue
		}

		if err := flush(); err != nil {
			return err
		}

		body := line[i+1:]
		j := skipSpace(body, 0)
		if j >= len(body) {
			continue // null directive
		}
		directive := body[j].Text
		args := Trim(body[j+1:])

		switch directive {
		case "if", "ifdef", "ifndef":
			if !active() {
				stack = append(stack, &cond{})
				continue
			}
			val, unknown, err := c.evalDirective(directive, args)
			if err != nil {
				return errors.Wrapf(err, "%s:%d", name, body[j].Line)
			}
			g := &cond{parentActive: true}
			guard := directive == "ifndef" && isIncludeGuard(args, lines[n+1:])
			if unknown && c.passthrough && !guard {
				g.passthru = true
				g.active = true
				writeLine(out, line)
			} else {
				g.active = val
				g.taken = val
			}
			stack = append(stack, g)

		case "elif":
			if len(stack) == 0 {
				return errors.Wrapf(ErrUnbalanced, "%s:%d: #elif without #if", name, body[j].Line)
			}
			g := stack[len(stack)-1]
			if g.sawElse {
				return errors.Wrapf(ErrUnbalanced, "%s:%d: #elif after #else", name, body[j].Line)
			}
			switch {
			case !g.parentActive:
			case g.passthru:
				writeLine(out, line)
			case g.taken:
				g.active = false
			default:
				// An undefined identifier in a resolved group counts as 0.
				val, _, err := c.evalDirective("if", args)
				if err != nil {
					return errors.Wrapf(err, "%s:%d", name, body[j].Line)
				}
				g.active = val
				g.taken = val
			}

		case "else":
			if len(stack) == 0 {
				return errors.Wrapf(ErrUnbalanced, "%s:%d: #else without #if", name, body[j].Line)
			}
			g := stack[len(stack)-1]
			g.sawElse = true
			switch {
			case !g.parentActive:
			case g.passthru:
				writeLine(out, line)
			default:
				g.active = !g.taken
				g.taken = true
			}

		case "endif":
			if len(stack) == 0 {
				return errors.Wrapf(ErrUnbalanced, "%s:%d: #endif without #if", name, body[j].Line)
			}
			g := stack[len(stack)-1]
			if g.passthru {
				writeLine(out, line)
			}
			stack = stack[:len(stack)-1]

		default:
			if !active() {
				continue
			}
			if err := c.directive(name, directive, args, line, out); err != nil {
				return errors.Wrapf(err, "%s:%d", name, body[j].Line)
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}
	if len(stack) > 0 {
		return errors.Wrapf(ErrUnbalanced, "%s: %d unterminated #if", name, len(stack))
	}
	return nil
}

// directive handles the non-conditional directives in an active region.
func (c *Context) directive(name, directive string, args, line []Token, out *strings.Builder) error {
	switch directive {
	case "define":
		return c.define(args)

	case "undef":
		if len(args) == 0 || args[0].Kind != Ident {
			return errors.Wrap(ErrDirective, "#undef without a macro name")
		}
		delete(c.macros, args[0].Text)
		return nil

	case "include":
		header, err := c.headerName(args)
		if err != nil {
			return err
		}
		if !c.allowed[header] {
			writeLine(out, line)
			return nil
		}
		path, src, err := c.loader.Load(header, c.includeDirs)
		if err != nil {
			return err
		}
		c.depth++
		defer func() { c.depth-- }()
		return c.process(path, Lex(src), out)

	default:
		// pragma, line, error, warning and anything unknown pass through.
		writeLine(out, line)
		return nil
	}
}

// headerName extracts the unquoted name of an #include operand.
func (c *Context) headerName(args []Token) (string, error) {
	if len(args) == 0 {
		return "", errors.Wrap(ErrDirective, "#include without a header name")
	}
	if args[0].Kind == String && strings.HasPrefix(args[0].Text, `"`) {
		return strings.Trim(args[0].Text, `"`), nil
	}
	if args[0].Text == "<" {
		var sb strings.Builder
		for _, t := range args[1:] {
			if t.Text == ">" {
				return sb.String(), nil
			}
			sb.WriteString(t.Text)
		}
		return "", errors.Wrap(ErrDirective, "unterminated <header> name")
	}
	expanded, err := c.expandQuiet(args)
	if err != nil {
		return "", err
	}
	expanded = Trim(expanded)
	if len(expanded) == 0 || (expanded[0].Kind != String && expanded[0].Text != "<") {
		return "", errors.Wrapf(ErrDirective, "cannot resolve #include %s", Text(args))
	}
	return c.headerName(expanded)
}

// evalDirective evaluates an #if, #ifdef or #ifndef operand. unknown reports
// whether the result depends on an identifier that is not defined.
func (c *Context) evalDirective(directive string, args []Token) (bool, bool, error) {
	switch directive {
	case "ifdef", "ifndef":
		if len(args) == 0 || args[0].Kind != Ident {
			return false, false, errors.Wrapf(ErrDirective, "#%s without a macro name", directive)
		}
		_, defined := c.macros[args[0].Text]
		return defined == (directive == "ifdef"), !defined, nil
	}

	resolved, unknown, err := c.resolveDefined(args)
	if err != nil {
		return false, false, err
	}
	expanded, err := c.expandQuiet(resolved)
	if err != nil {
		return false, false, err
	}
	p := newExprParser(expanded)
	v, err := p.eval()
	if err != nil {
		return false, false, errors.Wrapf(err, "in #%s %s", directive, Text(args))
	}
	return v != 0, unknown || len(p.unknown) > 0, nil
}

// resolveDefined replaces defined X and defined(X) with 1 or 0.
func (c *Context) resolveDefined(args []Token) ([]Token, bool, error) {
	var out []Token
	unknown := false
	for i := 0; i < len(args); i++ {
		t := args[i]
		if t.Kind != Ident || t.Text != "defined" {
			out = append(out, t)
			continue
		}
		j := skipSpace(args, i+1)
		paren := j < len(args) && args[j].Text == "("
		if paren {
			j = skipSpace(args, j+1)
		}
		if j >= len(args) || args[j].Kind != Ident {
			return nil, false, errors.Wrap(ErrDirective, "defined without a macro name")
		}
		_, ok := c.macros[args[j].Text]
		if !ok {
			unknown = true
		}
		if paren {
			j = skipSpace(args, j+1)
			if j >= len(args) || args[j].Text != ")" {
				return nil, false, errors.Wrap(ErrDirective, "defined( without ')'")
			}
		}
		text := "0"
		if ok {
			text = "1"
		}
		out = append(out, Token{Kind: Number, Text: text, Line: t.Line})
		i = j
	}
	return out, unknown, nil
}

// isIncludeGuard reports whether the next directive after "#ifndef NAME" is
// an empty "#define NAME". Guards are always decided, otherwise the guard
// macro defined in one pass would hide the whole file in the next.
func isIncludeGuard(args []Token, rest [][]Token) bool {
	if len(args) == 0 {
		return false
	}
	for _, line := range rest {
		i := skipSpace(line, 0)
		if i >= len(line) {
			continue
		}
		if line[i].Text != "#" && line[i].Text != "%:" {
			return false
		}
		def := Trim(line[i+1:])
		j := skipSpace(def, 0)
		if j >= len(def) || def[j].Text != "define" {
			return false
		}
		body := Trim(def[j+1:])
		return len(body) == 1 && body[0].Text == args[0].Text
	}
	return false
}

// splitLines groups tokens into lines, each ending with its newline token.
func splitLines(toks []Token) [][]Token {
	var lines [][]Token
	start := 0
	for i, t := range toks {
		if t.Kind == Newline {
			lines = append(lines, toks[start:i+1])
			start = i + 1
		}
	}
	if start < len(toks) {
		lines = append(lines, toks[start:])
	}
	return lines
}

func writeLine(out *strings.Builder, line []Token) {
	out.WriteString(Text(line))
	if len(line) == 0 || line[len(line)-1].Kind != Newline {
		out.WriteByte('\n')
	}
}
