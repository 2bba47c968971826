// Package cpp is a narrowly scoped C preprocessor used to isolate annotation
// marker invocations from native sources.
//
// A Context owns a macro table that persists across Expand calls, a set of
// includes it is allowed to follow, and the list of function-like macro
// invocations observed while expanding. Anything the context cannot decide
// (an include outside the allow list, a conditional on an undefined macro,
// pragmas) is passed through to the output text unchanged so a later Expand
// over that text can decide it with more definitions in scope.
package cpp

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

var (
	// ErrDirective indicates a malformed preprocessor directive.
	ErrDirective = errors.New("malformed directive")

	// ErrUnbalanced indicates unbalanced conditional directives.
	ErrUnbalanced = errors.New("unbalanced conditional directives")

	// ErrIncludeDepth indicates runaway include recursion.
	ErrIncludeDepth = errors.New("include nested too deeply")
)

const maxIncludeDepth = 64

// Context is a preprocessing session.
type Context struct {
	macros      map[string]*Macro
	allowed     map[string]bool
	includeDirs []string
	loader      Loader
	logger      *zap.SugaredLogger
	passthrough bool

	events    []Invocation
	recording bool
	depth     int
}

// Option configures a Context.
type Option func(*Context)

// WithIncludeDirs sets the directories searched for permitted includes.
func WithIncludeDirs(dirs ...string) Option {
	return func(c *Context) {
		c.includeDirs = append([]string(nil), dirs...)
	}
}

// WithLoader replaces the file-system include loader.
func WithLoader(l Loader) Option {
	return func(c *Context) {
		c.loader = l
	}
}

// WithLogger sets the logger used for non-fatal diagnostics.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Context) {
		c.logger = l
	}
}

// WithStrictConditionals makes undefined identifiers in conditionals
// evaluate to 0 instead of passing the conditional through.
func WithStrictConditionals() Option {
	return func(c *Context) {
		c.passthrough = false
	}
}

// New creates an empty preprocessing context.
func New(opts ...Option) *Context {
	c := &Context{
		macros:      make(map[string]*Macro),
		allowed:     make(map[string]bool),
		loader:      FSLoader{},
		logger:      zap.NewNop().Sugar(),
		passthrough: true,
		recording:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Define adds a macro from "NAME body" or "NAME(a, b) body" text.
func (c *Context) Define(def string) error {
	toks := Lex([]byte(def))
	return c.define(toks)
}

// Undefine removes a macro.
func (c *Context) Undefine(name string) {
	delete(c.macros, name)
}

// RestrictIncludes replaces the set of include names the context follows.
// Names are compared without quotes or angle brackets.
func (c *Context) RestrictIncludes(names ...string) {
	c.allowed = make(map[string]bool, len(names))
	for _, n := range names {
		c.allowed[n] = true
	}
}

// Macro returns the definition of name, if any.
func (c *Context) Macro(name string) (*Macro, bool) {
	m, ok := c.macros[name]
	return m, ok
}

// Macros returns every defined macro sorted by name.
func (c *Context) Macros() []*Macro {
	out := make([]*Macro, 0, len(c.macros))
	for _, m := range c.macros {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Events returns the invocations captured since the last ResetEvents.
func (c *Context) Events() []Invocation {
	return c.events
}

// ResetEvents clears the captured invocations.
func (c *Context) ResetEvents() {
	c.events = nil
}

// EvalInt macro-expands toks and evaluates them as an integer constant
// expression. Identifiers that survive expansion are an error.
func (c *Context) EvalInt(toks []Token) (int64, error) {
	expanded, err := c.expandQuiet(toks)
	if err != nil {
		return 0, err
	}
	p := newExprParser(expanded)
	v, err := p.eval()
	if err != nil {
		return 0, err
	}
	if len(p.unknown) > 0 {
		return 0, errors.Wrapf(ErrNotInteger, "undefined identifier %s", p.unknown[0])
	}
	return v, nil
}

// Expand preprocesses src and returns the output text together with the
// invocations captured during this call, in expansion order.
func (c *Context) Expand(name string, src []byte) (string, []Invocation, error) {
	before := len(c.events)
	var out strings.Builder
	if err := c.process(name, Lex(src), &out); err != nil {
		return "", nil, errors.Wrapf(err, "%s", name)
	}
	events := append([]Invocation(nil), c.events[before:]...)
	return out.String(), events, nil
}

// expandQuiet expands tokens without recording invocations.
func (c *Context) expandQuiet(toks []Token) ([]Token, error) {
	prev := c.recording
	c.recording = false
	defer func() { c.recording = prev }()
	return c.expand(toks)
}

func (c *Context) record(inv Invocation) {
	if c.recording {
		c.events = append(c.events, inv)
	}
}

// define parses the tokens following "#define".
func (c *Context) define(toks []Token) error {
	i := skipSpace(toks, 0)
	if i >= len(toks) || toks[i].Kind != Ident {
		return errors.Wrap(ErrDirective, "#define without a macro name")
	}
	m := &Macro{Name: toks[i].Text}
	i++

	if i < len(toks) && toks[i].Kind == Punct && toks[i].Text == "(" {
		m.FuncLike = true
		next, err := parseParams(m, toks, i+1)
		if err != nil {
			return err
		}
		i = next
	}

	m.Body = normalizeBody(Trim(toks[i:]))
	c.macros[m.Name] = m
	return nil
}

// parseParams reads a parameter list up to and including the closing
// parenthesis and returns the index after it.
func parseParams(m *Macro, toks []Token, i int) (int, error) {
	for {
		i = skipSpace(toks, i)
		if i >= len(toks) {
			return 0, errors.Wrapf(ErrDirective, "unterminated parameter list for %s", m.Name)
		}
		t := toks[i]
		switch {
		case t.Kind == Punct && t.Text == ")":
			return i + 1, nil
		case t.Kind == Punct && t.Text == ",":
			i++
		case t.Kind == Punct && t.Text == "...":
			m.Variadic = true
			m.Params = append(m.Params, "__VA_ARGS__")
			i++
		case t.Kind == Ident:
			i++
			if j := skipSpace(toks, i); j < len(toks) && toks[j].Text == "..." {
				m.Variadic = true
				i = j + 1
			}
			m.Params = append(m.Params, t.Text)
		default:
			return 0, errors.Wrapf(ErrDirective, "unexpected %q in parameters of %s", t.Text, m.Name)
		}
	}
}

// normalizeBody collapses whitespace runs into single spaces.
func normalizeBody(toks []Token) []Token {
	out := make([]Token, 0, len(toks))
	for _, t := range toks {
		if t.IsSpace() {
			if len(out) > 0 && out[len(out)-1].Kind == Whitespace {
				continue
			}
			out = append(out, Token{Kind: Whitespace, Text: " ", Line: t.Line})
			continue
		}
		out = append(out, t)
	}
	return out
}

func skipSpace(toks []Token, i int) int {
	for i < len(toks) && toks[i].IsSpace() {
		i++
	}
	return i
}
