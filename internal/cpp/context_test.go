package cpp

import (
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Context:
// - Object-like and function-like macros expand and rescan
// - Self-referential macros stop expanding
// - # stringifies, ## pastes, __VA_ARGS__ collects the tail
// - Every function-like call is recorded with raw trimmed arguments in order
// - Expand returns only the calls from that invocation
// - EvalInt resolves macros and rejects undefined identifiers and strings
// - Decidable conditionals pick one branch
// - Conditionals on undefined names pass through with every branch enabled
// - Include guards are decided so a file is not hidden in a later pass
// - Includes outside the allow list and pragmas pass through
// - Permitted includes are loaded, cached and bounded in depth
// - Malformed directives and unbalanced conditionals fail

// mapLoader serves headers from memory and counts loads.
type mapLoader struct {
	files map[string]string
	loads atomic.Int32
}

func (m *mapLoader) Load(name string, _ []string) (string, []byte, error) {
	m.loads.Add(1)
	src, ok := m.files[name]
	if !ok {
		return "", nil, errors.Wrap(ErrIncludeNotFound, name)
	}
	return name, []byte(src), nil
}

func expandText(t *testing.T, c *Context, src string) string {
	t.Helper()
	out, _, err := c.Expand("test.cpp", []byte(src))
	require.NoError(t, err)
	return out
}

// squash collapses whitespace so assertions ignore layout.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestExpand_Macros(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		defs []string
		src  string
		want string
	}{
		{name: "object", defs: []string{"N 42"}, src: "x = N;", want: "x = 42;"},
		{name: "function", defs: []string{"ADD(a, b) ((a) + (b))"}, src: "ADD(1, 2)", want: "((1) + (2))"},
		{name: "rescan", defs: []string{"A B", "B 7"}, src: "A", want: "7"},
		{name: "self reference", defs: []string{"X X + 1"}, src: "X", want: "X + 1"},
		{name: "mutual reference", defs: []string{"P Q", "Q P"}, src: "P", want: "P"},
		{name: "function name alone", defs: []string{"F(x) x"}, src: "F + 1", want: "F + 1"},
		{name: "stringify", defs: []string{`STR(x) #x`}, src: `STR(a "b" c)`, want: `"a \"b\" c"`},
		{name: "paste", defs: []string{"CAT(a, b) a ## b"}, src: "CAT(foo, bar)", want: "foobar"},
		{name: "paste keeps args raw", defs: []string{"CAT(a, b) a ## b", "foo 1"}, src: "CAT(foo, 2)", want: "foo2"},
		{name: "variadic", defs: []string{"V(f, ...) f(__VA_ARGS__)"}, src: "V(g, 1, 2, 3)", want: "g(1, 2, 3)"},
		{name: "nested parens", defs: []string{"ID(x) x"}, src: "ID((1, 2))", want: "(1, 2)"},
		{name: "arguments expanded first", defs: []string{"ID(x) x", "N 3"}, src: "ID(N)", want: "3"},
		{name: "empty object", defs: []string{"EMPTY"}, src: "a EMPTY b", want: "a b"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := New()
			for _, d := range tt.defs {
				require.NoError(t, c.Define(d))
			}
			assert.Equal(t, tt.want, squash(expandText(t, c, tt.src)))
		})
	}
}

func TestExpand_RecordsInvocations(t *testing.T) {
	t.Parallel()

	c := New()
	src := `#define MARK(name, type) name
#define WRAP(x) MARK(x, "w")
#define ZERO() 0
a(MARK("one" /* c */, "int"), WRAP("two"));
ZERO()
MARK("multi",
     "line")
`
	_, invs, err := c.Expand("test.cpp", []byte(src))
	require.NoError(t, err)

	require.Len(t, invs, 5)
	assert.Equal(t, "MARK", invs[0].Macro)
	assert.Equal(t, `"one"`, Text(invs[0].Args[0]), "arguments are trimmed")
	assert.Equal(t, `"int"`, Text(invs[0].Args[1]))
	assert.Equal(t, 4, invs[0].Line)

	// Test: the outer call is reported before the calls its body produces
	assert.Equal(t, "WRAP", invs[1].Macro)
	assert.Equal(t, "MARK", invs[2].Macro)
	assert.Equal(t, `"two"`, Text(invs[2].Args[0]))

	assert.Equal(t, "ZERO", invs[3].Macro)
	assert.Empty(t, invs[3].Args)

	assert.Equal(t, "MARK", invs[4].Macro)
	assert.Equal(t, `"line"`, Text(invs[4].Args[1]))

	// Test: a second Expand only returns its own calls
	_, again, err := c.Expand("more.cpp", []byte("MARK(1, 2)\n"))
	require.NoError(t, err)
	assert.Len(t, again, 1)
	assert.Len(t, c.Events(), 6)

	c.ResetEvents()
	assert.Empty(t, c.Events())
}

func TestExpand_ArgumentCountMismatchStillRecorded(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.Define("ARG(name, type, def) name"))
	out, invs, err := c.Expand("test.cpp", []byte(`ARG("x"_a, "int", "0", = 0)`))
	require.NoError(t, err)

	require.Len(t, invs, 1)
	assert.Len(t, invs[0].Args, 4)
	assert.Equal(t, `"x"_a`, squash(out))
}

func TestExpand_UnterminatedCall(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.Define("F(x) x"))
	_, _, err := c.Expand("test.cpp", []byte("F(1, (2)\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnterminatedCall))
}

func TestEvalInt(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.Define("FLAVOUR_A 1"))
	require.NoError(t, c.Define("FLAVOUR_B 2"))
	require.NoError(t, c.Define("FLAVOUR FLAVOUR_B"))
	require.NoError(t, c.Define("SELECTOR (FLAVOUR == FLAVOUR_B ? 10 : 20)"))

	tests := []struct {
		expr string
		want int64
	}{
		{expr: "SELECTOR", want: 10},
		{expr: "FLAVOUR_A + FLAVOUR_B * 3", want: 7},
		{expr: "(1 << 4) | 0x0F", want: 31},
		{expr: "!0 && ~0 == -1", want: 1},
		{expr: "010 + 0b11 + 'A'", want: 8 + 3 + 65},
		{expr: "7 % 4 - 10 / 3", want: 0},
		{expr: "1 ? 2 ? 3 : 4 : 5", want: 3},
		{expr: "100000ULL >= 1'000", want: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.expr, func(t *testing.T) {
			got, err := c.EvalInt(Lex([]byte(tt.expr)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalInt_Errors(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.Define(`NAME "oak"`))

	_, err := c.EvalInt(Lex([]byte("UNDEFINED + 1")))
	assert.True(t, errors.Is(err, ErrNotInteger))

	_, err = c.EvalInt(Lex([]byte("NAME")))
	assert.True(t, errors.Is(err, ErrNotInteger))

	_, err = c.EvalInt(Lex([]byte("1 +")))
	assert.True(t, errors.Is(err, ErrExpression))

	_, err = c.EvalInt(Lex([]byte("1 / 0")))
	assert.True(t, errors.Is(err, ErrExpression))

	// Test: EvalInt does not record invocations
	require.NoError(t, c.Define("F(x) x"))
	_, err = c.EvalInt(Lex([]byte("F(1)")))
	require.NoError(t, err)
	assert.Empty(t, c.Events())
}

func TestConditionals_Decided(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.Define("FLAVOUR 3"))
	src := `#if FLAVOUR == 3
oak2
#elif FLAVOUR == 2
oak
#else
willow
#endif
#if 0
#if UNKNOWN
hidden
#endif
#elif defined(FLAVOUR) && UNKNOWN_TOO == 0
elif_taken
#endif
#ifdef FLAVOUR
defined
#endif
`
	// Test: unknown identifiers inside an already decided group do not pass it through
	assert.Equal(t, "oak2 elif_taken defined", squash(expandText(t, c, src)))
}

func TestConditionals_PassThrough(t *testing.T) {
	t.Parallel()

	c := New()
	src := `#ifdef INTERNAL
inside
#else
outside
#endif
#if defined(OTHER) || FEATURE
feature
#endif
`
	out := expandText(t, c, src)

	// Test: both branches survive along with their directives
	assert.Equal(t, "#ifdef INTERNAL inside #else outside #endif #if defined(OTHER) || FEATURE feature #endif", squash(out))

	// Test: the output decides normally once the names are defined
	require.NoError(t, c.Define("INTERNAL 1"))
	assert.Equal(t, "inside #if defined(OTHER) || FEATURE feature #endif", squash(expandText(t, c, out)))
}

func TestConditionals_Strict(t *testing.T) {
	t.Parallel()

	c := New(WithStrictConditionals())
	out := expandText(t, c, "#ifdef INTERNAL\ninside\n#else\noutside\n#endif\n")
	assert.Equal(t, "outside", squash(out))
}

func TestConditionals_IncludeGuard(t *testing.T) {
	t.Parallel()

	c := New()
	src := "#ifndef GUARD_H\n#define GUARD_H\nbody\n#endif\n"

	first := expandText(t, c, src)
	assert.Equal(t, "body", squash(first))

	// Test: the guard is defined now, and the first pass output no longer carries it
	_, ok := c.Macro("GUARD_H")
	assert.True(t, ok)
	assert.Equal(t, "body", squash(expandText(t, c, first)))
}

func TestIncludes(t *testing.T) {
	t.Parallel()

	loader := &mapLoader{files: map[string]string{
		"config.h": "#define VALUE 5\n",
		"loop.h":   "#include \"loop.h\"\n",
	}}
	c := New(WithLoader(loader), WithIncludeDirs("inc"))

	src := `#include "config.h"
#include <vector>
#include "other.h"
#pragma once
VALUE
`
	// Test: nothing is followed until permitted
	out := expandText(t, c, src)
	assert.Contains(t, out, "#include \"config.h\"")
	assert.Contains(t, out, "#include <vector>")
	assert.Contains(t, out, "#pragma once")
	assert.Contains(t, out, "VALUE")
	assert.Equal(t, int32(0), loader.loads.Load())

	c.RestrictIncludes("config.h")
	out = expandText(t, c, src)
	assert.NotContains(t, out, "config.h")
	assert.Contains(t, out, "#include \"other.h\"")
	assert.Contains(t, squash(out), "5")
	assert.Equal(t, int32(1), loader.loads.Load())

	// Test: recursion is bounded
	c.RestrictIncludes("loop.h")
	_, _, err := c.Expand("test.cpp", []byte("#include \"loop.h\"\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncludeDepth))

	// Test: a permitted include that cannot be found is an error
	c.RestrictIncludes("missing.h")
	_, _, err = c.Expand("test.cpp", []byte("#include \"missing.h\"\n"))
	assert.True(t, errors.Is(err, ErrIncludeNotFound))
}

func TestCachedLoader(t *testing.T) {
	t.Parallel()

	inner := &mapLoader{files: map[string]string{"a.h": "#define A 1\n"}}
	cached, err := NewCachedLoader(inner, 16)
	require.NoError(t, err)
	defer cached.Close()

	for i := 0; i < 3; i++ {
		path, src, err := cached.Load("a.h", []string{"inc"})
		require.NoError(t, err)
		assert.Equal(t, "a.h", path)
		assert.Equal(t, "#define A 1\n", string(src))
	}
	assert.Equal(t, int32(1), inner.loads.Load())

	// Test: a different search path is a different entry
	_, _, err = cached.Load("a.h", []string{"other"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.loads.Load())

	// Test: failures are not cached
	_, _, err = cached.Load("b.h", nil)
	assert.True(t, errors.Is(err, ErrIncludeNotFound))
	_, _, _ = cached.Load("b.h", nil)
	assert.Equal(t, int32(4), inner.loads.Load())

	// Test: purging forces a reload
	cached.Purge()
	_, _, err = cached.Load("a.h", []string{"inc"})
	require.NoError(t, err)
	assert.Equal(t, int32(5), inner.loads.Load())

	_, err = NewCachedLoader(inner, 0)
	assert.Error(t, err)
}

func TestDirectiveErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want error
	}{
		{name: "endif without if", src: "#endif\n", want: ErrUnbalanced},
		{name: "else without if", src: "#else\n", want: ErrUnbalanced},
		{name: "unterminated if", src: "#if 1\nx\n", want: ErrUnbalanced},
		{name: "elif after else", src: "#if 0\n#else\n#elif 1\n#endif\n", want: ErrUnbalanced},
		{name: "define without name", src: "#define\n", want: ErrDirective},
		{name: "bad parameter", src: "#define F(1) x\n", want: ErrDirective},
		{name: "bad expression", src: "#if 1 +\n#endif\n", want: ErrExpression},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := New().Expand("test.cpp", []byte(tt.src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestMacros_Sorted(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.Define("B 2"))
	require.NoError(t, c.Define("A(x, ...) x"))
	expandText(t, c, "#define C\n#undef B\n")

	var names []string
	for _, m := range c.Macros() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"A", "C"}, names)

	a, ok := c.Macro("A")
	require.True(t, ok)
	assert.True(t, a.FuncLike)
	assert.True(t, a.Variadic)
	assert.Equal(t, []string{"x", "__VA_ARGS__"}, a.Params)

	c.Undefine("A")
	_, ok = c.Macro("A")
	assert.False(t, ok)
}
