package info

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Dict:
// - Names and Children are sorted and only list direct children
// - Merge adds disjoint entries
// - Merge accepts identical modules and fills in a missing docstring
// - Merge treats MODULE and SUBMODULE forms of one name as the same module
// - Merge rejects modules with different docstrings
// - Merge rejects any non-module overlap

func TestDict_NamesAndChildren(t *testing.T) {
	t.Parallel()

	d := Dict{
		"pkg":            &Module{Name: "pkg"},
		"pkg.b":          &Function{Name: "b"},
		"pkg.a":          &Attribute{Name: "a", TypeHint: "int"},
		"pkg.sub":        &Module{Name: "pkg.sub", Outer: "pkg"},
		"pkg.sub.Widget": &Class{Name: "Widget"},
	}

	assert.Equal(t, []string{"pkg", "pkg.a", "pkg.b", "pkg.sub", "pkg.sub.Widget"}, d.Names())
	assert.Equal(t, []string{"a", "b", "sub"}, d.Children("pkg"))
	assert.Equal(t, []string{"Widget"}, d.Children("pkg.sub"))
	assert.Empty(t, d.Children("other"))
}

func TestMerge_Disjoint(t *testing.T) {
	t.Parallel()

	dst := Dict{"pkg": &Module{Name: "pkg"}}
	src := Dict{"pkg.f": &Function{Name: "f"}}

	require.NoError(t, Merge(dst, src))
	assert.Len(t, dst, 2)
}

func TestMerge_IdenticalModules(t *testing.T) {
	t.Parallel()

	// Test: the same module from two files collapses to one record
	dst := Dict{"pkg": &Module{Name: "pkg", Docstring: Str("Doc.")}}
	src := Dict{"pkg": &Module{Name: "pkg", Docstring: Str("Doc.")}}

	require.NoError(t, Merge(dst, src))
	require.Len(t, dst, 1)
	assert.Equal(t, "Doc.", *dst["pkg"].(*Module).Docstring)
}

func TestMerge_FillsMissingDocstring(t *testing.T) {
	t.Parallel()

	original := &Module{Name: "pkg"}
	dst := Dict{"pkg": original}
	src := Dict{"pkg": &Module{Name: "pkg", Docstring: Str("Doc.")}}

	require.NoError(t, Merge(dst, src))
	assert.Equal(t, "Doc.", *dst["pkg"].(*Module).Docstring)
	assert.Nil(t, original.Docstring, "records from the source dicts are not mutated")

	// Test: an undocumented module does not erase an existing docstring
	require.NoError(t, Merge(dst, Dict{"pkg": &Module{Name: "pkg"}}))
	assert.Equal(t, "Doc.", *dst["pkg"].(*Module).Docstring)
}

func TestMerge_ModuleAndSubmoduleForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		first *Module
		next  *Module
	}{
		{
			name:  "module then submodule",
			first: &Module{Name: "a.b"},
			next:  &Module{Name: "a.b", Outer: "a"},
		},
		{
			name:  "submodule then module",
			first: &Module{Name: "a.b", Outer: "a"},
			next:  &Module{Name: "a.b"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			firstOuter := tt.first.Outer
			dst := Dict{"a.b": tt.first}
			require.NoError(t, Merge(dst, Dict{"a.b": tt.next}))
			assert.Equal(t, "a", dst["a.b"].(*Module).Outer)
			assert.Equal(t, firstOuter, tt.first.Outer, "records from the source dicts are not mutated")
		})
	}
}

func TestMerge_Conflicts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		dst  Record
		src  Record
	}{
		{
			name: "module docstrings differ",
			dst:  &Module{Name: "pkg", Docstring: Str("A.")},
			src:  &Module{Name: "pkg", Docstring: Str("B.")},
		},
		{name: "two functions", dst: &Function{Name: "f"}, src: &Function{Name: "f"}},
		{name: "module and class", dst: &Module{Name: "pkg.X"}, src: &Class{Name: "X"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Merge(Dict{"pkg.X": tt.dst}, Dict{"pkg.X": tt.src})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConflict))
		})
	}
}
