package info

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrConflict indicates two symbol dicts declare the same name differently.
var ErrConflict = errors.New("conflicting symbol declarations")

// Names returns every key sorted.
func (d Dict) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Children returns the last component of every key directly under parent,
// sorted.
func (d Dict) Children(parent string) []string {
	var out []string
	for name := range d {
		idx := strings.LastIndex(name, ".")
		if idx < 0 {
			continue
		}
		if name[:idx] == parent {
			out = append(out, name[idx+1:])
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a shallow copy. Records are shared.
func (d Dict) Clone() Dict {
	out := make(Dict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge adds every entry of src to dst. A Module may appear in both when the
// declarations agree or only one carries a docstring; any other overlap is an
// ErrConflict.
func Merge(dst, src Dict) error {
	for _, name := range src.Names() {
		incoming := src[name]
		existing, ok := dst[name]
		if !ok {
			dst[name] = incoming
			continue
		}

		a, aok := existing.(*Module)
		b, bok := incoming.(*Module)
		if !aok || !bok {
			return errors.WithDetailf(
				errors.Wrapf(ErrConflict, "%s", name),
				"existing %T, incoming %T", existing, incoming)
		}

		// MODULE("a.b") and SUBMODULE("a", "b") name the same module, so
		// Outer never conflicts. The submodule form is kept when known.
		merged := &Module{Name: a.Name, Outer: a.Outer, Docstring: a.Docstring}
		if merged.Outer == "" {
			merged.Outer = b.Outer
		}
		switch {
		case b.Docstring == nil:
		case a.Docstring == nil:
			merged.Docstring = b.Docstring
		case *a.Docstring != *b.Docstring:
			return errors.WithDetailf(
				errors.Wrapf(ErrConflict, "module %s", name),
				"docstrings differ: %q vs %q", *a.Docstring, *b.Docstring)
		}
		if *merged != *a {
			dst[name] = merged
		}
	}
	return nil
}
