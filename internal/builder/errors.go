package builder

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mvp-joe/stubgen/internal/cpp"
)

var (
	// ErrDuplicateSymbol indicates a second declaration of a full name.
	ErrDuplicateSymbol = errors.New("duplicate symbol")

	// ErrInvalidContext indicates a marker with no compatible enclosing scope.
	ErrInvalidContext = errors.New("invalid context")

	// ErrUnknownMarker indicates an unrecognised marker under the marker prefix.
	ErrUnknownMarker = errors.New("unknown marker")

	// ErrMarkerArity indicates a marker invoked with the wrong number of arguments.
	ErrMarkerArity = errors.New("wrong number of marker arguments")

	// ErrInvalidDocstring indicates a docstring that breaks the docstring
	// policy or a record documented twice.
	ErrInvalidDocstring = errors.New("invalid docstring")
)

// MarkerError ties a builder failure to the invocation that caused it. Index
// is the invocation's position in the stream, or -1 when unknown.
type MarkerError struct {
	Invocation cpp.Invocation
	Index      int
	Err        error
}

func (e *MarkerError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %v", FormatInvocation(e.Invocation), e.Err)
	}
	return fmt.Sprintf("marker #%d %s: %v", e.Index, FormatInvocation(e.Invocation), e.Err)
}

func (e *MarkerError) Unwrap() error {
	return e.Err
}

// FormatInvocation renders an invocation roughly as it appeared in source.
func FormatInvocation(inv cpp.Invocation) string {
	args := make([]string, len(inv.Args))
	for i, a := range inv.Args {
		args[i] = cpp.Text(a)
	}
	return inv.Macro + "(" + strings.Join(args, ", ") + ")"
}
