package builder

import (
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// DocstringPolicy controls docstring validation.
type DocstringPolicy struct {
	// RequireTrailingNewline rejects multi-line docstrings that do not end
	// with a line break.
	RequireTrailingNewline bool

	// MaxLineWidth rejects docstrings with a longer line. Zero disables the check.
	MaxLineWidth int
}

// DefaultDocstringPolicy requires trailing newlines and does not limit width.
func DefaultDocstringPolicy() DocstringPolicy {
	return DocstringPolicy{RequireTrailingNewline: true}
}

// Check validates doc against the policy.
func (p DocstringPolicy) Check(doc string) error {
	if p.RequireTrailingNewline && strings.Contains(doc, "\n") && !strings.HasSuffix(doc, "\n") {
		return errors.WithHint(
			errors.Wrap(ErrInvalidDocstring, "multi-line docstring without trailing newline"),
			`end the last line with "\n"`)
	}
	if p.MaxLineWidth > 0 {
		for i, line := range strings.Split(doc, "\n") {
			if n := utf8.RuneCountInString(line); n > p.MaxLineWidth {
				return errors.Wrapf(ErrInvalidDocstring, "line %d is %d characters, limit is %d", i+1, n, p.MaxLineWidth)
			}
		}
	}
	return nil
}
