package extract

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// Flavour selects one build variant of the native sources.
type Flavour string

const (
	Willow Flavour = "WILLOW"
	Oak    Flavour = "OAK"
	Oak2   Flavour = "OAK2"
)

// DefaultFlavours lists the flavours known out of the box.
var DefaultFlavours = []Flavour{Willow, Oak, Oak2}

var (
	// ErrUnknownFlavour indicates a flavour that is not configured or that the
	// config header does not resolve.
	ErrUnknownFlavour = errors.New("unknown flavour")

	// ErrNonIntegerFlavourConstant indicates a flavour constant whose expansion
	// is not an integer constant expression.
	ErrNonIntegerFlavourConstant = errors.New("flavour constant is not an integer")
)

// ParseFlavour normalises a user-supplied flavour name against known.
func ParseFlavour(s string, known []Flavour) (Flavour, error) {
	f := Flavour(strings.ToUpper(strings.TrimSpace(s)))
	for _, k := range known {
		if k == f {
			return f, nil
		}
	}
	return "", errors.WithHintf(
		errors.Wrapf(ErrUnknownFlavour, "%q", s),
		"known flavours: %s", joinFlavours(known))
}

func joinFlavours(fs []Flavour) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

// ResolveFlavour expands the config header for flavour and evaluates every
// object-like macro in the constant namespace to an integer.
func (e *Extractor) ResolveFlavour(ctx context.Context, flavour Flavour) (map[string]int64, error) {
	pp, err := e.configure(ctx, flavour)
	if err != nil {
		return nil, err
	}

	consts := make(map[string]int64)
	for _, m := range pp.Macros() {
		if !strings.HasPrefix(m.Name, e.opts.ConstantPrefix) || m.FuncLike || len(m.Body) == 0 {
			continue
		}
		v, err := pp.EvalInt(m.Body)
		if err != nil {
			return nil, errors.Wrapf(
				errors.Mark(err, ErrNonIntegerFlavourConstant),
				"%s for flavour %s", m.Name, flavour)
		}
		consts[m.Name] = v
	}

	e.logger.Debugw("Resolved flavour constants",
		"flavour", flavour,
		"count", len(consts))
	return consts, nil
}
