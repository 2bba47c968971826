// Package render turns a symbol dict into stub files using a directory of
// text/template templates.
//
// Every file under the template directory is a template. Its output path is
// its path relative to the template directory with the last extension
// removed, so "unrealsdk/__init__.pyi.tmpl" renders to
// "unrealsdk/__init__.pyi". Templates pull records out of the dict with
// declare and declare_all; once all templates have run, any record left over
// is an error unless it is a module with no docstring.
package render

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/cockroachdb/errors"
	"github.com/mvp-joe/stubgen/internal/info"
	"go.uber.org/zap"
)

var (
	// ErrUnconsumed indicates records no template declared.
	ErrUnconsumed = errors.New("records were not consumed by any template")

	// ErrUnknownSymbol indicates a template declaring a name that is not in
	// the dict or was already declared.
	ErrUnknownSymbol = errors.New("unknown or already declared symbol")

	// ErrUnknownConstant indicates a template asking for a flavour constant
	// that was not resolved.
	ErrUnknownConstant = errors.New("unknown flavour constant")

	// ErrNoTemplates indicates an empty template directory.
	ErrNoTemplates = errors.New("no templates found")
)

// Input is everything a render needs besides the templates.
type Input struct {
	Symbols   info.Dict
	Flavour   string
	Constants map[string]int64
}

// Report describes a finished render.
type Report struct {
	Outputs []string
	// Skipped lists undocumented modules that no template declared.
	Skipped []string
}

// Renderer renders a template tree.
type Renderer struct {
	templates fs.FS
	logger    *zap.SugaredLogger
}

// New creates a renderer over templates. A nil logger discards output.
func New(templates fs.FS, logger *zap.SugaredLogger) *Renderer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Renderer{templates: templates, logger: logger}
}

// NewDir creates a renderer over a template directory on disk.
func NewDir(dir string, logger *zap.SugaredLogger) *Renderer {
	return New(os.DirFS(dir), logger)
}

// Templates lists template paths in render order.
func (r *Renderer) Templates() ([]string, error) {
	var names []string
	err := fs.WalkDir(r.templates, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list templates")
	}
	sort.Strings(names)
	return names, nil
}

// OutputName returns the output path for a template path.
func OutputName(templatePath string) string {
	return strings.TrimSuffix(templatePath, path.Ext(templatePath))
}

// Render executes every template into outDir. The input dict is not
// modified; consumption is tracked on a copy.
func (r *Renderer) Render(outDir string, in Input) (*Report, error) {
	names, err := r.Templates()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoTemplates
	}

	rendered, report, err := r.execute(names, in)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		out := filepath.Join(outDir, filepath.FromSlash(OutputName(name)))
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create %s", filepath.Dir(out))
		}
		if err := os.WriteFile(out, rendered[name], 0o644); err != nil {
			return nil, errors.Wrapf(err, "failed to write %s", out)
		}
		report.Outputs = append(report.Outputs, out)
		r.logger.Debugw("Wrote stub", "template", name, "output", out)
	}
	return report, nil
}

// RenderText executes the templates and returns output text keyed by output
// name without writing anything.
func (r *Renderer) RenderText(in Input) (map[string]string, *Report, error) {
	names, err := r.Templates()
	if err != nil {
		return nil, nil, err
	}
	if len(names) == 0 {
		return nil, nil, ErrNoTemplates
	}
	rendered, report, err := r.execute(names, in)
	if err != nil {
		return nil, nil, err
	}
	out := make(map[string]string, len(rendered))
	for name, text := range rendered {
		out[OutputName(name)] = string(text)
	}
	return out, report, nil
}

// execute renders every template in memory, then checks what is left.
func (r *Renderer) execute(names []string, in Input) (map[string][]byte, *Report, error) {
	st := newState(in)
	funcs := st.funcs()

	rendered := make(map[string][]byte, len(names))
	for _, name := range names {
		src, err := fs.ReadFile(r.templates, name)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to read template %s", name)
		}
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(string(src))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to parse template %s", name)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, in); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to render template %s", name)
		}
		rendered[name] = buf.Bytes()
	}

	report := &Report{}
	var leftover []string
	for _, name := range st.remaining.Names() {
		if m, ok := st.remaining[name].(*info.Module); ok && m.Docstring == nil {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		leftover = append(leftover, name)
	}
	if len(leftover) > 0 {
		return nil, nil, errors.WithDetailf(
			errors.Wrapf(ErrUnconsumed, "%s", strings.Join(leftover, ", ")),
			"templates must declare every record; %d left over", len(leftover))
	}
	return rendered, report, nil
}

// state is the dict a render consumes from.
type state struct {
	in        Input
	remaining info.Dict
}

func newState(in Input) *state {
	return &state{
		in:        in,
		remaining: in.Symbols.Clone(),
	}
}

func (s *state) funcs() template.FuncMap {
	return template.FuncMap{
		"declare":       s.declare,
		"declare_all":   s.declareAll,
		"all":           s.all,
		"children":      s.children,
		"FLAVOUR":       func() string { return s.in.Flavour },
		"flavour_const": s.constant,
	}
}

// declare removes one record and returns its declaration.
func (s *state) declare(name string) (string, error) {
	rec, ok := s.remaining[name]
	if !ok {
		return "", errors.Wrapf(ErrUnknownSymbol, "%s", name)
	}
	delete(s.remaining, name)
	return rec.Declare(), nil
}

// declareAll declares names sorted and separated by blank lines. Arguments
// may be names or lists of names.
func (s *state) declareAll(values ...any) (string, error) {
	var names []string
	for _, v := range values {
		switch v := v.(type) {
		case string:
			names = append(names, v)
		case []string:
			names = append(names, v...)
		default:
			return "", errors.Newf("declare_all: expected names, got %T", v)
		}
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		decl, err := s.declare(name)
		if err != nil {
			return "", err
		}
		parts = append(parts, decl)
	}
	return strings.Join(parts, "\n"), nil
}

// children lists the full names directly under parent, sorted. Class
// members are part of their class and never listed.
func (s *state) children(parent string) []string {
	var out []string
	for _, c := range s.in.Symbols.Children(parent) {
		out = append(out, parent+"."+c)
	}
	return out
}

// all renders an __all__ tuple of parent's direct children. It reads the
// input dict rather than what is left, so declaring first does not change it.
func (s *state) all(parent string) string {
	var sb strings.Builder
	sb.WriteString("__all__: tuple[str, ...] = (\n")
	for _, c := range s.in.Symbols.Children(parent) {
		fmt.Fprintf(&sb, "    %q,\n", c)
	}
	sb.WriteString(")\n")
	return sb.String()
}

func (s *state) constant(name string) (int64, error) {
	v, ok := s.in.Constants[name]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownConstant, "%s", name)
	}
	return v, nil
}
