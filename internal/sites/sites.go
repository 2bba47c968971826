// Package sites locates marker call sites in unexpanded native sources.
//
// Line numbers do not survive the expansion passes, so the pipeline uses
// these sites to point a failing marker back at the line it most likely came
// from. The scan uses the tree-sitter C grammar, which recovers well enough
// from C++ syntax to find call expressions.
package sites

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mvp-joe/stubgen/internal/cpp"
	sitter "github.com/tree-sitter/go-tree-sitter"
	c "github.com/tree-sitter/tree-sitter-c/bindings/go"
)

// argWindow bounds how much source after a marker name is lexed to find its
// first argument.
const argWindow = 4096

// Site is one marker call in source.
type Site struct {
	Macro    string `json:"macro" yaml:"macro"`
	Marker   string `json:"marker" yaml:"marker"`
	Line     int    `json:"line" yaml:"line"`
	Column   int    `json:"column" yaml:"column"`
	FirstArg string `json:"first_arg,omitempty" yaml:"first_arg,omitempty"`
}

// Locator finds calls to macros starting with a prefix.
type Locator struct {
	prefix   string
	language *sitter.Language
}

// New creates a locator for the given marker prefix.
func New(prefix string) *Locator {
	return &Locator{
		prefix:   prefix,
		language: sitter.NewLanguage(c.Language()),
	}
}

// ScanFile reads and scans a source file.
func (l *Locator) ScanFile(ctx context.Context, path string) ([]Site, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return l.Scan(ctx, source)
}

// Scan returns every marker call in source ordered by position. Macro
// definitions and conditionals naming a marker are not calls.
func (l *Locator) Scan(ctx context.Context, source []byte) ([]Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(l.language); err != nil {
		return nil, errors.Wrap(err, "failed to load C grammar")
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, errors.New("failed to parse source")
	}
	defer tree.Close()

	var sites []Site
	walkTree(tree.RootNode(), func(n *sitter.Node) bool {
		if strings.HasPrefix(n.Kind(), "preproc_") && n.Kind() != "preproc_if" &&
			n.Kind() != "preproc_ifdef" && n.Kind() != "preproc_else" && n.Kind() != "preproc_elif" {
			return false
		}
		if n.Kind() != "identifier" {
			return true
		}
		name := extractNodeText(n, source)
		if !strings.HasPrefix(name, l.prefix) || inCondition(n) {
			return false
		}
		first, ok := firstArgument(source[n.EndByte():])
		if !ok {
			return false
		}
		sites = append(sites, Site{
			Macro:    name,
			Marker:   strings.TrimPrefix(name, l.prefix),
			Line:     int(n.StartPosition().Row) + 1,
			Column:   int(n.StartPosition().Column) + 1,
			FirstArg: first,
		})
		return false
	})

	sort.SliceStable(sites, func(i, j int) bool {
		if sites[i].Line != sites[j].Line {
			return sites[i].Line < sites[j].Line
		}
		return sites[i].Column < sites[j].Column
	})
	return sites, nil
}

// inCondition reports whether n is the condition or name of a conditional
// directive rather than code inside one of its branches.
func inCondition(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil {
		return false
	}
	switch parent.Kind() {
	case "preproc_ifdef", "preproc_if", "preproc_elif", "preproc_defined":
		return true
	}
	return false
}

// firstArgument lexes the text following a macro name. It returns false when
// the name is not followed by a parenthesised argument list.
func firstArgument(rest []byte) (string, bool) {
	if len(rest) > argWindow {
		rest = rest[:argWindow]
	}
	toks := cpp.Lex(rest)

	i := 0
	for i < len(toks) && toks[i].IsSpace() {
		i++
	}
	if i >= len(toks) || toks[i].Text != "(" {
		return "", false
	}

	var arg []cpp.Token
	depth := 0
	for _, t := range toks[i+1:] {
		if t.Kind == cpp.Punct {
			switch t.Text {
			case "(":
				depth++
			case ")":
				if depth == 0 {
					return cpp.Text(cpp.Trim(arg)), true
				}
				depth--
			case ",":
				if depth == 0 {
					return cpp.Text(cpp.Trim(arg)), true
				}
			}
		}
		if t.Kind == cpp.Newline {
			t = cpp.Token{Kind: cpp.Whitespace, Text: " "}
		}
		arg = append(arg, t)
	}
	return cpp.Text(cpp.Trim(arg)), true
}

// Find returns the sites of marker whose first argument is firstArg. An
// empty firstArg matches every site of the marker.
func Find(sites []Site, marker, firstArg string) []Site {
	var out []Site
	for _, s := range sites {
		if s.Marker != marker && s.Macro != marker {
			continue
		}
		if firstArg != "" && s.FirstArg != firstArg {
			continue
		}
		out = append(out, s)
	}
	return out
}

// extractNodeText extracts the text content of a tree-sitter node.
func extractNodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}

// walkTree recursively walks a tree-sitter tree and calls the visitor for each node.
func walkTree(node *sitter.Node, visitor func(*sitter.Node) bool) {
	if node == nil {
		return
	}

	if !visitor(node) {
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walkTree(node.Child(uint(i)), visitor)
	}
}
