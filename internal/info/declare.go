package info

import (
	"sort"
	"strings"
)

const indentUnit = "    "

// formatDocstring wraps a docstring in triple quotes. Multi-line docstrings
// open on their own line so the body keeps its layout.
func formatDocstring(doc *string, indent string) string {
	if doc == nil {
		return ""
	}
	if !strings.Contains(*doc, "\n") {
		return indentLines(`"""`+*doc+`"""`, indent)
	}
	return indentLines("\"\"\"\n"+*doc+`"""`, indent)
}

// indentLines prefixes every line that has non-whitespace content.
func indentLines(s, indent string) string {
	if indent == "" {
		return s
	}
	lines := strings.SplitAfter(s, "\n")
	var sb strings.Builder
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			sb.WriteString(indent)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// pyString quotes s as a Python string literal.
func pyString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

// Declare implements Record.
func (m *Module) Declare() string {
	return formatDocstring(m.Docstring, "")
}

// Declare implements Record.
func (a *Attribute) Declare() string {
	if a.ReadOnly {
		return "@property\ndef " + a.Name + "(self) -> " + a.TypeHint + ": ..."
	}
	return a.Name + ": " + a.TypeHint
}

// Declare renders the argument as it appears in a parameter list.
func (a *Argument) Declare() string {
	out := a.Name
	if a.TypeHint != nil && *a.TypeHint != "" {
		out += ": " + *a.TypeHint
	}
	if a.Default != nil && *a.Default != "" {
		out += " = " + *a.Default
	}
	return out
}

// Declare implements Record. The head of an overload chain renders every
// signature in the chain, each marked @overload.
func (f *Function) Declare() string {
	if len(f.Overloads) == 0 {
		return f.signature(f.Deprecated, f.Generic, false)
	}

	var sb strings.Builder
	sb.WriteString(f.signature(f.Deprecated, f.Generic, true))
	for _, o := range f.Overloads {
		deprecated, generic := o.Deprecated, o.Generic
		if deprecated == nil {
			deprecated = f.Deprecated
		}
		if generic == nil {
			generic = f.Generic
		}
		sb.WriteString(o.signature(deprecated, generic, true))
	}
	return sb.String()
}

func (f *Function) signature(deprecated, generic *string, overload bool) string {
	var sb strings.Builder
	switch f.Kind {
	case StaticMethod:
		sb.WriteString("@staticmethod\n")
	case ClassMethod:
		sb.WriteString("@classmethod\n")
	}
	if overload {
		sb.WriteString("@overload\n")
	}
	if deprecated != nil {
		sb.WriteString("@deprecated(" + pyString(*deprecated) + ")\n")
	}

	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.Declare()
	}
	sb.WriteString("def " + f.Name)
	if generic != nil {
		sb.WriteString(*generic)
	}
	sb.WriteString("(" + strings.Join(args, ", ") + ") -> " + f.Return + ":\n")

	if f.Docstring != nil && *f.Docstring != "" {
		sb.WriteString(formatDocstring(f.Docstring, indentUnit))
		sb.WriteString("\n")
	} else {
		sb.WriteString(indentUnit + "...\n")
	}
	return sb.String()
}

// Declare implements Record.
func (c *Class) Declare() string {
	var sb strings.Builder
	if c.Deprecated != nil {
		sb.WriteString("@deprecated(" + pyString(*c.Deprecated) + ")\n")
	}
	sb.WriteString("class " + c.Name)
	if c.Generic != nil {
		sb.WriteString(*c.Generic)
	}
	if c.SuperClass != nil && *c.SuperClass != "" {
		sb.WriteString("(" + *c.SuperClass + ")")
	}
	sb.WriteString(":\n")

	hasDoc := c.Docstring != nil && *c.Docstring != ""
	if hasDoc {
		sb.WriteString(formatDocstring(c.Docstring, indentUnit))
		sb.WriteString("\n")
	}

	for _, attr := range c.Attrs {
		sb.WriteString(indentLines(attr.Declare(), indentUnit))
		sb.WriteString("\n")
	}
	if len(c.Attrs) > 0 {
		sb.WriteString("\n")
	}

	for _, m := range c.OrderedMethods() {
		sb.WriteString(indentLines(m.Declare(), indentUnit))
	}

	if !hasDoc && len(c.Attrs) == 0 && len(c.Methods) == 0 {
		sb.WriteString(indentUnit + "...\n")
	}
	return sb.String()
}

// OrderedMethods returns the methods in declaration order for a stub:
// __init__, __new__, the remaining dunder methods by name, then everything
// else by name.
func (c *Class) OrderedMethods() []*Function {
	rank := func(name string) int {
		switch {
		case name == "__init__":
			return 0
		case name == "__new__":
			return 1
		case strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__"):
			return 2
		default:
			return 3
		}
	}

	out := append([]*Function(nil), c.Methods...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i].Name), rank(out[j].Name)
		if ri != rj {
			return ri < rj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Declare renders one enum member.
func (v *EnumValue) Declare() string {
	out := v.Name + " = ..."
	if v.Docstring != nil && *v.Docstring != "" {
		out += "\n" + formatDocstring(v.Docstring, "")
	}
	return out
}

// Declare implements Record.
func (e *Enum) Declare() string {
	var sb strings.Builder
	sb.WriteString("class " + e.Name + "(Enum):\n")
	hasDoc := e.Docstring != nil && *e.Docstring != ""
	if hasDoc {
		sb.WriteString(formatDocstring(e.Docstring, indentUnit))
		sb.WriteString("\n")
	}

	if len(e.Values) == 0 {
		if !hasDoc {
			sb.WriteString(indentUnit + "...\n")
		}
		return sb.String()
	}

	sb.WriteString("\n")
	for _, v := range e.Values {
		sb.WriteString(indentLines(v.Declare(), indentUnit))
		sb.WriteString("\n")
	}
	return sb.String()
}
