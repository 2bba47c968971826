// Package info defines the symbol records extracted from annotation markers
// and how each one declares itself in a Python stub.
package info

// Record is one entry of the symbol dict. The set of implementations is closed.
type Record interface {
	// Declare renders the record as stub source using only its own fields.
	Declare() string

	record()
}

// Dict maps dotted full names to records.
type Dict map[string]Record

// FuncKind distinguishes plain functions from the method flavours.
type FuncKind int

const (
	Func FuncKind = iota
	Method
	StaticMethod
	ClassMethod
)

func (k FuncKind) String() string {
	switch k {
	case Method:
		return "method"
	case StaticMethod:
		return "staticmethod"
	case ClassMethod:
		return "classmethod"
	default:
		return "function"
	}
}

// MarshalText implements encoding.TextMarshaler for dumps.
func (k FuncKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Module is a module or submodule. Outer is set for submodules, Name is
// always the full dotted name.
type Module struct {
	Name      string  `json:"name" yaml:"name"`
	Outer     string  `json:"outer,omitempty" yaml:"outer,omitempty"`
	Docstring *string `json:"docstring,omitempty" yaml:"docstring,omitempty"`
}

// Attribute is a module or class attribute. ReadOnly attributes are only
// produced inside classes.
type Attribute struct {
	Name     string `json:"name" yaml:"name"`
	TypeHint string `json:"type_hint" yaml:"type_hint"`
	ReadOnly bool   `json:"readonly,omitempty" yaml:"readonly,omitempty"`
}

// Argument is a function argument. TypeHint is nil only for the implicit
// self/cls argument and for the "/" and "*" boundary markers.
type Argument struct {
	Name     string  `json:"name" yaml:"name"`
	TypeHint *string `json:"type_hint,omitempty" yaml:"type_hint,omitempty"`
	Default  *string `json:"default,omitempty" yaml:"default,omitempty"`
}

// Function is a function or method. Overloads is only populated on the head
// of an overload chain.
type Function struct {
	Kind       FuncKind    `json:"kind" yaml:"kind"`
	Name       string      `json:"name" yaml:"name"`
	Return     string      `json:"return" yaml:"return"`
	Args       []*Argument `json:"args" yaml:"args"`
	Docstring  *string     `json:"docstring,omitempty" yaml:"docstring,omitempty"`
	Deprecated *string     `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
	Generic    *string     `json:"generic,omitempty" yaml:"generic,omitempty"`
	Overloads  []*Function `json:"overloads,omitempty" yaml:"overloads,omitempty"`
}

// Class is a class with its attributes and methods.
type Class struct {
	Name       string       `json:"name" yaml:"name"`
	SuperClass *string      `json:"super_class,omitempty" yaml:"super_class,omitempty"`
	Docstring  *string      `json:"docstring,omitempty" yaml:"docstring,omitempty"`
	Deprecated *string      `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
	Generic    *string      `json:"generic,omitempty" yaml:"generic,omitempty"`
	Attrs      []*Attribute `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Methods    []*Function  `json:"methods,omitempty" yaml:"methods,omitempty"`
}

// EnumValue is one member of an Enum.
type EnumValue struct {
	Name      string  `json:"name" yaml:"name"`
	Docstring *string `json:"docstring,omitempty" yaml:"docstring,omitempty"`
}

// Enum is an enum class.
type Enum struct {
	Name      string       `json:"name" yaml:"name"`
	Docstring *string      `json:"docstring,omitempty" yaml:"docstring,omitempty"`
	Values    []*EnumValue `json:"values,omitempty" yaml:"values,omitempty"`
}

func (*Module) record()    {}
func (*Attribute) record() {}
func (*Function) record()  {}
func (*Class) record()     {}
func (*Enum) record()      {}

// Str returns a pointer to s, for optional fields.
func Str(s string) *string {
	return &s
}
