package builder

import "github.com/mvp-joe/stubgen/internal/info"

// frameTag identifies which record a frame holds.
type frameTag int

const (
	moduleFrame frameTag = iota
	submoduleFrame
	classFrame
	enumFrame
	enumValueFrame
	funcFrame
)

func (t frameTag) String() string {
	switch t {
	case moduleFrame:
		return "module"
	case submoduleFrame:
		return "submodule"
	case classFrame:
		return "class"
	case enumFrame:
		return "enum"
	case enumValueFrame:
		return "enum value"
	default:
		return "function"
	}
}

// frame is one open scope on the context stack. Exactly one record pointer
// is set, matching tag. For functions, head is the overload chain head and
// equals fn unless fn is an overload sibling.
type frame struct {
	tag  frameTag
	name string

	module *info.Module
	class  *info.Class
	enum   *info.Enum
	value  *info.EnumValue
	fn     *info.Function
	head   *info.Function
}

func (f frame) isModule() bool {
	return f.tag == moduleFrame || f.tag == submoduleFrame
}

// docstring returns the docstring slot of the frame's record.
func (f frame) docstring() **string {
	switch f.tag {
	case moduleFrame, submoduleFrame:
		return &f.module.Docstring
	case classFrame:
		return &f.class.Docstring
	case enumFrame:
		return &f.enum.Docstring
	case enumValueFrame:
		return &f.value.Docstring
	default:
		return &f.fn.Docstring
	}
}

// metadata returns the deprecated and generic slots of a class or function
// frame. Overload siblings share their chain head's slots.
func (f frame) metadata() (deprecated, generic **string, ok bool) {
	switch f.tag {
	case classFrame:
		return &f.class.Deprecated, &f.class.Generic, true
	case funcFrame:
		return &f.head.Deprecated, &f.head.Generic, true
	default:
		return nil, nil, false
	}
}
