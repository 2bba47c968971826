// Package builder turns an ordered stream of annotation marker invocations
// into a symbol dict.
//
// Markers are stateful: each one applies to whatever scope is currently open,
// so the builder keeps a context stack of open records. Module markers reset
// the stack, declarations push onto it, and markers that need a particular
// scope pop until they find one.
package builder

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mvp-joe/stubgen/internal/cpp"
	"github.com/mvp-joe/stubgen/internal/extract"
	"github.com/mvp-joe/stubgen/internal/info"
	"go.uber.org/zap"
)

// DefaultPrefix is the name prefix shared by every marker.
const DefaultPrefix = "PYUNREALSDK_STUBGEN_"

// nullSuffix marks the variant of a marker that expands to nothing.
const nullSuffix = "_N"

type markerKind int

const (
	markModule markerKind = iota
	markSubmodule
	markDocstring
	markAttr
	markReadonlyProp
	markFunc
	markMethod
	markStaticMethod
	markClassMethod
	markOverload
	markArg
	markPosOnly
	markKwOnly
	markEnum
	markClass
	markDeprecated
	markGeneric
	markNeverMethod
)

type markerSpec struct {
	kind    markerKind
	minArgs int
	maxArgs int // -1 for no limit
}

var markers = map[string]markerSpec{
	"MODULE":        {markModule, 1, 1},
	"SUBMODULE":     {markSubmodule, 2, 2},
	"DOCSTRING":     {markDocstring, 1, 1},
	"ATTR":          {markAttr, 2, 2},
	"READONLY_PROP": {markReadonlyProp, 2, 2},
	"FUNC":          {markFunc, 2, 2},
	"METHOD":        {markMethod, 2, 2},
	"STATICMETHOD":  {markStaticMethod, 2, 2},
	"CLASSMETHOD":   {markClassMethod, 2, 2},
	"OVERLOAD":      {markOverload, 2, 2},
	"ARG":           {markArg, 3, -1},
	"POS_ONLY":      {markPosOnly, 0, 0},
	"KW_ONLY":       {markKwOnly, 0, 0},
	"ENUM":          {markEnum, 1, 1},
	"CLASS":         {markClass, 2, 2},
	"DEPRECATED":    {markDeprecated, 1, 1},
	"GENERIC":       {markGeneric, 1, 1},
	"NEVER_METHOD":  {markNeverMethod, 1, 1},
}

// Builder consumes marker invocations for one file. It is not safe for
// concurrent use; create one per file.
type Builder struct {
	prefix string
	policy DocstringPolicy
	logger *zap.SugaredLogger

	stack   []frame
	symbols info.Dict
	// members holds full names of class members and enum values, which
	// are not dict keys but still collide with other declarations.
	members map[string]bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithPrefix sets the marker name prefix.
func WithPrefix(prefix string) Option {
	return func(b *Builder) {
		b.prefix = prefix
	}
}

// WithDocstringPolicy sets the docstring validation policy.
func WithDocstringPolicy(p DocstringPolicy) Option {
	return func(b *Builder) {
		b.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// New creates an empty Builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		prefix:  DefaultPrefix,
		policy:  DefaultDocstringPolicy(),
		logger:  zap.NewNop().Sugar(),
		symbols: make(info.Dict),
		members: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build consumes every invocation in order and returns the symbol dict. The
// first failure aborts; the returned error is a *MarkerError.
func (b *Builder) Build(invs []cpp.Invocation) (info.Dict, error) {
	for i, inv := range invs {
		if err := b.consume(inv); err != nil {
			return nil, &MarkerError{Invocation: inv, Index: i, Err: err}
		}
	}
	return b.symbols, nil
}

// Consume applies a single invocation. Invocations of macros outside the
// marker prefix are ignored.
func (b *Builder) Consume(inv cpp.Invocation) error {
	if err := b.consume(inv); err != nil {
		return &MarkerError{Invocation: inv, Index: -1, Err: err}
	}
	return nil
}

// Symbols returns the dict built so far.
func (b *Builder) Symbols() info.Dict {
	return b.symbols
}

func (b *Builder) consume(inv cpp.Invocation) error {
	// A misspelled marker still carries the prefix minus its separator.
	if !strings.HasPrefix(inv.Macro, strings.TrimSuffix(b.prefix, "_")) {
		return nil
	}
	name := strings.TrimSuffix(strings.TrimPrefix(inv.Macro, b.prefix), nullSuffix)
	spec, ok := markers[name]
	if !ok {
		return errors.WithHintf(
			errors.Wrapf(ErrUnknownMarker, "%s", inv.Macro),
			"markers under %s must be one of the known kinds", b.prefix)
	}

	args := inv.Args
	if spec.maxArgs == 0 && len(args) == 1 && len(args[0]) == 0 {
		args = nil
	}
	if len(args) < spec.minArgs || (spec.maxArgs >= 0 && len(args) > spec.maxArgs) {
		return errors.Wrapf(ErrMarkerArity, "%s takes %s, got %d", inv.Macro, arity(spec), len(args))
	}

	switch spec.kind {
	case markModule:
		return b.module(args)
	case markSubmodule:
		return b.submodule(args)
	case markDocstring:
		return b.docstring(args)
	case markAttr:
		return b.attr(args)
	case markReadonlyProp:
		return b.readonlyProp(args)
	case markFunc:
		return b.function(args)
	case markMethod:
		return b.method(args, info.Method)
	case markStaticMethod:
		return b.method(args, info.StaticMethod)
	case markClassMethod:
		return b.method(args, info.ClassMethod)
	case markOverload:
		return b.overload(args)
	case markArg:
		return b.arg(args)
	case markPosOnly:
		return b.boundary("/")
	case markKwOnly:
		return b.boundary("*")
	case markEnum:
		return b.enum(args)
	case markClass:
		return b.class(args)
	case markDeprecated:
		return b.deprecated(args)
	case markGeneric:
		return b.generic(args)
	case markNeverMethod:
		// Its expansion carries the real markers.
		return nil
	}
	return nil
}

func arity(s markerSpec) string {
	switch {
	case s.maxArgs < 0:
		return "at least " + strconv.Itoa(s.minArgs)
	case s.minArgs == s.maxArgs:
		return strconv.Itoa(s.minArgs)
	default:
		return strconv.Itoa(s.minArgs) + "-" + strconv.Itoa(s.maxArgs)
	}
}

func (b *Builder) top() (frame, bool) {
	if len(b.stack) == 0 {
		return frame{}, false
	}
	return b.stack[len(b.stack)-1], true
}

// popUntil pops frames until match accepts the top one.
func (b *Builder) popUntil(what string, match func(frame) bool) (frame, error) {
	for len(b.stack) > 0 {
		f := b.stack[len(b.stack)-1]
		if match(f) {
			return f, nil
		}
		b.stack = b.stack[:len(b.stack)-1]
	}
	return frame{}, errors.Wrapf(ErrInvalidContext, "no open %s", what)
}

func (b *Builder) push(f frame) {
	b.stack = append(b.stack, f)
}

func (b *Builder) taken(full string) bool {
	_, ok := b.symbols[full]
	return ok || b.members[full]
}

func duplicate(full string, what string) error {
	return errors.Wrapf(ErrDuplicateSymbol, "%s %s", what, full)
}

func (b *Builder) str(args [][]cpp.Token, idx int) (string, error) {
	s, err := extract.DecodeString(args[idx])
	if err != nil {
		return "", errors.Wrapf(err, "argument %d", idx+1)
	}
	return s, nil
}

// optional decodes an argument that may be left empty.
func (b *Builder) optional(args [][]cpp.Token, idx int) (*string, error) {
	if len(args[idx]) == 0 {
		return nil, nil
	}
	s, err := b.str(args, idx)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (b *Builder) module(args [][]cpp.Token) error {
	name, err := b.str(args, 0)
	if err != nil {
		return err
	}
	return b.openModule(name, "", moduleFrame)
}

func (b *Builder) submodule(args [][]cpp.Token) error {
	outer, err := b.str(args, 0)
	if err != nil {
		return err
	}
	name, err := b.str(args, 1)
	if err != nil {
		return err
	}
	return b.openModule(outer+"."+name, outer, submoduleFrame)
}

func (b *Builder) openModule(full, outer string, tag frameTag) error {
	var mod *info.Module
	switch existing := b.symbols[full].(type) {
	case nil:
		if b.members[full] {
			return duplicate(full, "module")
		}
		mod = &info.Module{Name: full, Outer: outer}
		b.symbols[full] = mod
	case *info.Module:
		mod = existing
	default:
		return errors.Wrapf(ErrDuplicateSymbol, "module %s has the same name as a %T", full, existing)
	}

	b.stack = []frame{{tag: tag, name: full, module: mod}}
	return nil
}

func (b *Builder) docstring(args [][]cpp.Token) error {
	f, ok := b.top()
	if !ok {
		return errors.Wrap(ErrInvalidContext, "docstring with nothing open")
	}
	doc, err := b.str(args, 0)
	if err != nil {
		return err
	}

	slot := f.docstring()
	if *slot != nil {
		// A reopened module may repeat its docstring.
		if f.isModule() && **slot == doc {
			return nil
		}
		return errors.Wrapf(ErrInvalidDocstring, "%s %s already has a docstring", f.tag, f.name)
	}
	if err := b.policy.Check(doc); err != nil {
		return errors.Wrapf(err, "%s %s", f.tag, f.name)
	}
	*slot = &doc
	return nil
}

func (b *Builder) deprecated(args [][]cpp.Token) error {
	return b.setMetadata(args, "deprecation", func(f frame) **string {
		d, _, _ := f.metadata()
		return d
	})
}

func (b *Builder) generic(args [][]cpp.Token) error {
	return b.setMetadata(args, "generic clause", func(f frame) **string {
		_, g, _ := f.metadata()
		return g
	})
}

func (b *Builder) setMetadata(args [][]cpp.Token, what string, slotOf func(frame) **string) error {
	f, ok := b.top()
	if !ok {
		return errors.Wrapf(ErrInvalidContext, "%s with nothing open", what)
	}
	if _, _, ok := f.metadata(); !ok {
		return errors.Wrapf(ErrInvalidContext, "%s on %s %s, expected a class or function", what, f.tag, f.name)
	}
	value, err := b.str(args, 0)
	if err != nil {
		return err
	}

	slot := slotOf(f)
	if *slot != nil {
		return errors.Wrapf(ErrInvalidContext, "%s %s already has a %s", f.tag, f.name, what)
	}
	*slot = &value
	return nil
}

func (b *Builder) attr(args [][]cpp.Token) error {
	name, err := b.str(args, 0)
	if err != nil {
		return err
	}
	hint, err := b.str(args, 1)
	if err != nil {
		return err
	}

	f, err := b.popUntil("module, class or enum", func(f frame) bool {
		return f.tag != funcFrame
	})
	if err != nil {
		return err
	}

	switch f.tag {
	case enumFrame, enumValueFrame:
		return b.enumValue(name)

	case classFrame:
		full := f.name + "." + name
		if b.taken(full) {
			return duplicate(full, "attribute")
		}
		b.members[full] = true
		f.class.Attrs = append(f.class.Attrs, &info.Attribute{Name: name, TypeHint: hint})
		return nil

	default:
		full := f.name + "." + name
		if b.taken(full) {
			return duplicate(full, "attribute")
		}
		b.symbols[full] = &info.Attribute{Name: name, TypeHint: hint}
		return nil
	}
}

func (b *Builder) enumValue(name string) error {
	if f, _ := b.top(); f.tag == enumValueFrame {
		b.stack = b.stack[:len(b.stack)-1]
	}
	f, _ := b.top()

	full := f.name + "." + name
	if b.taken(full) {
		return duplicate(full, "enum value")
	}
	b.members[full] = true

	value := &info.EnumValue{Name: name}
	f.enum.Values = append(f.enum.Values, value)
	b.push(frame{tag: enumValueFrame, name: full, value: value})
	return nil
}

func (b *Builder) readonlyProp(args [][]cpp.Token) error {
	name, err := b.str(args, 0)
	if err != nil {
		return err
	}
	hint, err := b.str(args, 1)
	if err != nil {
		return err
	}

	for {
		f, ok := b.top()
		if !ok || f.tag != funcFrame {
			break
		}
		b.stack = b.stack[:len(b.stack)-1]
	}
	f, ok := b.top()
	if !ok || f.tag != classFrame {
		return errors.Wrap(ErrInvalidContext, "read-only property outside a class")
	}

	full := f.name + "." + name
	if b.taken(full) {
		return duplicate(full, "property")
	}
	b.members[full] = true
	f.class.Attrs = append(f.class.Attrs, &info.Attribute{Name: name, TypeHint: hint, ReadOnly: true})
	return nil
}

// implicitArgs returns the arguments Python passes implicitly for kind.
func implicitArgs(kind info.FuncKind, name string) []*info.Argument {
	switch kind {
	case info.Method:
		if name == "__new__" {
			return []*info.Argument{{Name: "cls"}}
		}
		return []*info.Argument{{Name: "self"}}
	case info.ClassMethod:
		return []*info.Argument{{Name: "cls"}}
	default:
		return nil
	}
}

func (b *Builder) signature(args [][]cpp.Token, kind info.FuncKind) (*info.Function, error) {
	name, err := b.str(args, 0)
	if err != nil {
		return nil, err
	}
	ret, err := b.str(args, 1)
	if err != nil {
		return nil, err
	}
	return &info.Function{Kind: kind, Name: name, Return: ret, Args: implicitArgs(kind, name)}, nil
}

func (b *Builder) function(args [][]cpp.Token) error {
	fn, err := b.signature(args, info.Func)
	if err != nil {
		return err
	}
	f, err := b.popUntil("module", frame.isModule)
	if err != nil {
		return err
	}

	full := f.name + "." + fn.Name
	if b.taken(full) {
		return duplicate(full, "function")
	}
	b.symbols[full] = fn
	b.push(frame{tag: funcFrame, name: full, fn: fn, head: fn})
	return nil
}

func (b *Builder) method(args [][]cpp.Token, kind info.FuncKind) error {
	fn, err := b.signature(args, kind)
	if err != nil {
		return err
	}
	f, err := b.popUntil("class", func(f frame) bool { return f.tag == classFrame })
	if err != nil {
		return err
	}

	full := f.name + "." + fn.Name
	if b.taken(full) {
		return duplicate(full, kind.String())
	}
	b.members[full] = true
	f.class.Methods = append(f.class.Methods, fn)
	b.push(frame{tag: funcFrame, name: full, fn: fn, head: fn})
	return nil
}

func (b *Builder) overload(args [][]cpp.Token) error {
	f, ok := b.top()
	if !ok || f.tag != funcFrame {
		return errors.Wrap(ErrInvalidContext, "overload with no open function")
	}
	fn, err := b.signature(args, f.head.Kind)
	if err != nil {
		return err
	}
	if fn.Name != f.head.Name {
		return errors.Wrapf(ErrInvalidContext, "overload %q does not match open function %q", fn.Name, f.head.Name)
	}

	f.head.Overloads = append(f.head.Overloads, fn)
	b.push(frame{tag: funcFrame, name: f.name, fn: fn, head: f.head})
	return nil
}

func (b *Builder) currentFunction(what string) (*info.Function, error) {
	f, ok := b.top()
	if !ok || f.tag != funcFrame {
		return nil, errors.Wrapf(ErrInvalidContext, "%s with no open function", what)
	}
	return f.fn, nil
}

func (b *Builder) arg(args [][]cpp.Token) error {
	fn, err := b.currentFunction("argument")
	if err != nil {
		return err
	}

	// The name is a pybind "name"_a literal.
	nameToks := cpp.Trim(args[0])
	if n := len(nameToks); n > 0 && nameToks[n-1].Kind == cpp.Ident && nameToks[n-1].Text == "_a" {
		nameToks = nameToks[:n-1]
	}
	name, err := extract.DecodeString(nameToks)
	if err != nil {
		return errors.Wrap(err, "argument 1")
	}
	hint, err := b.str(args, 1)
	if err != nil {
		return err
	}
	def, err := b.optional(args, 2)
	if err != nil {
		return err
	}
	if len(args) > 3 {
		b.logger.Debugw("Ignoring extra marker arguments",
			"function", fn.Name,
			"arg", name,
			"extra", len(args)-3)
	}

	fn.Args = append(fn.Args, &info.Argument{Name: name, TypeHint: &hint, Default: def})
	return nil
}

func (b *Builder) boundary(marker string) error {
	fn, err := b.currentFunction("argument boundary")
	if err != nil {
		return err
	}
	fn.Args = append(fn.Args, &info.Argument{Name: marker})
	return nil
}

func (b *Builder) enum(args [][]cpp.Token) error {
	name, err := b.str(args, 0)
	if err != nil {
		return err
	}
	f, err := b.popUntil("module", frame.isModule)
	if err != nil {
		return err
	}

	full := f.name + "." + name
	if b.taken(full) {
		return duplicate(full, "enum")
	}
	e := &info.Enum{Name: name}
	b.symbols[full] = e
	b.push(frame{tag: enumFrame, name: full, enum: e})
	return nil
}

func (b *Builder) class(args [][]cpp.Token) error {
	name, err := b.str(args, 0)
	if err != nil {
		return err
	}
	super, err := b.optional(args, 1)
	if err != nil {
		return err
	}
	f, err := b.popUntil("module", frame.isModule)
	if err != nil {
		return err
	}

	full := f.name + "." + name
	if b.taken(full) {
		return duplicate(full, "class")
	}
	c := &info.Class{Name: name, SuperClass: super}
	b.symbols[full] = c
	b.push(frame{tag: classFrame, name: full, class: c})
	return nil
}
