package cpp

import "strings"

// Kind classifies a lexical token.
type Kind int

const (
	// Whitespace covers spaces, tabs, comments and line splices.
	Whitespace Kind = iota
	Newline
	Ident
	Number
	String
	Char
	Punct
	Other
)

func (k Kind) String() string {
	switch k {
	case Whitespace:
		return "whitespace"
	case Newline:
		return "newline"
	case Ident:
		return "ident"
	case Number:
		return "number"
	case String:
		return "string"
	case Char:
		return "char"
	case Punct:
		return "punct"
	default:
		return "other"
	}
}

// Token is a single preprocessing token.
type Token struct {
	Kind Kind
	Text string
	Line int

	// hide lists the macros that may not expand this token again.
	hide []string
}

// IsSpace reports whether the token is whitespace or a newline.
func (t Token) IsSpace() bool {
	return t.Kind == Whitespace || t.Kind == Newline
}

func (t Token) hidden(name string) bool {
	for _, h := range t.hide {
		if h == name {
			return true
		}
	}
	return false
}

func (t Token) withHide(hide []string, name string, line int) Token {
	out := t
	out.Line = line
	merged := make([]string, 0, len(hide)+len(t.hide)+1)
	merged = append(merged, hide...)
	merged = append(merged, t.hide...)
	merged = append(merged, name)
	out.hide = merged
	return out
}

// Invocation is one function-like macro call observed during expansion.
// Args hold the raw, unexpanded argument tokens with surrounding whitespace
// trimmed.
type Invocation struct {
	Macro string
	Args  [][]Token
	Line  int
}

// Macro is a macro definition.
type Macro struct {
	Name     string
	Params   []string
	FuncLike bool
	Variadic bool
	Body     []Token
}

// Text joins the token texts of a sequence.
func Text(toks []Token) string {
	var sb strings.Builder
	for _, t := range toks {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// Trim drops leading and trailing whitespace tokens.
func Trim(toks []Token) []Token {
	start, end := 0, len(toks)
	for start < end && toks[start].IsSpace() {
		start++
	}
	for end > start && toks[end-1].IsSpace() {
		end--
	}
	return toks[start:end]
}
