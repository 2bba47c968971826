package cpp

import (
	"strings"
)

// punctuators ordered longest first so the lexer can take the longest match.
var punctuators = []string{
	"%:%:", "...", "<<=", ">>=", "->*", "<=>",
	"##", "->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
	"*=", "/=", "%=", "+=", "-=", "&=", "^=", "|=", "::", ".*", "%:",
}

var stringPrefixes = map[string]bool{
	"L": true, "u": true, "U": true, "u8": true,
	"R": true, "LR": true, "uR": true, "UR": true, "u8R": true,
}

var charPrefixes = map[string]bool{
	"L": true, "u": true, "U": true, "u8": true,
}

// Lex splits source text into preprocessing tokens. Comments become a single
// space, line splices are kept as whitespace so directives can span them.
func Lex(src []byte) []Token {
	s := strings.ReplaceAll(string(src), "\r\n", "\n")
	l := &lexer{src: s, line: 1}
	for l.pos < len(l.src) {
		l.next()
	}
	return l.toks
}

type lexer struct {
	src  string
	pos  int
	line int
	toks []Token
}

func (l *lexer) emit(kind Kind, text string, line int) {
	l.toks = append(l.toks, Token{Kind: kind, Text: text, Line: line})
}

func (l *lexer) peek(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) next() {
	c := l.src[l.pos]
	line := l.line

	switch {
	case c == '\n':
		l.pos++
		l.line++
		l.emit(Newline, "\n", line)

	case c == '\\' && l.peek(1) == '\n':
		l.pos += 2
		l.line++
		l.emit(Whitespace, "\\\n", line)

	case c == ' ' || c == '\t' || c == '\f' || c == '\v' || c == '\r':
		start := l.pos
		for l.pos < len(l.src) && strings.IndexByte(" \t\f\v\r", l.src[l.pos]) >= 0 {
			l.pos++
		}
		l.emit(Whitespace, l.src[start:l.pos], line)

	case c == '/' && l.peek(1) == '/':
		for l.pos < len(l.src) && l.src[l.pos] != '\n' {
			l.pos++
		}
		l.emit(Whitespace, " ", line)

	case c == '/' && l.peek(1) == '*':
		end := strings.Index(l.src[l.pos+2:], "*/")
		var body string
		if end < 0 {
			body = l.src[l.pos:]
			l.pos = len(l.src)
		} else {
			body = l.src[l.pos : l.pos+2+end+2]
			l.pos += 2 + end + 2
		}
		l.line += strings.Count(body, "\n")
		l.emit(Whitespace, " ", line)

	case isIdentStart(c):
		start := l.pos
		for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
			l.pos++
		}
		word := l.src[start:l.pos]
		if l.pos < len(l.src) && l.src[l.pos] == '"' && stringPrefixes[word] {
			if strings.HasSuffix(word, "R") {
				l.rawString(start, line)
			} else {
				l.quoted(start, '"', String, line)
			}
			return
		}
		if l.pos < len(l.src) && l.src[l.pos] == '\'' && charPrefixes[word] {
			l.quoted(start, '\'', Char, line)
			return
		}
		l.emit(Ident, word, line)

	case isDigit(c) || (c == '.' && isDigit(l.peek(1))):
		start := l.pos
		l.pos++
		for l.pos < len(l.src) {
			ch := l.src[l.pos]
			if (ch == '+' || ch == '-') && strings.IndexByte("eEpP", l.src[l.pos-1]) >= 0 {
				l.pos++
				continue
			}
			if ch == '\'' && l.pos+1 < len(l.src) && isIdentChar(l.src[l.pos+1]) {
				l.pos += 2
				continue
			}
			if !isIdentChar(ch) && ch != '.' {
				break
			}
			l.pos++
		}
		l.emit(Number, l.src[start:l.pos], line)

	case c == '"':
		l.quoted(l.pos, '"', String, line)

	case c == '\'':
		l.quoted(l.pos, '\'', Char, line)

	default:
		for _, p := range punctuators {
			if strings.HasPrefix(l.src[l.pos:], p) {
				l.pos += len(p)
				l.emit(Punct, p, line)
				return
			}
		}
		if strings.IndexByte("#()[]{},;:?.+-*/%<>=!~&|^", c) >= 0 {
			l.pos++
			l.emit(Punct, string(c), line)
			return
		}
		l.pos++
		l.emit(Other, string(c), line)
	}
}

// quoted lexes a string or char literal whose opening quote is at l.pos.
// start may point earlier to include an encoding prefix.
func (l *lexer) quoted(start int, quote byte, kind Kind, line int) {
	l.pos++ // opening quote
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		if ch == '\\' && l.pos+1 < len(l.src) {
			if l.src[l.pos+1] == '\n' {
				l.line++
			}
			l.pos += 2
			continue
		}
		if ch == '\n' {
			// Unterminated literal; stop at the end of the line.
			l.emit(Other, l.src[start:l.pos], line)
			return
		}
		l.pos++
		if ch == quote {
			l.emit(kind, l.src[start:l.pos], line)
			return
		}
	}
	l.emit(Other, l.src[start:l.pos], line)
}

// rawString lexes R"delim(...)delim" with the opening quote at l.pos.
func (l *lexer) rawString(start int, line int) {
	open := strings.IndexByte(l.src[l.pos:], '(')
	if open < 0 {
		l.quoted(start, '"', String, line)
		return
	}
	delim := l.src[l.pos+1 : l.pos+open]
	closer := ")" + delim + "\""
	end := strings.Index(l.src[l.pos+open:], closer)
	if end < 0 {
		l.pos = len(l.src)
		l.emit(Other, l.src[start:], line)
		return
	}
	l.pos += open + end + len(closer)
	text := l.src[start:l.pos]
	l.line += strings.Count(text, "\n")
	l.emit(String, text, line)
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
