package extract

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/mvp-joe/stubgen/internal/cpp"
)

// ErrMalformedLiteral indicates tokens that are not a clean string literal.
var ErrMalformedLiteral = errors.New("malformed string literal")

// DecodeString decodes a run of adjacent string literals. Whitespace between
// literals is ignored, anything else is an error.
func DecodeString(toks []cpp.Token) (string, error) {
	var sb strings.Builder
	seen := false
	for _, t := range toks {
		if t.IsSpace() {
			continue
		}
		if t.Kind != cpp.String {
			return "", errors.Wrapf(ErrMalformedLiteral, "unexpected %s token %q", t.Kind, t.Text)
		}
		s, err := decodeLiteral(t.Text)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
		seen = true
	}
	if !seen {
		return "", errors.Wrap(ErrMalformedLiteral, "no string literal")
	}
	return sb.String(), nil
}

func decodeLiteral(lit string) (string, error) {
	quote := strings.IndexByte(lit, '"')
	if quote < 0 || len(lit) < quote+2 || lit[len(lit)-1] != '"' {
		return "", errors.Wrapf(ErrMalformedLiteral, "%q", lit)
	}
	prefix, body := lit[:quote], lit[quote+1:len(lit)-1]

	if strings.HasSuffix(prefix, "R") {
		open := strings.IndexByte(body, '(')
		if open < 0 {
			return "", errors.Wrapf(ErrMalformedLiteral, "raw string without delimiter %q", lit)
		}
		closer := ")" + body[:open]
		if !strings.HasSuffix(body, closer) || len(body) < open+1+len(closer) {
			return "", errors.Wrapf(ErrMalformedLiteral, "unterminated raw string %q", lit)
		}
		return body[open+1 : len(body)-len(closer)], nil
	}

	s, err := unescape(body)
	if err != nil {
		return "", errors.Wrapf(err, "%q", lit)
	}
	return s, nil
}

// unescape decodes C escape sequences. Sequences Go shares with C go through
// strconv.UnquoteChar; the C-only forms are handled here.
func unescape(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}

	var sb strings.Builder
	for len(s) > 0 {
		if s[0] != '\\' {
			_, size := utf8.DecodeRuneInString(s)
			sb.WriteString(s[:size])
			s = s[size:]
			continue
		}
		if len(s) < 2 {
			return "", errors.Wrap(ErrMalformedLiteral, "trailing backslash")
		}

		switch c := s[1]; {
		case c == '\'' || c == '"' || c == '?':
			sb.WriteByte(c)
			s = s[2:]

		case c >= '0' && c <= '7':
			n, v := 1, rune(0)
			for n <= 3 && n < len(s) && s[n] >= '0' && s[n] <= '7' {
				v = v*8 + rune(s[n]-'0')
				n++
			}
			sb.WriteRune(v)
			s = s[n:]

		case c == 'x':
			n := 2
			for n < len(s) && isHex(s[n]) {
				n++
			}
			if n == 2 {
				return "", errors.Wrap(ErrMalformedLiteral, `\x without hex digits`)
			}
			v, err := strconv.ParseUint(s[2:n], 16, 32)
			if err != nil {
				return "", errors.Wrapf(ErrMalformedLiteral, "bad hex escape %q", s[:n])
			}
			sb.WriteRune(rune(v))
			s = s[n:]

		default:
			r, _, tail, err := strconv.UnquoteChar(s, '"')
			if err != nil {
				return "", errors.Wrapf(ErrMalformedLiteral, "bad escape %q", s[:2])
			}
			sb.WriteRune(r)
			s = tail
		}
	}
	return sb.String(), nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
