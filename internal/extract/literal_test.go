package extract

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/mvp-joe/stubgen/internal/cpp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for DecodeString:
// - Plain, escaped and adjacent literals decode and concatenate
// - Whitespace and comments between literals are ignored
// - Encoding prefixes and raw strings are accepted
// - C-only escapes (short octal, \?, long \x) decode
// - Non-string tokens and empty input are ErrMalformedLiteral

func TestDecodeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "plain", src: `"hello"`, want: "hello"},
		{name: "empty", src: `""`, want: ""},
		{name: "escapes", src: `"a\tb\n\"c\" \\ \'d\'"`, want: "a\tb\n\"c\" \\ 'd'"},
		{name: "adjacent", src: "\"one\\n\"  /* gap */\n  \"two\"", want: "one\ntwo"},
		{name: "prefixes", src: `u8"x" L"y" u"z" U"w"`, want: "xyzw"},
		{name: "raw", src: `R"doc(keep \n "as is")doc"`, want: `keep \n "as is"`},
		{name: "raw empty", src: `R"()"`, want: ""},
		{name: "octal", src: `"\0\101\60a"`, want: "\x00A0a"},
		{name: "question mark", src: `"what\?"`, want: "what?"},
		{name: "hex", src: `"\x41\x0042"`, want: "AB"},
		{name: "unicode", src: `"é café \U0001F600"`, want: "é café 😀"},
		{name: "utf8 passthrough", src: `"naïve"`, want: "naïve"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeString(cpp.Lex([]byte(tt.src)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeString_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{name: "identifier", src: `"name"_a`},
		{name: "number", src: `42`},
		{name: "char literal", src: `'c'`},
		{name: "nothing", src: ``},
		{name: "only whitespace", src: "  \n "},
		{name: "bad escape", src: `"\q"`},
		{name: "hex without digits", src: `"\xg"`},
		{name: "unterminated", src: `"open`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeString(cpp.Lex([]byte(tt.src)))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedLiteral), "got %v", err)
		})
	}
}
