package runcode

import (
	"context"
	"testing"
)

func TestQuoteEscapes(t *testing.T) {
	cases := map[string]string{
		"plain":       `"plain"`,
		`a"b\c`:       `"a\"b\\c"`,
		"line\nnext":  `"line\nnext"`,
		"\x00" + "1":  `"\0001"`,
		"\xff":        `"\255"`,
		"a\u200bb":    `"a\226\128\139b"`,
		"100% \x7f":   `"100% \127"`,
		"tab\tcarr\r": `"tab\tcarr\r"`,
	}
	for in, want := range cases {
		if got := Quote(in); got != want {
			t.Fatalf("Quote(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestQuotedLiteralEvaluatesBack(t *testing.T) {
	e := New(nil)
	ctx := context.Background()
	for _, s := range []string{"a\u200bb", "tab\there", "100%", "\x01\x7f", "кириллица", `q"\`, "\xff"} {
		if _, err := e.Eval(ctx, "x = "+Quote(s)); err != nil {
			t.Fatalf("eval literal for %q: %v", s, err)
		}
		out, err := e.Eval(ctx, "x")
		if err != nil {
			t.Fatalf("read literal for %q: %v", s, err)
		}
		if out != s {
			t.Fatalf("literal for %q evaluated to %q", s, out)
		}
	}
}
