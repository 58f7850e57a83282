package change

import (
	"strings"
	"testing"
)

func TestIsMeaningfullyDifferent(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"hello", "hello", false},
		{"hello", "hello world", true},
		{"\u200Bhello", "hello", false},
		{"\uFEFF\u200E<p>hello</p>", "<p>hello</p>", false},
		{"<p>\u200Bhello</p>", "<p>hello</p>", false},
		{"<p>hello</p><p></p>", "<p>hello</p>", false},
		{"<p>hello</p><p>\n\n</p>", "<p>hello</p>", false},
		{"<p>hello</p><p><br></p><p><br/></p>", "<p>hello</p>", false},
		{"<p>a</p><p><br></p><p><br></p><p>b</p>", "<p>a</p><p><br></p><p>b</p>", false},
		{"<p>a</p><p><br></p><p>b</p>", "<p>a</p><p>b</p>", true},
		{"<p><br></p>", "", false},
		{"<ul><li><br></li></ul>", "<ul><li></li></ul>", false},
		{"<p>a</p>\n<p>b</p>", "<p>a</p><p>b</p>", false},
		{"line one\n\n\n\nline two", "line one\n\nline two", false},
		{"line one  \nline two", "line one\nline two", false},
		{"a\r\nb", "a\nb", false},
		{"   \n\n", "", false},
		{"**bold**", "*bold*", true},
	}
	for _, tc := range cases {
		if got := IsMeaningfullyDifferent(tc.a, tc.b); got != tc.want {
			t.Fatalf("IsMeaningfullyDifferent(%q, %q): expected %v, got %v (normalized %q vs %q)",
				tc.a, tc.b, tc.want, got, Normalize(tc.a), Normalize(tc.b))
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"<p></p>\u200Bx",
		"\u200B<p><br></p><p>\u200B</p><p>x</p><p><br></p>",
		"a  \n\n\n\nb\r\n",
		"<ul>\n  <li><br/></li>\n</ul>",
		"",
		strings.Repeat("<p>", 10) + "x",
		strings.Repeat("<p>", 10) + strings.Repeat("</p>", 10) + "x",
		strings.Repeat("<p>", 40) + strings.Repeat("</p>", 40) + "x",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
	if got := Normalize(strings.Repeat("<p>", 40) + strings.Repeat("</p>", 40) + "x"); got != "x" {
		t.Fatalf("expected nested blank paragraphs to collapse, got %q", got)
	}
}

func TestIsEmpty(t *testing.T) {
	for _, s := range []string{"", "  ", "<p></p>", "<p><br></p><p><br></p>", "\u200B", "\n\n"} {
		if !IsEmpty(s) {
			t.Fatalf("IsEmpty(%q): expected true (normalized %q)", s, Normalize(s))
		}
	}
	if IsEmpty("<p>x</p>") {
		t.Fatalf("IsEmpty(<p>x</p>): expected false")
	}
}
