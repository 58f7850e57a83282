package web

import (
	"strings"
	"testing"

	"richsync/internal/config"
)

func TestPreview_RendersThroughCodecAndSanitizer(t *testing.T) {
	cfg := config.Default()
	caps, err := config.ParseCapabilities("bold,italic")
	if err != nil {
		t.Fatalf("caps: %v", err)
	}
	cfg.Capabilities = caps
	p, err := newPreviewer(cfg)
	if err != nil {
		t.Fatalf("newPreviewer: %v", err)
	}

	cases := []struct {
		name, dialect, in string
		want, absent      []string
	}{
		{"markdown", config.DialectMarkdown, "*hi* **there**", []string{"<em>hi</em>", "<strong>there</strong>"}, nil},
		{"disabled heading", config.DialectMarkdown, "# Title", []string{"Title"}, []string{"<h1>"}},
		{"html script", config.DialectHTML, "<p>ok<script>x()</script></p>", []string{"<p>ok</p>"}, []string{"script"}},
		{"unknown dialect falls back", "rtf", "*x*", []string{"<em>x</em>"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := string(p.render(tc.dialect, tc.in))
			for _, w := range tc.want {
				if !strings.Contains(got, w) {
					t.Fatalf("expected %q in %q", w, got)
				}
			}
			for _, a := range tc.absent {
				if strings.Contains(got, a) {
					t.Fatalf("expected no %q in %q", a, got)
				}
			}
		})
	}

	if got := p.render(config.DialectMarkdown, "  \n"); got != "" {
		t.Fatalf("expected empty preview, got %q", got)
	}
}
