package web

import (
	"html/template"
	"strings"

	"richsync/internal/config"
	"richsync/internal/markup"
	"richsync/internal/sanitize"
)

// previewer renders DocumentText the way a widget would hand it to the
// editor: through the dialect's codec, then the sanitizer.
type previewer struct {
	codecs map[string]markup.Codec
	san    *sanitize.Sanitizer
}

func newPreviewer(cfg config.Config) (*previewer, error) {
	p := &previewer{
		codecs: map[string]markup.Codec{},
		san: sanitize.New(sanitize.Options{
			Capabilities: cfg.Capabilities,
			MaxBytes:     cfg.MaxDocumentBytes,
		}),
	}
	opts := markup.Options{Capabilities: cfg.Capabilities, Emoji: cfg.Emoji}
	for _, d := range []string{config.DialectMarkdown, config.DialectHTML} {
		c, err := markup.ForDialect(d, opts)
		if err != nil {
			return nil, err
		}
		p.codecs[d] = c
	}
	return p, nil
}

// render never fails: text that cannot be converted is shown escaped.
func (p *previewer) render(dialect, text string) template.HTML {
	text = strings.TrimSpace(text)
	if text == "" {
		return template.HTML("")
	}
	c := p.codecs[dialect]
	if c == nil {
		c = p.codecs[config.DialectMarkdown]
	}
	html, err := c.ToDoc(text)
	if err == nil {
		html, err = p.san.Sanitize(html)
	}
	if err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(text) + "</pre>")
	}
	return template.HTML(html)
}
