package markup

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"richsync/internal/config"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/strikethrough"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
)

// Task checkboxes have no markdown-writer support, so they are swapped for
// plain-word markers before conversion and restored afterwards. Words are
// never escaped by the writer.
const (
	taskCheckedMarker   = "richsynctaskchecked"
	taskUncheckedMarker = "richsynctaskopen"
)

var (
	checkboxRe   = regexp.MustCompile(`<input\b[^>]*\btype="checkbox"[^>]*>`)
	checkedRe    = regexp.MustCompile(`\bchecked\b`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

type Markdown struct {
	md   goldmark.Markdown
	conv *converter.Converter
}

func NewMarkdown(opts Options) *Markdown {
	caps := opts.Capabilities
	if caps == nil {
		caps = config.AllCapabilities()
	}

	var exts []goldmark.Extender
	if caps.Has(config.CapTable) {
		exts = append(exts, extension.Table)
	}
	if caps.Has(config.CapStrike) {
		exts = append(exts, extension.Strikethrough)
	}
	if caps.Has(config.CapTask) {
		exts = append(exts, extension.TaskList)
	}
	if caps.Has(config.CapLink) {
		exts = append(exts, extension.Linkify)
	}
	if opts.Emoji {
		exts = append(exts, emoji.Emoji)
	}

	plugins := []converter.Plugin{
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(
			commonmark.WithStrongDelimiter("**"),
			commonmark.WithEmDelimiter("*"),
			commonmark.WithBulletListMarker("-"),
		),
	}
	if caps.Has(config.CapStrike) {
		plugins = append(plugins, strikethrough.NewStrikethroughPlugin())
	}
	if caps.Has(config.CapTable) {
		plugins = append(plugins, table.NewTablePlugin())
	}

	return &Markdown{
		// Raw HTML passthrough stays disabled: html.WithUnsafe() is not set.
		md:   goldmark.New(goldmark.WithExtensions(exts...)),
		conv: converter.NewConverter(converter.WithPlugins(plugins...)),
	}
}

func (m *Markdown) Name() string { return config.DialectMarkdown }

func (m *Markdown) ToDoc(text string) (out string, err error) {
	defer guard("markdown to html", &err)

	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	var b bytes.Buffer
	if err := m.md.Convert([]byte(text), &b); err != nil {
		return "", fmt.Errorf("markup: render markdown: %w", err)
	}
	return b.String(), nil
}

func (m *Markdown) ToText(docHTML string) (out string, err error) {
	defer guard("html to markdown", &err)

	if strings.TrimSpace(docHTML) == "" {
		return "", nil
	}
	src := checkboxRe.ReplaceAllStringFunc(docHTML, func(tag string) string {
		if checkedRe.MatchString(tag) {
			return taskCheckedMarker + " "
		}
		return taskUncheckedMarker + " "
	})
	md, err := m.conv.ConvertString(src)
	if err != nil {
		return "", fmt.Errorf("markup: convert html: %w", err)
	}
	md = strings.ReplaceAll(md, taskCheckedMarker+"  ", "[x] ")
	md = strings.ReplaceAll(md, taskCheckedMarker+" ", "[x] ")
	md = strings.ReplaceAll(md, taskUncheckedMarker+"  ", "[ ] ")
	md = strings.ReplaceAll(md, taskUncheckedMarker+" ", "[ ] ")
	md = blankLinesRe.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md), nil
}
