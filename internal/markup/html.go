package markup

import (
	"regexp"
	"strings"

	"richsync/internal/config"
	"richsync/internal/sanitize"
)

var (
	interTagSpaceRe = regexp.MustCompile(`>\s*\n\s*<`)
	emptyParaRe     = regexp.MustCompile(`<p>\r?\n*</p>`)
	emptyItemRe     = regexp.MustCompile(`<li>(?:<p>\r?\n*</p>)?</li>`)
	preBlockRe      = regexp.MustCompile(`(?is)<pre[\s>].*?</pre>`)
	paraRe          = regexp.MustCompile(`(?s)<p((?:\s[^>]*)?)>(.*?)</p>`)
	brRe            = regexp.MustCompile(`<br\s*/?>`)
	textNewlineRe   = regexp.MustCompile(`[ \t]*\r?\n\s*`)
	edgeNewlineRe   = regexp.MustCompile(`^\s*\n\s*|\s*\n\s*$`)
	tagRe           = regexp.MustCompile(`<(/?)([a-zA-Z][a-zA-Z0-9]*)[^>]*>`)
)

var voidElements = map[string]bool{"br": true, "hr": true, "img": true, "input": true, "wbr": true}

// HTML is the Quill dialect: DocumentText is itself (sanitized) HTML.
type HTML struct{}

func NewHTML() *HTML { return &HTML{} }

func (h *HTML) Name() string { return config.DialectHTML }

// ToDoc shapes stored HTML the way the editor renders it: no formatting
// newlines, blank lines as <p><br></p>, and a line break inside a paragraph
// starting a new paragraph. Preformatted blocks are left alone.
func (h *HTML) ToDoc(text string) (out string, err error) {
	defer guard("html to editor", &err)

	text = strings.TrimSpace(text)
	return outsidePre(text, func(s string) string {
		s = edgeNewlineRe.ReplaceAllString(s, "")
		s = interTagSpaceRe.ReplaceAllString(s, "><")
		s = emptyItemRe.ReplaceAllString(s, "<li><br></li>")
		s = emptyParaRe.ReplaceAllString(s, "<p><br></p>")
		s = paraRe.ReplaceAllStringFunc(s, splitBreaks)
		return textNewlineRe.ReplaceAllString(s, " ")
	}), nil
}

// outsidePre applies fn to every stretch of s that is not a <pre> block.
func outsidePre(s string, fn func(string) string) string {
	locs := preBlockRe.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return fn(s)
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(fn(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(fn(s[last:]))
	return b.String()
}

// splitBreaks turns <p>a<br>b</p> into <p>a</p><p>b</p>. The editor has no
// line break inside a block. A paragraph whose break sits inside inline
// markup is kept as it is.
func splitBreaks(para string) string {
	m := paraRe.FindStringSubmatch(para)
	attrs, inner := m[1], m[2]
	parts := brRe.Split(inner, -1)
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) < 2 {
		return para
	}
	for _, part := range parts {
		if !balanced(part) {
			return para
		}
	}
	var b strings.Builder
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			part = "<br>"
		}
		b.WriteString("<p" + attrs + ">" + part + "</p>")
	}
	return b.String()
}

func balanced(fragment string) bool {
	depth := 0
	for _, m := range tagRe.FindAllStringSubmatch(fragment, -1) {
		if voidElements[strings.ToLower(m[2])] {
			continue
		}
		if m[1] == "/" {
			depth--
			if depth < 0 {
				return false
			}
			continue
		}
		depth++
	}
	return depth == 0
}

// ToText takes what the editor holds and drops what it adds on its own.
func (h *HTML) ToText(docHTML string) (out string, err error) {
	defer guard("editor to html", &err)

	docHTML = strings.TrimSpace(docHTML)
	docHTML = interTagSpaceRe.ReplaceAllString(docHTML, "><")
	return sanitize.StripNoise(docHTML), nil
}
