package richdoc

import (
	"fmt"
	"html"
	"strconv"
	"strings"
)

// Node types.
const (
	TypeDoc            = "doc"
	TypeParagraph      = "paragraph"
	TypeHeading        = "heading"
	TypeBulletList     = "bulletList"
	TypeOrderedList    = "orderedList"
	TypeListItem       = "listItem"
	TypeBlockquote     = "blockquote"
	TypeCodeBlock      = "codeBlock"
	TypeHorizontalRule = "horizontalRule"
	TypeTable          = "table"
	TypeTableRow       = "tableRow"
	TypeTableCell      = "tableCell"
	TypeTableHeader    = "tableHeader"
	TypeText           = "text"
	TypeHardBreak      = "hardBreak"
)

// Mark types.
const (
	MarkBold      = "bold"
	MarkItalic    = "italic"
	MarkUnderline = "underline"
	MarkStrike    = "strike"
	MarkCode      = "code"
	MarkLink      = "link"
)

// Node is a node in the document tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is a formatting mark on a text run.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

func (n *Node) attrString(k string) string {
	if n == nil || n.Attrs == nil {
		return ""
	}
	v, _ := n.Attrs[k].(string)
	return v
}

func (n *Node) attrInt(k string, def int) int {
	if n == nil || n.Attrs == nil {
		return def
	}
	switch v := n.Attrs[k].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (n *Node) attrBool(k string) (bool, bool) {
	if n == nil || n.Attrs == nil {
		return false, false
	}
	v, ok := n.Attrs[k].(bool)
	return v, ok
}

// HTML renders the tree in the compact form an editor surface holds: no
// newlines between tags, empty blocks carrying a <br>.
func (n *Node) HTML() string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	renderNode(&b, n)
	return b.String()
}

// PlainText returns the text of the document, one line per block.
func (n *Node) PlainText() string {
	if n == nil {
		return ""
	}
	var lines []string
	var cur strings.Builder
	var walk func(*Node)
	walk = func(x *Node) {
		switch x.Type {
		case TypeText:
			cur.WriteString(x.Text)
			return
		case TypeHardBreak:
			lines = append(lines, cur.String())
			cur.Reset()
			return
		}
		for _, c := range x.Content {
			walk(c)
		}
		if isBlock(x.Type) && cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
		}
	}
	walk(n)
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return strings.Join(lines, "\n")
}

func isBlock(t string) bool {
	switch t {
	case TypeText, TypeHardBreak:
		return false
	}
	return true
}

func renderNode(b *strings.Builder, n *Node) {
	switch n.Type {
	case TypeDoc:
		renderContent(b, n.Content)
	case TypeParagraph:
		renderBlock(b, "p", "", n)
	case TypeHeading:
		level := n.attrInt("level", 1)
		if level < 1 || level > 6 {
			level = 1
		}
		renderBlock(b, "h"+strconv.Itoa(level), "", n)
	case TypeBulletList:
		renderContainer(b, "ul", "", n)
	case TypeOrderedList:
		attrs := ""
		if start := n.attrInt("start", 1); start != 1 {
			attrs = fmt.Sprintf(` start="%d"`, start)
		}
		renderContainer(b, "ol", attrs, n)
	case TypeListItem:
		b.WriteString("<li>")
		if checked, ok := n.attrBool("checked"); ok {
			if checked {
				b.WriteString(`<input checked="" disabled="" type="checkbox"> `)
			} else {
				b.WriteString(`<input disabled="" type="checkbox"> `)
			}
		}
		if len(n.Content) == 0 {
			b.WriteString("<br>")
		}
		renderContent(b, n.Content)
		b.WriteString("</li>")
	case TypeBlockquote:
		renderContainer(b, "blockquote", "", n)
	case TypeCodeBlock:
		b.WriteString("<pre><code>")
		b.WriteString(html.EscapeString(textOf(n)))
		b.WriteString("</code></pre>")
	case TypeHorizontalRule:
		b.WriteString("<hr>")
	case TypeTable:
		renderContainer(b, "table", "", n)
	case TypeTableRow:
		renderContainer(b, "tr", "", n)
	case TypeTableCell:
		renderContainer(b, "td", alignAttr(n), n)
	case TypeTableHeader:
		renderContainer(b, "th", alignAttr(n), n)
	case TypeText:
		renderText(b, n)
	case TypeHardBreak:
		b.WriteString("<br>")
	default:
		renderContent(b, n.Content)
	}
}

func renderContent(b *strings.Builder, content []*Node) {
	for _, c := range content {
		if c != nil {
			renderNode(b, c)
		}
	}
}

// renderBlock writes a textblock; an empty one gets a <br> so it keeps its
// line height in the editor.
func renderBlock(b *strings.Builder, tag, attrs string, n *Node) {
	b.WriteString("<" + tag + classAttr(n) + attrs + ">")
	if len(n.Content) == 0 {
		b.WriteString("<br>")
	}
	renderContent(b, n.Content)
	b.WriteString("</" + tag + ">")
}

func renderContainer(b *strings.Builder, tag, attrs string, n *Node) {
	b.WriteString("<" + tag + attrs + ">")
	renderContent(b, n.Content)
	b.WriteString("</" + tag + ">")
}

func classAttr(n *Node) string {
	if c := n.attrString("class"); c != "" {
		return ` class="` + html.EscapeString(c) + `"`
	}
	return ""
}

func alignAttr(n *Node) string {
	if a := n.attrString("align"); a != "" {
		return ` style="text-align:` + html.EscapeString(a) + `"`
	}
	return ""
}

func renderText(b *strings.Builder, n *Node) {
	if n.Text == "" {
		return
	}
	out := html.EscapeString(n.Text)
	// Marks are stored outermost first.
	for i := len(n.Marks) - 1; i >= 0; i-- {
		m := n.Marks[i]
		switch m.Type {
		case MarkBold:
			out = "<strong>" + out + "</strong>"
		case MarkItalic:
			out = "<em>" + out + "</em>"
		case MarkUnderline:
			out = "<u>" + out + "</u>"
		case MarkStrike:
			out = "<s>" + out + "</s>"
		case MarkCode:
			out = "<code>" + out + "</code>"
		case MarkLink:
			href, _ := m.Attrs["href"].(string)
			out = `<a href="` + html.EscapeString(href) + `">` + out + "</a>"
		}
	}
	b.WriteString(out)
}

func textOf(n *Node) string {
	if n.Type == TypeText {
		return n.Text
	}
	var b strings.Builder
	for _, c := range n.Content {
		b.WriteString(textOf(c))
	}
	return b.String()
}
