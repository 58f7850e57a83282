package richdoc

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parse builds a document tree from an HTML fragment. Unknown elements are
// transparent (their children are kept); inline content found where a block
// is expected is wrapped in a paragraph, as an editor surface would.
func Parse(src string) (*Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), ctx)
	if err != nil {
		return nil, fmt.Errorf("richdoc: parse html: %w", err)
	}
	doc := &Node{Type: TypeDoc}
	p := &parser{}
	for _, n := range nodes {
		p.block(doc, n)
	}
	p.closeParagraph(doc)
	return doc, nil
}

type parser struct {
	// open is the implicit paragraph collecting stray inline content at the
	// current block level.
	open *Node
}

func (p *parser) closeParagraph(parent *Node) {
	if p.open == nil {
		return
	}
	if len(p.open.Content) > 0 && !whitespaceOnly(p.open) {
		parent.Content = append(parent.Content, p.open)
	}
	p.open = nil
}

func (p *parser) implicitParagraph(parent *Node) *Node {
	if p.open == nil {
		p.open = &Node{Type: TypeParagraph}
	}
	return p.open
}

// block handles n where block content is expected.
func (p *parser) block(parent *Node, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return
		}
		inline(p.implicitParagraph(parent), n, nil)
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.DataAtom {
	case atom.P:
		p.closeParagraph(parent)
		para := &Node{Type: TypeParagraph}
		if c := attr(n, "class"); c != "" {
			para.Attrs = map[string]any{"class": c}
		}
		inlineChildren(para, n, nil)
		parent.Content = append(parent.Content, trimBreaks(para))
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		p.closeParagraph(parent)
		level, _ := strconv.Atoi(n.Data[1:])
		h := &Node{Type: TypeHeading, Attrs: map[string]any{"level": level}}
		inlineChildren(h, n, nil)
		parent.Content = append(parent.Content, trimBreaks(h))
	case atom.Ul, atom.Ol:
		p.closeParagraph(parent)
		list := &Node{Type: TypeBulletList}
		if n.DataAtom == atom.Ol {
			list.Type = TypeOrderedList
			if s, err := strconv.Atoi(attr(n, "start")); err == nil && s != 1 {
				list.Attrs = map[string]any{"start": s}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Li {
				list.Content = append(list.Content, listItem(c))
			}
		}
		parent.Content = append(parent.Content, list)
	case atom.Blockquote:
		p.closeParagraph(parent)
		bq := &Node{Type: TypeBlockquote}
		children(bq, n)
		parent.Content = append(parent.Content, bq)
	case atom.Pre:
		p.closeParagraph(parent)
		code := &Node{Type: TypeCodeBlock}
		if t := strings.TrimSuffix(textContent(n), "\n"); t != "" {
			code.Content = []*Node{{Type: TypeText, Text: t}}
		}
		parent.Content = append(parent.Content, code)
	case atom.Hr:
		p.closeParagraph(parent)
		parent.Content = append(parent.Content, &Node{Type: TypeHorizontalRule})
	case atom.Table:
		p.closeParagraph(parent)
		parent.Content = append(parent.Content, table(n))
	case atom.Div, atom.Section, atom.Article, atom.Body:
		p.closeParagraph(parent)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			p.block(parent, c)
		}
		p.closeParagraph(parent)
	default:
		inline(p.implicitParagraph(parent), n, nil)
	}
}

// children parses block content of n into parent with its own implicit
// paragraph scope.
func children(parent *Node, n *html.Node) {
	p := &parser{}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.block(parent, c)
	}
	p.closeParagraph(parent)
}

func listItem(n *html.Node) *Node {
	li := &Node{Type: TypeListItem}
	if c := attr(n, "class"); c != "" {
		li.Attrs = map[string]any{"class": c}
	}
	hasBlock := false
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && isBlockElement(c.DataAtom) {
			hasBlock = true
			break
		}
	}
	if hasBlock {
		children(li, n)
		// A loose item holding a single empty paragraph is an empty item.
		if len(li.Content) == 1 && li.Content[0].Type == TypeParagraph && len(li.Content[0].Content) == 0 {
			li.Content = nil
		}
	} else {
		inlineChildren(li, n, nil)
		trimBreaks(li)
	}
	for _, c := range checkboxes(n) {
		if li.Attrs == nil {
			li.Attrs = map[string]any{}
		}
		li.Attrs["checked"] = hasAttr(c, "checked")
		trimLeadingSpace(li)
	}
	return li
}

func table(n *html.Node) *Node {
	t := &Node{Type: TypeTable}
	var rows func(*html.Node)
	rows = func(x *html.Node) {
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Thead, atom.Tbody, atom.Tfoot:
				rows(c)
			case atom.Tr:
				row := &Node{Type: TypeTableRow}
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type != html.ElementNode || (cell.DataAtom != atom.Td && cell.DataAtom != atom.Th) {
						continue
					}
					cn := &Node{Type: TypeTableCell}
					if cell.DataAtom == atom.Th {
						cn.Type = TypeTableHeader
					}
					if a := alignFromStyle(attr(cell, "style")); a != "" {
						cn.Attrs = map[string]any{"align": a}
					}
					inlineChildren(cn, cell, nil)
					row.Content = append(row.Content, cn)
				}
				t.Content = append(t.Content, row)
			}
		}
	}
	rows(n)
	return t
}

func inlineChildren(parent *Node, n *html.Node, marks []Mark) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		inline(parent, c, marks)
	}
}

// inline appends the inline content of n to parent, carrying marks down.
func inline(parent *Node, n *html.Node, marks []Mark) {
	switch n.Type {
	case html.TextNode:
		text := collapseSpace(n.Data)
		if text == "" {
			return
		}
		appendText(parent, text, marks)
		return
	case html.ElementNode:
	default:
		return
	}

	var m *Mark
	switch n.DataAtom {
	case atom.Br:
		parent.Content = append(parent.Content, &Node{Type: TypeHardBreak})
		return
	case atom.Input:
		// Checkboxes are list item state, not content.
		return
	case atom.Strong, atom.B:
		m = &Mark{Type: MarkBold}
	case atom.Em, atom.I:
		m = &Mark{Type: MarkItalic}
	case atom.U:
		m = &Mark{Type: MarkUnderline}
	case atom.S, atom.Del, atom.Strike:
		m = &Mark{Type: MarkStrike}
	case atom.Code:
		m = &Mark{Type: MarkCode}
	case atom.A:
		m = &Mark{Type: MarkLink, Attrs: map[string]any{"href": attr(n, "href")}}
	}
	next := marks
	if m != nil && !hasMark(marks, m.Type) {
		next = append(append([]Mark(nil), marks...), *m)
	}
	inlineChildren(parent, n, next)
}

func appendText(parent *Node, text string, marks []Mark) {
	if k := len(parent.Content); k > 0 {
		last := parent.Content[k-1]
		if last.Type == TypeText && sameMarks(last.Marks, marks) {
			last.Text += text
			return
		}
	}
	parent.Content = append(parent.Content, &Node{Type: TypeText, Text: text, Marks: marks})
}

// trimBreaks drops a trailing hard break, which editors use only to give an
// empty block height.
func trimBreaks(n *Node) *Node {
	for len(n.Content) > 0 && n.Content[len(n.Content)-1].Type == TypeHardBreak {
		n.Content = n.Content[:len(n.Content)-1]
	}
	return n
}

// trimLeadingSpace removes the separator between a task checkbox and the
// item text.
func trimLeadingSpace(n *Node) {
	for len(n.Content) > 0 {
		first := n.Content[0]
		if first.Type != TypeText {
			trimLeadingSpace(first)
			return
		}
		first.Text = strings.TrimLeft(first.Text, " ")
		if first.Text != "" {
			return
		}
		n.Content = n.Content[1:]
	}
}

func whitespaceOnly(n *Node) bool {
	for _, c := range n.Content {
		if c.Type != TypeText || strings.TrimSpace(c.Text) != "" {
			return false
		}
	}
	return true
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Ul, atom.Ol, atom.Blockquote, atom.Pre, atom.Hr, atom.Table, atom.Div:
		return true
	}
	return false
}

func checkboxes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Input && strings.EqualFold(attr(c, "type"), "checkbox") {
			out = append(out, c)
		}
		if c.Type == html.ElementNode && c.DataAtom == atom.P {
			out = append(out, checkboxes(c)...)
		}
	}
	return out
}

func hasMark(marks []Mark, typ string) bool {
	for _, m := range marks {
		if m.Type == typ {
			return true
		}
	}
	return false
}

func sameMarks(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type {
			return false
		}
		if a[i].Type == MarkLink {
			ah, _ := a[i].Attrs["href"].(string)
			bh, _ := b[i].Attrs["href"].(string)
			if ah != bh {
				return false
			}
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

func collapseSpace(s string) string {
	if !strings.ContainsAny(s, "\n\t\r") {
		return s
	}
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(s)
	return s
}

func alignFromStyle(style string) string {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok || strings.TrimSpace(strings.ToLower(k)) != "text-align" {
			continue
		}
		switch v = strings.TrimSpace(strings.ToLower(v)); v {
		case "left", "center", "right":
			return v
		}
	}
	return ""
}
