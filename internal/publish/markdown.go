package publish

import (
	"bytes"
	"fmt"
	"html"
	"time"

	"richsync/internal/change"
	"richsync/internal/store"
)

type indexEntry struct {
	doc  store.Document
	href string
}

func renderIndexMarkdown(entries []indexEntry) string {
	var buf bytes.Buffer
	buf.WriteString("# Documents\n\n")
	if len(entries) == 0 {
		buf.WriteString("_No documents._\n")
		return buf.String()
	}
	for _, e := range entries {
		fmt.Fprintf(&buf, "- [%s](%s) · v%d · %s", e.doc.ID, e.href, e.doc.Version, formatTime(e.doc.UpdatedAt))
		if change.IsEmpty(e.doc.Text) {
			buf.WriteString(" · empty")
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func renderPage(title, body string) string {
	var buf bytes.Buffer
	buf.WriteString("<!doctype html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&buf, "<title>%s</title>\n", html.EscapeString(title))
	buf.WriteString("</head>\n<body>\n")
	buf.WriteString(body)
	buf.WriteString("\n</body>\n</html>\n")
	return buf.String()
}
