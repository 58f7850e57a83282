package publish

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"richsync/internal/config"
	"richsync/internal/markup"
	"richsync/internal/sanitize"
	"richsync/internal/store"
)

type WriteOptions struct {
	// HTML renders each document through its dialect's codec and the
	// sanitizer instead of copying the text.
	HTML      bool
	Overwrite bool
	// Config supplies capabilities, emoji and size limits for rendering.
	Config config.Config
}

type WriteResult struct {
	Written []string `json:"written"`
}

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName maps a document id to a file name without its extension.
func FileName(id string) string {
	name := strings.Trim(unsafeNameRe.ReplaceAllString(strings.TrimSpace(id), "-"), ".-")
	if name == "" {
		return "document"
	}
	return name
}

func WriteDocuments(docs []store.Document, toDir string, opt WriteOptions) (WriteResult, error) {
	toDir = strings.TrimSpace(toDir)
	if toDir == "" {
		return WriteResult{}, errors.New("missing --to")
	}
	toDir = filepath.Clean(toDir)

	outDir := filepath.Join(toDir, "documents")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return WriteResult{}, err
	}

	san := sanitize.New(sanitize.Options{
		Capabilities: opt.Config.Capabilities,
		MaxBytes:     opt.Config.MaxDocumentBytes,
	})

	entries := make([]indexEntry, 0, len(docs))
	seen := map[string]string{}
	written := []string{}
	for _, d := range docs {
		name := FileName(d.ID)
		if other, dup := seen[name]; dup {
			return WriteResult{}, fmt.Errorf("documents %q and %q map to the same file name %q", other, d.ID, name)
		}
		seen[name] = d.ID

		body, ext, err := render(d, san, opt)
		if err != nil {
			return WriteResult{}, fmt.Errorf("document %s: %w", d.ID, err)
		}
		p := filepath.Join(outDir, name+ext)
		if err := writeFile(p, []byte(body), opt.Overwrite); err != nil {
			return WriteResult{}, err
		}
		written = append(written, p)
		entries = append(entries, indexEntry{doc: d, href: "documents/" + name + ext})
	}

	indexPath := filepath.Join(toDir, "index.md")
	if err := writeFile(indexPath, []byte(renderIndexMarkdown(entries)), opt.Overwrite); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Written: append([]string{indexPath}, written...)}, nil
}

func render(d store.Document, san *sanitize.Sanitizer, opt WriteOptions) (body, ext string, err error) {
	if !opt.HTML {
		if d.Dialect == config.DialectHTML {
			return d.Text, ".html", nil
		}
		return d.Text, ".md", nil
	}
	codec, err := markup.ForDialect(d.Dialect, markup.Options{
		Capabilities: opt.Config.Capabilities,
		Emoji:        opt.Config.Emoji,
	})
	if err != nil {
		return "", "", err
	}
	html, err := codec.ToDoc(d.Text)
	if err != nil {
		return "", "", err
	}
	clean, err := san.Sanitize(html)
	if err != nil {
		return "", "", err
	}
	return renderPage(d.ID, clean), ".html", nil
}

func writeFile(path string, b []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New("file exists (use --overwrite): " + path)
		}
	}
	return os.WriteFile(path, b, 0o644)
}
