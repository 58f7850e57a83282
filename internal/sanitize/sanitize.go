package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"richsync/internal/config"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// ErrMalformed is returned for input that is not valid UTF-8.
	ErrMalformed = errors.New("sanitize: malformed input")
	// ErrTooLarge is returned when the input exceeds the configured byte limit.
	ErrTooLarge = errors.New("sanitize: input too large")
)

var (
	// Zero-width and direction markers at the start of the document or a block.
	leadingMarkersRe = regexp.MustCompile(`(^|<(?:p|li|h[1-6]|blockquote|td|th)(?:\s[^>]*)?>)[\x{200B}-\x{200F}\x{FEFF}]+`)
	// Paragraphs holding nothing but whitespace. <p><br></p> is a deliberate
	// blank line and is kept.
	blankParagraphRe = regexp.MustCompile(`<p(?:\s[^>]*)?>\s*</p>`)

	quillClassRe = regexp.MustCompile(`^ql-[a-z0-9-]+(?:\s+ql-[a-z0-9-]+)*$`)
	checkboxRe   = regexp.MustCompile(`^checkbox$`)
)

// maxPasses bounds the policy loop in Sanitize.
const maxPasses = 8

type Options struct {
	Capabilities config.Capabilities
	// MaxBytes rejects larger inputs. Zero disables the limit.
	MaxBytes int
}

type Sanitizer struct {
	policy   *bluemonday.Policy
	maxBytes int
}

func New(opts Options) *Sanitizer {
	caps := opts.Capabilities
	if caps == nil {
		caps = config.AllCapabilities()
	}
	return &Sanitizer{
		policy:   newPolicy(caps),
		maxBytes: opts.MaxBytes,
	}
}

// Default returns a sanitizer allowing every known formatting command.
func Default() *Sanitizer {
	return New(Options{Capabilities: config.AllCapabilities()})
}

func newPolicy(caps config.Capabilities) *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br")
	p.AllowAttrs("class").Matching(quillClassRe).OnElements("p", "li", "h1", "h2", "h3", "h4", "h5", "h6")

	if caps.Has(config.CapHeading) {
		p.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	}
	if caps.Has(config.CapBold) {
		p.AllowElements("strong", "b")
	}
	if caps.Has(config.CapItalic) {
		p.AllowElements("em", "i")
	}
	if caps.Has(config.CapUnderline) {
		p.AllowElements("u")
	}
	if caps.Has(config.CapStrike) {
		p.AllowElements("s", "del", "strike")
	}
	if caps.Has(config.CapQuote) {
		p.AllowElements("blockquote")
	}
	if caps.Has(config.CapBullet) {
		p.AllowElements("ul", "li")
	}
	if caps.Has(config.CapOrdered) {
		p.AllowElements("ol", "li")
		p.AllowAttrs("start").Matching(bluemonday.Integer).OnElements("ol")
	}
	if caps.Has(config.CapTask) {
		p.AllowAttrs("type").Matching(checkboxRe).OnElements("input")
		p.AllowAttrs("checked", "disabled").OnElements("input")
	}
	if caps.Has(config.CapLink) {
		p.AllowAttrs("href").OnElements("a")
		p.AllowAttrs("title").OnElements("a")
		p.AllowURLSchemes("http", "https", "mailto")
		p.AllowRelativeURLs(true)
		p.RequireParseableURLs(true)
	}
	if caps.Has(config.CapCode) {
		p.AllowElements("code", "pre")
	}
	if caps.Has(config.CapRule) {
		p.AllowElements("hr")
	}
	if caps.Has(config.CapTable) {
		p.AllowElements("table", "thead", "tbody", "tr", "th", "td")
		p.AllowStyles("text-align").MatchingEnum("left", "center", "right").OnElements("th", "td")
	}
	return p
}

// Sanitize returns html with disallowed markup and structural noise removed.
// Both steps repeat until the output stops changing, so it is idempotent.
func (s *Sanitizer) Sanitize(html string) (string, error) {
	if s.maxBytes > 0 && len(html) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(html), s.maxBytes)
	}
	if !utf8.ValidString(html) {
		return "", ErrMalformed
	}
	out := html
	for i := 0; i < maxPasses; i++ {
		next := StripNoise(s.policy.Sanitize(out))
		if next == out {
			return out, nil
		}
		out = next
	}
	return out, nil
}

// StripNoise removes leading zero-width markers and blank paragraphs without
// applying the tag policy.
func StripNoise(html string) string {
	// Each pass only removes text, so this reaches a fixed point.
	for {
		next := leadingMarkersRe.ReplaceAllString(html, "${1}")
		next = blankParagraphRe.ReplaceAllString(next, "")
		if next == html {
			return html
		}
		html = next
	}
}
