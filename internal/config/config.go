package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DialectMarkdown = "markdown"
	DialectHTML     = "html"
)

// Formatting commands a widget may expose. They mirror the editor toolbar and
// decide which markup survives sanitization.
const (
	CapHeading   = "heading"
	CapBold      = "bold"
	CapItalic    = "italic"
	CapStrike    = "strike"
	CapUnderline = "underline"
	CapQuote     = "quote"
	CapBullet    = "ul"
	CapOrdered   = "ol"
	CapTask      = "task"
	CapLink      = "link"
	CapCode      = "code"
	CapRule      = "hr"
	CapTable     = "table"
)

var knownCapabilities = map[string]bool{
	CapHeading:   true,
	CapBold:      true,
	CapItalic:    true,
	CapStrike:    true,
	CapUnderline: true,
	CapQuote:     true,
	CapBullet:    true,
	CapOrdered:   true,
	CapTask:      true,
	CapLink:      true,
	CapCode:      true,
	CapRule:      true,
	CapTable:     true,
}

// Capabilities is the set of formatting commands enabled for a widget.
type Capabilities map[string]bool

// ParseCapabilities parses a comma separated list ("bold,italic,link").
func ParseCapabilities(s string) (Capabilities, error) {
	caps := Capabilities{}
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !knownCapabilities[part] {
			return nil, fmt.Errorf("unknown capability: %s", part)
		}
		caps[part] = true
	}
	return caps, nil
}

// AllCapabilities returns every known formatting command enabled.
func AllCapabilities() Capabilities {
	caps := Capabilities{}
	for k := range knownCapabilities {
		caps[k] = true
	}
	return caps
}

func (c Capabilities) Has(name string) bool { return c != nil && c[name] }

func (c Capabilities) List() []string {
	out := make([]string, 0, len(c))
	for k, on := range c {
		if on {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (c Capabilities) String() string { return strings.Join(c.List(), ",") }

func (c Capabilities) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.List())
}

func (c *Capabilities) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	parsed, err := ParseCapabilities(strings.Join(list, ","))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

type Config struct {
	// Dialect selects the DocumentText markup: "markdown" (toast-ui style) or
	// "html" (Quill style).
	Dialect string `json:"dialect,omitempty"`

	// DebounceMS is the quiet period before a local rich edit propagates.
	DebounceMS int `json:"debounceMs,omitempty"`

	Capabilities Capabilities `json:"capabilities,omitempty"`

	// Emoji enables :shortcode: expansion when rendering markdown.
	Emoji bool `json:"emoji,omitempty"`

	MaxDocumentBytes int `json:"maxDocumentBytes,omitempty"`

	// FocusGuard skips remote updates while the editor has focus.
	FocusGuard bool `json:"focusGuard,omitempty"`

	DBPath string `json:"dbPath,omitempty"`

	// Theme is one of auto|dark|light.
	Theme string `json:"theme,omitempty"`

	LogLevel string `json:"logLevel,omitempty"`
}

func Default() Config {
	caps, _ := ParseCapabilities("heading,bold,italic,strike,underline,quote,ul,ol,task,link,code,hr,table")
	return Config{
		Dialect:          DialectMarkdown,
		DebounceMS:       200,
		Capabilities:     caps,
		MaxDocumentBytes: 1 << 20,
		Theme:            "auto",
		LogLevel:         "info",
	}
}

func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c Config) Validate() error {
	switch c.Dialect {
	case DialectMarkdown, DialectHTML:
	default:
		return fmt.Errorf("config: invalid dialect %q (expected markdown|html)", c.Dialect)
	}
	if c.DebounceMS < 0 {
		return errors.New("config: debounceMs must not be negative")
	}
	if c.MaxDocumentBytes < 0 {
		return errors.New("config: maxDocumentBytes must not be negative")
	}
	for k := range c.Capabilities {
		if !knownCapabilities[k] {
			return fmt.Errorf("config: unknown capability: %s", k)
		}
	}
	switch c.Theme {
	case "", "auto", "dark", "light":
	default:
		return fmt.Errorf("config: invalid theme %q (expected auto|dark|light)", c.Theme)
	}
	return nil
}

func Dir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.richsync).
	if v := strings.TrimSpace(os.Getenv("RICHSYNC_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".richsync"), nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads config.json (if present) over the defaults and then applies
// RICHSYNC_* environment overrides.
func Load() (Config, error) {
	cfg := Default()
	path, err := Path()
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, err
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join(filepath.Dir(path), "richsync.sqlite")
	}
	return cfg, cfg.Validate()
}

// Save writes cfg to config.json, creating the directory if needed.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *Config) applyEnv() error {
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("RICHSYNC_DIALECT"))); v != "" {
		c.Dialect = v
	}
	if v := strings.TrimSpace(os.Getenv("RICHSYNC_DEBOUNCE_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: RICHSYNC_DEBOUNCE_MS: %w", err)
		}
		c.DebounceMS = n
	}
	if v := strings.TrimSpace(os.Getenv("RICHSYNC_CAPABILITIES")); v != "" {
		caps, err := ParseCapabilities(v)
		if err != nil {
			return fmt.Errorf("config: RICHSYNC_CAPABILITIES: %w", err)
		}
		c.Capabilities = caps
	}
	c.Emoji = boolEnvDefault("RICHSYNC_EMOJI", c.Emoji)
	c.FocusGuard = boolEnvDefault("RICHSYNC_FOCUS_GUARD", c.FocusGuard)
	if v := strings.TrimSpace(os.Getenv("RICHSYNC_DB")); v != "" {
		c.DBPath = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("RICHSYNC_THEME"))); v != "" {
		c.Theme = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("RICHSYNC_LOG_LEVEL"))); v != "" {
		c.LogLevel = v
	}
	return nil
}

func boolEnvDefault(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	switch strings.ToLower(v) {
	case "y", "yes", "on":
		return true
	case "n", "no", "off":
		return false
	default:
		return def
	}
}
