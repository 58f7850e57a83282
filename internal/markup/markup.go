package markup

import (
	"errors"
	"fmt"

	"richsync/internal/config"
)

// Codec is a pair of approximate inverses. For any t produced by ToText,
// ToText(ToDoc(t)) equals t after change.Normalize.
type Codec interface {
	Name() string
	ToText(docHTML string) (string, error)
	ToDoc(text string) (string, error)
}

type Options struct {
	Capabilities config.Capabilities
	Emoji        bool
}

var ErrUnknownDialect = errors.New("markup: unknown dialect")

func ForDialect(name string, opts Options) (Codec, error) {
	switch name {
	case config.DialectMarkdown, "":
		return NewMarkdown(opts), nil
	case config.DialectHTML:
		return NewHTML(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialect, name)
	}
}

// FromConfig builds the codec a widget configured with cfg uses.
func FromConfig(cfg config.Config) (Codec, error) {
	return ForDialect(cfg.Dialect, Options{Capabilities: cfg.Capabilities, Emoji: cfg.Emoji})
}

// guard turns a panic inside a converter into an error so one bad document
// cannot take the widget down.
func guard(op string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("markup: %s panicked: %v", op, r)
	}
}
