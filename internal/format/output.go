package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Write writes v in the requested format: json (default), edn or text.
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return WriteJSON(w, v, pretty)
	case "edn":
		return WriteEDN(w, v, pretty)
	case "text":
		return WriteText(w, v, pretty)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// WriteJSON writes strict JSON followed by a newline.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var (
		b   []byte
		err error
	)
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// WriteText writes a string payload as is. Anything else (an envelope whose
// data is not a string, a struct) falls back to JSON.
func WriteText(w io.Writer, v any, pretty bool) error {
	s, ok := v.(string)
	if !ok {
		if env, isEnv := v.(map[string]any); isEnv {
			s, ok = env["data"].(string)
		}
	}
	if !ok {
		return WriteJSON(w, v, pretty)
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, err := io.WriteString(w, s)
	return err
}
