package format

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// WriteEDN writes a safe subset of EDN: maps with keyword keys, vectors,
// strings, numbers, booleans and nil. Structs go through JSON first so their
// json tags name the keys.
func WriteEDN(w io.Writer, v any, pretty bool) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var tree any
	if err := json.Unmarshal(b, &tree); err != nil {
		return err
	}
	e := &ednWriter{pretty: pretty}
	e.value(tree, 0)
	e.b.WriteByte('\n')
	_, err = io.WriteString(w, e.b.String())
	return err
}

type ednWriter struct {
	b      strings.Builder
	pretty bool
}

func (e *ednWriter) value(v any, depth int) {
	switch t := v.(type) {
	case nil:
		e.b.WriteString("nil")
	case bool:
		e.b.WriteString(strconv.FormatBool(t))
	case string:
		e.b.WriteString(strconv.Quote(t))
	case float64:
		// JSON numbers decode as float64; whole values print as integers.
		if t == float64(int64(t)) {
			e.b.WriteString(strconv.FormatInt(int64(t), 10))
		} else {
			e.b.WriteString(strconv.FormatFloat(t, 'f', -1, 64))
		}
	case []any:
		e.open('[')
		for i, x := range t {
			e.item(i, depth)
			e.value(x, depth+1)
		}
		e.close(']', len(t), depth)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.open('{')
		for i, k := range keys {
			e.item(i, depth)
			e.b.WriteString(":" + ednKeyword(k) + " ")
			e.value(t[k], depth+1)
		}
		e.close('}', len(keys), depth)
	default:
		e.b.WriteString(strconv.Quote(fmt.Sprint(v)))
	}
}

func (e *ednWriter) open(c byte) { e.b.WriteByte(c) }

// item writes the separator before element i of a collection at depth.
func (e *ednWriter) item(i, depth int) {
	switch {
	case e.pretty:
		e.b.WriteByte('\n')
		e.b.WriteString(strings.Repeat("  ", depth+1))
	case i > 0:
		e.b.WriteByte(' ')
	}
}

func (e *ednWriter) close(c byte, n, depth int) {
	if e.pretty && n > 0 {
		e.b.WriteByte('\n')
		e.b.WriteString(strings.Repeat("  ", depth))
	}
	e.b.WriteByte(c)
}

func ednKeyword(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "-")
}
