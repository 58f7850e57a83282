package docs

import (
	"strings"
	"testing"
)

func TestTopics_AllReadable(t *testing.T) {
	topics := Topics()
	if len(topics) == 0 {
		t.Fatalf("expected embedded topics")
	}
	for _, topic := range topics {
		body, ok := Get(strings.ToUpper(topic))
		if !ok || !strings.HasPrefix(body, "# ") {
			t.Fatalf("expected markdown body for %q, got ok=%v %q", topic, ok, body)
		}
	}
}

func TestGet_Unknown(t *testing.T) {
	for _, topic := range []string{"", "nope", "../docs"} {
		if _, ok := Get(topic); ok {
			t.Fatalf("expected %q to be unknown", topic)
		}
	}
}
