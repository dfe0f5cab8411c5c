package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("NewWithOutput: %v", err)
	}
	log.WithField("link_id", "abc").Debug("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not json: %q", buf.String())
	}
	if line["msg"] != "hello" || line["link_id"] != "abc" || line["level"] != "debug" {
		t.Fatalf("unexpected entry: %v", line)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("loud", "text"); err == nil {
		t.Fatalf("bad level accepted")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("bad format accepted")
	}
}
