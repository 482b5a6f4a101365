package msgcat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRenderDefaults(t *testing.T) {
	c, err := New("")
	if err != nil { t.Fatalf("New: %v", err) }
	got, err := c.Render("move.rejected.illegal", map[string]any{"Move": "e2-e5"})
	if err != nil { t.Fatalf("Render: %v", err) }
	if got != "Invalid move: e2-e5" { t.Fatalf("got %q", got) }
	if _, err := c.Render("move.rejected.illegal", map[string]any{}); err == nil {
		t.Fatalf("expected missing field error")
	}
	if _, err := c.Render("nope", nil); err == nil { t.Fatalf("expected missing key error") }
	if s := c.Text("nope", "fallback", nil); s != "fallback" { t.Fatalf("Text fallback = %q", s) }
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("reset:\n  done: \"Fresh board.\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil { t.Fatalf("New: %v", err) }
	if s := c.Text("reset.done", "", nil); s != "Fresh board." { t.Fatalf("override = %q", s) }
	if s := c.Text("reset.denied", "", nil); s == "" { t.Fatalf("untouched default lost") }
}

func TestDuplicateOverrideKeys(t *testing.T) {
	dir := t.TempDir()
	body := []byte("reset:\n  done: x\n")
	_ = os.WriteFile(filepath.Join(dir, "a.yaml"), body, 0o644)
	_ = os.WriteFile(filepath.Join(dir, "b.yml"), body, 0o644)
	if _, err := New(dir); err == nil { t.Fatalf("expected duplicate key error") }
}
