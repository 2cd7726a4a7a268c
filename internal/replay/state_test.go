package replay

import (
	"os"
	"path/filepath"
	"testing"
)

func TestState_NewAndSave(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "nested", "state.json")

	s, err := LoadState(statePath)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	s.MarkLine("a.jsonl", 10)
	s.MarkLine("b.jsonl", 3)
	s.Interactions = 13

	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("state file not created: %v", err)
	}

	reloaded, err := LoadState(statePath)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Done("a.jsonl") != 10 || reloaded.Done("b.jsonl") != 3 || reloaded.Interactions != 13 {
		t.Fatalf("unexpected reloaded state: %+v", reloaded)
	}
}

func TestState_MarkLineNeverMovesBack(t *testing.T) {
	s, _ := LoadState("")

	s.MarkLine("a.jsonl", 5)
	s.MarkLine("a.jsonl", 2)
	if s.Done("a.jsonl") != 5 {
		t.Errorf("expected 5, got %d", s.Done("a.jsonl"))
	}
	if s.Done("other.jsonl") != 0 {
		t.Errorf("expected 0 for unknown file, got %d", s.Done("other.jsonl"))
	}
}

func TestState_AddErrorBounded(t *testing.T) {
	s, _ := LoadState("")

	for i := 0; i < maxErrors+5; i++ {
		s.AddError("boom")
	}
	if len(s.Errors) != maxErrors {
		t.Errorf("expected %d errors kept, got %d", maxErrors, len(s.Errors))
	}
	if s.Failures != maxErrors+5 {
		t.Errorf("expected %d failures, got %d", maxErrors+5, s.Failures)
	}
}

func TestLoadState_Corrupt(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(statePath, []byte("{nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadState(statePath); err == nil {
		t.Fatal("expected parse error")
	}
}
