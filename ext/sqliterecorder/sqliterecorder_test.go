package sqliterecorder

import (
	"path/filepath"
	"testing"
)

func TestOffsetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.db")
	rec, err := New(path, "consumer-a")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	defer rec.Close()

	offset, err := rec.ReadOffset()
	if err != nil {
		t.Fatalf("read offset: %v", err)
	}
	if offset != "" {
		t.Fatalf("fresh database yielded offset %q", offset)
	}

	if err := rec.WriteOffset("8865499359"); err != nil {
		t.Fatalf("write offset: %v", err)
	}
	if err := rec.WriteOffset("8865499360"); err != nil {
		t.Fatalf("write offset: %v", err)
	}
	offset, err = rec.ReadOffset()
	if err != nil {
		t.Fatalf("read offset: %v", err)
	}
	if offset != "8865499360" {
		t.Fatalf("offset = %q", offset)
	}
}

func TestOffsetSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.db")
	rec, err := New(path, "consumer-a")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if err := rec.WriteOffset("42"); err != nil {
		t.Fatalf("write offset: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rec, err = New(path, "consumer-a")
	if err != nil {
		t.Fatalf("reopen recorder: %v", err)
	}
	defer rec.Close()
	offset, err := rec.ReadOffset()
	if err != nil {
		t.Fatalf("read offset: %v", err)
	}
	if offset != "42" {
		t.Fatalf("offset after reopen = %q", offset)
	}
}

func TestConsumersIsolatedByName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.db")
	a, err := New(path, "consumer-a")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	defer a.Close()
	b, err := New(path, "consumer-b")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	defer b.Close()

	if err := a.WriteOffset("100"); err != nil {
		t.Fatalf("write offset: %v", err)
	}
	offset, err := b.ReadOffset()
	if err != nil {
		t.Fatalf("read offset: %v", err)
	}
	if offset != "" {
		t.Fatalf("consumer-b saw consumer-a's offset %q", offset)
	}
}

func TestNewRequiresConsumerName(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "offsets.db"), ""); err == nil {
		t.Fatal("expected an error for an empty consumer name")
	}
}
