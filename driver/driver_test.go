package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalFileStoreFetch(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "files"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "files", "doc.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewLocalFileStore(dir)
	ctx := context.Background()

	got, err := store.Fetch(ctx, "files/doc.pdf")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got != path {
		t.Errorf("expected %q, got %q", path, got)
	}
}

func TestLocalFileStoreFetchErrors(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalFileStore(dir)
	ctx := context.Background()

	tests := []struct {
		name string
		ref  string
	}{
		{"empty ref", ""},
		{"missing file", "files/nope.pdf"},
		{"absolute path", "/etc/passwd"},
		{"parent escape", "../outside.pdf"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Fetch(ctx, tc.ref)
			if err == nil {
				t.Fatalf("expected error for ref %q", tc.ref)
			}
			// Fetch errors must classify as file access problems.
			if !strings.Contains(strings.ToLower(err.Error()), "file") {
				t.Errorf("error should mention file access: %v", err)
			}
		})
	}
}

func TestSeparatorPage(t *testing.T) {
	dir := t.TempDir()

	path, err := SeparatorPage(dir)
	if err != nil {
		t.Fatalf("SeparatorPage failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 1 || data[0] != '\f' {
		t.Errorf("expected a single form feed, got %q", data)
	}
}
