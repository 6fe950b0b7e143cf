package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveUploadWritesSourceFile(t *testing.T) {
	local, err := NewLocal(filepath.Join(t.TempDir(), "storage"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	path, _, err := local.SaveUpload(strings.NewReader("hwp body"), "契約書.hwp")
	if err != nil {
		t.Fatalf("SaveUpload failed: %v", err)
	}

	if filepath.Base(path) != "source.hwp" {
		t.Fatalf("unexpected stored name: %s", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("stored file unreadable: %v", err)
	}
	if string(data) != "hwp body" {
		t.Fatalf("stored content mismatch: %q", data)
	}
}

func TestSaveUploadIsolatesUploadsInSeparateDirs(t *testing.T) {
	local, err := NewLocal(filepath.Join(t.TempDir(), "storage"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	first, _, err := local.SaveUpload(strings.NewReader("one"), "doc.odt")
	if err != nil {
		t.Fatalf("SaveUpload failed: %v", err)
	}
	second, _, err := local.SaveUpload(strings.NewReader("two"), "doc.odt")
	if err != nil {
		t.Fatalf("SaveUpload failed: %v", err)
	}

	if filepath.Dir(first) == filepath.Dir(second) {
		t.Fatal("each upload must get its own directory")
	}
}
