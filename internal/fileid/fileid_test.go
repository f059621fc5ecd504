package fileid

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestFileDocID(t *testing.T) {
	id1 := FileDocID("/foo/bar.txt")
	id2 := FileDocID("/foo/bar.txt")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, prefix+"bar.txt:") {
		t.Errorf("ID should carry prefix and base name: got %q", id1)
	}
	if !IsFileDocID(id1) {
		t.Errorf("IsFileDocID(%q) = false", id1)
	}
}

func TestFileDocID_differentPaths(t *testing.T) {
	tests := []struct{ a, b string }{
		{"/foo/bar.txt", "/foo/baz.txt"},
		{"/one/notes.md", "/two/notes.md"},
	}
	for _, tt := range tests {
		if FileDocID(tt.a) == FileDocID(tt.b) {
			t.Errorf("%q and %q should give different IDs", tt.a, tt.b)
		}
	}
}

func TestFileDocID_normalized(t *testing.T) {
	id1 := FileDocID("/foo/bar")
	for _, p := range []string{"/foo/bar/", "/foo/./bar", "/foo/baz/../bar"} {
		if got := FileDocID(p); got != id1 {
			t.Errorf("FileDocID(%q) = %q, want %q", p, got, id1)
		}
	}
}

func TestFileDocID_absoluteFromFilepath(t *testing.T) {
	abs, err := filepath.Abs("doc.txt")
	if err != nil {
		t.Fatal(err)
	}
	if id := FileDocID(abs); !IsFileDocID(id) {
		t.Errorf("absolute path: got %q", id)
	}
}

func TestIsFileDocID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{FileDocID("/a/b.txt"), true},
		{"file:b.txt", false},
		{"doc-1", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsFileDocID(tt.id); got != tt.want {
			t.Errorf("IsFileDocID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Errorf("New returned duplicate id %q", a)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("New() = %q is not a UUID: %v", a, err)
	}
}
