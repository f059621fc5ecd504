// Package extract turns uploaded and watched files into plain text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedFormat is returned for file extensions without an extractor.
var ErrUnsupportedFormat = errors.New("unsupported document format")

type extractFunc func(content []byte) (string, error)

var extractors = map[string]extractFunc{
	"":      extractPlain,
	".txt":  extractPlain,
	".md":   extractPlain,
	".rst":  extractPlain,
	".csv":  extractPlain,
	".pdf":  extractPDF,
	".docx": extractDOCX,
	".xlsx": extractExcel,
}

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supports reports whether ext (with leading dot, any case) can be extracted.
func (e *Extractor) Supports(ext string) bool {
	_, ok := extractors[strings.ToLower(ext)]
	return ok
}

// Extensions lists the supported extensions, sorted.
func (e *Extractor) Extensions() []string {
	var out []string
	for ext := range extractors {
		if ext != "" {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

// Extract reads the file at path and returns its text.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !e.Supports(ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content of the given extension (with leading dot;
// empty means plain text).
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	fn, ok := extractors[strings.ToLower(ext)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return fn(content)
}

// extractPlain returns content as a string with invalid UTF-8 replaced.
func extractPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "�"), nil
	}
	return string(content), nil
}
