package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// readText loads a document as UTF-8 text. The allow-list only admits
// plain-text formats, so anything undecodable is a corrupt file, not a
// format to sniff.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", filepath.Base(path))
	}
	return string(data), nil
}

// fileExt returns the lowercased extension, ".md" style.
func fileExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
