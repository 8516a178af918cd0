// Package extract is the text-extraction boundary. The core only ever sees
// extracted text; format-specific extractors (PDF and friends) plug in from
// outside through the Extractor interface.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// Extractor pulls plain text out of an uploaded document. Extraction
// failures surface as generation failures without retry.
type Extractor interface {
	Extract(path string) (string, error)
}

// PlainText handles documents that already are UTF-8 text.
type PlainText struct{}

func (PlainText) Extract(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("document %s is not valid UTF-8 text", filepath.Base(path))
	}
	return string(data), nil
}
