package document

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrNoText is returned when a file parses cleanly but contains no usable
// text.
var ErrNoText = errors.New("no text could be extracted")

// Extractor pulls plain text out of one uploaded file format.
type Extractor interface {
	Extract(content []byte) (string, error)
}

var extractors = map[string]Extractor{
	".txt":  TextExtractor{},
	".md":   TextExtractor{},
	".docx": DocxExtractor{},
}

// ForFilename picks the extractor for a filename's extension. Binary PDF
// parsing is intentionally not bundled; a PDF-capable Extractor can be
// registered by the embedding application.
func ForFilename(name string) (Extractor, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	e, ok := extractors[ext]
	return e, ok
}

// AllowedExtensions lists the supported upload extensions, sorted for stable
// error messages.
func AllowedExtensions() []string {
	return []string{".docx", ".md", ".txt"}
}
