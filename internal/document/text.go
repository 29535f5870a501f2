package document

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// TextExtractor decodes plain-text files, trying UTF-8 first, then UTF-16
// (BOM-aware), then Latin-1 as the lossless last resort.
type TextExtractor struct{}

func (TextExtractor) Extract(content []byte) (string, error) {
	if text, ok := decodeUTF8(content); ok {
		return text, nil
	}
	if text, ok := decodeUTF16(content); ok {
		return text, nil
	}
	if text, ok := decodeLatin1(content); ok {
		return text, nil
	}

	return "", fmt.Errorf("decode text file: %w", ErrNoText)
}

func decodeUTF8(content []byte) (string, bool) {
	if !utf8.Valid(content) {
		return "", false
	}
	// Strip a UTF-8 BOM if present.
	text := strings.TrimPrefix(string(content), "\uFEFF")
	text = strings.TrimSpace(text)
	return text, text != ""
}

func decodeUTF16(content []byte) (string, bool) {
	if len(content) < 2 {
		return "", false
	}

	// Without a BOM there is no reliable way to pick the byte order.
	endianness := unicode.LittleEndian
	switch {
	case content[0] == 0xFF && content[1] == 0xFE:
	case content[0] == 0xFE && content[1] == 0xFF:
		endianness = unicode.BigEndian
	default:
		return "", false
	}

	decoder := unicode.UTF16(endianness, unicode.ExpectBOM).NewDecoder()
	decoded, err := decoder.Bytes(content)
	if err != nil {
		return "", false
	}

	text := strings.TrimSpace(string(decoded))
	return text, text != ""
}

func decodeLatin1(content []byte) (string, bool) {
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return "", false
	}

	text := strings.TrimSpace(string(decoded))
	return text, text != ""
}
