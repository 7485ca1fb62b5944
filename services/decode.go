package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const utf8BOM = "\ufeff"

// DecodeContent returns the upload as text. Valid UTF-8 is used as is (minus a leading
// BOM); anything else is read as Latin-1.
func DecodeContent(content []byte) (string, error) {
	if utf8.Valid(content) {
		return strings.TrimPrefix(string(content), utf8BOM), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return "", fmt.Errorf("could not decode file as UTF-8 or Latin-1: %w", err)
	}
	return string(decoded), nil
}
