// Package pdftext pulls plain text out of uploaded medical report PDFs.
package pdftext

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxSize is the default upload limit for report PDFs.
const DefaultMaxSize = 10 << 20

// ErrNoText is returned when a document parses but carries no extractable text
// (for example a scanned image without an OCR layer).
var ErrNoText = errors.New("pdf contains no extractable text")

// Extract returns the text of every page, one page per line block.
func Extract(r io.ReaderAt, size int64) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", p)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	text = Normalize(b.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// Normalize folds compatibility forms with NFKC so ligatures and full-width
// digits read as plain text, then collapses whitespace. At most one blank line
// is kept between blocks.
func Normalize(s string) string {
	s = norm.NFKC.String(s)

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsControl(r)
		}), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
