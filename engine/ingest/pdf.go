package ingest

import (
	"bytes"
	"fmt"

	"github.com/docsage/docsage/engine/domain"
	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// isPDF sniffs the payload header. The magic check is a cheap gate, not a
// guarantee; real structural validation happens in the parser.
func isPDF(raw []byte) bool {
	return bytes.HasPrefix(raw, pdfMagic)
}

// extractText parses the PDF and returns its concatenated plain text. The
// parser panics on some malformed inputs instead of returning an error, so
// the whole parse runs under a recover that maps either outcome to
// ErrInvalidDocument.
func extractText(raw []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingest: pdf parse panic: %v: %w", r, domain.ErrInvalidDocument)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("ingest: pdf parse: %s: %w", err, domain.ErrInvalidDocument)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("ingest: pdf text: %s: %w", err, domain.ErrInvalidDocument)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("ingest: pdf text: %s: %w", err, domain.ErrInvalidDocument)
	}
	return buf.String(), nil
}
