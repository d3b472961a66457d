package quiz

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

const maxExtractedChars = 50000

// extractPDFText writes r to a per-process scratch file, extracts its
// text with github.com/ledongthuc/pdf, and deletes the file before
// returning — per spec.md §5: "no file outlives request handling."
// Recovers from panics the pdf library raises on malformed input
// (grounded on the same recover-wrapped extractor in the example pack).
func extractPDFText(r io.Reader, size int64) (text string, err error) {
	tmp, err := os.CreateTemp("", "quiz-upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("quiz: scratch file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := io.Copy(tmp, io.LimitReader(r, size)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("quiz: write scratch file: %w", err)
	}
	tmp.Close()

	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("quiz: panic during pdf extraction: %v", rec)
		}
	}()

	f, doc, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("quiz: open pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, perr := page.GetPlainText(nil)
		if perr != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
		if sb.Len() > maxExtractedChars {
			break
		}
	}

	out := sb.String()
	if len(out) > maxExtractedChars {
		out = out[:maxExtractedChars]
	}
	return out, nil
}
