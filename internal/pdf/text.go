package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// minTextLength is the smallest extracted-text size considered usable.
// Anything shorter is treated as a failed extraction (scanned images,
// encrypted files) so the caller can fall back to the abstract.
const minTextLength = 200

// extractPlainText pulls text from up to maxPages pages of the PDF content.
// maxPages <= 0 means all pages. Pages that cannot be parsed are skipped.
// Returns the text and the number of pages read.
func extractPlainText(content []byte, maxPages int) (text string, pages int, err error) {
	// The underlying parser panics on some malformed files; recover turns
	// that into an ordinary extraction error.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			pages = 0
			err = fmt.Errorf("pdf: parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, fmt.Errorf("pdf: open reader: %w", err)
	}

	total := reader.NumPage()
	if maxPages <= 0 || maxPages > total {
		maxPages = total
	}

	var builder strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(pageText)
		builder.WriteString("\n")
		pages++
	}

	return builder.String(), pages, nil
}
