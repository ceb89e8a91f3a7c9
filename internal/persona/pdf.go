package persona

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// ExtractPDFText concatenates the text of every page of a PDF document.
func ExtractPDFText(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF document: %w", err)
	}
	defer func() {
		_ = doc.Close() // Ignore error on close
	}()

	var builder strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", page+1, err)
		}
		builder.WriteString(text)
	}

	return builder.String(), nil
}
