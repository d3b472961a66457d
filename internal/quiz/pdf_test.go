package quiz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPDFTextRejectsGarbage(t *testing.T) {
	t.Run("returns an error instead of panicking on non-PDF input", func(t *testing.T) {
		r := strings.NewReader("this is not a pdf file")

		_, err := extractPDFText(r, int64(r.Len()))

		assert.Error(t, err)
	})
}

func TestExtractPDFTextEmptyInput(t *testing.T) {
	t.Run("returns an error on an empty upload", func(t *testing.T) {
		r := strings.NewReader("")

		_, err := extractPDFText(r, 0)

		assert.Error(t, err)
	})
}
