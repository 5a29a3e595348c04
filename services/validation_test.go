package services

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"doc-hand/models"
)

func satisfiedDocument(docType models.DocumentType) *models.Document {
	return &models.Document{
		ID:               "3f8a1c2b-0000-0000-0000-000000000000",
		DocumentType:     docType,
		ExtractedTitle:   "Some title",
		Authors:          models.StringList{"A. Author"},
		RawText:          "some raw text",
		ProcessingStatus: models.StatusDone,
	}
}

func TestShouldSkip(t *testing.T) {
	t.Run("done document with satisfactory content is skipped", func(t *testing.T) {
		assert.True(t, ShouldSkip(satisfiedDocument(models.TypeTechnicalSheet), false))
	})

	t.Run("force refresh always reprocesses", func(t *testing.T) {
		assert.False(t, ShouldSkip(satisfiedDocument(models.TypeTechnicalSheet), true))
	})

	t.Run("pending or failed documents are never skipped", func(t *testing.T) {
		for _, status := range []models.ProcessingStatus{models.StatusPending, models.StatusProcessing, models.StatusFailed} {
			doc := satisfiedDocument(models.TypeTechnicalSheet)
			doc.ProcessingStatus = status
			assert.False(t, ShouldSkip(doc, false), "status %s", status)
		}
	})

	t.Run("missing raw text or title disqualifies", func(t *testing.T) {
		doc := satisfiedDocument(models.TypeTechnicalSheet)
		doc.RawText = ""
		assert.False(t, ShouldSkip(doc, false))

		doc = satisfiedDocument(models.TypeTechnicalSheet)
		doc.ExtractedTitle = ""
		assert.False(t, ShouldSkip(doc, false))
	})

	t.Run("scientific article without authors is reprocessed", func(t *testing.T) {
		doc := satisfiedDocument(models.TypeScientificArticle)
		doc.Authors = models.StringList{}
		assert.False(t, ShouldSkip(doc, false))
	})

	t.Run("other types without authors are still skipped", func(t *testing.T) {
		doc := satisfiedDocument(models.TypeProtocol)
		doc.Authors = models.StringList{}
		assert.True(t, ShouldSkip(doc, false))
	})
}

func TestMergeField(t *testing.T) {
	assert.Equal(t, "new", mergeField("new", "old", "fallback"))
	assert.Equal(t, "old", mergeField("", "old", "fallback"))
	assert.Equal(t, "fallback", mergeField("", "", "fallback"))
	assert.Equal(t, "", mergeField("", "", ""))
}

func TestMergeList(t *testing.T) {
	assert.Equal(t, []string{"a"}, mergeList([]string{"a"}, []string{"b"}))
	assert.Equal(t, []string{"b"}, mergeList(nil, []string{"b"}))
	assert.Equal(t, []string{}, mergeList(nil, nil))
}

func TestValidateDocumentScientificArticle(t *testing.T) {
	t.Run("title and authors present", func(t *testing.T) {
		out := ValidateDocument(models.TypeScientificArticle, "Estudo X", []string{"A"}, true, "id")
		assert.Equal(t, models.StatusDone, out.Status)
		assert.Empty(t, out.ErrorDetails)
		assert.Equal(t, "Estudo X", out.Title)
	})

	t.Run("missing authors", func(t *testing.T) {
		out := ValidateDocument(models.TypeScientificArticle, "Estudo X", nil, true, "id")
		assert.Equal(t, models.StatusFailed, out.Status)
		assert.Contains(t, out.ErrorDetails, "Autores")
		assert.NotContains(t, out.ErrorDetails, "Título")
	})

	t.Run("missing title", func(t *testing.T) {
		out := ValidateDocument(models.TypeScientificArticle, "", []string{"A"}, true, "id")
		assert.Equal(t, models.StatusFailed, out.Status)
		assert.Contains(t, out.ErrorDetails, "Título")
		assert.NotContains(t, out.ErrorDetails, "Autores")
	})

	t.Run("both missing names both fields", func(t *testing.T) {
		out := ValidateDocument(models.TypeScientificArticle, "", nil, true, "id")
		assert.Equal(t, models.StatusFailed, out.Status)
		assert.Contains(t, out.ErrorDetails, "Título")
		assert.Contains(t, out.ErrorDetails, "Autores")
	})
}

func TestValidateDocumentLenientTypes(t *testing.T) {
	lenient := []models.DocumentType{
		models.TypeTechnicalSheet,
		models.TypeProtocol,
		models.TypeAdvertisingFlyer,
		models.TypeOther,
	}

	t.Run("always done even with nothing extracted", func(t *testing.T) {
		for _, docType := range lenient {
			out := ValidateDocument(docType, "", nil, false, "id")
			assert.Equal(t, models.StatusDone, out.Status, "type %s", docType)
			assert.Empty(t, out.ErrorDetails)
			// No raw text, so no synthesized title either.
			assert.Empty(t, out.Title)
		}
	})

	t.Run("generic title synthesized when text exists but no title", func(t *testing.T) {
		out := ValidateDocument(models.TypeTechnicalSheet, "", nil, true, "abcdef1234567890")
		assert.Equal(t, models.StatusDone, out.Status)
		assert.Equal(t, "Documento (technical_sheet) - abcdef12", out.Title)
	})

	t.Run("extracted title wins over synthesis", func(t *testing.T) {
		out := ValidateDocument(models.TypeProtocol, "Ficha", nil, true, "abcdef1234567890")
		assert.Equal(t, "Ficha", out.Title)
	})
}

func TestGenericTitleShortID(t *testing.T) {
	assert.Equal(t, "Documento (other) - abc", GenericTitle(models.TypeOther, "abc"))
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 600)
	assert.Len(t, truncate(long, 500), 500)
	assert.Equal(t, "short", truncate("short", 500))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; place it so the cut lands in its middle.
	for _, max := range []int{500, 25000} {
		s := strings.Repeat("x", max-1) + "équência"
		got := truncate(s, max)
		assert.True(t, utf8.ValidString(got), "max %d", max)
		assert.Len(t, got, max-1, "the straddling rune is dropped entirely")
	}

	// A cut inside a longer sequence backs up to the rune start too.
	s := "abc💉"
	got := truncate(s, 5)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "abc", got)
}
