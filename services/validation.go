package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"doc-hand/models"
)

// ShouldSkip reports whether a document is already "good enough" so that a
// non-forced processing request can return the stored record unchanged.
// Scientific articles missing authors are never good enough: author
// extraction is their most failure-prone step, and a "done" article without
// authors was finalized incorrectly and gets reprocessed regardless.
func ShouldSkip(doc *models.Document, forceRefresh bool) bool {
	if forceRefresh {
		return false
	}
	if doc.ProcessingStatus != models.StatusDone {
		return false
	}
	if doc.RawText == "" || doc.ExtractedTitle == "" {
		return false
	}
	if doc.DocumentType == models.TypeScientificArticle && len(doc.Authors) == 0 {
		return false
	}
	return true
}

// mergeField resolves one string field across its three possible sources:
// freshly extracted value > previously stored value > fallback.
func mergeField(extracted, stored, fallback string) string {
	if extracted != "" {
		return extracted
	}
	if stored != "" {
		return stored
	}
	return fallback
}

// mergeList applies the same precedence to list fields; there is no fallback
// beyond an empty list.
func mergeList(extracted, stored []string) []string {
	if len(extracted) > 0 {
		return extracted
	}
	if len(stored) > 0 {
		return stored
	}
	return []string{}
}

// ValidationOutcome is the terminal decision for one processing run.
type ValidationOutcome struct {
	Status models.ProcessingStatus
	// Non-empty only when Status is failed.
	ErrorDetails string
	// Final title, possibly synthesized.
	Title string
}

// ValidateDocument applies the type-specific acceptance rules to merged
// metadata. Scientific articles require a title and at least one author;
// every other type always passes, getting a generic title when extraction
// produced none but the document did have text.
func ValidateDocument(docType models.DocumentType, title string, authors []string, rawTextNonEmpty bool, id string) ValidationOutcome {
	if docType == models.TypeScientificArticle {
		var missing []string
		if title == "" {
			missing = append(missing, "Título")
		}
		if len(authors) == 0 {
			missing = append(missing, "Autores")
		}
		if len(missing) > 0 {
			return ValidationOutcome{
				Status:       models.StatusFailed,
				ErrorDetails: "Campos obrigatórios ausentes para artigo científico: " + strings.Join(missing, ", "),
				Title:        title,
			}
		}
		return ValidationOutcome{Status: models.StatusDone, Title: title}
	}

	if title == "" && rawTextNonEmpty {
		title = GenericTitle(docType, id)
	}
	return ValidationOutcome{Status: models.StatusDone, Title: title}
}

// GenericTitle synthesizes a placeholder title for documents whose text
// yielded none.
func GenericTitle(docType models.DocumentType, id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("Documento (%s) - %s", docType, short)
}

// truncate shortens s to at most max bytes, never splitting a rune: the
// result has to stay valid UTF-8 or Postgres rejects the write.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
