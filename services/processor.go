package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"doc-hand/models"
	"doc-hand/storage"
)

const (
	// Error details stored on a failed document are capped at this length.
	errorDetailsLimit = 500
	// Cap for the full_text fallback derived from raw_text.
	fullTextFallbackLimit = 25000
)

// DocumentProcessor sequences the processing pipeline for a single document:
// read record, mark processing, download, extract text, persist raw text,
// AI-extract metadata, validate, persist the terminal result. Each call is
// one sequential pipeline; there is no internal parallelism.
type DocumentProcessor struct {
	Store     storage.DocumentStore
	Objects   storage.ObjectStore
	Extractor TextExtractor
	AI        MetadataExtractor
	Logger    *zap.Logger
}

func NewDocumentProcessor(store storage.DocumentStore, objects storage.ObjectStore, extractor TextExtractor, ai MetadataExtractor, logger *zap.Logger) *DocumentProcessor {
	return &DocumentProcessor{
		Store:     store,
		Objects:   objects,
		Extractor: extractor,
		AI:        ai,
		Logger:    logger,
	}
}

// Process runs the pipeline for documentID. With forceRefresh unset, a
// document that is already done with satisfactory content is returned as-is.
// Every invocation ends with exactly one terminal status write (done or
// failed); on failure the caller gets the error AND the record carries it.
//
// Concurrent invocations on the same document are not serialized: two
// overlapping force refreshes interleave and the last terminal write wins.
func (p *DocumentProcessor) Process(ctx context.Context, documentID string, forceRefresh bool) (*models.Document, error) {
	doc, err := p.Store.GetByID(ctx, documentID)
	if err != nil {
		// Nothing to mutate when the record does not exist.
		return nil, err
	}

	log := p.Logger.With(
		zap.String("document_id", doc.ID),
		zap.String("document_type", string(doc.DocumentType)),
	)

	if ShouldSkip(doc, forceRefresh) {
		log.Info("Document already processed with satisfactory content, skipping.")
		return doc, nil
	}

	// Move to processing before any extraction work. A crash mid-pipeline
	// then leaves a visible "processing" record instead of a stale "done".
	if err := p.Store.UpdateFields(ctx, doc.ID, map[string]any{
		"processing_status": models.StatusProcessing,
		"error_details":     nil,
	}); err != nil {
		markErr := fmt.Errorf("mark document as processing: %w", err)
		p.recordFailure(ctx, log, doc, markErr)
		return nil, markErr
	}
	doc.ProcessingStatus = models.StatusProcessing
	doc.ErrorDetails = nil

	finalized, runErr := p.runGuarded(ctx, log, doc)
	if runErr != nil {
		if !finalized {
			p.recordFailure(ctx, log, doc, runErr)
		}
		log.Warn("Document processing failed", zap.Error(runErr))
		return nil, runErr
	}

	log.Info("Document processing finished",
		zap.String("status", string(doc.ProcessingStatus)),
		zap.String("title", doc.ExtractedTitle),
	)
	return doc, nil
}

// runGuarded shields Process from panics inside the pipeline body. A
// recovered panic becomes a regular failure that still gets the best-effort
// terminal write.
func (p *DocumentProcessor) runGuarded(ctx context.Context, log *zap.Logger, doc *models.Document) (finalized bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic during document processing", zap.Any("cause", r))
			finalized = false
			err = fmt.Errorf("unexpected processing failure: %v", r)
		}
	}()
	return p.run(ctx, log, doc)
}

// run executes the pipeline body. The returned bool reports whether a
// terminal status has already been persisted.
func (p *DocumentProcessor) run(ctx context.Context, log *zap.Logger, doc *models.Document) (bool, error) {
	if strings.TrimSpace(doc.FilePath) == "" {
		return false, errors.New("document has no file_path to download")
	}

	data, err := p.Objects.Download(ctx, doc.FilePath)
	if err != nil {
		return false, fmt.Errorf("download %q from object store: %w", doc.FilePath, err)
	}
	log.Info("Downloaded source document", zap.Int("bytes", len(data)))

	rawText := p.Extractor.ExtractText(data)
	doc.RawText = rawText
	// Persist the raw text right away so it survives any later failure.
	if err := p.Store.UpdateFields(ctx, doc.ID, map[string]any{"raw_text": rawText}); err != nil {
		return false, fmt.Errorf("persist raw text: %w", err)
	}

	meta := p.AI.Extract(ctx, rawText, doc.DocumentType)

	// Field precedence: freshly extracted > previously stored > fallback.
	title := mergeField(meta.Title, doc.ExtractedTitle, "")
	authors := mergeList(meta.Authors, doc.Authors)
	keywords := mergeList(meta.Keywords, doc.Keywords)
	fullText := mergeField(meta.Summary, doc.FullText, truncate(rawText, fullTextFallbackLimit))

	outcome := ValidateDocument(doc.DocumentType, title, authors, rawText != "", doc.ID)

	updates := map[string]any{
		"extracted_title":   outcome.Title,
		"authors":           models.StringList(authors),
		"keywords":          models.StringList(keywords),
		"full_text":         fullText,
		"processing_status": outcome.Status,
	}
	var details *string
	if outcome.Status == models.StatusFailed {
		d := truncate(outcome.ErrorDetails, errorDetailsLimit)
		details = &d
		updates["error_details"] = d
	} else {
		updates["error_details"] = nil
	}

	if err := p.Store.UpdateFields(ctx, doc.ID, updates); err != nil {
		return false, fmt.Errorf("persist processing results: %w", err)
	}

	doc.ExtractedTitle = outcome.Title
	doc.Authors = models.StringList(authors)
	doc.Keywords = models.StringList(keywords)
	doc.FullText = fullText
	doc.ProcessingStatus = outcome.Status
	doc.ErrorDetails = details

	if outcome.Status == models.StatusFailed {
		// Terminal state is already recorded; the caller still gets an error.
		return true, errors.New(outcome.ErrorDetails)
	}
	return true, nil
}

// recordFailure performs the best-effort terminal "failed" write. Failures
// of this write are logged and swallowed so that the original error, not the
// secondary one, reaches the caller.
func (p *DocumentProcessor) recordFailure(ctx context.Context, log *zap.Logger, doc *models.Document, cause error) {
	details := truncate(cause.Error(), errorDetailsLimit)
	if err := p.Store.UpdateFields(ctx, doc.ID, map[string]any{
		"processing_status": models.StatusFailed,
		"error_details":     details,
	}); err != nil {
		log.Error("Could not record failure status", zap.Error(err), zap.String("cause", details))
		return
	}
	doc.ProcessingStatus = models.StatusFailed
	doc.ErrorDetails = &details
}

// ProcessPending runs the pipeline for every pending document, one after the
// other. Returns how many succeeded and how many failed.
func (p *DocumentProcessor) ProcessPending(ctx context.Context) (processed, failed int) {
	docs, err := p.Store.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		p.Logger.Error("Could not list pending documents", zap.Error(err))
		return 0, 0
	}
	for _, d := range docs {
		if _, err := p.Process(ctx, d.ID, false); err != nil {
			failed++
			continue
		}
		processed++
	}
	return processed, failed
}
