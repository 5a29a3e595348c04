package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"doc-hand/config"
	"doc-hand/models"
)

// aiInputLimit caps how much document text is sent upstream. Fixed policy,
// a rough proxy for the model's token budget.
const aiInputLimit = 16000

const extractionSystemPrompt = "You are a metadata extractor for technical documents of a clinical aesthetics platform. " +
	"Analyze the document text and respond ONLY with a JSON object containing exactly these fields: " +
	`"title" (string: the document's title, or "" if none), ` +
	`"summary" (string: a concise summary in the document's language, or ""), ` +
	`"keywords" (array of strings: relevant topic keywords), ` +
	`"researchers" (array of strings: the names of the authors/researchers, in the order they appear; empty if none). ` +
	"Never invent authors or titles that are not in the text. No markdown fences, no extra fields."

// extractionSchema is the contract the model's reply must satisfy before we
// accept any of it. Array items stay untyped on purpose: stray non-string
// entries are dropped during sanitization instead of rejecting the reply.
var extractionSchema = jsonschema.MustCompileString("extraction.json", `{
	"type": "object",
	"properties": {
		"title":       {"type": "string"},
		"summary":     {"type": "string"},
		"keywords":    {"type": "array"},
		"researchers": {"type": "array"}
	},
	"required": ["title", "summary", "keywords", "researchers"]
}`)

// ExtractedMetadata is the structured result of one AI extraction call.
// The wire field "researchers" is mapped to Authors.
type ExtractedMetadata struct {
	Title    string
	Summary  string
	Keywords []string
	Authors  []string
}

// MetadataExtractor asks an AI service for structured document metadata.
type MetadataExtractor interface {
	// Extract degrades to all-empty metadata on any failure; a transient AI
	// outage lowers document quality, it never blocks the pipeline.
	Extract(ctx context.Context, text string, docType models.DocumentType) ExtractedMetadata
}

// OpenAIExtractor implements MetadataExtractor on an OpenAI-compatible
// chat/completions endpoint.
type OpenAIExtractor struct {
	Config     *config.Config
	Logger     *zap.Logger
	httpClient *http.Client
}

func NewOpenAIExtractor(cfg *config.Config, logger *zap.Logger) *OpenAIExtractor {
	return &OpenAIExtractor{
		Config: cfg,
		Logger: logger,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (a *OpenAIExtractor) Extract(ctx context.Context, text string, docType models.DocumentType) ExtractedMetadata {
	var empty ExtractedMetadata

	if strings.TrimSpace(text) == "" {
		return empty
	}
	if a.Config.OpenAIAPIKey == "" {
		a.Logger.Warn("No AI credential configured, skipping metadata extraction")
		return empty
	}
	if len(text) > aiInputLimit {
		text = text[:aiInputLimit]
	}

	body := map[string]any{
		"model":           a.Config.OpenAIModel,
		"temperature":     0.1,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": extractionSystemPrompt},
			{"role": "user", "content": fmt.Sprintf("Document type: %s\n\nDocument text:\n%s", docType, text)},
		},
	}

	endpoint := strings.TrimRight(a.Config.OpenAIBaseURL, "/") + "/chat/completions"
	raw, err := a.post(ctx, endpoint, body)
	if err != nil {
		a.Logger.Warn("AI extraction request failed, continuing without metadata", zap.Error(err))
		return empty
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		a.Logger.Warn("Could not decode AI response envelope", zap.Error(err))
		return empty
	}
	if len(cc.Choices) == 0 {
		a.Logger.Warn("AI response contained no choices")
		return empty
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	meta, err := parseExtraction([]byte(content))
	if err != nil {
		a.Logger.Warn("AI reply did not match the extraction contract",
			zap.Error(err),
			zap.String("content", truncate(content, 300)),
		)
		return empty
	}

	a.Logger.Info("AI metadata extraction succeeded",
		zap.String("title", meta.Title),
		zap.Int("keywords", len(meta.Keywords)),
		zap.Int("authors", len(meta.Authors)),
	)
	return meta
}

func (a *OpenAIExtractor) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.Config.OpenAIAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ai response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ai status %d: %s", resp.StatusCode, truncate(string(data), 300))
	}
	return data, nil
}

// parseExtraction validates the model reply against the contract and maps it
// into ExtractedMetadata.
func parseExtraction(raw []byte) (ExtractedMetadata, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ExtractedMetadata{}, fmt.Errorf("reply is not JSON: %w", err)
	}
	if err := extractionSchema.Validate(v); err != nil {
		return ExtractedMetadata{}, fmt.Errorf("reply violates schema: %w", err)
	}

	var wire struct {
		Title       string `json:"title"`
		Summary     string `json:"summary"`
		Keywords    []any  `json:"keywords"`
		Researchers []any  `json:"researchers"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ExtractedMetadata{}, fmt.Errorf("decode reply: %w", err)
	}

	return ExtractedMetadata{
		Title:    strings.TrimSpace(wire.Title),
		Summary:  strings.TrimSpace(wire.Summary),
		Keywords: sanitizeStrings(wire.Keywords),
		Authors:  sanitizeStrings(wire.Researchers),
	}, nil
}

// sanitizeStrings keeps non-empty trimmed strings and silently drops
// everything else the model may have put into the array.
func sanitizeStrings(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
