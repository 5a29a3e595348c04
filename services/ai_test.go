package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"doc-hand/config"
	"doc-hand/models"
)

// chatReply wraps content into the chat/completions envelope the client
// expects.
func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func newAIServer(t *testing.T, status int, reply string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
}

func newAIExtractor(baseURL string) *OpenAIExtractor {
	return NewOpenAIExtractor(&config.Config{
		OpenAIAPIKey:  "test-key",
		OpenAIModel:   "test-model",
		OpenAIBaseURL: baseURL,
	}, zap.NewNop())
}

func TestExtractParsesWellFormedReply(t *testing.T) {
	content := `{"title":"Estudo de Toxina","summary":"Resumo.","keywords":["toxina","estética"],"researchers":["A. Silva","B. Souza"]}`
	srv := newAIServer(t, http.StatusOK, chatReply(content), nil)
	defer srv.Close()

	meta := newAIExtractor(srv.URL).Extract(context.Background(), "texto do documento", models.TypeScientificArticle)

	assert.Equal(t, "Estudo de Toxina", meta.Title)
	assert.Equal(t, "Resumo.", meta.Summary)
	assert.Equal(t, []string{"toxina", "estética"}, meta.Keywords)
	assert.Equal(t, []string{"A. Silva", "B. Souza"}, meta.Authors)
}

func TestExtractFiltersNonStringArrayEntries(t *testing.T) {
	content := `{"title":"T","summary":"","keywords":["ok",42,null,"  ","também"],"researchers":[true,"C. Lima"]}`
	srv := newAIServer(t, http.StatusOK, chatReply(content), nil)
	defer srv.Close()

	meta := newAIExtractor(srv.URL).Extract(context.Background(), "texto", models.TypeOther)

	assert.Equal(t, []string{"ok", "também"}, meta.Keywords)
	assert.Equal(t, []string{"C. Lima"}, meta.Authors)
}

func TestExtractDegradesOnContractViolations(t *testing.T) {
	cases := map[string]string{
		"missing required field": `{"title":"T","keywords":[],"researchers":[]}`,
		"wrong title type":       `{"title":7,"summary":"","keywords":[],"researchers":[]}`,
		"not json at all":        `the model rambled instead of answering`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newAIServer(t, http.StatusOK, chatReply(content), nil)
			defer srv.Close()

			meta := newAIExtractor(srv.URL).Extract(context.Background(), "texto", models.TypeProtocol)
			assert.Equal(t, ExtractedMetadata{}, meta)
		})
	}
}

func TestExtractDegradesOnHTTPError(t *testing.T) {
	srv := newAIServer(t, http.StatusTooManyRequests, `{"error":"rate limit"}`, nil)
	defer srv.Close()

	meta := newAIExtractor(srv.URL).Extract(context.Background(), "texto", models.TypeOther)
	assert.Equal(t, ExtractedMetadata{}, meta)
}

func TestExtractDegradesOnEmptyChoices(t *testing.T) {
	srv := newAIServer(t, http.StatusOK, `{"choices":[]}`, nil)
	defer srv.Close()

	meta := newAIExtractor(srv.URL).Extract(context.Background(), "texto", models.TypeOther)
	assert.Equal(t, ExtractedMetadata{}, meta)
}

func TestExtractSkipsWhenNoCredential(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	a := NewOpenAIExtractor(&config.Config{OpenAIBaseURL: srv.URL}, zap.NewNop())
	meta := a.Extract(context.Background(), "texto", models.TypeOther)

	assert.Equal(t, ExtractedMetadata{}, meta)
	assert.False(t, called, "no credential means no upstream call")
}

func TestExtractSkipsEmptyText(t *testing.T) {
	a := newAIExtractor("http://127.0.0.1:1") // would fail if contacted
	meta := a.Extract(context.Background(), "   \n ", models.TypeOther)
	assert.Equal(t, ExtractedMetadata{}, meta)
}

func TestExtractTruncatesInput(t *testing.T) {
	var captured map[string]any
	content := `{"title":"","summary":"","keywords":[],"researchers":[]}`
	srv := newAIServer(t, http.StatusOK, chatReply(content), &captured)
	defer srv.Close()

	long := strings.Repeat("a", aiInputLimit) + "OVERFLOW"
	newAIExtractor(srv.URL).Extract(context.Background(), long, models.TypeOther)

	require.NotNil(t, captured)
	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)["content"].(string)
	assert.NotContains(t, user, "OVERFLOW")
	assert.Contains(t, user, strings.Repeat("a", 100))
}
