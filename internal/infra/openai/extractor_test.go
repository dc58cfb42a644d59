package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/cookbook-catalog/internal/core/ingestion"
)

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 0,
		"model":   DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	})
	return string(body)
}

func newTestExtractor(t *testing.T, handler http.HandlerFunc) *Extractor {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	e, err := NewExtractor("dummy-key", WithRequestOptions(option.WithBaseURL(server.URL+"/")))
	require.NoError(t, err)
	e.baseBackoff = time.Millisecond
	return e
}

func TestNewExtractor_RequiresAPIKey(t *testing.T) {
	_, err := NewExtractor("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestNewExtractor_Options(t *testing.T) {
	e, err := NewExtractor("dummy-key", WithModel("gpt-4o"), WithTimeout(5*time.Second), WithRequestsPerMinute(60))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", e.ModelName())
	assert.Equal(t, 5*time.Second, e.timeout)
	require.NotNil(t, e.limiter)
}

func TestExtract_ParsesRecipes(t *testing.T) {
	var request map[string]any
	e := newTestExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &request)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody(`{"recipes":[
			{"ingredient":"Tomato","recipeName":"Gazpacho","pageNumber":12,"confidence":0.95},
			{"ingredient":"","recipeName":"skip me","pageNumber":1,"confidence":0.5},
			{"ingredient":"basil","recipeName":"Pesto","pageNumber":40,"confidence":1.7}
		]}`))
	})

	got, err := e.Extract(context.Background(), []byte{0xff, 0xd8}, "image/jpeg")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ingestion.Extraction{Ingredient: "Tomato", RecipeName: "Gazpacho", PageNumber: 12, Confidence: 0.95}, got[0])
	assert.Equal(t, 1.0, got[1].Confidence)

	assert.Equal(t, DefaultModel, request["model"])
	raw, _ := json.Marshal(request["messages"])
	assert.Contains(t, string(raw), "data:image/jpeg;base64,")
}

func TestExtract_InvalidJSON(t *testing.T) {
	e := newTestExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("not json"))
	})

	_, err := e.Extract(context.Background(), []byte{1}, "image/png")
	require.Error(t, err)
	assert.ErrorIs(t, err, ingestion.ErrExtractionFailed)
}

func TestExtract_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	e := newTestExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
			return
		}
		_, _ = io.WriteString(w, completionBody(`{"recipes":[]}`))
	})

	got, err := e.Extract(context.Background(), []byte{1}, "image/png")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExtract_ServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	e := newTestExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad image"}}`)
	})

	_, err := e.Extract(context.Background(), []byte{1}, "image/png")
	require.Error(t, err)
	assert.ErrorIs(t, err, ingestion.ErrExtractionFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestParseExtractions_CodeFence(t *testing.T) {
	got, err := parseExtractions("```json\n{\"recipes\":[{\"ingredient\":\"leek\",\"recipeName\":\"Soup\",\"pageNumber\":3,\"confidence\":0.7}]}\n```")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "leek", got[0].Ingredient)
	assert.True(t, strings.HasPrefix(got[0].RecipeName, "So"))
}
