package pinterest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadimbarashkov/affiliate-publisher/internal/channel"
	"github.com/vadimbarashkov/affiliate-publisher/internal/fetch"
	"github.com/vadimbarashkov/affiliate-publisher/internal/llm"
	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
)

func testPolicy() fetch.Policy {
	return fetch.Policy{
		MaxRetries:   1,
		InitialDelay: time.Microsecond,
		MaxDelay:     time.Millisecond,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyLLM fails with a transient error for the first failures calls, then
// answers every prompt with text.
type flakyLLM struct {
	failures int
	text     string
	calls    int
}

func (f *flakyLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", fetch.Transient(errors.New("connection reset"))
	}
	return f.text, nil
}

func testLink() models.AffiliateLink {
	return models.AffiliateLink{
		URL:        "https://shop.test/item?tag=aff-20",
		Categories: []string{"Home"},
	}
}

func testContent() models.ComposedContent {
	return models.ComposedContent{
		Title:       "Cozy Home Upgrades",
		Description: "A practical guide.",
		MediaURLs:   []string{"https://img.test/1.jpg"},
	}
}

func TestPublisher_Publish(t *testing.T) {
	t.Run("skips links without media", func(t *testing.T) {
		p := New(Config{BaseURL: "http://unused", AccessToken: "token"}, llm.Disabled{}, testPolicy(), discardLogger())

		content := testContent()
		content.MediaURLs = nil

		attempt := p.Publish(context.TODO(), content, testLink())

		require.Equal(t, models.OutcomeSkipped, attempt.Outcome)
		assert.Contains(t, attempt.Reason, "media")
	})

	t.Run("reuses existing board and creates pin", func(t *testing.T) {
		var pin map[string]any

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer token", r.Header.Get("Authorization"))

			switch {
			case r.Method == http.MethodGet && r.URL.Path == "/boards":
				json.NewEncoder(w).Encode(boardList{Items: []board{{ID: "b1", Name: "Home"}}})
			case r.Method == http.MethodPost && r.URL.Path == "/pins":
				require.NoError(t, json.NewDecoder(r.Body).Decode(&pin))
				w.WriteHeader(http.StatusCreated)
				json.NewEncoder(w).Encode(map[string]string{"id": "pin-1"})
			default:
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			}
		}))
		defer server.Close()

		p := New(Config{BaseURL: server.URL, AccessToken: "token"}, llm.Disabled{}, testPolicy(), discardLogger())

		attempt := p.Publish(context.TODO(), testContent(), testLink())

		require.Equal(t, models.OutcomeCreated, attempt.Outcome)
		assert.Equal(t, "pin-1", attempt.ContentID)
		assert.Equal(t, "b1", pin["board_id"])
		assert.Equal(t, "https://shop.test/item?tag=aff-20", pin["link"])

		desc, _ := pin["description"].(string)
		assert.Contains(t, desc, channel.Disclosure, "disclosure is appended verbatim")

		media, _ := pin["media_source"].(map[string]any)
		assert.Equal(t, "image_url", media["source_type"])
		assert.Equal(t, "https://img.test/1.jpg", media["url"])
	})

	t.Run("creates missing board", func(t *testing.T) {
		var boardPayload map[string]string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodGet && r.URL.Path == "/boards":
				json.NewEncoder(w).Encode(boardList{})
			case r.Method == http.MethodPost && r.URL.Path == "/boards":
				require.NoError(t, json.NewDecoder(r.Body).Decode(&boardPayload))
				w.WriteHeader(http.StatusCreated)
				json.NewEncoder(w).Encode(board{ID: "b2", Name: "Home"})
			case r.Method == http.MethodPost && r.URL.Path == "/pins":
				var pin map[string]any
				json.NewDecoder(r.Body).Decode(&pin)
				assert.Equal(t, "b2", pin["board_id"])
				json.NewEncoder(w).Encode(map[string]string{"id": "pin-2"})
			}
		}))
		defer server.Close()

		p := New(Config{BaseURL: server.URL, AccessToken: "token"}, llm.Disabled{}, testPolicy(), discardLogger())

		attempt := p.Publish(context.TODO(), testContent(), testLink())

		require.Equal(t, models.OutcomeCreated, attempt.Outcome)
		assert.Equal(t, "Home", boardPayload["name"])
		assert.NotEmpty(t, boardPayload["description"], "board gets a fallback description when generation is unavailable")
	})

	t.Run("board description survives a transient provider failure", func(t *testing.T) {
		var boardPayload map[string]string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodGet && r.URL.Path == "/boards":
				json.NewEncoder(w).Encode(boardList{})
			case r.Method == http.MethodPost && r.URL.Path == "/boards":
				json.NewDecoder(r.Body).Decode(&boardPayload)
				w.WriteHeader(http.StatusCreated)
				json.NewEncoder(w).Encode(board{ID: "b3", Name: "Home"})
			case r.Method == http.MethodPost && r.URL.Path == "/pins":
				json.NewEncoder(w).Encode(map[string]string{"id": "pin-3"})
			}
		}))
		defer server.Close()

		llmFlaky := &flakyLLM{failures: 1, text: "Cozy corners and clever storage."}
		p := New(Config{BaseURL: server.URL, AccessToken: "token"}, llmFlaky, testPolicy(), discardLogger())

		attempt := p.Publish(context.TODO(), testContent(), testLink())

		require.Equal(t, models.OutcomeCreated, attempt.Outcome)
		assert.Equal(t, "Cozy corners and clever storage.", boardPayload["description"])
		assert.Equal(t, 2, llmFlaky.calls, "failed generation attempt was retried, not abandoned")
	})

	t.Run("rejected pin reports a failed attempt", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/boards" {
				json.NewEncoder(w).Encode(boardList{Items: []board{{ID: "b1", Name: "Home"}}})
				return
			}
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		p := New(Config{BaseURL: server.URL, AccessToken: "bad"}, llm.Disabled{}, testPolicy(), discardLogger())

		attempt := p.Publish(context.TODO(), testContent(), testLink())

		require.Equal(t, models.OutcomeFailed, attempt.Outcome)
		assert.Error(t, attempt.Err)
	})
}

func TestPublisher_Constraints(t *testing.T) {
	p := New(Config{}, llm.Disabled{}, testPolicy(), discardLogger())
	cons := p.Constraints()

	assert.True(t, cons.RequiresMedia, "pins cannot publish without an image")
	assert.Equal(t, titleMaxLen, cons.TitleMaxLen)
	assert.Less(t, cons.DescriptionMaxLen, descriptionMaxLen,
		"description budget leaves room for the disclosure")
	assert.Positive(t, cons.DescriptionMaxLen)

	t.Run("budget smaller than the disclosure is reset to the API cap", func(t *testing.T) {
		p := New(Config{DescriptionMaxLen: 10}, llm.Disabled{}, testPolicy(), discardLogger())
		cons := p.Constraints()

		assert.Equal(t, descriptionMaxLen-disclosureOverhead(), cons.DescriptionMaxLen)
		assert.Positive(t, cons.DescriptionMaxLen,
			"a negative budget would let a looser channel win the merge")
	})
}
