package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadimbarashkov/affiliate-publisher/internal/fetch"
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

func TestSource_Links(t *testing.T) {
	t.Run("keeps the most reviewed item per keyword", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer key", r.Header.Get("Authorization"))

			var items []catalogItem
			switch r.URL.Query().Get("keywords") {
			case "probiotics":
				items = []catalogItem{
					{DetailPageURL: "https://shop.test/p1", Title: "Daily Probiotic", ReviewCount: 120, ProductGroup: "Health"},
					{DetailPageURL: "https://shop.test/p2", Title: "Probiotic Gummies", ReviewCount: 3400, ProductGroup: "Health"},
					{DetailPageURL: "https://shop.test/p3", Title: "Marketplace Basics Probiotic", ReviewCount: 9000, ProductGroup: "Health"},
				}
			case "teeth whitening":
				items = []catalogItem{
					{DetailPageURL: "https://shop.test/w1", Title: "Whitening Strips", ReviewCount: 50},
				}
			}

			json.NewEncoder(w).Encode(searchResponse{Items: items})
		}))
		defer server.Close()

		src := New(Config{
			BaseURL:    server.URL,
			APIKey:     "key",
			PartnerTag: "tag-20",
			Keywords:   []string{"probiotics", "teeth whitening"},
		}, testPolicy(), discardLogger())

		links, err := src.Links(context.TODO(), 0)

		require.NoError(t, err)
		require.Len(t, links, 2)
		assert.Equal(t, "https://shop.test/p2", links[0].URL, "marketplace-branded items are skipped")
		assert.Equal(t, []string{"Health"}, links[0].Categories)
		assert.Equal(t, []string{"Others"}, links[1].Categories, "missing product group defaults")
	})

	t.Run("failed keyword is skipped, not fatal", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("keywords") == "bad" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			json.NewEncoder(w).Encode(searchResponse{Items: []catalogItem{
				{DetailPageURL: "https://shop.test/ok", Title: "Good Item", ReviewCount: 1},
			}})
		}))
		defer server.Close()

		src := New(Config{
			BaseURL:  server.URL,
			APIKey:   "key",
			Keywords: []string{"bad", "good"},
		}, testPolicy(), discardLogger())

		links, err := src.Links(context.TODO(), 0)

		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "https://shop.test/ok", links[0].URL)
	})

	t.Run("respects the limit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(searchResponse{Items: []catalogItem{
				{DetailPageURL: "https://shop.test/" + r.URL.Query().Get("keywords"), Title: "Item", ReviewCount: 1},
			}})
		}))
		defer server.Close()

		src := New(Config{
			BaseURL:  server.URL,
			APIKey:   "key",
			Keywords: []string{"a", "b", "c"},
		}, testPolicy(), discardLogger())

		links, err := src.Links(context.TODO(), 2)

		require.NoError(t, err)
		assert.Len(t, links, 2)
	})
}
