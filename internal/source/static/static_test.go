package static

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
)

func TestSource_Links(t *testing.T) {
	links := []models.AffiliateLink{
		{URL: "https://a", Categories: []string{"Home"}},
		{URL: "https://b", Categories: []string{"Tech"}},
	}

	src := New("static", links)

	t.Run("returns configured links", func(t *testing.T) {
		got, err := src.Links(context.TODO(), 0)

		require.NoError(t, err)
		assert.Equal(t, links, got)
	})

	t.Run("respects the limit", func(t *testing.T) {
		got, err := src.Links(context.TODO(), 1)

		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("callers cannot mutate the configured set", func(t *testing.T) {
		got, _ := src.Links(context.TODO(), 0)
		got[0].URL = "mutated"

		again, _ := src.Links(context.TODO(), 0)
		assert.Equal(t, "https://a", again[0].URL)
	})
}
