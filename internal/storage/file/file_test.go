package file

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadimbarashkov/affiliate-publisher/internal/storage"
)

func TestStore(t *testing.T) {
	t.Run("get missing blob", func(t *testing.T) {
		store, err := New(t.TempDir())
		require.NoError(t, err)

		data, err := store.Get(context.TODO(), "used_affiliate_links")

		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.Nil(t, data)
	})

	t.Run("put then get", func(t *testing.T) {
		store, err := New(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Put(context.TODO(), "used_affiliate_links", []byte(`["a"]`)))

		data, err := store.Get(context.TODO(), "used_affiliate_links")

		assert.NoError(t, err)
		assert.Equal(t, []byte(`["a"]`), data)
	})

	t.Run("put overwrites the whole blob", func(t *testing.T) {
		store, err := New(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Put(context.TODO(), "used_affiliate_links", []byte(`["a"]`)))
		require.NoError(t, store.Put(context.TODO(), "used_affiliate_links", []byte(`["a","b"]`)))

		data, err := store.Get(context.TODO(), "used_affiliate_links")

		assert.NoError(t, err)
		assert.Equal(t, []byte(`["a","b"]`), data)
	})

	t.Run("delete", func(t *testing.T) {
		store, err := New(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Put(context.TODO(), "used_affiliate_links", []byte(`[]`)))
		require.NoError(t, store.Delete(context.TODO(), "used_affiliate_links"))

		_, err = store.Get(context.TODO(), "used_affiliate_links")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		err = store.Delete(context.TODO(), "used_affiliate_links")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
