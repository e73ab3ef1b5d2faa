package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/vadimbarashkov/affiliate-publisher/internal/storage"
)

var errUnknown = errors.New("unknown error")

func setupStore(t testing.TB) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	db := sqlx.NewDb(mockDB, "sqlmock")
	store := New(db)

	t.Cleanup(func() {
		mockDB.Close()
		db.Close()
	})

	return store, mock
}

func TestStore_Get(t *testing.T) {
	t.Run("blob not found", func(t *testing.T) {
		store, mock := setupStore(t)

		mock.ExpectQuery(`SELECT data FROM blobs`).
			WithArgs("used_affiliate_links").
			WillReturnRows(sqlmock.NewRows([]string{"data"}))

		data, err := store.Get(context.TODO(), "used_affiliate_links")

		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.Nil(t, data)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown error", func(t *testing.T) {
		store, mock := setupStore(t)

		mock.ExpectQuery(`SELECT data FROM blobs`).
			WithArgs("used_affiliate_links").
			WillReturnError(errUnknown)

		data, err := store.Get(context.TODO(), "used_affiliate_links")

		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, data)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		store, mock := setupStore(t)

		rows := sqlmock.NewRows([]string{"data"}).AddRow([]byte(`["a"]`))
		mock.ExpectQuery(`SELECT data FROM blobs`).
			WithArgs("used_affiliate_links").
			WillReturnRows(rows)

		data, err := store.Get(context.TODO(), "used_affiliate_links")

		assert.NoError(t, err)
		assert.Equal(t, []byte(`["a"]`), data)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Put(t *testing.T) {
	t.Run("write failure", func(t *testing.T) {
		store, mock := setupStore(t)

		mock.ExpectExec(`INSERT INTO blobs`).
			WithArgs("used_affiliate_links", []byte(`[]`)).
			WillReturnError(errUnknown)

		err := store.Put(context.TODO(), "used_affiliate_links", []byte(`[]`))

		assert.ErrorIs(t, err, errUnknown)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		store, mock := setupStore(t)

		mock.ExpectExec(`INSERT INTO blobs`).
			WithArgs("used_affiliate_links", []byte(`[]`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Put(context.TODO(), "used_affiliate_links", []byte(`[]`))

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Delete(t *testing.T) {
	t.Run("blob not found", func(t *testing.T) {
		store, mock := setupStore(t)

		mock.ExpectExec(`DELETE FROM blobs`).
			WithArgs("used_affiliate_links").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.Delete(context.TODO(), "used_affiliate_links")

		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		store, mock := setupStore(t)

		mock.ExpectExec(`DELETE FROM blobs`).
			WithArgs("used_affiliate_links").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Delete(context.TODO(), "used_affiliate_links")

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
