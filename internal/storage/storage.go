// Package storage defines the key/blob contract backing the usage ledger.
// The contract is deliberately minimal: no transactions and no
// optimistic-concurrency token.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no blob exists under the requested key.
var ErrNotFound = errors.New("blob not found")

// Store is a key/blob store. Put overwrites the whole blob in one write.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}
