package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is the durable key-value persistence used for the session
// record. It is the Go counterpart of chrome.storage.local on the
// extension and SecureStore/AsyncStorage on the mobile clients.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
