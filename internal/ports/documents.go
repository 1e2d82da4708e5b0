package ports

import (
	"context"
	"errors"

	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
)

// ErrDocumentNotFound is returned when a collection has no record for a key.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore reads keyed records from either the local cache tier or the authoritative server.
type DocumentStore interface {
	// GetFromCache never reaches the server. A miss returns ErrDocumentNotFound.
	GetFromCache(ctx context.Context, collection, key string) (model.Document, error)
	// GetFromServer reads the authoritative copy. Failures map to network or permission errors.
	GetFromServer(ctx context.Context, collection, key string) (model.Document, error)
}

// DocumentWriter writes records and keeps the cache tier coherent.
type DocumentWriter interface {
	Set(ctx context.Context, collection, key string, value any) error
	Delete(ctx context.Context, collection, key string) error
}
