// Package store is the persistence boundary for canonical registry records.
package store

import (
	"context"

	"skyreg/internal/registry"
	"skyreg/pkg/platform/sentinel"
)

// ErrNotFound is returned when no record matches the requested key.
var ErrNotFound = sentinel.ErrNotFound

// Store exposes point lookups plus an atomic full-replace transaction.
type Store interface {
	// FindByKey looks up one record by a derived key. Returns ErrNotFound
	// (possibly wrapped) when no record matches.
	FindByKey(ctx context.Context, kind registry.KeyKind, value string) (*registry.Aircraft, error)

	// ReadMetadata returns the last completed sync's metadata, or nil when
	// no sync has ever completed.
	ReadMetadata(ctx context.Context) (*registry.SyncMetadata, error)

	// Replace runs fn inside one all-or-nothing transaction with an extended
	// bulk timeout. If fn returns an error the previously committed record
	// set and metadata are untouched.
	Replace(ctx context.Context, fn func(ctx context.Context, tx BulkTx) error) error
}

// BulkTx is the write surface available inside a Replace transaction.
type BulkTx interface {
	DeleteAll(ctx context.Context) error
	BatchUpsert(ctx context.Context, records []registry.Aircraft) (int, error)
	WriteMetadata(ctx context.Context, meta registry.SyncMetadata) error
}
