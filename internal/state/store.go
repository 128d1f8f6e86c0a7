package state

import (
	"context"
	"time"
)

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// BlobStore keeps binary snapshots keyed by name, newest write wins.
type BlobStore interface {
	PutBlob(ctx context.Context, key string, data []byte, takenAt time.Time) error
	GetBlob(ctx context.Context, key string) ([]byte, time.Time, bool, error)
}
