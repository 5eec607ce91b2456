package ports

import "context"

// BlobStore is an opaque string-keyed store for session payloads.
type BlobStore interface {
	// Get returns the blob stored under key. found is false when nothing was ever written.
	Get(ctx context.Context, key string) (blob []byte, found bool, err error)
	// Set replaces the blob stored under key.
	Set(ctx context.Context, key string, blob []byte) error
}

// BatchSetter is implemented by stores that can write several keys in one round trip.
// Writers fall back to one Set per key when a store does not implement it.
type BatchSetter interface {
	SetMany(ctx context.Context, blobs map[string][]byte) error
}
