package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"mjscore/internal/ports"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// StorageBackend is the slice of runtime.NakamaModule the blob store needs.
type StorageBackend interface {
	StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error)
	StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error)
}

// errOwnerTaken is returned when a table already has a different owner.
var errOwnerTaken = errors.New("table belongs to another user")

// storage objects must hold a JSON object, so blobs are wrapped
type blobEnvelope struct {
	JSON json.RawMessage `json:"json,omitempty"`
	Data []byte          `json:"data,omitempty"`
}

type ownerRecord struct {
	UserID string `json:"user_id"`
}

// NakamaBlobStore implements ports.BlobStore on Nakama storage objects owned by the system
// user. Each table's keys are "<table id>/<key>" in one collection.
type NakamaBlobStore struct {
	nk         StorageBackend
	collection string
	tableID    string
}

// NewNakamaBlobStore creates a blob store for one table.
func NewNakamaBlobStore(nk StorageBackend, collection, tableID string) *NakamaBlobStore {
	if collection == "" {
		collection = defaultStorageCollection
	}
	return &NakamaBlobStore{nk: nk, collection: collection, tableID: tableID}
}

func (s *NakamaBlobStore) key(key string) string {
	return s.tableID + "/" + key
}

// Get reads one blob.
func (s *NakamaBlobStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	objects, err := s.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: s.collection,
		Key:        s.key(key),
	}})
	if err != nil {
		return nil, false, fmt.Errorf("storage read %s: %w", key, err)
	}
	if len(objects) == 0 {
		return nil, false, nil
	}
	var env blobEnvelope
	if err := json.Unmarshal([]byte(objects[0].GetValue()), &env); err != nil {
		return nil, false, fmt.Errorf("storage decode %s: %w", key, err)
	}
	if env.JSON != nil {
		return env.JSON, true, nil
	}
	return env.Data, true, nil
}

// Set writes one blob, last writer wins.
func (s *NakamaBlobStore) Set(ctx context.Context, key string, blob []byte) error {
	return s.SetMany(ctx, map[string][]byte{key: blob})
}

// SetMany writes every blob in one storage call.
func (s *NakamaBlobStore) SetMany(ctx context.Context, blobs map[string][]byte) error {
	keys := make([]string, 0, len(blobs))
	for k := range blobs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	writes := make([]*runtime.StorageWrite, 0, len(keys))
	for _, k := range keys {
		env := blobEnvelope{Data: blobs[k]}
		if json.Valid(blobs[k]) {
			env = blobEnvelope{JSON: blobs[k]}
		}
		value, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("storage encode %s: %w", k, err)
		}
		writes = append(writes, &runtime.StorageWrite{
			Collection:      s.collection,
			Key:             s.key(k),
			Value:           string(value),
			PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		})
	}
	if _, err := s.nk.StorageWrite(ctx, writes); err != nil {
		return fmt.Errorf("storage write: %w", err)
	}
	return nil
}

// ClaimOwner records userID as the table owner unless someone else already is.
// It returns the effective owner.
func (s *NakamaBlobStore) ClaimOwner(ctx context.Context, userID string) (string, error) {
	value, err := json.Marshal(ownerRecord{UserID: userID})
	if err != nil {
		return "", err
	}
	_, err = s.nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      s.collection,
		Key:             s.key(ownerKey),
		Value:           string(value),
		Version:         "*", // only if absent
		PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}})
	if err == nil {
		return userID, nil
	}
	if !errors.Is(err, runtime.ErrStorageRejectedVersion) {
		return "", fmt.Errorf("storage claim owner: %w", err)
	}
	owner, err := s.Owner(ctx)
	if err != nil {
		return "", err
	}
	if owner != userID {
		return owner, errOwnerTaken
	}
	return owner, nil
}

// Owner returns the recorded table owner, empty when the table was never opened.
func (s *NakamaBlobStore) Owner(ctx context.Context) (string, error) {
	objects, err := s.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: s.collection,
		Key:        s.key(ownerKey),
	}})
	if err != nil {
		return "", fmt.Errorf("storage read owner: %w", err)
	}
	if len(objects) == 0 {
		return "", nil
	}
	var rec ownerRecord
	if err := json.Unmarshal([]byte(objects[0].GetValue()), &rec); err != nil {
		return "", fmt.Errorf("storage decode owner: %w", err)
	}
	return rec.UserID, nil
}

const ownerKey = "owner"

var (
	_ ports.BlobStore   = (*NakamaBlobStore)(nil)
	_ ports.BatchSetter = (*NakamaBlobStore)(nil)
)
