package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Collection names under the configured namespace prefix.
const (
	CollectionFarms         = "farms"
	CollectionPools         = "pools"
	CollectionTokenMetadata = "token_metadata"
	CollectionRefreshReport = "refresh_report"
)

// DefaultPrefix namespaces every collection key.
const DefaultPrefix = "farmscope"

// ErrLeaseHeld is returned when another writer holds the refresh lease.
var ErrLeaseHeld = errors.New("cache: lease held by another writer")

// Store is a hash-structured keyspace whose writes replace a whole collection.
// Readers observe either the previous or the new collection, never a mix.
type Store interface {
	// Put replaces the collection stored under key with entries.
	Put(ctx context.Context, key string, entries map[string]json.RawMessage) error
	// GetAll returns every entry of the collection; a missing key is empty.
	GetAll(ctx context.Context, key string) (map[string]json.RawMessage, error)
	// CommittedAt returns when key was last replaced.
	CommittedAt(ctx context.Context, key string) (time.Time, bool, error)
	Close() error
}

// Leaser is implemented by stores that can hold a cross-process lease.
type Leaser interface {
	AcquireLease(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Copy returns a deep copy of entries.
func Copy(entries map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(entries))
	for k, v := range entries {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
