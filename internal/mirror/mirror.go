// Package mirror archives committed collections to a document store.
package mirror

import (
	"context"
	"errors"
	"fmt"
)

// Sink receives every record of a collection after the collection was
// committed to the cache.
type Sink interface {
	InsertMany(ctx context.Context, collection string, records []interface{}) error
	Close(ctx context.Context) error
}

// Records converts a typed slice into the []interface{} Sink expects.
func Records[T any](items []T) []interface{} {
	out := make([]interface{}, len(items))
	for i := range items {
		out[i] = items[i]
	}
	return out
}

// Multi fans a write out to several sinks and joins their errors.
type Multi []Sink

func (m Multi) InsertMany(ctx context.Context, collection string, records []interface{}) error {
	var errs []error
	for _, sink := range m {
		if err := sink.InsertMany(ctx, collection, records); err != nil {
			errs = append(errs, fmt.Errorf("mirror %s: %w", collection, err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close(ctx context.Context) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
