// Package store declares the remote stores the rental core depends on.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when a path or key holds no data
	ErrNotFound = errors.New("not found")
)

type (
	// Record is one child returned by a query, keyed by its path segment
	Record struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}

	// RecordStore is a hierarchical JSON document store addressed by slash separated paths
	RecordStore interface {
		// Get decodes the document at path into out or returns ErrNotFound
		Get(ctx context.Context, path string, out interface{}) error
		// Set replaces the document at path
		Set(ctx context.Context, path string, v interface{}) error
		// Update merges fields into the document at path, creating it if needed
		Update(ctx context.Context, path string, fields map[string]interface{}) error
		// Query returns the children of path ordered ascending by the orderBy field.
		// A positive limit keeps the last limit children.
		Query(ctx context.Context, path, orderBy string, limit int) ([]Record, error)
	}

	// ObjectStore keeps binary objects, e.g. vehicle photos
	ObjectStore interface {
		Upload(ctx context.Context, key string, r io.Reader) error
		// DownloadURL returns a URL the object can be fetched from or ErrNotFound
		DownloadURL(ctx context.Context, key string) (string, error)
	}
)

// Decode unmarshals the record value into out
func (r Record) Decode(out interface{}) error {
	return json.Unmarshal(r.Value, out)
}
