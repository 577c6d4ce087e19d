// Package memory implements the store interfaces in process, for tests and local mode.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/redhat-partner-ecosystem/scootershare/store"
)

type (
	RecordStore struct {
		mu   sync.RWMutex
		docs map[string]json.RawMessage
	}

	ObjectStore struct {
		mu      sync.RWMutex
		objects map[string][]byte
	}
)

var (
	_ store.RecordStore = (*RecordStore)(nil)
	_ store.ObjectStore = (*ObjectStore)(nil)
)

func NewRecordStore() *RecordStore {
	return &RecordStore{docs: make(map[string]json.RawMessage)}
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string][]byte)}
}

func cleanPath(path string) string {
	return strings.Trim(path, "/")
}

func (s *RecordStore) Get(ctx context.Context, path string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	doc, ok := s.docs[cleanPath(path)]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("memory.Get '%s': %w", path, store.ErrNotFound)
	}
	return json.Unmarshal(doc, out)
}

func (s *RecordStore) Set(ctx context.Context, path string, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.docs[cleanPath(path)] = doc
	s.mu.Unlock()

	return nil
}

func (s *RecordStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p := cleanPath(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]interface{})
	if doc, ok := s.docs[p]; ok {
		if err := json.Unmarshal(doc, &merged); err != nil {
			return fmt.Errorf("memory.Update '%s': %w", path, err)
		}
	}
	for k, v := range fields {
		merged[k] = v
	}

	doc, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	s.docs[p] = doc

	return nil
}

func (s *RecordStore) Query(ctx context.Context, path, orderBy string, limit int) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := cleanPath(path) + "/"

	s.mu.RLock()
	var records []store.Record
	for k, doc := range s.docs {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		key := strings.TrimPrefix(k, prefix)
		if key == "" || strings.Contains(key, "/") {
			continue
		}
		records = append(records, store.Record{Key: key, Value: append(json.RawMessage(nil), doc...)})
	}
	s.mu.RUnlock()

	store.SortRecords(records, orderBy)

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// Len returns the number of stored documents
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *ObjectStore) Upload(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}

	s.mu.Lock()
	s.objects[cleanPath(key)] = buf.Bytes()
	s.mu.Unlock()

	return nil
}

func (s *ObjectStore) DownloadURL(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	_, ok := s.objects[cleanPath(key)]
	s.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("memory.DownloadURL '%s': %w", key, store.ErrNotFound)
	}
	return "memory://" + cleanPath(key), nil
}

// Object returns the stored bytes
func (s *ObjectStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[cleanPath(key)]
	return data, ok
}
