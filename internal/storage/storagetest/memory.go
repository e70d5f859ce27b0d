// Package storagetest provides an in-memory storage.Store for tests.
package storagetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/picklr-io/zipbuilder/internal/storage"
)

var _ storage.Store = (*MemoryStore)(nil)

// Call records one operation made against a MemoryStore.
type Call struct {
	Op     string // get, put, delete
	Bucket string
	Key    string
}

// MemoryStore is an in-process storage.Store. It records every call so callers can
// assert on exactly which objects were touched.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   []Call

	// Fail, when set, is consulted before each operation; a non-nil result
	// is returned instead of performing it.
	Fail func(op, bucket, key string) error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

func (m *MemoryStore) record(op, bucket, key string) error {
	m.calls = append(m.calls, Call{Op: op, Bucket: bucket, Key: key})
	if m.Fail != nil {
		return m.Fail(op, bucket, key)
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record("get", bucket, key); err != nil {
		return nil, err
	}
	data, ok := m.objects[objectKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, storage.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (m *MemoryStore) Put(ctx context.Context, bucket, key string, body io.ReadSeeker) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read body for s3://%s/%s: %w", bucket, key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record("put", bucket, key); err != nil {
		return err
	}
	m.objects[objectKey(bucket, key)] = data
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record("delete", bucket, key); err != nil {
		return err
	}
	delete(m.objects, objectKey(bucket, key))
	return nil
}

// Object returns the stored bytes for bucket/key.
func (m *MemoryStore) Object(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectKey(bucket, key)]
	return data, ok
}

// SetObject stores data at bucket/key without recording a call.
func (m *MemoryStore) SetObject(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey(bucket, key)] = data
}

// Keys returns every stored "bucket/key", sorted.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Calls returns the recorded operations, optionally filtered by op.
func (m *MemoryStore) Calls(op string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}
