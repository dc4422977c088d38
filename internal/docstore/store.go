// Package docstore provides the JSON document store the workflow state
// lives in. Documents are addressed by category and key and stored under
// "{namespace}/{category}/{key}.json".
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"regvil_tracker_backend/platform/apperr"
)

// Document categories in use.
const (
	CategoryEventLog    = "event_log"
	CategoryVarsling    = "varsling"
	CategoryDataStorage = "data_storage"
)

// Store is the flat key -> JSON blob store.
type Store interface {
	// Get reads the document into out. Returns apperr.NotFound when the
	// key does not exist.
	Get(ctx context.Context, category, key string, out any) error

	// Put writes the document, replacing any previous version.
	Put(ctx context.Context, category, key string, doc any) error

	// Exists reports whether the key is present.
	Exists(ctx context.Context, category, key string) (bool, error)

	// List returns the keys in a category whose key starts with prefix,
	// sorted. Pass "" to list the whole category.
	List(ctx context.Context, category, prefix string) ([]string, error)
}

// ObjectName builds the stored object name for a namespace, category and key.
func ObjectName(namespace, category, key string) string {
	return fmt.Sprintf("%s/%s/%s.json", namespace, category, key)
}

// Memory is an in-memory Store for tests.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, category, key string, out any) error {
	m.mu.RLock()
	raw, ok := m.docs[category+"/"+key]
	m.mu.RUnlock()
	if !ok {
		return apperr.NotFound(fmt.Sprintf("document %s/%s not found", category, key)).WithOp("docstore.Get")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindDecode, fmt.Sprintf("document %s/%s is not valid JSON", category, key), err).WithOp("docstore.Get")
	}
	return nil
}

func (m *Memory) Put(_ context.Context, category, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal document", err).WithOp("docstore.Put")
	}
	m.mu.Lock()
	m.docs[category+"/"+key] = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) Exists(_ context.Context, category, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.docs[category+"/"+key]
	return ok, nil
}

func (m *Memory) List(_ context.Context, category, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for name := range m.docs {
		if !strings.HasPrefix(name, category+"/") {
			continue
		}
		key := strings.TrimPrefix(name, category+"/")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
