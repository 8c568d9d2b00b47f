package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/lueurxax/supplier-catalog/internal/core/ports"
)

var (
	_ ports.ObjectStore  = (*ObjectStore)(nil)
	_ ports.MediaFetcher = (*MediaFetcher)(nil)
)

const mockPublicBase = "https://media.test/"

// ObjectStore is an in-memory ports.ObjectStore.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// PutFn allows overriding Put behavior.
	PutFn func(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// NewObjectStore creates an empty object store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string][]byte)}
}

// Put stores data and returns its public URL.
func (s *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.PutFn != nil {
		return s.PutFn(ctx, key, data, contentType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	url := mockPublicBase + key
	s.objects[url] = append([]byte(nil), data...)

	return url, nil
}

// Get returns the data stored under url.
func (s *ObjectStore) Get(_ context.Context, url string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[url]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", url, ErrObjectNotFound)
	}

	return data, nil
}

// Delete removes the object stored under url. Missing objects are ignored.
func (s *ObjectStore) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, url)

	return nil
}

// Len returns the number of stored objects.
func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.objects)
}

// MediaFetcher is an in-memory ports.MediaFetcher keyed by media ref.
type MediaFetcher struct {
	mu    sync.RWMutex
	media map[string][]byte
	fails map[string]error
}

// NewMediaFetcher creates an empty fetcher.
func NewMediaFetcher() *MediaFetcher {
	return &MediaFetcher{
		media: make(map[string][]byte),
		fails: make(map[string]error),
	}
}

// Set registers the payload for ref.
func (f *MediaFetcher) Set(ref string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.media[ref] = data
}

// Fail makes fetches of ref return err.
func (f *MediaFetcher) Fail(ref string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fails[ref] = err
}

// Fetch returns the registered payload as image/jpeg.
func (f *MediaFetcher) Fetch(_ context.Context, ref string) ([]byte, string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err, ok := f.fails[ref]; ok {
		return nil, "", err
	}

	data, ok := f.media[ref]
	if !ok {
		return nil, "", fmt.Errorf("fetch %s: %w", ref, ErrObjectNotFound)
	}

	return data, "image/jpeg", nil
}
