package progress

import (
	"context"
	"sync"
	"time"

	"product-importer/models"
)

type memoryEntry struct {
	fields  map[string]string
	expires time.Time
}

// MemoryStore is the process-local fallback. Expiry is checked lazily on read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Backend() string {
	return "memory"
}

func (s *MemoryStore) Set(_ context.Context, record models.UploadStatus) error {
	now := s.now()
	record.UpdatedAt = now
	entry := memoryEntry{fields: encode(record), expires: now.Add(s.ttl)}

	s.mu.Lock()
	s.entries[record.TaskID] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, taskID string) (*models.UploadStatus, error) {
	now := s.now()

	s.mu.Lock()
	entry, ok := s.entries[taskID]
	if ok && now.After(entry.expires) {
		delete(s.entries, taskID)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	return decode(taskID, entry.fields)
}
