package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process. Expired records are dropped when their key is reused.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := hashKey(key)
	var existing *Record
	if record, ok := s.records[id]; ok {
		existing = &record
	}
	next, reservation, err := reserve(existing, fingerprint, now.UTC(), ttl)
	if err != nil {
		return Reservation{}, err
	}
	if next != nil {
		s.records[id] = *next
	}
	return reservation, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := hashKey(key)
	record, ok := s.records[id]
	if ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.records[id] = completed(fingerprint, resp, record.CreatedAt, now.UTC(), ttl)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, hashKey(key))
	return nil
}
