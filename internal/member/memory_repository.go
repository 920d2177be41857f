package member

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	members map[string]Member
	phones  map[string]string
}

// NewMemoryRepository builds an in-memory member store for development and
// tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{members: make(map[string]Member), phones: make(map[string]string)}
}

func (r *memoryRepository) Create(_ context.Context, m Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.phones[m.Phone]; exists {
		return ErrMemberExists
	}
	r.members[m.ID] = m
	r.phones[m.Phone] = m.ID
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return Member{}, ErrMemberNotFound
	}
	return m, nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.phones[phone]
	if !ok {
		return Member{}, ErrMemberNotFound
	}
	return r.members[id], nil
}

func (r *memoryRepository) UpdateDevice(_ context.Context, id, deviceID string) error {
	return r.mutate(id, func(m *Member) { m.DeviceID = deviceID })
}

func (r *memoryRepository) RecordLogin(_ context.Context, id, tier string, at time.Time) error {
	return r.mutate(id, func(m *Member) {
		m.Tier = tier
		m.LastLoginAt = at.UTC()
	})
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, id string, version int) error {
	return r.mutate(id, func(m *Member) { m.TokenVersion = version })
}

func (r *memoryRepository) mutate(id string, fn func(*Member)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return ErrMemberNotFound
	}
	fn(&m)
	r.members[id] = m
	return nil
}
