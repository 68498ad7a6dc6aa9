// Package lease gives one editing session exclusive ownership of a metadata
// record. Leases expire on their own, so a crashed process cannot hold a
// record forever.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLeaseHeld is returned when another owner holds the record.
var ErrLeaseHeld = errors.New("record is held by another session")

// Locker acquires named, expiring leases.
type Locker interface {
	// Acquire reports false if the name is held by anyone, this owner included.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	// Release is safe to call when the lease is not held or has expired.
	Release(ctx context.Context, name string) error
	// Extend fails if this owner does not hold the lease.
	Extend(ctx context.Context, name string, ttl time.Duration) error
}

// Memory is an in-process Locker for single-instance deployments.
type Memory struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{leases: make(map[string]time.Time), now: time.Now}
}

var _ Locker = (*Memory)(nil)

func (m *Memory) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if exp, ok := m.leases[name]; ok && now.Before(exp) {
		return false, nil
	}
	m.leases[name] = now.Add(ttl)
	return true, nil
}

func (m *Memory) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, name)
	return nil
}

func (m *Memory) Extend(ctx context.Context, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	exp, ok := m.leases[name]
	if !ok || !now.Before(exp) {
		return errors.New("lease " + name + " not held")
	}
	m.leases[name] = now.Add(ttl)
	return nil
}
