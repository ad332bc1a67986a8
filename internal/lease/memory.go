package lease

import (
	"context"
	"sync"
	"time"
)

type Memory struct {
	mu     sync.Mutex
	now    func() time.Time
	leases map[string]time.Time
}

// NewMemory returns a process-local Manager. A nil now uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now, leases: map[string]time.Time{}}
}

func (m *Memory) TryObtain(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if exp, ok := m.leases[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.leases[key] = now.Add(ttl)
	return true, nil
}
