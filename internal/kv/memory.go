package kv

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a process-local Store. It honours TTLs against its clock, which
// makes it suitable for tests and single-process development setups.
type Memory struct {
	mu   sync.Mutex
	now  func() time.Time
	keys map[string]time.Time
	sets map[string]*memSet
}

type memSet struct {
	members  map[string]struct{}
	expireAt time.Time
}

// NewMemory returns an empty store. A nil now uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now, keys: map[string]time.Time{}, sets: map[string]*memSet{}}
}

func (m *Memory) SetEX(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = m.now().Add(ttl)
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.keys[key]
	if !ok {
		return false, nil
	}
	if !m.now().Before(exp) {
		delete(m.keys, key)
		return false, nil
	}
	return true, nil
}

func (m *Memory) SAddWithTTL(_ context.Context, set, member string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.liveSet(set)
	if s == nil {
		s = &memSet{members: map[string]struct{}{}}
		m.sets[set] = s
	}
	s.members[member] = struct{}{}
	s.expireAt = m.now().Add(ttl)
	return nil
}

func (m *Memory) SMembers(_ context.Context, set string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.liveSet(set)
	if s == nil {
		return nil, nil
	}
	out := make([]string, 0, len(s.members))
	for member := range s.members {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) SRem(_ context.Context, set, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.liveSet(set); s != nil {
		delete(s.members, member)
		if len(s.members) == 0 {
			delete(m.sets, set)
		}
	}
	return nil
}

// liveSet drops the set if it has expired. Callers hold mu.
func (m *Memory) liveSet(set string) *memSet {
	s, ok := m.sets[set]
	if !ok {
		return nil
	}
	if !m.now().Before(s.expireAt) {
		delete(m.sets, set)
		return nil
	}
	return s
}
