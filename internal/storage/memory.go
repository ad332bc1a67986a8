package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/you/throttler/internal/domain"
)

// Memory is a process-local worker registry with the same semantics as
// Store.
type Memory struct {
	mu      sync.Mutex
	workers map[string]domain.Worker
	limited map[string]bool
}

func NewMemory(workers ...domain.Worker) *Memory {
	m := &Memory{workers: map[string]domain.Worker{}, limited: map[string]bool{}}
	for _, w := range workers {
		m.workers[w.Name] = w
		m.limited[w.Name] = true
	}
	return m
}

func (m *Memory) Worker(_ context.Context, name string) (domain.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[name]
	if !ok {
		return w, errors.Wrap(ErrWorkerNotFound, name)
	}
	if !m.limited[name] {
		w.CurrentLimit = w.MaxConcurrencyLimit
	}
	return w, nil
}

func (m *Memory) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	m.mu.Lock()
	names := make([]string, 0, len(m.workers))
	for name := range m.workers {
		names = append(names, name)
	}
	m.mu.Unlock()
	sort.Strings(names)

	out := make([]domain.Worker, 0, len(names))
	for _, name := range names {
		w, err := m.Worker(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (m *Memory) UpsertWorker(_ context.Context, p UpsertWorkerParams) error {
	if p.MaxConcurrencyLimit < 0 {
		return errors.Errorf("max concurrency limit %d is negative", p.MaxConcurrencyLimit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.workers[p.Name]
	w.Name = p.Name
	w.FeatureCategory = p.FeatureCategory
	w.MaxConcurrencyLimit = p.MaxConcurrencyLimit
	w.UpdatedAt = time.Now()
	m.workers[p.Name] = w
	return nil
}

func (m *Memory) CurrentLimit(ctx context.Context, name string) (int, error) {
	w, err := m.Worker(ctx, name)
	return w.CurrentLimit, err
}

func (m *Memory) SetCurrentLimit(_ context.Context, name string, limit int) error {
	if limit < 0 {
		return errors.Errorf("concurrency limit %d is negative", limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[name]
	if !ok {
		return errors.Wrap(ErrWorkerNotFound, name)
	}
	w.CurrentLimit = limit
	w.UpdatedAt = time.Now()
	m.workers[name] = w
	m.limited[name] = true
	return nil
}
