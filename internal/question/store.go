package question

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("question not found")

type Store interface {
	Put(ctx context.Context, q Question) error
	FindByID(ctx context.Context, id string) (Question, error)
	// FindByIDs returns the questions that still exist, in the order of ids.
	// Missing ids are silently dropped.
	FindByIDs(ctx context.Context, ids []string) ([]Question, error)
	// Sample draws up to count questions uniformly at random from the pool
	// matching f, without replacement.
	Sample(ctx context.Context, f Filter, count int) ([]Question, error)
	CountMatching(ctx context.Context, f Filter) (int, error)
	Delete(ctx context.Context, id string) error
}

type memoryStore struct {
	mu sync.RWMutex
	m  map[string]Question
}

func NewInMemoryStore() Store {
	return &memoryStore{m: map[string]Question{}}
}

func (s *memoryStore) Put(_ context.Context, q Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[q.ID] = q
	return nil
}

func (s *memoryStore) FindByID(_ context.Context, id string) (Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.m[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	return q, nil
}

func (s *memoryStore) FindByIDs(_ context.Context, ids []string) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := s.m[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *memoryStore) Sample(_ context.Context, f Filter, count int) ([]Question, error) {
	if count <= 0 {
		return []Question{}, nil
	}
	s.mu.RLock()
	pool := make([]Question, 0, len(s.m))
	for _, q := range s.m {
		if f.Matches(q) {
			pool = append(pool, q)
		}
	}
	s.mu.RUnlock()
	// map iteration order is random but not uniform; shuffle explicitly
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if count < len(pool) {
		pool = pool[:count]
	}
	return pool, nil
}

func (s *memoryStore) CountMatching(_ context.Context, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, q := range s.m {
		if f.Matches(q) {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}
