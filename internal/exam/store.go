package exam

import (
	"context"
	"sync"
)

// InstanceStore persists exam instances. Instances are written once at
// composition and touched again only to set FinishedAt.
type InstanceStore interface {
	PutInstance(ctx context.Context, e *ExamInstance) error
	GetInstance(ctx context.Context, id string) (*ExamInstance, error)
	MarkFinished(ctx context.Context, id string, at int64) error
}

// AttemptStore keeps one evolving attempt record per exam instance.
type AttemptStore interface {
	CreateOrUpdate(ctx context.Context, a *Attempt) (*Attempt, error)
	FindLatestByExam(ctx context.Context, examID string) (*Attempt, error)
	FindLatestByUserOrgModule(ctx context.Context, userID, orgID, module string) (*Attempt, error)
}

type memoryInstanceStore struct {
	mu sync.RWMutex
	m  map[string]ExamInstance
}

func NewInMemoryInstanceStore() InstanceStore {
	return &memoryInstanceStore{m: map[string]ExamInstance{}}
}

func (s *memoryInstanceStore) PutInstance(_ context.Context, e *ExamInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[e.ID] = *e
	return nil
}

func (s *memoryInstanceStore) GetInstance(_ context.Context, id string) (*ExamInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[id]
	if !ok {
		return nil, ErrExamNotFound
	}
	cp := e
	return &cp, nil
}

func (s *memoryInstanceStore) MarkFinished(_ context.Context, id string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[id]
	if !ok {
		return ErrExamNotFound
	}
	e.FinishedAt = at
	s.m[id] = e
	return nil
}

type memoryAttemptStore struct {
	mu sync.RWMutex
	// keyed by exam id; the latest attempt for an instance replaces the
	// previous record (resubmission itself is rejected upstream)
	byExam map[string]Attempt
	order  []string
}

func NewInMemoryAttemptStore() AttemptStore {
	return &memoryAttemptStore{byExam: map[string]Attempt{}}
}

func (s *memoryAttemptStore) CreateOrUpdate(_ context.Context, a *Attempt) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byExam[a.ExamID]; !ok {
		s.order = append(s.order, a.ExamID)
	}
	s.byExam[a.ExamID] = *a
	cp := *a
	return &cp, nil
}

func (s *memoryAttemptStore) FindLatestByExam(_ context.Context, examID string) (*Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byExam[examID]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	cp := a
	return &cp, nil
}

func (s *memoryAttemptStore) FindLatestByUserOrgModule(_ context.Context, userID, orgID, module string) (*Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		a := s.byExam[s.order[i]]
		if a.UserID == userID && a.OrgID == orgID && a.Module == module {
			cp := a
			return &cp, nil
		}
	}
	return nil, ErrAttemptNotFound
}
