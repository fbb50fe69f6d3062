package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and the "memory" driver.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time

	// history records every status written by Save or Update, per job.
	history map[string][]Status
}

// NewMemoryStore returns an empty store seeded with the given jobs.
func NewMemoryStore(seed ...*Job) *MemoryStore {
	s := &MemoryStore{
		jobs:    make(map[string]*Job),
		history: make(map[string][]Status),
		now:     time.Now,
	}
	for _, j := range seed {
		s.jobs[j.ID] = j.Clone()
		s.history[j.ID] = []Status{j.Status}
	}
	return s
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked(job)
	return nil
}

func (s *MemoryStore) saveLocked(job *Job) {
	c := job.Clone()
	c.UpdatedAt = s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	s.jobs[c.ID] = c
	s.history[c.ID] = append(s.history[c.ID], c.Status)
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Job) error) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	j := current.Clone()
	if err := fn(j); err != nil {
		return current.Clone(), err
	}
	s.saveLocked(j)
	return j.Clone(), nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status Status) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Job
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *MemoryStore) CountByStatus(_ context.Context) (map[Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[Status]int)
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// History returns the sequence of statuses persisted for id.
func (s *MemoryStore) History(id string) []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Status(nil), s.history[id]...)
}
