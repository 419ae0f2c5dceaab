package sitting

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DefaultListLimit caps List when ListOpts.Limit is not positive.
const DefaultListLimit = 50

type ListOpts struct {
	QuizID   string
	UserID   string
	Complete *bool // nil: both
	Limit    int
	Offset   int
}

// Repository persists sittings. Create must reject a second incomplete
// sitting for the same (user, quiz) with ErrDuplicateSitting, and Update
// must reject a stale Version with ErrConflict.
type Repository interface {
	FindActive(ctx context.Context, userID, quizID string) (*Sitting, error)
	Create(ctx context.Context, s *Sitting) error
	Get(ctx context.Context, id string) (*Sitting, error)
	Update(ctx context.Context, s *Sitting) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOpts) ([]*Sitting, error)
}

type memoryRepo struct {
	mu       sync.RWMutex
	sittings map[string]*Sitting
	active   map[string]string // user|quiz -> sitting id
}

func NewMemoryRepository() Repository {
	return &memoryRepo{
		sittings: map[string]*Sitting{},
		active:   map[string]string{},
	}
}

func activeKey(userID, quizID string) string { return userID + "|" + quizID }

func clone(s *Sitting) *Sitting {
	c := *s
	c.Questions = append([]string(nil), s.Questions...)
	c.Remaining = append([]string(nil), s.Remaining...)
	c.Incorrect = append([]string{}, s.Incorrect...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (m *memoryRepo) FindActive(_ context.Context, userID, quizID string) (*Sitting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.active[activeKey(userID, quizID)]
	if !ok {
		return nil, fmt.Errorf("active sitting for %s on %s: %w", userID, quizID, ErrNotFound)
	}
	return clone(m.sittings[id]), nil
}

func (m *memoryRepo) Create(_ context.Context, s *Sitting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sittings[s.ID]; ok {
		return fmt.Errorf("sitting %s exists", s.ID)
	}
	k := activeKey(s.UserID, s.QuizID)
	if !s.Complete {
		if _, ok := m.active[k]; ok {
			return ErrDuplicateSitting
		}
		m.active[k] = s.ID
	}
	m.sittings[s.ID] = clone(s)
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (*Sitting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sittings[id]
	if !ok {
		return nil, fmt.Errorf("sitting %s: %w", id, ErrNotFound)
	}
	return clone(s), nil
}

func (m *memoryRepo) Update(_ context.Context, s *Sitting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sittings[s.ID]
	if !ok {
		return fmt.Errorf("sitting %s: %w", s.ID, ErrNotFound)
	}
	if cur.Version != s.Version {
		return ErrConflict
	}
	s.Version++
	if s.Complete {
		k := activeKey(s.UserID, s.QuizID)
		if m.active[k] == s.ID {
			delete(m.active, k)
		}
	}
	m.sittings[s.ID] = clone(s)
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sittings[id]
	if !ok {
		return fmt.Errorf("sitting %s: %w", id, ErrNotFound)
	}
	k := activeKey(s.UserID, s.QuizID)
	if m.active[k] == id {
		delete(m.active, k)
	}
	delete(m.sittings, id)
	return nil
}

func (m *memoryRepo) List(_ context.Context, opts ListOpts) ([]*Sitting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Sitting{}
	for _, s := range m.sittings {
		if opts.QuizID != "" && s.QuizID != opts.QuizID {
			continue
		}
		if opts.UserID != "" && s.UserID != opts.UserID {
			continue
		}
		if opts.Complete != nil && s.Complete != *opts.Complete {
			continue
		}
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func page(list []*Sitting, limit, offset int) []*Sitting {
	if offset >= len(list) {
		return []*Sitting{}
	}
	list = list[offset:]
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit < len(list) {
		list = list[:limit]
	}
	return list
}
