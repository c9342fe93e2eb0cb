package memory

import (
	"context"
	"sync"

	"campkit/core"
)

// Store is a concurrent in-memory progress store.
type Store struct {
	users sync.Map // map[core.UserID]*userRecord
}

type userRecord struct {
	mu    sync.Mutex
	state core.UserProgress
}

func New() *Store { return &Store{} }

func (s *Store) getOrCreate(user core.UserID) *userRecord {
	if v, ok := s.users.Load(user); ok {
		return v.(*userRecord)
	}
	rec := &userRecord{state: core.NewUserProgress(user)}
	actual, _ := s.users.LoadOrStore(user, rec)
	return actual.(*userRecord)
}

// GetProgress returns a copy of the stored progress, or fresh progress for unknown users.
func (s *Store) GetProgress(_ context.Context, user core.UserID) (core.UserProgress, error) {
	v, ok := s.users.Load(user)
	if !ok {
		return core.NewUserProgress(user), nil
	}
	rec := v.(*userRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.Clone(), nil
}

// PutProgress replaces the stored document.
func (s *Store) PutProgress(_ context.Context, progress core.UserProgress) error {
	if progress.UserID == "" {
		return core.ErrEmptyUserID
	}
	rec := s.getOrCreate(progress.UserID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.state = progress.Clone()
	return nil
}

// Users lists every user with stored progress.
func (s *Store) Users() []core.UserID {
	var out []core.UserID
	s.users.Range(func(k, _ any) bool {
		out = append(out, k.(core.UserID))
		return true
	})
	return out
}

var _ interface {
	GetProgress(context.Context, core.UserID) (core.UserProgress, error)
	PutProgress(context.Context, core.UserProgress) error
} = (*Store)(nil)
