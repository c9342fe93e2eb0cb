package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"campkit/core"
)

// Store persists every camper's progress to a single JSON file.
// Suitable for demos and small deployments.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data map[core.UserID]core.UserProgress
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("jsonfile path is required")
	}
	s := &Store{path: path, data: map[core.UserID]core.UserProgress{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]core.UserProgress
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if v.Badges == nil {
			v.Badges = []core.EarnedBadge{}
		}
		if v.CompletedTrips == nil {
			v.CompletedTrips = []string{}
		}
		s.data[core.UserID(k)] = v
	}
	return nil
}

// persist writes to a temp file and renames it over the target.
func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	raw := make(map[string]core.UserProgress, len(s.data))
	for k, v := range s.data {
		raw[string(k)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) GetProgress(_ context.Context, user core.UserID) (core.UserProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.data[user]; ok {
		return p.Clone(), nil
	}
	return core.NewUserProgress(user), nil
}

func (s *Store) PutProgress(_ context.Context, progress core.UserProgress) error {
	if progress.UserID == "" {
		return core.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.data[progress.UserID]
	s.data[progress.UserID] = progress.Clone()
	if err := s.persist(); err != nil {
		// keep memory and disk in agreement
		if had {
			s.data[progress.UserID] = prev
		} else {
			delete(s.data, progress.UserID)
		}
		return fmt.Errorf("persist progress: %w", err)
	}
	return nil
}
