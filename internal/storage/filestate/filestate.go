// Package filestate keeps the watcher state in a JSON file, for runs
// without a database.
package filestate

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/BearBump/glswatch/internal/models"
	"github.com/pkg/errors"
)

type Storage struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Storage {
	return &Storage{path: path}
}

func (s *Storage) Read(_ context.Context) (models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return models.DefaultState(), nil
	}
	if err != nil {
		return models.State{}, errors.Wrap(err, "read state file")
	}

	st := models.DefaultState()
	if err := json.Unmarshal(b, &st); err != nil {
		return models.State{}, errors.Wrap(err, "unmarshal state file")
	}
	return st, nil
}

func (s *Storage) Write(_ context.Context, st models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return errors.Wrap(err, "write state file")
	}
	return nil
}
