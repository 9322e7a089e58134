// Package pgstate persists the watcher state as a single JSONB document.
// The whole collection is read-modify-written once per poll cycle, so one
// row is the natural unit of atomicity.
package pgstate

import (
	"context"
	"encoding/json"

	"github.com/BearBump/glswatch/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Storage struct {
	db *pgxpool.Pool
}

func New(connString string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &Storage{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Storage) initSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS watcher_state (
  id SMALLINT PRIMARY KEY,
  state JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`)
	return errors.Wrap(err, "init schema")
}

func (s *Storage) Read(ctx context.Context) (models.State, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT state FROM watcher_state WHERE id = 1`).Scan(&raw)
	if err == pgx.ErrNoRows {
		return models.DefaultState(), nil
	}
	if err != nil {
		return models.State{}, errors.Wrap(err, "select state")
	}

	st := models.DefaultState()
	if err := json.Unmarshal(raw, &st); err != nil {
		return models.State{}, errors.Wrap(err, "unmarshal state")
	}
	return st, nil
}

func (s *Storage) Write(ctx context.Context, st models.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}

	_, err = s.db.Exec(ctx, `
INSERT INTO watcher_state (id, state, updated_at)
VALUES (1, $1, now())
ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()
`, raw)
	return errors.Wrap(err, "upsert state")
}
