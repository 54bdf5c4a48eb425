package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flor3z/noko-bot/internal/arena"
)

var _ arena.StateStore = (*Repository)(nil)

// Load implements arena.StateStore.
func (r *Repository) Load(ctx context.Context) (*arena.State, error) {
	var (
		version  int64
		document string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT version, document FROM arena_state WHERE id = 1`,
	).Scan(&version, &document)
	if errors.Is(err, sql.ErrNoRows) {
		s := &arena.State{}
		s.Normalize()
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load arena state: %w", err)
	}

	return decodeState([]byte(document), version)
}

// Save implements arena.StateStore. The row is only written when its version
// still matches s.Version.
func (r *Repository) Save(ctx context.Context, s *arena.State) error {
	document, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode arena state: %w", err)
	}

	var result sql.Result
	if s.Version == 0 {
		result, err = r.db.ExecContext(ctx,
			`INSERT INTO arena_state (id, version, document, updated_at) VALUES (1, 1, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			string(document), time.Now().UTC(),
		)
	} else {
		result, err = r.db.ExecContext(ctx,
			`UPDATE arena_state SET version = version + 1, document = ?, updated_at = ?
			 WHERE id = 1 AND version = ?`,
			string(document), time.Now().UTC(), s.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to save arena state: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save arena state: %w", err)
	}
	if n == 0 {
		return arena.ErrVersionConflict
	}

	s.Version++
	return nil
}

func decodeState(document []byte, version int64) (*arena.State, error) {
	s := &arena.State{}
	if err := json.Unmarshal(document, s); err != nil {
		return nil, fmt.Errorf("failed to decode arena state: %w", err)
	}
	s.Normalize()
	s.Version = version
	return s, nil
}
