package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// postgresStore persists ratings in PostgreSQL so they survive restarts.
// The upsert keeps the last-write-wins contract: one row per question.
type postgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a PostgreSQL-backed feedback store and creates the
// schema if needed.
func NewPostgresStore(dsn string) (Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &postgresStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *postgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feedback (
		question   TEXT PRIMARY KEY,
		code       TEXT NOT NULL,
		rating     TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`
	_, err := s.db.Exec(schema)
	return err
}

func (s *postgresStore) Record(ctx context.Context, question, code, rating string) error {
	if err := validateRating(rating); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (question, code, rating, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (question)
		DO UPDATE SET code = EXCLUDED.code, rating = EXCLUDED.rating, updated_at = EXCLUDED.updated_at`,
		question, code, rating)
	return err
}

func (s *postgresStore) Get(ctx context.Context, question string) (*Entry, error) {
	var e Entry
	err := s.db.QueryRowContext(ctx, `
		SELECT question, code, rating, updated_at FROM feedback WHERE question = $1`,
		question).Scan(&e.Question, &e.Code, &e.Rating, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, question)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}
