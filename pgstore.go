package advsearch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

const savedQueriesSchema = `
CREATE TABLE IF NOT EXISTS saved_queries (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	query      TEXT NOT NULL,
	normalized TEXT NOT NULL,
	created    TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps saved queries in a PostgreSQL table.
type PostgresStore struct {
	db  *sqlx.DB
	log zerolog.Logger
}

// OpenPostgresStore connects to url and creates the table if needed.
func OpenPostgresStore(url string, log zerolog.Logger) (*PostgresStore, error) {
	if url == "" {
		return nil, errors.New("database_url is required for the postgres store")
	}
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewPostgresStore(db, log)
}

// NewPostgresStore wraps an open connection.
func NewPostgresStore(db *sqlx.DB, log zerolog.Logger) (*PostgresStore, error) {
	if _, err := db.Exec(savedQueriesSchema); err != nil {
		return nil, fmt.Errorf("failed to create saved_queries table: %w", err)
	}
	return &PostgresStore{db: db, log: log}, nil
}

func (s *PostgresStore) SaveQuery(ctx context.Context, q SavedQuery) (SavedQuery, error) {
	if q.Created.IsZero() {
		q.Created = time.Now().UTC()
	}

	if q.ID == 0 {
		query, args, err := sqlx.Named(
			`INSERT INTO saved_queries (name, query, normalized, created)
			 VALUES (:name, :query, :normalized, :created) RETURNING id`, q)
		if err != nil {
			return SavedQuery{}, err
		}
		query = s.db.Rebind(query)
		if err := s.db.GetContext(ctx, &q.ID, query, args...); err != nil {
			return SavedQuery{}, fmt.Errorf("failed to insert saved query: %w", err)
		}
	} else {
		_, err := s.db.NamedExecContext(ctx,
			`INSERT INTO saved_queries (id, name, query, normalized, created)
			 VALUES (:id, :name, :query, :normalized, :created)
			 ON CONFLICT (id) DO UPDATE SET
			   name = EXCLUDED.name, query = EXCLUDED.query,
			   normalized = EXCLUDED.normalized, created = EXCLUDED.created`, q)
		if err != nil {
			return SavedQuery{}, fmt.Errorf("failed to update saved query %d: %w", q.ID, err)
		}
	}

	s.log.Debug().Uint64("id", q.ID).Str("name", q.Name).Msg("Saved query")
	return q, nil
}

func (s *PostgresStore) GetQuery(ctx context.Context, id uint64) (SavedQuery, error) {
	var q SavedQuery
	err := s.db.GetContext(ctx, &q,
		`SELECT id, name, query, normalized, created FROM saved_queries WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedQuery{}, ErrQueryNotFound
	} else if err != nil {
		return SavedQuery{}, fmt.Errorf("failed to load saved query %d: %w", id, err)
	}
	q.Created = q.Created.UTC()
	return q, nil
}

func (s *PostgresStore) ListQueries(ctx context.Context) ([]SavedQuery, error) {
	queries := []SavedQuery{}
	err := s.db.SelectContext(ctx, &queries,
		`SELECT id, name, query, normalized, created FROM saved_queries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved queries: %w", err)
	}
	for i := range queries {
		queries[i].Created = queries[i].Created.UTC()
	}
	return queries, nil
}

func (s *PostgresStore) DeleteQuery(ctx context.Context, id uint64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_queries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete saved query %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrQueryNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
