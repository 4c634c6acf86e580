package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// PostgresStore implements Store on two small tables. It exists for
// deployments that already run Postgres and don't want a Redis; the same
// single-key semantics are emulated with single statements. Expiry is lazy:
// reads treat an expired row as absent, and ReapExpired deletes them in bulk.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects using dsn and applies idempotent schema changes.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate kv schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kv_expires_at ON kv(expires_at) WHERE expires_at IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS zset (
			key TEXT NOT NULL,
			member TEXT NOT NULL,
			score BIGINT NOT NULL,
			PRIMARY KEY (key, member)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_zset_key_score ON zset(key, score DESC)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func expiresArg(ttl time.Duration) any {
	if ttl <= 0 {
		return nil
	}
	return time.Now().UTC().Add(ttl)
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key=$1 AND (expires_at IS NULL OR expires_at > NOW())`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at, updated_at) VALUES ($1,$2,$3,NOW())
		 ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, expires_at=EXCLUDED.expires_at, updated_at=NOW()`,
		key, value, expiresArg(ttl))
	return err
}

func (s *PostgresStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	// The upsert only overwrites rows whose expiry has passed, so a live key
	// keeps the lock and RowsAffected reports acquisition.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at, updated_at) VALUES ($1,$2,$3,NOW())
		 ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, expires_at=EXCLUDED.expires_at, updated_at=NOW()
		 WHERE kv.expires_at IS NOT NULL AND kv.expires_at <= NOW()`,
		key, value, expiresArg(ttl))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES ($1, $2::text, NOW())
		 ON CONFLICT (key) DO UPDATE SET
			value = (CASE WHEN kv.expires_at IS NOT NULL AND kv.expires_at <= NOW()
				THEN $2 ELSE kv.value::bigint + $2 END)::text,
			expires_at = CASE WHEN kv.expires_at IS NOT NULL AND kv.expires_at <= NOW()
				THEN NULL ELSE kv.expires_at END,
			updated_at = NOW()
		 RETURNING value::bigint`, key, delta).Scan(&v)
	return v, err
}

func (s *PostgresStore) Del(ctx context.Context, key string) (bool, error) {
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM kv WHERE key=$1 RETURNING expires_at`, key).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// A row past its expiry was already logically gone.
	if expires.Valid && !expires.Time.After(time.Now().UTC()) {
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE kv SET expires_at=$2, updated_at=NOW() WHERE key=$1`, key, expiresArg(ttl))
	return err
}

func (s *PostgresStore) ZSet(ctx context.Context, key, member string, score int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO zset (key, member, score) VALUES ($1,$2,$3)
		 ON CONFLICT (key, member) DO UPDATE SET score=EXCLUDED.score`,
		key, member, score)
	return err
}

func (s *PostgresStore) ZTop(ctx context.Context, key string, n int) ([]ZEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member, score FROM zset WHERE key=$1 ORDER BY score DESC, member ASC LIMIT $2`, key, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ZEntry
	for rows.Next() {
		var e ZEntry
		if err := rows.Scan(&e.Member, &e.Score); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReapExpired deletes rows whose expiry has passed. The scheduler calls this
// periodically; Redis does the equivalent natively.
func (s *PostgresStore) ReapExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *PostgresStore) Close() error { return s.db.Close() }
