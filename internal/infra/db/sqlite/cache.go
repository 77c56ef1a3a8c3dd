// File: internal/infra/db/sqlite/cache.go
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"agentboard/internal/infra/metrics"
)

// Cache wraps the embedded SQLite store backing cold-start rendering.
// It holds two record families: sessions with child messages, and
// independent aggregated job snapshots.
type Cache struct {
	db  *sql.DB
	log *zerolog.Logger
}

// schemaVersion is the current schema. Upgrades append a migration to the
// chain below; version 1 is the baseline.
const schemaVersion = 1

func Open(path string, logger *zerolog.Logger) (*Cache, error) {
	l := logger.With().Str("component", "LocalCache").Logger()
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	c := &Cache{db: db, log: &l}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}
	return c, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// migrate creates the schema and walks the version chain. Each step runs in
// its own transaction so a crash leaves a consistent version marker.
func (c *Cache) migrate() error {
	if _, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}
	var version int
	err := c.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return err
	}

	for v := version + 1; v <= schemaVersion; v++ {
		tx, err := c.db.Begin()
		if err != nil {
			return err
		}
		if err := applyMigration(tx, v); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, v); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		c.log.Info().Int("version", v).Msg("cache schema migrated")
	}
	return nil
}

func applyMigration(tx *sql.Tx, version int) error {
	switch version {
	case 1:
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				repo TEXT NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				last_activity INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS sessions_repo_activity ON sessions(repo, last_activity DESC)`,
			`CREATE TABLE IF NOT EXISTS session_messages (
				session_id TEXT NOT NULL REFERENCES sessions(id),
				seq INTEGER NOT NULL,
				kind TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				PRIMARY KEY (session_id, seq)
			)`,
			`CREATE TABLE IF NOT EXISTS jobs (
				issue_key TEXT PRIMARY KEY,
				repo TEXT NOT NULL,
				payload BLOB NOT NULL,
				last_activity INTEGER NOT NULL
			)`,
		}
		for _, s := range stmts {
			if _, err := tx.Exec(s); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown schema version %d", version)
	}
}

// Evict runs the bounded cleanup sweep: an age pass, then a per-repo cap
// pass. Each pass is one transaction cascading to children, so concurrent
// reads never observe a half-deleted parent. Invoked at cache-open time.
func (c *Cache) Evict(ctx context.Context, maxAge time.Duration, maxPerRepo int) error {
	cutoff := time.Now().Add(-maxAge).Unix()

	aged, err := c.evictAged(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("eviction age pass: %w", err)
	}
	metrics.AddCacheEvictions("age", aged)

	capped, err := c.evictOverCap(ctx, maxPerRepo)
	if err != nil {
		return fmt.Errorf("eviction cap pass: %w", err)
	}
	metrics.AddCacheEvictions("cap", capped)

	if aged+capped > 0 {
		c.log.Info().Int("aged", aged).Int("capped", capped).Msg("cache eviction sweep done")
	}
	return nil
}

func (c *Cache) evictAged(ctx context.Context, cutoff int64) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM session_messages WHERE session_id IN (SELECT id FROM sessions WHERE last_activity < ?)`, cutoff); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE last_activity < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE last_activity < ?`, cutoff); err != nil {
		return 0, err
	}
	return int(n), tx.Commit()
}

func (c *Cache) evictOverCap(ctx context.Context, maxPerRepo int) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT repo FROM sessions`)
	if err != nil {
		return 0, err
	}
	var repos []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			rows.Close()
			return 0, err
		}
		repos = append(repos, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	total := 0
	for _, repo := range repos {
		// Everything past the maxPerRepo most-recently-active parents goes.
		idRows, err := tx.QueryContext(ctx,
			`SELECT id FROM sessions WHERE repo = ? ORDER BY last_activity DESC, id LIMIT -1 OFFSET ?`,
			repo, maxPerRepo)
		if err != nil {
			return 0, err
		}
		var victims []string
		for idRows.Next() {
			var id string
			if err := idRows.Scan(&id); err != nil {
				idRows.Close()
				return 0, err
			}
			victims = append(victims, id)
		}
		idRows.Close()
		if err := idRows.Err(); err != nil {
			return 0, err
		}
		for _, id := range victims {
			if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, id); err != nil {
				return 0, err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
				return 0, err
			}
			total++
		}
	}
	return total, tx.Commit()
}
