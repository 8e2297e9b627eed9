package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/quarryos/pkgfetch/internal/domain"
)

// StatsStore persists per-mirror health counters across restarts.
type StatsStore struct {
	db *sql.DB
}

// Open opens a connection to the SQLite database at dbPath.
func Open(dbPath string) (*StatsStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &StatsStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *StatsStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity.
func (s *StatsStore) Ping() error {
	return s.db.Ping()
}

func (s *StatsStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS mirror_stats (
		mirror_url          TEXT PRIMARY KEY,
		network_blips       INTEGER NOT NULL DEFAULT 0,
		network_rate_limits INTEGER NOT NULL DEFAULT 0,
		updated_at          TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

// Load returns all persisted mirror counters.
func (s *StatsStore) Load() (map[string]domain.MirrorStatsSnapshot, error) {
	rows, err := s.db.Query(`SELECT mirror_url, network_blips, network_rate_limits FROM mirror_stats`)
	if err != nil {
		return nil, fmt.Errorf("query mirror stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.MirrorStatsSnapshot)
	for rows.Next() {
		var url string
		var snap domain.MirrorStatsSnapshot
		if err := rows.Scan(&url, &snap.NetworkBlips, &snap.NetworkRateLimits); err != nil {
			return nil, fmt.Errorf("scan mirror stats: %w", err)
		}
		out[url] = snap
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mirror stats: %w", err)
	}
	return out, nil
}

// Save upserts the given counters.
func (s *StatsStore) Save(snapshot map[string]domain.MirrorStatsSnapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin stats save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO mirror_stats (mirror_url, network_blips, network_rate_limits, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(mirror_url) DO UPDATE SET
			network_blips = excluded.network_blips,
			network_rate_limits = excluded.network_rate_limits,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("prepare stats save: %w", err)
	}
	defer stmt.Close()

	for url, snap := range snapshot {
		if _, err := stmt.Exec(url, snap.NetworkBlips, snap.NetworkRateLimits); err != nil {
			return fmt.Errorf("save stats for %s: %w", url, err)
		}
	}
	return tx.Commit()
}
