package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultListLimit caps history queries that do not pass a limit.
const DefaultListLimit = 50

// MaxListLimit is the largest limit honoured by List and ForAccount.
const MaxListLimit = 1000

// HistoryEntry is one stored check result. The access token is never stored.
type HistoryEntry struct {
	ID        int64         `json:"id"`
	CheckID   string        `json:"check_id"`
	MCName    string        `json:"mc_name"`
	MCUUID    string        `json:"mc_uuid"`
	Status    string        `json:"status"`
	Reason    string        `json:"reason"`
	TimeLeft  string        `json:"time_left"`
	BanID     string        `json:"ban_id"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// StatusCount is the number of stored results with one status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// HistoryStore persists check results.
type HistoryStore struct {
	db *Database
}

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS checks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		check_id TEXT UNIQUE NOT NULL,
		mc_name TEXT NOT NULL,
		mc_uuid TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		time_left TEXT NOT NULL DEFAULT '',
		ban_id TEXT NOT NULL DEFAULT '',
		checked_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_checks_uuid ON checks(mc_uuid, checked_at);
	CREATE INDEX IF NOT EXISTS idx_checks_checked_at ON checks(checked_at);`,

	`ALTER TABLE checks ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0;`,
}

// NewHistoryStore opens the database at dbPath and brings its schema up to date.
func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	store := &HistoryStore{db: database}
	if err := store.migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

func (s *HistoryStore) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRow(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		step := i + 1
		err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
				return fmt.Errorf("migration %d failed: %w", step, err)
			}
			// PRAGMA does not accept bound parameters.
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", step)); err != nil {
				return fmt.Errorf("failed to record schema version %d: %w", step, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Debug().Int("version", step).Msg("history schema migrated")
	}
	return nil
}

// Record stores a check result.
func (s *HistoryStore) Record(ctx context.Context, e HistoryEntry) error {
	if e.CheckedAt.IsZero() {
		e.CheckedAt = time.Now()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO checks (check_id, mc_name, mc_uuid, status, reason, time_left, ban_id, checked_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CheckID, e.MCName, e.MCUUID, e.Status, e.Reason, e.TimeLeft, e.BanID,
		e.CheckedAt.UnixMilli(), e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record check %s: %w", e.CheckID, err)
	}
	return nil
}

// List returns the most recent results, newest first.
func (s *HistoryStore) List(ctx context.Context, limit int) ([]HistoryEntry, error) {
	return s.query(ctx,
		`SELECT id, check_id, mc_name, mc_uuid, status, reason, time_left, ban_id, checked_at, duration_ms
		 FROM checks ORDER BY checked_at DESC, id DESC LIMIT ?`,
		clampLimit(limit))
}

// ForAccount returns the most recent results for one account, newest first.
// The uuid is compared in its stored (undashed) form.
func (s *HistoryStore) ForAccount(ctx context.Context, mcUUID string, limit int) ([]HistoryEntry, error) {
	return s.query(ctx,
		`SELECT id, check_id, mc_name, mc_uuid, status, reason, time_left, ban_id, checked_at, duration_ms
		 FROM checks WHERE mc_uuid = ? ORDER BY checked_at DESC, id DESC LIMIT ?`,
		mcUUID, clampLimit(limit))
}

// Latest returns the newest result for an account, or nil when there is none.
func (s *HistoryStore) Latest(ctx context.Context, mcUUID string) (*HistoryEntry, error) {
	entries, err := s.ForAccount(ctx, mcUUID, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Prune deletes results checked before the cutoff and returns how many were removed.
func (s *HistoryStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, "DELETE FROM checks WHERE checked_at < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return n, nil
}

// CountByStatus returns the number of stored results per status.
func (s *HistoryStore) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := s.db.Query(ctx, "SELECT status, COUNT(*) FROM checks GROUP BY status ORDER BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *HistoryStore) query(ctx context.Context, query string, args ...interface{}) ([]HistoryEntry, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var (
			e          HistoryEntry
			checkedAt  int64
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &e.CheckID, &e.MCName, &e.MCUUID, &e.Status,
			&e.Reason, &e.TimeLeft, &e.BanID, &checkedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.CheckedAt = time.UnixMilli(checkedAt).UTC()
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}
	return entries, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
