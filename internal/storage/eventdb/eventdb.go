// Package eventdb persists protocol events to a relational database for
// off-node indexing. SQLite (via modernc.org/sqlite) serves single-node
// deployments; PostgreSQL (via lib/pq) serves shared ones.
package eventdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Record is one persisted event row.
type Record struct {
	Seq       int64           `json:"seq"`
	Name      string          `json:"name"`
	Instance  common.Address  `json:"instance"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Store is the event database handle.
type Store struct {
	db     *sql.DB
	cfg    *Config
	closed atomic.Bool
}

// Open connects to the configured database and ensures the schema exists.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("eventdb: %w", err)
	}
	dsn, err := cfg.BuildConnectionString()
	if err != nil {
		return nil, fmt.Errorf("eventdb: %w", err)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("eventdb: open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s := &Store{db: db, cfg: cfg}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventdb: ping: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	seqType := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.cfg.Driver == "postgres" {
		seqType = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS events (
			seq        %s,
			name       TEXT   NOT NULL,
			instance   TEXT   NOT NULL,
			payload    TEXT   NOT NULL,
			created_at BIGINT NOT NULL
		)`, seqType),
		`CREATE INDEX IF NOT EXISTS idx_events_instance ON events (instance)`,
		`CREATE INDEX IF NOT EXISTS idx_events_name ON events (name)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("eventdb: migrate: %w", err)
		}
	}
	return nil
}

// rebind converts ? placeholders to the $n form PostgreSQL expects.
func (s *Store) rebind(query string) string {
	if s.cfg.Driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save persists one event and returns its sequence number. The payload is
// JSON-encoded as-is.
func (s *Store) Save(ctx context.Context, name string, instance common.Address, payload any, at time.Time) (int64, error) {
	if s.closed.Load() {
		return 0, ErrDatabaseClosed
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("eventdb: encode payload: %w", err)
	}

	var seq int64
	query := s.rebind(`INSERT INTO events (name, instance, payload, created_at)
		VALUES (?, ?, ?, ?) RETURNING seq`)
	err = s.db.QueryRowContext(ctx, query, name, instance.Hex(), string(raw), at.UnixNano()).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("eventdb: save event: %w", err)
	}
	return seq, nil
}

// ByInstance returns up to limit events for one instance, oldest first.
func (s *Store) ByInstance(ctx context.Context, instance common.Address, limit int) ([]Record, error) {
	query := s.rebind(`SELECT seq, name, instance, payload, created_at FROM events
		WHERE instance = ? ORDER BY seq ASC LIMIT ?`)
	return s.query(ctx, query, instance.Hex(), limit)
}

// ByName returns up to limit events with the given name, oldest first.
func (s *Store) ByName(ctx context.Context, name string, limit int) ([]Record, error) {
	query := s.rebind(`SELECT seq, name, instance, payload, created_at FROM events
		WHERE name = ? ORDER BY seq ASC LIMIT ?`)
	return s.query(ctx, query, name, limit)
}

// Recent returns the newest limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	query := s.rebind(`SELECT seq, name, instance, payload, created_at FROM events
		ORDER BY seq DESC LIMIT ?`)
	return s.query(ctx, query, limit)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	if s.closed.Load() {
		return nil, ErrDatabaseClosed
	}
	if n, ok := args[len(args)-1].(int); ok && n <= 0 {
		return nil, ErrInvalidLimit
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventdb: query events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec      Record
			instance string
			payload  string
			created  int64
		)
		if err := rows.Scan(&rec.Seq, &rec.Name, &instance, &payload, &created); err != nil {
			return nil, fmt.Errorf("eventdb: scan event: %w", err)
		}
		rec.Instance = common.HexToAddress(instance)
		rec.Payload = json.RawMessage(payload)
		rec.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventdb: iterate events: %w", err)
	}
	return out, nil
}

// Count returns the total number of persisted events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrDatabaseClosed
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("eventdb: count events: %w", err)
	}
	return n, nil
}

// Prune deletes events created before the cutoff and reports how many rows
// were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	if s.closed.Load() {
		return 0, ErrDatabaseClosed
	}
	query := s.rebind(`DELETE FROM events WHERE created_at < ?`)
	res, err := s.db.ExecContext(ctx, query, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("eventdb: prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("eventdb: prune events: %w", err)
	}
	return n, nil
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrDatabaseClosed
	}
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection pool. Close is idempotent.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
