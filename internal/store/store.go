package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/oremus-labs/ol-bot-console/internal/logstream"
)

// History events recorded by the relay.
const (
	EventStreamOpened  = "stream_opened"
	EventStreamClosed  = "stream_closed"
	EventStreamError   = "stream_error"
	EventStreamStopped = "stream_stopped"
)

// ArchivedLog is a log entry as persisted by the archive.
type ArchivedLog struct {
	ID         int64              `json:"id"`
	ReceivedAt time.Time          `json:"receivedAt"`
	Entry      logstream.LogEntry `json:"entry"`
}

// LogQuery filters ListLogs. Zero values disable a filter.
type LogQuery struct {
	Limit int
	Level string
	Since time.Time
}

// HistoryEntry stores connection lifecycle events.
type HistoryEntry struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	Message   string                 `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Store wraps the SQL database used for the archive.
type Store struct {
	db     *sql.DB
	driver string
}

// Open initializes the datastore using the supplied DSN/file path and driver
// ("sqlite" or "postgres").
func Open(dsn string, driver string) (*Store, error) {
	if driver == "" {
		driver = "sqlite"
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("datastore DSN is required")
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create datastore directory: %w", err)
		}
		conn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dsn)
		db, err = sql.Open("sqlite", conn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite datastore: %w", err)
		}
		// A single writer avoids SQLITE_BUSY under concurrent archivers.
		db.SetMaxOpenConns(1)
	case "postgres":
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres datastore: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported datastore driver: %s", driver)
	}

	s := &Store{db: db, driver: driver}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	var stmts []string
	switch s.driver {
	case "postgres":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS log_entries (
				id BIGSERIAL PRIMARY KEY,
				uuid TEXT NOT NULL UNIQUE,
				type TEXT,
				level TEXT,
				ts DOUBLE PRECISION,
				data TEXT,
				payload TEXT NOT NULL,
				received_at BIGINT NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS history (
				id BIGSERIAL PRIMARY KEY,
				event TEXT NOT NULL,
				message TEXT,
				metadata TEXT,
				created_at BIGINT NOT NULL
			);`,
		}
	default:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS log_entries (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				uuid TEXT NOT NULL UNIQUE,
				type TEXT,
				level TEXT,
				ts REAL,
				data TEXT,
				payload TEXT NOT NULL,
				received_at INTEGER NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				event TEXT NOT NULL,
				message TEXT,
				metadata TEXT,
				created_at INTEGER NOT NULL
			);`,
		}
	}
	stmts = append(stmts,
		`CREATE INDEX IF NOT EXISTS idx_log_entries_level ON log_entries(level);`,
		`CREATE INDEX IF NOT EXISTS idx_log_entries_received ON log_entries(received_at);`,
	)
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema apply failed: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders into $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close shuts down the datastore.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// AppendLogs archives entries, skipping uuids already stored. It returns the
// number of rows inserted.
func (s *Store) AppendLogs(entries []logstream.LogEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(s.rebind(`INSERT INTO log_entries (uuid, type, level, ts, data, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (uuid) DO NOTHING`))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixMilli()
	inserted := 0
	for _, entry := range entries {
		if entry.UUID == "" {
			return 0, errors.New("log entry uuid required")
		}
		payload, err := json.Marshal(entry)
		if err != nil {
			return 0, fmt.Errorf("marshal log entry %s: %w", entry.UUID, err)
		}
		res, err := stmt.Exec(entry.UUID, entry.Type, entry.Level, entry.Time, entry.Data, string(payload), now)
		if err != nil {
			return 0, fmt.Errorf("insert log entry %s: %w", entry.UUID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListLogs returns archived entries, newest first.
func (s *Store) ListLogs(q LogQuery) ([]ArchivedLog, error) {
	query := `SELECT id, payload, received_at FROM log_entries`
	var (
		where []string
		args  []interface{}
	)
	if q.Level != "" {
		where = append(where, "UPPER(level) = ?")
		args = append(args, strings.ToUpper(q.Level))
	}
	if !q.Since.IsZero() {
		where = append(where, "received_at >= ?")
		args = append(args, q.Since.UTC().UnixMilli())
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if q.Limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, q.Limit)
	}

	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ArchivedLog
	for rows.Next() {
		var (
			l        ArchivedLog
			payload  string
			received int64
		)
		if err := rows.Scan(&l.ID, &payload, &received); err != nil {
			return nil, err
		}
		entry, err := logstream.ParseEntry([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("decode archived entry %d: %w", l.ID, err)
		}
		l.Entry = entry
		l.ReceivedAt = time.UnixMilli(received).UTC()
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CountLogs reports the number of archived entries.
func (s *Store) CountLogs() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM log_entries`).Scan(&n)
	return n, err
}

// PruneLogs deletes everything but the newest keep entries. keep <= 0
// disables pruning.
func (s *Store) PruneLogs(keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.Exec(s.rebind(`DELETE FROM log_entries WHERE id <= (
		SELECT id FROM log_entries ORDER BY id DESC LIMIT 1 OFFSET ?
	)`), keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AppendHistory writes an entry to the history log.
func (s *Store) AppendHistory(entry *HistoryEntry) error {
	if entry.Event == "" {
		return errors.New("history event required")
	}
	entry.CreatedAt = time.Now().UTC()
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	var id int64
	err = s.db.QueryRow(s.rebind(`INSERT INTO history (event, message, metadata, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		entry.Event, entry.Message, string(metadata), entry.CreatedAt.UnixMilli(),
	).Scan(&id)
	if err != nil {
		return err
	}
	entry.ID = strconv.FormatInt(id, 10)
	return nil
}

// ListHistory returns the newest history entries.
func (s *Store) ListHistory(limit int) ([]HistoryEntry, error) {
	query := `SELECT id, event, message, metadata, created_at FROM history ORDER BY id DESC`
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var (
			e        HistoryEntry
			id       int64
			message  sql.NullString
			metadata sql.NullString
			created  int64
		)
		if err := rows.Scan(&id, &e.Event, &message, &metadata, &created); err != nil {
			return nil, err
		}
		e.ID = strconv.FormatInt(id, 10)
		e.Message = message.String
		e.CreatedAt = time.UnixMilli(created).UTC()
		if metadata.Valid {
			_ = json.Unmarshal([]byte(metadata.String), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
