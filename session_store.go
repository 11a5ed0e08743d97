package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"droidctl/pkg/types"
)

// ========================================
// SessionStore - SQLite capture persistence
// ========================================

// SessionStore persists logcat capture sessions and their entries.
// Writes are buffered and flushed on a ticker or when the buffer fills,
// so a chatty device does not turn every log line into a transaction.
type SessionStore struct {
	db     *sql.DB
	dbPath string

	writeBuffer    []bufferedEntry
	writeBufferMu  sync.Mutex
	flushInterval  time.Duration
	flushThreshold int
	flushTicker    *time.Ticker
	stopChan       chan struct{}
	stopOnce       sync.Once

	stmtInsertSession *sql.Stmt
	stmtInsertEntry   *sql.Stmt
	stmtEndSession    *sql.Stmt
}

type bufferedEntry struct {
	sessionID string
	entry     types.LogEntry
}

const sessionSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL,
    name TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER DEFAULT 0,
    status TEXT DEFAULT 'active',
    entry_count INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_device ON sessions(device_id);
CREATE INDEX IF NOT EXISTS idx_sessions_time ON sessions(start_time DESC);

CREATE TABLE IF NOT EXISTS log_entries (
    session_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,
    level TEXT NOT NULL,
    message TEXT NOT NULL,
    PRIMARY KEY (session_id, seq),
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_entries_session_time ON log_entries(session_id, timestamp);
`

// NewSessionStore opens (or creates) the session database under dataDir
func NewSessionStore(dataDir string) (*SessionStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "sessions.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SessionStore{
		db:             db,
		dbPath:         dbPath,
		writeBuffer:    make([]bufferedEntry, 0, 1024),
		flushInterval:  500 * time.Millisecond,
		flushThreshold: 500,
		stopChan:       make(chan struct{}),
	}

	if _, err := db.Exec(sessionSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	store.startBackgroundWriter()
	return store, nil
}

func (s *SessionStore) prepareStatements() error {
	var err error

	s.stmtInsertSession, err = s.db.Prepare(`
		INSERT INTO sessions (id, device_id, name, start_time, end_time, status, entry_count)
		VALUES (?, ?, ?, ?, 0, 'active', 0)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert session: %w", err)
	}

	s.stmtInsertEntry, err = s.db.Prepare(`
		INSERT INTO log_entries (session_id, seq, timestamp, level, message)
		VALUES (?, (SELECT COALESCE(MAX(seq), -1) + 1 FROM log_entries WHERE session_id = ?), ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert entry: %w", err)
	}

	s.stmtEndSession, err = s.db.Prepare(`
		UPDATE sessions SET end_time = ?, status = 'completed',
			entry_count = (SELECT COUNT(*) FROM log_entries WHERE session_id = id)
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare end session: %w", err)
	}

	return nil
}

func (s *SessionStore) startBackgroundWriter() {
	s.flushTicker = time.NewTicker(s.flushInterval)
	go func() {
		for {
			select {
			case <-s.stopChan:
				return
			case <-s.flushTicker.C:
				if err := s.Flush(); err != nil {
					LogWarn("store").Err(err).Msg("Background flush failed")
				}
			}
		}
	}()
}

// StartSession creates a new active capture session
func (s *SessionStore) StartSession(deviceID, name string) (types.CaptureSession, error) {
	session := types.CaptureSession{
		ID:        uuid.New().String()[:8],
		DeviceID:  deviceID,
		Name:      name,
		StartTime: time.Now().UnixMilli(),
		Status:    "active",
	}
	if session.Name == "" {
		session.Name = fmt.Sprintf("capture %s", time.Now().Format("2006-01-02 15:04:05"))
	}

	if _, err := s.stmtInsertSession.Exec(session.ID, session.DeviceID, session.Name, session.StartTime); err != nil {
		return types.CaptureSession{}, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// AppendEntry buffers one log entry for the session
func (s *SessionStore) AppendEntry(sessionID string, entry types.LogEntry) {
	s.writeBufferMu.Lock()
	s.writeBuffer = append(s.writeBuffer, bufferedEntry{sessionID: sessionID, entry: entry})
	full := len(s.writeBuffer) >= s.flushThreshold
	s.writeBufferMu.Unlock()

	if full {
		if err := s.Flush(); err != nil {
			LogWarn("store").Err(err).Msg("Threshold flush failed")
		}
	}
}

// Flush writes all buffered entries in one transaction
func (s *SessionStore) Flush() error {
	s.writeBufferMu.Lock()
	if len(s.writeBuffer) == 0 {
		s.writeBufferMu.Unlock()
		return nil
	}
	pending := s.writeBuffer
	s.writeBuffer = make([]bufferedEntry, 0, cap(pending))
	s.writeBufferMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin flush tx: %w", err)
	}
	stmt := tx.Stmt(s.stmtInsertEntry)
	for _, be := range pending {
		if _, err := stmt.Exec(be.sessionID, be.sessionID, be.entry.Timestamp.UnixMilli(), be.entry.Level, be.entry.Message); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	return tx.Commit()
}

// EndSession flushes pending entries and marks the session completed
func (s *SessionStore) EndSession(sessionID string) error {
	if err := s.Flush(); err != nil {
		return err
	}
	if _, err := s.stmtEndSession.Exec(time.Now().UnixMilli(), sessionID); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// GetSession loads one session by ID
func (s *SessionStore) GetSession(sessionID string) (types.CaptureSession, error) {
	row := s.db.QueryRow(`
		SELECT id, device_id, name, start_time, end_time, status, entry_count
		FROM sessions WHERE id = ?`, sessionID)

	var cs types.CaptureSession
	if err := row.Scan(&cs.ID, &cs.DeviceID, &cs.Name, &cs.StartTime, &cs.EndTime, &cs.Status, &cs.EntryCount); err != nil {
		if err == sql.ErrNoRows {
			return cs, fmt.Errorf("session %s not found", sessionID)
		}
		return cs, fmt.Errorf("failed to load session: %w", err)
	}
	return cs, nil
}

// ListSessions returns sessions newest first
func (s *SessionStore) ListSessions(limit int) ([]types.CaptureSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, device_id, name, start_time, end_time, status, entry_count
		FROM sessions ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.CaptureSession
	for rows.Next() {
		var cs types.CaptureSession
		if err := rows.Scan(&cs.ID, &cs.DeviceID, &cs.Name, &cs.StartTime, &cs.EndTime, &cs.Status, &cs.EntryCount); err != nil {
			return nil, err
		}
		sessions = append(sessions, cs)
	}
	return sessions, rows.Err()
}

// QueryEntries pages through a session's persisted entries, optionally
// filtered by level and substring
func (s *SessionStore) QueryEntries(q types.SessionQuery) (types.SessionQueryResult, error) {
	if err := s.Flush(); err != nil {
		return types.SessionQueryResult{}, err
	}

	where := []string{"session_id = ?"}
	args := []interface{}{q.SessionID}
	if q.Level != "" {
		where = append(where, "level = ?")
		args = append(args, q.Level)
	}
	if q.Contains != "" {
		where = append(where, "message LIKE ?")
		args = append(args, "%"+q.Contains+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM log_entries WHERE "+cond, args...).Scan(&total); err != nil {
		return types.SessionQueryResult{}, fmt.Errorf("count entries: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit, q.Offset)

	rows, err := s.db.Query(
		"SELECT timestamp, level, message FROM log_entries WHERE "+cond+" ORDER BY seq LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return types.SessionQueryResult{}, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	result := types.SessionQueryResult{Total: total}
	for rows.Next() {
		var ts int64
		var entry types.LogEntry
		if err := rows.Scan(&ts, &entry.Level, &entry.Message); err != nil {
			return types.SessionQueryResult{}, err
		}
		entry.Timestamp = time.UnixMilli(ts)
		result.Entries = append(result.Entries, entry)
	}
	return result, rows.Err()
}

// DeleteSession removes a session and its entries
func (s *SessionStore) DeleteSession(sessionID string) error {
	if _, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close flushes and shuts the store down
func (s *SessionStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}
	if err := s.Flush(); err != nil {
		LogWarn("store").Err(err).Msg("Final flush failed")
	}
	return s.db.Close()
}
