package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/attestlog/internal/chain"
)

// SQLiteStore is the default durable backend. WAL journaling makes a
// returned Put survive process crash.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at dbPath.
// If dbPath is empty, defaults to "./data/attestlog.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/attestlog.db"
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		session_id  TEXT    NOT NULL,
		seq         INTEGER NOT NULL,
		timestamp   TEXT    NOT NULL,
		role        TEXT    NOT NULL,
		agent_id    TEXT    NOT NULL,
		content     TEXT    NOT NULL,
		prev_hash   TEXT    NOT NULL,
		public_key  TEXT    NOT NULL,
		signature   TEXT    NOT NULL,
		digest      TEXT    NOT NULL,
		PRIMARY KEY (session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(session_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_messages_agent     ON messages(agent_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Put appends one signed message. An existing (session_id, seq) row is
// tolerated only when its digest matches the incoming record.
func (s *SQLiteStore) Put(ctx context.Context, msg *chain.Message) error {
	digest, err := msg.Digest()
	if err != nil {
		return fmt.Errorf("store put: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages
		(session_id, seq, timestamp, role, agent_id, content, prev_hash, public_key, signature, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.SessionID, msg.Seq, msg.Timestamp, msg.Role, msg.AgentID,
		msg.Content, msg.PrevHash, msg.PublicKey, msg.Signature, digest)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var existing string
	err = s.db.QueryRowContext(ctx, `
		SELECT digest FROM messages WHERE session_id = ? AND seq = ?
	`, msg.SessionID, msg.Seq).Scan(&existing)
	if err != nil {
		return err
	}
	if existing != digest {
		return fmt.Errorf("%w: session %q seq %d", ErrConflict, msg.SessionID, msg.Seq)
	}
	return nil
}

const messageColumns = `session_id, seq, timestamp, role, agent_id, content, prev_hash, public_key, signature`

func scanMessage(scan func(...any) error) (chain.Message, error) {
	var m chain.Message
	err := scan(&m.SessionID, &m.Seq, &m.Timestamp, &m.Role, &m.AgentID,
		&m.Content, &m.PrevHash, &m.PublicKey, &m.Signature)
	return m, err
}

// GetChain returns the full chain of a session in ascending seq order.
func (s *SQLiteStore) GetChain(ctx context.Context, sessionID string) ([]chain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages WHERE session_id = ? ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chain.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessages returns the most recent limit messages in ascending order.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]chain.Message, error) {
	if limit <= 0 {
		return s.GetChain(ctx, sessionID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chain.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

// ListSessions lists sessions ordered by latest activity.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MAX(timestamp)
		FROM messages
		GROUP BY session_id
		ORDER BY MAX(timestamp) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var last sql.NullString
		if err := rows.Scan(&info.SessionID, &info.MessageCount, &last); err != nil {
			return nil, err
		}
		info.LastTimestamp = last.String
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// GetMessageCount returns the number of messages recorded for a session.
func (s *SQLiteStore) GetMessageCount(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return count, nil
}

func reverse(msgs []chain.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
