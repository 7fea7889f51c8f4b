package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/attestlog/internal/chain"
)

// PostgresStore persists chains in PostgreSQL behind a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and initializes the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			session_id  TEXT   NOT NULL,
			seq         BIGINT NOT NULL,
			timestamp   TEXT   NOT NULL,
			role        TEXT   NOT NULL,
			agent_id    TEXT   NOT NULL,
			content     TEXT   NOT NULL,
			prev_hash   TEXT   NOT NULL,
			public_key  TEXT   NOT NULL,
			signature   TEXT   NOT NULL,
			digest      TEXT   NOT NULL,
			PRIMARY KEY (session_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(session_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_messages_agent     ON messages(agent_id);
	`)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Put appends one signed message, tolerating only duplicates whose digest
// matches the stored record.
func (s *PostgresStore) Put(ctx context.Context, msg *chain.Message) error {
	digest, err := msg.Digest()
	if err != nil {
		return fmt.Errorf("store put: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO messages
		(session_id, seq, timestamp, role, agent_id, content, prev_hash, public_key, signature, digest)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, seq) DO NOTHING
	`, msg.SessionID, msg.Seq, msg.Timestamp, msg.Role, msg.AgentID,
		msg.Content, msg.PrevHash, msg.PublicKey, msg.Signature, digest)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var existing string
	err = s.pool.QueryRow(ctx, `
		SELECT digest FROM messages WHERE session_id = $1 AND seq = $2
	`, msg.SessionID, msg.Seq).Scan(&existing)
	if err != nil {
		return err
	}
	if existing != digest {
		return fmt.Errorf("%w: session %q seq %d", ErrConflict, msg.SessionID, msg.Seq)
	}
	return nil
}

// GetChain returns the full chain of a session in ascending seq order.
func (s *PostgresStore) GetChain(ctx context.Context, sessionID string) ([]chain.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages WHERE session_id = $1 ORDER BY seq ASC
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
func (s *PostgresStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]chain.Message, error) {
	if limit <= 0 {
		return s.GetChain(ctx, sessionID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages WHERE session_id = $1 ORDER BY seq DESC LIMIT $2
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
func (s *PostgresStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.pool.Query(ctx, `
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
		var last *string
		if err := rows.Scan(&info.SessionID, &info.MessageCount, &last); err != nil {
			return nil, err
		}
		if last != nil {
			info.LastTimestamp = *last
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
