package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/capitalize-ai/support-router/internal/model"
)

// PGConfig holds PostgreSQL connection configuration.
type PGConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	session_id     TEXT PRIMARY KEY,
	user_id        TEXT,
	platform       TEXT NOT NULL,
	status         TEXT NOT NULL,
	assigned_agent TEXT,
	started_at     TIMESTAMPTZ NOT NULL,
	last_activity  TIMESTAMPTZ NOT NULL,
	document       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations (user_id);
CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations (status);
CREATE INDEX IF NOT EXISTS idx_conversations_last_activity ON conversations (last_activity DESC);
CREATE INDEX IF NOT EXISTS idx_conversations_started_at ON conversations (started_at);
CREATE INDEX IF NOT EXISTS idx_conversations_messages ON conversations USING GIN ((document->'messages') jsonb_path_ops);
`

// needsReviewFilter matches documents holding at least one flagged message.
const needsReviewFilter = `[{"metadata":{"need_review":true}}]`

// PGStore stores each conversation as one JSONB document plus indexed columns.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to PostgreSQL and ensures the schema exists.
func NewPGStore(ctx context.Context, cfg PGConfig) (*PGStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse pg config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate pg: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Create inserts a new conversation document.
func (s *PGStore) Create(ctx context.Context, conv *model.Conversation) error {
	doc, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (session_id, user_id, platform, status, assigned_agent,
			started_at, last_activity, document)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		conv.SessionID, nullable(conv.UserID), string(conv.Platform), string(conv.Status),
		nullable(conv.AssignedAgent), conv.StartedAt, conv.LastActivity, string(doc))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExists
		}
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// Get retrieves a conversation by session ID.
func (s *PGStore) Get(ctx context.Context, sessionID string) (*model.Conversation, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM conversations WHERE session_id = $1`, sessionID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return decode(doc)
}

// Update locks the row, applies fn and writes the document back in one transaction.
func (s *PGStore) Update(ctx context.Context, sessionID string, fn UpdateFunc) (*model.Conversation, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*model.Conversation, error) {
		var doc []byte
		err := tx.QueryRow(ctx,
			`SELECT document FROM conversations WHERE session_id = $1 FOR UPDATE`, sessionID).Scan(&doc)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("lock conversation: %w", err)
		}
		conv, err := decode(doc)
		if err != nil {
			return nil, err
		}
		if err := fn(conv); err != nil {
			return nil, err
		}
		conv.SessionID = sessionID
		return conv, write(ctx, tx, conv)
	})
}

// UpdateMessage locks the conversation containing messageID and applies fn.
func (s *PGStore) UpdateMessage(ctx context.Context, messageID string, fn MessageUpdateFunc) (*model.Conversation, error) {
	filter, err := json.Marshal([]map[string]string{{"id": messageID}})
	if err != nil {
		return nil, fmt.Errorf("marshal message filter: %w", err)
	}
	return s.inTx(ctx, func(tx pgx.Tx) (*model.Conversation, error) {
		var doc []byte
		err := tx.QueryRow(ctx, `
			SELECT document FROM conversations
			WHERE document->'messages' @> $1::jsonb
			LIMIT 1 FOR UPDATE`, string(filter)).Scan(&doc)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("lock conversation by message: %w", err)
		}
		conv, err := decode(doc)
		if err != nil {
			return nil, err
		}
		idx := conv.FindMessage(messageID)
		if idx < 0 {
			return nil, ErrNotFound
		}
		if err := fn(conv, idx); err != nil {
			return nil, err
		}
		return conv, write(ctx, tx, conv)
	})
}

func (s *PGStore) inTx(ctx context.Context, fn func(tx pgx.Tx) (*model.Conversation, error)) (*model.Conversation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	conv, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return conv, nil
}

func write(ctx context.Context, tx pgx.Tx, conv *model.Conversation) error {
	doc, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET user_id=$2, status=$3, assigned_agent=$4, last_activity=$5, document=$6
		WHERE session_id=$1`,
		conv.SessionID, nullable(conv.UserID), string(conv.Status),
		nullable(conv.AssignedAgent), conv.LastActivity, string(doc))
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

// List returns conversations matching f, most recently active first.
func (s *PGStore) List(ctx context.Context, f model.ConversationFilter) ([]model.Conversation, error) {
	query, args := listQuery(f)
	docs, err := s.queryDocs(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]model.Conversation, 0, len(docs))
	for _, conv := range docs {
		out = append(out, *conv)
	}
	return out, nil
}

// listQuery builds the filtered listing statement.
func listQuery(f model.ConversationFilter) (string, []any) {
	query := `SELECT document FROM conversations WHERE 1=1`
	args := []any{}
	idx := 1

	add := func(column, value string) {
		if value == "" {
			return
		}
		query += fmt.Sprintf(` AND %s = $%d`, column, idx)
		args = append(args, value)
		idx++
	}
	add("status", string(f.Status))
	add("user_id", f.UserID)
	add("platform", string(f.Platform))
	add("assigned_agent", f.AssignedAgent)

	query += fmt.Sprintf(` ORDER BY last_activity DESC LIMIT $%d`, idx)
	args = append(args, ClampLimit(f.Limit))
	return query, args
}

// FindByUser returns the most recently active conversation of an external user.
func (s *PGStore) FindByUser(ctx context.Context, platform model.Platform, userID string) (*model.Conversation, error) {
	convs, err := s.List(ctx, model.ConversationFilter{Platform: platform, UserID: userID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, ErrNotFound
	}
	return &convs[0], nil
}

// ListNeedsReview returns every flagged message across conversations.
func (s *PGStore) ListNeedsReview(ctx context.Context) ([]model.ReviewItem, error) {
	convs, err := s.queryDocs(ctx, `
		SELECT document FROM conversations
		WHERE document->'messages' @> $1::jsonb`, needsReviewFilter)
	if err != nil {
		return nil, fmt.Errorf("list needs review: %w", err)
	}
	return ReviewItems(convs), nil
}

// StartedSince returns conversations started at or after since.
func (s *PGStore) StartedSince(ctx context.Context, since time.Time) ([]model.Conversation, error) {
	docs, err := s.queryDocs(ctx, `SELECT document FROM conversations WHERE started_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("list started since: %w", err)
	}
	out := make([]model.Conversation, 0, len(docs))
	for _, conv := range docs {
		out = append(out, *conv)
	}
	return out, nil
}

// Walk streams every conversation, oldest first.
func (s *PGStore) Walk(ctx context.Context, fn func(conv *model.Conversation) error) error {
	rows, err := s.pool.Query(ctx, `SELECT document FROM conversations ORDER BY started_at`)
	if err != nil {
		return fmt.Errorf("walk conversations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return fmt.Errorf("scan conversation: %w", err)
		}
		conv, err := decode(doc)
		if err != nil {
			return err
		}
		if err := fn(conv); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PGStore) queryDocs(ctx context.Context, query string, args ...any) ([]*model.Conversation, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conv, err := decode(doc)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// Ping checks database connectivity.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

func decode(doc []byte) (*model.Conversation, error) {
	var conv model.Conversation
	if err := json.Unmarshal(doc, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	if conv.Messages == nil {
		conv.Messages = []model.Message{}
	}
	return &conv, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
