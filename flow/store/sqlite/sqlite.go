// Package sqlite is a store.Adapter backed by a SQLite database file.
//
// Messages live in a single table and are soft-deleted once confirmed, so the
// file also keeps a record of what has already been delivered.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lguimbarda/deferflow/flow/store"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	deleted_at TEXT,
	content    JSON NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_pending ON messages (deleted_at, created_at);
`

// Queue stores messages of type M as JSON in a SQLite file.
type Queue[M any] struct {
	path string
	cfg  store.Config
}

// Option configures a Queue.
type Option func(*store.Config)

// WithPollInterval overrides how often an empty queue is polled.
func WithPollInterval(d time.Duration) Option {
	return func(c *store.Config) {
		c.PollInterval = d
	}
}

// New returns a Queue on the database file at path. The file is created on
// first use.
func New[M any](path string, opts ...Option) *Queue[M] {
	q := &Queue[M]{path: path}
	for _, opt := range opts {
		opt(&q.cfg)
	}
	return q
}

// Conn is an open Queue. It remembers the message it handed out last so the
// next Dequeue can confirm it.
type Conn struct {
	db           *sql.DB
	pollInterval time.Duration

	mu       sync.Mutex
	returned bool
	last     string
}

func (c *Conn) Close() error {
	return c.db.Close()
}

func (c *Conn) isReturned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.returned
}

// Initialize opens the database in WAL mode and creates the table.
func (q *Queue[M]) Initialize(ctx context.Context) (*Conn, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", q.path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", q.path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	cfg := store.ConfigFrom(ctx)
	if q.cfg.PollInterval > 0 {
		cfg.PollInterval = q.cfg.PollInterval
	}
	return &Conn{db: db, pollInterval: cfg.PollInterval}, nil
}

// Enqueue stores message, replacing the content of a live message with the
// same id.
func (q *Queue[M]) Enqueue(ctx context.Context, conn *Conn, message M) error {
	content, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	_, err = conn.db.ExecContext(ctx, `
		INSERT INTO messages (id, content) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET content = excluded.content`,
		store.MessageID(message), string(content))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Dequeue confirms the previously delivered message and returns the oldest
// live one, polling while the table is empty and the queue not returned.
func (q *Queue[M]) Dequeue(ctx context.Context, conn *Conn) (M, bool, error) {
	var zero M

	if err := q.confirm(ctx, conn); err != nil {
		return zero, false, err
	}

	for {
		msg, found, err := q.oldest(ctx, conn)
		if err != nil {
			return zero, false, err
		}
		if found {
			conn.mu.Lock()
			conn.last = msg.ID
			conn.mu.Unlock()
			return msg.Content, true, nil
		}
		if conn.isReturned() {
			return zero, false, nil
		}
		if !store.Wait(ctx, conn.pollInterval) {
			return zero, false, ctx.Err()
		}
	}
}

func (q *Queue[M]) confirm(ctx context.Context, conn *Conn) error {
	conn.mu.Lock()
	last := conn.last
	conn.last = ""
	conn.mu.Unlock()

	if last == "" {
		return nil
	}
	_, err := conn.db.ExecContext(ctx, `
		UPDATE messages SET deleted_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = ?`, last)
	if err != nil {
		return fmt.Errorf("confirm message %s: %w", last, err)
	}
	return nil
}

func (q *Queue[M]) oldest(ctx context.Context, conn *Conn) (store.Message[M], bool, error) {
	row := conn.db.QueryRowContext(ctx, `
		SELECT id, created_at, content FROM messages
		WHERE deleted_at IS NULL
		ORDER BY created_at, rowid
		LIMIT 1`)
	msg, err := scanMessage[M](row)
	if errors.Is(err, sql.ErrNoRows) {
		return msg, false, nil
	}
	if err != nil {
		return msg, false, err
	}
	return msg, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage[M any](row scanner) (store.Message[M], error) {
	var (
		msg     store.Message[M]
		created string
		content string
	)
	if err := row.Scan(&msg.ID, &created, &content); err != nil {
		return msg, err
	}
	if err := json.Unmarshal([]byte(content), &msg.Content); err != nil {
		return msg, fmt.Errorf("decode message %s: %w", msg.ID, err)
	}
	msg.CreatedAt, _ = time.Parse(timeLayout, created)
	return msg, nil
}

const timeLayout = "2006-01-02T15:04:05.000Z"

// Return stops Dequeue from waiting for new messages once the table is
// drained.
func (q *Queue[M]) Return(_ context.Context, conn *Conn) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.returned = true
	return nil
}

// Pending returns the live messages in delivery order without confirming
// anything.
func (q *Queue[M]) Pending(ctx context.Context) ([]store.Message[M], error) {
	conn, err := q.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.db.QueryContext(ctx, `
		SELECT id, created_at, content FROM messages
		WHERE deleted_at IS NULL
		ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var pending []store.Message[M]
	for rows.Next() {
		msg, err := scanMessage[M](rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, msg)
	}
	return pending, rows.Err()
}
