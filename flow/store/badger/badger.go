// Package badger is a store.Adapter backed by BadgerDB.
//
// Each message is kept as a msgpack record under m/<id>. Live messages also
// have an index key q/<created><id>, so iterating the q/ prefix yields them in
// delivery order. Confirming a message stamps DeletedAt on its record and
// drops its index key.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/lguimbarda/deferflow/flow/store"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	recordPrefix = []byte("m/")
	indexPrefix  = []byte("q/")
)

func recordKey(id string) []byte {
	return append(append([]byte{}, recordPrefix...), id...)
}

func indexKey(created time.Time, id string) []byte {
	k := make([]byte, 0, len(indexPrefix)+8+len(id))
	k = append(k, indexPrefix...)
	k = binary.BigEndian.AppendUint64(k, uint64(created.UnixNano()))
	return append(k, id...)
}

// Options configures a Queue.
type Options struct {
	// Dir holds the database files. Required unless InMemory is set.
	Dir string
	// InMemory keeps everything in memory; messages do not survive Close.
	InMemory bool
	// PollInterval overrides store.Config.PollInterval.
	PollInterval time.Duration
	// Logger receives badger's warnings and errors. Defaults to the logger
	// carried by the Initialize context.
	Logger *zerolog.Logger
}

// Queue stores messages of type M in a Badger database.
type Queue[M any] struct {
	opts Options

	mu       sync.Mutex
	lastTime time.Time
}

// New returns a Queue configured by opts.
func New[M any](opts Options) (*Queue[M], error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger: Options.Dir is required for on-disk mode")
	}
	return &Queue[M]{opts: opts}, nil
}

// Conn is an open Queue.
type Conn struct {
	db           *badger.DB
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

// Initialize opens the database.
func (q *Queue[M]) Initialize(ctx context.Context) (*Conn, error) {
	logger := zerolog.Ctx(ctx)
	if q.opts.Logger != nil {
		logger = q.opts.Logger
	}

	dbOpts := badger.DefaultOptions(q.opts.Dir).WithLogger(Logger{Logger: logger.With().Str("component", "badger").Logger()})
	if q.opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	cfg := store.ConfigFrom(ctx)
	if q.opts.PollInterval > 0 {
		cfg.PollInterval = q.opts.PollInterval
	}
	return &Conn{db: db, pollInterval: cfg.PollInterval}, nil
}

// now returns a strictly increasing timestamp so index keys never collide
// and keep enqueue order.
func (q *Queue[M]) now() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := time.Now().UTC()
	if !t.After(q.lastTime) {
		t = q.lastTime.Add(time.Nanosecond)
	}
	q.lastTime = t
	return t
}

// Enqueue stores message. A message whose id is already stored only has its
// content replaced.
func (q *Queue[M]) Enqueue(_ context.Context, conn *Conn, message M) error {
	id := store.MessageID(message)
	return conn.db.Update(func(txn *badger.Txn) error {
		msg, err := getRecord[M](txn, id)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			msg = store.Message[M]{ID: id, CreatedAt: q.now()}
			if err := txn.Set(indexKey(msg.CreatedAt, id), []byte(id)); err != nil {
				return err
			}
		case err != nil:
			return err
		}
		msg.Content = message
		return putRecord(txn, msg)
	})
}

// Dequeue confirms the previously delivered message and returns the oldest
// live one, polling while none is stored and the queue is not returned.
func (q *Queue[M]) Dequeue(ctx context.Context, conn *Conn) (M, bool, error) {
	var zero M

	if err := q.confirm(conn); err != nil {
		return zero, false, err
	}

	for {
		msg, found, err := oldest[M](conn.db)
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

func (q *Queue[M]) confirm(conn *Conn) error {
	conn.mu.Lock()
	last := conn.last
	conn.last = ""
	conn.mu.Unlock()

	if last == "" {
		return nil
	}
	err := conn.db.Update(func(txn *badger.Txn) error {
		msg, err := getRecord[M](txn, last)
		if err != nil {
			return err
		}
		if msg.DeletedAt != nil {
			return nil
		}
		deleted := time.Now().UTC()
		msg.DeletedAt = &deleted
		if err := txn.Delete(indexKey(msg.CreatedAt, msg.ID)); err != nil {
			return err
		}
		return putRecord(txn, msg)
	})
	if err != nil {
		return fmt.Errorf("confirm message %s: %w", last, err)
	}
	return nil
}

// Return stops Dequeue from waiting for new messages once the queue is
// drained.
func (q *Queue[M]) Return(_ context.Context, conn *Conn) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.returned = true
	return nil
}

// Pending returns the live messages in delivery order. It opens the
// database itself, so no Conn may be open at the same time.
func (q *Queue[M]) Pending(ctx context.Context) ([]store.Message[M], error) {
	conn, err := q.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var pending []store.Message[M]
	err = conn.db.View(func(txn *badger.Txn) error {
		return scanLive[M](txn, func(msg store.Message[M]) bool {
			pending = append(pending, msg)
			return true
		})
	})
	return pending, err
}

func oldest[M any](db *badger.DB) (store.Message[M], bool, error) {
	var (
		first store.Message[M]
		found bool
	)
	err := db.View(func(txn *badger.Txn) error {
		return scanLive[M](txn, func(msg store.Message[M]) bool {
			first, found = msg, true
			return false
		})
	})
	return first, found, err
}

// scanLive walks the index in delivery order until fn returns false.
func scanLive[M any](txn *badger.Txn, fn func(store.Message[M]) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = indexPrefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(indexPrefix); it.ValidForPrefix(indexPrefix); it.Next() {
		id, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		msg, err := getRecord[M](txn, string(id))
		if err != nil {
			return fmt.Errorf("message %s: %w", id, err)
		}
		if !fn(msg) {
			return nil
		}
	}
	return nil
}

func getRecord[M any](txn *badger.Txn, id string) (store.Message[M], error) {
	var msg store.Message[M]
	item, err := txn.Get(recordKey(id))
	if err != nil {
		return msg, err
	}
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &msg)
	})
	return msg, err
}

func putRecord[M any](txn *badger.Txn, msg store.Message[M]) error {
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID, err)
	}
	return txn.Set(recordKey(msg.ID), data)
}
