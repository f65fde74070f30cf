// Package journal persists device diagnostics in a SQLite database so that
// unknown commands, upload sessions and watchdog trips can be reviewed later.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/james-see/tonebridge/pkg/device"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id      INTEGER PRIMARY KEY,
	at      TEXT NOT NULL,
	kind    TEXT NOT NULL,
	channel TEXT NOT NULL DEFAULT '',
	session TEXT NOT NULL DEFAULT '',
	detail  TEXT NOT NULL DEFAULT '',
	length  INTEGER NOT NULL DEFAULT 0,
	peers   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS events_kind ON events(kind);
CREATE INDEX IF NOT EXISTS events_at ON events(at);
`

// DefaultQueueSize bounds the events waiting to be written
const DefaultQueueSize = 1024

type entry struct {
	event device.Event
	flush chan struct{}
}

// Journal is a device.Recorder backed by SQLite. Record never blocks: a
// single writer goroutine drains a bounded queue and events arriving while
// it is full are dropped and counted.
type Journal struct {
	db  *sql.DB
	log *zap.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan entry
	done    chan struct{}
	dropped atomic.Int64
}

// Option configures a Journal
type Option func(*options)

type options struct {
	log       *zap.Logger
	queueSize int
}

// WithLogger sets the journal logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithQueueSize sets how many events may wait for the writer
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// Open opens or creates the journal database at path
func Open(path string, opts ...Option) (*Journal, error) {
	o := options{log: zap.NewNop(), queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	j := &Journal{
		db:    db,
		log:   o.log,
		queue: make(chan entry, o.queueSize),
		done:  make(chan struct{}),
	}
	go j.run()
	return j, nil
}

// openDB opens SQLite with WAL journaling and a busy timeout
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection keeps ":memory:" databases shared between writer and readers
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}
	return db, nil
}

// Record queues an event for writing
func (j *Journal) Record(e device.Event) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- entry{event: e}:
	default:
		if j.dropped.Add(1) == 1 {
			j.log.Warn("journal queue full, dropping events")
		}
	}
}

// Dropped returns how many events were discarded because the queue was full
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Flush waits until every event queued before the call is written
func (j *Journal) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return nil
	}
	select {
	case j.queue <- entry{flush: ack}:
		j.mu.RUnlock()
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Journal) run() {
	defer close(j.done)
	const insert = `INSERT INTO events (at, kind, channel, session, detail, length, peers) VALUES (?, ?, ?, ?, ?, ?, ?)`
	for en := range j.queue {
		if en.flush != nil {
			close(en.flush)
			continue
		}
		e := en.event
		if e.Time.IsZero() {
			e.Time = time.Now()
		}
		_, err := j.db.ExecContext(context.Background(), insert,
			e.Time.UTC().Format(time.RFC3339Nano), string(e.Kind), e.Channel, e.Session, e.Detail, e.Length, e.Peers)
		if err != nil {
			j.log.Error("journal write failed", zap.String("kind", string(e.Kind)), zap.Error(err))
		}
	}
}

// Close drains pending events and closes the database
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	if n := j.dropped.Load(); n > 0 {
		j.log.Warn("journal dropped events", zap.Int64("count", n))
	}
	return j.db.Close()
}

// Query filters journal events. Zero fields match everything.
type Query struct {
	Kind    device.EventKind
	Channel string
	Session string
	Since   time.Time
	// Limit caps the result to the most recent events; zero means 100
	Limit int
}

// Events returns matching events, oldest first
func (j *Journal) Events(ctx context.Context, q Query) ([]device.Event, error) {
	var (
		where []string
		args  []any
	)
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.Channel != "" {
		where = append(where, "channel = ?")
		args = append(args, q.Channel)
	}
	if q.Session != "" {
		where = append(where, "session = ?")
		args = append(args, q.Session)
	}
	if !q.Since.IsZero() {
		where = append(where, "at >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT at, kind, channel, session, detail, length, peers FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var events []device.Event
	for rows.Next() {
		var (
			e    device.Event
			at   string
			kind string
		)
		if err := rows.Scan(&at, &kind, &e.Channel, &e.Session, &e.Detail, &e.Length, &e.Peers); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Kind = device.EventKind(kind)
		if e.Time, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse journal time %q: %w", at, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for l, r := 0, len(events)-1; l < r; l, r = l+1, r-1 {
		events[l], events[r] = events[r], events[l]
	}
	return events, nil
}
