// Package journal appends session lifecycle and chat events to Postgres.
//
// The journal is write-only from the server's point of view: nothing is
// read back at startup. Recording never blocks the caller; when the buffer
// is full the event is dropped and counted.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	maxBatchSize  = 64
	insertTimeout = 5 * time.Second
)

type Kind string

const (
	KindJoin  Kind = "join"
	KindLeave Kind = "leave"
	KindChat  Kind = "chat"
)

type Event struct {
	Kind         Kind
	ConnectionID string
	PlayerName   string
	Content      string
	OccurredAt   time.Time
}

// Recorder accepts events. Implementations must not block.
type Recorder interface {
	Record(Event)
}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Event) {}

type Journal struct {
	pool    *pgxpool.Pool
	events  chan Event
	closing chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	dropped   atomic.Int64
	written   atomic.Int64
}

// Open connects to databaseURL, applies migrations and starts the writer.
func Open(ctx context.Context, databaseURL string, bufferSize int) (*Journal, error) {
	if bufferSize <= 0 {
		return nil, fmt.Errorf("journal buffer must be positive, got %d", bufferSize)
	}

	if err := Migrate(databaseURL); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach journal database: %w", err)
	}

	j := &Journal{
		pool:    pool,
		events:  make(chan Event, bufferSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go j.run()
	return j, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open journal database: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Record queues e for writing. It never blocks.
func (j *Journal) Record(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	select {
	case <-j.closing:
		j.dropped.Add(1)
		return
	default:
	}
	select {
	case j.events <- e:
	default:
		j.dropped.Add(1)
	}
}

func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

func (j *Journal) Written() int64 {
	return j.written.Load()
}

func (j *Journal) run() {
	defer close(j.done)

	for {
		select {
		case e := <-j.events:
			j.flush(j.collect(e))
		case <-j.closing:
			for {
				select {
				case e := <-j.events:
					j.flush(j.collect(e))
				default:
					return
				}
			}
		}
	}
}

// collect gathers first plus whatever else is already buffered, up to a batch.
func (j *Journal) collect(first Event) []Event {
	batch := []Event{first}
	for len(batch) < maxBatchSize {
		select {
		case e := <-j.events:
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

func (j *Journal) flush(events []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := j.insert(ctx, events); err != nil {
		log.Printf("Journal write failed (%d events): %v", len(events), err)
		j.dropped.Add(int64(len(events)))
		return
	}
	j.written.Add(int64(len(events)))
}

func (j *Journal) insert(ctx context.Context, events []Event) error {
	query := `
		INSERT INTO session_events (kind, connection_id, player_name, content, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query, string(e.Kind), e.ConnectionID, e.PlayerName, e.Content, e.OccurredAt)
	}

	results := j.pool.SendBatch(ctx, batch)
	var errs []error
	for range events {
		if _, err := results.Exec(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := results.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close stops accepting events, writes what is buffered and closes the pool.
func (j *Journal) Close(ctx context.Context) error {
	j.closeOnce.Do(func() { close(j.closing) })

	var err error
	select {
	case <-j.done:
	case <-ctx.Done():
		err = fmt.Errorf("journal drain interrupted: %w", ctx.Err())
	}
	j.pool.Close()
	return err
}

// Health reports the journal's database status.
func (j *Journal) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := map[string]string{
		"written": strconv.FormatInt(j.Written(), 10),
		"dropped": strconv.FormatInt(j.Dropped(), 10),
	}
	if err := j.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}

	poolStats := j.pool.Stat()
	stats["status"] = "up"
	stats["total_conns"] = strconv.Itoa(int(poolStats.TotalConns()))
	stats["idle_conns"] = strconv.Itoa(int(poolStats.IdleConns()))
	return stats
}
