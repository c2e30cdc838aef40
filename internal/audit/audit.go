package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/driverlog/internal/db"
)

// Row is one audit_logs record.
type Row struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	Username     string    `json:"username"`
	Success      bool      `json:"success"`
	Details      string    `json:"details"`
	ComputerName string    `json:"computer_name"`
	IPAddress    string    `json:"ip_address"`
	Platform     string    `json:"platform"`
}

// Entry is an audit event to be written.
type Entry struct {
	Timestamp    time.Time
	Action       string
	Username     string
	Success      bool
	Details      string
	ComputerName string
	IPAddress    string
	Platform     string
}

// Store provides database operations for the audit log.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates an audit Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const auditColumns = `id, timestamp, action, username, success, details, computer_name, ip_address, platform`

// Insert appends one entry. A zero timestamp defaults to now.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	details := e.Details
	if details == "" {
		details = "{}"
	}

	_, err := s.dbtx.Exec(ctx,
		`INSERT INTO audit_logs (timestamp, action, username, success, details, computer_name, ip_address, platform)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ts, e.Action, e.Username, e.Success, details, e.ComputerName, e.IPAddress, e.Platform,
	)
	if err != nil {
		return fmt.Errorf("inserting audit log entry: %w", err)
	}
	return nil
}

// List returns the newest entries first.
func (s *Store) List(ctx context.Context, limit int) ([]Row, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs ORDER BY timestamp DESC, id DESC LIMIT $1`
	rows, err := s.dbtx.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	defer rows.Close()

	var items []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Action, &r.Username, &r.Success,
			&r.Details, &r.ComputerName, &r.IPAddress, &r.Platform,
		); err != nil {
			return nil, fmt.Errorf("scanning audit log row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log rows: %w", err)
	}
	return items, nil
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Writer is an async, buffered audit log writer used by web handlers to record
// their own mutations. Entries are sent to an internal channel and flushed by
// a background goroutine.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes audit entries.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry. It never blocks the caller; if the buffer is
// full the entry is dropped and a warning is logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry", "action", entry.Action)
	}
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the database.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewStore(w.pool)
	for _, e := range entries {
		if err := store.Insert(ctx, e); err != nil {
			w.logger.Error("writing audit log entry", "error", err, "action", e.Action)
		}
	}
}
