// Persistence contract the core consumes but does not implement in depth:
// a three-method sink for completed span records, per the data model's
// "store" interface. InMemoryStore and SQLiteStore are the two concrete
// implementations shipped here; neither is required by the engine, which
// only ever sees the Store interface via a TraceRecorder observer.
package synth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// TraceRecord is one persisted span, the unit the Store interface exchanges.
type TraceRecord struct {
	TraceID    string
	SpanID     string
	Service    string
	Operation  string
	Scenario   string
	StartTime  time.Time
	EndTime    time.Time
	IsError    bool
	Attributes map[string]any
}

// Store is the persistence contract from the external interfaces: add a
// finished record, fetch the most recently added ones, and report health.
// The core depends only on this interface.
type Store interface {
	Add(ctx context.Context, rec TraceRecord) error
	FetchRecent(ctx context.Context, limit int) ([]TraceRecord, error)
	HealthCheck(ctx context.Context) error
}

// TraceRecorder is a SpanObserver that forwards every completed span to a
// Store, adapting the engine's per-span observer hook to the trace-record
// persistence contract. Logger and Stats are optional; when set, a failed
// Store.Add is logged and counted instead of being silently dropped.
type TraceRecorder struct {
	Store  Store
	Logger *zap.Logger
	Stats  *Stats
}

func (r *TraceRecorder) Observe(info SpanInfo) {
	err := r.Store.Add(context.Background(), TraceRecord{
		TraceID: info.TraceID, SpanID: info.SpanID,
		Service: info.Service, Operation: info.Operation, Scenario: info.Scenario,
		StartTime: info.StartTime, EndTime: info.EndTime, IsError: info.IsError,
		Attributes: info.Attributes,
	})
	if err == nil {
		return
	}

	exportErr := &ExporterError{Service: info.Service, Operation: info.Operation, Err: err}
	if r.Stats != nil {
		r.Stats.StoreErrors.Add(1)
	}
	if r.Logger != nil {
		r.Logger.Warn("store add failed", zap.Error(exportErr),
			zap.String("service", info.Service), zap.String("operation", info.Operation))
	}
}

// InMemoryStore is a bounded ring buffer Store implementation.
type InMemoryStore struct {
	mu      sync.Mutex
	records []TraceRecord
	maxSize int
}

// NewInMemoryStore creates a ring buffer retaining at most maxSize records.
func NewInMemoryStore(maxSize int) *InMemoryStore {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &InMemoryStore{maxSize: maxSize}
}

func (s *InMemoryStore) Add(_ context.Context, rec TraceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if len(s.records) > s.maxSize {
		s.records = s.records[len(s.records)-s.maxSize:]
	}
	return nil
}

func (s *InMemoryStore) FetchRecent(_ context.Context, limit int) ([]TraceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]TraceRecord, limit)
	copy(out, s.records[len(s.records)-limit:])
	return out, nil
}

func (s *InMemoryStore) HealthCheck(context.Context) error { return nil }

// SQLiteStore persists records to a pure-Go SQLite database, standing in
// for "an external analytical database" from the persistence contract
// without requiring a running server process.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path
// and ensures its schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS trace_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT NOT NULL,
	span_id TEXT NOT NULL,
	service TEXT NOT NULL,
	operation TEXT NOT NULL,
	scenario TEXT NOT NULL,
	start_time_ns INTEGER NOT NULL,
	end_time_ns INTEGER NOT NULL,
	is_error INTEGER NOT NULL,
	attributes_json TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Add(ctx context.Context, rec TraceRecord) error {
	attrsJSON, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("marshalling attributes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trace_records (trace_id, span_id, service, operation, scenario, start_time_ns, end_time_ns, is_error, attributes_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID, rec.SpanID, rec.Service, rec.Operation, rec.Scenario,
		rec.StartTime.UnixNano(), rec.EndTime.UnixNano(), boolToInt(rec.IsError), string(attrsJSON),
	)
	return err
}

func (s *SQLiteStore) FetchRecent(ctx context.Context, limit int) ([]TraceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT trace_id, span_id, service, operation, scenario, start_time_ns, end_time_ns, is_error, attributes_json
		 FROM trace_records ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TraceRecord
	for rows.Next() {
		var rec TraceRecord
		var startNS, endNS int64
		var isErr int
		var attrsJSON string
		if err := rows.Scan(&rec.TraceID, &rec.SpanID, &rec.Service, &rec.Operation, &rec.Scenario,
			&startNS, &endNS, &isErr, &attrsJSON); err != nil {
			return nil, err
		}
		rec.StartTime = time.Unix(0, startNS)
		rec.EndTime = time.Unix(0, endNS)
		rec.IsError = isErr != 0
		_ = json.Unmarshal([]byte(attrsJSON), &rec.Attributes)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
