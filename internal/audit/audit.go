// Package audit records who did what on the platform's administrative and
// POS surfaces. Events are append-only; nothing in this package can update
// or delete one.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a single audit record.
type Event struct {
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
	StaffID       string         `json:"staff_id"`
	Action        string         `json:"action"`
	TargetID      string         `json:"target_id,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	Result        string         `json:"result"` // "success", "failure", "denied"
	Error         string         `json:"error,omitempty"`
}

// Store is an append-only store for audit events.
// Implementations must not expose update or delete.
type Store interface {
	Append(ctx context.Context, orgID uuid.UUID, event Event) error
	Query(ctx context.Context, orgID uuid.UUID, staffID string, limit int) ([]Event, error)
}

// Recorder is the audit sink handed to services. It writes every event to
// the database store and, when configured, mirrors it to a JSONL file so an
// operator can tail the trail without database access.
type Recorder struct {
	store  Store
	orgID  uuid.UUID
	file   *fileSink
	logger *slog.Logger
}

// NewRecorder creates a Recorder bound to one organization.
// jsonlPath is optional; empty disables the file mirror.
func NewRecorder(store Store, orgID uuid.UUID, jsonlPath string, logger *slog.Logger) (*Recorder, error) {
	r := &Recorder{store: store, orgID: orgID, logger: logger}
	if jsonlPath != "" {
		sink, err := newFileSink(jsonlPath)
		if err != nil {
			return nil, err
		}
		r.file = sink
	}
	return r, nil
}

// Record appends an event. A failure to persist is logged but never fails
// the calling operation; the audit trail is best-effort by contract.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := r.store.Append(ctx, r.orgID, event); err != nil {
		r.logger.ErrorContext(ctx, "appending audit event",
			slog.String("action", event.Action),
			slog.String("error", err.Error()),
		)
	}
	if r.file != nil {
		if err := r.file.write(event); err != nil {
			r.logger.ErrorContext(ctx, "writing audit jsonl",
				slog.String("error", err.Error()),
			)
		}
	}
	r.logger.InfoContext(ctx, "audit event",
		slog.String("action", event.Action),
		slog.String("staff_id", event.StaffID),
		slog.String("result", event.Result),
	)
}

// Query returns recent events, newest first. staffID filters when non-empty.
func (r *Recorder) Query(ctx context.Context, staffID string, limit int) ([]Event, error) {
	return r.store.Query(ctx, r.orgID, staffID, limit)
}

// Close closes the JSONL mirror, if one is open.
func (r *Recorder) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.close()
}

// fileSink writes audit events as append-only JSONL, one event per line.
// Thread-safe: multiple goroutines can write concurrently.
type fileSink struct {
	mu   sync.Mutex
	file *os.File
}

func newFileSink(path string) (*fileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	return &fileSink{file: f}, nil
}

// write serializes the event outside the lock; only the file write is
// serialized.
func (s *fileSink) write(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	_, writeErr := s.file.Write(data)
	s.mu.Unlock()

	if writeErr != nil {
		return fmt.Errorf("writing audit event: %w", writeErr)
	}
	return nil
}

func (s *fileSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
