package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-ingest/internal/db"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
)

// Auditor records significant actions. Recording never fails the caller.
type Auditor interface {
	Record(ctx context.Context, event models.AuditEvent)
}

const defaultBuffer = 256

// Recorder writes audit events to the store from a background goroutine.
// Events that cannot be queued or stored are logged and dropped.
type Recorder struct {
	store  db.AuditStore
	logger *logrus.Logger

	mu     sync.Mutex
	closed bool
	events chan models.AuditEvent
	done   chan struct{}
}

// NewRecorder starts a recorder with the given queue size.
func NewRecorder(store db.AuditStore, logger *logrus.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	r := &Recorder{
		store:  store,
		logger: logger,
		events: make(chan models.AuditEvent, buffer),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record queues the event, assigning an id and timestamp when missing.
func (r *Recorder) Record(ctx context.Context, event models.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Details = event.Details.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logDropped(event, "recorder closed")
		return
	}
	select {
	case r.events <- event:
	default:
		r.logDropped(event, "queue full")
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for event := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.store.AppendAuditEvent(ctx, &event)
		cancel()

		entry := r.logger.WithFields(logrus.Fields{
			"audit_id":      event.ID,
			"action":        event.Action,
			"repository_id": event.RepositoryID,
			"actor_id":      event.ActorID,
		})
		if err != nil {
			entry.WithError(err).Error("Failed to write audit event")
			continue
		}
		entry.Debug("Audit event recorded")
	}
}

func (r *Recorder) logDropped(event models.AuditEvent, reason string) {
	r.logger.WithFields(logrus.Fields{
		"action":        event.Action,
		"repository_id": event.RepositoryID,
		"reason":        reason,
	}).Warn("Dropping audit event")
}

// Close stops accepting events and waits until queued ones are written.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
