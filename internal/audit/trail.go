package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Store persists audit entries. The repository layer satisfies it.
type Store interface {
	Create(ctx context.Context, entry *domain.AuditLogEntry) error
}

// FailureObserver is notified of every entry that could not be written.
type FailureObserver interface {
	AuditWriteFailed(action string)
}

// WriteError describes an audit entry that was not persisted.
type WriteError struct {
	Action   domain.AuditAction
	Resource string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("audit write %s/%s: %v", e.Action, e.Resource, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ErrUnknownAction rejects entries whose action is outside the closed set.
var ErrUnknownAction = errors.New("unknown audit action")

// Outcome yields exactly one value, nil or a *WriteError, once the write
// finishes. Callers on the request path never need to read it.
type Outcome <-chan error

// Wait blocks until the write has finished or ctx is done.
func (o Outcome) Wait(ctx context.Context) error {
	select {
	case err := <-o:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entry is what callers supply. Provenance and the timestamp are filled in
// by the trail.
type Entry struct {
	UserID     string
	Action     domain.AuditAction
	Resource   string
	ResourceID string
	Details    map[string]any
}

// Trail records audit entries asynchronously. A failed write is logged and
// counted but never reported to the triggering operation.
type Trail struct {
	store    Store
	logger   *zap.Logger
	observer FailureObserver
	timeout  time.Duration
	now      func() time.Time
}

// Option customizes a Trail.
type Option func(*Trail)

// WithObserver registers a failure observer such as the metrics registry.
func WithObserver(o FailureObserver) Option {
	return func(t *Trail) { t.observer = o }
}

// WithTimeout bounds each write.
func WithTimeout(d time.Duration) Option {
	return func(t *Trail) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Trail) { t.now = now }
}

// NewTrail builds a trail on top of store.
func NewTrail(store Store, logger *zap.Logger, opts ...Option) *Trail {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Trail{
		store:   store,
		logger:  logger,
		timeout: 2 * time.Second,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record starts writing entry and returns immediately. The write is detached
// from ctx cancellation but keeps its values, so request provenance set with
// WithRequestMeta survives.
func (t *Trail) Record(ctx context.Context, entry Entry) Outcome {
	done := make(chan error, 1)

	if !entry.Action.Valid() {
		err := t.fail(entry, ErrUnknownAction)
		done <- err
		close(done)
		return done
	}

	record := t.build(ctx, entry)
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)

	go func() {
		defer cancel()
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				done <- t.fail(entry, fmt.Errorf("panic: %v", r))
			}
		}()

		if err := t.store.Create(writeCtx, record); err != nil {
			done <- t.fail(entry, err)
			return
		}
		done <- nil
	}()

	return done
}

func (t *Trail) build(ctx context.Context, entry Entry) *domain.AuditLogEntry {
	userID := entry.UserID
	if userID == "" {
		userID = domain.SystemUserID
	}
	record := &domain.AuditLogEntry{
		UserID:    userID,
		Action:    entry.Action,
		Resource:  entry.Resource,
		Details:   SanitizeParams(entry.Details),
		CreatedAt: t.now(),
	}
	if entry.ResourceID != "" {
		id := entry.ResourceID
		record.ResourceID = &id
	}
	if meta, ok := RequestMetaFrom(ctx); ok {
		record.IPAddress = meta.IPAddress
		record.UserAgent = meta.UserAgent
	}
	return record
}

func (t *Trail) fail(entry Entry, cause error) error {
	err := &WriteError{Action: entry.Action, Resource: entry.Resource, Err: cause}
	t.logger.Error("audit write failed",
		zap.String("action", string(entry.Action)),
		zap.String("resource", entry.Resource),
		zap.String("resource_id", entry.ResourceID),
		zap.String("user_id", entry.UserID),
		zap.Error(cause),
	)
	if t.observer != nil {
		t.observer.AuditWriteFailed(string(entry.Action))
	}
	return err
}
