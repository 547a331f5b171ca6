package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// AuditRecorder is the write side of the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) audit.Outcome
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, audit.Entry) audit.Outcome {
	done := make(chan error, 1)
	done <- nil
	close(done)
	return done
}

// record starts an audit write and drops the outcome. Failures are reported
// by the trail itself.
func record(ctx context.Context, recorder AuditRecorder, entry audit.Entry) {
	if recorder == nil {
		return
	}
	_ = recorder.Record(ctx, entry)
}

// canonicalID returns the lowercase hyphenated form of a UUID. Uppercase,
// braced, urn and unhyphenated spellings all name the same row in the store,
// so every id is compared and stored in this form.
func canonicalID(id string) (string, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func mapRepoError(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, nil)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(resource+" already exists", nil)
	default:
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			return err
		}
		return apperrors.NewInternalError(err)
	}
}

func actorOf(p *auth.Principal) events.Actor {
	if p == nil || p.User == nil {
		return events.Actor{}
	}
	return events.Actor{UserID: p.User.ID, Role: p.User.Assignment.Role}
}

func publish(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event dispatch failed", zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID), zap.Error(err))
	}
}
