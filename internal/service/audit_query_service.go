package service

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// AuditQueryService exposes the read side of the audit trail.
type AuditQueryService struct {
	logs   repository.AuditRepository
	engine *auth.Engine
}

// NewAuditQueryService constructs the service.
func NewAuditQueryService(logs repository.AuditRepository, engine *auth.Engine) *AuditQueryService {
	if engine == nil {
		engine = auth.NewEngine(nil)
	}
	return &AuditQueryService{logs: logs, engine: engine}
}

// AuditListFilter narrows audit queries.
type AuditListFilter struct {
	UserID   string
	Action   string
	Resource string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

// List returns one page of entries, newest first. Reading is not audited.
func (s *AuditQueryService) List(ctx context.Context, actor *auth.Principal, filter AuditListFilter) ([]domain.AuditLogEntry, int, error) {
	if err := s.engine.Authorize(actor, auth.Permission(auth.PermAuditRead)); err != nil {
		return nil, 0, err
	}
	action := domain.AuditAction(filter.Action)
	if action != "" && !action.Valid() {
		return nil, 0, apperrors.NewValidationError("invalid filter", map[string]any{"action": "unknown action"})
	}
	userID := filter.UserID
	if userID != "" {
		canonical, ok := canonicalID(userID)
		if !ok {
			return nil, 0, apperrors.NewValidationError("invalid filter", map[string]any{"userId": "must be a UUID"})
		}
		userID = canonical
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	entries, total, err := s.logs.List(ctx, repository.AuditFilter{
		UserID:   userID,
		Action:   action,
		Resource: filter.Resource,
		From:     filter.From,
		To:       filter.To,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return nil, 0, mapRepoError(err, "audit log")
	}
	return entries, total, nil
}
