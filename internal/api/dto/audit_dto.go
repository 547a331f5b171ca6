package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// AuditLogResponse is the wire form of an audit entry.
type AuditLogResponse struct {
	ID         string             `json:"id"`
	UserID     string             `json:"userId"`
	Action     domain.AuditAction `json:"action"`
	Resource   string             `json:"resource"`
	ResourceID *string            `json:"resourceId"`
	Details    map[string]any     `json:"details"`
	IPAddress  string             `json:"ipAddress"`
	UserAgent  string             `json:"userAgent"`
	Timestamp  time.Time          `json:"timestamp"`
}

// NewAuditLogResponse maps an entry to its wire form.
func NewAuditLogResponse(e *domain.AuditLogEntry) AuditLogResponse {
	return AuditLogResponse{
		ID:         e.ID,
		UserID:     e.UserID,
		Action:     e.Action,
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		Details:    e.Details,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		Timestamp:  e.CreatedAt,
	}
}
