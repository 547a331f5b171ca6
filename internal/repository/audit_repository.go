package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// AuditFilter narrows audit log queries.
type AuditFilter struct {
	UserID   string
	Action   domain.AuditAction
	Resource string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// AuditRepository is append-only: there is no update or delete.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditFilter) ([]domain.AuditLogEntry, int, error)
}

type auditRepository struct {
	pool DB
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool DB) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Create(ctx context.Context, entry *domain.AuditLogEntry) error {
	const query = `
        INSERT INTO audit_logs (user_id, action, resource, resource_id, details, ip_address, user_agent, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id`
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	err := r.pool.QueryRow(ctx, query,
		entry.UserID,
		string(entry.Action),
		entry.Resource,
		entry.ResourceID,
		details,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
	).Scan(&entry.ID)
	return translate(err)
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]domain.AuditLogEntry, int, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		clauses = append(clauses, fmt.Sprintf("action=$%d", len(args)))
	}
	if filter.Resource != "" {
		args = append(args, filter.Resource)
		clauses = append(clauses, fmt.Sprintf("resource=$%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := limitOffset(filter.Limit, filter.Offset, 50)
	query := fmt.Sprintf(`
        SELECT id, user_id, action, resource, resource_id, details, ip_address, user_agent, created_at
        FROM audit_logs WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`, where, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.AuditLogEntry
	for rows.Next() {
		var (
			entry  domain.AuditLogEntry
			action string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&action,
			&entry.Resource,
			&entry.ResourceID,
			&entry.Details,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		entry.Action = domain.AuditAction(action)
		result = append(result, entry)
	}
	return result, total, rows.Err()
}
