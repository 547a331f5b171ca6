package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// UserFilter captures admin listing parameters. Tombstoned users are only
// returned when Deleted is set.
type UserFilter struct {
	Search     string
	Status     *domain.UserStatus
	Deleted    bool
	Role       *domain.RoleID
	Department string
	Limit      int
	Offset     int
}

// UserPatch is a partial update applied to many users at once. Nil fields are
// left untouched.
type UserPatch struct {
	Status     *domain.UserStatus
	Role       *domain.RoleID
	Department *string
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Status == nil && p.Role == nil && p.Department == nil
}

// UserRepository defines persistence access for principals.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, int, error)
	SoftDelete(ctx context.Context, id, actorID string) error
	BulkUpdate(ctx context.Context, ids []string, patch UserPatch, actorID string) (int64, error)
	BulkSoftDelete(ctx context.Context, ids []string, actorID string) (int64, error)
	TouchLastLogin(ctx context.Context, id string) error
}

type userRepository struct {
	pool DB
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool DB) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, first_name, last_name, email, phone, department, password_hash, role, user_type,
               permissions, status, last_login_at, created_by, updated_by, deleted_by, deleted_at, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (first_name, last_name, email, phone, department, password_hash, role, user_type,
                           permissions, status, created_by, updated_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$7,$8,$9,$10,$10)
        RETURNING id, created_at, updated_at`

	user.Assignment = domain.NewRoleAssignment(user.Assignment.Role)
	if user.Permissions == nil {
		user.Permissions = []string{}
	}
	err := r.pool.QueryRow(ctx, query,
		user.FirstName,
		user.LastName,
		domain.NormalizeEmail(user.Email),
		user.Phone,
		user.Department,
		user.PasswordHash,
		string(user.Assignment.Role),
		user.Permissions,
		string(user.Status),
		user.CreatedBy,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return translate(err)
}

// Update always writes role and user_type from the single assignment value.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET first_name=$1, last_name=$2, email=$3, phone=$4, department=$5, password_hash=$6,
            role=$7, user_type=$7, permissions=$8, status=$9, updated_by=$10, updated_at=NOW()
        WHERE id=$11 AND deleted_at IS NULL
        RETURNING updated_at`

	user.Assignment = domain.NewRoleAssignment(user.Assignment.Role)
	if user.Permissions == nil {
		user.Permissions = []string{}
	}
	err := r.pool.QueryRow(ctx, query,
		user.FirstName,
		user.LastName,
		domain.NormalizeEmail(user.Email),
		user.Phone,
		user.Department,
		user.PasswordHash,
		string(user.Assignment.Role),
		user.Permissions,
		string(user.Status),
		user.UpdatedBy,
		user.ID,
	).Scan(&user.UpdatedAt)
	return translate(err)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1 AND deleted_at IS NULL`
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email)=$1 AND deleted_at IS NULL`
	return r.fetchSingle(ctx, query, domain.NormalizeEmail(email))
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]domain.User, int, error) {
	clauses := []string{}
	args := []any{}

	if filter.Deleted {
		clauses = append(clauses, "deleted_at IS NOT NULL")
	} else {
		clauses = append(clauses, "deleted_at IS NULL")
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Role != nil {
		args = append(args, string(*filter.Role))
		clauses = append(clauses, fmt.Sprintf("(role=$%d OR user_type=$%d)", len(args), len(args)))
	}
	if dept := strings.TrimSpace(filter.Department); dept != "" {
		args = append(args, dept)
		clauses = append(clauses, fmt.Sprintf("department=$%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		p := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(first_name) LIKE %s OR LOWER(last_name) LIKE %s OR LOWER(email) LIKE %s)", p, p, p))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := limitOffset(filter.Limit, filter.Offset, 20)
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		userColumns, where, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *user)
	}
	return result, total, rows.Err()
}

func (r *userRepository) SoftDelete(ctx context.Context, id, actorID string) error {
	const query = `
        UPDATE users SET deleted_at=NOW(), deleted_by=$2, updated_by=$2, updated_at=NOW()
        WHERE id=$1 AND deleted_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, id, actorID)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BulkUpdate applies patch in one statement. Rows already in the target state
// are not counted.
func (r *userRepository) BulkUpdate(ctx context.Context, ids []string, patch UserPatch, actorID string) (int64, error) {
	if len(ids) == 0 || patch.Empty() {
		return 0, nil
	}
	const query = `
        UPDATE users SET
            status = COALESCE($2::text, status),
            role = COALESCE($3::text, role),
            user_type = COALESCE($3::text, user_type),
            department = COALESCE($4::text, department),
            updated_by = $5,
            updated_at = NOW()
        WHERE id = ANY($1::text[]::uuid[]) AND deleted_at IS NULL
          AND (($2::text IS NOT NULL AND status IS DISTINCT FROM $2::text)
            OR ($3::text IS NOT NULL AND (role IS DISTINCT FROM $3::text OR user_type IS DISTINCT FROM $3::text))
            OR ($4::text IS NOT NULL AND department IS DISTINCT FROM $4::text))`

	cmd, err := r.pool.Exec(ctx, query, ids, statusArg(patch.Status), roleArg(patch.Role), patch.Department, actorID)
	if err != nil {
		return 0, translate(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *userRepository) BulkSoftDelete(ctx context.Context, ids []string, actorID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `
        UPDATE users SET deleted_at=NOW(), deleted_by=$2, updated_by=$2, updated_at=NOW()
        WHERE id = ANY($1::text[]::uuid[]) AND deleted_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, ids, actorID)
	if err != nil {
		return 0, translate(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *userRepository) TouchLastLogin(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at=NOW() WHERE id=$1`, id)
	return translate(err)
}

func statusArg(s *domain.UserStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func roleArg(role *domain.RoleID) *string {
	if role == nil {
		return nil
	}
	v := string(*role)
	return &v
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user     domain.User
		role     string
		userType string
		status   string
	)
	if err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Phone,
		&user.Department,
		&user.PasswordHash,
		&role,
		&userType,
		&user.Permissions,
		&status,
		&user.LastLoginAt,
		&user.CreatedBy,
		&user.UpdatedBy,
		&user.DeletedBy,
		&user.DeletedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Assignment = domain.ReconcileRoleAssignment(role, userType)
	user.Status = domain.UserStatus(status)
	return &user, nil
}
