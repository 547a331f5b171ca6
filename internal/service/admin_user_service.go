package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

const minPasswordLength = 8

// BulkObserver receives the row counts of bulk mutations.
type BulkObserver interface {
	BulkAffected(operation string, rows int64)
}

// AdminUserService implements administrative account management.
type AdminUserService struct {
	users   repository.UserRepository
	engine  *auth.Engine
	hasher  auth.PasswordHasher
	audit   AuditRecorder
	metrics BulkObserver
	logger  *zap.Logger
}

// AdminUserDependencies bundles collaborators for AdminUserService.
type AdminUserDependencies struct {
	UserRepo repository.UserRepository
	Engine   *auth.Engine
	Hasher   auth.PasswordHasher
	Audit    AuditRecorder
	Metrics  BulkObserver
	Logger   *zap.Logger
}

// NewAdminUserService constructs the service.
func NewAdminUserService(deps AdminUserDependencies) *AdminUserService {
	s := &AdminUserService{
		users:   deps.UserRepo,
		engine:  deps.Engine,
		hasher:  deps.Hasher,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}
	if s.engine == nil {
		s.engine = auth.NewEngine(nil)
	}
	if s.hasher == nil {
		s.hasher = auth.NewBcryptHasher(0)
	}
	if s.audit == nil {
		s.audit = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// UserListFilter holds admin listing parameters. Status accepts the wire
// value "deleted" to list tombstoned accounts.
type UserListFilter struct {
	Search     string
	Status     string
	Role       string
	Department string
	Page       int
	Limit      int
}

// UserCreateInput is the payload for administrator-created accounts.
type UserCreateInput struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Department  string
	Password    string
	Role        domain.RoleID
	Permissions []string
	Status      domain.UserStatus
}

// UserUpdateInput is a partial account edit. Nil fields are untouched.
type UserUpdateInput struct {
	FirstName   *string
	LastName    *string
	Email       *string
	Phone       *string
	Department  *string
	Password    *string
	Role        *domain.RoleID
	Permissions *[]string
	Status      *string
}

// BulkUserUpdate is the mutation applied by BulkUpdate.
type BulkUserUpdate struct {
	Status     *string
	Role       *domain.RoleID
	Department *string
}

// BulkResult reports how many records a bulk operation actually changed.
type BulkResult struct {
	Requested     int   `json:"requested"`
	AffectedCount int64 `json:"affectedCount"`
}

// List returns one page of accounts.
func (s *AdminUserService) List(ctx context.Context, actor *auth.Principal, filter UserListFilter) ([]domain.User, int, error) {
	if err := s.engine.Authorize(actor, auth.AdminTier()); err != nil {
		return nil, 0, err
	}
	repoFilter, err := s.repoFilter(filter)
	if err != nil {
		return nil, 0, err
	}

	users, total, err := s.users.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, mapRepoError(err, "user")
	}

	record(ctx, s.audit, audit.Entry{
		UserID:   actor.ID(),
		Action:   domain.AuditViewUsers,
		Resource: domain.ResourceUser,
		Details: map[string]any{
			"filter": filterDetails(filter),
			"count":  len(users),
			"total":  total,
		},
	})
	return users, total, nil
}

// Get returns a live account.
func (s *AdminUserService) Get(ctx context.Context, actor *auth.Principal, userID string) (*domain.User, error) {
	if err := s.engine.Authorize(actor, auth.AdminTier()); err != nil {
		return nil, err
	}
	userID, ok := canonicalID(userID)
	if !ok {
		return nil, apperrors.NewNotFound("user", nil)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapRepoError(err, "user")
	}
	return user, nil
}

// Create adds an account on behalf of an administrator.
func (s *AdminUserService) Create(ctx context.Context, actor *auth.Principal, input UserCreateInput) (*domain.User, error) {
	if err := s.engine.Authorize(actor, auth.AdminTier()); err != nil {
		return nil, err
	}

	if input.Role == "" {
		input.Role = domain.RoleUser
	}
	if input.Status == "" {
		input.Status = domain.UserStatusActive
	}
	fieldErrs := map[string]any{}
	email := domain.NormalizeEmail(input.Email)
	if !validEmail(email) {
		fieldErrs["email"] = "must be a valid email address"
	}
	if strings.TrimSpace(input.FirstName) == "" {
		fieldErrs["firstName"] = "is required"
	}
	if len(input.Password) < minPasswordLength {
		fieldErrs["password"] = "must be at least 8 characters"
	}
	if !s.engine.Catalog().Known(input.Role) {
		fieldErrs["role"] = "unknown role"
	}
	if !input.Status.Valid() {
		fieldErrs["status"] = "must be one of active, inactive, pending, suspended"
	}
	if len(fieldErrs) > 0 {
		return nil, apperrors.NewValidationError("invalid user", fieldErrs)
	}
	if err := s.checkGrant(actor, input.Role, input.Permissions); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	actorID := actor.ID()
	user := &domain.User{
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Email:        email,
		Phone:        strings.TrimSpace(input.Phone),
		Department:   strings.TrimSpace(input.Department),
		PasswordHash: hash,
		Assignment:   domain.NewRoleAssignment(input.Role),
		Permissions:  normalizePermissions(input.Permissions),
		Status:       input.Status,
		CreatedBy:    &actorID,
	}
	if err := s.insert(ctx, user); err != nil {
		return nil, err
	}

	record(ctx, s.audit, audit.Entry{
		UserID:     actorID,
		Action:     domain.AuditCreateUser,
		Resource:   domain.ResourceUser,
		ResourceID: user.ID,
		Details: map[string]any{
			"email":  user.Email,
			"role":   string(user.Assignment.Role),
			"status": string(user.Status),
		},
	})
	return user, nil
}

// Update edits an account. Deactivating one's own account is rejected.
func (s *AdminUserService) Update(ctx context.Context, actor *auth.Principal, userID string, input UserUpdateInput) (*domain.User, error) {
	if err := s.engine.Authorize(actor, auth.AdminTier()); err != nil {
		return nil, err
	}
	userID, ok := canonicalID(userID)
	if !ok {
		return nil, apperrors.NewNotFound("user", nil)
	}

	var status *domain.UserStatus
	if input.Status != nil {
		if *input.Status == domain.WireStatusDeleted {
			return nil, apperrors.NewValidationError("use the delete operation to remove a user",
				map[string]any{"status": *input.Status})
		}
		st := domain.UserStatus(*input.Status)
		if !st.Valid() {
			return nil, apperrors.NewValidationError("invalid user", map[string]any{"status": "unknown status"})
		}
		if st.Deactivates() {
			if err := ForbidIfSelf(actor.ID(), []string{userID}, GuardDeactivate); err != nil {
				return nil, err
			}
		}
		status = &st
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapRepoError(err, "user")
	}

	changes := map[string]any{}
	applyString(&user.FirstName, input.FirstName, "firstName", changes)
	applyString(&user.LastName, input.LastName, "lastName", changes)
	applyString(&user.Phone, input.Phone, "phone", changes)
	applyString(&user.Department, input.Department, "department", changes)
	if input.Email != nil {
		email := domain.NormalizeEmail(*input.Email)
		if !validEmail(email) {
			return nil, apperrors.NewValidationError("invalid user", map[string]any{"email": "must be a valid email address"})
		}
		if email != user.Email {
			changes["email"] = map[string]any{"from": user.Email, "to": email}
			user.Email = email
		}
	}
	if input.Role != nil && *input.Role != user.Assignment.Role {
		if !s.engine.Catalog().Known(*input.Role) {
			return nil, apperrors.NewValidationError("invalid user", map[string]any{"role": "unknown role"})
		}
		if err := s.checkGrant(actor, *input.Role, nil); err != nil {
			return nil, err
		}
		changes["role"] = map[string]any{"from": string(user.Assignment.Role), "to": string(*input.Role)}
	}
	if input.Role != nil {
		// Writing the assignment back heals any drift between the two columns.
		user.Assignment = domain.NewRoleAssignment(*input.Role)
	}
	if input.Permissions != nil {
		if err := s.checkGrant(actor, user.Assignment.Role, *input.Permissions); err != nil {
			return nil, err
		}
		changes["permissions"] = map[string]any{"from": user.Permissions, "to": normalizePermissions(*input.Permissions)}
		user.Permissions = normalizePermissions(*input.Permissions)
	}
	if status != nil && *status != user.Status {
		changes["status"] = map[string]any{"from": string(user.Status), "to": string(*status)}
		user.Status = *status
	}
	if input.Password != nil {
		if len(*input.Password) < minPasswordLength {
			return nil, apperrors.NewValidationError("invalid user", map[string]any{"password": "must be at least 8 characters"})
		}
		hash, err := s.hasher.Hash(*input.Password)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		user.PasswordHash = hash
		changes["password"] = "changed"
	}

	actorID := actor.ID()
	user.UpdatedBy = &actorID
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": user.Email})
		}
		return nil, mapRepoError(err, "user")
	}

	record(ctx, s.audit, audit.Entry{
		UserID:     actorID,
		Action:     domain.AuditUpdateUser,
		Resource:   domain.ResourceUser,
		ResourceID: user.ID,
		Details:    map[string]any{"changes": changes},
	})
	return user, nil
}

// Delete tombstones an account. Deleting one's own account is rejected.
func (s *AdminUserService) Delete(ctx context.Context, actor *auth.Principal, userID string) error {
	if err := s.engine.Authorize(actor, auth.AdminTier()); err != nil {
		return err
	}
	userID, ok := canonicalID(userID)
	if !ok {
		return apperrors.NewNotFound("user", nil)
	}
	if err := ForbidIfSelf(actor.ID(), []string{userID}, GuardDelete); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return mapRepoError(err, "user")
	}
	if err := s.users.SoftDelete(ctx, userID, actor.ID()); err != nil {
		return mapRepoError(err, "user")
	}

	record(ctx, s.audit, audit.Entry{
		UserID:     actor.ID(),
		Action:     domain.AuditDeleteUser,
		Resource:   domain.ResourceUser,
		ResourceID: userID,
		Details:    map[string]any{"email": user.Email, "role": string(user.Assignment.Role)},
	})
	return nil
}

// BulkUpdate applies one mutation to many accounts in a single store pass.
// A status of "deleted" tombstones the targets.
func (s *AdminUserService) BulkUpdate(ctx context.Context, actor *auth.Principal, userIDs []string, update BulkUserUpdate) (BulkResult, error) {
	if err := s.engine.Authorize(actor, auth.AdminTier()); err != nil {
		return BulkResult{}, err
	}
	ids, err := normalizeIDs(userIDs)
	if err != nil {
		return BulkResult{}, err
	}
	if update.Status == nil && update.Role == nil && update.Department == nil {
		return BulkResult{}, apperrors.NewValidationError("updateData must change at least one field", nil)
	}

	patch := repository.UserPatch{Role: update.Role}
	tombstone := false
	if update.Status != nil {
		if *update.Status == domain.WireStatusDeleted {
			tombstone = true
		} else {
			st := domain.UserStatus(*update.Status)
			if !st.Valid() {
				return BulkResult{}, apperrors.NewValidationError("invalid updateData", map[string]any{"status": "unknown status"})
			}
			patch.Status = &st
		}
		if tombstone || patch.Status.Deactivates() {
			if err := ForbidIfSelf(actor.ID(), ids, GuardBulkStatus); err != nil {
				return BulkResult{}, err
			}
		}
	}
	if update.Role != nil {
		if !s.engine.Catalog().Known(*update.Role) {
			return BulkResult{}, apperrors.NewValidationError("invalid updateData", map[string]any{"role": "unknown role"})
		}
		if err := s.checkGrant(actor, *update.Role, nil); err != nil {
			return BulkResult{}, err
		}
	}
	if update.Department != nil {
		dept := strings.TrimSpace(*update.Department)
		patch.Department = &dept
	}

	var affected int64
	if tombstone {
		affected, err = s.users.BulkSoftDelete(ctx, ids, actor.ID())
	} else {
		affected, err = s.users.BulkUpdate(ctx, ids, patch, actor.ID())
	}
	if err != nil {
		return BulkResult{}, mapRepoError(err, "user")
	}
	s.observeBulk("bulk_update", affected)

	record(ctx, s.audit, audit.Entry{
		UserID:   actor.ID(),
		Action:   domain.AuditBulkUpdateUsers,
		Resource: domain.ResourceUser,
		Details: map[string]any{
			"userIds":       ids,
			"updateData":    bulkUpdateDetails(update),
			"affectedCount": affected,
		},
	})
	return BulkResult{Requested: len(ids), AffectedCount: affected}, nil
}

// BulkDelete tombstones many accounts in a single store pass.
func (s *AdminUserService) BulkDelete(ctx context.Context, actor *auth.Principal, userIDs []string) (BulkResult, error) {
	if err := s.engine.Authorize(actor, auth.AdminTier()); err != nil {
		return BulkResult{}, err
	}
	ids, err := normalizeIDs(userIDs)
	if err != nil {
		return BulkResult{}, err
	}
	if err := ForbidIfSelf(actor.ID(), ids, GuardBulkDelete); err != nil {
		return BulkResult{}, err
	}

	affected, err := s.users.BulkSoftDelete(ctx, ids, actor.ID())
	if err != nil {
		return BulkResult{}, mapRepoError(err, "user")
	}
	s.observeBulk("bulk_delete", affected)

	record(ctx, s.audit, audit.Entry{
		UserID:   actor.ID(),
		Action:   domain.AuditBulkDeleteUsers,
		Resource: domain.ResourceUser,
		Details:  map[string]any{"userIds": ids, "affectedCount": affected},
	})
	return BulkResult{Requested: len(ids), AffectedCount: affected}, nil
}

func (s *AdminUserService) repoFilter(filter UserListFilter) (repository.UserFilter, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	out := repository.UserFilter{
		Search:     strings.TrimSpace(filter.Search),
		Department: strings.TrimSpace(filter.Department),
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}
	switch status := strings.TrimSpace(filter.Status); {
	case status == "":
	case status == domain.WireStatusDeleted:
		out.Deleted = true
	case domain.UserStatus(status).Valid():
		st := domain.UserStatus(status)
		out.Status = &st
	default:
		return out, apperrors.NewValidationError("invalid filter", map[string]any{"status": "unknown status"})
	}
	if role := strings.TrimSpace(filter.Role); role != "" {
		id := domain.RoleID(role)
		if !s.engine.Catalog().Known(id) {
			return out, apperrors.NewValidationError("invalid filter", map[string]any{"role": "unknown role"})
		}
		out.Role = &id
	}
	return out, nil
}

// checkGrant stops administrators from handing out more than they hold:
// only a wildcard holder may grant super_admin or the wildcard itself.
func (s *AdminUserService) checkGrant(actor *auth.Principal, role domain.RoleID, perms []string) error {
	elevated := role == domain.RoleSuperAdmin
	for _, p := range perms {
		if p == domain.WildcardPermission {
			elevated = true
		}
	}
	if elevated && !s.engine.Allows(actor, auth.Permission(domain.WildcardPermission)) {
		return apperrors.NewForbidden("only a super administrator may grant full access")
	}
	return nil
}

func (s *AdminUserService) insert(ctx context.Context, user *domain.User) error {
	if _, err := s.users.GetByEmail(ctx, user.Email); err == nil {
		return apperrors.NewConflict("email already registered", map[string]any{"email": user.Email})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return mapRepoError(err, "user")
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperrors.NewConflict("email already registered", map[string]any{"email": user.Email})
		}
		return mapRepoError(err, "user")
	}
	return nil
}

func (s *AdminUserService) observeBulk(operation string, affected int64) {
	if s.metrics != nil {
		s.metrics.BulkAffected(operation, affected)
	}
}

// normalizeIDs trims and deduplicates ids, keeping first-seen order.
func normalizeIDs(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	var invalid []string
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		canonical, ok := canonicalID(id)
		if !ok {
			invalid = append(invalid, id)
			continue
		}
		id = canonical
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(invalid) > 0 {
		return nil, apperrors.NewValidationError("userIds contains invalid identifiers", map[string]any{"invalid": invalid})
	}
	if len(out) == 0 {
		return nil, apperrors.NewValidationError("userIds must not be empty", nil)
	}
	return out, nil
}

func normalizePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func filterDetails(f UserListFilter) map[string]any {
	return map[string]any{
		"search":     f.Search,
		"status":     f.Status,
		"role":       f.Role,
		"department": f.Department,
		"page":       f.Page,
		"limit":      f.Limit,
	}
}

func bulkUpdateDetails(u BulkUserUpdate) map[string]any {
	out := map[string]any{}
	if u.Status != nil {
		out["status"] = *u.Status
	}
	if u.Role != nil {
		out["role"] = string(*u.Role)
	}
	if u.Department != nil {
		out["department"] = *u.Department
	}
	return out
}

func randomPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
