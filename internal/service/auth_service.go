package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// LoginLimiter throttles credential checks. auth.LoginThrottle satisfies it.
type LoginLimiter interface {
	Allow(ctx context.Context, email, ip string) error
	RecordFailure(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

// AuthService coordinates registration, login and credential changes.
type AuthService struct {
	users    repository.UserRepository
	engine   *auth.Engine
	tokenMgr *auth.TokenManager
	hasher   auth.PasswordHasher
	throttle LoginLimiter
	audit    AuditRecorder
	logger   *zap.Logger
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo     repository.UserRepository
	Engine       *auth.Engine
	TokenManager *auth.TokenManager
	Hasher       auth.PasswordHasher
	Throttle     LoginLimiter
	Audit        AuditRecorder
	Logger       *zap.Logger
}

// Session is the result of a successful registration or login.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// RegisterInput is the self-service signup payload.
type RegisterInput struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Department string
	Password   string
}

// Profile is the caller's account together with its effective permissions.
type Profile struct {
	User        *domain.User
	Permissions []string
	AdminTier   bool
	SupportTier bool
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	s := &AuthService{
		users:    deps.UserRepo,
		engine:   deps.Engine,
		tokenMgr: deps.TokenManager,
		hasher:   deps.Hasher,
		throttle: deps.Throttle,
		audit:    deps.Audit,
		logger:   deps.Logger,
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

// Register creates an active end-user account and signs it in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	email := domain.NormalizeEmail(input.Email)
	fieldErrs := map[string]any{}
	if !validEmail(email) {
		fieldErrs["email"] = "must be a valid email address"
	}
	if strings.TrimSpace(input.FirstName) == "" {
		fieldErrs["firstName"] = "is required"
	}
	if len(input.Password) < minPasswordLength {
		fieldErrs["password"] = "must be at least 8 characters"
	}
	if len(fieldErrs) > 0 {
		return nil, apperrors.NewValidationError("invalid registration", fieldErrs)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user := &domain.User{
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Email:        email,
		Phone:        strings.TrimSpace(input.Phone),
		Department:   strings.TrimSpace(input.Department),
		PasswordHash: hash,
		Assignment:   domain.NewRoleAssignment(domain.RoleUser),
		Permissions:  []string{},
		Status:       domain.UserStatusActive,
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, mapRepoError(err, "user")
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, mapRepoError(err, "user")
	}

	record(ctx, s.audit, audit.Entry{
		UserID:     user.ID,
		Action:     domain.AuditRegisterUser,
		Resource:   domain.ResourceUser,
		ResourceID: user.ID,
		Details:    map[string]any{"email": user.Email},
	})
	return s.session(user)
}

// Login verifies credentials. Every attempt is audited; unknown emails are
// attributed to the system sentinel user.
func (s *AuthService) Login(ctx context.Context, emailInput, password string) (*Session, error) {
	email := domain.NormalizeEmail(emailInput)
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("email and password are required", nil)
	}

	var ip string
	if meta, ok := audit.RequestMetaFrom(ctx); ok {
		ip = meta.IPAddress
	}
	if s.throttle != nil {
		if err := s.throttle.Allow(ctx, email, ip); err != nil {
			if errors.Is(err, auth.ErrThrottled) {
				s.failedLogin(ctx, "", email, "throttled")
				return nil, apperrors.NewTooManyRequests("too many login attempts, try again later")
			}
			s.logger.Warn("login throttle unavailable", zap.Error(err))
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.failedLogin(ctx, "", email, "unknown_email")
		return nil, apperrors.NewUnauthenticated("invalid email or password")
	}
	if err != nil {
		return nil, mapRepoError(err, "user")
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		s.failedLogin(ctx, user.ID, email, "bad_password")
		return nil, apperrors.NewUnauthenticated("invalid email or password")
	}
	if user.Status != domain.UserStatusActive {
		s.failedLogin(ctx, user.ID, email, "status_"+string(user.Status))
		return nil, apperrors.NewUnauthenticated("account is not active")
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, email); err != nil {
			s.logger.Warn("login throttle reset failed", zap.Error(err))
		}
	}
	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("last login update failed", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		now := time.Now().UTC()
		user.LastLoginAt = &now
	}

	record(ctx, s.audit, audit.Entry{
		UserID:     user.ID,
		Action:     domain.AuditLogin,
		Resource:   domain.ResourceAuth,
		ResourceID: user.ID,
		Details:    map[string]any{"email": email},
	})
	return s.session(user)
}

// ChangePassword replaces the caller's own password.
func (s *AuthService) ChangePassword(ctx context.Context, actor *auth.Principal, current, next string) error {
	if err := s.engine.Authenticated(actor); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, actor.ID())
	if err != nil {
		return mapRepoError(err, "user")
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return apperrors.NewValidationError("current password is incorrect", map[string]any{"currentPassword": "does not match"})
	}
	if len(next) < minPasswordLength {
		return apperrors.NewValidationError("invalid password", map[string]any{"newPassword": "must be at least 8 characters"})
	}
	if next == current {
		return apperrors.NewValidationError("invalid password", map[string]any{"newPassword": "must differ from the current password"})
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	user.UpdatedBy = &user.ID
	if err := s.users.Update(ctx, user); err != nil {
		return mapRepoError(err, "user")
	}

	record(ctx, s.audit, audit.Entry{
		UserID:     user.ID,
		Action:     domain.AuditChangePassword,
		Resource:   domain.ResourceAuth,
		ResourceID: user.ID,
	})
	return nil
}

// Me describes the caller.
func (s *AuthService) Me(_ context.Context, actor *auth.Principal) (*Profile, error) {
	if err := s.engine.Authenticated(actor); err != nil {
		return nil, err
	}
	perms := make([]string, 0)
	for p := range s.engine.Permissions(actor) {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return &Profile{
		User:        actor.User,
		Permissions: perms,
		AdminTier:   s.engine.Allows(actor, auth.AdminTier()),
		SupportTier: s.engine.Allows(actor, auth.SupportTier()),
	}, nil
}

func (s *AuthService) session(user *domain.User) (*Session, error) {
	if s.tokenMgr == nil {
		return nil, apperrors.NewInternalError(errors.New("token manager not configured"))
	}
	token, exp, err := s.tokenMgr.Issue(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}

func (s *AuthService) failedLogin(ctx context.Context, userID, email, reason string) {
	if s.throttle != nil && reason != "throttled" {
		if err := s.throttle.RecordFailure(ctx, email); err != nil {
			s.logger.Warn("login throttle failure count failed", zap.Error(err))
		}
	}
	if userID == "" {
		userID = domain.SystemUserID
	}
	record(ctx, s.audit, audit.Entry{
		UserID:   userID,
		Action:   domain.AuditFailedLogin,
		Resource: domain.ResourceAuth,
		Details:  map[string]any{"email": email, "reason": reason},
	})
}
