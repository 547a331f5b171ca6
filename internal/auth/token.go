package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const (
	// TokenIssuer and TokenAudience pin session tokens to this service.
	TokenIssuer   = "helpdesk-service"
	TokenAudience = "helpdesk-api"

	defaultSessionTTL = time.Hour
)

var (
	errNoSubject     = errors.New("session token has no subject")
	errUnsignedActor = errors.New("cannot sign a session for a user without an id")
)

// TokenManager signs and verifies the bearer tokens handed out at login.
type TokenManager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenManager builds a manager; a non-positive ttlMinutes means one hour.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	ttl := time.Duration(ttlMinutes) * time.Minute
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &TokenManager{key: []byte(secret), ttl: ttl, now: time.Now}
}

// SessionClaims is the token payload. The role fields mirror the assignment
// at login time for clients; authorization always reloads the stored user.
type SessionClaims struct {
	Role     domain.RoleID `json:"role,omitempty"`
	UserType domain.RoleID `json:"userType,omitempty"`
	jwt.RegisteredClaims
}

// Assignment rebuilds the role assignment carried by the token.
func (c *SessionClaims) Assignment() domain.RoleAssignment {
	return domain.ReconcileRoleAssignment(string(c.Role), string(c.UserType))
}

// Issue signs a session token for user and returns it with its expiry.
func (tm *TokenManager) Issue(user *domain.User) (string, time.Time, error) {
	if user == nil || user.ID == "" {
		return "", time.Time{}, errUnsignedActor
	}
	issuedAt := tm.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(tm.ttl)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &SessionClaims{
		Role:     user.Assignment.Role,
		UserType: user.Assignment.UserType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenAudience},
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(tm.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature, issuer, audience and lifetime of raw.
func (tm *TokenManager) Verify(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return tm.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errNoSubject
	}
	return claims, nil
}
