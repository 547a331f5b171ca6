package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func sessionUser(role domain.RoleID) *domain.User {
	return &domain.User{ID: "6f1c1c9e-3d7a-4c55-9d7e-2b1f6a8c0d11", Assignment: domain.NewRoleAssignment(role)}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, exp, err := tm.Issue(sessionUser(domain.RoleSupportLead))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, 5*time.Second)

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "6f1c1c9e-3d7a-4c55-9d7e-2b1f6a8c0d11", claims.Subject)
	assert.Equal(t, TokenIssuer, claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{TokenAudience}, claims.Audience)
	assert.Equal(t, domain.NewRoleAssignment(domain.RoleSupportLead), claims.Assignment())
	_, err = uuid.Parse(claims.ID)
	assert.NoError(t, err)

	again, _, err := tm.Issue(sessionUser(domain.RoleSupportLead))
	require.NoError(t, err)
	second, err := tm.Verify(again)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, second.ID)
}

func TestSessionTokenRejectsForeignTokens(t *testing.T) {
	token, _, err := NewTokenManager("one", 5).Issue(sessionUser(domain.RoleUser))
	require.NoError(t, err)

	_, err = NewTokenManager("two", 5).Verify(token)
	assert.Error(t, err)
	_, err = NewTokenManager("one", 5).Verify("not-a-jwt")
	assert.Error(t, err)

	sign := func(method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
		raw, err := jwt.NewWithClaims(method, claims).SignedString([]byte("one"))
		require.NoError(t, err)
		return raw
	}
	valid := jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Audience:  jwt.ClaimStrings{TokenAudience},
		Subject:   "6f1c1c9e-3d7a-4c55-9d7e-2b1f6a8c0d11",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	tm := NewTokenManager("one", 5)
	_, err = tm.Verify(sign(jwt.SigningMethodHS256, valid))
	require.NoError(t, err)

	otherIssuer := valid
	otherIssuer.Issuer = "ticket-service"
	_, err = tm.Verify(sign(jwt.SigningMethodHS256, otherIssuer))
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	otherAudience := valid
	otherAudience.Audience = jwt.ClaimStrings{"billing"}
	_, err = tm.Verify(sign(jwt.SigningMethodHS256, otherAudience))
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)

	noExpiry := valid
	noExpiry.ExpiresAt = nil
	_, err = tm.Verify(sign(jwt.SigningMethodHS256, noExpiry))
	assert.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)

	_, err = tm.Verify(sign(jwt.SigningMethodHS512, valid))
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	anonymous := valid
	anonymous.Subject = ""
	_, err = tm.Verify(sign(jwt.SigningMethodHS256, anonymous))
	assert.Error(t, err)
}

func TestSessionTokenExpires(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	issued := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return issued }
	token, exp, err := tm.Issue(sessionUser(domain.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, issued.Add(time.Minute), exp)

	tm.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tm.Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestSessionTokenNeedsUserID(t *testing.T) {
	tm := NewTokenManager("secret", 0)
	assert.Equal(t, time.Hour, tm.ttl)
	_, _, err := tm.Issue(&domain.User{})
	assert.Error(t, err)
	_, _, err = tm.Issue(nil)
	assert.Error(t, err)
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(4)
	hash, err := h.Hash("password123")
	require.NoError(t, err)
	assert.True(t, h.Verify("password123", hash))
	assert.False(t, h.Verify("password124", hash))
	assert.Equal(t, 10, NewBcryptHasher(99).Cost)
}
