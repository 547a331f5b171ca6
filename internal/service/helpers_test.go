package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }
func (plainHasher) Verify(p, h string) bool { return h == "hashed:"+p }

type captureRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *captureRecorder) Record(_ context.Context, e audit.Entry) audit.Outcome {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	done := make(chan error, 1)
	done <- nil
	close(done)
	return done
}

func (r *captureRecorder) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func (r *captureRecorder) last(t *testing.T) audit.Entry {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.entries)
	return r.entries[len(r.entries)-1]
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Now().UTC()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var userSeq atomic.Int64

func seedUser(t *testing.T, store *repository.MemoryStore, role domain.RoleID, status domain.UserStatus) *auth.Principal {
	t.Helper()
	n := userSeq.Add(1)
	user := &domain.User{
		FirstName:    fmt.Sprintf("User%d", n),
		LastName:     string(role),
		Email:        fmt.Sprintf("user%d@example.com", n),
		PasswordHash: "hashed:password123",
		Assignment:   domain.NewRoleAssignment(role),
		Status:       status,
	}
	require.NoError(t, store.Users().Create(context.Background(), user))
	return auth.NewPrincipal(user)
}

func requireCode(t *testing.T, err error, code string) *apperrors.DomainError {
	t.Helper()
	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	require.Equal(t, code, de.Code, "unexpected error: %v", err)
	return de
}

func ptr[T any](v T) *T { return &v }
