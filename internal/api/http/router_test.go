package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// waitingRecorder blocks until each audit write lands so tests can inspect
// the store right after a response.
type waitingRecorder struct {
	trail *audit.Trail
}

func (w waitingRecorder) Record(ctx context.Context, e audit.Entry) audit.Outcome {
	out := w.trail.Record(ctx, e)
	err := out.Wait(context.Background())
	done := make(chan error, 1)
	done <- err
	close(done)
	return done
}

type testServer struct {
	app    *fiber.App
	store  *repository.MemoryStore
	tokens *auth.TokenManager
	hasher auth.BcryptHasher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	engine := auth.NewEngine(auth.NewCatalog())
	tokens := auth.NewTokenManager("router-secret", 10)
	hasher := auth.NewBcryptHasher(4)
	metrics := observability.NewMetrics(nil)
	rec := waitingRecorder{trail: audit.NewTrail(store.Audit(), zap.NewNop(), audit.WithObserver(metrics))}

	authSvc := service.NewAuthService(service.AuthDependencies{
		UserRepo: store.Users(), Engine: engine, TokenManager: tokens, Hasher: hasher, Audit: rec,
	})
	ticketSvc := service.NewTicketService(service.TicketDependencies{
		TicketRepo: store.Tickets(), UserRepo: store.Users(), Engine: engine, Audit: rec,
		Dispatcher: events.NewInMemoryDispatcher(),
	})
	adminSvc := service.NewAdminUserService(service.AdminUserDependencies{
		UserRepo: store.Users(), Engine: engine, Hasher: hasher, Audit: rec, Metrics: metrics,
	})

	app := NewServer(ServerConfig{
		AppName:        "helpdesk-test",
		RequestTimeout: 5 * time.Second,
		Metrics:        metrics,
		Routes: RouteConfig{
			Health:         handlers.NewHealthHandler("helpdesk-test", "test", map[string]handlers.Pinger{"redis": nil}),
			Auth:           handlers.NewAuthHandler(authSvc),
			Tickets:        handlers.NewTicketsHandler(ticketSvc),
			AdminUsers:     handlers.NewAdminUsersHandler(adminSvc, engine),
			AuditLogs:      handlers.NewAuditLogsHandler(service.NewAuditQueryService(store.Audit(), engine)),
			AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Users(), nil),
			Engine:         engine,
		},
	})
	return &testServer{app: app, store: store, tokens: tokens, hasher: hasher}
}

func (s *testServer) seed(t *testing.T, role domain.RoleID, email string) (*domain.User, string) {
	t.Helper()
	hash, err := s.hasher.Hash("password123")
	require.NoError(t, err)
	u := &domain.User{
		FirstName: "Seed", LastName: string(role), Email: email, PasswordHash: hash,
		Assignment: domain.NewRoleAssignment(role), Status: domain.UserStatusActive,
	}
	require.NoError(t, s.store.Users().Create(context.Background(), u))
	token, _, err := s.tokens.Issue(u)
	require.NoError(t, err)
	return u, token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderUserAgent, "router-test")
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (s *testServer) actions(t *testing.T) []domain.AuditAction {
	t.Helper()
	entries, _, err := s.store.Audit().List(context.Background(), repository.AuditFilter{Limit: 500})
	require.NoError(t, err)
	out := make([]domain.AuditAction, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func TestRegisterLoginAndMe(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, fiber.MethodPost, "/auth/register", "", map[string]any{
		"firstName": "Rae", "lastName": "Kim", "email": "rae@example.com", "password": "password123",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, true, body["success"])

	status, body = s.do(t, fiber.MethodPost, "/auth/login", "", map[string]any{
		"email": "rae@example.com", "password": "password123",
	})
	require.Equal(t, fiber.StatusOK, status, body)
	data := body["data"].(map[string]any)
	token := data["auth"].(map[string]any)["token"].(string)
	user := data["user"].(map[string]any)
	assert.NotContains(t, user, "passwordHash")
	assert.Equal(t, "user", user["role"])

	status, body = s.do(t, fiber.MethodGet, "/auth/me", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, false, body["data"].(map[string]any)["adminTier"])

	status, body = s.do(t, fiber.MethodPost, "/auth/login", "", map[string]any{
		"email": "rae@example.com", "password": "nope-nope",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "UNAUTHENTICATED", errorCode(body))

	assert.Equal(t, []domain.AuditAction{domain.AuditFailedLogin, domain.AuditLogin, domain.AuditRegisterUser}, s.actions(t))
}

func TestNonAdminCannotListUsers(t *testing.T) {
	s := newTestServer(t)
	_, token := s.seed(t, domain.RoleUser, "plain@example.com")

	status, body := s.do(t, fiber.MethodGet, "/admin/users", token, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, false, body["success"])
	assert.NotContains(t, body, "users")
	assert.NotContains(t, s.actions(t), domain.AuditViewUsers)

	status, _ = s.do(t, fiber.MethodGet, "/admin/users", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAdminListsUsersWithProvenance(t *testing.T) {
	s := newTestServer(t)
	_, token := s.seed(t, domain.RoleAdmin, "admin@example.com")
	s.seed(t, domain.RoleSupportAgent, "agent@example.com")

	status, body := s.do(t, fiber.MethodGet, "/admin/users?limit=1", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Len(t, body["users"], 1)
	pagination := body["pagination"].(map[string]any)
	assert.EqualValues(t, 2, pagination["total"])
	assert.EqualValues(t, 2, pagination["totalPages"])

	entries, _, err := s.store.Audit().List(context.Background(), repository.AuditFilter{Action: domain.AuditViewUsers})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "router-test", entries[0].UserAgent)
}

func TestBulkDeleteIncludingSelfIsRejected(t *testing.T) {
	s := newTestServer(t)
	admin, token := s.seed(t, domain.RoleAdmin, "admin@example.com")
	other, _ := s.seed(t, domain.RoleUser, "other@example.com")

	status, body := s.do(t, fiber.MethodDelete, "/admin/users/bulk-delete", token, map[string]any{
		"userIds": []string{admin.ID, other.ID},
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "self_lockout", details["reason"])

	_, err := s.store.Users().GetByID(context.Background(), other.ID)
	assert.NoError(t, err)

	status, body = s.do(t, fiber.MethodDelete, "/admin/users/bulk-delete", token, map[string]any{
		"userIds": []string{other.ID},
	})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 1, body["modifiedCount"])
}

func TestBulkUpdateReportsModifiedCount(t *testing.T) {
	s := newTestServer(t)
	_, token := s.seed(t, domain.RoleAdmin, "admin@example.com")
	a, _ := s.seed(t, domain.RoleUser, "a@example.com")
	b, _ := s.seed(t, domain.RoleUser, "b@example.com")

	status, body := s.do(t, fiber.MethodPatch, "/admin/users/bulk-update", token, map[string]any{
		"userIds":    []string{a.ID, b.ID},
		"updateData": map[string]any{"department": "Finance"},
	})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 2, body["modifiedCount"])

	status, body = s.do(t, fiber.MethodPatch, "/admin/users/bulk-update", token, map[string]any{
		"userIds":    []string{},
		"updateData": map[string]any{"department": "Finance"},
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestTicketCreateThenClose(t *testing.T) {
	s := newTestServer(t)
	_, token := s.seed(t, domain.RoleUser, "requester@example.com")

	status, body := s.do(t, fiber.MethodPost, "/tickets", token, map[string]any{
		"title": "Printer jam", "description": "Printer on 3rd floor jammed", "category": "Printing",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	ticket := body["data"].(map[string]any)["ticket"].(map[string]any)
	assert.Equal(t, "Open", ticket["status"])
	assert.Nil(t, ticket["actualResolutionTime"])
	id := ticket["id"].(string)

	status, body = s.do(t, fiber.MethodPatch, "/tickets/"+id+"/close", token, map[string]any{
		"resolutionNotes": "Replaced drum",
	})
	require.Equal(t, fiber.StatusOK, status, body)
	ticket = body["data"].(map[string]any)["ticket"].(map[string]any)
	assert.Equal(t, "Closed", ticket["status"])
	assert.NotNil(t, ticket["actualResolutionTime"])

	status, body = s.do(t, fiber.MethodGet, "/tickets", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Len(t, body["data"].(map[string]any)["tickets"], 1)
}

func TestAssignRejectsNonSupportAssignee(t *testing.T) {
	s := newTestServer(t)
	requester, requesterToken := s.seed(t, domain.RoleUser, "req@example.com")
	_, agentToken := s.seed(t, domain.RoleSupportAgent, "agent@example.com")

	_, body := s.do(t, fiber.MethodPost, "/tickets", requesterToken, map[string]any{
		"title": "VPN", "description": "Cannot connect", "category": "Network",
	})
	id := body["data"].(map[string]any)["ticket"].(map[string]any)["id"].(string)

	status, body := s.do(t, fiber.MethodPatch, "/tickets/"+id+"/assign", agentToken, map[string]any{
		"assignedToId": requester.ID,
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ASSIGNEE", errorCode(body))

	status, _ = s.do(t, fiber.MethodPatch, "/tickets/"+id+"/assign", requesterToken, map[string]any{
		"assignedToId": requester.ID,
	})
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestExportUsersCSV(t *testing.T) {
	s := newTestServer(t)
	_, token := s.seed(t, domain.RoleAdmin, "admin@example.com")

	req := httptest.NewRequest(fiber.MethodGet, "/admin/users/export?format=csv", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/csv")
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "attachment")
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "Name,Email,Phone,Department,Role,Status,Created At,Last Login\n"))

	status, _ := s.do(t, fiber.MethodGet, "/admin/users/export?format=xlsx", token, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestImportUsersFromBody(t *testing.T) {
	s := newTestServer(t)
	_, token := s.seed(t, domain.RoleAdmin, "admin@example.com")

	req := httptest.NewRequest(fiber.MethodPost, "/admin/users/import",
		strings.NewReader("email,firstName\nnew@example.com,New\nadmin@example.com,Dup\n"))
	req.Header.Set(fiber.HeaderContentType, "text/csv")
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data service.ImportResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Data.Processed)
	assert.Equal(t, 1, body.Data.Created)
	assert.Equal(t, 1, body.Data.Skipped)
}

func TestAuditLogsAndRoles(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.seed(t, domain.RoleAdmin, "admin@example.com")

	s.do(t, fiber.MethodGet, "/admin/users", adminToken, nil)
	status, body := s.do(t, fiber.MethodGet, "/admin/audit-logs?action=VIEW_USERS", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	logs := body["data"].(map[string]any)["logs"].([]any)
	require.Len(t, logs, 1)
	assert.Equal(t, "VIEW_USERS", logs[0].(map[string]any)["action"])

	status, _ = s.do(t, fiber.MethodGet, "/admin/audit-logs?from=yesterday", adminToken, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = s.do(t, fiber.MethodGet, "/admin/roles", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"].(map[string]any)["roles"], 6)
}

func TestErrorsUseEnvelope(t *testing.T) {
	s := newTestServer(t)
	_, token := s.seed(t, domain.RoleUser, "u@example.com")

	status, body := s.do(t, fiber.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	req := httptest.NewRequest(fiber.MethodPost, "/tickets", strings.NewReader("{not json"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(observability.RequestIDHeader))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, fiber.MethodGet, "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, fiber.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "disabled", body["dependencies"].(map[string]any)["redis"])

	resp, err := s.app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "helpdesk_http_requests_total")
}

func TestAuditEntriesKeepRequestValues(t *testing.T) {
	s := newTestServer(t)
	_, token := s.seed(t, domain.RoleAdmin, "admin@example.com")

	send := func(agent, search string) {
		req := httptest.NewRequest(fiber.MethodGet, "/admin/users?search="+search, nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		req.Header.Set(fiber.HeaderUserAgent, agent)
		resp, err := s.app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
	send("agent-AAAAAAAA", "aaaaaaaa")
	for i := 0; i < 20; i++ {
		send("agent-BBBBBBBB", "bbbbbbbb")
	}

	entries, total, err := s.store.Audit().List(context.Background(), repository.AuditFilter{Action: domain.AuditViewUsers, Limit: 100})
	require.NoError(t, err)
	require.Equal(t, 21, total)
	oldest := entries[len(entries)-1]
	assert.Equal(t, "agent-AAAAAAAA", oldest.UserAgent)
	filter := oldest.Details["filter"].(map[string]any)
	assert.Equal(t, "aaaaaaaa", filter["search"])
}

func TestBulkDeleteRejectsSelfInAnySpelling(t *testing.T) {
	s := newTestServer(t)
	admin, token := s.seed(t, domain.RoleAdmin, "admin@example.com")

	status, body := s.do(t, fiber.MethodDelete, "/admin/users/bulk-delete", token, map[string]any{
		"userIds": []string{strings.ToUpper(admin.ID)},
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	_, err := s.store.Users().GetByID(context.Background(), admin.ID)
	assert.NoError(t, err)
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	s := newTestServer(t)
	_, adminToken := s.seed(t, domain.RoleAdmin, "admin@example.com")
	_, agentToken := s.seed(t, domain.RoleSupportAgent, "agent@example.com")
	_, userToken := s.seed(t, domain.RoleUser, "user@example.com")

	status, body := s.do(t, fiber.MethodGet, "/tickets/abc", agentToken, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, _ = s.do(t, fiber.MethodGet, "/admin/users/abc", adminToken, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	_, body = s.do(t, fiber.MethodPost, "/tickets", userToken, map[string]any{
		"title": "Laptop", "description": "Battery swollen", "category": "Hardware",
	})
	id := body["data"].(map[string]any)["ticket"].(map[string]any)["id"].(string)
	status, body = s.do(t, fiber.MethodPatch, "/tickets/"+id+"/assign", agentToken, map[string]any{"assignedToId": "abc"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ASSIGNEE", errorCode(body))

	status, _ = s.do(t, fiber.MethodGet, "/tickets?assignedTo=abc", agentToken, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
