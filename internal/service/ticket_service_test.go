package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

type ticketFixture struct {
	store     *repository.MemoryStore
	svc       *TicketService
	rec       *captureRecorder
	clock     *fakeClock
	requester *auth.Principal
	agent     *auth.Principal
	admin     *auth.Principal
	events    []events.Event
}

func newTicketFixture(t *testing.T) *ticketFixture {
	t.Helper()
	f := &ticketFixture{
		store: repository.NewMemoryStore(),
		rec:   &captureRecorder{},
		clock: newFakeClock(),
	}
	dispatcher := events.NewInMemoryDispatcher()
	for _, et := range []events.EventType{events.EventTicketCreated, events.EventTicketStatusChanged,
		events.EventTicketAssigned, events.EventTicketClosed, events.EventTicketDeleted} {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			f.events = append(f.events, e)
			return nil
		})
	}
	f.svc = NewTicketService(TicketDependencies{
		TicketRepo: f.store.Tickets(),
		UserRepo:   f.store.Users(),
		Engine:     auth.NewEngine(auth.NewCatalog()),
		Audit:      f.rec,
		Dispatcher: dispatcher,
		Clock:      f.clock.Now,
	})
	f.requester = seedUser(t, f.store, domain.RoleUser, domain.UserStatusActive)
	f.agent = seedUser(t, f.store, domain.RoleSupportAgent, domain.UserStatusActive)
	f.admin = seedUser(t, f.store, domain.RoleAdmin, domain.UserStatusActive)
	return f
}

func (f *ticketFixture) create(t *testing.T, actor *auth.Principal) *domain.Ticket {
	t.Helper()
	ticket, err := f.svc.Create(context.Background(), actor, TicketCreateInput{
		Title:       "Printer jam",
		Description: "Printer on 3rd floor jammed",
		Category:    "Printing",
	})
	require.NoError(t, err)
	return ticket
}

func (f *ticketFixture) reload(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.Tickets().GetByID(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func TestCreateThenCloseScenario(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	ticket := f.create(t, f.requester)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Nil(t, ticket.ActualResolutionTime)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Regexp(t, `^TKT-[0-9A-Z]+-[0-9A-Z]{4}$`, ticket.TicketNumber)

	f.clock.Advance(time.Minute)
	closed, err := f.svc.Close(ctx, f.requester, ticket.ID, TicketCloseInput{ResolutionNotes: "Replaced drum"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	require.NotNil(t, closed.ActualResolutionTime)
	assert.False(t, closed.ActualResolutionTime.Before(ticket.CreatedAt))

	assert.Equal(t, []domain.AuditAction{domain.AuditCreateTicket, domain.AuditCloseTicket}, f.rec.actions())
	stored := f.reload(t, ticket.ID)
	assert.Equal(t, "Replaced drum", stored.ResolutionNotes)
}

func TestCreateValidation(t *testing.T) {
	f := newTicketFixture(t)

	_, err := f.svc.Create(context.Background(), f.requester, TicketCreateInput{Title: " ", Priority: "Urgent"})
	de := requireCode(t, err, apperrors.CodeValidationFailed)
	assert.Contains(t, de.Details, "title")
	assert.Contains(t, de.Details, "description")
	assert.Contains(t, de.Details, "category")
	assert.Contains(t, de.Details, "priority")
	assert.Empty(t, f.rec.actions())
}

func TestCreateRequiresPrincipal(t *testing.T) {
	f := newTicketFixture(t)

	_, err := f.svc.Create(context.Background(), nil, TicketCreateInput{Title: "x", Description: "y", Category: "z"})
	requireCode(t, err, apperrors.CodeUnauthenticated)
}

func TestCreateRetriesTicketNumberThenConflicts(t *testing.T) {
	f := newTicketFixture(t)
	calls := 0
	f.svc.numbers = func(time.Time) string {
		calls++
		return "TKT-FIXED-AAAA"
	}

	f.create(t, f.requester)
	calls = 0
	_, err := f.svc.Create(context.Background(), f.requester, TicketCreateInput{Title: "a", Description: "b", Category: "c"})
	requireCode(t, err, apperrors.CodeConflict)
	assert.Equal(t, maxTicketNumberAttempts, calls)
}

func TestResolutionTimeIsSetOnce(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.requester)

	_, err := f.svc.Assign(ctx, f.agent, ticket.ID, ptr(f.agent.ID()))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	resolvedAt := f.clock.Now()
	resolved, err := f.svc.UpdateFields(ctx, f.agent, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusResolved)})
	require.NoError(t, err)
	require.NotNil(t, resolved.ActualResolutionTime)
	assert.Equal(t, resolvedAt, *resolved.ActualResolutionTime)

	f.clock.Advance(time.Hour)
	_, err = f.svc.UpdateFields(ctx, f.agent, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusInProgress)})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	again, err := f.svc.UpdateFields(ctx, f.agent, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusResolved)})
	require.NoError(t, err)
	assert.Equal(t, resolvedAt, *again.ActualResolutionTime)

	f.clock.Advance(time.Hour)
	closed, err := f.svc.Close(ctx, f.agent, ticket.ID, TicketCloseInput{ResolutionNotes: "done"})
	require.NoError(t, err)
	assert.Equal(t, resolvedAt, *closed.ActualResolutionTime)
	assert.Equal(t, resolvedAt, *f.reload(t, ticket.ID).ActualResolutionTime)
}

func TestAssignToWrongRoleLeavesTicketUnchanged(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.requester)
	other := seedUser(t, f.store, domain.RoleUser, domain.UserStatusActive)

	_, err := f.svc.Assign(ctx, f.agent, ticket.ID, ptr(other.ID()))
	requireCode(t, err, apperrors.CodeInvalidAssignee)

	stored := f.reload(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
	assert.Nil(t, stored.AssigneeID)
	assert.Equal(t, []domain.AuditAction{domain.AuditCreateTicket}, f.rec.actions())
}

func TestAssignRejectsMissingAndInactiveAssignees(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.requester)
	inactive := seedUser(t, f.store, domain.RoleITSpecialist, domain.UserStatusInactive)

	_, err := f.svc.Assign(ctx, f.agent, ticket.ID, ptr(uuid.NewString()))
	requireCode(t, err, apperrors.CodeInvalidAssignee)

	_, err = f.svc.Assign(ctx, f.agent, ticket.ID, ptr(inactive.ID()))
	requireCode(t, err, apperrors.CodeInvalidAssignee)
}

func TestAssignHonoursDriftedUserType(t *testing.T) {
	f := newTicketFixture(t)
	drifted := seedUser(t, f.store, domain.RoleUser, domain.UserStatusActive)
	require.True(t, f.store.SetRoleColumns(drifted.ID(), domain.RoleUser, domain.RoleSupportAgent))
	ticket := f.create(t, f.requester)

	assigned, err := f.svc.Assign(context.Background(), f.admin, ticket.ID, ptr(drifted.ID()))
	require.NoError(t, err)
	assert.Equal(t, drifted.ID(), *assigned.AssigneeID)
}

func TestAssignMovesStatusAndClearReopens(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.requester)

	assigned, err := f.svc.Assign(ctx, f.admin, ticket.ID, ptr(f.agent.ID()))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, assigned.Status)
	assert.Equal(t, f.agent.ID(), *assigned.AssigneeID)

	cleared, err := f.svc.Assign(ctx, f.admin, ticket.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, cleared.Status)
	assert.Nil(t, cleared.AssigneeID)

	var types []events.EventType
	for _, e := range f.events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []events.EventType{
		events.EventTicketCreated,
		events.EventTicketAssigned, events.EventTicketStatusChanged,
		events.EventTicketAssigned, events.EventTicketStatusChanged,
	}, types)
}

func TestAssignPermissions(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.requester)

	_, err := f.svc.Assign(ctx, f.requester, ticket.ID, ptr(f.agent.ID()))
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.svc.Assign(ctx, f.agent, uuid.NewString(), ptr(f.agent.ID()))
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.svc.Close(ctx, f.requester, ticket.ID, TicketCloseInput{ResolutionNotes: "fixed"})
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, f.agent, ticket.ID, ptr(f.agent.ID()))
	requireCode(t, err, apperrors.CodeForbidden)
}

func TestRequesterUpdateRestrictions(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.requester)

	updated, err := f.svc.UpdateFields(ctx, f.requester, ticket.ID, TicketUpdateInput{Title: ptr("Printer jam again")})
	require.NoError(t, err)
	assert.Equal(t, "Printer jam again", updated.Title)

	_, err = f.svc.UpdateFields(ctx, f.requester, ticket.ID, TicketUpdateInput{Priority: ptr(domain.TicketPriorityCritical)})
	requireCode(t, err, apperrors.CodeForbidden)
	_, err = f.svc.UpdateFields(ctx, f.requester, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusCancelled)})
	requireCode(t, err, apperrors.CodeForbidden)

	stranger := seedUser(t, f.store, domain.RoleUser, domain.UserStatusActive)
	_, err = f.svc.UpdateFields(ctx, stranger, ticket.ID, TicketUpdateInput{Title: ptr("mine now")})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.svc.Assign(ctx, f.agent, ticket.ID, ptr(f.agent.ID()))
	require.NoError(t, err)
	_, err = f.svc.UpdateFields(ctx, f.agent, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusResolved)})
	require.NoError(t, err)
	_, err = f.svc.UpdateFields(ctx, f.requester, ticket.ID, TicketUpdateInput{Title: ptr("too late")})
	requireCode(t, err, apperrors.CodeForbidden)
}

func TestStaffUpdateValidatesTransitions(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.requester)

	_, err := f.svc.UpdateFields(ctx, f.agent, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusResolved)})
	requireCode(t, err, apperrors.CodeForbidden)
	assert.Equal(t, domain.TicketStatusOpen, f.reload(t, ticket.ID).Status)

	updated, err := f.svc.UpdateFields(ctx, f.agent, ticket.ID, TicketUpdateInput{
		Status:   ptr(domain.TicketStatusCancelled),
		Priority: ptr(domain.TicketPriorityHigh),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCancelled, updated.Status)
	assert.Equal(t, domain.TicketPriorityHigh, updated.Priority)
	assert.Nil(t, updated.ActualResolutionTime)

	_, err = f.svc.UpdateFields(ctx, f.agent, ticket.ID, TicketUpdateInput{Title: ptr("reopen?")})
	requireCode(t, err, apperrors.CodeForbidden)
}

func TestGetVisibility(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.requester)
	stranger := seedUser(t, f.store, domain.RoleUser, domain.UserStatusActive)

	_, err := f.svc.Get(ctx, f.requester, ticket.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, f.agent, ticket.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, stranger, ticket.ID)
	requireCode(t, err, apperrors.CodeForbidden)
	_, err = f.svc.Get(ctx, f.requester, uuid.NewString())
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestListScopesNonStaffToOwnTickets(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	other := seedUser(t, f.store, domain.RoleUser, domain.UserStatusActive)
	f.create(t, f.requester)
	f.create(t, f.requester)
	f.create(t, other)

	otherID := other.ID()
	mine, total, err := f.svc.List(ctx, f.requester, TicketListFilter{RequesterID: &otherID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, tk := range mine {
		assert.Equal(t, f.requester.ID(), tk.RequesterID)
	}

	_, total, err = f.svc.List(ctx, f.agent, TicketListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, total, err = f.svc.List(ctx, f.agent, TicketListFilter{RequesterID: &otherID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestDeletePermissions(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	first := f.create(t, f.requester)
	second := f.create(t, f.requester)

	requireCode(t, f.svc.Delete(ctx, f.agent, first.ID), apperrors.CodeForbidden)
	require.NoError(t, f.svc.Delete(ctx, f.requester, first.ID))
	require.NoError(t, f.svc.Delete(ctx, f.admin, second.ID))

	_, err := f.store.Tickets().GetByID(ctx, first.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, domain.AuditDeleteTicket, f.rec.last(t).Action)
}

func TestCloseValidation(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.requester)

	_, err := f.svc.Close(ctx, f.requester, ticket.ID, TicketCloseInput{ResolutionNotes: "ok", SatisfactionRating: ptr(9)})
	requireCode(t, err, apperrors.CodeValidationFailed)
	_, err = f.svc.Close(ctx, f.requester, ticket.ID, TicketCloseInput{})
	requireCode(t, err, apperrors.CodeValidationFailed)

	stranger := seedUser(t, f.store, domain.RoleUser, domain.UserStatusActive)
	_, err = f.svc.Close(ctx, stranger, ticket.ID, TicketCloseInput{ResolutionNotes: "ok"})
	requireCode(t, err, apperrors.CodeForbidden)
}

type failingAuditStore struct{}

func (failingAuditStore) Create(context.Context, *domain.AuditLogEntry) error {
	return errors.New("audit store unavailable")
}

type outcomeRecorder struct {
	trail    *audit.Trail
	outcomes []audit.Outcome
}

func (r *outcomeRecorder) Record(ctx context.Context, e audit.Entry) audit.Outcome {
	o := r.trail.Record(ctx, e)
	r.outcomes = append(r.outcomes, o)
	return o
}

func TestOutcomesUnaffectedByAuditFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	requester := seedUser(t, store, domain.RoleUser, domain.UserStatusActive)
	agent := seedUser(t, store, domain.RoleSupportAgent, domain.UserStatusActive)
	rec := &outcomeRecorder{trail: audit.NewTrail(failingAuditStore{}, zap.NewNop())}
	svc := NewTicketService(TicketDependencies{
		TicketRepo: store.Tickets(),
		UserRepo:   store.Users(),
		Audit:      rec,
	})
	ctx := context.Background()

	ticket, err := svc.Create(ctx, requester, TicketCreateInput{Title: "VPN", Description: "cannot connect", Category: "Network"})
	require.NoError(t, err)
	_, err = svc.Assign(ctx, agent, ticket.ID, ptr(agent.ID()))
	require.NoError(t, err)
	_, err = svc.Assign(ctx, agent, ticket.ID, ptr(requester.ID()))
	requireCode(t, err, apperrors.CodeInvalidAssignee)
	_, err = svc.Close(ctx, requester, ticket.ID, TicketCloseInput{ResolutionNotes: "works"})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusClosed, func() domain.TicketStatus {
		stored, err := store.Tickets().GetByID(ctx, ticket.ID)
		require.NoError(t, err)
		return stored.Status
	}())

	require.Len(t, rec.outcomes, 3)
	for _, o := range rec.outcomes {
		var writeErr *audit.WriteError
		assert.ErrorAs(t, o.Wait(ctx), &writeErr)
	}
}

func TestGenerateTicketNumberFormat(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	a := GenerateTicketNumber(at)
	assert.Regexp(t, `^TKT-LOYW3V28-[0-9A-Z]{4}$`, a)
}

func TestTicketIDsAreCanonicalized(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()
	ticket := f.create(t, f.requester)

	assigned, err := f.svc.Assign(ctx, f.admin, strings.ToUpper(ticket.ID), ptr(strings.ToUpper(f.agent.ID())))
	require.NoError(t, err)
	assert.Equal(t, f.agent.ID(), *assigned.AssigneeID)
	assert.Equal(t, f.agent.ID(), *f.reload(t, ticket.ID).AssigneeID)

	_, err = f.svc.Get(ctx, f.requester, "not-a-ticket")
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.svc.Assign(ctx, f.admin, ticket.ID, ptr("abc"))
	requireCode(t, err, apperrors.CodeInvalidAssignee)

	_, _, err = f.svc.List(ctx, f.agent, TicketListFilter{AssigneeID: ptr("abc")})
	requireCode(t, err, apperrors.CodeValidationFailed)

	tickets, _, err := f.svc.List(ctx, f.agent, TicketListFilter{AssigneeID: ptr(strings.ToUpper(f.agent.ID()))})
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}
