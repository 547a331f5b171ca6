package service

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

const (
	maxTicketNumberAttempts = 5
	maxTitleLength          = 200
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	engine     *auth.Engine
	audit      AuditRecorder
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
	numbers    func(time.Time) string
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Engine     *auth.Engine
	Audit      AuditRecorder
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// Clock and NumberGenerator default to wall time and GenerateTicketNumber.
	Clock           func() time.Time
	NumberGenerator func(time.Time) string
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title                   string
	Description             string
	Category                string
	Subcategory             string
	Priority                domain.TicketPriority
	Urgency                 domain.TicketUrgency
	Impact                  domain.TicketImpact
	EstimatedResolutionTime *time.Time
}

// TicketUpdateInput carries a partial edit. Nil fields are untouched.
type TicketUpdateInput struct {
	Title                   *string
	Description             *string
	Category                *string
	Subcategory             *string
	Priority                *domain.TicketPriority
	Urgency                 *domain.TicketUrgency
	Impact                  *domain.TicketImpact
	Status                  *domain.TicketStatus
	ResolutionNotes         *string
	EstimatedResolutionTime *time.Time
}

func (in TicketUpdateInput) empty() bool {
	return in.Title == nil && in.Description == nil && in.Category == nil && !in.touchesRestricted()
}

// touchesRestricted reports whether fields beyond title, description and
// category are present.
func (in TicketUpdateInput) touchesRestricted() bool {
	return in.Subcategory != nil || in.Priority != nil || in.Urgency != nil || in.Impact != nil ||
		in.Status != nil || in.ResolutionNotes != nil || in.EstimatedResolutionTime != nil
}

// TicketCloseInput is the payload for closing a ticket.
type TicketCloseInput struct {
	ResolutionNotes    string
	SatisfactionRating *int
	Feedback           string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	Category    string
	RequesterID *string
	AssigneeID  *string
	SearchTerm  string
	Limit       int
	Offset      int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		engine:     deps.Engine,
		audit:      deps.Audit,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        deps.Clock,
		numbers:    deps.NumberGenerator,
	}
	if s.engine == nil {
		s.engine = auth.NewEngine(nil)
	}
	if s.audit == nil {
		s.audit = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.numbers == nil {
		s.numbers = GenerateTicketNumber
	}
	return s
}

// Create files a new ticket for actor. Tickets always start Open.
func (s *TicketService) Create(ctx context.Context, actor *auth.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	if err := s.engine.Authorize(actor, auth.Permission(auth.PermTicketsCreate)); err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		Title:                   strings.TrimSpace(input.Title),
		Description:             strings.TrimSpace(input.Description),
		Category:                strings.TrimSpace(input.Category),
		Subcategory:             strings.TrimSpace(input.Subcategory),
		Priority:                input.Priority,
		Urgency:                 input.Urgency,
		Impact:                  input.Impact,
		Status:                  domain.TicketStatusOpen,
		RequesterID:             actor.ID(),
		EstimatedResolutionTime: input.EstimatedResolutionTime,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	if ticket.Urgency == "" {
		ticket.Urgency = domain.TicketUrgencyMedium
	}
	if ticket.Impact == "" {
		ticket.Impact = domain.TicketImpactMedium
	}
	if err := validateTicket(ticket); err != nil {
		return nil, err
	}

	var err error
	for attempt := 0; attempt < maxTicketNumberAttempts; attempt++ {
		ticket.TicketNumber = s.numbers(s.now())
		err = s.tickets.Create(ctx, ticket)
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
		s.logger.Warn("ticket number collision", zap.String("ticket_number", ticket.TicketNumber), zap.Int("attempt", attempt+1))
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperrors.NewConflict("could not allocate a unique ticket number", nil)
	}
	if err != nil {
		return nil, mapRepoError(err, "ticket")
	}

	record(ctx, s.audit, audit.Entry{
		UserID:     actor.ID(),
		Action:     domain.AuditCreateTicket,
		Resource:   domain.ResourceTicket,
		ResourceID: ticket.ID,
		Details: map[string]any{
			"ticketNumber": ticket.TicketNumber,
			"title":        ticket.Title,
			"category":     ticket.Category,
			"priority":     string(ticket.Priority),
		},
	})
	publish(ctx, s.dispatcher, s.logger, events.NewTicketEvent(events.EventTicketCreated, ticket, actorOf(actor), s.now(),
		events.TicketCreatedPayload{
			RequesterID: ticket.RequesterID,
			Category:    ticket.Category,
			Priority:    ticket.Priority,
			Title:       ticket.Title,
		}))
	return ticket, nil
}

// List returns tickets visible to actor. Callers without support or admin
// roles only ever see their own tickets, whatever the filter says.
func (s *TicketService) List(ctx context.Context, actor *auth.Principal, filter TicketListFilter) ([]domain.Ticket, int, error) {
	if err := s.authenticated(actor); err != nil {
		return nil, 0, err
	}

	requesterID, err := filterID(filter.RequesterID, "requester")
	if err != nil {
		return nil, 0, err
	}
	assigneeID, err := filterID(filter.AssigneeID, "assignedTo")
	if err != nil {
		return nil, 0, err
	}

	repoFilter := repository.TicketFilter{
		RequesterID: requesterID,
		AssigneeID:  assigneeID,
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		Category:    filter.Category,
		SearchTerm:  filter.SearchTerm,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	if !s.engine.Allows(actor, auth.SupportTier()) {
		own := actor.ID()
		repoFilter.RequesterID = &own
	}

	tickets, total, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, mapRepoError(err, "ticket")
	}
	return tickets, total, nil
}

// Get returns a ticket visible to actor.
func (s *TicketService) Get(ctx context.Context, actor *auth.Principal, ticketID string) (*domain.Ticket, error) {
	if err := s.authenticated(actor); err != nil {
		return nil, err
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, ticket) {
		return nil, apperrors.NewForbidden("not allowed to view this ticket")
	}
	return ticket, nil
}

// UpdateFields edits a ticket. Requesters may change title, description and
// category until the ticket is resolved; support and admin roles may change
// everything, with status moves checked against the transition table.
func (s *TicketService) UpdateFields(ctx context.Context, actor *auth.Principal, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	if err := s.authenticated(actor); err != nil {
		return nil, err
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	staff := s.engine.Allows(actor, auth.SupportTier())
	switch {
	case staff:
	case ticket.RequesterID == actor.ID():
		if input.touchesRestricted() {
			return nil, apperrors.NewForbidden("requesters may only edit title, description and category")
		}
		if !ticket.Status.PreResolution() {
			return nil, apperrors.NewForbidden("ticket can no longer be edited by its requester")
		}
	default:
		return nil, apperrors.NewForbidden("not allowed to update this ticket")
	}
	if ticket.Status.Terminal() {
		return nil, apperrors.NewForbidden("ticket is " + strings.ToLower(string(ticket.Status)))
	}
	if input.empty() {
		return nil, apperrors.NewValidationError("no fields to update", nil)
	}

	previousStatus := ticket.Status
	changes := map[string]any{}
	applyString(&ticket.Title, input.Title, "title", changes)
	applyString(&ticket.Description, input.Description, "description", changes)
	applyString(&ticket.Category, input.Category, "category", changes)
	applyString(&ticket.Subcategory, input.Subcategory, "subcategory", changes)
	applyString(&ticket.ResolutionNotes, input.ResolutionNotes, "resolutionNotes", changes)
	if input.Priority != nil && *input.Priority != ticket.Priority {
		changes["priority"] = map[string]any{"from": string(ticket.Priority), "to": string(*input.Priority)}
		ticket.Priority = *input.Priority
	}
	if input.Urgency != nil && *input.Urgency != ticket.Urgency {
		changes["urgency"] = map[string]any{"from": string(ticket.Urgency), "to": string(*input.Urgency)}
		ticket.Urgency = *input.Urgency
	}
	if input.Impact != nil && *input.Impact != ticket.Impact {
		changes["impact"] = map[string]any{"from": string(ticket.Impact), "to": string(*input.Impact)}
		ticket.Impact = *input.Impact
	}
	if input.EstimatedResolutionTime != nil {
		ticket.EstimatedResolutionTime = input.EstimatedResolutionTime
		changes["estimatedResolutionTime"] = input.EstimatedResolutionTime.UTC().Format(time.RFC3339)
	}
	if input.Status != nil && *input.Status != ticket.Status {
		if err := validateTransition(ticket.Status, *input.Status); err != nil {
			return nil, err
		}
		changes["status"] = map[string]any{"from": string(ticket.Status), "to": string(*input.Status)}
		ticket.Status = *input.Status
		if ticket.Status == domain.TicketStatusResolved {
			stampResolution(ticket, s.now())
		}
	}
	if err := validateTicket(ticket); err != nil {
		return nil, err
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapRepoError(err, "ticket")
	}

	record(ctx, s.audit, audit.Entry{
		UserID:     actor.ID(),
		Action:     domain.AuditUpdateTicket,
		Resource:   domain.ResourceTicket,
		ResourceID: ticket.ID,
		Details:    map[string]any{"ticketNumber": ticket.TicketNumber, "changes": changes},
	})
	if previousStatus != ticket.Status {
		s.publishStatusChange(ctx, actor, ticket, previousStatus)
	}
	return ticket, nil
}

// Assign sets or clears the assignee. Supplying an assignee moves the ticket
// to In Progress; clearing it moves the ticket back to Open.
func (s *TicketService) Assign(ctx context.Context, actor *auth.Principal, ticketID string, assigneeID *string) (*domain.Ticket, error) {
	if err := s.engine.Authorize(actor, auth.SupportTier()); err != nil {
		return nil, err
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.Terminal() {
		return nil, apperrors.NewForbidden("cannot assign a " + strings.ToLower(string(ticket.Status)) + " ticket")
	}
	if assigneeID != nil && strings.TrimSpace(*assigneeID) == "" {
		assigneeID = nil
	}
	if assigneeID != nil {
		canonical, err := s.checkAssignee(ctx, *assigneeID)
		if err != nil {
			return nil, err
		}
		assigneeID = &canonical
	}

	previous := ticket.AssigneeID
	previousStatus := ticket.Status
	next := *ticket
	if assigneeID != nil {
		id := *assigneeID
		next.AssigneeID = &id
		next.Status = domain.TicketStatusInProgress
	} else {
		next.AssigneeID = nil
		next.Status = domain.TicketStatusOpen
	}

	if err := s.tickets.Update(ctx, &next); err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	ticket = &next

	record(ctx, s.audit, audit.Entry{
		UserID:     actor.ID(),
		Action:     domain.AuditAssignTicket,
		Resource:   domain.ResourceTicket,
		ResourceID: ticket.ID,
		Details: map[string]any{
			"ticketNumber":       ticket.TicketNumber,
			"previousAssigneeId": stringOrNil(previous),
			"assigneeId":         stringOrNil(ticket.AssigneeID),
			"status":             string(ticket.Status),
		},
	})
	publish(ctx, s.dispatcher, s.logger, events.NewTicketEvent(events.EventTicketAssigned, ticket, actorOf(actor), s.now(),
		events.TicketAssignedPayload{PreviousAssigneeID: previous, AssigneeID: ticket.AssigneeID}))
	if previousStatus != ticket.Status {
		s.publishStatusChange(ctx, actor, ticket, previousStatus)
	}
	return ticket, nil
}

// Close finishes a ticket from any non-terminal state.
func (s *TicketService) Close(ctx context.Context, actor *auth.Principal, ticketID string, input TicketCloseInput) (*domain.Ticket, error) {
	if err := s.authenticated(actor); err != nil {
		return nil, err
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.RequesterID != actor.ID() && !s.engine.Allows(actor, auth.SupportTier()) {
		return nil, apperrors.NewForbidden("not allowed to close this ticket")
	}
	if ticket.Status.Terminal() {
		return nil, apperrors.NewForbidden("ticket is already " + strings.ToLower(string(ticket.Status)))
	}

	notes := strings.TrimSpace(input.ResolutionNotes)
	fieldErrs := map[string]any{}
	if notes == "" {
		fieldErrs["resolutionNotes"] = "is required"
	}
	if r := input.SatisfactionRating; r != nil && (*r < 1 || *r > 5) {
		fieldErrs["satisfactionRating"] = "must be between 1 and 5"
	}
	if len(fieldErrs) > 0 {
		return nil, apperrors.NewValidationError("invalid close request", fieldErrs)
	}

	previousStatus := ticket.Status
	ticket.Status = domain.TicketStatusClosed
	ticket.ResolutionNotes = notes
	ticket.Feedback = strings.TrimSpace(input.Feedback)
	if input.SatisfactionRating != nil {
		rating := *input.SatisfactionRating
		ticket.SatisfactionRating = &rating
	}
	stampResolution(ticket, s.now())

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapRepoError(err, "ticket")
	}

	record(ctx, s.audit, audit.Entry{
		UserID:     actor.ID(),
		Action:     domain.AuditCloseTicket,
		Resource:   domain.ResourceTicket,
		ResourceID: ticket.ID,
		Details: map[string]any{
			"ticketNumber":       ticket.TicketNumber,
			"previousStatus":     string(previousStatus),
			"satisfactionRating": input.SatisfactionRating,
		},
	})
	publish(ctx, s.dispatcher, s.logger, events.NewTicketEvent(events.EventTicketClosed, ticket, actorOf(actor), s.now(),
		events.TicketClosedPayload{ResolutionNotes: ticket.ResolutionNotes, SatisfactionRating: ticket.SatisfactionRating}))
	s.publishStatusChange(ctx, actor, ticket, previousStatus)
	return ticket, nil
}

// Delete removes a ticket. Only its requester or an admin-tier caller may.
func (s *TicketService) Delete(ctx context.Context, actor *auth.Principal, ticketID string) error {
	if err := s.authenticated(actor); err != nil {
		return err
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.RequesterID != actor.ID() && !s.engine.Allows(actor, auth.AdminTier()) {
		return apperrors.NewForbidden("only the requester or an administrator may delete a ticket")
	}
	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		return mapRepoError(err, "ticket")
	}

	record(ctx, s.audit, audit.Entry{
		UserID:     actor.ID(),
		Action:     domain.AuditDeleteTicket,
		Resource:   domain.ResourceTicket,
		ResourceID: ticket.ID,
		Details: map[string]any{
			"ticketNumber": ticket.TicketNumber,
			"title":        ticket.Title,
			"status":       string(ticket.Status),
			"requesterId":  ticket.RequesterID,
		},
	})
	publish(ctx, s.dispatcher, s.logger, events.NewTicketEvent(events.EventTicketDeleted, ticket, actorOf(actor), s.now(), nil))
	return nil
}

func (s *TicketService) authenticated(actor *auth.Principal) error {
	return s.engine.Authenticated(actor)
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	id, ok := canonicalID(ticketID)
	if !ok {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	return ticket, nil
}

func (s *TicketService) canView(actor *auth.Principal, ticket *domain.Ticket) bool {
	if ticket.RequesterID == actor.ID() {
		return true
	}
	if ticket.AssigneeID != nil && *ticket.AssigneeID == actor.ID() {
		return true
	}
	return s.engine.Allows(actor, auth.SupportTier())
}

// checkAssignee returns the canonical id of a valid assignee.
func (s *TicketService) checkAssignee(ctx context.Context, assigneeID string) (string, error) {
	details := map[string]any{"assignedToId": assigneeID}
	id, ok := canonicalID(assigneeID)
	if !ok {
		return "", apperrors.NewInvalidAssignee("assignee does not exist", details)
	}
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return "", apperrors.NewInvalidAssignee("assignee does not exist", details)
	}
	if err != nil {
		return "", mapRepoError(err, "user")
	}
	if user.Status != domain.UserStatusActive {
		return "", apperrors.NewInvalidAssignee("assignee is not active", details)
	}
	if !s.engine.HoldsSupportRole(user) {
		return "", apperrors.NewInvalidAssignee("assignee must hold a support or admin role", details)
	}
	return id, nil
}

func filterID(id *string, field string) (*string, error) {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil, nil
	}
	canonical, ok := canonicalID(*id)
	if !ok {
		return nil, apperrors.NewValidationError("invalid filter", map[string]any{field: "must be a UUID"})
	}
	return &canonical, nil
}

func (s *TicketService) publishStatusChange(ctx context.Context, actor *auth.Principal, ticket *domain.Ticket, old domain.TicketStatus) {
	publish(ctx, s.dispatcher, s.logger, events.NewTicketEvent(events.EventTicketStatusChanged, ticket, actorOf(actor), s.now(),
		events.TicketStatusChangedPayload{OldStatus: old, NewStatus: ticket.Status}))
}

func validateTicket(t *domain.Ticket) error {
	fieldErrs := map[string]any{}
	switch {
	case t.Title == "":
		fieldErrs["title"] = "is required"
	case len(t.Title) > maxTitleLength:
		fieldErrs["title"] = "must be at most 200 characters"
	}
	if t.Description == "" {
		fieldErrs["description"] = "is required"
	}
	if t.Category == "" {
		fieldErrs["category"] = "is required"
	}
	if !t.Priority.Valid() {
		fieldErrs["priority"] = "must be one of Low, Medium, High, Critical"
	}
	if !t.Urgency.Valid() {
		fieldErrs["urgency"] = "must be one of Low, Medium, High, Emergency"
	}
	if !t.Impact.Valid() {
		fieldErrs["impact"] = "must be one of Low, Medium, High, Critical"
	}
	if len(fieldErrs) > 0 {
		return apperrors.NewValidationError("invalid ticket", fieldErrs)
	}
	return nil
}

func applyString(dst *string, src *string, field string, changes map[string]any) {
	if src == nil {
		return
	}
	v := strings.TrimSpace(*src)
	if v == *dst {
		return
	}
	changes[field] = map[string]any{"from": *dst, "to": v}
	*dst = v
}

func stringOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

const ticketSuffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateTicketNumber returns TKT-<base36 millis>-<4 random chars>.
func GenerateTicketNumber(at time.Time) string {
	var b strings.Builder
	b.WriteString("TKT-")
	b.WriteString(strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36)))
	b.WriteByte('-')
	max := big.NewInt(int64(len(ticketSuffixAlphabet)))
	for i := 0; i < 4; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			b.WriteByte(ticketSuffixAlphabet[i])
			continue
		}
		b.WriteByte(ticketSuffixAlphabet[n.Int64()])
	}
	return b.String()
}
