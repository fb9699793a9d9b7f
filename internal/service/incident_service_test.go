package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
	"github.com/merturl4576/pyservice-mini-itsm/internal/events"
	"github.com/merturl4576/pyservice-mini-itsm/internal/repository"
	"github.com/merturl4576/pyservice-mini-itsm/pkg/clock"
	apperrors "github.com/merturl4576/pyservice-mini-itsm/pkg/util/errorutil"
)

type incidentRepoMock struct {
	mu     sync.Mutex
	byID   map[string]*domain.Incident
	nextID int

	// conflictsLeft makes the next N UpdateVersioned calls lose the
	// optimistic lock, to exercise the reload-and-retry path.
	conflictsLeft int
}

func newIncidentRepoMock() *incidentRepoMock {
	return &incidentRepoMock{byID: map[string]*domain.Incident{}}
}

func (m *incidentRepoMock) Create(_ context.Context, inc *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	inc.ID = testID("inc", m.nextID)
	inc.Version = 1
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now().UTC()
	}
	inc.UpdatedAt = inc.CreatedAt
	copied := *inc
	m.byID[inc.ID] = &copied
	return nil
}

func (m *incidentRepoMock) UpdateVersioned(_ context.Context, inc *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		return repository.ErrVersionConflict
	}
	stored, ok := m.byID[inc.ID]
	if !ok || stored.Version != inc.Version {
		return repository.ErrVersionConflict
	}
	inc.Version++
	inc.UpdatedAt = time.Now().UTC()
	copied := *inc
	m.byID[inc.ID] = &copied
	return nil
}

func (m *incidentRepoMock) GetByID(_ context.Context, id string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (m *incidentRepoMock) GetByNumber(_ context.Context, number string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.byID {
		if stored.Number == number {
			copied := *stored
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *incidentRepoMock) ListWithFilter(_ context.Context, _ repository.IncidentFilter) ([]domain.Incident, error) {
	return nil, nil
}

func (m *incidentRepoMock) ListBreachCandidates(_ context.Context, _ time.Time, _ int) ([]domain.Incident, error) {
	return nil, nil
}

func (m *incidentRepoMock) MarkBreached(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok || stored.SLABreached || stored.Terminal() {
		return false, nil
	}
	stored.SLABreached = true
	return true, nil
}

func (m *incidentRepoMock) ListWarningCandidates(_ context.Context, _ domain.Priority, _, _ time.Time, _ int) ([]domain.Incident, error) {
	return nil, nil
}

func (m *incidentRepoMock) ListStale(_ context.Context, _ domain.Priority, _ time.Time, _ int) ([]domain.Incident, error) {
	return nil, nil
}

type sequenceRepoMock struct {
	mu   sync.Mutex
	last map[repository.TicketKind]int64
}

func newSequenceRepoMock() *sequenceRepoMock {
	return &sequenceRepoMock{last: map[repository.TicketKind]int64{}}
}

func (m *sequenceRepoMock) NextNumber(_ context.Context, kind repository.TicketKind) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[kind]++
	return repository.FormatTicketNumber(kind, m.last[kind]), nil
}

type userRepoMock struct {
	byID map[string]*domain.User
}

func newUserRepoMock(users ...*domain.User) *userRepoMock {
	m := &userRepoMock{byID: map[string]*domain.User{}}
	for _, user := range users {
		m.byID[user.ID] = user
	}
	return m
}

func (m *userRepoMock) Create(_ context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = testID("user", len(m.byID)+1)
	}
	m.byID[user.ID] = user
	return nil
}

func (m *userRepoMock) Update(_ context.Context, user *domain.User) error {
	if _, ok := m.byID[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.byID[user.ID] = user
	return nil
}

func (m *userRepoMock) GetByID(_ context.Context, id string) (*domain.User, error) {
	if user, ok := m.byID[id]; ok {
		return user, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *userRepoMock) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, user := range m.byID {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *userRepoMock) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, user := range m.byID {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *userRepoMock) List(_ context.Context, _ repository.UserFilter) ([]domain.User, error) {
	var result []domain.User
	for _, user := range m.byID {
		result = append(result, *user)
	}
	return result, nil
}

type dispatcherMock struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *dispatcherMock) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *dispatcherMock) Subscribe(_ events.EventType, _ events.EventHandler) {}

func (d *dispatcherMock) published(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}

func testID(prefix string, n int) string {
	return fmt.Sprintf("%s-%d", prefix, n)
}

func testUser(id string, role domain.Role) *domain.User {
	return &domain.User{
		ID:       id,
		Username: id,
		FullName: "User " + id,
		Email:    id + "@example.com",
		Role:     role,
		Active:   true,
	}
}

type incidentFixture struct {
	svc        *IncidentService
	incidents  *incidentRepoMock
	dispatcher *dispatcherMock
	clk        *clock.Fixed
}

func newIncidentFixture(t *testing.T, users ...*domain.User) *incidentFixture {
	t.Helper()
	if len(users) == 0 {
		users = []*domain.User{
			testUser("caller", domain.RoleStaff),
			testUser("tech", domain.RoleTechnician),
		}
	}
	incidents := newIncidentRepoMock()
	dispatcher := &dispatcherMock{}
	clk := &clock.Fixed{T: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	svc := NewIncidentService(IncidentDependencies{
		IncidentRepo: incidents,
		SequenceRepo: newSequenceRepoMock(),
		UserRepo:     newUserRepoMock(users...),
		Dispatcher:   dispatcher,
		Clock:        clk,
	})
	return &incidentFixture{svc: svc, incidents: incidents, dispatcher: dispatcher, clk: clk}
}

func TestIncidentCreateDerivesPriorityAndDeadline(t *testing.T) {
	f := newIncidentFixture(t)

	inc, err := f.svc.Create(context.Background(), "caller", IncidentCreateInput{
		Title:   "email server down",
		Impact:  domain.ImpactHigh,
		Urgency: domain.UrgencyHigh,
	})
	require.NoError(t, err)

	assert.Equal(t, "INC0000001", inc.Number)
	assert.Equal(t, domain.PriorityCritical, inc.Priority)
	assert.Equal(t, domain.IncidentStateNew, inc.State)
	require.NotNil(t, inc.DueDate)
	assert.Equal(t, f.clk.T.Add(4*time.Hour), *inc.DueDate)
	assert.Nil(t, inc.AssigneeID)

	published := f.dispatcher.published(events.EventIncidentCreated)
	require.Len(t, published, 1)
	event := published[0]
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, f.clk.T, event.Timestamp)
	require.NotNil(t, event.Actor.UserID)
	assert.Equal(t, "caller", *event.Actor.UserID)
	payload, ok := event.Payload.(events.IncidentCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.PriorityCritical, payload.Priority)
}

func TestIncidentCreateValidation(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Impact: 1, Urgency: 1})
	require.Error(t, err)

	_, err = f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "x", Impact: 0, Urgency: 1})
	require.Error(t, err)

	_, err = f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "x", Impact: 1, Urgency: 4})
	require.Error(t, err)
	assert.Empty(t, f.dispatcher.events)
}

func TestIncidentCreateUnknownCombinationFallsBackToLow(t *testing.T) {
	f := newIncidentFixture(t)

	inc, err := f.svc.Create(context.Background(), "caller", IncidentCreateInput{
		Title:   "screen flicker",
		Impact:  domain.ImpactLow,
		Urgency: domain.UrgencyLow,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityLow, inc.Priority)
	require.NotNil(t, inc.DueDate)
	assert.Equal(t, f.clk.T.Add(72*time.Hour), *inc.DueDate)
}

func TestIncidentClaim(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "vpn broken", Impact: 2, Urgency: 2})
	require.NoError(t, err)

	claimed, err := f.svc.Claim(ctx, "tech", inc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateInProgress, claimed.State)
	require.NotNil(t, claimed.AssigneeID)
	assert.Equal(t, "tech", *claimed.AssigneeID)

	published := f.dispatcher.published(events.EventIncidentClaimed)
	require.Len(t, published, 1)
	payload := published[0].Payload.(events.IncidentStateChangedPayload)
	assert.Equal(t, domain.IncidentStateNew, payload.OldState)
	assert.Equal(t, domain.IncidentStateInProgress, payload.NewState)
}

func TestIncidentClaimAlreadyAssigned(t *testing.T) {
	f := newIncidentFixture(t,
		testUser("caller", domain.RoleStaff),
		testUser("tech", domain.RoleTechnician),
		testUser("tech2", domain.RoleITSupport),
	)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "printer jam", Impact: 3, Urgency: 3})
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, "tech", inc.ID)
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, "tech2", inc.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsIllegalTransition(err))
	assert.Contains(t, err.Error(), "already assigned to tech")

	// losing claimer left no trace
	current, err := f.svc.Get(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, "tech", *current.AssigneeID)
}

func TestIncidentClaimNewRequiresUnassigned(t *testing.T) {
	f := newIncidentFixture(t,
		testUser("caller", domain.RoleStaff),
		testUser("tech", domain.RoleTechnician),
		testUser("tech2", domain.RoleITSupport),
	)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "printer jam", Impact: 3, Urgency: 3})
	require.NoError(t, err)

	// an assignee written out of band keeps the ticket off the claim queue
	f.incidents.mu.Lock()
	holder := "tech"
	f.incidents.byID[inc.ID].AssigneeID = &holder
	f.incidents.mu.Unlock()

	_, err = f.svc.Claim(ctx, "tech2", inc.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsIllegalTransition(err))
	assert.Contains(t, err.Error(), "already assigned to tech")

	current, err := f.svc.Get(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateNew, current.State)
}

func TestIncidentClaimRequiresSupportRole(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "slow laptop", Impact: 3, Urgency: 2})
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, "caller", inc.ID)
	require.Error(t, err)
	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "FORBIDDEN", de.Code)
}

func TestIncidentComplete(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "wifi down", Impact: 1, Urgency: 2})
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, "tech", inc.ID)
	require.NoError(t, err)

	resolved, err := f.svc.Complete(ctx, "tech", inc.ID, "restarted the access point")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateResolved, resolved.State)
	assert.Equal(t, "restarted the access point", resolved.ResolutionNotes)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, f.clk.T, *resolved.ResolvedAt)
	assert.True(t, resolved.Terminal())

	published := f.dispatcher.published(events.EventIncidentResolved)
	require.Len(t, published, 1)
	payload := published[0].Payload.(events.IncidentStateChangedPayload)
	assert.Equal(t, "caller", payload.CallerID)
	assert.Equal(t, "restarted the access point", payload.Notes)
}

func TestIncidentCompleteFromNewRejected(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "wifi down", Impact: 1, Urgency: 2})
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, "tech", inc.ID, "done")
	require.Error(t, err)
	assert.True(t, apperrors.IsIllegalTransition(err))

	current, err := f.svc.Get(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateNew, current.State)
}

func TestIncidentEscalate(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "db latency", Impact: 1, Urgency: 1})
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, "tech", inc.ID)
	require.NoError(t, err)

	escalated, err := f.svc.Escalate(ctx, "tech", inc.ID, "need a dba")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateNeedsHelp, escalated.State)

	published := f.dispatcher.published(events.EventIncidentEscalated)
	require.Len(t, published, 1)
	require.NotNil(t, published[0].Actor.UserID)
	assert.False(t, published[0].Actor.System)

	// needs_help can be claimed again
	reclaimed, err := f.svc.Claim(ctx, "tech", inc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateInProgress, reclaimed.State)
}

func TestIncidentEscalateBySystem(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "db latency", Impact: 1, Urgency: 1})
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, "tech", inc.ID)
	require.NoError(t, err)

	escalated, err := f.svc.EscalateBySystem(ctx, inc.ID, "Auto-escalated due to no activity for 2h0m0s")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateNeedsHelp, escalated.State)
	assert.Equal(t, "Auto-escalated due to no activity for 2h0m0s", escalated.ResolutionNotes)

	published := f.dispatcher.published(events.EventIncidentEscalated)
	require.Len(t, published, 1)
	assert.True(t, published[0].Actor.System)
	assert.Nil(t, published[0].Actor.UserID)
}

func TestIncidentReclassifyKeepsDeadline(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "outage", Impact: 3, Urgency: 3})
	require.NoError(t, err)
	originalDue := *inc.DueDate

	f.clk.Advance(30 * time.Minute)
	updated, err := f.svc.Reclassify(ctx, "tech", inc.ID, domain.ImpactHigh, domain.UrgencyHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityCritical, updated.Priority)
	require.NotNil(t, updated.DueDate)
	assert.Equal(t, originalDue, *updated.DueDate)

	published := f.dispatcher.published(events.EventIncidentReclassified)
	require.Len(t, published, 1)
	payload := published[0].Payload.(events.IncidentReclassifiedPayload)
	assert.Equal(t, domain.PriorityLow, payload.OldPriority)
	assert.Equal(t, domain.PriorityCritical, payload.NewPriority)
}

func TestIncidentReclassifySamePriorityPublishesNothing(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "outage", Impact: 1, Urgency: 2})
	require.NoError(t, err)

	// (2,1) lands on the same P2 cell as (1,2)
	updated, err := f.svc.Reclassify(ctx, "tech", inc.ID, domain.ImpactMedium, domain.UrgencyHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, updated.Priority)
	assert.Empty(t, f.dispatcher.published(events.EventIncidentReclassified))
}

func TestIncidentReclassifyTerminalRejected(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "outage", Impact: 1, Urgency: 1})
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, "tech", inc.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, "tech", inc.ID, "fixed")
	require.NoError(t, err)

	_, err = f.svc.Reclassify(ctx, "tech", inc.ID, domain.ImpactLow, domain.UrgencyLow)
	require.Error(t, err)
	assert.True(t, apperrors.IsIllegalTransition(err))
}

func TestIncidentMutateRetriesOnVersionConflict(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "outage", Impact: 1, Urgency: 1})
	require.NoError(t, err)

	f.incidents.conflictsLeft = 1
	claimed, err := f.svc.Claim(ctx, "tech", inc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateInProgress, claimed.State)
}

func TestIncidentMutateGivesUpAfterSecondConflict(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "outage", Impact: 1, Urgency: 1})
	require.NoError(t, err)

	f.incidents.conflictsLeft = 2
	_, err = f.svc.Claim(ctx, "tech", inc.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestIncidentSLAStatus(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "outage", Impact: 1, Urgency: 1})
	require.NoError(t, err)

	state := f.svc.SLAStatus(inc)
	assert.Equal(t, domain.SLAOnTime, state.Kind)
	assert.Equal(t, 4*time.Hour, state.Remaining)

	f.clk.Advance(6 * time.Hour)
	state = f.svc.SLAStatus(inc)
	assert.Equal(t, domain.SLABreachedState, state.Kind)
	assert.Equal(t, 2*time.Hour, state.Overdue)
}

func TestIncidentGetByNumber(t *testing.T) {
	f := newIncidentFixture(t)
	ctx := context.Background()
	inc, err := f.svc.Create(ctx, "caller", IncidentCreateInput{Title: "outage", Impact: 2, Urgency: 2})
	require.NoError(t, err)

	found, err := f.svc.GetByNumber(ctx, inc.Number)
	require.NoError(t, err)
	assert.Equal(t, inc.ID, found.ID)

	_, err = f.svc.GetByNumber(ctx, "INC9999999")
	require.Error(t, err)
}
