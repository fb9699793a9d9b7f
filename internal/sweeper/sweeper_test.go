package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/merturl4576/pyservice-mini-itsm/internal/config"
	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
	"github.com/merturl4576/pyservice-mini-itsm/internal/events"
	"github.com/merturl4576/pyservice-mini-itsm/internal/repository"
	"github.com/merturl4576/pyservice-mini-itsm/internal/service"
	"github.com/merturl4576/pyservice-mini-itsm/pkg/clock"
)

type sweepRepoMock struct {
	mu   sync.Mutex
	byID map[string]*domain.Incident

	// staleOverride, when set, is returned by ListStale verbatim so a
	// test can hand the sweeper a snapshot the store has moved past.
	staleOverride []domain.Incident

	listErr error
}

func newSweepRepoMock(incidents ...*domain.Incident) *sweepRepoMock {
	m := &sweepRepoMock{byID: map[string]*domain.Incident{}}
	for _, inc := range incidents {
		copied := *inc
		m.byID[inc.ID] = &copied
	}
	return m
}

func (m *sweepRepoMock) Create(_ context.Context, inc *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *inc
	m.byID[inc.ID] = &copied
	return nil
}

func (m *sweepRepoMock) UpdateVersioned(_ context.Context, inc *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *sweepRepoMock) GetByID(_ context.Context, id string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (m *sweepRepoMock) GetByNumber(_ context.Context, _ string) (*domain.Incident, error) {
	return nil, pgx.ErrNoRows
}

func (m *sweepRepoMock) ListWithFilter(_ context.Context, _ repository.IncidentFilter) ([]domain.Incident, error) {
	return nil, nil
}

func (m *sweepRepoMock) ListBreachCandidates(_ context.Context, now time.Time, limit int) ([]domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []domain.Incident
	for _, inc := range m.byID {
		if inc.Terminal() || inc.SLABreached || inc.DueDate == nil {
			continue
		}
		if inc.DueDate.Before(now) {
			result = append(result, *inc)
		}
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *sweepRepoMock) MarkBreached(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok || stored.SLABreached || stored.Terminal() {
		return false, nil
	}
	stored.SLABreached = true
	return true, nil
}

func (m *sweepRepoMock) ListWarningCandidates(_ context.Context, priority domain.Priority, now, horizon time.Time, limit int) ([]domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Incident
	for _, inc := range m.byID {
		if inc.Priority != priority || inc.SLABreached || inc.DueDate == nil {
			continue
		}
		if inc.State != domain.IncidentStateNew && inc.State != domain.IncidentStateInProgress {
			continue
		}
		if inc.DueDate.After(now) && !inc.DueDate.After(horizon) {
			result = append(result, *inc)
		}
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *sweepRepoMock) ListStale(_ context.Context, priority domain.Priority, cutoff time.Time, limit int) ([]domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleOverride != nil {
		var result []domain.Incident
		for _, inc := range m.staleOverride {
			if inc.Priority == priority {
				result = append(result, inc)
			}
		}
		return result, nil
	}
	var result []domain.Incident
	for _, inc := range m.byID {
		if inc.Priority != priority || inc.State != domain.IncidentStateInProgress {
			continue
		}
		if inc.UpdatedAt.Before(cutoff) {
			result = append(result, *inc)
		}
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(_ events.EventType, _ events.EventHandler) {}

func (d *recordingDispatcher) published(eventType events.EventType) []events.Event {
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

type noopSequenceRepo struct{}

func (noopSequenceRepo) NextNumber(_ context.Context, kind repository.TicketKind) (string, error) {
	return repository.FormatTicketNumber(kind, 1), nil
}

type noopUserRepo struct{}

func (noopUserRepo) Create(_ context.Context, _ *domain.User) error  { return nil }
func (noopUserRepo) Update(_ context.Context, _ *domain.User) error  { return nil }
func (noopUserRepo) GetByID(_ context.Context, _ string) (*domain.User, error) {
	return nil, pgx.ErrNoRows
}
func (noopUserRepo) GetByEmail(_ context.Context, _ string) (*domain.User, error) {
	return nil, pgx.ErrNoRows
}
func (noopUserRepo) GetByUsername(_ context.Context, _ string) (*domain.User, error) {
	return nil, pgx.ErrNoRows
}
func (noopUserRepo) List(_ context.Context, _ repository.UserFilter) ([]domain.User, error) {
	return nil, nil
}

func testConfig() config.SweeperConfig {
	return config.SweeperConfig{
		Enabled:          true,
		BreachSpec:       "@every 1m",
		WarningSpec:      "@every 5m",
		StalenessSpec:    "@every 10m",
		RunBudgetSeconds: 30,
		MaxRetries:       1,
		BatchLimit:       100,
	}
}

type sweepFixture struct {
	sweeper    *Sweeper
	repo       *sweepRepoMock
	dispatcher *recordingDispatcher
	clk        *clock.Fixed
}

func newSweepFixture(t *testing.T, incidents ...*domain.Incident) *sweepFixture {
	t.Helper()
	repo := newSweepRepoMock(incidents...)
	dispatcher := &recordingDispatcher{}
	clk := &clock.Fixed{T: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	incidentSvc := service.NewIncidentService(service.IncidentDependencies{
		IncidentRepo: repo,
		SequenceRepo: noopSequenceRepo{},
		UserRepo:     noopUserRepo{},
		Dispatcher:   dispatcher,
		Clock:        clk,
	})
	s := New(testConfig(), Dependencies{
		IncidentRepo:    repo,
		IncidentService: incidentSvc,
		Dispatcher:      dispatcher,
		Clock:           clk,
		Logger:          zap.NewNop(),
	})
	return &sweepFixture{sweeper: s, repo: repo, dispatcher: dispatcher, clk: clk}
}

func openIncident(id string, priority domain.Priority, state domain.IncidentState, due time.Time, updatedAt time.Time) *domain.Incident {
	assignee := "tech"
	return &domain.Incident{
		ID:         id,
		Number:     "INC" + fmt.Sprintf("%07d", len(id)),
		Priority:   priority,
		State:      state,
		AssigneeID: &assignee,
		DueDate:    &due,
		Version:    1,
		UpdatedAt:  updatedAt,
	}
}

func TestBreachSweepFlagsOverdueOnce(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	overdue := openIncident("inc-1", domain.PriorityCritical, domain.IncidentStateInProgress, now.Add(-time.Hour), now.Add(-2*time.Hour))
	future := openIncident("inc-2", domain.PriorityCritical, domain.IncidentStateNew, now.Add(time.Hour), now)
	f := newSweepFixture(t, overdue, future)

	processed, err := f.sweeper.runBreach(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	stored, err := f.repo.GetByID(context.Background(), "inc-1")
	require.NoError(t, err)
	assert.True(t, stored.SLABreached)

	published := f.dispatcher.published(events.EventSLABreached)
	require.Len(t, published, 1)
	assert.True(t, published[0].Actor.System)
	payload := published[0].Payload.(events.SLABreachedPayload)
	assert.Equal(t, domain.PriorityCritical, payload.Priority)
	require.NotNil(t, payload.AssigneeID)
	assert.Equal(t, "tech", *payload.AssigneeID)

	// the flip is conditional, a second pass emits nothing
	processed, err = f.sweeper.runBreach(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Len(t, f.dispatcher.published(events.EventSLABreached), 1)
}

func TestBreachFlipDoesNotResetStalenessClock(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	stuck := openIncident("inc-1", domain.PriorityCritical, domain.IncidentStateInProgress, now.Add(-time.Hour), now.Add(-3*time.Hour))
	f := newSweepFixture(t, stuck)

	processed, err := f.sweeper.runBreach(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// flagging the breach is bookkeeping, not activity
	stored, err := f.repo.GetByID(context.Background(), "inc-1")
	require.NoError(t, err)
	assert.True(t, stored.SLABreached)
	assert.Equal(t, now.Add(-3*time.Hour), stored.UpdatedAt)

	processed, err = f.sweeper.runStaleness(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	escalated, err := f.repo.GetByID(context.Background(), "inc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateNeedsHelp, escalated.State)
}

func TestBreachSweepListFailure(t *testing.T) {
	f := newSweepFixture(t)
	f.repo.listErr = errors.New("connection reset")

	_, err := f.sweeper.runBreach(context.Background())
	require.Error(t, err)
}

func TestWarningSweepHonorsHorizons(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	// P1 warns one hour out, P2 four hours out
	p1Soon := openIncident("inc-1", domain.PriorityCritical, domain.IncidentStateInProgress, now.Add(30*time.Minute), now)
	p1Later := openIncident("inc-2", domain.PriorityCritical, domain.IncidentStateInProgress, now.Add(2*time.Hour), now)
	p2Soon := openIncident("inc-3", domain.PriorityHigh, domain.IncidentStateNew, now.Add(3*time.Hour), now)
	f := newSweepFixture(t, p1Soon, p1Later, p2Soon)

	processed, err := f.sweeper.runWarning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	published := f.dispatcher.published(events.EventSLAWarning)
	require.Len(t, published, 2)
	warned := map[string]time.Duration{}
	for _, event := range published {
		payload := event.Payload.(events.SLAWarningPayload)
		warned[event.TicketID] = payload.Remaining
	}
	assert.Equal(t, 30*time.Minute, warned["inc-1"])
	assert.Equal(t, 3*time.Hour, warned["inc-3"])
	assert.NotContains(t, warned, "inc-2")
}

func TestWarningSweepSkipsBreachedAndTerminal(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	breached := openIncident("inc-1", domain.PriorityCritical, domain.IncidentStateInProgress, now.Add(30*time.Minute), now)
	breached.SLABreached = true
	resolved := openIncident("inc-2", domain.PriorityCritical, domain.IncidentStateResolved, now.Add(30*time.Minute), now)
	f := newSweepFixture(t, breached, resolved)

	processed, err := f.sweeper.runWarning(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Empty(t, f.dispatcher.published(events.EventSLAWarning))
}

func TestStalenessSweepEscalatesStuckHighPriority(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	// P1 goes stale after two hours of no writes
	staleP1 := openIncident("inc-1", domain.PriorityCritical, domain.IncidentStateInProgress, now.Add(time.Hour), now.Add(-3*time.Hour))
	freshP1 := openIncident("inc-2", domain.PriorityCritical, domain.IncidentStateInProgress, now.Add(time.Hour), now.Add(-time.Hour))
	staleP3 := openIncident("inc-3", domain.PriorityMedium, domain.IncidentStateInProgress, now.Add(time.Hour), now.Add(-48*time.Hour))
	f := newSweepFixture(t, staleP1, freshP1, staleP3)

	processed, err := f.sweeper.runStaleness(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	stored, err := f.repo.GetByID(context.Background(), "inc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateNeedsHelp, stored.State)
	assert.Equal(t, "Auto-escalated due to no activity for 2h0m0s", stored.ResolutionNotes)

	untouched, err := f.repo.GetByID(context.Background(), "inc-2")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateInProgress, untouched.State)

	lowPriority, err := f.repo.GetByID(context.Background(), "inc-3")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateInProgress, lowPriority.State)

	published := f.dispatcher.published(events.EventIncidentEscalated)
	require.Len(t, published, 1)
	assert.True(t, published[0].Actor.System)
	assert.Nil(t, published[0].Actor.UserID)
}

func TestStalenessSweepLosesRaceGracefully(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	// the store already resolved inc-1 after the stale query snapshotted it
	resolved := openIncident("inc-1", domain.PriorityCritical, domain.IncidentStateResolved, now.Add(time.Hour), now)
	stillStale := openIncident("inc-2", domain.PriorityCritical, domain.IncidentStateInProgress, now.Add(time.Hour), now.Add(-3*time.Hour))
	f := newSweepFixture(t, resolved, stillStale)

	snapshot := *resolved
	snapshot.State = domain.IncidentStateInProgress
	f.repo.staleOverride = []domain.Incident{snapshot, *stillStale}

	processed, err := f.sweeper.runStaleness(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	stored, err := f.repo.GetByID(context.Background(), "inc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateResolved, stored.State)

	escalated, err := f.repo.GetByID(context.Background(), "inc-2")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStateNeedsHelp, escalated.State)
}

func TestRunWithRetryRecovers(t *testing.T) {
	f := newSweepFixture(t)
	cfg := testConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelaySeconds = 1
	f.sweeper.cfg = cfg

	calls := 0
	f.sweeper.runWithRetry("breach", func(_ context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 3, nil
	})
	assert.Equal(t, 2, calls)
}

func TestStartDisabled(t *testing.T) {
	f := newSweepFixture(t)
	cfg := testConfig()
	cfg.Enabled = false
	f.sweeper.cfg = cfg

	require.NoError(t, f.sweeper.Start())
	f.sweeper.Stop()
}

func TestStartRejectsBadSpec(t *testing.T) {
	f := newSweepFixture(t)
	cfg := testConfig()
	cfg.BreachSpec = "not a cron spec"
	f.sweeper.cfg = cfg

	require.Error(t, f.sweeper.Start())
}
