package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/merturl4576/pyservice-mini-itsm/internal/config"
	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
	"github.com/merturl4576/pyservice-mini-itsm/internal/events"
	"github.com/merturl4576/pyservice-mini-itsm/internal/observability"
	"github.com/merturl4576/pyservice-mini-itsm/internal/repository"
	"github.com/merturl4576/pyservice-mini-itsm/internal/service"
	"github.com/merturl4576/pyservice-mini-itsm/pkg/clock"
)

// warningHorizons maps priority to how far ahead of the due date a
// warning fires.
var warningHorizons = map[domain.Priority]time.Duration{
	domain.PriorityCritical: time.Hour,
	domain.PriorityHigh:     4 * time.Hour,
	domain.PriorityMedium:   12 * time.Hour,
	domain.PriorityLow:      12 * time.Hour,
}

// staleThresholds maps priority to how long an in-progress incident may
// sit without activity before auto-escalation. Only P1 and P2 escalate.
var staleThresholds = map[domain.Priority]time.Duration{
	domain.PriorityCritical: 2 * time.Hour,
	domain.PriorityHigh:     8 * time.Hour,
}

// Sweeper runs the periodic SLA evaluation passes: breach detection,
// pre-deadline warnings and staleness escalation, each on its own
// cadence. A cycle that is still running when the next tick fires is
// skipped rather than stacked.
type Sweeper struct {
	incidents   repository.IncidentRepository
	incidentSvc *service.IncidentService
	dispatcher  events.Dispatcher
	clock       clock.Clock
	logger      *zap.Logger
	metrics     *observability.Metrics
	cfg         config.SweeperConfig
	cron        *cron.Cron
}

// Dependencies bundles collaborators for the sweeper.
type Dependencies struct {
	IncidentRepo    repository.IncidentRepository
	IncidentService *service.IncidentService
	Dispatcher      events.Dispatcher
	Clock           clock.Clock
	Logger          *zap.Logger
	Metrics         *observability.Metrics
}

// New constructs the sweeper without starting it.
func New(cfg config.SweeperConfig, deps Dependencies) *Sweeper {
	s := &Sweeper{
		incidents:   deps.IncidentRepo,
		incidentSvc: deps.IncidentService,
		dispatcher:  deps.Dispatcher,
		clock:       deps.Clock,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		cfg:         cfg,
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	return s
}

// Start registers the three cadences and launches the scheduler.
func (s *Sweeper) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("sweeper disabled")
		return nil
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))

	jobs := []struct {
		spec string
		name string
		run  func(context.Context) (int, error)
	}{
		{s.cfg.BreachSpec, "breach", s.runBreach},
		{s.cfg.WarningSpec, "warning", s.runWarning},
		{s.cfg.StalenessSpec, "staleness", s.runStaleness},
	}
	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { s.runWithRetry(job.name, job.run) }); err != nil {
			return fmt.Errorf("schedule %s sweep: %w", job.name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("sweeper started",
		zap.String("breach", s.cfg.BreachSpec),
		zap.String("warning", s.cfg.WarningSpec),
		zap.String("staleness", s.cfg.StalenessSpec))
	return nil
}

// Stop halts the scheduler and waits for any running cycle.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("sweeper stopped")
}

// runWithRetry gives each cycle a wall-clock budget and retries a
// whole-run failure with doubling delay. Per-ticket failures inside
// the run are isolated and do not count as run failures.
func (s *Sweeper) runWithRetry(name string, run func(context.Context) (int, error)) {
	delay := s.cfg.RetryDelay()
	attempts := s.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunBudget())
		processed, err := run(ctx)
		cancel()

		if s.metrics != nil {
			s.metrics.RecordSweep(name, processed)
		}
		if err == nil {
			if processed > 0 {
				s.logger.Info("sweep pass done",
					zap.String("sweep", name),
					zap.Int("processed", processed))
			}
			return
		}

		s.logger.Error("sweep pass failed",
			zap.String("sweep", name),
			zap.Int("attempt", attempt),
			zap.Int("processed", processed),
			zap.Error(err))
		if attempt < attempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
}

// runBreach flips slaBreached on open incidents past their due date.
// The flip is a conditional update, so re-running over an already
// flagged incident is a no-op and emits nothing.
func (s *Sweeper) runBreach(ctx context.Context) (int, error) {
	now := s.clock.Now()
	candidates, err := s.incidents.ListBreachCandidates(ctx, now, s.cfg.BatchLimit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("breach sweep out of budget",
				zap.Int("remaining", len(candidates)-i))
			return processed, nil
		}
		inc := &candidates[i]

		flipped, err := s.incidents.MarkBreached(ctx, inc.ID)
		if err != nil {
			s.logger.Error("breach flag failed",
				zap.String("incident_id", inc.ID),
				zap.String("number", inc.Number),
				zap.Error(err))
			continue
		}
		if !flipped {
			continue
		}
		processed++

		s.publish(ctx, events.Event{
			Type:     events.EventSLABreached,
			TicketID: inc.ID,
			Actor:    events.SystemActor(),
			Payload: events.SLABreachedPayload{
				Number:     inc.Number,
				Priority:   inc.Priority,
				AssigneeID: inc.AssigneeID,
				DueDate:    *inc.DueDate,
			},
		})
	}
	return processed, nil
}

// runWarning emits a warning for open, non-breached incidents whose due
// date falls inside the priority's warning horizon. Per-assignee dedup
// lives in the notification layer.
func (s *Sweeper) runWarning(ctx context.Context) (int, error) {
	now := s.clock.Now()
	processed := 0

	for priority, horizon := range warningHorizons {
		candidates, err := s.incidents.ListWarningCandidates(ctx, priority, now, now.Add(horizon), s.cfg.BatchLimit)
		if err != nil {
			return processed, err
		}
		for i := range candidates {
			if err := ctx.Err(); err != nil {
				s.logger.Warn("warning sweep out of budget",
					zap.Int("remaining", len(candidates)-i))
				return processed, nil
			}
			inc := &candidates[i]
			processed++

			s.publish(ctx, events.Event{
				Type:     events.EventSLAWarning,
				TicketID: inc.ID,
				Actor:    events.SystemActor(),
				Payload: events.SLAWarningPayload{
					Number:     inc.Number,
					Priority:   inc.Priority,
					AssigneeID: inc.AssigneeID,
					DueDate:    *inc.DueDate,
					Remaining:  inc.DueDate.Sub(now),
				},
			})
		}
	}
	return processed, nil
}

// runStaleness auto-escalates P1/P2 incidents stuck in in_progress with
// no writes past the threshold. A failure on one incident leaves the
// rest of the batch processing.
func (s *Sweeper) runStaleness(ctx context.Context) (int, error) {
	now := s.clock.Now()
	processed := 0

	for priority, threshold := range staleThresholds {
		candidates, err := s.incidents.ListStale(ctx, priority, now.Add(-threshold), s.cfg.BatchLimit)
		if err != nil {
			return processed, err
		}
		for i := range candidates {
			if err := ctx.Err(); err != nil {
				s.logger.Warn("staleness sweep out of budget",
					zap.Int("remaining", len(candidates)-i))
				return processed, nil
			}
			inc := &candidates[i]

			note := fmt.Sprintf("Auto-escalated due to no activity for %s", threshold)
			if _, err := s.incidentSvc.EscalateBySystem(ctx, inc.ID, note); err != nil {
				// A concurrent claim or resolve between the query and
				// the escalate loses the race legitimately.
				s.logger.Warn("staleness escalation skipped",
					zap.String("incident_id", inc.ID),
					zap.String("number", inc.Number),
					zap.Error(err))
				continue
			}
			processed++
		}
	}
	return processed, nil
}

func (s *Sweeper) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
