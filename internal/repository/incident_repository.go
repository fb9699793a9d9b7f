package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
)

// ErrVersionConflict signals an optimistic-lock failure: the row changed
// between load and save.
var ErrVersionConflict = errors.New("version conflict")

// IncidentFilter captures listing parameters.
type IncidentFilter struct {
	CallerID   *string
	AssigneeID *string
	States     []domain.IncidentState
	Priorities []domain.Priority
	Breached   *bool
	Limit      int
	Offset     int
}

// IncidentRepository encapsulates incident persistence.
type IncidentRepository interface {
	Create(ctx context.Context, inc *domain.Incident) error
	UpdateVersioned(ctx context.Context, inc *domain.Incident) error
	GetByID(ctx context.Context, id string) (*domain.Incident, error)
	GetByNumber(ctx context.Context, number string) (*domain.Incident, error)
	ListWithFilter(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error)
	ListBreachCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Incident, error)
	MarkBreached(ctx context.Context, id string) (bool, error)
	ListWarningCandidates(ctx context.Context, priority domain.Priority, now, horizon time.Time, limit int) ([]domain.Incident, error)
	ListStale(ctx context.Context, priority domain.Priority, cutoff time.Time, limit int) ([]domain.Incident, error)
}

type incidentRepository struct {
	pool *pgxpool.Pool
}

// NewIncidentRepository instantiates repository.
func NewIncidentRepository(pool *pgxpool.Pool) IncidentRepository {
	return &incidentRepository{pool: pool}
}

const incidentColumns = `id, number, title, description, location, caller_id, assignee_id,
               impact, urgency, priority, state, due_date, sla_breached,
               resolution_notes, resolved_at, version, created_at, updated_at`

func (r *incidentRepository) Create(ctx context.Context, inc *domain.Incident) error {
	const query = `
        INSERT INTO incidents (number, title, description, location, caller_id, assignee_id,
            impact, urgency, priority, state, due_date, sla_breached, resolution_notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, version, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		inc.Number,
		inc.Title,
		inc.Description,
		inc.Location,
		inc.CallerID,
		inc.AssigneeID,
		inc.Impact,
		inc.Urgency,
		inc.Priority,
		inc.State,
		inc.DueDate,
		inc.SLABreached,
		inc.ResolutionNotes,
	).Scan(&inc.ID, &inc.Version, &inc.CreatedAt, &inc.UpdatedAt)
}

// UpdateVersioned saves the incident only if the stored version still matches
// the loaded one; the version is bumped on success. A lost race returns
// ErrVersionConflict and the caller reloads and retries.
func (r *incidentRepository) UpdateVersioned(ctx context.Context, inc *domain.Incident) error {
	const query = `
        UPDATE incidents SET title=$1, description=$2, location=$3, assignee_id=$4,
            impact=$5, urgency=$6, priority=$7, state=$8, sla_breached=$9,
            resolution_notes=$10, resolved_at=$11, version=version+1, updated_at=NOW()
        WHERE id=$12 AND version=$13
        RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query,
		inc.Title,
		inc.Description,
		inc.Location,
		inc.AssigneeID,
		inc.Impact,
		inc.Urgency,
		inc.Priority,
		inc.State,
		inc.SLABreached,
		inc.ResolutionNotes,
		inc.ResolvedAt,
		inc.ID,
		inc.Version,
	).Scan(&inc.Version, &inc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	return err
}

func (r *incidentRepository) GetByID(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *incidentRepository) GetByNumber(ctx context.Context, number string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE number=$1`
	return r.fetchSingle(ctx, query, number)
}

func (r *incidentRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Incident, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	return scanIncident(row)
}

func (r *incidentRepository) ListWithFilter(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error) {
	base := `SELECT ` + incidentColumns + ` FROM incidents`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CallerID != nil {
		args = append(args, *filter.CallerID)
		clauses = append(clauses, fmt.Sprintf("caller_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Breached != nil {
		args = append(args, *filter.Breached)
		clauses = append(clauses, fmt.Sprintf("sla_breached=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s
        ORDER BY CASE state WHEN 'resolved' THEN 1 WHEN 'closed' THEN 2 ELSE 0 END,
                 priority, created_at DESC
        LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIncidents(rows)
}

// ListBreachCandidates returns open incidents past their deadline that have
// not been flagged yet.
func (r *incidentRepository) ListBreachCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents
        WHERE state NOT IN ('resolved','closed')
          AND sla_breached = FALSE
          AND due_date < $1
        ORDER BY due_date
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIncidents(rows)
}

// MarkBreached flips the breach flag. The flip is conditional so re-running
// a sweep over an already-flagged incident is a no-op; the bool reports
// whether this call performed the flip. updated_at is left alone: the flag
// is bookkeeping, not activity, and must not reset the staleness clock.
func (r *incidentRepository) MarkBreached(ctx context.Context, id string) (bool, error) {
	const query = `
        UPDATE incidents SET sla_breached=TRUE
        WHERE id=$1 AND sla_breached=FALSE AND state NOT IN ('resolved','closed')`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// ListWarningCandidates returns open, non-breached incidents of the given
// priority whose deadline falls within (now, horizon].
func (r *incidentRepository) ListWarningCandidates(ctx context.Context, priority domain.Priority, now, horizon time.Time, limit int) ([]domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents
        WHERE state IN ('new','in_progress')
          AND sla_breached = FALSE
          AND priority = $1
          AND due_date > $2
          AND due_date <= $3
        ORDER BY due_date
        LIMIT $4`
	rows, err := r.pool.Query(ctx, query, priority, now, horizon, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIncidents(rows)
}

// ListStale returns in-progress incidents of the given priority untouched
// since cutoff.
func (r *incidentRepository) ListStale(ctx context.Context, priority domain.Priority, cutoff time.Time, limit int) ([]domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents
        WHERE state = 'in_progress'
          AND priority = $1
          AND updated_at < $2
        ORDER BY updated_at
        LIMIT $3`
	rows, err := r.pool.Query(ctx, query, priority, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIncidents(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*domain.Incident, error) {
	var inc domain.Incident
	if err := row.Scan(
		&inc.ID,
		&inc.Number,
		&inc.Title,
		&inc.Description,
		&inc.Location,
		&inc.CallerID,
		&inc.AssigneeID,
		&inc.Impact,
		&inc.Urgency,
		&inc.Priority,
		&inc.State,
		&inc.DueDate,
		&inc.SLABreached,
		&inc.ResolutionNotes,
		&inc.ResolvedAt,
		&inc.Version,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &inc, nil
}

func scanIncidents(rows pgx.Rows) ([]domain.Incident, error) {
	var result []domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inc)
	}
	return result, rows.Err()
}
