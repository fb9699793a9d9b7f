package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
)

// RequestFilter captures listing parameters.
type RequestFilter struct {
	RequesterID *string
	AssigneeID  *string
	States      []domain.RequestState
	Types       []domain.RequestType
	Limit       int
	Offset      int
}

// ServiceRequestRepository encapsulates service-request persistence.
type ServiceRequestRepository interface {
	Create(ctx context.Context, req *domain.ServiceRequest) error
	UpdateVersioned(ctx context.Context, req *domain.ServiceRequest) error
	GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error)
	GetByNumber(ctx context.Context, number string) (*domain.ServiceRequest, error)
	ListWithFilter(ctx context.Context, filter RequestFilter) ([]domain.ServiceRequest, error)
}

type serviceRequestRepository struct {
	pool *pgxpool.Pool
}

// NewServiceRequestRepository instantiates repository.
func NewServiceRequestRepository(pool *pgxpool.Pool) ServiceRequestRepository {
	return &serviceRequestRepository{pool: pool}
}

const requestColumns = `id, number, title, description, location, request_type,
               requested_asset_type, allocated_asset_id, requester_id, approver_id, assignee_id,
               state, approval_notes, approved_at, rejected_at,
               fulfillment_notes, completed_at, version, created_at, updated_at`

func (r *serviceRequestRepository) Create(ctx context.Context, req *domain.ServiceRequest) error {
	const query = `
        INSERT INTO service_requests (number, title, description, location, request_type,
            requested_asset_type, requester_id, state)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, version, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		req.Number,
		req.Title,
		req.Description,
		req.Location,
		req.RequestType,
		req.RequestedAssetType,
		req.RequesterID,
		req.State,
	).Scan(&req.ID, &req.Version, &req.CreatedAt, &req.UpdatedAt)
}

// UpdateVersioned saves the request only if the stored version still matches
// the loaded one. A lost race returns ErrVersionConflict.
func (r *serviceRequestRepository) UpdateVersioned(ctx context.Context, req *domain.ServiceRequest) error {
	const query = `
        UPDATE service_requests SET title=$1, description=$2, location=$3,
            allocated_asset_id=$4, approver_id=$5, assignee_id=$6, state=$7,
            approval_notes=$8, approved_at=$9, rejected_at=$10,
            fulfillment_notes=$11, completed_at=$12, version=version+1, updated_at=NOW()
        WHERE id=$13 AND version=$14
        RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query,
		req.Title,
		req.Description,
		req.Location,
		req.AllocatedAssetID,
		req.ApproverID,
		req.AssigneeID,
		req.State,
		req.ApprovalNotes,
		req.ApprovedAt,
		req.RejectedAt,
		req.FulfillmentNotes,
		req.CompletedAt,
		req.ID,
		req.Version,
	).Scan(&req.Version, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	return err
}

func (r *serviceRequestRepository) GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *serviceRequestRepository) GetByNumber(ctx context.Context, number string) (*domain.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE number=$1`
	return r.fetchSingle(ctx, query, number)
}

func (r *serviceRequestRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.ServiceRequest, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	return scanRequest(row)
}

func (r *serviceRequestRepository) ListWithFilter(ctx context.Context, filter RequestFilter) ([]domain.ServiceRequest, error) {
	base := `SELECT ` + requestColumns + ` FROM service_requests`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
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
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			args = append(args, t)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("request_type IN (%s)", strings.Join(placeholders, ",")))
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
        ORDER BY CASE state WHEN 'completed' THEN 1 ELSE 0 END, created_at DESC
        LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}

func scanRequest(row rowScanner) (*domain.ServiceRequest, error) {
	var req domain.ServiceRequest
	if err := row.Scan(
		&req.ID,
		&req.Number,
		&req.Title,
		&req.Description,
		&req.Location,
		&req.RequestType,
		&req.RequestedAssetType,
		&req.AllocatedAssetID,
		&req.RequesterID,
		&req.ApproverID,
		&req.AssigneeID,
		&req.State,
		&req.ApprovalNotes,
		&req.ApprovedAt,
		&req.RejectedAt,
		&req.FulfillmentNotes,
		&req.CompletedAt,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}
