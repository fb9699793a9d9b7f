package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TicketKind selects which number sequence a ticket draws from.
type TicketKind string

const (
	KindIncident TicketKind = "incident"
	KindRequest  TicketKind = "request"
)

func (k TicketKind) prefix() string {
	if k == KindRequest {
		return "REQ"
	}
	return "INC"
}

// SequenceRepository issues human-readable ticket numbers.
type SequenceRepository interface {
	NextNumber(ctx context.Context, kind TicketKind) (string, error)
}

type sequenceRepository struct {
	pool *pgxpool.Pool
}

// NewSequenceRepository returns a Postgres-backed implementation.
func NewSequenceRepository(pool *pgxpool.Pool) SequenceRepository {
	return &sequenceRepository{pool: pool}
}

// NextNumber atomically increments the per-kind counter and formats the
// result as e.g. INC0000001. The upsert serializes concurrent creations on
// the sequence row, so two tickets can never draw the same number.
func (r *sequenceRepository) NextNumber(ctx context.Context, kind TicketKind) (string, error) {
	const query = `
        INSERT INTO ticket_sequences (kind, last_number)
        VALUES ($1, 1)
        ON CONFLICT (kind) DO UPDATE SET last_number = ticket_sequences.last_number + 1
        RETURNING last_number`

	var n int64
	if err := r.pool.QueryRow(ctx, query, string(kind)).Scan(&n); err != nil {
		return "", err
	}
	return FormatTicketNumber(kind, n), nil
}

// FormatTicketNumber renders a sequence value as a ticket number,
// e.g. INC0000001.
func FormatTicketNumber(kind TicketKind, n int64) string {
	return fmt.Sprintf("%s%07d", kind.prefix(), n)
}
