package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/rating-disputes/internal/domain"
)

// DisputesRepository persists disputes. Uniqueness per (rating, disputant) and
// first-writer-wins transitions are enforced in SQL, not in Go.
type DisputesRepository struct {
	pool *pgxpool.Pool
}

const disputeColumns = `
    id,
    rating_ref,
    rating_type,
    disputed_by_ref,
    rated_by_ref,
    categories,
    reason,
    reason_type,
    status,
    resolved_by,
    created_at,
    updated_at,
    resolved_at
`

const disputeUniqueConstraint = "disputes_rating_disputant_key"

// DisputeCreateParams bundles the fields required to file a dispute.
type DisputeCreateParams struct {
	ID            string
	RatingRef     string
	RatingType    domain.RatingType
	DisputedByRef string
	RatedByRef    string
	Categories    []domain.Category
	Reason        string
	ReasonType    domain.ReasonType
}

// DisputeListFilters encapsulates status filtering and pagination.
type DisputeListFilters struct {
	Status *domain.DisputeStatus
	Limit  int
	Cursor *Cursor
}

// DisputeListResult returns the paginated payload.
type DisputeListResult struct {
	Items      []domain.Dispute
	NextCursor *string
}

// Create inserts a pending dispute. A second dispute by the same disputant on
// the same rating returns ErrDuplicate.
func (r *DisputesRepository) Create(ctx context.Context, params DisputeCreateParams) (domain.Dispute, error) {
	categories, err := json.Marshal(params.Categories)
	if err != nil {
		return domain.Dispute{}, fmt.Errorf("marshal categories: %w", err)
	}

	query := fmt.Sprintf(`
        INSERT INTO disputes (id, rating_ref, rating_type, disputed_by_ref, rated_by_ref, categories, reason, reason_type)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING %s
    `, disputeColumns)

	row := r.pool.QueryRow(ctx, query,
		params.ID,
		params.RatingRef,
		string(params.RatingType),
		params.DisputedByRef,
		params.RatedByRef,
		categories,
		params.Reason,
		string(params.ReasonType),
	)
	dispute, err := scanDispute(row)
	if err != nil {
		if isUniqueViolation(err, disputeUniqueConstraint) {
			return domain.Dispute{}, ErrDuplicate
		}
		return domain.Dispute{}, fmt.Errorf("insert dispute: %w", err)
	}
	return dispute, nil
}

// Get fetches a dispute by its identifier.
func (r *DisputesRepository) Get(ctx context.Context, id string) (domain.Dispute, error) {
	query := fmt.Sprintf(`SELECT %s FROM disputes WHERE id = $1`, disputeColumns)
	dispute, err := scanDispute(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Dispute{}, ErrNotFound
		}
		return domain.Dispute{}, fmt.Errorf("get dispute: %w", err)
	}
	return dispute, nil
}

// Transition moves a pending dispute to the target status. Only the first of
// concurrent callers succeeds. When the dispute is no longer pending the
// current record is returned together with ErrStatusConflict.
func (r *DisputesRepository) Transition(ctx context.Context, id string, to domain.DisputeStatus, resolvedBy string) (domain.Dispute, error) {
	query := fmt.Sprintf(`
        UPDATE disputes
        SET status = $2,
            resolved_by = $3,
            resolved_at = now(),
            updated_at = now()
        WHERE id = $1 AND status = 'pending'
        RETURNING %s
    `, disputeColumns)

	dispute, err := scanDispute(r.pool.QueryRow(ctx, query, id, string(to), resolvedBy))
	if err == nil {
		return dispute, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Dispute{}, fmt.Errorf("transition dispute: %w", err)
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return domain.Dispute{}, err
	}
	return current, ErrStatusConflict
}

// ListByStatus returns disputes newest first, optionally filtered by status.
func (r *DisputesRepository) ListByStatus(ctx context.Context, filters DisputeListFilters) (DisputeListResult, error) {
	filters.Limit = clampLimit(filters.Limit, 20, 100)

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Status != nil {
		where = append(where, fmt.Sprintf("status = %s", arg(string(*filters.Status))))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", cursorCreated, cursorID))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(disputeColumns)
	queryBuilder.WriteString(" FROM disputes")
	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(where, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return DisputeListResult{}, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Dispute, 0)
	for rows.Next() {
		dispute, err := scanDispute(rows)
		if err != nil {
			return DisputeListResult{}, err
		}
		items = append(items, dispute)
	}
	if err := rows.Err(); err != nil {
		return DisputeListResult{}, err
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := encodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return DisputeListResult{}, err
		}
		nextCursor = &token
	}
	return DisputeListResult{Items: items, NextCursor: nextCursor}, nil
}

// CountForPair reports how many disputes exist for the rating/disputant pair.
func (r *DisputesRepository) CountForPair(ctx context.Context, ratingRef, disputedByRef string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM disputes WHERE rating_ref = $1 AND disputed_by_ref = $2`,
		ratingRef, disputedByRef).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count disputes: %w", err)
	}
	return n, nil
}

func scanDispute(row pgx.Row) (domain.Dispute, error) {
	var (
		dispute    domain.Dispute
		ratingType string
		reasonType string
		status     string
		categories []byte
		resolvedAt *time.Time
	)

	err := row.Scan(
		&dispute.ID,
		&dispute.RatingRef,
		&ratingType,
		&dispute.DisputedByRef,
		&dispute.RatedByRef,
		&categories,
		&dispute.Reason,
		&reasonType,
		&status,
		&dispute.ResolvedBy,
		&dispute.CreatedAt,
		&dispute.UpdatedAt,
		&resolvedAt,
	)
	if err != nil {
		return domain.Dispute{}, err
	}

	dispute.RatingType = domain.RatingType(ratingType)
	dispute.ReasonType = domain.ReasonType(reasonType)
	dispute.Status = domain.DisputeStatus(status)
	dispute.ResolvedAt = resolvedAt
	if err := json.Unmarshal(categories, &dispute.Categories); err != nil {
		return domain.Dispute{}, fmt.Errorf("decode dispute categories: %w", err)
	}
	return dispute, nil
}
