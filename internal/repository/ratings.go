package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/rating-disputes/internal/domain"
)

// RatingsRepository stores immutable ratings. There is deliberately no update path.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

const ratingColumns = `id, rated_by_ref, rated_entity_ref, entity_type, categories, comment, created_at`

// RatingCreateParams captures the payload required to store a rating.
type RatingCreateParams struct {
	ID             string
	RatedByRef     string
	RatedEntityRef string
	EntityType     domain.EntityType
	Categories     []domain.Category
	Comment        *string
}

// Create inserts a rating and returns the stored entity.
func (r *RatingsRepository) Create(ctx context.Context, params RatingCreateParams) (domain.Rating, error) {
	categories, err := json.Marshal(params.Categories)
	if err != nil {
		return domain.Rating{}, fmt.Errorf("marshal categories: %w", err)
	}

	query := fmt.Sprintf(`
        INSERT INTO ratings (id, rated_by_ref, rated_entity_ref, entity_type, categories, comment)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING %s
    `, ratingColumns)

	row := r.pool.QueryRow(ctx, query,
		params.ID, params.RatedByRef, params.RatedEntityRef, string(params.EntityType), categories, params.Comment)
	rating, err := scanRating(row)
	if err != nil {
		if isUniqueViolation(err, "ratings_pkey") {
			return domain.Rating{}, ErrDuplicate
		}
		return domain.Rating{}, fmt.Errorf("insert rating: %w", err)
	}
	return rating, nil
}

// Get retrieves a rating by id.
func (r *RatingsRepository) Get(ctx context.Context, id string) (domain.Rating, error) {
	query := fmt.Sprintf(`SELECT %s FROM ratings WHERE id = $1`, ratingColumns)
	rating, err := scanRating(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, fmt.Errorf("get rating: %w", err)
	}
	return rating, nil
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var (
		rating     domain.Rating
		entityType string
		categories []byte
	)
	err := row.Scan(
		&rating.ID,
		&rating.RatedByRef,
		&rating.RatedEntityRef,
		&entityType,
		&categories,
		&rating.Comment,
		&rating.CreatedAt,
	)
	if err != nil {
		return domain.Rating{}, err
	}
	rating.EntityType = domain.EntityType(entityType)
	if err := json.Unmarshal(categories, &rating.Categories); err != nil {
		return domain.Rating{}, fmt.Errorf("decode rating categories: %w", err)
	}
	return rating, nil
}
