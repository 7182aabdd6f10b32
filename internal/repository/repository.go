package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/rating-disputes/internal/store"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a uniqueness constraint rejected the insert.
	ErrDuplicate = errors.New("repository: duplicate")
	// ErrStatusConflict indicates a conditional update found the row in another state.
	ErrStatusConflict = errors.New("repository: status conflict")
)

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Ratings       *RatingsRepository
	Disputes      *DisputesRepository
	Notifications *NotificationsRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Ratings:       &RatingsRepository{pool: pool},
		Disputes:      &DisputesRepository{pool: pool},
		Notifications: &NotificationsRepository{pool: pool},
	}
}
