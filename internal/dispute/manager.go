// Package dispute owns the dispute lifecycle: filing, moderation and listing.
//
// The one-dispute-per-rating-per-disputant rule and the first-writer-wins
// status transition are both enforced by the store. The manager maps store
// outcomes onto the domain error taxonomy and hands side effects to the
// notifier once the write has committed.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Clark-Hu/rating-disputes/internal/domain"
	"github.com/Clark-Hu/rating-disputes/internal/metrics"
	"github.com/Clark-Hu/rating-disputes/internal/repository"
)

// Store persists disputes.
type Store interface {
	Create(ctx context.Context, params repository.DisputeCreateParams) (domain.Dispute, error)
	Get(ctx context.Context, id string) (domain.Dispute, error)
	Transition(ctx context.Context, id string, to domain.DisputeStatus, resolvedBy string) (domain.Dispute, error)
	ListByStatus(ctx context.Context, filters repository.DisputeListFilters) (repository.DisputeListResult, error)
}

// RatingSource resolves the rating a dispute refers to.
type RatingSource interface {
	Get(ctx context.Context, id string) (domain.Rating, error)
}

// Notifier receives committed dispute events. Implementations must not fail
// the caller.
type Notifier interface {
	DisputeCreated(ctx context.Context, d domain.Dispute)
	DisputeStatusChanged(ctx context.Context, d domain.Dispute)
}

// CreateInput is the payload of a new dispute.
type CreateInput struct {
	RatingRef     string            `json:"ratingRef" validate:"required"`
	RatingType    domain.RatingType `json:"ratingType" validate:"oneof=tenant landlord"`
	Categories    []domain.Category `json:"categories" validate:"required,min=1,dive"`
	Reason        string            `json:"reason" validate:"required,max=2000"`
	ReasonType    domain.ReasonType `json:"reasonType" validate:"oneof=out_of_control personal_bias inaccurate_assessment misunderstanding other"`
	DisputedByRef string            `json:"disputedByRef" validate:"required"`
	RatedByRef    string            `json:"ratedByRef" validate:"required"`
}

// Page selects a slice of a listing.
type Page struct {
	Limit  int
	Cursor string
}

// Options configures a Manager.
type Options struct {
	Logger *zap.Logger
	// IDGen mints dispute ids. Defaults to random UUIDs.
	IDGen func() string
}

// Manager implements the dispute workflow.
type Manager struct {
	disputes Store
	ratings  RatingSource
	notifier Notifier
	validate *validator.Validate
	logger   *zap.Logger
	idGen    func() string
}

// NewManager wires a Manager.
func NewManager(disputes Store, ratings RatingSource, notifier Notifier, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idGen := opts.IDGen
	if idGen == nil {
		idGen = uuid.NewString
	}
	return &Manager{
		disputes: disputes,
		ratings:  ratings,
		notifier: notifier,
		validate: newValidator(),
		logger:   logger.Named("dispute"),
		idGen:    idGen,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CreateDispute files a pending dispute and returns its id.
func (m *Manager) CreateDispute(ctx context.Context, in CreateInput) (string, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	in.RatingRef = strings.TrimSpace(in.RatingRef)
	in.Categories = domain.CloneCategories(in.Categories)
	for i := range in.Categories {
		in.Categories[i].Category = strings.TrimSpace(in.Categories[i].Category)
	}

	if err := m.validateInput(in); err != nil {
		metrics.DisputeTransitions.WithLabelValues("create", "invalid").Inc()
		return "", err
	}

	rating, err := m.ratings.Get(ctx, in.RatingRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", &domain.NotFoundError{Kind: "rating", ID: in.RatingRef}
		}
		return "", fmt.Errorf("load rating: %w", err)
	}

	snapshot, err := snapshotCategories(rating, in)
	if err != nil {
		metrics.DisputeTransitions.WithLabelValues("create", "invalid").Inc()
		return "", err
	}

	created, err := m.disputes.Create(ctx, repository.DisputeCreateParams{
		ID:            m.idGen(),
		RatingRef:     rating.ID,
		RatingType:    in.RatingType,
		DisputedByRef: in.DisputedByRef,
		RatedByRef:    rating.RatedByRef,
		Categories:    snapshot,
		Reason:        in.Reason,
		ReasonType:    in.ReasonType,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			metrics.DisputeTransitions.WithLabelValues("create", "duplicate").Inc()
			return "", &domain.AlreadyDisputedError{RatingRef: rating.ID, DisputedByRef: in.DisputedByRef}
		}
		return "", fmt.Errorf("create dispute: %w", err)
	}

	metrics.DisputeTransitions.WithLabelValues("create", "ok").Inc()
	m.logger.Info("dispute filed",
		zap.String("dispute_id", created.ID),
		zap.String("rating_id", created.RatingRef),
		zap.String("disputed_by", created.DisputedByRef),
	)
	m.notifier.DisputeCreated(ctx, created)
	return created.ID, nil
}

func (m *Manager) validateInput(in CreateInput) error {
	err := m.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate dispute: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fieldPath(fe))
	}
	return &domain.ValidationError{Fields: fields}
}

// fieldPath drops the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// snapshotCategories checks the submission against the rating and copies the
// rating's own scores for the disputed categories.
func snapshotCategories(rating domain.Rating, in CreateInput) ([]domain.Category, error) {
	var bad []string
	if in.RatedByRef != rating.RatedByRef {
		bad = append(bad, "ratedByRef")
	}
	if in.DisputedByRef != rating.RatedEntityRef {
		bad = append(bad, "disputedByRef")
	}

	scores := make(map[string]int, len(rating.Categories))
	for _, c := range rating.Categories {
		scores[c.Category] = c.Value
	}
	snapshot := make([]domain.Category, 0, len(in.Categories))
	seen := make(map[string]struct{}, len(in.Categories))
	for i, c := range in.Categories {
		value, ok := scores[c.Category]
		if _, dup := seen[c.Category]; !ok || dup {
			bad = append(bad, fmt.Sprintf("categories[%d].category", i))
			continue
		}
		seen[c.Category] = struct{}{}
		snapshot = append(snapshot, domain.Category{Category: c.Category, Value: value})
	}
	if len(bad) > 0 {
		return nil, &domain.ValidationError{Fields: bad}
	}
	return snapshot, nil
}

// UpdateStatus applies a moderator action to a pending dispute. Only the
// first of concurrent actions wins; later ones get InvalidStateError.
func (m *Manager) UpdateStatus(ctx context.Context, disputeID, action, moderatorRef string) (domain.Dispute, error) {
	act, ok := domain.ParseAction(action)
	if !ok {
		return domain.Dispute{}, &domain.ValidationError{Fields: []string{"action"}}
	}
	if strings.TrimSpace(moderatorRef) == "" {
		return domain.Dispute{}, &domain.ValidationError{Fields: []string{"moderatorRef"}}
	}

	updated, err := m.disputes.Transition(ctx, disputeID, act.TargetStatus(), moderatorRef)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		metrics.DisputeTransitions.WithLabelValues(string(act), "not_found").Inc()
		return domain.Dispute{}, &domain.NotFoundError{Kind: "dispute", ID: disputeID}
	case errors.Is(err, repository.ErrStatusConflict):
		metrics.DisputeTransitions.WithLabelValues(string(act), "conflict").Inc()
		return domain.Dispute{}, &domain.InvalidStateError{DisputeID: disputeID, Status: updated.Status}
	default:
		return domain.Dispute{}, fmt.Errorf("update dispute status: %w", err)
	}

	metrics.DisputeTransitions.WithLabelValues(string(act), "ok").Inc()
	m.logger.Info("dispute resolved",
		zap.String("dispute_id", updated.ID),
		zap.String("status", string(updated.Status)),
		zap.String("moderator", moderatorRef),
	)
	m.notifier.DisputeStatusChanged(ctx, updated)
	return updated, nil
}

// ListByStatus returns disputes newest first. An empty status lists all.
func (m *Manager) ListByStatus(ctx context.Context, status domain.DisputeStatus, page Page) (repository.DisputeListResult, error) {
	filters := repository.DisputeListFilters{Limit: page.Limit}
	if status != "" {
		if !status.Valid() {
			return repository.DisputeListResult{}, &domain.ValidationError{Fields: []string{"status"}}
		}
		filters.Status = &status
	}
	cursor, err := repository.DecodeCursor(page.Cursor)
	if err != nil {
		return repository.DisputeListResult{}, &domain.ValidationError{Fields: []string{"cursor"}}
	}
	filters.Cursor = cursor

	result, err := m.disputes.ListByStatus(ctx, filters)
	if err != nil {
		return repository.DisputeListResult{}, fmt.Errorf("list disputes: %w", err)
	}
	return result, nil
}

// Get returns a single dispute.
func (m *Manager) Get(ctx context.Context, id string) (domain.Dispute, error) {
	d, err := m.disputes.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Dispute{}, &domain.NotFoundError{Kind: "dispute", ID: id}
		}
		return domain.Dispute{}, fmt.Errorf("get dispute: %w", err)
	}
	return d, nil
}
