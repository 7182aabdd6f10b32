// Package fanout turns rating and dispute events into recipient notifications.
//
// Delivery is best effort. A failed write is logged and counted, then
// dropped; it never fails the operation that triggered it.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Clark-Hu/rating-disputes/internal/domain"
	"github.com/Clark-Hu/rating-disputes/internal/metrics"
	"github.com/Clark-Hu/rating-disputes/internal/repository"
)

// Store is the recipient mailbox.
type Store interface {
	Create(ctx context.Context, params repository.NotificationCreateParams) (domain.Notification, error)
	MarkRatingDisputed(ctx context.Context, recipientRef, ratingID string) (int64, error)
}

// Options configures a Fanout.
type Options struct {
	Logger *zap.Logger
	// Timeout bounds each delivery. Defaults to 5s.
	Timeout time.Duration
	// SupportContact is quoted in dispute outcome notifications.
	SupportContact string
	IDGen          func() string
}

// Fanout delivers notifications for domain events.
type Fanout struct {
	store          Store
	moderators     ModeratorResolver
	logger         *zap.Logger
	timeout        time.Duration
	supportContact string
	idGen          func() string
}

// New builds a Fanout.
func New(store Store, moderators ModeratorResolver, opts Options) *Fanout {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.IDGen == nil {
		opts.IDGen = uuid.NewString
	}
	if moderators == nil {
		moderators = StaticModerators(nil)
	}
	return &Fanout{
		store:          store,
		moderators:     moderators,
		logger:         logger.Named("fanout"),
		timeout:        opts.Timeout,
		supportContact: opts.SupportContact,
		idGen:          opts.IDGen,
	}
}

// RatingCreated notifies the rated party of a new rating.
func (f *Fanout) RatingCreated(ctx context.Context, r domain.Rating) {
	_ = f.deliver(ctx, domain.TypeNewRating, r.RatedEntityRef,
		fmt.Sprintf("You received a new %s rating", r.EntityType),
		domain.NewRatingData{
			RatingID:   r.ID,
			EntityType: r.EntityType,
			RatedBy:    domain.Party{Ref: r.RatedByRef},
			Categories: domain.CloneCategories(r.Categories),
			Comment:    r.Comment,
		})
}

// DisputeCreated alerts every moderator and confirms receipt to the disputant.
func (f *Fanout) DisputeCreated(ctx context.Context, d domain.Dispute) {
	moderators, err := f.resolveModerators(ctx)
	if err != nil {
		f.failed(&domain.NotificationDeliveryError{Type: domain.TypeDisputeSubmitted, Recipient: "moderators", Err: err})
	}
	submitted := domain.DisputeSubmittedData{
		DisputeID:  d.ID,
		RatingID:   d.RatingRef,
		RatingType: d.RatingType,
		DisputedBy: domain.Party{Ref: d.DisputedByRef},
		RatedBy:    domain.Party{Ref: d.RatedByRef},
		Categories: domain.CloneCategories(d.Categories),
		Reason:     d.Reason,
		ReasonType: d.ReasonType,
	}
	for _, m := range moderators {
		_ = f.deliver(ctx, domain.TypeDisputeSubmitted, m, "A rating dispute is waiting for review", submitted)
	}

	_ = f.deliver(ctx, domain.TypeDisputeReceived, d.DisputedByRef,
		"We received your dispute and will review it shortly",
		domain.DisputeReceivedData{
			DisputeID:  d.ID,
			RatingID:   d.RatingRef,
			RatedBy:    domain.Party{Ref: d.RatedByRef},
			Categories: domain.CloneCategories(d.Categories),
			Reason:     d.Reason,
			ReasonType: d.ReasonType,
		})

	f.markRatingDisputed(ctx, d)
}

// DisputeStatusChanged tells the disputant how their dispute was resolved.
func (f *Fanout) DisputeStatusChanged(ctx context.Context, d domain.Dispute) {
	var (
		typ     domain.NotificationType
		message string
	)
	switch d.Status {
	case domain.StatusApproved:
		typ = domain.TypeDisputeApproved
		message = "Your dispute was approved and the rating will be reviewed"
	case domain.StatusRejected:
		typ = domain.TypeDisputeRejected
		message = "Your dispute was rejected"
		if f.supportContact != "" {
			message += ". Contact " + f.supportContact + " if you have questions"
		}
	default:
		f.logger.Warn("status notification skipped for non-terminal dispute",
			zap.String("dispute_id", d.ID), zap.String("status", string(d.Status)))
		return
	}
	_ = f.deliver(ctx, typ, d.DisputedByRef, message, domain.DisputeStatusData{
		DisputeID:      d.ID,
		RatingID:       d.RatingRef,
		Status:         d.Status,
		SupportContact: f.supportContact,
	})
}

// NotifyInput is an explicitly requested notification.
type NotifyInput struct {
	RecipientRef string
	Type         domain.NotificationType
	Message      string
	Data         json.RawMessage
}

// Notify stores an explicitly requested notification. Unlike the event hooks
// the write is the caller's primary operation, so its error is returned.
func (f *Fanout) Notify(ctx context.Context, in NotifyInput) (domain.Notification, error) {
	var bad []string
	if strings.TrimSpace(in.RecipientRef) == "" {
		bad = append(bad, "recipientRef")
	}
	if !in.Type.Known() {
		bad = append(bad, "type")
	}
	if strings.TrimSpace(in.Message) == "" {
		bad = append(bad, "message")
	}
	if len(in.Data) > 0 && !json.Valid(in.Data) {
		bad = append(bad, "data")
	}
	if len(bad) > 0 {
		return domain.Notification{}, &domain.ValidationError{Fields: bad}
	}

	n, err := f.store.Create(ctx, repository.NotificationCreateParams{
		ID:           f.idGen(),
		RecipientRef: in.RecipientRef,
		Type:         in.Type,
		Message:      strings.TrimSpace(in.Message),
		Data:         in.Data,
	})
	if err != nil {
		metrics.NotificationsDelivered.WithLabelValues(string(in.Type), "failed").Inc()
		return domain.Notification{}, &domain.NotificationDeliveryError{Type: in.Type, Recipient: in.RecipientRef, Err: err}
	}
	metrics.NotificationsDelivered.WithLabelValues(string(in.Type), "ok").Inc()
	return n, nil
}

// deliver writes one notification on a context detached from the caller so
// a finished request does not abort it.
func (f *Fanout) deliver(ctx context.Context, typ domain.NotificationType, recipient, message string, payload any) error {
	if strings.TrimSpace(recipient) == "" {
		err := &domain.NotificationDeliveryError{Type: typ, Recipient: recipient, Err: fmt.Errorf("empty recipient")}
		f.failed(err)
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		derr := &domain.NotificationDeliveryError{Type: typ, Recipient: recipient, Err: err}
		f.failed(derr)
		return derr
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()
	n, err := f.store.Create(dctx, repository.NotificationCreateParams{
		ID:           f.idGen(),
		RecipientRef: recipient,
		Type:         typ,
		Message:      message,
		Data:         data,
	})
	if err != nil {
		derr := &domain.NotificationDeliveryError{Type: typ, Recipient: recipient, Err: err}
		f.failed(derr)
		return derr
	}
	metrics.NotificationsDelivered.WithLabelValues(string(typ), "ok").Inc()
	f.logger.Debug("notification delivered",
		zap.String("id", n.ID),
		zap.String("type", string(typ)),
		zap.String("recipient", recipient),
	)
	return nil
}

func (f *Fanout) failed(err *domain.NotificationDeliveryError) {
	metrics.NotificationsDelivered.WithLabelValues(string(err.Type), "failed").Inc()
	f.logger.Error("notification delivery failed",
		zap.String("type", string(err.Type)),
		zap.String("recipient", err.Recipient),
		zap.Error(err),
	)
}

func (f *Fanout) resolveModerators(ctx context.Context) ([]string, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()
	ids, err := f.moderators.Moderators(rctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		f.logger.Warn("no moderators configured")
	}
	return out, nil
}

// markRatingDisputed mirrors the new dispute onto the disputant's
// new_rating notification. Dispute.Status stays authoritative.
func (f *Fanout) markRatingDisputed(ctx context.Context, d domain.Dispute) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()
	if _, err := f.store.MarkRatingDisputed(dctx, d.DisputedByRef, d.RatingRef); err != nil {
		f.logger.Warn("mark rating notification disputed",
			zap.String("dispute_id", d.ID),
			zap.Error(err),
		)
	}
}
