// Package aggregator merges a recipient's notification streams into one
// deduplicated feed, polls it on an interval and sends at most one email
// alert per fresh item.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Clark-Hu/rating-disputes/internal/domain"
	"github.com/Clark-Hu/rating-disputes/internal/mailer"
	"github.com/Clark-Hu/rating-disputes/internal/metrics"
)

// ErrPollInFlight is returned by Refetch while another poll is running.
var ErrPollInFlight = errors.New("aggregator: poll already in flight")

// Source serves the two notification streams of one recipient.
type Source interface {
	FetchSystem(ctx context.Context) ([]domain.RawNotification, error)
	FetchRating(ctx context.Context) ([]domain.RawNotification, error)
}

// Marker persists read/disputed flips.
type Marker interface {
	MarkRead(ctx context.Context, id string) error
	MarkDisputed(ctx context.Context, id string) error
}

// Mailer sends email alerts.
type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Options configures an Aggregator.
type Options struct {
	Logger *zap.Logger
	// Interval between polls. Defaults to 10s.
	Interval time.Duration
	// Window is how fresh an item must be at first sight to be emailed.
	// Defaults to 10s.
	Window time.Duration
	// PollTimeout bounds a single poll. Defaults to Interval.
	PollTimeout time.Duration
	// EmailTo is the recipient address. Empty disables email alerts.
	EmailTo    string
	EmailRate  rate.Limit
	EmailBurst int
	Ledger     EmailLedger
	Mailer     Mailer
	Now        func() time.Time
}

// Aggregator is the single source of truth for one session's feed.
type Aggregator struct {
	source  Source
	marker  Marker
	logger  *zap.Logger
	opts    Options
	limiter *rate.Limiter
	now     func() time.Time

	inFlight atomic.Bool

	mu        sync.RWMutex
	feed      []domain.Notification
	pending   map[string]Flags
	firstSeen map[string]time.Time
	polled    bool
}

// New builds an Aggregator.
func New(source Source, marker Marker, opts Options) *Aggregator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Window <= 0 {
		opts.Window = 10 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = opts.Interval
	}
	if opts.EmailRate <= 0 {
		opts.EmailRate = rate.Every(time.Second)
	}
	if opts.EmailBurst <= 0 {
		opts.EmailBurst = 5
	}
	if opts.Ledger == nil {
		opts.Ledger = NewMemoryLedger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{
		source:    source,
		marker:    marker,
		logger:    opts.Logger.Named("aggregator"),
		opts:      opts,
		limiter:   rate.NewLimiter(opts.EmailRate, opts.EmailBurst),
		now:       opts.Now,
		pending:   make(map[string]Flags),
		firstSeen: make(map[string]time.Time),
	}
}

// Run polls immediately and then every Interval until ctx is cancelled. A
// tick that lands while the previous poll is still running is skipped.
func (a *Aggregator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	tick := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.poll(ctx); err != nil && !errors.Is(err, ErrPollInFlight) && ctx.Err() == nil {
				a.logger.Warn("poll failed", zap.Error(err))
			}
		}()
	}

	tick()
	ticker := time.NewTicker(a.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick()
		}
	}
}

// Refetch polls now. It returns ErrPollInFlight if a poll is already running.
func (a *Aggregator) Refetch(ctx context.Context) error {
	return a.poll(ctx)
}

func (a *Aggregator) poll(ctx context.Context) error {
	if !a.inFlight.CompareAndSwap(false, true) {
		metrics.AggregatorPolls.WithLabelValues("skipped").Inc()
		return ErrPollInFlight
	}
	defer a.inFlight.Store(false)

	pctx, cancel := context.WithTimeout(ctx, a.opts.PollTimeout)
	defer cancel()

	var system, rating []domain.RawNotification
	g, gctx := errgroup.WithContext(pctx)
	g.Go(func() error {
		items, err := a.source.FetchSystem(gctx)
		if err != nil {
			return fmt.Errorf("fetch system stream: %w", err)
		}
		system = items
		return nil
	})
	g.Go(func() error {
		items, err := a.source.FetchRating(gctx)
		if err != nil {
			return fmt.Errorf("fetch rating stream: %w", err)
		}
		rating = items
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.AggregatorPolls.WithLabelValues("failed").Inc()
		return err
	}

	fresh := a.apply(system, rating)
	metrics.AggregatorPolls.WithLabelValues("ok").Inc()

	a.sendAlerts(ctx, fresh)
	return nil
}

// apply swaps in the new feed and returns the items eligible for an email.
func (a *Aggregator) apply(system, rating []domain.RawNotification) []domain.Notification {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	defaulted := make(map[string]bool)
	normalize := func(raws []domain.RawNotification, stream domain.Stream) []domain.Notification {
		out := make([]domain.Notification, 0, len(raws))
		for _, raw := range raws {
			n, isDefault := Normalize(raw, stream, now)
			if isDefault {
				if first, ok := a.firstSeen[n.ID]; ok {
					n.CreatedAt = first
				} else {
					a.firstSeen[n.ID] = n.CreatedAt
				}
				defaulted[n.ID] = true
			}
			out = append(out, n)
		}
		return out
	}

	merged := Merge(normalize(rating, domain.StreamRating), normalize(system, domain.StreamSystem))
	feed, pending := Reconcile(merged, a.pending)

	prev := make(map[string]struct{}, len(a.feed))
	for _, n := range a.feed {
		prev[n.ID] = struct{}{}
	}
	a.feed = feed
	a.pending = pending
	a.polled = true

	for id := range a.firstSeen {
		if !defaulted[id] {
			delete(a.firstSeen, id)
		}
	}

	var fresh []domain.Notification
	for _, n := range feed {
		if _, known := prev[n.ID]; known {
			continue
		}
		if n.Read || defaulted[n.ID] {
			continue
		}
		if now.Sub(n.CreatedAt) > a.opts.Window {
			continue
		}
		fresh = append(fresh, n)
	}
	if len(fresh) > 0 {
		a.logger.Info("feed updated",
			zap.Int("items", len(feed)),
			zap.Int("fresh", len(fresh)),
			zap.Int("unread", CountUnread(feed)),
		)
	}
	return fresh
}

func (a *Aggregator) sendAlerts(ctx context.Context, fresh []domain.Notification) {
	if a.opts.EmailTo == "" || a.opts.Mailer == nil {
		return
	}
	for _, n := range fresh {
		claimed, err := a.opts.Ledger.Claim(ctx, n.ID)
		if err != nil {
			metrics.EmailAlerts.WithLabelValues("ledger_error").Inc()
			a.logger.Warn("email ledger unavailable", zap.String("id", n.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return
		}
		if err := a.opts.Mailer.Send(ctx, alertMessage(a.opts.EmailTo, n)); err != nil {
			metrics.EmailAlerts.WithLabelValues("failed").Inc()
			a.logger.Warn("email alert failed", zap.String("id", n.ID), zap.Error(err))
			continue
		}
		metrics.EmailAlerts.WithLabelValues("sent").Inc()
	}
}

func alertMessage(to string, n domain.Notification) mailer.Message {
	subject := "New notification"
	switch n.Type {
	case domain.TypeNewRating:
		subject = "You received a new rating"
	case domain.TypeDisputeSubmitted:
		subject = "A dispute needs review"
	case domain.TypeDisputeReceived:
		subject = "Your dispute was received"
	case domain.TypeDisputeApproved, domain.TypeDisputeRejected:
		subject = "Your dispute was resolved"
	case domain.TypeViewingRequest:
		subject = "New viewing request"
	}
	return mailer.Message{To: to, Subject: subject, Body: n.Message}
}

// Feed returns a copy of the current feed, newest first.
func (a *Aggregator) Feed() []domain.Notification {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.Notification, len(a.feed))
	copy(out, a.feed)
	return out
}

// UnreadCount counts unread items in the current feed.
func (a *Aggregator) UnreadCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return CountUnread(a.feed)
}

// Ready reports whether at least one poll has completed.
func (a *Aggregator) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.polled
}

// MarkRead flips the item to read locally and on the server. The local flip
// survives polls until the server reports it.
func (a *Aggregator) MarkRead(ctx context.Context, id string) error {
	return a.flip(ctx, id, func(n *domain.Notification, f *Flags) bool {
		if n.Read {
			return false
		}
		n.Read, f.Read = true, true
		return true
	}, func(n *domain.Notification, f *Flags) {
		n.Read, f.Read = false, false
	}, a.marker.MarkRead)
}

// MarkDisputed flips the disputed flag on a rating notification.
func (a *Aggregator) MarkDisputed(ctx context.Context, id string) error {
	return a.flip(ctx, id, func(n *domain.Notification, f *Flags) bool {
		if n.Disputed {
			return false
		}
		n.Disputed, f.Disputed = true, true
		return true
	}, func(n *domain.Notification, f *Flags) {
		n.Disputed, f.Disputed = false, false
	}, a.marker.MarkDisputed)
}

func (a *Aggregator) flip(
	ctx context.Context,
	id string,
	set func(*domain.Notification, *Flags) bool,
	undo func(*domain.Notification, *Flags),
	persist func(context.Context, string) error,
) error {
	a.mu.Lock()
	idx := a.indexOf(id)
	if idx < 0 {
		a.mu.Unlock()
		return &domain.NotFoundError{Kind: "notification", ID: id}
	}
	flags := a.pending[id]
	changed := set(&a.feed[idx], &flags)
	if changed {
		a.pending[id] = flags
	}
	a.mu.Unlock()

	if !changed {
		return nil
	}
	if err := persist(ctx, id); err != nil {
		a.mu.Lock()
		if i := a.indexOf(id); i >= 0 {
			f := a.pending[id]
			undo(&a.feed[i], &f)
			if f == (Flags{}) {
				delete(a.pending, id)
			} else {
				a.pending[id] = f
			}
		}
		a.mu.Unlock()
		return err
	}
	return nil
}

func (a *Aggregator) indexOf(id string) int {
	for i := range a.feed {
		if a.feed[i].ID == id {
			return i
		}
	}
	return -1
}
