package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Clark-Hu/rating-disputes/internal/domain"
	"github.com/Clark-Hu/rating-disputes/internal/repository"
)

type memMailbox struct {
	mu       sync.Mutex
	items    []repository.NotificationCreateParams
	failFor  map[string]bool
	disputed [][2]string
	ctxErr   error
}

func (m *memMailbox) Create(ctx context.Context, p repository.NotificationCreateParams) (domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		m.ctxErr = err
		return domain.Notification{}, err
	}
	if m.failFor[p.RecipientRef] {
		return domain.Notification{}, errors.New("connection refused")
	}
	m.items = append(m.items, p)
	return domain.Notification{ID: p.ID, RecipientRef: p.RecipientRef, Type: p.Type, Message: p.Message, Data: p.Data}, nil
}

func (m *memMailbox) MarkRatingDisputed(_ context.Context, recipient, ratingID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disputed = append(m.disputed, [2]string{recipient, ratingID})
	return 1, nil
}

func (m *memMailbox) byType(typ domain.NotificationType) []repository.NotificationCreateParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.NotificationCreateParams
	for _, p := range m.items {
		if p.Type == typ {
			out = append(out, p)
		}
	}
	return out
}

func sampleDispute() domain.Dispute {
	return domain.Dispute{
		ID:            "d1",
		RatingRef:     "r1",
		RatingType:    domain.RatingTypeTenant,
		DisputedByRef: "U2",
		RatedByRef:    "U1",
		Categories:    []domain.Category{{Category: "communication", Value: 4}},
		Reason:        "unfair",
		ReasonType:    domain.ReasonOther,
		Status:        domain.StatusPending,
	}
}

func TestRatingCreatedAddressesRatedParty(t *testing.T) {
	box := &memMailbox{}
	f := New(box, nil, Options{})
	comment := "good tenant"

	f.RatingCreated(context.Background(), domain.Rating{
		ID: "r1", RatedByRef: "L1", RatedEntityRef: "U2", EntityType: domain.EntityTenant,
		Categories: []domain.Category{{Category: "communication", Value: 4}}, Comment: &comment,
	})

	items := box.byType(domain.TypeNewRating)
	require.Len(t, items, 1)
	assert.Equal(t, "U2", items[0].RecipientRef)

	var data domain.NewRatingData
	require.NoError(t, json.Unmarshal(items[0].Data, &data))
	assert.Equal(t, "r1", data.RatingID)
	assert.Equal(t, "L1", data.RatedBy.Ref)
	assert.Equal(t, "good tenant", *data.Comment)
	assert.Len(t, data.Categories, 1)
}

func TestDisputeCreatedFansOutToModeratorsAndDisputant(t *testing.T) {
	box := &memMailbox{}
	f := New(box, StaticModerators{"M1", "M2", "M1", " "}, Options{})

	f.DisputeCreated(context.Background(), sampleDispute())

	submitted := box.byType(domain.TypeDisputeSubmitted)
	require.Len(t, submitted, 2)
	assert.ElementsMatch(t, []string{"M1", "M2"}, []string{submitted[0].RecipientRef, submitted[1].RecipientRef})
	var sd domain.DisputeSubmittedData
	require.NoError(t, json.Unmarshal(submitted[0].Data, &sd))
	assert.Equal(t, "d1", sd.DisputeID)
	assert.Equal(t, "U2", sd.DisputedBy.Ref)
	assert.Equal(t, "U1", sd.RatedBy.Ref)
	assert.Equal(t, domain.ReasonOther, sd.ReasonType)

	received := box.byType(domain.TypeDisputeReceived)
	require.Len(t, received, 1)
	assert.Equal(t, "U2", received[0].RecipientRef)
	var rd domain.DisputeReceivedData
	require.NoError(t, json.Unmarshal(received[0].Data, &rd))
	assert.Equal(t, "U1", rd.RatedBy.Ref)
	assert.Equal(t, "unfair", rd.Reason)

	assert.Equal(t, [][2]string{{"U2", "r1"}}, box.disputed)
}

func TestDeliveryFailureIsLoggedAndSwallowed(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	box := &memMailbox{failFor: map[string]bool{"M1": true}}
	f := New(box, StaticModerators{"M1", "M2"}, Options{Logger: zap.New(core)})

	f.DisputeCreated(context.Background(), sampleDispute())

	assert.Len(t, box.byType(domain.TypeDisputeSubmitted), 1, "M2 still notified")
	assert.Len(t, box.byType(domain.TypeDisputeReceived), 1)
	require.Equal(t, 1, logs.FilterMessage("notification delivery failed").Len())
	entry := logs.All()[0]
	assert.Equal(t, "M1", entry.ContextMap()["recipient"])
}

func TestDeliveryIgnoresCallerCancellation(t *testing.T) {
	box := &memMailbox{}
	f := New(box, nil, Options{Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := sampleDispute()
	d.Status = domain.StatusRejected
	f.DisputeStatusChanged(ctx, d)

	assert.NoError(t, box.ctxErr)
	assert.Len(t, box.byType(domain.TypeDisputeRejected), 1)
}

func TestDisputeStatusChanged(t *testing.T) {
	box := &memMailbox{}
	f := New(box, nil, Options{SupportContact: "support@example.com"})

	rejected := sampleDispute()
	rejected.Status = domain.StatusRejected
	f.DisputeStatusChanged(context.Background(), rejected)

	items := box.byType(domain.TypeDisputeRejected)
	require.Len(t, items, 1)
	assert.Equal(t, "U2", items[0].RecipientRef)
	assert.Contains(t, items[0].Message, "support@example.com")
	var data domain.DisputeStatusData
	require.NoError(t, json.Unmarshal(items[0].Data, &data))
	assert.Equal(t, "d1", data.DisputeID)
	assert.Equal(t, "support@example.com", data.SupportContact)

	approved := sampleDispute()
	approved.Status = domain.StatusApproved
	f.DisputeStatusChanged(context.Background(), approved)
	assert.Len(t, box.byType(domain.TypeDisputeApproved), 1)

	f.DisputeStatusChanged(context.Background(), sampleDispute())
	assert.Len(t, box.items, 2, "pending disputes produce nothing")
}

func TestNotify(t *testing.T) {
	box := &memMailbox{}
	f := New(box, nil, Options{IDGen: func() string { return "n1" }})

	n, err := f.Notify(context.Background(), NotifyInput{
		RecipientRef: "U2", Type: domain.TypeViewingRequest, Message: " Viewing on Friday ", Data: json.RawMessage(`{"listing":"l1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "n1", n.ID)
	assert.Equal(t, "Viewing on Friday", n.Message)

	_, err = f.Notify(context.Background(), NotifyInput{Type: "bogus", Data: json.RawMessage(`{`)})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"recipientRef", "type", "message", "data"}, verr.Fields)

	box.failFor = map[string]bool{"U3": true}
	_, err = f.Notify(context.Background(), NotifyInput{RecipientRef: "U3", Type: domain.TypeSystem, Message: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotificationDelivery)
}

type fakeSetReader struct {
	members []string
	err     error
}

func (f fakeSetReader) SMembers(context.Context, string) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(f.members, f.err)
}

func TestModeratorResolvers(t *testing.T) {
	ctx := context.Background()

	ids, err := RedisModerators{Client: fakeSetReader{members: []string{"M2", "M1"}}, Key: "moderators"}.Moderators(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"M1", "M2"}, ids)

	chain := ChainModerators{
		RedisModerators{Client: fakeSetReader{err: errors.New("redis down")}, Key: "moderators"},
		RedisModerators{Client: fakeSetReader{}, Key: "moderators"},
		StaticModerators{"M9"},
	}
	ids, err = chain.Moderators(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"M9"}, ids)

	_, err = ChainModerators{RedisModerators{Client: fakeSetReader{err: errors.New("redis down")}}}.Moderators(ctx)
	assert.ErrorContains(t, err, "redis down")
}
