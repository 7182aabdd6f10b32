package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/rating-disputes/internal/apiclient"
	"github.com/Clark-Hu/rating-disputes/internal/domain"
)

type fakeBackend struct {
	mu       sync.Mutex
	disputes map[string]domain.Dispute
	order    []string
	err      error
}

func newFakeBackend(n int) *fakeBackend {
	b := &fakeBackend{disputes: map[string]domain.Dispute{}}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("d%d", i)
		b.disputes[id] = domain.Dispute{ID: id, Status: domain.StatusPending}
		b.order = append(b.order, id)
	}
	return b
}

func (b *fakeBackend) ListDisputes(_ context.Context, status domain.DisputeStatus, limit int, cursor string) (apiclient.DisputePage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := 0
	if cursor != "" {
		_, _ = fmt.Sscanf(cursor, "%d", &start)
	}
	var page apiclient.DisputePage
	for i := start; i < len(b.order) && len(page.Items) < limit; i++ {
		if d := b.disputes[b.order[i]]; d.Status == status {
			page.Items = append(page.Items, d)
		}
		if len(page.Items) == limit && i+1 < len(b.order) {
			next := fmt.Sprintf("%d", i+1)
			page.NextCursor = &next
		}
	}
	return page, nil
}

func (b *fakeBackend) GetDispute(_ context.Context, id string) (domain.Dispute, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.disputes[id]
	if !ok {
		return domain.Dispute{}, &domain.NotFoundError{Kind: "dispute", ID: id}
	}
	return d, nil
}

func (b *fakeBackend) UpdateDisputeStatus(_ context.Context, id string, action domain.Action) (domain.Dispute, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return domain.Dispute{}, b.err
	}
	d, ok := b.disputes[id]
	if !ok {
		return domain.Dispute{}, &domain.NotFoundError{Kind: "dispute", ID: id}
	}
	if d.Status.Terminal() {
		return domain.Dispute{}, &domain.InvalidStateError{DisputeID: id, Status: d.Status}
	}
	d.Status = action.TargetStatus()
	b.disputes[id] = d
	return d, nil
}

func TestListFollowsCursors(t *testing.T) {
	backend := newFakeBackend(250)
	console := NewConsole(backend, nil)

	all, err := console.List(context.Background(), domain.StatusPending, 0)
	require.NoError(t, err)
	assert.Len(t, all, 250)

	capped, err := console.List(context.Background(), domain.StatusPending, 5)
	require.NoError(t, err)
	assert.Len(t, capped, 5)
}

func TestApproveThenRejectReportsAlreadyResolved(t *testing.T) {
	console := NewConsole(newFakeBackend(1), nil)
	ctx := context.Background()

	res, err := console.Approve(ctx, "d0")
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Outcome)
	assert.Equal(t, domain.StatusApproved, res.Dispute.Status)

	res, err = console.Reject(ctx, "d0")
	require.NoError(t, err)
	assert.Equal(t, AlreadyResolved, res.Outcome)
	assert.Equal(t, domain.StatusApproved, res.Status)
	assert.Contains(t, res.Message, "already approved")
}

func TestConcurrentModeratorsOneApplies(t *testing.T) {
	console := NewConsole(newFakeBackend(1), nil)

	results := make([]Result, 2)
	var wg sync.WaitGroup
	for i, act := range []func(context.Context, string) (Result, error){console.Approve, console.Reject} {
		wg.Add(1)
		go func(i int, act func(context.Context, string) (Result, error)) {
			defer wg.Done()
			res, err := act(context.Background(), "d0")
			assert.NoError(t, err)
			results[i] = res
		}(i, act)
	}
	wg.Wait()

	outcomes := []Outcome{results[0].Outcome, results[1].Outcome}
	assert.ElementsMatch(t, []Outcome{Applied, AlreadyResolved}, outcomes)
}

func TestNotFoundAndTransportErrors(t *testing.T) {
	backend := newFakeBackend(0)
	console := NewConsole(backend, nil)

	res, err := console.Approve(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Outcome)

	res, err = console.Show(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Outcome)

	backend.err = errors.New("connection refused")
	_, err = console.Reject(context.Background(), "nope")
	assert.ErrorContains(t, err, "connection refused")
}
