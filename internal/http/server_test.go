package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Clark-Hu/rating-disputes/internal/auth"
	"github.com/Clark-Hu/rating-disputes/internal/config"
	"github.com/Clark-Hu/rating-disputes/internal/dispute"
	"github.com/Clark-Hu/rating-disputes/internal/domain"
	"github.com/Clark-Hu/rating-disputes/internal/fanout"
	"github.com/Clark-Hu/rating-disputes/internal/repository"
	"github.com/Clark-Hu/rating-disputes/internal/testutil"
)

const testSecret = "test-secret"

type testEnv struct {
	srv      *Server
	verifier *auth.Verifier
}

// newTestEnv builds a server. With withDB false no repository is wired, so
// only requests rejected before reaching storage may be sent.
func newTestEnv(tb testing.TB, withDB bool) *testEnv {
	tb.Helper()
	cfg := config.Config{Port: "0", ReadTimeoutSecs: 15, WriteTimeoutSecs: 15, IdleTimeoutSecs: 60}
	verifier := auth.NewVerifier(testSecret, time.Hour)
	logger := zap.NewNop()

	var (
		repo     *repository.Repository
		fan      *fanout.Fanout
		disputes *dispute.Manager
	)
	if withDB {
		repo = repository.NewWithPool(testutil.NewPostgres(tb, "disputes_test_http"))
		fan = fanout.New(repo.Notifications, fanout.StaticModerators{"MOD1", "MOD2"}, fanout.Options{
			Logger:         logger,
			SupportContact: "support@example.com",
		})
		disputes = dispute.NewManager(repo.Disputes, repo.Ratings, fan, dispute.Options{Logger: logger})
	}
	return &testEnv{
		srv:      New(cfg, nil, repo, disputes, fan, verifier, logger),
		verifier: verifier,
	}
}

func (e *testEnv) token(tb testing.TB, userID string, role auth.Role) string {
	tb.Helper()
	tok, err := e.verifier.Issue(auth.Principal{UserID: userID, Role: role})
	require.NoError(tb, err)
	return tok
}

func (e *testEnv) do(tb testing.TB, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	tb.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(tb, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(tb testing.TB, rec *httptest.ResponseRecorder, dst interface{}) {
	tb.Helper()
	require.NoError(tb, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestHealthzWithoutStore(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/notifications", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := auth.NewVerifier("another-secret", time.Hour)
	forged, err := other.Issue(auth.Principal{UserID: "U1", Role: auth.RoleModerator})
	require.NoError(t, err)
	rec = env.do(t, http.MethodGet, "/disputes", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "UNAUTHORIZED", resp.Code)
}

func TestModeratorRoutesForbidUsers(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.token(t, "U1", auth.RoleUser)

	tests := []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodGet, "/disputes", nil},
		{http.MethodPost, "/disputes/d1/status", map[string]string{"action": "approve"}},
		{http.MethodPost, "/notifications", map[string]string{"recipientRef": "U2", "type": "system", "message": "hi"}},
	}
	for _, tt := range tests {
		rec := env.do(t, tt.method, tt.path, user, tt.body)
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestRejectsBadInputBeforeStorage(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.token(t, "U1", auth.RoleUser)

	rec := env.do(t, http.MethodGet, "/notifications?stream=everything", user, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp struct {
		Code    string   `json:"code"`
		Details []string `json:"details"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	assert.Equal(t, []string{"stream"}, resp.Details)

	rec = env.do(t, http.MethodGet, "/notifications?limit=-3", user, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/disputes", user, "not json")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/disputes", user, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/disputes", user, map[string]interface{}{
		"ratingRef":     "r1",
		"disputedByRef": "SOMEONE_ELSE",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/ratings", user, map[string]interface{}{
		"ratedEntityRef": "U1",
		"entityType":     "spaceship",
		"categories":     []string{"communication"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	decodeBody(t, rec, &resp)
	assert.Equal(t, []string{"ratedEntityRef", "entityType", "categories[0]"}, resp.Details)
}

func TestDisputeLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, true)
	landlord := env.token(t, "L1", auth.RoleUser)
	tenant := env.token(t, "T1", auth.RoleUser)
	stranger := env.token(t, "X9", auth.RoleUser)
	moderator := env.token(t, "MOD1", auth.RoleModerator)

	// Landlord rates tenant.
	rec := env.do(t, http.MethodPost, "/ratings", landlord, map[string]interface{}{
		"ratedEntityRef": "T1",
		"entityType":     "tenant",
		"categories": []map[string]interface{}{
			{"category": "communication", "value": 2},
			{"name": "cleanliness", "rating": "3"},
		},
		"comment": "  late rent  ",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rating ratingResponse
	decodeBody(t, rec, &rating)
	assert.Equal(t, "L1", rating.RatedByRef)
	require.NotNil(t, rating.Comment)
	assert.Equal(t, "late rent", *rating.Comment)

	// Tenant sees the new_rating notification on the rating stream.
	rec = env.do(t, http.MethodGet, "/notifications?stream=rating", tenant, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ratingStream notificationItemsResponse
	decodeBody(t, rec, &ratingStream)
	require.Len(t, ratingStream.Items, 1)
	assert.Equal(t, domain.TypeNewRating, ratingStream.Items[0].Type)
	newRatingID := ratingStream.Items[0].ID

	createBody := map[string]interface{}{
		"ratingRef":  rating.ID,
		"ratingType": "tenant",
		"categories": []map[string]interface{}{{"category": "communication", "value": 2}},
		"reason":     "Rent was paid on time, receipts attached",
		"reasonType": "inaccurate_assessment",
		"ratedByRef": "L1",
	}
	rec = env.do(t, http.MethodPost, "/disputes", tenant, createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created disputeCreateResponse
	decodeBody(t, rec, &created)
	assert.Equal(t, domain.StatusPending, created.Status)

	rec = env.do(t, http.MethodPost, "/disputes", tenant, createBody)
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict errorResponse
	decodeBody(t, rec, &conflict)
	assert.Equal(t, "ALREADY_DISPUTED", conflict.Code)

	// The dispute marks the rating notification disputed.
	rec = env.do(t, http.MethodGet, "/notifications?stream=rating", tenant, nil)
	decodeBody(t, rec, &ratingStream)
	require.Len(t, ratingStream.Items, 1)
	assert.True(t, ratingStream.Items[0].Disputed)

	// Moderators were told, and the tenant got a receipt.
	rec = env.do(t, http.MethodGet, "/notifications", moderator, nil)
	var modFeeds notificationStreamsResponse
	decodeBody(t, rec, &modFeeds)
	require.Len(t, modFeeds.System, 1)
	assert.Equal(t, domain.TypeDisputeSubmitted, modFeeds.System[0].Type)
	assert.Empty(t, modFeeds.Rating)

	rec = env.do(t, http.MethodGet, "/disputes/"+created.ID, stranger, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, http.MethodGet, "/disputes/"+created.ID, tenant, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/disputes", moderator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list disputeListResponse
	decodeBody(t, rec, &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, created.ID, list.Items[0].ID)

	rec = env.do(t, http.MethodPost, "/disputes/"+created.ID+"/status", moderator, map[string]string{"action": "maybe"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/disputes/"+created.ID+"/status", moderator, map[string]string{"action": "reject"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resolved domain.Dispute
	decodeBody(t, rec, &resolved)
	assert.Equal(t, domain.StatusRejected, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "MOD1", *resolved.ResolvedBy)

	rec = env.do(t, http.MethodPost, "/disputes/"+created.ID+"/status", moderator, map[string]string{"action": "approve"})
	require.Equal(t, http.StatusConflict, rec.Code)
	var invalid struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}
	decodeBody(t, rec, &invalid)
	assert.Equal(t, "INVALID_STATE", invalid.Code)
	assert.Equal(t, "rejected", invalid.Details["status"])

	rec = env.do(t, http.MethodGet, "/disputes?status=pending", moderator, nil)
	decodeBody(t, rec, &list)
	assert.Empty(t, list.Items)

	// Tenant: dispute_received plus dispute_rejected unread, new_rating unread.
	rec = env.do(t, http.MethodGet, "/notifications/unread-count", tenant, nil)
	var count unreadCountResponse
	decodeBody(t, rec, &count)
	assert.Equal(t, 3, count.Count)

	rec = env.do(t, http.MethodPost, "/notifications/"+newRatingID+"/read", tenant, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/notifications/"+newRatingID+"/read", landlord, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/notifications/unread-count", tenant, nil)
	decodeBody(t, rec, &count)
	assert.Equal(t, 2, count.Count)

	rec = env.do(t, http.MethodGet, "/disputes/missing", moderator, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateNotificationAsModerator(t *testing.T) {
	env := newTestEnv(t, true)
	moderator := env.token(t, "MOD1", auth.RoleModerator)
	user := env.token(t, "U7", auth.RoleUser)

	rec := env.do(t, http.MethodPost, "/notifications", moderator, map[string]interface{}{
		"recipientRef": "U7",
		"type":         "system",
		"message":      "Scheduled maintenance tonight",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/notifications", moderator, map[string]interface{}{
		"recipientRef": "",
		"type":         "carrier_pigeon",
		"message":      "",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodGet, "/notifications?stream=system", user, nil)
	var feed notificationItemsResponse
	decodeBody(t, rec, &feed)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, "Scheduled maintenance tonight", feed.Items[0].Message)

	// Disputed flag only applies to rating notifications.
	rec = env.do(t, http.MethodPost, "/notifications/"+feed.Items[0].ID+"/disputed", user, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func BenchmarkListNotifications(b *testing.B) {
	env := newTestEnv(b, true)
	user := env.token(b, "U1", auth.RoleUser)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		_, err := env.srv.repo.Notifications.Create(ctx, repository.NotificationCreateParams{
			ID:           newID(),
			RecipientRef: "U1",
			Type:         domain.TypeSystem,
			Message:      "hello",
		})
		require.NoError(b, err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := env.do(b, http.MethodGet, "/notifications", user, nil)
		if rec.Code != http.StatusOK {
			b.Fatalf("status = %d", rec.Code)
		}
	}
}
