package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rekamed/internal/ratelimit/models"
	"rekamed/internal/ratelimit/store"
	id "rekamed/pkg/domain"
	"rekamed/pkg/requestcontext"
	"rekamed/pkg/testutil"
)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit models.Limit, now time.Time) (*models.Result, error) {
	args := m.Called(ctx, key, limit, now)
	r, _ := args.Get(0).(*models.Result)
	return r, args.Error(1)
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func request(ctx context.Context) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/consent/request", nil)
	return r.WithContext(requestcontext.WithTime(ctx, testutil.FixedNow))
}

func TestLimitRejectsOverBudget(t *testing.T) {
	reg := prometheus.NewRegistry()
	policy := models.Policy{models.ClassSensitive: {Requests: 2, Window: time.Minute}}
	m := New(store.NewInMemory(), policy, discard(), reg)
	h := m.Limit(models.ClassSensitive)(ok)

	doctor := requestcontext.WithPrincipal(context.Background(), requestcontext.Principal{
		UserID: id.UserID(uuid.New()), Role: id.RoleDoctor,
	})

	for range 2 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request(doctor))
		require.Equal(t, http.StatusNoContent, w.Code)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(doctor))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limited")
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	other := requestcontext.WithPrincipal(context.Background(), requestcontext.Principal{
		UserID: id.UserID(uuid.New()), Role: id.RoleDoctor,
	})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, request(other))
	assert.Equal(t, http.StatusNoContent, w.Code, "budgets are per user")

	assert.InDelta(t, 1, promtest.ToFloat64(m.decisions.WithLabelValues("sensitive", "rejected")), 0)
	assert.InDelta(t, 3, promtest.ToFloat64(m.decisions.WithLabelValues("sensitive", "allowed")), 0)
}

func TestLimitKeysAnonymousCallersByIP(t *testing.T) {
	lim := new(mockLimiter)
	limit := models.Limit{Requests: 5, Window: time.Minute}
	m := New(lim, models.Policy{models.ClassRead: limit}, discard(), nil)

	ctx := requestcontext.WithClientMetadata(context.Background(), "203.0.113.9", "curl")
	lim.On("Allow", mock.Anything, "ratelimit:read:ip:203.0.113.9", limit, testutil.FixedNow).
		Return(&models.Result{Allowed: true, Limit: 5, Remaining: 4, ResetAt: testutil.FixedNow.Add(time.Minute)}, nil).Once()

	w := httptest.NewRecorder()
	m.Limit(models.ClassRead)(ok).ServeHTTP(w, request(ctx))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	lim.AssertExpectations(t)
}

func TestLimitFailsOpen(t *testing.T) {
	lim := new(mockLimiter)
	lim.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))
	m := New(lim, models.DefaultPolicy(), discard(), nil)

	w := httptest.NewRecorder()
	m.Limit(models.ClassWrite)(ok).ServeHTTP(w, request(context.Background()))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestLimitUnconfiguredClassPassesThrough(t *testing.T) {
	lim := new(mockLimiter)
	m := New(lim, models.Policy{}, discard(), nil)

	w := httptest.NewRecorder()
	m.Limit(models.ClassRead)(ok).ServeHTTP(w, request(context.Background()))
	assert.Equal(t, http.StatusNoContent, w.Code)
	lim.AssertNotCalled(t, "Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestByMethodSplitsReadsFromMutations(t *testing.T) {
	policy := models.Policy{
		models.ClassRead:      {Requests: 1, Window: time.Minute},
		models.ClassSensitive: {Requests: 1, Window: time.Minute},
	}
	h := New(store.NewInMemory(), policy, discard(), nil).ByMethod(models.ClassSensitive)(ok)
	ctx := requestcontext.WithTime(context.Background(), testutil.FixedNow)

	get := func() int {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/consent/pending", nil).WithContext(ctx))
		return w.Code
	}
	post := func() int {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request(ctx))
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, get())
	assert.Equal(t, http.StatusNoContent, post(), "reads do not spend the mutation budget")
	assert.Equal(t, http.StatusTooManyRequests, get())
	assert.Equal(t, http.StatusTooManyRequests, post())
}
