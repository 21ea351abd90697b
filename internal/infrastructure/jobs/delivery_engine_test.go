package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
)

// memDeliveryRepo is an in-memory stand-in for the GORM-backed
// WebhookDeliveryRepository, sufficient to drive the poll/retry/dead-letter
// state machine under test without a database.
type memDeliveryRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entities.WebhookDelivery
}

func newMemDeliveryRepo() *memDeliveryRepo {
	return &memDeliveryRepo{rows: make(map[uuid.UUID]*entities.WebhookDelivery)}
}

func (r *memDeliveryRepo) Create(ctx context.Context, d *entities.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[d.ID] = d
	return nil
}

func (r *memDeliveryRepo) GetByAppAndEventID(ctx context.Context, appID uuid.UUID, eventID string) (*entities.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.rows {
		if d.AppID == appID && d.EventID == eventID {
			return d, nil
		}
	}
	return nil, domainerrors.ErrNotFound
}

func (r *memDeliveryRepo) Update(ctx context.Context, d *entities.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[d.ID] = d
	return nil
}

func (r *memDeliveryRepo) PollBatch(ctx context.Context, maxRetries, limit int, now time.Time) ([]*entities.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.WebhookDelivery
	for _, d := range r.rows {
		if len(out) >= limit {
			break
		}
		if d.Status != entities.DeliveryStatusPending && d.Status != entities.DeliveryStatusFailed {
			continue
		}
		if d.AttemptCount >= maxRetries {
			continue
		}
		if d.NextAttemptAt != nil && d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func newTestDelivery(notifyURL string) *entities.WebhookDelivery {
	now := time.Now()
	return &entities.WebhookDelivery{
		ID:            uuid.New(),
		AppID:         uuid.New(),
		EventID:       "evt_" + uuid.NewString(),
		EventType:     "payment.succeeded",
		NotifyURL:     notifyURL,
		Payload:       `{"hello":"world"}`,
		Status:        entities.DeliveryStatusPending,
		AttemptCount:  0,
		NextAttemptAt: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TestDeliveryEngine_SuccessOnFirstAttempt drives the happy path against
// a responsive endpoint: the row must end succeeded with a delivered_at.
func TestDeliveryEngine_SuccessOnFirstAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newMemDeliveryRepo()
	row := newTestDelivery(server.URL)
	require.NoError(t, repo.Create(context.Background(), row))

	engine := NewDeliveryEngine(repo, time.Minute, 10, 5)
	engine.runBatch(context.Background())

	assert.Equal(t, entities.DeliveryStatusSucceeded, row.Status)
	assert.Equal(t, 1, row.AttemptCount)
	assert.NotNil(t, row.DeliveredAt)
	assert.Nil(t, row.NextAttemptAt)
}

// TestDeliveryEngine_BackoffScheduleAfterFailure verifies the retry
// timing falls within [2^k, 1.2*2^k] seconds of the attempt.
func TestDeliveryEngine_BackoffScheduleAfterFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := newMemDeliveryRepo()
	row := newTestDelivery(server.URL)
	require.NoError(t, repo.Create(context.Background(), row))

	engine := NewDeliveryEngine(repo, time.Minute, 10, 5)
	before := time.Now()
	engine.runBatch(context.Background())

	require.Equal(t, entities.DeliveryStatusFailed, row.Status)
	require.NotNil(t, row.NextAttemptAt)

	// attempt_count is 1 after the failed attempt, so the window is
	// [2^1, 1.2*2^1] seconds.
	delay := row.NextAttemptAt.Sub(before)
	minDelay := 2 * time.Second
	maxDelay := time.Duration(1.2 * float64(2*time.Second))
	assert.GreaterOrEqual(t, delay, minDelay-50*time.Millisecond)
	assert.LessOrEqual(t, delay, maxDelay+50*time.Millisecond)
	assert.True(t, row.LastError.Valid)
}

// TestDeliveryEngine_DeadLettersAtMaxRetries drives scenario S4: a row
// that has exhausted max_retries transitions to dead with no further
// scheduled attempt.
func TestDeliveryEngine_DeadLettersAtMaxRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := newMemDeliveryRepo()
	row := newTestDelivery(server.URL)
	row.AttemptCount = 9 // one more failed attempt reaches max_retries=10
	require.NoError(t, repo.Create(context.Background(), row))

	engine := NewDeliveryEngine(repo, time.Minute, 10, 10)
	engine.runBatch(context.Background())

	assert.Equal(t, entities.DeliveryStatusDead, row.Status)
	assert.Equal(t, 10, row.AttemptCount)
	assert.Nil(t, row.NextAttemptAt)
	assert.True(t, row.LastError.Valid)
	assert.NotEmpty(t, row.LastError.String)
}

// TestDeliveryEngine_EventuallySucceedsAfterTransientFailures simulates a
// merchant endpoint that fails twice then recovers, driving at-least-once
// delivery across repeated poll cycles.
func TestDeliveryEngine_EventuallySucceedsAfterTransientFailures(t *testing.T) {
	var calls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newMemDeliveryRepo()
	row := newTestDelivery(server.URL)
	require.NoError(t, repo.Create(context.Background(), row))

	engine := NewDeliveryEngine(repo, time.Minute, 10, 5)

	for i := 0; i < 3; i++ {
		row.NextAttemptAt = ptrTime(time.Now().Add(-time.Second))
		engine.runBatch(context.Background())
		if row.Status == entities.DeliveryStatusSucceeded {
			break
		}
	}

	assert.Equal(t, entities.DeliveryStatusSucceeded, row.Status)
	assert.Equal(t, 3, row.AttemptCount)
}

func ptrTime(t time.Time) *time.Time { return &t }
