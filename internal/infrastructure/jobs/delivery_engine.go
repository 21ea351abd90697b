package jobs

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/volatiletech/null/v8"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainrepos "github.com/liuyulin-1024/payment-gateway/internal/domain/repositories"
	"github.com/liuyulin-1024/payment-gateway/pkg/logger"
	"go.uber.org/zap"
)

const (
	deliveryRequestTimeout = 30 * time.Second
	lastErrorMaxLen        = 1024
)

// DeliveryEngine drives outbound WebhookDelivery rows to completion: it
// polls for pending/failed rows on an interval, POSTs each payload to
// its notify_url, and reschedules failures with exponential backoff
// until max_retries is exhausted, at which point the row is dead-lettered.
type DeliveryEngine struct {
	deliveries   domainrepos.WebhookDeliveryRepository
	httpClient   *http.Client
	pollInterval time.Duration
	batchSize    int
	maxRetries   int
	stop         chan struct{}

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewDeliveryEngine(deliveries domainrepos.WebhookDeliveryRepository, pollInterval time.Duration, batchSize, maxRetries int) *DeliveryEngine {
	return &DeliveryEngine{
		deliveries:   deliveries,
		httpClient:   &http.Client{Timeout: deliveryRequestTimeout},
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxRetries:   maxRetries,
		stop:         make(chan struct{}),
		breakers:     make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Start runs the poll loop until ctx is canceled or Stop is called.
func (e *DeliveryEngine) Start(ctx context.Context) {
	logger.Info(ctx, "starting delivery engine", zap.Duration("poll_interval", e.pollInterval), zap.Int("batch_size", e.batchSize))

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "delivery engine stopped: context canceled")
			return
		case <-e.stop:
			logger.Info(ctx, "delivery engine stopped")
			return
		case <-ticker.C:
			e.runBatch(ctx)
		}
	}
}

func (e *DeliveryEngine) Stop() {
	close(e.stop)
}

func (e *DeliveryEngine) runBatch(ctx context.Context) {
	batch, err := e.deliveries.PollBatch(ctx, e.maxRetries, e.batchSize, time.Now())
	if err != nil {
		logger.Error(ctx, "delivery engine: poll batch failed", zap.Error(err))
		return
	}
	for _, row := range batch {
		e.tryDeliver(ctx, row)
	}
}

func (e *DeliveryEngine) tryDeliver(ctx context.Context, row *entities.WebhookDelivery) {
	now := time.Now()
	row.Status = entities.DeliveryStatusProcessing
	row.AttemptCount++
	row.LastAttemptAt = &now
	if err := e.deliveries.Update(ctx, row); err != nil {
		logger.Error(ctx, "delivery engine: failed to mark row processing", zap.String("delivery_id", row.ID.String()), zap.Error(err))
		return
	}

	status, deliverErr := e.post(ctx, row)

	if deliverErr == nil && status >= 200 && status < 300 {
		deliveredAt := time.Now()
		row.Status = entities.DeliveryStatusSucceeded
		row.DeliveredAt = &deliveredAt
		row.NextAttemptAt = nil
		row.LastHTTPStatus.SetValid(status)
		row.LastError = null.StringFromPtr(nil)
		if err := e.deliveries.Update(ctx, row); err != nil {
			logger.Error(ctx, "delivery engine: failed to persist success", zap.String("delivery_id", row.ID.String()), zap.Error(err))
		}
		return
	}

	if status > 0 {
		row.LastHTTPStatus.SetValid(status)
	}
	if deliverErr != nil {
		row.LastError.SetValid(truncate(deliverErr.Error(), lastErrorMaxLen))
	} else {
		row.LastError.SetValid(truncate(fmt.Sprintf("non-2xx response: %d", status), lastErrorMaxLen))
	}
	e.scheduleRetry(row)

	if err := e.deliveries.Update(ctx, row); err != nil {
		logger.Error(ctx, "delivery engine: failed to persist retry schedule", zap.String("delivery_id", row.ID.String()), zap.Error(err))
	}
}

// post performs the outbound POST through a per-host circuit breaker so
// a single unreachable merchant endpoint cannot stall the whole batch.
func (e *DeliveryEngine) post(ctx context.Context, row *entities.WebhookDelivery) (int, error) {
	breaker := e.breakerFor(row.NotifyURL)

	result, err := breaker.Execute(func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, deliveryRequestTimeout)
		defer cancel()

		httpReq, buildErr := http.NewRequestWithContext(reqCtx, http.MethodPost, row.NotifyURL, bytes.NewReader([]byte(row.Payload)))
		if buildErr != nil {
			return 0, buildErr
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-Event-Id", row.EventID)

		resp, doErr := e.httpClient.Do(httpReq)
		if doErr != nil {
			return 0, doErr
		}
		defer resp.Body.Close()
		return resp.StatusCode, nil
	})
	if err != nil {
		if status, ok := result.(int); ok && status > 0 {
			return status, err
		}
		return 0, err
	}
	return result.(int), nil
}

func (e *DeliveryEngine) breakerFor(notifyURL string) *gobreaker.CircuitBreaker[any] {
	host := notifyURL
	if parsed, err := url.Parse(notifyURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.breakers[host]; ok {
		return b
	}
	settings := gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	b := gobreaker.NewCircuitBreaker[any](settings)
	e.breakers[host] = b
	return b
}

// scheduleRetry applies exponential backoff with jitter,
// or dead-letters the row once max_retries is exhausted.
func (e *DeliveryEngine) scheduleRetry(row *entities.WebhookDelivery) {
	if row.AttemptCount >= e.maxRetries {
		row.Status = entities.DeliveryStatusDead
		row.NextAttemptAt = nil
		return
	}
	base := float64(int64(1) << uint(row.AttemptCount))
	jitter := rand.Float64() * 0.2 * base
	delay := time.Duration((base + jitter) * float64(time.Second))
	next := time.Now().Add(delay)
	row.Status = entities.DeliveryStatusFailed
	row.NextAttemptAt = &next
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
