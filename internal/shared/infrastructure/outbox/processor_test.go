package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPublisher is a test double for eventbus.Publisher
type mockPublisher struct {
	mu          sync.Mutex
	published   []string
	failForKeys map[string]bool
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{failForKeys: make(map[string]bool)}
}

func (p *mockPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failForKeys[routingKey] {
		return errors.New("publish failed")
	}
	p.published = append(p.published, routingKey)
	return nil
}

func (p *mockPublisher) Close() error { return nil }

func (p *mockPublisher) PublishedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func createTestMessage(routingKey string) *outbox.Message {
	return &outbox.Message{
		EventID:       uuid.New(),
		AggregateType: "Subscription",
		AggregateID:   uuid.New(),
		EventType:     routingKey,
		RoutingKey:    routingKey,
		Payload:       []byte(`{"test":"data"}`),
		CreatedAt:     time.Now(),
	}
}

func TestProcessor_ProcessOnce(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	publisher := newMockPublisher()
	metrics := observability.NewInMemoryMetrics()
	processor := outbox.NewProcessor(repo, publisher, outbox.DefaultProcessorConfig(), nil)
	processor.SetMetrics(metrics)

	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, createTestMessage("billing.subscription.transitioned")))
	require.NoError(t, repo.Save(ctx, createTestMessage("billing.subscription.transitioned")))

	require.NoError(t, processor.ProcessOnce(ctx))

	assert.Equal(t, 2, publisher.PublishedCount())
	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	stats := processor.GetStats()
	assert.Equal(t, uint64(2), stats.PublishedCount)
	assert.NotNil(t, stats.LastProcessedAt)
	assert.NotNil(t, stats.OldestMessageAt)
	assert.Equal(t, int64(2), metrics.GetCounter(outbox.MetricPublished,
		observability.T("routing_key", "billing.subscription.transitioned")))
}

func TestProcessor_ProcessOnce_PublishFailureSchedulesRetry(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	publisher := newMockPublisher()
	publisher.failForKeys["broken"] = true
	processor := outbox.NewProcessor(repo, publisher, outbox.DefaultProcessorConfig(), nil)

	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, createTestMessage("ok")))
	failing := createTestMessage("broken")
	require.NoError(t, repo.Save(ctx, failing))

	require.NoError(t, processor.ProcessOnce(ctx))

	assert.Equal(t, 1, publisher.PublishedCount())
	assert.Equal(t, 1, failing.RetryCount)
	require.NotNil(t, failing.NextRetryAt)
	assert.True(t, failing.NextRetryAt.After(time.Now()))
	require.NotNil(t, failing.LastError)
	assert.Equal(t, "publish failed", *failing.LastError)

	// not due yet, so the next batch skips it
	require.NoError(t, processor.ProcessOnce(ctx))
	assert.Equal(t, 1, failing.RetryCount)

	stats := processor.GetStats()
	assert.Equal(t, uint64(1), stats.FailedCount)
	assert.NotNil(t, stats.LastErrorAt)
}

func TestProcessor_ProcessOnce_DeadLettersAfterMaxRetries(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	publisher := newMockPublisher()
	publisher.failForKeys["broken"] = true
	config := outbox.DefaultProcessorConfig()
	config.MaxRetries = 1
	processor := outbox.NewProcessor(repo, publisher, config, nil)

	ctx := context.Background()
	msg := createTestMessage("broken")
	require.NoError(t, repo.Save(ctx, msg))

	require.NoError(t, processor.ProcessOnce(ctx))

	require.NotNil(t, msg.DeadLetteredAt)
	require.NotNil(t, msg.DeadLetterReason)
	assert.Equal(t, "publish failed", *msg.DeadLetterReason)
	assert.Equal(t, uint64(1), processor.GetStats().DeadCount)

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

type failingRepository struct {
	*outbox.InMemoryRepository
}

func (r failingRepository) GetUnpublished(ctx context.Context, limit int) ([]*outbox.Message, error) {
	return nil, errors.New("database unavailable")
}

func TestProcessor_ProcessOnce_RepositoryError(t *testing.T) {
	processor := outbox.NewProcessor(failingRepository{outbox.NewInMemoryRepository()}, newMockPublisher(), outbox.DefaultProcessorConfig(), nil)

	err := processor.ProcessOnce(context.Background())

	require.Error(t, err)
	assert.Equal(t, "database unavailable", processor.GetStats().LastError)
}

func TestProcessor_StartStop(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	publisher := newMockPublisher()
	config := outbox.DefaultProcessorConfig()
	config.PollInterval = 5 * time.Millisecond
	processor := outbox.NewProcessor(repo, publisher, config, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, repo.Save(ctx, createTestMessage("billing.subscription.transitioned")))
	require.NoError(t, processor.Start(ctx))
	require.NoError(t, processor.Start(ctx))
	assert.True(t, processor.IsRunning())

	assert.Eventually(t, func() bool { return publisher.PublishedCount() == 1 }, time.Second, 5*time.Millisecond)

	processor.Stop()
	processor.Stop()
	assert.False(t, processor.IsRunning())
}

func TestInMemoryRepository_DeleteOld(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	ctx := context.Background()

	old := createTestMessage("a")
	fresh := createTestMessage("b")
	require.NoError(t, repo.Save(ctx, old))
	require.NoError(t, repo.Save(ctx, fresh))
	require.NoError(t, repo.MarkPublished(ctx, old.ID))
	longAgo := time.Now().AddDate(0, 0, -30)
	old.PublishedAt = &longAgo

	deleted, err := repo.DeleteOld(ctx, 14)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Len(t, repo.Messages(), 1)
}
