package broker_test

import (
	"context"
	"testing"
	"time"

	"geostory-pipeline/internal/broker"
	"geostory-pipeline/internal/entity"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) (*broker.Broker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b := broker.New(client, 1000)
	require.NoError(t, b.EnsureGroup(context.Background()))
	return b, client
}

func TestBroker_EnqueueDequeue(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	job := &entity.EnrichmentJob{
		StoryFingerprint: "fp-1",
		Stage:            entity.JobStageExtract,
		Status:           entity.JobStatusPending,
		MaxAttempts:      5,
	}
	require.NoError(t, b.Enqueue(ctx, job))

	msg, err := b.Dequeue(ctx, "worker-test", 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "fp-1", msg.Job.StoryFingerprint)
	assert.Equal(t, entity.JobStageExtract, msg.Job.Stage)
	assert.EqualValues(t, 1, msg.Deliveries)
}

func TestBroker_DequeueEmptyStream(t *testing.T) {
	b, _ := newTestBroker(t)

	msg, err := b.Dequeue(context.Background(), "worker-test", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestBroker_AckedMessageNotRedelivered(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, &entity.EnrichmentJob{StoryFingerprint: "fp-ack"}))

	msg, err := b.Dequeue(ctx, "worker-test", 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NoError(t, b.Ack(ctx, msg.ID))

	reclaimed, err := b.Claim(ctx, "worker-retry", 0)
	require.NoError(t, err)
	assert.Nil(t, reclaimed)
}

func TestBroker_UnackedMessageIsReclaimable(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, &entity.EnrichmentJob{StoryFingerprint: "fp-crash"}))

	msg, err := b.Dequeue(ctx, "worker-crashed", 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg)

	// consumer never acks; another worker reclaims the same message
	reclaimed, err := b.Claim(ctx, "worker-retry", 0)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, msg.ID, reclaimed.ID)
	assert.Equal(t, "fp-crash", reclaimed.Job.StoryFingerprint)
	assert.GreaterOrEqual(t, reclaimed.Deliveries, int64(1))
}

func TestBroker_ClaimNothingPending(t *testing.T) {
	b, _ := newTestBroker(t)

	reclaimed, err := b.Claim(context.Background(), "worker-retry", 0)
	require.NoError(t, err)
	assert.Nil(t, reclaimed)
}
