// Package broker implements the durable job queue over Redis Streams with
// consumer-group at-least-once delivery. Claimed messages that are never
// acked become reclaimable after a configured idle period, which stands in
// for a visibility timeout.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"geostory-pipeline/internal/entity"
	"geostory-pipeline/pkg/common"

	"github.com/redis/go-redis/v9"
)

// Message is one claimed enrichment job together with its delivery metadata.
type Message struct {
	ID  string
	Job entity.EnrichmentJob
	// Deliveries counts how many times the broker has handed this message to
	// a consumer, including the current delivery.
	Deliveries int64
	// Idle is how long the message has sat unacked since its last delivery.
	// Only populated on the reclaim path.
	Idle time.Duration
}

// Broker wraps the Redis stream holding pending enrichment jobs.
type Broker struct {
	redisClient *redis.Client
	streamName  string
	group       string
	maxLen      int64
}

// New creates a Broker for the enrichment stream.
func New(redisClient *redis.Client, streamMaxLen int64) *Broker {
	return &Broker{
		redisClient: redisClient,
		streamName:  common.RedisStreamStoryEnrichment,
		group:       common.RedisStreamGroup,
		maxLen:      streamMaxLen,
	}
}

// EnsureGroup creates the stream and consumer group if they do not exist.
func (b *Broker) EnsureGroup(ctx context.Context) error {
	err := b.redisClient.XGroupCreateMkStream(ctx, b.streamName, b.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Enqueue publishes a job to the stream. Fire-and-forget: delivery and retry
// are the consumer side's concern.
func (b *Broker) Enqueue(ctx context.Context, job *entity.EnrichmentJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return b.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamName,
		Values: map[string]interface{}{"payload": string(payload)},
		MaxLen: b.maxLen,
	}).Err()
}

// Dequeue blocks up to block for a new message. Returns nil when the stream
// is idle or the context is cancelled.
func (b *Broker) Dequeue(ctx context.Context, consumer string, block time.Duration) (*Message, error) {
	streams, err := b.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: consumer,
		Streams:  []string{b.streamName, ">"}, // ">" means only new messages
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil || err == context.Canceled || err == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, err
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return b.decode(streams[0].Messages[0], 1, 0)
}

// Claim reclaims one message whose consumer went quiet for at least minIdle.
// The returned message carries the broker's delivery count so the caller can
// enforce the retry budget. Returns nil when nothing is reclaimable.
func (b *Broker) Claim(ctx context.Context, consumer string, minIdle time.Duration) (*Message, error) {
	msgs, _, err := b.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   b.streamName,
		Group:    b.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0",
		Count:    1,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	pendingInfo, err := b.redisClient.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: b.streamName,
		Group:  b.group,
		Start:  msgs[0].ID,
		End:    msgs[0].ID,
		Count:  1,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(pendingInfo) == 0 {
		// acked between XAutoClaim and XPending
		return nil, nil
	}

	return b.decode(msgs[0], pendingInfo[0].RetryCount, pendingInfo[0].Idle)
}

// Ack marks a message complete and removes it from the stream.
func (b *Broker) Ack(ctx context.Context, messageID string) error {
	if err := b.redisClient.XAck(ctx, b.streamName, b.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	if err := b.redisClient.XDel(ctx, b.streamName, messageID).Err(); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (b *Broker) decode(msg redis.XMessage, deliveries int64, idle time.Duration) (*Message, error) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, fmt.Errorf("field 'payload' not found or not a string in message %s", msg.ID)
	}
	var job entity.EnrichmentJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload in message %s: %w", msg.ID, err)
	}
	return &Message{ID: msg.ID, Job: job, Deliveries: deliveries, Idle: idle}, nil
}
