package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultBlock        = 5 * time.Second
	defaultHeartbeatTTL = 30 * time.Second
)

// Redis is a reliable list queue. Producers LPUSH onto the queue; a consumer
// atomically moves each message onto its own processing list with BLMOVE and
// removes it from there on ack.
//
// Every consumer keeps a heartbeat key alive while it consumes. Any consumer
// that finds a processing list whose owner's heartbeat has expired pushes the
// entries back onto the queue.
type Redis struct {
	client       redis.UniversalClient
	queueKey     string
	blockTimeout time.Duration
	heartbeatTTL time.Duration
	logger       *slog.Logger
}

// NewRedis creates a Redis-backed queue
func NewRedis(client redis.UniversalClient, queueKey string, blockTimeout time.Duration, logger *slog.Logger) *Redis {
	if blockTimeout <= 0 {
		blockTimeout = defaultBlock
	}
	return &Redis{
		client:       client,
		queueKey:     queueKey,
		blockTimeout: blockTimeout,
		heartbeatTTL: defaultHeartbeatTTL,
		logger:       logger,
	}
}

// WithHeartbeatTTL sets how long a consumer may stay silent before its
// in-flight messages are handed to other consumers
func (q *Redis) WithHeartbeatTTL(ttl time.Duration) *Redis {
	if ttl > 0 {
		q.heartbeatTTL = ttl
	}
	return q
}

// ProcessingKey is the in-flight list owned by one consumer
func (q *Redis) ProcessingKey(consumerTag string) string {
	return fmt.Sprintf("%s:processing:%s", q.queueKey, consumerTag)
}

// HeartbeatKey expires when the consumer stops refreshing it
func (q *Redis) HeartbeatKey(consumerTag string) string {
	return fmt.Sprintf("%s:heartbeat:%s", q.queueKey, consumerTag)
}

func (q *Redis) processingPrefix() string {
	return q.queueKey + ":processing:"
}

// DeadLetterKey holds messages rejected without requeue
func (q *Redis) DeadLetterKey() string {
	return q.queueKey + ":dead"
}

// Publish pushes a job message; the reply means Redis accepted it
func (q *Redis) Publish(ctx context.Context, jobID string) error {
	body, err := Encode(jobID)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.queueKey, body).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Consume recovers orphaned in-flight messages and then streams new ones.
// The heartbeat stops with ctx and is left to expire rather than deleted.
func (q *Redis) Consume(ctx context.Context, consumerTag string) (<-chan Delivery, error) {
	processingKey := q.ProcessingKey(consumerTag)

	recovered, err := q.recover(ctx, processingKey)
	if err != nil {
		return nil, err
	}
	if recovered > 0 {
		q.logger.Warn("Requeued in-flight messages from previous run",
			slog.String("processing_key", processingKey),
			slog.Int("count", recovered),
		)
	}

	if err := q.beat(ctx, consumerTag); err != nil {
		return nil, err
	}
	if err := q.reapLost(ctx, consumerTag); err != nil {
		return nil, err
	}
	go q.keepAlive(ctx, consumerTag)

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}

			body, err := q.client.BLMove(ctx, q.queueKey, processingKey, "RIGHT", "LEFT", q.blockTimeout).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				q.logger.Error("Failed to pop from Redis queue",
					slog.String("queue", q.queueKey),
					slog.Any("error", err),
				)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}

			d := &redisDelivery{q: q, processingKey: processingKey, body: []byte(body)}
			select {
			case out <- d:
			case <-ctx.Done():
				_ = d.Nack(true)
				return
			}
		}
	}()

	q.logger.Info("Started consuming messages from Redis",
		slog.String("queue", q.queueKey),
		slog.String("consumer_tag", consumerTag),
	)

	return out, nil
}

func (q *Redis) beat(ctx context.Context, consumerTag string) error {
	if err := q.client.Set(ctx, q.HeartbeatKey(consumerTag), time.Now().UTC().Format(time.RFC3339), q.heartbeatTTL).Err(); err != nil {
		return fmt.Errorf("redis heartbeat: %w", err)
	}
	return nil
}

// keepAlive refreshes the heartbeat and sweeps for lost consumers until ctx ends
func (q *Redis) keepAlive(ctx context.Context, consumerTag string) {
	ticker := time.NewTicker(q.heartbeatTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := q.beat(ctx, consumerTag); err != nil && ctx.Err() == nil {
			q.logger.Error("Failed to refresh consumer heartbeat",
				slog.String("consumer_tag", consumerTag),
				slog.Any("error", err),
			)
		}
		if err := q.reapLost(ctx, consumerTag); err != nil && ctx.Err() == nil {
			q.logger.Error("Failed to requeue messages of lost consumers",
				slog.Any("error", err),
			)
		}
	}
}

// reapLost requeues the processing lists of consumers whose heartbeat expired
func (q *Redis) reapLost(ctx context.Context, self string) error {
	prefix := q.processingPrefix()

	iter := q.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		tag := strings.TrimPrefix(key, prefix)
		if tag == self {
			continue
		}

		alive, err := q.client.Exists(ctx, q.HeartbeatKey(tag)).Result()
		if err != nil {
			return fmt.Errorf("redis heartbeat check %s: %w", tag, err)
		}
		if alive > 0 {
			continue
		}

		recovered, err := q.recover(ctx, key)
		if err != nil {
			return err
		}
		if recovered > 0 {
			q.logger.Warn("Requeued in-flight messages of lost consumer",
				slog.String("consumer_tag", tag),
				slog.Int("count", recovered),
			)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s*: %w", prefix, err)
	}
	return nil
}

func (q *Redis) recover(ctx context.Context, processingKey string) (int, error) {
	count := 0
	for {
		err := q.client.LMove(ctx, processingKey, q.queueKey, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("redis recover %s: %w", processingKey, err)
		}
		count++
	}
}

type redisDelivery struct {
	q             *Redis
	processingKey string
	body          []byte
}

func (d *redisDelivery) Body() []byte { return d.body }

// Ack and Nack use a fresh context so they still run during shutdown
func (d *redisDelivery) Ack() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.q.client.LRem(ctx, d.processingKey, 1, d.body).Err(); err != nil {
		return fmt.Errorf("redis ack: %w", err)
	}
	return nil
}

func (d *redisDelivery) Nack(requeue bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := d.q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, d.processingKey, 1, d.body)
		if requeue {
			// RIGHT is the consuming end, so this is redelivered first
			pipe.RPush(ctx, d.q.queueKey, d.body)
		} else {
			pipe.LPush(ctx, d.q.DeadLetterKey(), d.body)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis nack: %w", err)
	}
	return nil
}
