package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisQueue is a reliable queue on a Redis list. Producers LPUSH job
// envelopes; each consumer BLMOVEs one into its own processing list and
// removes it only after the batch has been handled.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue connects using a redis:// URL and fails fast when the server
// is unreachable.
func NewRedisQueue(ctx context.Context, redisURL, key string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisQueueWithClient(client, key), nil
}

func NewRedisQueueWithClient(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Submit returns the envelope id as the job handle.
func (q *RedisQueue) Submit(ctx context.Context, job models.BatchJob) (string, error) {
	e, err := NewJobEvent(job)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode job envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue batch %s: %w", job.BatchID, err)
	}
	slog.Info("Batch job enqueued.", "batchId", job.BatchID, "jobId", e.ID(), "items", len(job.Items))
	return e.ID(), nil
}

// Len reports the number of jobs waiting.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Consumer takes jobs off the queue for one worker process.
type Consumer struct {
	queue         *RedisQueue
	id            string
	processingKey string
	blockTimeout  time.Duration
}

// Consumer returns a consumer whose in-flight list is keyed by id. The id
// must be stable across restarts of the same worker for Recover to work.
func (q *RedisQueue) Consumer(id string, blockTimeout time.Duration) *Consumer {
	if blockTimeout <= 0 {
		blockTimeout = 5 * time.Second
	}
	return &Consumer{
		queue:         q,
		id:            id,
		processingKey: fmt.Sprintf("%s:processing:%s", q.key, id),
		blockTimeout:  blockTimeout,
	}
}

// Recover puts jobs abandoned by a previous run of this consumer back at the
// head of the queue.
func (c *Consumer) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := c.queue.client.LMove(ctx, c.processingKey, c.queue.key, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("failed to requeue abandoned jobs: %w", err)
		}
		n++
	}
}

// Handler processes one batch job. Its error is logged; the job is
// acknowledged either way because item failures are reported to the records.
type Handler func(ctx context.Context, job models.BatchJob) error

// Run takes jobs until ctx is cancelled. A job that has been taken is always
// finished, even after cancellation.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	logCtx := slog.With("consumerId", c.id, "queue", c.queue.key)
	if n, err := c.Recover(ctx); err != nil {
		return err
	} else if n > 0 {
		logCtx.Warn("Requeued abandoned jobs.", "count", n)
	}
	logCtx.Info("Consumer started.")

	for {
		if ctx.Err() != nil {
			logCtx.Info("Consumer stopping.")
			return nil
		}
		payload, err := c.queue.client.BLMove(ctx, c.queue.key, c.processingKey, "RIGHT", "LEFT", c.blockTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logCtx.Error("Failed to take job from queue.", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}
		c.process(context.WithoutCancel(ctx), logCtx, payload, handle)
	}
}

func (c *Consumer) process(ctx context.Context, logCtx *slog.Logger, payload string, handle Handler) {
	defer c.ack(ctx, logCtx, payload)

	e, job, err := DecodeJob([]byte(payload))
	if err != nil {
		logCtx.Error("Dropping undecodable job.", "error", err)
		return
	}
	logCtx = logCtx.With("batchId", job.BatchID, "jobId", e.ID())
	logCtx.Info("Job taken.", "items", len(job.Items))
	if err := handle(ctx, job); err != nil {
		logCtx.Error("Job handler failed.", "error", err)
		return
	}
	logCtx.Info("Job done.")
}

func (c *Consumer) ack(ctx context.Context, logCtx *slog.Logger, payload string) {
	if err := c.queue.client.LRem(ctx, c.processingKey, 1, payload).Err(); err != nil {
		logCtx.Error("Failed to acknowledge job; it will be redelivered.", "error", err)
	}
}
