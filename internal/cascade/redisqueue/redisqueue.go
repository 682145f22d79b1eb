// Package redisqueue implements cascade.Queue on top of
// github.com/redis/go-redis/v9: a thin client wrapper with
// JSON-serialized payloads. Calls use the caller's ctx; the only
// bounded wait is BRPOP's 5s block. A Redis list is used as a simple durable
// FIFO (LPUSH to enqueue, BRPOP to dequeue) — simpler than Kafka's
// topic/partition model, useful for single-node deployments that
// already run Redis for the per-project admission lock
// (internal/scheduler.RedisProjectLocker).
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskgraph/scheduler/internal/cascade"
	"github.com/taskgraph/scheduler/internal/logger"
	"go.uber.org/zap"
)

const defaultKey = "scheduler:cascade:jobs"

// Queue is a Redis-list-backed cascade.Queue.
type Queue struct {
	client *redis.Client
	key    string
}

// New creates a Queue connected to addr (e.g. "localhost:6379").
func New(addr string) *Queue {
	return &Queue{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    defaultKey,
	}
}

var _ cascade.Queue = (*Queue)(nil)

// Enqueue pushes a job onto the head of the list.
func (q *Queue) Enqueue(ctx context.Context, job cascade.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal cascade job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push cascade job to redis: %w", err)
	}
	return nil
}

// Subscribe runs a background goroutine that blocks on the tail of
// the list (BRPOP) and dispatches each job it receives to handler.
func (q *Queue) Subscribe(ctx context.Context, handler cascade.Handler) error {
	log := logger.WithComponent("redis-cascade-queue")
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil || ctx.Err() != nil {
					continue
				}
				log.Warn("failed to pop cascade job", zap.Error(err))
				continue
			}
			if len(res) < 2 {
				continue
			}

			var job cascade.Job
			if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
				log.Error("failed to unmarshal cascade job, skipping", zap.Error(err))
				continue
			}

			if err := handler(ctx, job); err != nil {
				log.Error("cascade handler failed", zap.String("task_id", job.TaskID), zap.Error(err))
			}
		}
	}()
	return nil
}

// Close releases the Redis client connection.
func (q *Queue) Close() error {
	return q.client.Close()
}
