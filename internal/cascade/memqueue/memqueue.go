// Package memqueue is an in-process cascade.Queue backed by a
// buffered channel. It is used by tests and by the single-process
// development mode (config.QueueBackendMemory).
package memqueue

import (
	"context"
	"fmt"

	"github.com/taskgraph/scheduler/internal/cascade"
	"github.com/taskgraph/scheduler/internal/logger"
	"go.uber.org/zap"
)

// Queue is a channel-backed cascade.Queue. It drops no jobs on a full
// buffer — Enqueue blocks
// (subject to ctx) instead, since losing a cascade job would violate
// the at-least-once delivery contract.
type Queue struct {
	jobs   chan cascade.Job
	closed chan struct{}
}

// New returns a Queue with the given buffer capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Queue{
		jobs:   make(chan cascade.Job, capacity),
		closed: make(chan struct{}),
	}
}

var _ cascade.Queue = (*Queue)(nil)

func (q *Queue) Enqueue(ctx context.Context, job cascade.Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-q.closed:
		return fmt.Errorf("memqueue: closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Subscribe(ctx context.Context, handler cascade.Handler) error {
	go func() {
		for {
			select {
			case job := <-q.jobs:
				if err := handler(ctx, job); err != nil {
					logger.WithComponent("memqueue").Error("handler failed for job",
						zap.String("task_id", job.TaskID), zap.Error(err))
				}
			case <-q.closed:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (q *Queue) Close() error {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
	return nil
}
