// Package cascade implements the asynchronous forward-pass
// recalculation pipeline: the durable cascade queue abstraction, its
// worker pool, and the version-guarded recalculation logic itself.
package cascade

import "context"

// Job is the payload carried by the cascade queue: a task to
// recompute, tagged with the version token that was current when the
// job was enqueued. A worker that reads a task whose stored token no
// longer matches discards the job — a newer mutation has already
// enqueued its own.
type Job struct {
	TaskID       string `json:"task_id"`
	VersionToken string `json:"version_token"`
}

// Handler processes one dequeued job. Delivery is at-least-once;
// handlers must be idempotent, which the version-token guard in
// Recalculator.RecalcFrom provides.
type Handler func(ctx context.Context, job Job) error

// Queue is the durable FIFO transport contract for cascade Jobs.
// There is a single job kind: a Job carries only the task id and the
// version token, and no function-name field.
type Queue interface {
	// Enqueue publishes a job. Implementations must not block past
	// ctx's deadline.
	Enqueue(ctx context.Context, job Job) error
	// Subscribe registers a handler and begins dispatching jobs to it
	// in the background; it returns once the subscription is
	// established, not when it ends. The subscription runs until ctx
	// is canceled.
	Subscribe(ctx context.Context, handler Handler) error
	// Close releases the queue's underlying connections.
	Close() error
}
