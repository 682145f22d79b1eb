// Package kafkaqueue implements cascade.Queue on top of
// github.com/segmentio/kafka-go: one writer and one consumer-group
// reader on a single topic, carrying JSON-encoded Job payloads. A
// message that fails to unmarshal is still committed, so the reader
// does not get stuck on a poison message.
package kafkaqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/taskgraph/scheduler/internal/cascade"
	"github.com/taskgraph/scheduler/internal/logger"
)

const defaultTopic = "scheduler-cascade"

// Queue manages producing and consuming cascade jobs via Kafka.
type Queue struct {
	writer *kafka.Writer
	reader *kafka.Reader
	log    *zap.Logger
}

// New creates a Queue connected to the given brokers. It requires at
// least one broker address.
func New(brokers []string) (*Queue, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafkaqueue: no brokers configured")
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    defaultTopic,
		Balancer: &kafka.LeastBytes{},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    defaultTopic,
		GroupID:  "scheduler-cascade-workers",
		MinBytes: 10e3,
		MaxBytes: 10e6,
		MaxWait:  2 * time.Second,
	})

	return &Queue{
		writer: writer,
		reader: reader,
		log:    logger.WithComponent("kafka-cascade-queue"),
	}, nil
}

var _ cascade.Queue = (*Queue)(nil)

// Enqueue publishes a job to the cascade topic.
func (q *Queue) Enqueue(ctx context.Context, job cascade.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal cascade job: %w", err)
	}

	if err := q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.TaskID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("failed to write cascade job to kafka: %w", err)
	}

	q.log.Debug("enqueued cascade job", zap.String("task_id", job.TaskID), zap.String("version_token", job.VersionToken))
	return nil
}

// Subscribe runs a non-blocking listener goroutine that dispatches
// every job on the topic to handler.
func (q *Queue) Subscribe(ctx context.Context, handler cascade.Handler) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				q.log.Info("cascade subscription stopped")
				return
			default:
				msg, err := q.reader.FetchMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					q.log.Warn("failed to fetch cascade job", zap.Error(err))
					continue
				}

				var job cascade.Job
				if err := json.Unmarshal(msg.Value, &job); err != nil {
					q.log.Error("failed to unmarshal cascade job, skipping", zap.Error(err))
					q.reader.CommitMessages(ctx, msg)
					continue
				}

				if err := handler(ctx, job); err != nil {
					q.log.Error("cascade handler failed", zap.String("task_id", job.TaskID), zap.Error(err))
				}

				if err := q.reader.CommitMessages(ctx, msg); err != nil {
					q.log.Error("failed to commit cascade job offset", zap.Error(err))
				}
			}
		}
	}()
	return nil
}

// Close releases the writer and reader connections.
func (q *Queue) Close() error {
	var firstErr error
	if err := q.writer.Close(); err != nil {
		firstErr = err
	}
	if err := q.reader.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
