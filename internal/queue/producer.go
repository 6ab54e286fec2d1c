package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"groundedtheory.dev/core/common/logger"
)

// EventMessage is the wire shape enqueued for a dispatched background task.
type EventMessage struct {
	TaskID      string
	TaskType    TaskType
	ProjectID   string
	OwnerID     string
	InterviewID string
	TraceID     *string
	Attempt     int
}

type Producer interface {
	Enqueue(ctx context.Context, stream string, msg EventMessage) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
}

func NewRedisProducer(client *redis.Client) Producer {
	return &redisProducer{client: client}
}

func (p *redisProducer) Enqueue(ctx context.Context, stream string, msg EventMessage) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ProjectID: &msg.ProjectID,
		Component: "core.queue.producer",
	})

	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := map[string]any{
		"task_id":    msg.TaskID,
		"task_type":  string(msg.TaskType),
		"project_id": msg.ProjectID,
		"attempt":    attempt,
	}
	if msg.OwnerID != "" {
		fields["owner_id"] = msg.OwnerID
	}
	if msg.InterviewID != "" {
		fields["interview_id"] = msg.InterviewID
	}

	traceIDStr := ""
	if msg.TraceID != nil && *msg.TraceID != "" {
		fields["trace_id"] = *msg.TraceID
		traceIDStr = *msg.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: 100_000,
		Approx: true,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue task (stream=%s): %w", stream, err)
	}

	slog.InfoContext(ctx, "enqueued task",
		"task_type", msg.TaskType,
		"attempt", attempt,
		"trace_id", traceIDStr,
		"stream", stream)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
