package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// TaskType enumerates the background jobs the task orchestrator
// dispatches onto the worker stream.
type TaskType string

const (
	TaskTypeAutoCode      TaskType = "auto_code"
	TaskTypeGenerateTheory TaskType = "generate_theory"
)

// Task is the in-process representation of a unit of dispatched work before
// it is serialized onto the stream.
type Task struct {
	TaskID      string // the orchestrator's task record id; correlates stream message back to its status record
	TaskType    TaskType
	ProjectID   string
	OwnerID     string
	InterviewID string // set for TaskTypeAutoCode
	TraceID     *string
	Attempt     int
}

// ProjectStreamName returns the per-project Redis stream name, so work for
// one project never starves behind another's backlog.
func ProjectStreamName(projectID string) string {
	return fmt.Sprintf("theory-tasks:project-%s", projectID)
}

const projectStreamPattern = "theory-tasks:project-*"

// DiscoverProjectStreams lists the currently active per-project stream keys,
// so a worker process can fan a consumer out over every project with
// pending work instead of being told the set up front.
func DiscoverProjectStreams(ctx context.Context, client redis.UniversalClient) ([]string, error) {
	var streams []string
	iter := client.Scan(ctx, 0, projectStreamPattern, 100).Iterator()
	for iter.Next(ctx) {
		streams = append(streams, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning project streams: %w", err)
	}
	return streams, nil
}
