package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, enabling zero-touch logging where business
// context (project_id, task_id, etc.) is automatically included in all log statements.
type LogFields struct {
	ProjectID   *string // Project UUID
	InterviewID *string // Interview UUID
	FragmentID  *string // Fragment UUID
	TaskID      *string // Background task ID (snowflake)
	StageID     *string // Redis stream message ID
	Component   string  // Component name (OTel semantic convention style, e.g., "core.theory.engine")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// mergeFields merges two LogFields, preferring non-nil/non-empty values from 'new'.
func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.ProjectID != nil {
		result.ProjectID = new.ProjectID
	}
	if new.InterviewID != nil {
		result.InterviewID = new.InterviewID
	}
	if new.FragmentID != nil {
		result.FragmentID = new.FragmentID
	}
	if new.TaskID != nil {
		result.TaskID = new.TaskID
	}
	if new.StageID != nil {
		result.StageID = new.StageID
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like prompts or error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
