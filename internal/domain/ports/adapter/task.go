package adapter

import "context"

// TaskRunner runs work in the background, detached from the submitting request.
// Submit does not block; a saturated runner returns an error and drops the task.
type TaskRunner interface {
	Submit(task func(ctx context.Context) error) error
}
