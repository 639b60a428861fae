package notifier

import "context"

// Notifier is the notification sink: fire-and-forget, no return value
// consumed beyond an enqueue error. Retries, if any, are the sink's
// responsibility.
type Notifier interface {
	Notify(ctx context.Context, userID, roomID string) error
	Close() error
}
