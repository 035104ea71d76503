package core

import "time"

// Queue/Redis keys and the default visibility timeout.
const (
	PendingBadgeQueueKey    = "pending_badge_events"
	ProcessingBadgeQueueKey = "processing_badge_events"
	// DefaultVisibilityTimeout is how long a worker may hold a reserved
	// event before it becomes eligible for requeue.
	DefaultVisibilityTimeout = 30 * time.Second
)
