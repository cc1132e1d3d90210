package outbox

import (
	"context"
	"time"
)

// Repository defines the interface for outbox persistence.
// Save joins the transaction carried by ctx when there is one.
type Repository interface {
	Save(ctx context.Context, msg *Message) error

	// GetUnpublished returns due messages, oldest first.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)

	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, err string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string) error

	// CountPending counts messages neither published nor dead-lettered.
	CountPending(ctx context.Context) (int64, error)

	// DeleteOld removes published messages older than the retention period.
	DeleteOld(ctx context.Context, olderThanDays int) (int64, error)
}
