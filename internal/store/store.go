package store

import (
	"context"
	"time"

	"pdpnav/internal/model"
)

// ScheduleRecord is one published schedule archived for later inspection.
type ScheduleRecord struct {
	ID           string         `json:"id"`
	SnapshotTime int64          `json:"snapshotTime"`
	CreatedAt    time.Time      `json:"createdAt"`
	Cost         float64        `json:"cost"`
	Schedule     model.Schedule `json:"schedule"`
}

// Subscription is a webhook endpoint that receives schedule publications.
type Subscription struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// Push is one queued webhook delivery of a published schedule.
type Push struct {
	ID             string
	SubscriptionID string
	URL            string
	Secret         string
	EventType      string
	Payload        []byte
	Attempts       int
}

// Store persists published schedules and the webhook push queue.
type Store interface {
	SaveSchedule(ctx context.Context, rec ScheduleRecord) (string, error)
	LatestSchedule(ctx context.Context) (*ScheduleRecord, error)
	ListSchedules(ctx context.Context, limit int) ([]ScheduleRecord, error)

	CreateSubscription(ctx context.Context, url, secret string) (Subscription, error)
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	EnqueuePush(ctx context.Context, p Push) error
	FetchDuePushes(ctx context.Context, limit int) ([]Push, error)
	MarkPush(ctx context.Context, id string, success bool, next *time.Time, lastErr string, code int) error
	FailPush(ctx context.Context, id string, lastErr string, code int) error
}
