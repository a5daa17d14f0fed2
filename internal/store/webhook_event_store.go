package store

import (
	"context"
	"time"
)

type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

type WebhookEvent struct {
	WebhookEventID int64
	Provider       Provider
	DeliveryID     string
	EventType      string
	Payload        string
	RepositoryID   *string
	ReceivedOn     time.Time
	ClaimedOn      *time.Time
	Processed      bool
	// Note records informational processing outcomes (skips, created
	// build ids); ErrorMessage is set only when a handler failed.
	Note         *string
	ErrorMessage *string
}

type WebhookEventStore interface {
	// CreateWebhookEvent inserts a new event unless one with the same
	// (provider, delivery_id) already exists. The bool reports whether a
	// row was actually created.
	CreateWebhookEvent(context.Context, Provider, string, string, string) (*WebhookEvent, bool, error)
	ReadWebhookEventByID(context.Context, int64) (*WebhookEvent, error)
	ReadWebhookEventByDeliveryID(context.Context, Provider, string) (*WebhookEvent, error)
	// ClaimWebhookEvent marks the event as owned by a worker. The bool is
	// false when the event was already claimed by someone else.
	ClaimWebhookEvent(context.Context, int64, time.Time) (bool, error)
	CompleteWebhookEvent(context.Context, int64, *string, *string, *string) error
	ListUnclaimedWebhookEvents(context.Context, int64) ([]*WebhookEvent, error)
}
