package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type WebhookEventSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewWebhookEventSQLiteStore(rdb, rwdb *sql.DB) *WebhookEventSQLiteStore {
	return &WebhookEventSQLiteStore{rdb, rwdb}
}

func (store *WebhookEventSQLiteStore) CreateWebhookEvent(
	ctx context.Context,
	provider Provider,
	deliveryID, eventType, payload string,
) (*WebhookEvent, bool, error) {
	e := &WebhookEvent{
		Provider:   provider,
		DeliveryID: deliveryID,
		EventType:  eventType,
		Payload:    payload,
	}
	// The conflict clause closes the race between concurrent duplicate
	// deliveries: the (provider, delivery_id) unique index is the
	// idempotency key and only the first insert returns a row.
	query := `insert into webhook_events (provider, delivery_id, event_type, payload)
	values ($1, $2, $3, $4)
	on conflict (provider, delivery_id) do nothing
	returning webhook_event_id, received_on`
	err := sqlscan.Get(ctx, store.rwdb, e, query, e.Provider, e.DeliveryID, e.EventType, e.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := store.ReadWebhookEventByDeliveryID(ctx, provider, deliveryID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (store *WebhookEventSQLiteStore) ReadWebhookEventByID(
	ctx context.Context,
	webhookEventID int64,
) (*WebhookEvent, error) {
	e := new(WebhookEvent)
	query := `select * from webhook_events where webhook_event_id = $1`
	if err := sqlscan.Get(ctx, store.rdb, e, query, webhookEventID); err != nil {
		return nil, err
	}
	return e, nil
}

func (store *WebhookEventSQLiteStore) ReadWebhookEventByDeliveryID(
	ctx context.Context,
	provider Provider,
	deliveryID string,
) (*WebhookEvent, error) {
	e := new(WebhookEvent)
	query := `select * from webhook_events where provider = $1 and delivery_id = $2`
	if err := sqlscan.Get(ctx, store.rwdb, e, query, provider, deliveryID); err != nil {
		return nil, err
	}
	return e, nil
}

func (store *WebhookEventSQLiteStore) ClaimWebhookEvent(
	ctx context.Context,
	webhookEventID int64,
	claimedOn time.Time,
) (bool, error) {
	query := `update webhook_events
	set claimed_on = $1
	where webhook_event_id = $2 and claimed_on is null`
	res, err := store.rwdb.ExecContext(ctx, query, claimedOn, webhookEventID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (store *WebhookEventSQLiteStore) CompleteWebhookEvent(
	ctx context.Context,
	webhookEventID int64,
	repositoryID, note, errorMessage *string,
) error {
	query := `update webhook_events
	set processed = 1,
		repository_id = coalesce($1, repository_id),
		note = $2,
		error_message = $3
	where webhook_event_id = $4`
	_, err := store.rwdb.ExecContext(ctx, query, repositoryID, note, errorMessage, webhookEventID)
	return err
}

func (store *WebhookEventSQLiteStore) ListUnclaimedWebhookEvents(
	ctx context.Context,
	limit int64,
) ([]*WebhookEvent, error) {
	query := `select * from webhook_events
	where processed = 0 and claimed_on is null
	order by webhook_event_id
	limit $1`
	events := make([]*WebhookEvent, 0)
	err := sqlscan.Select(ctx, store.rdb, &events, query, limit)
	return events, err
}
