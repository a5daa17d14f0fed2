package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/haatos/forgeci/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const testWebhookSecret = "wh-secret"

func appConfigCredential() *store.Credential {
	return &store.Credential{
		Key:    GitHubAppCredentialKey,
		Cipher: `{"id": 1234, "slug": "forgeci", "webhook_secret": "` + testWebhookSecret + `"}`,
	}
}

func signGitHub(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newTestWebhookService(
	mes *MockWebhookEventStore,
	mrs *MockRepositoryStore,
	mcs *MockCredentialStore,
	queue *EventQueue,
) *WebhookService {
	credentials := NewCredentialService(mcs, PlainEncrypter{})
	return NewWebhookService(mes, mrs, credentials, queue)
}

func TestIngestGitHub(t *testing.T) {
	payload := []byte(`{"ref": "refs/heads/main", "repository": {"id": 42}}`)

	t.Run("success - new delivery is recorded and queued", func(t *testing.T) {
		// arrange
		mes := &MockWebhookEventStore{}
		mrs := &MockRepositoryStore{}
		mcs := &MockCredentialStore{}
		queue := NewEventQueue(1, 8)
		svc := newTestWebhookService(mes, mrs, mcs, queue)

		mcs.On("ReadCredentialByKey", mock.Anything, GitHubAppCredentialKey).
			Return(appConfigCredential(), nil)
		mes.On("CreateWebhookEvent",
			mock.Anything, store.ProviderGitHub, "d-1", "push", string(payload)).
			Return(&store.WebhookEvent{
				WebhookEventID: 1,
				Provider:       store.ProviderGitHub,
				DeliveryID:     "d-1",
				EventType:      "push",
				Payload:        string(payload),
			}, true, nil)

		// act
		created, err := svc.IngestGitHub(
			context.Background(), "d-1", "push", signGitHub(payload, testWebhookSecret), payload,
		)

		// assert
		assert.Nil(t, err)
		assert.True(t, created)
		mes.AssertExpectations(t)
	})

	t.Run("success - duplicate delivery is acked without re-queueing", func(t *testing.T) {
		// arrange
		mes := &MockWebhookEventStore{}
		mrs := &MockRepositoryStore{}
		mcs := &MockCredentialStore{}
		// no workers and capacity for one: a second enqueue would fill it
		queue := NewEventQueue(1, 2)
		svc := newTestWebhookService(mes, mrs, mcs, queue)

		mcs.On("ReadCredentialByKey", mock.Anything, GitHubAppCredentialKey).
			Return(appConfigCredential(), nil)
		existing := &store.WebhookEvent{
			WebhookEventID: 1,
			Provider:       store.ProviderGitHub,
			DeliveryID:     "d-1",
			EventType:      "push",
			Payload:        string(payload),
		}
		mes.On("CreateWebhookEvent",
			mock.Anything, store.ProviderGitHub, "d-1", "push", string(payload)).
			Return(existing, true, nil).Once()
		mes.On("CreateWebhookEvent",
			mock.Anything, store.ProviderGitHub, "d-1", "push", string(payload)).
			Return(existing, false, nil).Once()

		sig := signGitHub(payload, testWebhookSecret)

		// act
		first, err1 := svc.IngestGitHub(context.Background(), "d-1", "push", sig, payload)
		second, err2 := svc.IngestGitHub(context.Background(), "d-1", "push", sig, payload)

		// assert
		assert.Nil(t, err1)
		assert.Nil(t, err2)
		assert.True(t, first)
		assert.False(t, second)
		// the single-slot partition still has room: the duplicate never
		// touched the queue
		assert.Nil(t, queue.Enqueue(existing))
	})

	t.Run("success - full queue still acks the delivery", func(t *testing.T) {
		// arrange
		mes := &MockWebhookEventStore{}
		mrs := &MockRepositoryStore{}
		mcs := &MockCredentialStore{}
		queue := NewEventQueue(1, 1)
		svc := newTestWebhookService(mes, mrs, mcs, queue)
		queue.Enqueue(&store.WebhookEvent{DeliveryID: "filler", Payload: "{}"})

		mcs.On("ReadCredentialByKey", mock.Anything, GitHubAppCredentialKey).
			Return(appConfigCredential(), nil)
		mes.On("CreateWebhookEvent",
			mock.Anything, store.ProviderGitHub, "d-1", "push", string(payload)).
			Return(&store.WebhookEvent{WebhookEventID: 2, Payload: string(payload)}, true, nil)

		// act
		created, err := svc.IngestGitHub(
			context.Background(), "d-1", "push", signGitHub(payload, testWebhookSecret), payload,
		)

		// assert: the event is durable, recovery picks it up later
		assert.Nil(t, err)
		assert.True(t, created)
	})

	t.Run("failure - invalid signature rejects before anything is stored", func(t *testing.T) {
		// arrange
		mes := &MockWebhookEventStore{}
		mrs := &MockRepositoryStore{}
		mcs := &MockCredentialStore{}
		svc := newTestWebhookService(mes, mrs, mcs, NewEventQueue(1, 8))

		mcs.On("ReadCredentialByKey", mock.Anything, GitHubAppCredentialKey).
			Return(appConfigCredential(), nil)

		// act
		_, err := svc.IngestGitHub(
			context.Background(), "d-1", "push", signGitHub(payload, "wrong-secret"), payload,
		)

		// assert
		var auth AuthenticationError
		assert.ErrorAs(t, err, &auth)
		mes.AssertNotCalled(t, "CreateWebhookEvent",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failure - no app configured", func(t *testing.T) {
		// arrange
		mes := &MockWebhookEventStore{}
		mrs := &MockRepositoryStore{}
		mcs := &MockCredentialStore{}
		svc := newTestWebhookService(mes, mrs, mcs, NewEventQueue(1, 8))

		mcs.On("ReadCredentialByKey", mock.Anything, GitHubAppCredentialKey).
			Return(nil, sql.ErrNoRows)

		// act
		_, err := svc.IngestGitHub(
			context.Background(), "d-1", "push", signGitHub(payload, testWebhookSecret), payload,
		)

		// assert
		var auth AuthenticationError
		assert.ErrorAs(t, err, &auth)
	})

	t.Run("failure - missing delivery id", func(t *testing.T) {
		// arrange
		mes := &MockWebhookEventStore{}
		mrs := &MockRepositoryStore{}
		mcs := &MockCredentialStore{}
		svc := newTestWebhookService(mes, mrs, mcs, NewEventQueue(1, 8))

		mcs.On("ReadCredentialByKey", mock.Anything, GitHubAppCredentialKey).
			Return(appConfigCredential(), nil)

		// act
		_, err := svc.IngestGitHub(
			context.Background(), "", "push", signGitHub(payload, testWebhookSecret), payload,
		)

		// assert
		var validation ValidationError
		assert.ErrorAs(t, err, &validation)
	})
}

func TestIngestGitLab(t *testing.T) {
	payload := []byte(`{"object_kind": "push", "project": {"id": 9}}`)
	tokenKey := "gitlab:webhook:repo-1"

	activeRepo := func() *store.Repository {
		key := tokenKey
		return &store.Repository{
			RepositoryID:    "repo-1",
			Provider:        store.ProviderGitLab,
			ProviderRepoID:  9,
			WebhookTokenKey: &key,
			IsActive:        true,
		}
	}

	t.Run("success - matching token records the event", func(t *testing.T) {
		// arrange
		mes := &MockWebhookEventStore{}
		mrs := &MockRepositoryStore{}
		mcs := &MockCredentialStore{}
		svc := newTestWebhookService(mes, mrs, mcs, NewEventQueue(1, 8))

		mrs.On("ReadRepositoryByID", mock.Anything, "repo-1").Return(activeRepo(), nil)
		mcs.On("ReadCredentialByKey", mock.Anything, tokenKey).
			Return(&store.Credential{Key: tokenKey, Cipher: "hook-token"}, nil)
		mes.On("CreateWebhookEvent",
			mock.Anything, store.ProviderGitLab, "g-1", "Push Hook", string(payload)).
			Return(&store.WebhookEvent{WebhookEventID: 1, Payload: string(payload)}, true, nil)

		// act
		created, err := svc.IngestGitLab(
			context.Background(), "repo-1", "g-1", "Push Hook", "hook-token", payload,
		)

		// assert
		assert.Nil(t, err)
		assert.True(t, created)
	})

	t.Run("failure - wrong token", func(t *testing.T) {
		// arrange
		mes := &MockWebhookEventStore{}
		mrs := &MockRepositoryStore{}
		mcs := &MockCredentialStore{}
		svc := newTestWebhookService(mes, mrs, mcs, NewEventQueue(1, 8))

		mrs.On("ReadRepositoryByID", mock.Anything, "repo-1").Return(activeRepo(), nil)
		mcs.On("ReadCredentialByKey", mock.Anything, tokenKey).
			Return(&store.Credential{Key: tokenKey, Cipher: "hook-token"}, nil)

		// act
		_, err := svc.IngestGitLab(
			context.Background(), "repo-1", "g-1", "Push Hook", "wrong", payload,
		)

		// assert
		var auth AuthenticationError
		assert.ErrorAs(t, err, &auth)
		mes.AssertNotCalled(t, "CreateWebhookEvent",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failure - unknown repository looks the same as a bad token", func(t *testing.T) {
		// arrange
		mes := &MockWebhookEventStore{}
		mrs := &MockRepositoryStore{}
		mcs := &MockCredentialStore{}
		svc := newTestWebhookService(mes, mrs, mcs, NewEventQueue(1, 8))

		mrs.On("ReadRepositoryByID", mock.Anything, "ghost").Return(nil, sql.ErrNoRows)

		// act
		_, err := svc.IngestGitLab(
			context.Background(), "ghost", "g-1", "Push Hook", "hook-token", payload,
		)

		// assert
		var auth AuthenticationError
		assert.ErrorAs(t, err, &auth)
	})

	t.Run("failure - repository without a webhook token", func(t *testing.T) {
		// arrange
		mes := &MockWebhookEventStore{}
		mrs := &MockRepositoryStore{}
		mcs := &MockCredentialStore{}
		svc := newTestWebhookService(mes, mrs, mcs, NewEventQueue(1, 8))

		repo := activeRepo()
		repo.WebhookTokenKey = nil
		mrs.On("ReadRepositoryByID", mock.Anything, "repo-1").Return(repo, nil)

		// act
		_, err := svc.IngestGitLab(
			context.Background(), "repo-1", "g-1", "Push Hook", "hook-token", payload,
		)

		// assert
		var auth AuthenticationError
		assert.ErrorAs(t, err, &auth)
	})
}

func TestRecoverUnprocessed(t *testing.T) {
	t.Run("success - unclaimed events are re-queued", func(t *testing.T) {
		// arrange
		mes := &MockWebhookEventStore{}
		mrs := &MockRepositoryStore{}
		mcs := &MockCredentialStore{}
		queue := NewEventQueue(1, 8)
		svc := newTestWebhookService(mes, mrs, mcs, queue)

		mes.On("ListUnclaimedWebhookEvents", mock.Anything, int64(1000)).
			Return([]*store.WebhookEvent{
				{WebhookEventID: 1, Payload: "{}"},
				{WebhookEventID: 2, Payload: "{}"},
			}, nil)

		var mu sync.Mutex
		var seen []int64
		done := make(chan struct{})
		queue.Run(func(e *store.WebhookEvent) {
			mu.Lock()
			seen = append(seen, e.WebhookEventID)
			if len(seen) == 2 {
				close(done)
			}
			mu.Unlock()
		})
		defer queue.Shutdown()

		// act
		err := svc.RecoverUnprocessed(context.Background())

		// assert
		assert.Nil(t, err)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("recovered events were not processed")
		}
	})
}
