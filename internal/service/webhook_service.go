package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"

	"github.com/haatos/forgeci/internal/forge"
	"github.com/haatos/forgeci/internal/security"
	"github.com/haatos/forgeci/internal/store"
)

// GitHubAppCredentialKey is the credential-store key of the GitHub App
// configuration produced by the manifest flow.
const GitHubAppCredentialKey = "github:app"

type WebhookService struct {
	eventStore      store.WebhookEventStore
	repositoryStore store.RepositoryStore
	credentials     *CredentialService
	queue           *EventQueue
}

func NewWebhookService(
	eventStore store.WebhookEventStore,
	repositoryStore store.RepositoryStore,
	credentials *CredentialService,
	queue *EventQueue,
) *WebhookService {
	return &WebhookService{
		eventStore:      eventStore,
		repositoryStore: repositoryStore,
		credentials:     credentials,
		queue:           queue,
	}
}

// IngestGitHub authenticates and durably records one GitHub delivery. The
// insert is the only work that must finish before acking: interpretation
// happens later in the event processor. Returns true when the delivery was
// new, false when it was a duplicate (both are acked as success).
func (s *WebhookService) IngestGitHub(
	ctx context.Context,
	deliveryID, eventType, signature string,
	payload []byte,
) (bool, error) {
	secret, err := s.githubWebhookSecret(ctx)
	if err != nil {
		return false, err
	}
	if !security.VerifyGitHubSignature(payload, signature, secret) {
		return false, AuthenticationError{Message: "invalid webhook signature"}
	}
	if deliveryID == "" || eventType == "" {
		return false, ValidationError{Message: "missing delivery id or event type"}
	}
	return s.record(ctx, store.ProviderGitHub, deliveryID, eventType, payload)
}

// IngestGitLab authenticates against the per-repository webhook token. An
// unknown repository id cannot be authenticated, so it is rejected the same
// way as a bad token.
func (s *WebhookService) IngestGitLab(
	ctx context.Context,
	repositoryID, deliveryID, eventType, token string,
	payload []byte,
) (bool, error) {
	repo, err := s.repositoryStore.ReadRepositoryByID(ctx, repositoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, AuthenticationError{Message: "invalid webhook token"}
		}
		return false, err
	}
	if repo.WebhookTokenKey == nil {
		return false, AuthenticationError{Message: "invalid webhook token"}
	}
	stored, err := s.credentials.GetCredential(ctx, *repo.WebhookTokenKey)
	if err != nil {
		return false, err
	}
	if !security.VerifyGitLabToken(token, string(stored)) {
		return false, AuthenticationError{Message: "invalid webhook token"}
	}
	if deliveryID == "" || eventType == "" {
		return false, ValidationError{Message: "missing delivery id or event type"}
	}
	return s.record(ctx, store.ProviderGitLab, deliveryID, eventType, payload)
}

func (s *WebhookService) record(
	ctx context.Context,
	provider store.Provider,
	deliveryID, eventType string,
	payload []byte,
) (bool, error) {
	e, created, err := s.eventStore.CreateWebhookEvent(
		ctx, provider, deliveryID, eventType, string(payload),
	)
	if err != nil {
		return false, err
	}
	if !created {
		// Duplicate redelivery: already recorded (and possibly processed),
		// ack without re-enqueueing.
		return false, nil
	}
	if err := s.queue.Enqueue(e); err != nil {
		// The event is durable; startup recovery or the next restart picks
		// it up. Still ack to stop the provider from retrying.
		log.Printf("event %d accepted but not queued: %v", e.WebhookEventID, err)
	}
	return true, nil
}

// RecoverUnprocessed re-enqueues events that were persisted but never
// completed, e.g. after a crash between ack and processing.
func (s *WebhookService) RecoverUnprocessed(ctx context.Context) error {
	events, err := s.eventStore.ListUnclaimedWebhookEvents(ctx, 1000)
	if err != nil {
		return err
	}
	for _, e := range events {
		if err := s.queue.Enqueue(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *WebhookService) githubWebhookSecret(ctx context.Context) (string, error) {
	b, err := s.credentials.GetCredential(ctx, GitHubAppCredentialKey)
	if err != nil {
		var notFound NotFoundError
		if errors.As(err, &notFound) {
			// No app configured yet: nothing can authenticate.
			return "", AuthenticationError{Message: "github app not configured"}
		}
		return "", err
	}
	var config forge.AppConfig
	if err := json.Unmarshal(b, &config); err != nil {
		return "", CredentialError{Key: GitHubAppCredentialKey, Err: err}
	}
	return config.WebhookSecret, nil
}
