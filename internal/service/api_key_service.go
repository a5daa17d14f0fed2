package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/haatos/forgeci/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyService issues and verifies the keys guarding the management API.
// A key is "<name>.<secret>"; only a bcrypt hash of the secret is stored,
// so the full key is shown once at creation and cannot be recovered.
type APIKeyService struct {
	store store.APIKeyStore
}

func NewAPIKeyService(store store.APIKeyStore) *APIKeyService {
	return &APIKeyService{store: store}
}

func (s *APIKeyService) CreateAPIKey(ctx context.Context, name string) (string, *store.APIKey, error) {
	if name == "" || strings.Contains(name, ".") {
		return "", nil, ValidationError{Message: "invalid api key name"}
	}
	secret := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}
	key, err := s.store.CreateAPIKey(ctx, name, string(hash))
	if err != nil {
		return "", nil, err
	}
	return name + "." + secret, key, nil
}

func (s *APIKeyService) VerifyAPIKey(ctx context.Context, value string) error {
	name, secret, ok := strings.Cut(value, ".")
	if !ok || name == "" || secret == "" {
		return AuthenticationError{Message: "invalid api key"}
	}
	key, err := s.store.ReadAPIKeyByName(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthenticationError{Message: "invalid api key"}
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(secret)); err != nil {
		return AuthenticationError{Message: "invalid api key"}
	}
	return nil
}

func (s *APIKeyService) ListAPIKeys(ctx context.Context) ([]*store.APIKey, error) {
	return s.store.ListAPIKeys(ctx)
}

func (s *APIKeyService) DeleteAPIKey(ctx context.Context, id int64) error {
	return s.store.DeleteAPIKey(ctx, id)
}
