package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/haatos/forgeci/internal/security"
	"github.com/haatos/forgeci/internal/store"
)

// CredentialService is the opaque encrypted credential store: secrets go in
// as plaintext, live in the database as AES-GCM ciphertext, and come back
// out only here. A decrypt failure (rotated key, corrupt row) fails closed
// as a CredentialError.
type CredentialService struct {
	credentialStore store.CredentialStore
	encrypter       security.Encrypter
}

func NewCredentialService(
	s store.CredentialStore,
	encrypter security.Encrypter,
) *CredentialService {
	return &CredentialService{credentialStore: s, encrypter: encrypter}
}

func (s *CredentialService) PutCredential(ctx context.Context, key, plaintext string) error {
	cipher := s.encrypter.EncryptAES(plaintext)
	return s.credentialStore.PutCredential(ctx, key, cipher)
}

func (s *CredentialService) GetCredential(ctx context.Context, key string) ([]byte, error) {
	c, err := s.credentialStore.ReadCredentialByKey(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError{Resource: "credential " + key}
		}
		return nil, err
	}
	plaintext, err := s.encrypter.DecryptAES(c.Cipher)
	if err != nil {
		return nil, CredentialError{Key: key, Err: err}
	}
	return plaintext, nil
}

func (s *CredentialService) DeleteCredential(ctx context.Context, key string) error {
	return s.credentialStore.DeleteCredential(ctx, key)
}
