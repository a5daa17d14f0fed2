package store

import (
	"context"
	"time"
)

// Credential is one opaque encrypted secret. The cipher column holds
// AES-GCM ciphertext; plaintext never reaches this package.
type Credential struct {
	Key       string
	Cipher    string
	CreatedOn time.Time
	UpdatedOn time.Time
}

type CredentialStore interface {
	PutCredential(context.Context, string, string) error
	ReadCredentialByKey(context.Context, string) (*Credential, error)
	DeleteCredential(context.Context, string) error
}
