package store

import (
	"context"
	"time"
)

type GitlabCredential struct {
	GitlabCredentialID int64
	BaseURL            string
	AccountLogin       string
	TokenKey           string
	IsActive           bool
	CreatedOn          time.Time
	UpdatedOn          time.Time
}

type GitlabCredentialStore interface {
	CreateGitlabCredential(context.Context, string, string, string) (*GitlabCredential, error)
	ReadGitlabCredentialByID(context.Context, int64) (*GitlabCredential, error)
	ListActiveGitlabCredentials(context.Context) ([]*GitlabCredential, error)
	DeactivateGitlabCredential(context.Context, int64, time.Time) (int64, error)
}
