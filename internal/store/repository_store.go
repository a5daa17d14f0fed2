package store

import (
	"context"
	"time"
)

type Repository struct {
	RepositoryID       string `param:"repository_id"`
	Provider           Provider
	ProviderRepoID     int64
	Owner              string
	Name               string
	DefaultBranch      string
	InstallationID     *int64
	GitlabCredentialID *int64
	WebhookTokenKey    *string
	IsActive           bool
	CreatedOn          time.Time
	UpdatedOn          time.Time
}

func (r *Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

type RepositoryStore interface {
	CreateRepository(context.Context, *Repository) (*Repository, error)
	// UpsertRepository inserts or refreshes a repository keyed by
	// (provider, provider_repo_id), reactivating it. Returns the number of
	// rows actually changed so a no-op upsert reports zero.
	UpsertRepository(context.Context, *Repository) (int64, error)
	ReadRepositoryByID(context.Context, string) (*Repository, error)
	ReadRepositoryByProviderID(context.Context, Provider, int64) (*Repository, error)
	ListRepositories(context.Context) ([]*Repository, error)
	UpdateRepositoryWebhookTokenKey(context.Context, string, string) (int64, error)
	DeactivateRepository(context.Context, string, time.Time) (int64, error)
	DeactivateRepositoryByProviderID(context.Context, Provider, int64, time.Time) (int64, error)
	DeactivateInstallationRepositories(context.Context, int64, time.Time) (int64, error)
}
