package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type RepositorySQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewRepositorySQLiteStore(rdb, rwdb *sql.DB) *RepositorySQLiteStore {
	return &RepositorySQLiteStore{rdb, rwdb}
}

func (store *RepositorySQLiteStore) CreateRepository(
	ctx context.Context,
	r *Repository,
) (*Repository, error) {
	query := `insert into repositories (
		repository_id,
		provider,
		provider_repo_id,
		owner,
		name,
		default_branch,
		installation_id,
		gitlab_credential_id,
		webhook_token_key
	)
	values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	returning created_on, updated_on, is_active`
	err := sqlscan.Get(
		ctx, store.rwdb, r, query,
		r.RepositoryID, r.Provider, r.ProviderRepoID, r.Owner, r.Name,
		r.DefaultBranch, r.InstallationID, r.GitlabCredentialID, r.WebhookTokenKey,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RepositorySQLiteStore) UpsertRepository(
	ctx context.Context,
	r *Repository,
) (int64, error) {
	return upsertRepository(ctx, store.rwdb, r)
}

// upsertRepository runs against either a *sql.DB or a *sql.Tx so the
// reconciler can reuse it inside its all-or-nothing transaction. The update
// branch is guarded by a change predicate: re-upserting identical remote
// state affects zero rows.
func upsertRepository(ctx context.Context, db execer, r *Repository) (int64, error) {
	query := `insert into repositories (
		repository_id,
		provider,
		provider_repo_id,
		owner,
		name,
		default_branch,
		installation_id,
		gitlab_credential_id,
		updated_on
	)
	values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	on conflict (provider, provider_repo_id) do update set
		owner = excluded.owner,
		name = excluded.name,
		default_branch = excluded.default_branch,
		installation_id = excluded.installation_id,
		gitlab_credential_id = excluded.gitlab_credential_id,
		is_active = 1,
		updated_on = excluded.updated_on
	where owner != excluded.owner
		or name != excluded.name
		or default_branch != excluded.default_branch
		or coalesce(installation_id, -1) != coalesce(excluded.installation_id, -1)
		or coalesce(gitlab_credential_id, -1) != coalesce(excluded.gitlab_credential_id, -1)
		or is_active != 1`
	res, err := db.ExecContext(
		ctx, query,
		r.RepositoryID, r.Provider, r.ProviderRepoID, r.Owner, r.Name,
		r.DefaultBranch, r.InstallationID, r.GitlabCredentialID, time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (store *RepositorySQLiteStore) ReadRepositoryByID(
	ctx context.Context,
	repositoryID string,
) (*Repository, error) {
	r := new(Repository)
	query := `select * from repositories where repository_id = $1`
	if err := sqlscan.Get(ctx, store.rdb, r, query, repositoryID); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RepositorySQLiteStore) ReadRepositoryByProviderID(
	ctx context.Context,
	provider Provider,
	providerRepoID int64,
) (*Repository, error) {
	r := new(Repository)
	query := `select * from repositories where provider = $1 and provider_repo_id = $2`
	if err := sqlscan.Get(ctx, store.rdb, r, query, provider, providerRepoID); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RepositorySQLiteStore) ListRepositories(ctx context.Context) ([]*Repository, error) {
	query := `select * from repositories order by repository_id`
	repositories := make([]*Repository, 0)
	err := sqlscan.Select(ctx, store.rdb, &repositories, query)
	return repositories, err
}

func (store *RepositorySQLiteStore) UpdateRepositoryWebhookTokenKey(
	ctx context.Context,
	repositoryID string,
	tokenKey string,
) (int64, error) {
	query := `update repositories
	set webhook_token_key = $1, updated_on = $2
	where repository_id = $3`
	res, err := store.rwdb.ExecContext(ctx, query, tokenKey, time.Now().UTC(), repositoryID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (store *RepositorySQLiteStore) DeactivateRepository(
	ctx context.Context,
	repositoryID string,
	updatedOn time.Time,
) (int64, error) {
	query := `update repositories
	set is_active = 0, updated_on = $1
	where repository_id = $2 and is_active = 1`
	res, err := store.rwdb.ExecContext(ctx, query, updatedOn, repositoryID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (store *RepositorySQLiteStore) DeactivateRepositoryByProviderID(
	ctx context.Context,
	provider Provider,
	providerRepoID int64,
	updatedOn time.Time,
) (int64, error) {
	query := `update repositories
	set is_active = 0, updated_on = $1
	where provider = $2 and provider_repo_id = $3 and is_active = 1`
	res, err := store.rwdb.ExecContext(ctx, query, updatedOn, provider, providerRepoID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (store *RepositorySQLiteStore) DeactivateInstallationRepositories(
	ctx context.Context,
	installationID int64,
	updatedOn time.Time,
) (int64, error) {
	query := `update repositories
	set is_active = 0, updated_on = $1
	where installation_id = $2 and is_active = 1`
	res, err := store.rwdb.ExecContext(ctx, query, updatedOn, installationID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
