package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type GitlabCredentialSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewGitlabCredentialSQLiteStore(rdb, rwdb *sql.DB) *GitlabCredentialSQLiteStore {
	return &GitlabCredentialSQLiteStore{rdb, rwdb}
}

func (store *GitlabCredentialSQLiteStore) CreateGitlabCredential(
	ctx context.Context,
	baseURL, accountLogin, tokenKey string,
) (*GitlabCredential, error) {
	c := &GitlabCredential{
		BaseURL:      baseURL,
		AccountLogin: accountLogin,
		TokenKey:     tokenKey,
	}
	query := `insert into gitlab_credentials (base_url, account_login, token_key)
	values ($1, $2, $3)
	returning gitlab_credential_id, is_active, created_on, updated_on`
	err := sqlscan.Get(ctx, store.rwdb, c, query, c.BaseURL, c.AccountLogin, c.TokenKey)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (store *GitlabCredentialSQLiteStore) ReadGitlabCredentialByID(
	ctx context.Context,
	gitlabCredentialID int64,
) (*GitlabCredential, error) {
	c := new(GitlabCredential)
	query := `select * from gitlab_credentials where gitlab_credential_id = $1`
	if err := sqlscan.Get(ctx, store.rdb, c, query, gitlabCredentialID); err != nil {
		return nil, err
	}
	return c, nil
}

func (store *GitlabCredentialSQLiteStore) ListActiveGitlabCredentials(
	ctx context.Context,
) ([]*GitlabCredential, error) {
	query := `select * from gitlab_credentials where is_active = 1 order by gitlab_credential_id`
	credentials := make([]*GitlabCredential, 0)
	err := sqlscan.Select(ctx, store.rdb, &credentials, query)
	return credentials, err
}

func (store *GitlabCredentialSQLiteStore) DeactivateGitlabCredential(
	ctx context.Context,
	gitlabCredentialID int64,
	updatedOn time.Time,
) (int64, error) {
	query := `update gitlab_credentials
	set is_active = 0, updated_on = $1
	where gitlab_credential_id = $2 and is_active = 1`
	res, err := store.rwdb.ExecContext(ctx, query, updatedOn, gitlabCredentialID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
