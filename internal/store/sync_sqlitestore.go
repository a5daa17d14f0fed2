package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SyncSQLiteStore struct {
	rwdb *sql.DB
}

func NewSyncSQLiteStore(rwdb *sql.DB) *SyncSQLiteStore {
	return &SyncSQLiteStore{rwdb}
}

func (store *SyncSQLiteStore) ApplyInstallationState(
	ctx context.Context,
	installation *Installation,
	repositories []*Repository,
	now time.Time,
) (int64, error) {
	tx, err := store.rwdb.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var changed int64
	n, err := upsertInstallation(ctx, tx, installation)
	if err != nil {
		return 0, err
	}
	changed += n

	for _, r := range repositories {
		r.InstallationID = &installation.InstallationID
		n, err := upsertRepository(ctx, tx, r)
		if err != nil {
			return 0, err
		}
		changed += n
	}

	n, err = deactivateAbsentRepositories(
		ctx, tx,
		"installation_id", installation.InstallationID,
		repositories, now,
	)
	if err != nil {
		return 0, err
	}
	changed += n

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return changed, nil
}

func (store *SyncSQLiteStore) ApplyGitlabCredentialState(
	ctx context.Context,
	gitlabCredentialID int64,
	repositories []*Repository,
	now time.Time,
) (int64, error) {
	tx, err := store.rwdb.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var changed int64
	for _, r := range repositories {
		r.GitlabCredentialID = &gitlabCredentialID
		n, err := upsertRepository(ctx, tx, r)
		if err != nil {
			return 0, err
		}
		changed += n
	}

	n, err := deactivateAbsentRepositories(
		ctx, tx,
		"gitlab_credential_id", gitlabCredentialID,
		repositories, now,
	)
	if err != nil {
		return 0, err
	}
	changed += n

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return changed, nil
}

// deactivateAbsentRepositories soft-deletes repositories still active under
// the account but missing from the freshly fetched remote set.
func deactivateAbsentRepositories(
	ctx context.Context,
	tx *sql.Tx,
	linkColumn string,
	linkID int64,
	present []*Repository,
	now time.Time,
) (int64, error) {
	args := []any{now, linkID}
	placeholders := make([]string, 0, len(present))
	for _, r := range present {
		args = append(args, r.ProviderRepoID)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(
		`update repositories
		set is_active = 0, updated_on = $1
		where %s = $2 and is_active = 1`,
		linkColumn,
	)
	if len(placeholders) > 0 {
		query += fmt.Sprintf(
			" and provider_repo_id not in (%s)",
			strings.Join(placeholders, ", "),
		)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
