package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type InstallationSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewInstallationSQLiteStore(rdb, rwdb *sql.DB) *InstallationSQLiteStore {
	return &InstallationSQLiteStore{rdb, rwdb}
}

func (store *InstallationSQLiteStore) UpsertInstallation(
	ctx context.Context,
	i *Installation,
) (int64, error) {
	return upsertInstallation(ctx, store.rwdb, i)
}

func upsertInstallation(ctx context.Context, db execer, i *Installation) (int64, error) {
	query := `insert into installations (
		installation_id,
		account_login,
		account_type,
		repository_selection,
		updated_on
	)
	values ($1, $2, $3, $4, $5)
	on conflict (installation_id) do update set
		account_login = excluded.account_login,
		account_type = excluded.account_type,
		repository_selection = excluded.repository_selection,
		is_active = 1,
		updated_on = excluded.updated_on
	where account_login != excluded.account_login
		or account_type != excluded.account_type
		or repository_selection != excluded.repository_selection
		or is_active != 1`
	res, err := db.ExecContext(
		ctx, query,
		i.InstallationID, i.AccountLogin, i.AccountType, i.RepositorySelection,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (store *InstallationSQLiteStore) ReadInstallationByID(
	ctx context.Context,
	installationID int64,
) (*Installation, error) {
	i := new(Installation)
	query := `select * from installations where installation_id = $1`
	if err := sqlscan.Get(ctx, store.rdb, i, query, installationID); err != nil {
		return nil, err
	}
	return i, nil
}

func (store *InstallationSQLiteStore) ListActiveInstallations(
	ctx context.Context,
) ([]*Installation, error) {
	query := `select * from installations where is_active = 1 order by installation_id`
	installations := make([]*Installation, 0)
	err := sqlscan.Select(ctx, store.rdb, &installations, query)
	return installations, err
}

func (store *InstallationSQLiteStore) DeactivateInstallation(
	ctx context.Context,
	installationID int64,
	updatedOn time.Time,
) (int64, error) {
	query := `update installations
	set is_active = 0, updated_on = $1
	where installation_id = $2 and is_active = 1`
	res, err := store.rwdb.ExecContext(ctx, query, updatedOn, installationID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
