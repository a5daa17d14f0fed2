package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type CredentialSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewCredentialSQLiteStore(rdb, rwdb *sql.DB) *CredentialSQLiteStore {
	return &CredentialSQLiteStore{rdb, rwdb}
}

func (store *CredentialSQLiteStore) PutCredential(
	ctx context.Context,
	key, cipher string,
) error {
	query := `insert into credentials (key, cipher)
	values ($1, $2)
	on conflict (key) do update set
		cipher = excluded.cipher,
		updated_on = $3`
	_, err := store.rwdb.ExecContext(ctx, query, key, cipher, time.Now().UTC())
	return err
}

func (store *CredentialSQLiteStore) ReadCredentialByKey(
	ctx context.Context,
	key string,
) (*Credential, error) {
	c := new(Credential)
	query := `select * from credentials where key = $1`
	if err := sqlscan.Get(ctx, store.rdb, c, query, key); err != nil {
		return nil, err
	}
	return c, nil
}

func (store *CredentialSQLiteStore) DeleteCredential(ctx context.Context, key string) error {
	query := `delete from credentials where key = $1`
	_, err := store.rwdb.ExecContext(ctx, query, key)
	return err
}
