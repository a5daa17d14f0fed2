package store

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"
)

func NewAPIKeySQLiteStore(rdb, rwdb *sql.DB) *APIKeySQLiteStore {
	return &APIKeySQLiteStore{rdb, rwdb}
}

type APIKeySQLiteStore struct {
	rdb, rwdb *sql.DB
}

func (store *APIKeySQLiteStore) CreateAPIKey(
	ctx context.Context,
	name, keyHash string,
) (*APIKey, error) {
	key := &APIKey{Name: name, KeyHash: keyHash}
	query := `insert into api_keys (name, key_hash)
	values ($1, $2)
	returning api_key_id, created_on`
	err := sqlscan.Get(ctx, store.rwdb, key, query, key.Name, key.KeyHash)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (store *APIKeySQLiteStore) ReadAPIKeyByName(
	ctx context.Context,
	name string,
) (*APIKey, error) {
	key := new(APIKey)
	query := `select * from api_keys where name = $1`
	err := sqlscan.Get(ctx, store.rdb, key, query, name)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (store *APIKeySQLiteStore) ListAPIKeys(ctx context.Context) ([]*APIKey, error) {
	query := `select * from api_keys order by api_key_id`
	keys := make([]*APIKey, 0)
	err := sqlscan.Select(ctx, store.rdb, &keys, query)
	return keys, err
}

func (store *APIKeySQLiteStore) DeleteAPIKey(ctx context.Context, id int64) error {
	query := `delete from api_keys where api_key_id = $1`
	_, err := store.rwdb.ExecContext(ctx, query, id)
	return err
}
