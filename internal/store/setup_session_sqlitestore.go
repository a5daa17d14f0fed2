package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type SetupSessionSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewSetupSessionSQLiteStore(rdb, rwdb *sql.DB) *SetupSessionSQLiteStore {
	return &SetupSessionSQLiteStore{rdb, rwdb}
}

func (store *SetupSessionSQLiteStore) CreateSetupSession(
	ctx context.Context,
	state string,
	provider Provider,
	expiresOn time.Time,
) (*SetupSession, error) {
	s := &SetupSession{
		State:     state,
		Provider:  provider,
		ExpiresOn: expiresOn,
	}
	query := `insert into setup_sessions (state, provider, expires_on)
	values ($1, $2, $3)
	returning status, created_on`
	err := sqlscan.Get(ctx, store.rwdb, s, query, s.State, s.Provider, s.ExpiresOn)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (store *SetupSessionSQLiteStore) ReadSetupSession(
	ctx context.Context,
	state string,
) (*SetupSession, error) {
	s := new(SetupSession)
	query := `select * from setup_sessions where state = $1`
	if err := sqlscan.Get(ctx, store.rwdb, s, query, state); err != nil {
		return nil, err
	}
	return s, nil
}

func (store *SetupSessionSQLiteStore) CompleteSetupSession(
	ctx context.Context,
	state string,
	status SetupStatus,
	message *string,
) (bool, error) {
	query := `update setup_sessions
	set status = $1, message = $2
	where state = $3 and status = $4`
	res, err := store.rwdb.ExecContext(ctx, query, status, message, state, SetupPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (store *SetupSessionSQLiteStore) ExpireSetupSession(
	ctx context.Context,
	state string,
	now time.Time,
) (bool, error) {
	query := `update setup_sessions
	set status = $1
	where state = $2 and status = $3 and expires_on < $4`
	res, err := store.rwdb.ExecContext(ctx, query, SetupExpired, state, SetupPending, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
