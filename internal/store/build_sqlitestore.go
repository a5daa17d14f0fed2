package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type BuildSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewBuildSQLiteStore(rdb, rwdb *sql.DB) *BuildSQLiteStore {
	return &BuildSQLiteStore{rdb, rwdb}
}

func (store *BuildSQLiteStore) CreateBuild(ctx context.Context, b *Build) (*Build, error) {
	query := `insert into builds (
		build_id,
		build_repository_id,
		branch,
		commit_sha,
		trigger_type,
		webhook_event_id
	)
	values ($1, $2, $3, $4, $5, $6)
	returning status, created_on`
	err := sqlscan.Get(
		ctx, store.rwdb, b, query,
		b.BuildID, b.BuildRepositoryID, b.Branch, b.CommitSHA, b.TriggerType, b.WebhookEventID,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (store *BuildSQLiteStore) ReadBuildByID(ctx context.Context, buildID string) (*Build, error) {
	b := new(Build)
	query := `select * from builds where build_id = $1`
	if err := sqlscan.Get(ctx, store.rdb, b, query, buildID); err != nil {
		return nil, err
	}
	return b, nil
}

func (store *BuildSQLiteStore) ListBuilds(
	ctx context.Context,
	repositoryID *string,
	limit, offset int64,
) ([]Build, error) {
	query := `select * from builds
	where $1 is null or build_repository_id = $1
	order by build_id desc
	limit $2 offset $3`
	builds := make([]Build, 0)
	err := sqlscan.Select(ctx, store.rdb, &builds, query, repositoryID, limit, offset)
	return builds, err
}

func (store *BuildSQLiteStore) UpdateBuildStarted(
	ctx context.Context,
	buildID string,
	startedOn time.Time,
) (int64, error) {
	query := `update builds
	set status = $1, started_on = $2
	where build_id = $3 and status = $4`
	res, err := store.rwdb.ExecContext(ctx, query, StatusRunning, startedOn, buildID, StatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (store *BuildSQLiteStore) UpdateBuildFinished(
	ctx context.Context,
	buildID string,
	status BuildStatus,
	errorMessage *string,
	finishedOn time.Time,
) (int64, error) {
	query := `update builds
	set status = $1, error_message = $2, finished_on = $3
	where build_id = $4 and status = $5`
	res, err := store.rwdb.ExecContext(
		ctx, query,
		status, errorMessage, finishedOn, buildID, StatusRunning,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (store *BuildSQLiteStore) CancelBuild(
	ctx context.Context,
	buildID string,
	finishedOn time.Time,
) (int64, error) {
	query := `update builds
	set status = $1, finished_on = $2
	where build_id = $3 and status in ($4, $5)`
	res, err := store.rwdb.ExecContext(
		ctx, query,
		StatusCancelled, finishedOn, buildID, StatusPending, StatusRunning,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
