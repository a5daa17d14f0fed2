package handler

import (
	"context"
	"database/sql"
	"log"

	"github.com/haatos/forgeci/internal/security"
	"github.com/haatos/forgeci/internal/service"
	"github.com/haatos/forgeci/internal/store"
	"github.com/labstack/echo/v4"
	_ "modernc.org/sqlite"
)

func openTestDB() *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		log.Fatal(err)
	}
	store.RunMigrations(db)
	return db
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	return e
}

func newTestCredentialService(db *sql.DB) *service.CredentialService {
	return service.NewCredentialService(
		store.NewCredentialSQLiteStore(db, db),
		security.NewAESEncrypter([]byte(security.GenerateRandomKey(32))),
	)
}

// fixedHeadResolver stands in for the provider branch-head lookup.
type fixedHeadResolver struct {
	sha string
}

func (r fixedHeadResolver) ResolveHead(
	ctx context.Context,
	repo *store.Repository,
	branch string,
) (string, error) {
	return r.sha, nil
}
