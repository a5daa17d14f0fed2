package store

import (
	"context"
	"time"
)

const (
	SelectionAll      = "all"
	SelectionSelected = "selected"
)

type Installation struct {
	InstallationID      int64
	AccountLogin        string
	AccountType         string
	RepositorySelection string
	IsActive            bool
	CreatedOn           time.Time
	UpdatedOn           time.Time
}

type InstallationStore interface {
	UpsertInstallation(context.Context, *Installation) (int64, error)
	ReadInstallationByID(context.Context, int64) (*Installation, error)
	ListActiveInstallations(context.Context) ([]*Installation, error)
	DeactivateInstallation(context.Context, int64, time.Time) (int64, error)
}
