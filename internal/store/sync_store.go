package store

import (
	"context"
	"time"
)

// SyncStore applies one account's reconciled remote state in a single
// transaction. Nothing is committed when any part of the apply fails, and
// applying an unchanged state reports zero changed rows.
type SyncStore interface {
	ApplyInstallationState(context.Context, *Installation, []*Repository, time.Time) (int64, error)
	ApplyGitlabCredentialState(context.Context, int64, []*Repository, time.Time) (int64, error)
}
