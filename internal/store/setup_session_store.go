package store

import (
	"context"
	"time"
)

type SetupStatus string

const (
	SetupPending   SetupStatus = "pending"
	SetupCompleted SetupStatus = "completed"
	SetupFailed    SetupStatus = "failed"
	SetupExpired   SetupStatus = "expired"
)

func (s SetupStatus) Terminal() bool {
	return s != SetupPending
}

type SetupSession struct {
	State     string
	Provider  Provider
	Status    SetupStatus
	Message   *string
	CreatedOn time.Time
	ExpiresOn time.Time
}

type SetupSessionStore interface {
	CreateSetupSession(context.Context, string, Provider, time.Time) (*SetupSession, error)
	ReadSetupSession(context.Context, string) (*SetupSession, error)
	// CompleteSetupSession commits a terminal status, but only while the
	// session is still pending. The bool reports whether this call won the
	// transition.
	CompleteSetupSession(context.Context, string, SetupStatus, *string) (bool, error)
	// ExpireSetupSession lazily transitions a pending session past its
	// expiry window to expired.
	ExpireSetupSession(context.Context, string, time.Time) (bool, error)
}
