package store

import (
	"context"
	"time"
)

type BuildStatus string

const (
	StatusPending   BuildStatus = "pending"
	StatusRunning   BuildStatus = "running"
	StatusSuccess   BuildStatus = "success"
	StatusFailure   BuildStatus = "failure"
	StatusCancelled BuildStatus = "cancelled"
)

type TriggerType string

const (
	TriggerPush        TriggerType = "push"
	TriggerPullRequest TriggerType = "pull_request"
	TriggerManual      TriggerType = "manual"
)

type Build struct {
	BuildID           string `param:"build_id"`
	BuildRepositoryID string
	Branch            string
	CommitSHA         string
	TriggerType       TriggerType
	Status            BuildStatus
	WebhookEventID    *int64
	ErrorMessage      *string
	CreatedOn         time.Time
	StartedOn         *time.Time
	FinishedOn        *time.Time
}

// The status transition methods implement the one-directional state machine
// pending -> running -> {success, failure}, pending|running -> cancelled.
// Each returns the number of rows changed: zero means the transition was
// illegal for the build's current status.
type BuildStore interface {
	CreateBuild(context.Context, *Build) (*Build, error)
	ReadBuildByID(context.Context, string) (*Build, error)
	ListBuilds(context.Context, *string, int64, int64) ([]Build, error)
	UpdateBuildStarted(context.Context, string, time.Time) (int64, error)
	UpdateBuildFinished(context.Context, string, BuildStatus, *string, time.Time) (int64, error)
	CancelBuild(context.Context, string, time.Time) (int64, error)
}
