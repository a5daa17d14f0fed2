package service

import (
	"fmt"

	"github.com/haatos/forgeci/internal/store"
)

type ErrEventQueueFull struct{}

func (e ErrEventQueueFull) Error() string {
	return "event queue is full"
}

func NewErrEventQueueFull() *ErrEventQueueFull {
	return &ErrEventQueueFull{}
}

// AuthenticationError rejects a request at the boundary before anything is
// persisted: bad or missing webhook signature or token.
type AuthenticationError struct {
	Message string
}

func (e AuthenticationError) Error() string {
	return e.Message
}

type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	return e.Resource + " not found"
}

// AlreadyCompletedError rejects cancelling a build that already reached a
// terminal status.
type AlreadyCompletedError struct {
	BuildID string
	Status  store.BuildStatus
}

func (e AlreadyCompletedError) Error() string {
	return fmt.Sprintf("build %s already completed with status %s", e.BuildID, e.Status)
}

type InvalidTransitionError struct {
	BuildID string
	Target  store.BuildStatus
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition to %s for build %s", e.Target, e.BuildID)
}

// CredentialError means stored secret material could not be decrypted, for
// example after a key rotation. It is fatal for the operation; there is no
// fallback path.
type CredentialError struct {
	Key string
	Err error
}

func (e CredentialError) Error() string {
	return fmt.Sprintf("credential %s unusable: %v", e.Key, e.Err)
}

func (e CredentialError) Unwrap() error {
	return e.Err
}
