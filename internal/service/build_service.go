package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/haatos/forgeci/internal/store"
)

// HeadResolver resolves the current tip commit of a branch through the
// repository's provider. Manual triggers without an explicit commit rely on
// it; webhook triggers carry their commit in the payload.
type HeadResolver interface {
	ResolveHead(ctx context.Context, repo *store.Repository, branch string) (string, error)
}

type BuildService struct {
	buildStore      store.BuildStore
	repositoryStore store.RepositoryStore
	headResolver    HeadResolver
}

func NewBuildService(
	buildStore store.BuildStore,
	repositoryStore store.RepositoryStore,
	headResolver HeadResolver,
) *BuildService {
	return &BuildService{
		buildStore:      buildStore,
		repositoryStore: repositoryStore,
		headResolver:    headResolver,
	}
}

func newSortableID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// TriggerBuild records build intent for an active repository. The branch
// defaults to the repository's default branch and a missing commit is
// resolved to the branch head via the provider.
func (s *BuildService) TriggerBuild(
	ctx context.Context,
	repositoryID, branch, commitSHA string,
	triggerType store.TriggerType,
) (*store.Build, error) {
	repo, err := s.repositoryStore.ReadRepositoryByID(ctx, repositoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError{Resource: "repository"}
		}
		return nil, err
	}
	if !repo.IsActive {
		return nil, ValidationError{Message: "repository is not active"}
	}

	if branch == "" {
		branch = repo.DefaultBranch
	}
	if commitSHA == "" {
		commitSHA, err = s.headResolver.ResolveHead(ctx, repo, branch)
		if err != nil {
			return nil, err
		}
	}

	return s.buildStore.CreateBuild(ctx, &store.Build{
		BuildID:           newSortableID(),
		BuildRepositoryID: repo.RepositoryID,
		Branch:            branch,
		CommitSHA:         commitSHA,
		TriggerType:       triggerType,
	})
}

// CreateBuildFromEvent records a build caused by a processed webhook event.
func (s *BuildService) CreateBuildFromEvent(
	ctx context.Context,
	repo *store.Repository,
	branch, commitSHA string,
	triggerType store.TriggerType,
	webhookEventID int64,
) (*store.Build, error) {
	return s.buildStore.CreateBuild(ctx, &store.Build{
		BuildID:           newSortableID(),
		BuildRepositoryID: repo.RepositoryID,
		Branch:            branch,
		CommitSHA:         commitSHA,
		TriggerType:       triggerType,
		WebhookEventID:    &webhookEventID,
	})
}

func (s *BuildService) GetBuildByID(ctx context.Context, buildID string) (*store.Build, error) {
	b, err := s.buildStore.ReadBuildByID(ctx, buildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError{Resource: "build"}
		}
		return nil, err
	}
	return b, nil
}

func (s *BuildService) ListBuilds(
	ctx context.Context,
	repositoryID *string,
	limit, offset int64,
) ([]store.Build, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.buildStore.ListBuilds(ctx, repositoryID, limit, offset)
}

// CancelBuild is legal only while the build is pending or running. It only
// flips the stored status; halting actual execution is the execution
// engine's job, which observes the flag.
func (s *BuildService) CancelBuild(ctx context.Context, buildID string) (*store.Build, error) {
	n, err := s.buildStore.CancelBuild(ctx, buildID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		b, err := s.buildStore.ReadBuildByID(ctx, buildID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, NotFoundError{Resource: "build"}
			}
			return nil, err
		}
		return nil, AlreadyCompletedError{BuildID: buildID, Status: b.Status}
	}
	return s.buildStore.ReadBuildByID(ctx, buildID)
}

// StartBuild and FinishBuild are the narrow update contract for the
// external execution engine. Illegal jumps (starting a finished build,
// finishing one that never started) are rejected.
func (s *BuildService) StartBuild(ctx context.Context, buildID string) (*store.Build, error) {
	n, err := s.buildStore.UpdateBuildStarted(ctx, buildID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, s.transitionError(ctx, buildID, store.StatusRunning)
	}
	return s.buildStore.ReadBuildByID(ctx, buildID)
}

func (s *BuildService) FinishBuild(
	ctx context.Context,
	buildID string,
	status store.BuildStatus,
	errorMessage *string,
) (*store.Build, error) {
	if status != store.StatusSuccess && status != store.StatusFailure {
		return nil, ValidationError{Message: "finish status must be success or failure"}
	}
	n, err := s.buildStore.UpdateBuildFinished(ctx, buildID, status, errorMessage, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, s.transitionError(ctx, buildID, status)
	}
	return s.buildStore.ReadBuildByID(ctx, buildID)
}

func (s *BuildService) transitionError(
	ctx context.Context,
	buildID string,
	target store.BuildStatus,
) error {
	if _, err := s.buildStore.ReadBuildByID(ctx, buildID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotFoundError{Resource: "build"}
		}
		return err
	}
	return InvalidTransitionError{BuildID: buildID, Target: target}
}
