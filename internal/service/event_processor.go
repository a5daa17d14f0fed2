package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/haatos/forgeci/internal"
	"github.com/haatos/forgeci/internal/forge"
	"github.com/haatos/forgeci/internal/store"
)

type EventProcessor struct {
	eventStore        store.WebhookEventStore
	repositoryStore   store.RepositoryStore
	installationStore store.InstallationStore
	buildService      *BuildService
	syncService       *SyncService
}

func NewEventProcessor(
	eventStore store.WebhookEventStore,
	repositoryStore store.RepositoryStore,
	installationStore store.InstallationStore,
	buildService *BuildService,
	syncService *SyncService,
) *EventProcessor {
	return &EventProcessor{
		eventStore:        eventStore,
		repositoryStore:   repositoryStore,
		installationStore: installationStore,
		buildService:      buildService,
		syncService:       syncService,
	}
}

// Process interprets one persisted webhook event. The claim is atomic, so
// an event is attempted at most once even when it is enqueued twice (e.g.
// once live and once by startup recovery). Every claimed event ends up
// processed: handler failures are recorded on the event instead of leaving
// it stuck.
func (p *EventProcessor) Process(e *store.WebhookEvent) {
	ctx := context.Background()

	claimed, err := p.eventStore.ClaimWebhookEvent(ctx, e.WebhookEventID, time.Now().UTC())
	if err != nil {
		log.Printf("err claiming event %d: %v", e.WebhookEventID, err)
		return
	}
	if !claimed {
		return
	}

	repositoryID, processNote, err := p.dispatch(ctx, e)
	var errorMessage *string
	if err != nil {
		m := err.Error()
		errorMessage = &m
	}
	if err := p.eventStore.CompleteWebhookEvent(
		ctx, e.WebhookEventID, repositoryID, processNote, errorMessage,
	); err != nil {
		log.Printf("err completing event %d: %v", e.WebhookEventID, err)
	}
}

func (p *EventProcessor) dispatch(
	ctx context.Context,
	e *store.WebhookEvent,
) (*string, *string, error) {
	var parsed any
	var err error
	switch e.Provider {
	case store.ProviderGitHub:
		parsed, err = forge.ParseGitHubEvent(e.EventType, []byte(e.Payload))
	case store.ProviderGitLab:
		parsed, err = forge.ParseGitLabEvent(e.EventType, []byte(e.Payload))
	default:
		return nil, nil, ValidationError{Message: "unknown provider " + string(e.Provider)}
	}
	if err != nil {
		var unsupported forge.ErrUnsupportedEvent
		if errors.As(err, &unsupported) {
			return nil, note("%s", unsupported.Error()), nil
		}
		return nil, nil, err
	}

	switch ev := parsed.(type) {
	case *forge.PushEvent:
		return p.handlePush(ctx, e, ev)
	case *forge.PullRequestEvent:
		return p.handlePullRequest(ctx, e, ev)
	case *forge.InstallationEvent:
		return p.handleInstallation(ctx, ev)
	case *forge.InstallationRepositoriesEvent:
		return p.handleInstallationRepositories(ctx, ev)
	default:
		return nil, nil, ValidationError{Message: "unhandled event shape"}
	}
}

func note(format string, args ...any) *string {
	n := fmt.Sprintf(format, args...)
	return &n
}

func (p *EventProcessor) handlePush(
	ctx context.Context,
	e *store.WebhookEvent,
	ev *forge.PushEvent,
) (*string, *string, error) {
	repo, found, err := p.resolveRepository(ctx, e.Provider, ev.Repo)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, note("unknown repository %s/%s, skipped", ev.Repo.Owner, ev.Repo.Name), nil
	}
	if !repo.IsActive {
		return &repo.RepositoryID, note("repository %s is inactive, skipped", repo.FullName()), nil
	}
	if ev.Tag != "" {
		return &repo.RepositoryID, note("tag %s pushed, no build", ev.Tag), nil
	}
	if ev.Deleted {
		return &repo.RepositoryID, note("branch %s deleted, no build", ev.Branch), nil
	}

	b, err := p.buildService.CreateBuildFromEvent(
		ctx, repo, ev.Branch, ev.CommitSHA, store.TriggerPush, e.WebhookEventID,
	)
	if err != nil {
		return &repo.RepositoryID, nil, err
	}
	return &repo.RepositoryID, note("created build %s", b.BuildID), nil
}

func (p *EventProcessor) handlePullRequest(
	ctx context.Context,
	e *store.WebhookEvent,
	ev *forge.PullRequestEvent,
) (*string, *string, error) {
	repo, found, err := p.resolveRepository(ctx, e.Provider, ev.Repo)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, note("unknown repository %s/%s, skipped", ev.Repo.Owner, ev.Repo.Name), nil
	}
	if !repo.IsActive {
		return &repo.RepositoryID, note("repository %s is inactive, skipped", repo.FullName()), nil
	}
	if !internal.Config().BuildsPullRequestAction(ev.Action) {
		return &repo.RepositoryID, note("pull request action %q does not trigger builds", ev.Action), nil
	}

	b, err := p.buildService.CreateBuildFromEvent(
		ctx, repo, ev.Branch, ev.CommitSHA, store.TriggerPullRequest, e.WebhookEventID,
	)
	if err != nil {
		return &repo.RepositoryID, nil, err
	}
	return &repo.RepositoryID, note("created build %s", b.BuildID), nil
}

func (p *EventProcessor) handleInstallation(
	ctx context.Context,
	ev *forge.InstallationEvent,
) (*string, *string, error) {
	now := time.Now().UTC()
	switch ev.Action {
	case "created", "unsuspend", "new_permissions_accepted":
		installation := &store.Installation{
			InstallationID:      ev.InstallationID,
			AccountLogin:        ev.AccountLogin,
			AccountType:         ev.AccountType,
			RepositorySelection: ev.RepositorySelection,
		}
		if _, err := p.installationStore.UpsertInstallation(ctx, installation); err != nil {
			return nil, nil, err
		}
		if ev.RepositorySelection == store.SelectionAll {
			if _, err := p.syncService.SyncGitHubInstallation(ctx, forge.GitHubInstallation{
				ID:                  ev.InstallationID,
				AccountLogin:        ev.AccountLogin,
				AccountType:         ev.AccountType,
				RepositorySelection: ev.RepositorySelection,
			}); err != nil {
				return nil, nil, err
			}
			return nil, note("installation %d synced", ev.InstallationID), nil
		}
		for _, ref := range ev.Repositories {
			if _, err := p.repositoryStore.UpsertRepository(
				ctx, repositoryFromRef(store.ProviderGitHub, ref, &ev.InstallationID, nil),
			); err != nil {
				return nil, nil, err
			}
		}
		return nil, note("installation %d created with %d repositories", ev.InstallationID, len(ev.Repositories)), nil
	case "deleted", "suspend":
		if _, err := p.installationStore.DeactivateInstallation(ctx, ev.InstallationID, now); err != nil {
			return nil, nil, err
		}
		if _, err := p.repositoryStore.DeactivateInstallationRepositories(ctx, ev.InstallationID, now); err != nil {
			return nil, nil, err
		}
		return nil, note("installation %d deactivated", ev.InstallationID), nil
	default:
		return nil, note("installation action %q ignored", ev.Action), nil
	}
}

func (p *EventProcessor) handleInstallationRepositories(
	ctx context.Context,
	ev *forge.InstallationRepositoriesEvent,
) (*string, *string, error) {
	now := time.Now().UTC()
	for _, ref := range ev.Added {
		if _, err := p.repositoryStore.UpsertRepository(
			ctx, repositoryFromRef(store.ProviderGitHub, ref, &ev.InstallationID, nil),
		); err != nil {
			return nil, nil, err
		}
	}
	for _, ref := range ev.Removed {
		if _, err := p.repositoryStore.DeactivateRepositoryByProviderID(
			ctx, store.ProviderGitHub, ref.ID, now,
		); err != nil {
			return nil, nil, err
		}
	}
	return nil, note("%d repositories added, %d removed", len(ev.Added), len(ev.Removed)), nil
}

func (p *EventProcessor) resolveRepository(
	ctx context.Context,
	provider store.Provider,
	ref forge.RepositoryRef,
) (*store.Repository, bool, error) {
	repo, err := p.repositoryStore.ReadRepositoryByProviderID(ctx, provider, ref.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return repo, true, nil
}

func repositoryFromRef(
	provider store.Provider,
	ref forge.RepositoryRef,
	installationID *int64,
	gitlabCredentialID *int64,
) *store.Repository {
	defaultBranch := ref.DefaultBranch
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	return &store.Repository{
		RepositoryID:       newSortableID(),
		Provider:           provider,
		ProviderRepoID:     ref.ID,
		Owner:              ref.Owner,
		Name:               ref.Name,
		DefaultBranch:      defaultBranch,
		InstallationID:     installationID,
		GitlabCredentialID: gitlabCredentialID,
	}
}
