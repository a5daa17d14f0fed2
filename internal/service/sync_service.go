package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/haatos/forgeci/internal/forge"
	"github.com/haatos/forgeci/internal/store"
)

// SyncService reconciles the local repository inventory against each
// provider account. All remote state for an account is fetched before
// anything is written, so a provider failure mid-fetch leaves the database
// untouched. Per-account locks keep a scheduled sync and a webhook-driven
// sync of the same account from interleaving.
type SyncService struct {
	syncStore             store.SyncStore
	installationStore     store.InstallationStore
	repositoryStore       store.RepositoryStore
	gitlabCredentialStore store.GitlabCredentialStore
	credentials           *CredentialService
	github                *forge.GitHubClient
	gitlab                *forge.GitLabClient
	accounts              *KeyedMutex[string]
}

func NewSyncService(
	syncStore store.SyncStore,
	installationStore store.InstallationStore,
	repositoryStore store.RepositoryStore,
	gitlabCredentialStore store.GitlabCredentialStore,
	credentials *CredentialService,
	github *forge.GitHubClient,
	gitlab *forge.GitLabClient,
) *SyncService {
	return &SyncService{
		syncStore:             syncStore,
		installationStore:     installationStore,
		repositoryStore:       repositoryStore,
		gitlabCredentialStore: gitlabCredentialStore,
		credentials:           credentials,
		github:                github,
		gitlab:                gitlab,
		accounts:              NewKeyedMutex[string](),
	}
}

// SyncProvider reconciles every account of one provider. Used by the manual
// sync endpoint; "all" is not a provider here, the scheduler calls SyncAll.
func (s *SyncService) SyncProvider(ctx context.Context, provider store.Provider) (int64, error) {
	switch provider {
	case store.ProviderGitHub:
		return s.SyncGitHub(ctx)
	case store.ProviderGitLab:
		return s.SyncGitLab(ctx)
	default:
		return 0, ValidationError{Message: "unknown provider " + string(provider)}
	}
}

// SyncAll runs the periodic reconciliation. One account failing does not
// stop the others; the first error is reported after everything ran.
func (s *SyncService) SyncAll(ctx context.Context) error {
	var firstErr error
	if _, err := s.SyncGitHub(ctx); err != nil {
		log.Printf("err syncing github: %v", err)
		firstErr = err
	}
	if _, err := s.SyncGitLab(ctx); err != nil {
		log.Printf("err syncing gitlab: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *SyncService) SyncGitHub(ctx context.Context) (int64, error) {
	config, err := s.githubAppConfig(ctx)
	if err != nil {
		var notFound NotFoundError
		if errors.As(err, &notFound) {
			// No app configured yet, nothing to reconcile.
			return 0, nil
		}
		return 0, err
	}

	installations, err := s.github.ListInstallations(ctx, config)
	if err != nil {
		return 0, err
	}

	remote := make(map[int64]bool, len(installations))
	var changed int64
	var firstErr error
	for _, installation := range installations {
		remote[installation.ID] = true
		n, err := s.syncInstallation(ctx, config, installation)
		if err != nil {
			log.Printf("err syncing installation %d: %v", installation.ID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		changed += n
	}

	// Installations the app no longer has are soft-deleted along with
	// their repositories. Builds stay.
	local, err := s.installationStore.ListActiveInstallations(ctx)
	if err != nil {
		return changed, err
	}
	now := time.Now().UTC()
	for _, installation := range local {
		if remote[installation.InstallationID] {
			continue
		}
		n, err := s.installationStore.DeactivateInstallation(ctx, installation.InstallationID, now)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		changed += n
		n, err = s.repositoryStore.DeactivateInstallationRepositories(
			ctx, installation.InstallationID, now,
		)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		changed += n
	}
	return changed, firstErr
}

// SyncGitHubInstallation reconciles a single installation, fetching its
// repository list with a short-lived installation token.
func (s *SyncService) SyncGitHubInstallation(
	ctx context.Context,
	installation forge.GitHubInstallation,
) (int64, error) {
	config, err := s.githubAppConfig(ctx)
	if err != nil {
		return 0, err
	}
	return s.syncInstallation(ctx, config, installation)
}

func (s *SyncService) syncInstallation(
	ctx context.Context,
	config *forge.AppConfig,
	installation forge.GitHubInstallation,
) (int64, error) {
	key := fmt.Sprintf("github:%d", installation.ID)
	s.accounts.Lock(key)
	defer s.accounts.Unlock(key)

	token, err := s.github.CreateInstallationToken(ctx, config, installation.ID)
	if err != nil {
		return 0, err
	}
	refs, err := s.github.ListInstallationRepositories(ctx, token)
	if err != nil {
		return 0, err
	}

	repos := make([]*store.Repository, 0, len(refs))
	for _, ref := range refs {
		repos = append(repos, repositoryFromRef(store.ProviderGitHub, ref, &installation.ID, nil))
	}
	return s.syncStore.ApplyInstallationState(
		ctx,
		&store.Installation{
			InstallationID:      installation.ID,
			AccountLogin:        installation.AccountLogin,
			AccountType:         installation.AccountType,
			RepositorySelection: installation.RepositorySelection,
		},
		repos,
		time.Now().UTC(),
	)
}

func (s *SyncService) SyncGitLab(ctx context.Context) (int64, error) {
	credentials, err := s.gitlabCredentialStore.ListActiveGitlabCredentials(ctx)
	if err != nil {
		return 0, err
	}

	var changed int64
	var firstErr error
	for _, credential := range credentials {
		n, err := s.syncGitlabCredential(ctx, credential)
		if err != nil {
			log.Printf("err syncing gitlab account %s: %v", credential.AccountLogin, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		changed += n
	}
	return changed, firstErr
}

func (s *SyncService) syncGitlabCredential(
	ctx context.Context,
	credential *store.GitlabCredential,
) (int64, error) {
	key := fmt.Sprintf("gitlab:%d", credential.GitlabCredentialID)
	s.accounts.Lock(key)
	defer s.accounts.Unlock(key)

	token, err := s.credentials.GetCredential(ctx, credential.TokenKey)
	if err != nil {
		return 0, err
	}
	refs, err := s.gitlab.ListProjects(ctx, string(token))
	if err != nil {
		return 0, err
	}

	repos := make([]*store.Repository, 0, len(refs))
	for _, ref := range refs {
		repos = append(repos, repositoryFromRef(
			store.ProviderGitLab, ref, nil, &credential.GitlabCredentialID,
		))
	}
	return s.syncStore.ApplyGitlabCredentialState(
		ctx, credential.GitlabCredentialID, repos, time.Now().UTC(),
	)
}

func (s *SyncService) githubAppConfig(ctx context.Context) (*forge.AppConfig, error) {
	b, err := s.credentials.GetCredential(ctx, GitHubAppCredentialKey)
	if err != nil {
		return nil, err
	}
	config := new(forge.AppConfig)
	if err := json.Unmarshal(b, config); err != nil {
		return nil, CredentialError{Key: GitHubAppCredentialKey, Err: err}
	}
	return config, nil
}
