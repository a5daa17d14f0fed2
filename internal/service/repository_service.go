package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/haatos/forgeci/internal/store"
)

type RepositoryService struct {
	repositoryStore store.RepositoryStore
	credentials     *CredentialService
}

func NewRepositoryService(
	repositoryStore store.RepositoryStore,
	credentials *CredentialService,
) *RepositoryService {
	return &RepositoryService{repositoryStore: repositoryStore, credentials: credentials}
}

func (s *RepositoryService) ListRepositories(ctx context.Context) ([]*store.Repository, error) {
	return s.repositoryStore.ListRepositories(ctx)
}

func (s *RepositoryService) GetRepositoryByID(
	ctx context.Context,
	repositoryID string,
) (*store.Repository, error) {
	repo, err := s.repositoryStore.ReadRepositoryByID(ctx, repositoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError{Resource: "repository"}
		}
		return nil, err
	}
	return repo, nil
}

// AddRepository registers a repository by hand, for installations where the
// reconciler cannot see it (e.g. a self-managed GitLab group token setup).
// GitLab repositories get a webhook token issued immediately; the plaintext
// token is returned once and never stored.
func (s *RepositoryService) AddRepository(
	ctx context.Context,
	provider store.Provider,
	providerRepoID int64,
	owner, name, defaultBranch string,
) (*store.Repository, string, error) {
	if provider != store.ProviderGitHub && provider != store.ProviderGitLab {
		return nil, "", ValidationError{Message: "unknown provider " + string(provider)}
	}
	if owner == "" || name == "" || providerRepoID == 0 {
		return nil, "", ValidationError{Message: "missing repository identity"}
	}
	if defaultBranch == "" {
		defaultBranch = "main"
	}

	repo := &store.Repository{
		RepositoryID:   newSortableID(),
		Provider:       provider,
		ProviderRepoID: providerRepoID,
		Owner:          owner,
		Name:           name,
		DefaultBranch:  defaultBranch,
	}

	var token string
	if provider == store.ProviderGitLab {
		tokenKey := "gitlab:webhook:" + repo.RepositoryID
		token = uuid.NewString()
		if err := s.credentials.PutCredential(ctx, tokenKey, token); err != nil {
			return nil, "", err
		}
		repo.WebhookTokenKey = &tokenKey
	}

	created, err := s.repositoryStore.CreateRepository(ctx, repo)
	if err != nil {
		if repo.WebhookTokenKey != nil {
			_ = s.credentials.DeleteCredential(ctx, *repo.WebhookTokenKey)
		}
		return nil, "", err
	}
	return created, token, nil
}

// IssueWebhookToken rotates (or first issues) the webhook token of a
// GitLab repository. In-flight deliveries signed with the old token fail
// authentication once this returns.
func (s *RepositoryService) IssueWebhookToken(
	ctx context.Context,
	repositoryID string,
) (string, error) {
	repo, err := s.GetRepositoryByID(ctx, repositoryID)
	if err != nil {
		return "", err
	}
	if repo.Provider != store.ProviderGitLab {
		return "", ValidationError{Message: "webhook tokens apply to gitlab repositories only"}
	}

	tokenKey := "gitlab:webhook:" + repo.RepositoryID
	token := uuid.NewString()
	if err := s.credentials.PutCredential(ctx, tokenKey, token); err != nil {
		return "", err
	}
	if repo.WebhookTokenKey == nil || *repo.WebhookTokenKey != tokenKey {
		if _, err := s.repositoryStore.UpdateRepositoryWebhookTokenKey(
			ctx, repo.RepositoryID, tokenKey,
		); err != nil {
			return "", err
		}
	}
	return token, nil
}

func (s *RepositoryService) DeactivateRepository(
	ctx context.Context,
	repositoryID string,
) error {
	n, err := s.repositoryStore.DeactivateRepository(ctx, repositoryID, time.Now().UTC())
	if err != nil {
		return err
	}
	if n == 0 {
		return NotFoundError{Resource: "repository"}
	}
	return nil
}
