package service

import (
	"context"
	"encoding/json"

	"github.com/haatos/forgeci/internal/forge"
	"github.com/haatos/forgeci/internal/store"
)

// ForgeHeadResolver resolves branch tips through the provider APIs using
// the credentials the repository is linked to.
type ForgeHeadResolver struct {
	gitlabCredentialStore store.GitlabCredentialStore
	credentials           *CredentialService
	github                *forge.GitHubClient
	gitlab                *forge.GitLabClient
}

func NewForgeHeadResolver(
	gitlabCredentialStore store.GitlabCredentialStore,
	credentials *CredentialService,
	github *forge.GitHubClient,
	gitlab *forge.GitLabClient,
) *ForgeHeadResolver {
	return &ForgeHeadResolver{
		gitlabCredentialStore: gitlabCredentialStore,
		credentials:           credentials,
		github:                github,
		gitlab:                gitlab,
	}
}

func (r *ForgeHeadResolver) ResolveHead(
	ctx context.Context,
	repo *store.Repository,
	branch string,
) (string, error) {
	switch repo.Provider {
	case store.ProviderGitHub:
		return r.resolveGitHub(ctx, repo, branch)
	case store.ProviderGitLab:
		return r.resolveGitLab(ctx, repo, branch)
	default:
		return "", ValidationError{Message: "unknown provider " + string(repo.Provider)}
	}
}

func (r *ForgeHeadResolver) resolveGitHub(
	ctx context.Context,
	repo *store.Repository,
	branch string,
) (string, error) {
	if repo.InstallationID == nil {
		return "", ValidationError{Message: "repository has no installation"}
	}
	b, err := r.credentials.GetCredential(ctx, GitHubAppCredentialKey)
	if err != nil {
		return "", err
	}
	config := new(forge.AppConfig)
	if err := json.Unmarshal(b, config); err != nil {
		return "", CredentialError{Key: GitHubAppCredentialKey, Err: err}
	}
	token, err := r.github.CreateInstallationToken(ctx, config, *repo.InstallationID)
	if err != nil {
		return "", err
	}
	return r.github.GetBranchHead(ctx, token, repo.Owner, repo.Name, branch)
}

func (r *ForgeHeadResolver) resolveGitLab(
	ctx context.Context,
	repo *store.Repository,
	branch string,
) (string, error) {
	if repo.GitlabCredentialID == nil {
		return "", ValidationError{Message: "repository has no gitlab account"}
	}
	credential, err := r.gitlabCredentialStore.ReadGitlabCredentialByID(
		ctx, *repo.GitlabCredentialID,
	)
	if err != nil {
		return "", err
	}
	token, err := r.credentials.GetCredential(ctx, credential.TokenKey)
	if err != nil {
		return "", err
	}
	return r.gitlab.GetBranchHead(ctx, string(token), repo.ProviderRepoID, branch)
}
