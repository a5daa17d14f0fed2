package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/haatos/forgeci/internal"
	"github.com/haatos/forgeci/internal/forge"
	"github.com/haatos/forgeci/internal/settings"
	"github.com/haatos/forgeci/internal/store"
)

// SetupService drives the provider connection handshakes. Both providers
// hand back a one-time code, so the exchange must happen exactly once per
// session: a per-state lock serializes concurrent callbacks in-process, and
// the conditional pending->terminal update in the store backstops it across
// processes.
type SetupService struct {
	sessionStore          store.SetupSessionStore
	gitlabCredentialStore store.GitlabCredentialStore
	credentials           *CredentialService
	syncService           *SyncService
	github                *forge.GitHubClient
	gitlab                *forge.GitLabClient
	states                *KeyedMutex[string]
}

func NewSetupService(
	sessionStore store.SetupSessionStore,
	gitlabCredentialStore store.GitlabCredentialStore,
	credentials *CredentialService,
	syncService *SyncService,
	github *forge.GitHubClient,
	gitlab *forge.GitLabClient,
) *SetupService {
	return &SetupService{
		sessionStore:          sessionStore,
		gitlabCredentialStore: gitlabCredentialStore,
		credentials:           credentials,
		syncService:           syncService,
		github:                github,
		gitlab:                gitlab,
		states:                NewKeyedMutex[string](),
	}
}

type SetupStart struct {
	Session     *store.SetupSession
	RedirectURL string
}

// StartSetup creates a pending session and returns the provider URL the
// operator's browser must visit to begin the handshake.
func (s *SetupService) StartSetup(
	ctx context.Context,
	provider store.Provider,
) (*SetupStart, error) {
	state := uuid.NewString()
	expiresOn := time.Now().UTC().Add(internal.Config().SetupSessionTTL())

	var redirectURL string
	switch provider {
	case store.ProviderGitHub:
		redirectURL = fmt.Sprintf(
			"%s/settings/apps/new?state=%s", settings.Settings.GitHubBaseURL, state,
		)
	case store.ProviderGitLab:
		if settings.Settings.GitLabClientID == "" {
			return nil, ValidationError{Message: "gitlab oauth application is not configured"}
		}
		redirectURL = s.gitlab.AuthorizeURL(
			settings.Settings.GitLabClientID, s.gitlabRedirectURI(), state,
		)
	default:
		return nil, ValidationError{Message: "unknown provider " + string(provider)}
	}

	session, err := s.sessionStore.CreateSetupSession(ctx, state, provider, expiresOn)
	if err != nil {
		return nil, err
	}
	return &SetupStart{Session: session, RedirectURL: redirectURL}, nil
}

// GitHubManifest is the app manifest posted to the provider from the setup
// page. The webhook and redirect URLs point back at this deployment.
func (s *SetupService) GitHubManifest() map[string]any {
	base := settings.Settings.BaseURL()
	return map[string]any{
		"name":         "forgeci",
		"url":          base,
		"public":       false,
		"redirect_url": base + "/setup/github/callback",
		"hook_attributes": map[string]any{
			"url":    base + "/api/webhooks/github",
			"active": true,
		},
		"default_events": []string{"push", "pull_request"},
		"default_permissions": map[string]string{
			"contents": "read",
			"metadata": "read",
		},
	}
}

// CompleteSetup finishes a handshake callback. Duplicate callbacks for an
// already-terminal session return the stored outcome without touching the
// provider again.
func (s *SetupService) CompleteSetup(
	ctx context.Context,
	state, code string,
) (*store.SetupSession, error) {
	if state == "" || code == "" {
		return nil, ValidationError{Message: "missing state or code"}
	}

	s.states.Lock(state)
	defer s.states.Unlock(state)

	session, err := s.readSession(ctx, state)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return session, nil
	}

	var exchangeErr error
	switch session.Provider {
	case store.ProviderGitHub:
		exchangeErr = s.exchangeGitHub(ctx, code)
	case store.ProviderGitLab:
		exchangeErr = s.exchangeGitLab(ctx, code)
	default:
		exchangeErr = ValidationError{Message: "unknown provider " + string(session.Provider)}
	}

	status := store.SetupCompleted
	var message *string
	if exchangeErr != nil {
		status = store.SetupFailed
		m := exchangeErr.Error()
		message = &m
	}
	won, err := s.sessionStore.CompleteSetupSession(ctx, state, status, message)
	if err != nil {
		return nil, err
	}
	if !won {
		// Another process completed the session first; its outcome stands.
		return s.sessionStore.ReadSetupSession(ctx, state)
	}
	if exchangeErr == nil {
		s.firstSync(session.Provider)
	}
	return s.sessionStore.ReadSetupSession(ctx, state)
}

// SetupStatus reports a session's current status, expiring it lazily when
// the TTL has passed.
func (s *SetupService) SetupStatus(
	ctx context.Context,
	state string,
) (*store.SetupSession, error) {
	return s.readSession(ctx, state)
}

func (s *SetupService) readSession(
	ctx context.Context,
	state string,
) (*store.SetupSession, error) {
	session, err := s.sessionStore.ReadSetupSession(ctx, state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError{Resource: "setup session"}
		}
		return nil, err
	}
	now := time.Now().UTC()
	if session.Status == store.SetupPending && now.After(session.ExpiresOn) {
		if _, err := s.sessionStore.ExpireSetupSession(ctx, state, now); err != nil {
			return nil, err
		}
		return s.sessionStore.ReadSetupSession(ctx, state)
	}
	return session, nil
}

func (s *SetupService) exchangeGitHub(ctx context.Context, code string) error {
	config, err := s.github.ConvertManifest(ctx, code)
	if err != nil {
		return err
	}
	b, err := json.Marshal(config)
	if err != nil {
		return err
	}
	return s.credentials.PutCredential(ctx, GitHubAppCredentialKey, string(b))
}

func (s *SetupService) exchangeGitLab(ctx context.Context, code string) error {
	token, err := s.gitlab.ExchangeOAuthCode(
		ctx,
		settings.Settings.GitLabClientID,
		settings.Settings.GitLabClientSecret,
		code,
		s.gitlabRedirectURI(),
	)
	if err != nil {
		return err
	}
	login, err := s.gitlab.CurrentUser(ctx, token.AccessToken)
	if err != nil {
		return err
	}

	tokenKey := "gitlab:token:" + uuid.NewString()
	if err := s.credentials.PutCredential(ctx, tokenKey, token.AccessToken); err != nil {
		return err
	}
	if _, err := s.gitlabCredentialStore.CreateGitlabCredential(
		ctx, settings.Settings.GitLabBaseURL, login, tokenKey,
	); err != nil {
		// The orphaned credential row is unreachable without the gitlab
		// account row, remove it.
		if derr := s.credentials.DeleteCredential(ctx, tokenKey); derr != nil {
			log.Printf("err deleting orphaned credential: %v", derr)
		}
		return err
	}
	return nil
}

// firstSync populates the repository inventory right after a successful
// handshake so the operator sees repositories without waiting for the
// scheduled sync.
func (s *SetupService) firstSync(provider store.Provider) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.syncService.SyncProvider(ctx, provider); err != nil {
			log.Printf("err running first sync for %s: %v", provider, err)
		}
	}()
}

func (s *SetupService) gitlabRedirectURI() string {
	return settings.Settings.BaseURL() + "/setup/gitlab/callback"
}
