package service

import (
	"context"
	"time"

	"github.com/haatos/forgeci/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockWebhookEventStore struct {
	mock.Mock
}

func (m *MockWebhookEventStore) CreateWebhookEvent(
	ctx context.Context,
	provider store.Provider,
	deliveryID, eventType, payload string,
) (*store.WebhookEvent, bool, error) {
	args := m.Called(ctx, provider, deliveryID, eventType, payload)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*store.WebhookEvent), args.Bool(1), args.Error(2)
}

func (m *MockWebhookEventStore) ReadWebhookEventByID(
	ctx context.Context,
	id int64,
) (*store.WebhookEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.WebhookEvent), args.Error(1)
}

func (m *MockWebhookEventStore) ReadWebhookEventByDeliveryID(
	ctx context.Context,
	provider store.Provider,
	deliveryID string,
) (*store.WebhookEvent, error) {
	args := m.Called(ctx, provider, deliveryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.WebhookEvent), args.Error(1)
}

func (m *MockWebhookEventStore) ClaimWebhookEvent(
	ctx context.Context,
	id int64,
	claimedOn time.Time,
) (bool, error) {
	args := m.Called(ctx, id, claimedOn)
	return args.Bool(0), args.Error(1)
}

func (m *MockWebhookEventStore) CompleteWebhookEvent(
	ctx context.Context,
	id int64,
	repositoryID, note, errorMessage *string,
) error {
	args := m.Called(ctx, id, repositoryID, note, errorMessage)
	return args.Error(0)
}

func (m *MockWebhookEventStore) ListUnclaimedWebhookEvents(
	ctx context.Context,
	limit int64,
) ([]*store.WebhookEvent, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*store.WebhookEvent), args.Error(1)
}

type MockRepositoryStore struct {
	mock.Mock
}

func (m *MockRepositoryStore) CreateRepository(
	ctx context.Context,
	r *store.Repository,
) (*store.Repository, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Repository), args.Error(1)
}

func (m *MockRepositoryStore) UpsertRepository(
	ctx context.Context,
	r *store.Repository,
) (int64, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepositoryStore) ReadRepositoryByID(
	ctx context.Context,
	repositoryID string,
) (*store.Repository, error) {
	args := m.Called(ctx, repositoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Repository), args.Error(1)
}

func (m *MockRepositoryStore) ReadRepositoryByProviderID(
	ctx context.Context,
	provider store.Provider,
	providerRepoID int64,
) (*store.Repository, error) {
	args := m.Called(ctx, provider, providerRepoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Repository), args.Error(1)
}

func (m *MockRepositoryStore) ListRepositories(
	ctx context.Context,
) ([]*store.Repository, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*store.Repository), args.Error(1)
}

func (m *MockRepositoryStore) UpdateRepositoryWebhookTokenKey(
	ctx context.Context,
	repositoryID, tokenKey string,
) (int64, error) {
	args := m.Called(ctx, repositoryID, tokenKey)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepositoryStore) DeactivateRepository(
	ctx context.Context,
	repositoryID string,
	updatedOn time.Time,
) (int64, error) {
	args := m.Called(ctx, repositoryID, updatedOn)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepositoryStore) DeactivateRepositoryByProviderID(
	ctx context.Context,
	provider store.Provider,
	providerRepoID int64,
	updatedOn time.Time,
) (int64, error) {
	args := m.Called(ctx, provider, providerRepoID, updatedOn)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepositoryStore) DeactivateInstallationRepositories(
	ctx context.Context,
	installationID int64,
	updatedOn time.Time,
) (int64, error) {
	args := m.Called(ctx, installationID, updatedOn)
	return args.Get(0).(int64), args.Error(1)
}

type MockBuildStore struct {
	mock.Mock
}

func (m *MockBuildStore) CreateBuild(ctx context.Context, b *store.Build) (*store.Build, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Build), args.Error(1)
}

func (m *MockBuildStore) ReadBuildByID(ctx context.Context, buildID string) (*store.Build, error) {
	args := m.Called(ctx, buildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Build), args.Error(1)
}

func (m *MockBuildStore) ListBuilds(
	ctx context.Context,
	repositoryID *string,
	limit, offset int64,
) ([]store.Build, error) {
	args := m.Called(ctx, repositoryID, limit, offset)
	return args.Get(0).([]store.Build), args.Error(1)
}

func (m *MockBuildStore) UpdateBuildStarted(
	ctx context.Context,
	buildID string,
	startedOn time.Time,
) (int64, error) {
	args := m.Called(ctx, buildID, startedOn)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBuildStore) UpdateBuildFinished(
	ctx context.Context,
	buildID string,
	status store.BuildStatus,
	errorMessage *string,
	finishedOn time.Time,
) (int64, error) {
	args := m.Called(ctx, buildID, status, errorMessage, finishedOn)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBuildStore) CancelBuild(
	ctx context.Context,
	buildID string,
	finishedOn time.Time,
) (int64, error) {
	args := m.Called(ctx, buildID, finishedOn)
	return args.Get(0).(int64), args.Error(1)
}

type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) PutCredential(ctx context.Context, key, cipher string) error {
	args := m.Called(ctx, key, cipher)
	return args.Error(0)
}

func (m *MockCredentialStore) ReadCredentialByKey(
	ctx context.Context,
	key string,
) (*store.Credential, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Credential), args.Error(1)
}

func (m *MockCredentialStore) DeleteCredential(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// PlainEncrypter passes secrets through unchanged so tests can assert on
// stored values without real ciphertext.
type PlainEncrypter struct{}

func (PlainEncrypter) EncryptAES(text string) string {
	return text
}

func (PlainEncrypter) DecryptAES(encrypted string) ([]byte, error) {
	return []byte(encrypted), nil
}

type MockHeadResolver struct {
	mock.Mock
}

func (m *MockHeadResolver) ResolveHead(
	ctx context.Context,
	repo *store.Repository,
	branch string,
) (string, error) {
	args := m.Called(ctx, repo, branch)
	return args.String(0), args.Error(1)
}
