package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/haatos/forgeci/internal"
	"github.com/haatos/forgeci/internal/service"
	"github.com/haatos/forgeci/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

const webhookTestSecret = "wh-secret"

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type webhookTestEnv struct {
	e            *echo.Echo
	repositoryID string
}

func newWebhookTestEnv() *webhookTestEnv {
	db := openTestDB()
	credentials := newTestCredentialService(db)
	repositoryStore := store.NewRepositorySQLiteStore(db, db)

	appConfig := `{"id": 1234, "slug": "forgeci", "webhook_secret": "` + webhookTestSecret + `", "pem": "unused"}`
	if err := credentials.PutCredential(
		context.Background(), service.GitHubAppCredentialKey, appConfig,
	); err != nil {
		log.Fatal(err)
	}

	tokenKey := "gitlab:webhook:test"
	if err := credentials.PutCredential(
		context.Background(), tokenKey, "hook-token",
	); err != nil {
		log.Fatal(err)
	}
	repo, err := repositoryStore.CreateRepository(context.Background(), &store.Repository{
		RepositoryID:    uuid.NewString(),
		Provider:        store.ProviderGitLab,
		ProviderRepoID:  9,
		Owner:           "octocat",
		Name:            "tools",
		DefaultBranch:   "main",
		WebhookTokenKey: &tokenKey,
	})
	if err != nil {
		log.Fatal(err)
	}

	webhookService := service.NewWebhookService(
		store.NewWebhookEventSQLiteStore(db, db),
		repositoryStore,
		credentials,
		service.NewEventQueue(1, 64),
	)

	e := newTestEcho()
	SetupWebhookRoutes(e.Group(""), webhookService)
	return &webhookTestEnv{e: e, repositoryID: repo.RepositoryID}
}

func githubRequest(payload []byte, deliveryID, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", bytes.NewReader(payload))
	req.Header.Set(internal.GitHubDeliveryHeader, deliveryID)
	req.Header.Set(internal.GitHubEventHeader, "push")
	req.Header.Set(internal.GitHubSignatureHeader, signature)
	return req
}

func TestWebhookHandler_PostGitHubWebhook(t *testing.T) {
	payload := []byte(`{"ref": "refs/heads/main", "repository": {"id": 42}}`)

	t.Run("success - signed delivery is accepted, redelivery is a duplicate", func(t *testing.T) {
		// arrange
		env := newWebhookTestEnv()
		sig := signPayload(payload, webhookTestSecret)

		// act
		rec := httptest.NewRecorder()
		env.e.ServeHTTP(rec, githubRequest(payload, "d-1", sig))

		// assert
		assert.Equal(t, http.StatusOK, rec.Code)
		var res map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, true, res["accepted"])
		assert.Equal(t, false, res["duplicate"])

		// act: provider redelivers the same delivery id
		rec = httptest.NewRecorder()
		env.e.ServeHTTP(rec, githubRequest(payload, "d-1", sig))

		// assert
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, true, res["duplicate"])
	})

	t.Run("failure - bad signature is unauthorized", func(t *testing.T) {
		// arrange
		env := newWebhookTestEnv()

		// act
		rec := httptest.NewRecorder()
		env.e.ServeHTTP(rec, githubRequest(payload, "d-1", signPayload(payload, "wrong")))

		// assert
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid webhook signature")
	})

	t.Run("failure - missing signature header", func(t *testing.T) {
		// arrange
		env := newWebhookTestEnv()

		// act
		rec := httptest.NewRecorder()
		env.e.ServeHTTP(rec, githubRequest(payload, "d-1", ""))

		// assert
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestWebhookHandler_PostGitLabWebhook(t *testing.T) {
	payload := []byte(`{"object_kind": "push", "project": {"id": 9}}`)

	gitlabRequest := func(repositoryID, token string) *http.Request {
		req := httptest.NewRequest(
			http.MethodPost, "/api/webhooks/gitlab/"+repositoryID, bytes.NewReader(payload),
		)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(internal.GitLabDeliveryHeader, uuid.NewString())
		req.Header.Set(internal.GitLabEventHeader, "Push Hook")
		req.Header.Set(internal.GitLabTokenHeader, token)
		return req
	}

	t.Run("success - matching token", func(t *testing.T) {
		// arrange
		env := newWebhookTestEnv()

		// act
		rec := httptest.NewRecorder()
		env.e.ServeHTTP(rec, gitlabRequest(env.repositoryID, "hook-token"))

		// assert
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"accepted":true`)
	})

	t.Run("failure - wrong token", func(t *testing.T) {
		// arrange
		env := newWebhookTestEnv()

		// act
		rec := httptest.NewRecorder()
		env.e.ServeHTTP(rec, gitlabRequest(env.repositoryID, "wrong"))

		// assert
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid webhook token")
	})

	t.Run("failure - unknown repository is indistinguishable from a bad token", func(t *testing.T) {
		// arrange
		env := newWebhookTestEnv()

		// act
		rec := httptest.NewRecorder()
		env.e.ServeHTTP(rec, gitlabRequest(uuid.NewString(), "hook-token"))

		// assert
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid webhook token")
	})
}
