package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haatos/forgeci/internal"
	"github.com/haatos/forgeci/internal/service"
	"github.com/haatos/forgeci/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

type apiKeyTestEnv struct {
	e             *echo.Echo
	apiKeyService *service.APIKeyService
}

func newAPIKeyTestEnv() *apiKeyTestEnv {
	db := openTestDB()
	apiKeyService := service.NewAPIKeyService(store.NewAPIKeySQLiteStore(db, db))

	e := newTestEcho()
	SetupAPIKeyRoutes(e.Group("", APIKeyMiddleware(apiKeyService)), apiKeyService)
	return &apiKeyTestEnv{e: e, apiKeyService: apiKeyService}
}

// bootstrapKey mirrors the admin cli: the first key is minted directly
// against the store.
func (env *apiKeyTestEnv) bootstrapKey(t *testing.T) string {
	value, _, err := env.apiKeyService.CreateAPIKey(context.Background(), "bootstrap")
	assert.NoError(t, err)
	return value
}

func (env *apiKeyTestEnv) do(method, path, body, key string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if key != "" {
		req.Header.Set(internal.APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Run("failure - missing api key", func(t *testing.T) {
		// arrange
		env := newAPIKeyTestEnv()

		// act
		rec := env.do(http.MethodGet, "/api-keys", "", "")

		// assert
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing api key")
	})

	t.Run("failure - invalid api key", func(t *testing.T) {
		// arrange
		env := newAPIKeyTestEnv()
		env.bootstrapKey(t)

		// act
		rec := env.do(http.MethodGet, "/api-keys", "", "bootstrap.wrong-secret")

		// assert
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid api key")
	})

	t.Run("success - valid api key passes through", func(t *testing.T) {
		// arrange
		env := newAPIKeyTestEnv()
		key := env.bootstrapKey(t)

		// act
		rec := env.do(http.MethodGet, "/api-keys", "", key)

		// assert
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAPIKeyHandler_PostAPIKey(t *testing.T) {
	t.Run("success - the key value is returned exactly once", func(t *testing.T) {
		// arrange
		env := newAPIKeyTestEnv()
		key := env.bootstrapKey(t)

		// act
		rec := env.do(http.MethodPost, "/api-keys", `{"name": "ci-agent"}`, key)

		// assert
		assert.Equal(t, http.StatusCreated, rec.Code)
		var res map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, "ci-agent", res["name"])
		created, ok := res["key"].(string)
		assert.True(t, ok)
		assert.True(t, strings.HasPrefix(created, "ci-agent."))

		// listing never exposes the secret or its hash
		rec = env.do(http.MethodGet, "/api-keys", "", key)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "key_hash")
		assert.NotContains(t, rec.Body.String(), strings.TrimPrefix(created, "ci-agent."))
	})

	t.Run("failure - duplicate name conflicts", func(t *testing.T) {
		// arrange
		env := newAPIKeyTestEnv()
		key := env.bootstrapKey(t)
		rec := env.do(http.MethodPost, "/api-keys", `{"name": "ci-agent"}`, key)
		assert.Equal(t, http.StatusCreated, rec.Code)

		// act
		rec = env.do(http.MethodPost, "/api-keys", `{"name": "ci-agent"}`, key)

		// assert
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("failure - name with separator", func(t *testing.T) {
		// arrange
		env := newAPIKeyTestEnv()
		key := env.bootstrapKey(t)

		// act
		rec := env.do(http.MethodPost, "/api-keys", `{"name": "bad.name"}`, key)

		// assert
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPIKeyHandler_DeleteAPIKey(t *testing.T) {
	t.Run("success - a deleted key stops authenticating", func(t *testing.T) {
		// arrange
		env := newAPIKeyTestEnv()
		key := env.bootstrapKey(t)
		rec := env.do(http.MethodPost, "/api-keys", `{"name": "ci-agent"}`, key)
		assert.Equal(t, http.StatusCreated, rec.Code)
		var res map[string]any
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		agentKey := res["key"].(string)
		id := int64(res["api_key_id"].(float64))

		// act
		rec = env.do(http.MethodDelete, fmt.Sprintf("/api-keys/%d", id), "", key)

		// assert
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = env.do(http.MethodGet, "/api-keys", "", agentKey)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
