package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type GitLabToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type GitLabClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewGitLabClient(baseURL string) *GitLabClient {
	return &GitLabClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// AuthorizeURL builds the OAuth authorization redirect embedding the setup
// session's state token.
func (g *GitLabClient) AuthorizeURL(clientID, redirectURI, state string) string {
	params := make(url.Values)
	params.Set("client_id", clientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", "api")
	params.Set("state", state)
	return g.baseURL + "/oauth/authorize?" + params.Encode()
}

// ExchangeOAuthCode trades the one-time authorization code for an access
// token. Codes are single use, so callers must guarantee a single exchange
// per setup session.
func (g *GitLabClient) ExchangeOAuthCode(
	ctx context.Context,
	clientID, clientSecret, code, redirectURI string,
) (*GitLabToken, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	form := make(url.Values)
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", redirectURI)

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost,
		g.baseURL+"/oauth/token",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := g.client.Do(req)
	if err != nil {
		return nil, TransientError{Provider: "gitlab", Message: err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, statusError("gitlab", res.StatusCode, string(b))
	}

	token := new(GitLabToken)
	if err := json.NewDecoder(res.Body).Decode(token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, ErrMalformedPayload{Reason: "token exchange response missing access_token"}
	}
	return token, nil
}

func (g *GitLabClient) CurrentUser(ctx context.Context, token string) (string, error) {
	var user struct {
		Username string `json:"username"`
	}
	if err := g.do(ctx, http.MethodGet, "/api/v4/user", token, &user); err != nil {
		return "", err
	}
	return user.Username, nil
}

func (g *GitLabClient) ListProjects(ctx context.Context, token string) ([]RepositoryRef, error) {
	var raw []struct {
		ID                int64  `json:"id"`
		Name              string `json:"name"`
		PathWithNamespace string `json:"path_with_namespace"`
		DefaultBranch     string `json:"default_branch"`
	}
	path := "/api/v4/projects?membership=true&per_page=100"
	if err := g.do(ctx, http.MethodGet, path, token, &raw); err != nil {
		return nil, err
	}
	refs := make([]RepositoryRef, 0, len(raw))
	for _, p := range raw {
		owner, name, ok := strings.Cut(p.PathWithNamespace, "/")
		if !ok {
			owner, name = "", p.Name
		}
		refs = append(refs, RepositoryRef{
			ID:            p.ID,
			Owner:         owner,
			Name:          name,
			DefaultBranch: p.DefaultBranch,
		})
	}
	return refs, nil
}

func (g *GitLabClient) GetBranchHead(
	ctx context.Context,
	token string,
	projectID int64,
	branch string,
) (string, error) {
	var raw struct {
		Commit struct {
			ID string `json:"id"`
		} `json:"commit"`
	}
	path := fmt.Sprintf(
		"/api/v4/projects/%d/repository/branches/%s",
		projectID, url.PathEscape(branch),
	)
	if err := g.do(ctx, http.MethodGet, path, token, &raw); err != nil {
		return "", err
	}
	return raw.Commit.ID, nil
}

func (g *GitLabClient) do(ctx context.Context, method, path, token string, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := g.client.Do(req)
	if err != nil {
		return TransientError{Provider: "gitlab", Message: err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return statusError("gitlab", res.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
