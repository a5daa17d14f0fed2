package forge

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// AppConfig holds the GitHub App credentials returned by the manifest
// conversion. It is stored as one opaque blob in the encrypted credential
// store and never logged.
type AppConfig struct {
	AppID         int64  `json:"id"`
	Slug          string `json:"slug"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	WebhookSecret string `json:"webhook_secret"`
	PEM           string `json:"pem"`
}

type GitHubInstallation struct {
	ID                  int64
	AccountLogin        string
	AccountType         string
	RepositorySelection string
}

type GitHubClient struct {
	apiBaseURL string
	client     *http.Client
	limiter    *rate.Limiter
}

func NewGitHubClient(apiBaseURL string) *GitHubClient {
	return &GitHubClient{
		apiBaseURL: apiBaseURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
	}
}

// ConvertManifest exchanges a one-time manifest code for the created app's
// credentials. The code is single use: a second conversion attempt fails on
// the provider side, which is why callers must guarantee a single exchange.
func (g *GitHubClient) ConvertManifest(ctx context.Context, code string) (*AppConfig, error) {
	var config AppConfig
	path := fmt.Sprintf("/app-manifests/%s/conversions", code)
	if err := g.do(ctx, http.MethodPost, path, "", nil, &config); err != nil {
		return nil, err
	}
	if config.AppID == 0 || config.PEM == "" {
		return nil, ErrMalformedPayload{Reason: "manifest conversion response incomplete"}
	}
	return &config, nil
}

func (g *GitHubClient) ListInstallations(
	ctx context.Context,
	config *AppConfig,
) ([]GitHubInstallation, error) {
	jwt, err := appJWT(config, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	var raw []struct {
		ID      int64 `json:"id"`
		Account struct {
			Login string `json:"login"`
			Type  string `json:"type"`
		} `json:"account"`
		RepositorySelection string `json:"repository_selection"`
	}
	if err := g.do(ctx, http.MethodGet, "/app/installations?per_page=100", jwt, nil, &raw); err != nil {
		return nil, err
	}
	installations := make([]GitHubInstallation, 0, len(raw))
	for _, i := range raw {
		installations = append(installations, GitHubInstallation{
			ID:                  i.ID,
			AccountLogin:        i.Account.Login,
			AccountType:         i.Account.Type,
			RepositorySelection: i.RepositorySelection,
		})
	}
	return installations, nil
}

func (g *GitHubClient) CreateInstallationToken(
	ctx context.Context,
	config *AppConfig,
	installationID int64,
) (string, error) {
	jwt, err := appJWT(config, time.Now().UTC())
	if err != nil {
		return "", err
	}
	var res struct {
		Token string `json:"token"`
	}
	path := fmt.Sprintf("/app/installations/%d/access_tokens", installationID)
	if err := g.do(ctx, http.MethodPost, path, jwt, nil, &res); err != nil {
		return "", err
	}
	return res.Token, nil
}

func (g *GitHubClient) ListInstallationRepositories(
	ctx context.Context,
	installationToken string,
) ([]RepositoryRef, error) {
	var raw struct {
		Repositories []githubRepository `json:"repositories"`
	}
	path := "/installation/repositories?per_page=100"
	if err := g.do(ctx, http.MethodGet, path, installationToken, nil, &raw); err != nil {
		return nil, err
	}
	refs := make([]RepositoryRef, 0, len(raw.Repositories))
	for _, r := range raw.Repositories {
		ref, err := r.ref()
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (g *GitHubClient) GetBranchHead(
	ctx context.Context,
	installationToken, owner, name, branch string,
) (string, error) {
	var raw struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	path := fmt.Sprintf("/repos/%s/%s/branches/%s", owner, name, branch)
	if err := g.do(ctx, http.MethodGet, path, installationToken, nil, &raw); err != nil {
		return "", err
	}
	return raw.Commit.SHA, nil
}

func (g *GitHubClient) do(
	ctx context.Context,
	method, path, token string,
	body, out any,
) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.apiBaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := g.client.Do(req)
	if err != nil {
		return TransientError{Provider: "github", Message: err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return statusError("github", res.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// appJWT signs a short-lived RS256 app token with the app's private key.
func appJWT(config *AppConfig, now time.Time) (string, error) {
	key, err := parsePrivateKey([]byte(config.PEM))
	if err != nil {
		return "", err
	}

	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	claims := enc.EncodeToString(fmt.Appendf(nil,
		`{"iat":%d,"exp":%d,"iss":"%d"}`,
		now.Add(-30*time.Second).Unix(),
		now.Add(9*time.Minute).Unix(),
		config.AppID,
	))
	signingInput := header + "." + claims

	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return signingInput + "." + enc.EncodeToString(sig), nil
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no pem block in app private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("app private key is not rsa")
	}
	return key, nil
}
