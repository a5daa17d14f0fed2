package forge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Provider payloads are dynamically shaped JSON. Each recognized
// (provider, event type) pair gets an explicit schema below and parsing
// rejects anything that does not carry the fields the processor relies on.

type ErrUnsupportedEvent struct {
	EventType string
}

func (e ErrUnsupportedEvent) Error() string {
	return "unsupported event type: " + e.EventType
}

type ErrMalformedPayload struct {
	Reason string
}

func (e ErrMalformedPayload) Error() string {
	return "malformed payload: " + e.Reason
}

type RepositoryRef struct {
	ID            int64
	Owner         string
	Name          string
	DefaultBranch string
}

type PushEvent struct {
	Repo      RepositoryRef
	Branch    string
	CommitSHA string
	// Tag is set instead of Branch for refs/tags pushes; no build is
	// triggered for them.
	Tag string
	// Deleted marks a branch/tag deletion push; no build is triggered.
	Deleted bool
}

type PullRequestEvent struct {
	Repo      RepositoryRef
	Action    string
	Branch    string
	CommitSHA string
}

type InstallationEvent struct {
	Action              string
	InstallationID      int64
	AccountLogin        string
	AccountType         string
	RepositorySelection string
	Repositories        []RepositoryRef
}

type InstallationRepositoriesEvent struct {
	InstallationID int64
	Added          []RepositoryRef
	Removed        []RepositoryRef
}

type githubRepository struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

func (r githubRepository) ref() (RepositoryRef, error) {
	ref := RepositoryRef{
		ID:            r.ID,
		Owner:         r.Owner.Login,
		Name:          r.Name,
		DefaultBranch: r.DefaultBranch,
	}
	if ref.Owner == "" || ref.Name == "" {
		owner, name, ok := strings.Cut(r.FullName, "/")
		if !ok {
			return ref, ErrMalformedPayload{Reason: "repository owner/name missing"}
		}
		ref.Owner, ref.Name = owner, name
	}
	if ref.ID == 0 {
		return ref, ErrMalformedPayload{Reason: "repository id missing"}
	}
	return ref, nil
}

// ParseGitHubEvent decodes a GitHub webhook payload into its typed event.
// Unrecognized event types yield ErrUnsupportedEvent and unexpected shapes
// yield ErrMalformedPayload.
func ParseGitHubEvent(eventType string, payload []byte) (any, error) {
	switch eventType {
	case "push":
		var p struct {
			Ref        string           `json:"ref"`
			After      string           `json:"after"`
			Deleted    bool             `json:"deleted"`
			Repository githubRepository `json:"repository"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, ErrMalformedPayload{Reason: err.Error()}
		}
		repo, err := p.Repository.ref()
		if err != nil {
			return nil, err
		}
		branch, tag, err := splitPushRef(p.Ref)
		if err != nil {
			return nil, err
		}
		return &PushEvent{
			Repo:      repo,
			Branch:    branch,
			CommitSHA: p.After,
			Tag:       tag,
			Deleted:   p.Deleted || p.After == zeroSHA,
		}, nil
	case "pull_request":
		var p struct {
			Action      string `json:"action"`
			PullRequest struct {
				Head struct {
					Ref string `json:"ref"`
					SHA string `json:"sha"`
				} `json:"head"`
			} `json:"pull_request"`
			Repository githubRepository `json:"repository"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, ErrMalformedPayload{Reason: err.Error()}
		}
		repo, err := p.Repository.ref()
		if err != nil {
			return nil, err
		}
		if p.Action == "" || p.PullRequest.Head.SHA == "" {
			return nil, ErrMalformedPayload{Reason: "pull_request action or head sha missing"}
		}
		return &PullRequestEvent{
			Repo:      repo,
			Action:    p.Action,
			Branch:    p.PullRequest.Head.Ref,
			CommitSHA: p.PullRequest.Head.SHA,
		}, nil
	case "installation":
		var p struct {
			Action       string `json:"action"`
			Installation struct {
				ID      int64 `json:"id"`
				Account struct {
					Login string `json:"login"`
					Type  string `json:"type"`
				} `json:"account"`
				RepositorySelection string `json:"repository_selection"`
			} `json:"installation"`
			Repositories []githubRepository `json:"repositories"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, ErrMalformedPayload{Reason: err.Error()}
		}
		if p.Installation.ID == 0 || p.Action == "" {
			return nil, ErrMalformedPayload{Reason: "installation id or action missing"}
		}
		repos, err := installationRepoRefs(p.Repositories, p.Installation.Account.Login)
		if err != nil {
			return nil, err
		}
		return &InstallationEvent{
			Action:              p.Action,
			InstallationID:      p.Installation.ID,
			AccountLogin:        p.Installation.Account.Login,
			AccountType:         p.Installation.Account.Type,
			RepositorySelection: p.Installation.RepositorySelection,
			Repositories:        repos,
		}, nil
	case "installation_repositories":
		var p struct {
			Installation struct {
				ID      int64 `json:"id"`
				Account struct {
					Login string `json:"login"`
				} `json:"account"`
			} `json:"installation"`
			Added   []githubRepository `json:"repositories_added"`
			Removed []githubRepository `json:"repositories_removed"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, ErrMalformedPayload{Reason: err.Error()}
		}
		if p.Installation.ID == 0 {
			return nil, ErrMalformedPayload{Reason: "installation id missing"}
		}
		added, err := installationRepoRefs(p.Added, p.Installation.Account.Login)
		if err != nil {
			return nil, err
		}
		removed, err := installationRepoRefs(p.Removed, p.Installation.Account.Login)
		if err != nil {
			return nil, err
		}
		return &InstallationRepositoriesEvent{
			InstallationID: p.Installation.ID,
			Added:          added,
			Removed:        removed,
		}, nil
	default:
		return nil, ErrUnsupportedEvent{EventType: eventType}
	}
}

const zeroSHA = "0000000000000000000000000000000000000000"

// Tag pushes are valid provider input that never builds, so they are kept
// distinct from truly malformed refs.
func splitPushRef(ref string) (branch, tag string, err error) {
	if branch, ok := strings.CutPrefix(ref, "refs/heads/"); ok {
		return branch, "", nil
	}
	if tag, ok := strings.CutPrefix(ref, "refs/tags/"); ok {
		return "", tag, nil
	}
	return "", "", ErrMalformedPayload{Reason: fmt.Sprintf("ref %q is not a branch or tag", ref)}
}

// installation payloads carry abbreviated repository objects without an
// owner; fall back to the installation account login.
func installationRepoRefs(repos []githubRepository, accountLogin string) ([]RepositoryRef, error) {
	refs := make([]RepositoryRef, 0, len(repos))
	for _, r := range repos {
		if r.Owner.Login == "" && !strings.Contains(r.FullName, "/") {
			r.Owner.Login = accountLogin
		}
		ref, err := r.ref()
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// ParseGitLabEvent decodes a GitLab webhook payload. Merge request actions
// are normalized onto the GitHub vocabulary (open -> opened, update ->
// synchronize) so the processing policy is provider independent.
func ParseGitLabEvent(eventType string, payload []byte) (any, error) {
	switch eventType {
	case "Push Hook":
		var p struct {
			ObjectKind string `json:"object_kind"`
			Ref        string `json:"ref"`
			After      string `json:"after"`
			Project    struct {
				ID                int64  `json:"id"`
				Name              string `json:"name"`
				PathWithNamespace string `json:"path_with_namespace"`
				DefaultBranch     string `json:"default_branch"`
			} `json:"project"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, ErrMalformedPayload{Reason: err.Error()}
		}
		if p.ObjectKind != "push" || p.Project.ID == 0 {
			return nil, ErrMalformedPayload{Reason: "not a push payload"}
		}
		owner, name, ok := strings.Cut(p.Project.PathWithNamespace, "/")
		if !ok {
			return nil, ErrMalformedPayload{Reason: "project path missing"}
		}
		branch, tag, err := splitPushRef(p.Ref)
		if err != nil {
			return nil, err
		}
		return &PushEvent{
			Repo: RepositoryRef{
				ID:            p.Project.ID,
				Owner:         owner,
				Name:          name,
				DefaultBranch: p.Project.DefaultBranch,
			},
			Branch:    branch,
			CommitSHA: p.After,
			Tag:       tag,
			Deleted:   p.After == zeroSHA,
		}, nil
	case "Merge Request Hook":
		var p struct {
			ObjectKind string `json:"object_kind"`
			Project    struct {
				ID                int64  `json:"id"`
				Name              string `json:"name"`
				PathWithNamespace string `json:"path_with_namespace"`
				DefaultBranch     string `json:"default_branch"`
			} `json:"project"`
			ObjectAttributes struct {
				Action       string `json:"action"`
				SourceBranch string `json:"source_branch"`
				LastCommit   struct {
					ID string `json:"id"`
				} `json:"last_commit"`
			} `json:"object_attributes"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, ErrMalformedPayload{Reason: err.Error()}
		}
		if p.ObjectKind != "merge_request" || p.Project.ID == 0 {
			return nil, ErrMalformedPayload{Reason: "not a merge request payload"}
		}
		owner, name, ok := strings.Cut(p.Project.PathWithNamespace, "/")
		if !ok {
			return nil, ErrMalformedPayload{Reason: "project path missing"}
		}
		return &PullRequestEvent{
			Repo: RepositoryRef{
				ID:            p.Project.ID,
				Owner:         owner,
				Name:          name,
				DefaultBranch: p.Project.DefaultBranch,
			},
			Action:    normalizeGitLabAction(p.ObjectAttributes.Action),
			Branch:    p.ObjectAttributes.SourceBranch,
			CommitSHA: p.ObjectAttributes.LastCommit.ID,
		}, nil
	default:
		return nil, ErrUnsupportedEvent{EventType: eventType}
	}
}

func normalizeGitLabAction(action string) string {
	switch action {
	case "open", "reopen":
		return "opened"
	case "update":
		return "synchronize"
	case "close", "merge":
		return "closed"
	default:
		return action
	}
}
