package handler

type SetupParams struct {
	Provider string `param:"provider"`
	State    string `query:"state"`
	Code     string `query:"code"`
}

type GitLabWebhookParams struct {
	RepositoryID string `param:"repository_id"`
}

type TriggerBuildParams struct {
	RepositoryID string `param:"repository_id" json:"repository_id"`
	Branch       string `json:"branch"`
	CommitSHA    string `json:"commit_sha"`
}

type BuildParams struct {
	BuildID string `param:"build_id"`
}

type ListBuildsParams struct {
	RepositoryID *string `query:"repository_id"`
	Limit        int     `query:"limit"`
	Offset       int     `query:"offset"`
}

type RepositoryParams struct {
	Provider       string `json:"provider"`
	ProviderRepoID int64  `json:"provider_repo_id"`
	Owner          string `json:"owner"`
	Name           string `json:"name"`
	DefaultBranch  string `json:"default_branch"`
}

type SyncParams struct {
	Provider string `param:"provider"`
}

type APIKeyParams struct {
	ID int64 `param:"id"`
}

type CreateAPIKeyParams struct {
	Name string `json:"name"`
}

type ConfigParams struct {
	SetupSessionTTLMinutes int64    `json:"setup_session_ttl_minutes"`
	EventWorkers           int      `json:"event_workers"`
	EventQueueSize         int      `json:"event_queue_size"`
	SyncIntervalHours      int64    `json:"sync_interval_hours"`
	PullRequestBuilds      bool     `json:"pull_request_builds"`
	PullRequestActions     []string `json:"pull_request_actions"`
}
