package internal

const (
	DotEnvPath            = "./.env"
	MigrationsDir         = "migrations"
	APIKeyHeader          = "X-API-Key"
	SetupStateCookie      = "forgeci_setup"
	GitHubEventHeader     = "X-GitHub-Event"
	GitHubDeliveryHeader  = "X-GitHub-Delivery"
	GitHubSignatureHeader = "X-Hub-Signature-256"
	GitLabEventHeader     = "X-Gitlab-Event"
	GitLabDeliveryHeader  = "X-Gitlab-Event-UUID"
	GitLabTokenHeader     = "X-Gitlab-Token"
)
