package main

import (
	"context"
	"log"
	"time"

	"github.com/haatos/forgeci/internal"
	"github.com/haatos/forgeci/internal/forge"
	"github.com/haatos/forgeci/internal/handler"
	"github.com/haatos/forgeci/internal/security"
	"github.com/haatos/forgeci/internal/service"
	"github.com/haatos/forgeci/internal/settings"
	"github.com/haatos/forgeci/internal/store"

	"github.com/go-co-op/gocron/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "modernc.org/sqlite"
)

func main() {
	settings.ReadDotenv(internal.DotEnvPath)
	settings.Settings = settings.NewSettings()
	internal.InitializeConfiguration()
	hashKey, blockKey := security.NewCookieKeys()
	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb)

	eventStore := store.NewWebhookEventSQLiteStore(rdb, rwdb)
	repositoryStore := store.NewRepositorySQLiteStore(rdb, rwdb)
	installationStore := store.NewInstallationSQLiteStore(rdb, rwdb)
	gitlabCredentialStore := store.NewGitlabCredentialSQLiteStore(rdb, rwdb)
	buildStore := store.NewBuildSQLiteStore(rdb, rwdb)
	setupSessionStore := store.NewSetupSessionSQLiteStore(rdb, rwdb)
	credentialStore := store.NewCredentialSQLiteStore(rdb, rwdb)
	apiKeyStore := store.NewAPIKeySQLiteStore(rdb, rwdb)
	syncStore := store.NewSyncSQLiteStore(rwdb)

	githubClient := forge.NewGitHubClient(settings.Settings.GitHubAPIBaseURL)
	gitlabClient := forge.NewGitLabClient(settings.Settings.GitLabBaseURL)

	cookieSvc := service.NewCookieService(hashKey, blockKey)
	credentialSvc := service.NewCredentialService(
		credentialStore, security.NewAESEncrypter(security.NewEncryptionKey()),
	)
	apiKeySvc := service.NewAPIKeyService(apiKeyStore)
	repositorySvc := service.NewRepositoryService(repositoryStore, credentialSvc)
	headResolver := service.NewForgeHeadResolver(
		gitlabCredentialStore, credentialSvc, githubClient, gitlabClient,
	)
	buildSvc := service.NewBuildService(buildStore, repositoryStore, headResolver)
	syncSvc := service.NewSyncService(
		syncStore, installationStore, repositoryStore, gitlabCredentialStore,
		credentialSvc, githubClient, gitlabClient,
	)
	setupSvc := service.NewSetupService(
		setupSessionStore, gitlabCredentialStore, credentialSvc, syncSvc,
		githubClient, gitlabClient,
	)

	queue := service.NewEventQueue(
		internal.Config().EventWorkers, internal.Config().EventQueueSize,
	)
	webhookSvc := service.NewWebhookService(eventStore, repositoryStore, credentialSvc, queue)
	processor := service.NewEventProcessor(
		eventStore, repositoryStore, installationStore, buildSvc, syncSvc,
	)
	queue.Run(processor.Process)
	defer queue.Shutdown()

	if err := webhookSvc.RecoverUnprocessed(context.Background()); err != nil {
		log.Printf("err recovering unprocessed events: %v", err)
	}

	scheduler := service.NewScheduler()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			log.Printf("err shutting down scheduler: %v", err)
		}
	}()
	scheduleSync(scheduler, syncSvc)
	scheduler.Start()

	e := setupEcho()
	router := e.Group("")
	apiKeyMiddleware := handler.APIKeyMiddleware(apiKeySvc)

	handler.SetupWebhookRoutes(router, webhookSvc)
	handler.SetupSetupRoutes(router, apiKeyMiddleware, setupSvc, cookieSvc)

	management := e.Group("", apiKeyMiddleware)
	handler.SetupBuildRoutes(management, buildSvc)
	handler.SetupRepositoryRoutes(management, repositorySvc)
	handler.SetupIntegrationRoutes(management, syncSvc)
	handler.SetupAPIKeyRoutes(management, apiKeySvc)
	handler.SetupConfigRoutes(management)

	internal.GracefulShutdown(e, settings.Settings.Port)
}

func scheduleSync(scheduler gocron.Scheduler, syncSvc *service.SyncService) {
	interval, ok := internal.Config().SyncInterval()
	if !ok {
		log.Println("periodic sync is disabled")
		return
	}
	_, err := scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := syncSvc.SyncAll(ctx); err != nil {
				log.Printf("err running scheduled sync: %v", err)
			}
		}),
	)
	if err != nil {
		log.Fatal(err)
	}
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(
		middleware.CORSWithConfig(internal.GetCORSConfig()),
		middleware.RateLimiterWithConfig(internal.GetRateLimiterConfig()),
	)
	return e
}
