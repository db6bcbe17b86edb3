package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/GitDataEdit/app/controllers"
	"github.com/ManuelReschke/GitDataEdit/app/repository"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/billing"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/cache"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/database"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/entitlements"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/env"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/gateway"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/github"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/hcaptcha"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/installations"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/jobqueue"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/mail"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/router"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/s3backup"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/gitdataedit to project root
		"../../../", // Fallback
	}
	basePath := "./"
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs"); err == nil {
			basePath = path
			break
		}
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 5 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "change-me"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	installControllers()

	// ROUTER
	router.InstallRouter(app)

	return app
}

// installControllers wires the GitHub App client, the gateway and the
// entitlement gate into the controllers the router serves.
func installControllers() {
	repos := repository.GetGlobalRepositories()

	var (
		appClient installations.AppClient
		opener    gateway.InstallationOpener
	)
	ghApp, err := github.NewApp(github.ConfigFromEnv(), cache.NewStore(cache.GetClient(), "gitdataedit:"))
	switch {
	case err == nil:
		appClient, opener = ghApp, ghApp
	case errors.Is(err, github.ErrNotConfigured):
		log.Printf("GitHub App is not configured; repository endpoints will report no installations")
	default:
		log.Printf("GitHub App setup failed: %v", err)
	}

	directory := installations.NewDirectory(repos.Installation, repos.User, appClient)
	gw := gateway.New(directory, opener, env.GetEnvDuration("GITHUB_CALL_TIMEOUT", 15*time.Second))
	if cfg, err := s3backup.LoadConfig(); err != nil {
		log.Printf("S3 backup disabled: %v", err)
	} else if cfg.IsEnabled() {
		if store, err := s3backup.NewClient(cfg); err != nil {
			log.Printf("S3 backup disabled: %v", err)
		} else {
			manager := jobqueue.GetManager()
			manager.GetQueue().Register(jobqueue.JobTypeRevisionArchive, jobqueue.RevisionArchiveHandler(store))
			manager.Start()
			gw.WithArchiver(jobqueue.NewRevisionArchiver(manager.GetQueue()))
			controllers.InitializeQueueController(controllers.NewQueueController(manager.GetQueue()))
		}
	}

	gate := entitlements.NewGate(repos.User, repos.Commit)
	controllers.InitializeGitHubController(controllers.NewGitHubController(gw, gate, directory, repos.User, billing.PricingData()))

	baseURL := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if baseURL == "" {
		baseURL = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}
	auth := controllers.NewAuthController(repos.User, mail.NewSMTPMailerFromEnv(), baseURL)
	if captcha := hcaptcha.NewVerifierFromEnv(); captcha != nil {
		auth.WithCaptcha(captcha)
	}
	controllers.InitializeAuthController(auth)
	controllers.InitializeBillingController(controllers.NewBillingController(
		billing.NewServiceFromDB(database.GetDB()),
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	))
}
