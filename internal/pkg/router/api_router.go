package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/GitDataEdit/app/controllers"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/env"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api",
		cors.New(cors.Config{
			AllowOrigins:     env.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000"),
			AllowCredentials: true,
		}),
		limiter.New(limiter.Config{
			Max:        env.GetEnvInt("API_RATE_LIMIT", 120),
			Expiration: time.Minute,
		}),
	)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	if qc := controllers.GetQueueController(); qc != nil {
		api.Get("/admin/queue", middleware.RequireAdmin, qc.HandleAdminQueueStats)
	}

	gc := controllers.GetGitHubController()
	if gc == nil {
		return
	}
	gh := api.Group("/github", middleware.RequireAPISessionAuth)
	gh.Get("/repos", gc.HandleListRepos)
	gh.Get("/repos/:owner/:repo/contents", gc.HandleRepoContents)
	gh.Get("/repos/:owner/:repo/file", gc.HandleRepoFile)
	gh.Post("/repos/:owner/:repo/commit", gc.HandleCommit)
	gh.Get("/subscription", gc.HandleSubscription)
	gh.Get("/callback", gc.HandleInstallationCallback)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
