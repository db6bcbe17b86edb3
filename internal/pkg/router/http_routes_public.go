package router

import (
	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/GitDataEdit/app/controllers"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/middleware"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/docs/api", func(c *fiber.Ctx) error {
		return c.Redirect("/docs/api/v1", fiber.StatusMovedPermanently)
	})

	// Email sign-in
	if ac := controllers.GetAuthController(); ac != nil {
		app.Post("/login/email", ac.HandleEmailLogin)
		app.Get("/login/email/verify", ac.HandleEmailLoginVerify)
	}
	app.Post("/logout", middleware.RequireAPISessionAuth, controllers.HandleAuthLogout)

	// Social OAuth
	app.Get("/auth/:provider", gothfiber.BeginAuthHandler)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Billing provider webhooks (signature-verified in controller)
	if bc := controllers.GetBillingController(); bc != nil {
		app.Post("/webhooks/stripe", bc.HandleStripeWebhook)
	}
}
