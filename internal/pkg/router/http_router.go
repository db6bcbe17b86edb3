package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/middleware"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/oauth"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	if session.GetSessionStore() == nil {
		session.NewSessionStore()
	}

	// init oauth providers
	oauth.Setup()

	app.Use(middleware.UserContextMiddleware)

	h.registerPublicRoutes(app)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
