package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/jobqueue"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/middleware"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/usercontext"
)

type fakeQueue struct{}

func (fakeQueue) GetQueueSize(ctx context.Context) (int64, error)      { return 2, nil }
func (fakeQueue) GetProcessingSize(ctx context.Context) (int64, error) { return 1, nil }
func (fakeQueue) GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error) {
	return map[jobqueue.JobStatus]int64{jobqueue.JobStatusCompleted: 5}, nil
}

func newQueueApp(uc usercontext.UserContext) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		usercontext.Set(c, uc)
		return c.Next()
	})
	app.Get("/api/admin/queue", middleware.RequireAdmin, NewQueueController(fakeQueue{}).HandleAdminQueueStats)
	return app
}

func TestAdminQueueStats(t *testing.T) {
	app := newQueueApp(usercontext.UserContext{UserID: 1, IsLoggedIn: true, IsAdmin: true})

	resp, body := doJSON(t, app, http.MethodGet, "/api/admin/queue", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["pending"])
	assert.EqualValues(t, 1, body["processing"])
	assert.Equal(t, map[string]interface{}{"completed": float64(5)}, body["stats"])
}

func TestAdminQueueStatsRequiresAdmin(t *testing.T) {
	app := newQueueApp(usercontext.UserContext{UserID: 1, IsLoggedIn: true})
	resp, _ := doJSON(t, app, http.MethodGet, "/api/admin/queue", "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	app = newQueueApp(usercontext.UserContext{})
	resp, _ = doJSON(t, app, http.MethodGet, "/api/admin/queue", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
