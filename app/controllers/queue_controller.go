package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/jobqueue"
)

// QueueInspector reports the state of the background job queue.
type QueueInspector interface {
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
}

type QueueController struct {
	queue QueueInspector
}

func NewQueueController(queue QueueInspector) *QueueController {
	return &QueueController{queue: queue}
}

// HandleAdminQueueStats returns pending and processing counts plus lifetime job stats.
func (qc *QueueController) HandleAdminQueueStats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pending, err := qc.queue.GetQueueSize(ctx)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to read queue: %v", err))
	}
	processing, err := qc.queue.GetProcessingSize(ctx)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to read queue: %v", err))
	}
	stats, err := qc.queue.GetJobStats(ctx)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to read queue: %v", err))
	}

	return c.JSON(fiber.Map{
		"pending":    pending,
		"processing": processing,
		"stats":      stats,
	})
}

var queueController *QueueController

func InitializeQueueController(qc *QueueController) {
	queueController = qc
}

func GetQueueController() *QueueController {
	return queueController
}
