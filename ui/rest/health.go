package rest

import (
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"

	"github.com/wa-platform/core/pkg/utils"
)

// HealthStatus surfaces worker pool throughput for operator monitoring,
// grounded on the teacher's botmonitor/workerpool status endpoints
// (§12 "Health/status endpoint").
func (h *Handlers) HealthStatus(c *fiber.Ctx) error {
	results := fiber.Map{"status": "ok"}

	if h.Pool != nil {
		stats := h.Pool.Stats()
		results["worker_pool"] = fiber.Map{
			"num_workers":      stats.NumWorkers,
			"total_dispatched": humanize.Comma(stats.TotalDispatched),
			"total_processed":  humanize.Comma(stats.TotalProcessed),
			"total_dropped":    humanize.Comma(stats.TotalDropped),
			"total_errors":     humanize.Comma(stats.TotalErrors),
		}
	}

	return c.JSON(utils.ResponseData{
		Status: 200, Code: "SUCCESS", Message: "service healthy", Results: results,
	})
}
