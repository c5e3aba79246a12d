package http

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/gofiber/fiber/v2"

	"webtap/internal/model"
	"webtap/internal/state"
)

func listMonitorsHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(state.Store)

	scraperFilter := c.Query("scraper_id")
	activeOnly := c.Query("active_only") == "true"

	rows, err := st.ListGroup(c.Context(), state.GroupMonitors)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve monitors",
		})
	}

	monitors := make([]model.Monitor, 0, len(rows))
	activeCount := 0
	for key := range rows {
		var m model.Monitor
		if err := state.Load(c.Context(), st, state.GroupMonitors, key, &m); err != nil {
			continue
		}
		if m.Active {
			activeCount++
		}
		if scraperFilter != "" && m.ScraperID != scraperFilter {
			continue
		}
		if activeOnly && !m.Active {
			continue
		}
		monitors = append(monitors, m)
	}

	// Newest first
	sort.Slice(monitors, func(i, j int) bool {
		return monitors[i].CreatedAt > monitors[j].CreatedAt
	})

	return c.JSON(fiber.Map{
		"monitors":     monitors,
		"total":        len(monitors),
		"active_count": activeCount,
	})
}

func deleteMonitorHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(state.Store)

	monitorID := c.Params("monitorId")
	if monitorID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Monitor ID is required in path",
		})
	}

	var m model.Monitor
	if err := state.Load(c.Context(), st, state.GroupMonitors, monitorID, &m); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Monitor with ID '" + monitorID + "' not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve monitor",
		})
	}

	if err := st.Delete(c.Context(), state.GroupMonitors, monitorID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete monitor",
		})
	}

	deletedAt := model.Now()
	if logger, ok := c.Locals("logger").(*slog.Logger); ok && logger != nil {
		logger.Info("monitor deleted", "monitor_id", monitorID,
			"scraper_id", m.ScraperID, "url", m.URL)
	}

	return c.JSON(fiber.Map{
		"message":    "Monitor '" + monitorID + "' has been deleted",
		"monitor_id": monitorID,
		"deleted_at": deletedAt,
	})
}
