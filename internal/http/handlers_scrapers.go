package http

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"webtap/internal/gateway"
	"webtap/internal/model"
	"webtap/internal/state"
)

// ScraperListItem is the per-scraper row of the list endpoint.
type ScraperListItem struct {
	ScraperID   string       `json:"scraper_id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Schema      model.Schema `json:"schema"`
	ExampleURL  string       `json:"example_url,omitempty"`
	Endpoint    string       `json:"endpoint"`
	CreatedAt   string       `json:"created_at"`
}

// ScraperDetail is the full scraper record the detail endpoint returns.
type ScraperDetail struct {
	ScraperID   string               `json:"scraper_id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Schema      model.Schema         `json:"schema"`
	ExampleURL  string               `json:"example_url,omitempty"`
	WebhookURL  string               `json:"webhook_url,omitempty"`
	Schedule    *model.Schedule      `json:"schedule,omitempty"`
	Options     model.ScraperOptions `json:"options"`
	Endpoint    string               `json:"endpoint"`
	CreatedAt   string               `json:"created_at"`
}

// RunScrapeRequest is the body of the dynamic scrape endpoint.
type RunScrapeRequest struct {
	URL     string                 `json:"url"`
	Options gateway.RequestOptions `json:"options"`
}

func createScraperHandler(c *fiber.Ctx) error {
	gw := c.Locals("gateway").(*gateway.Gateway)

	var req gateway.CreateScraperRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body: " + err.Error(),
		})
	}

	result, err := gw.CreateScraper(c.Context(), req)
	if err != nil {
		if gateway.IsValidationError(err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create scraper",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func listScrapersHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(state.Store)

	rows, err := st.ListGroup(c.Context(), state.GroupScrapers)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list scrapers",
		})
	}

	items := make([]ScraperListItem, 0, len(rows))
	for key := range rows {
		var scr model.Scraper
		if err := state.Load(c.Context(), st, state.GroupScrapers, key, &scr); err != nil {
			continue
		}
		items = append(items, ScraperListItem{
			ScraperID:   scr.ScraperID,
			Name:        scr.Name,
			Description: scr.Description,
			Schema:      scr.Schema,
			ExampleURL:  scr.ExampleURL,
			Endpoint:    "/api/scrape/" + scr.ScraperID,
			CreatedAt:   scr.CreatedAt,
		})
	}

	// Newest first
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt > items[j].CreatedAt
	})

	total := len(items)
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			if n > len(items) {
				n = len(items)
			}
			items = items[n:]
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < len(items) {
			items = items[:n]
		}
	}

	return c.JSON(fiber.Map{
		"scrapers": items,
		"count":    total,
	})
}

func getScraperHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(state.Store)

	scraperID := c.Params("scraperId")
	if scraperID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Scraper ID is required",
		})
	}

	var scr model.Scraper
	if err := state.Load(c.Context(), st, state.GroupScrapers, scraperID, &scr); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Scraper with ID '" + scraperID + "' not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get scraper",
		})
	}

	return c.JSON(ScraperDetail{
		ScraperID:   scr.ScraperID,
		Name:        scr.Name,
		Description: scr.Description,
		Schema:      scr.Schema,
		ExampleURL:  scr.ExampleURL,
		WebhookURL:  scr.WebhookURL,
		Schedule:    scr.Schedule,
		Options:     scr.Options,
		Endpoint:    "/api/scrape/" + scraperID,
		CreatedAt:   scr.CreatedAt,
	})
}

func runScraperHandler(c *fiber.Ctx) error {
	gw := c.Locals("gateway").(*gateway.Gateway)

	scraperID := c.Params("scraperId")

	var req RunScrapeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body: " + err.Error(),
		})
	}
	if strings.TrimSpace(req.URL) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "URL is required",
		})
	}

	result, err := gw.RunScraper(c.Context(), scraperID, req.URL, req.Options)
	if err != nil {
		if errors.Is(err, gateway.ErrScraperNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Scraper with ID '" + scraperID + "' not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to run scraper",
		})
	}

	return c.Status(result.HTTPStatus).JSON(result)
}
