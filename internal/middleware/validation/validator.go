package validation

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxURLLength        int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects malformed generate requests before they reach the
// pipeline: bad content types, invalid or oversized URLs, out-of-range
// thresholds.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = 2048
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get("Content-Type")
			if contentType != "" && !contentTypeAllowed(contentType, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		if c.Method() == fiber.MethodPost && strings.HasSuffix(c.Path(), "/generate") {
			var req struct {
				URL                 string   `json:"url"`
				SimilarityThreshold *float64 `json:"similarity_threshold"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			if req.URL == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "url is required",
				})
			}

			if len(req.URL) > cfg.MaxURLLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "url exceeds maximum length",
				})
			}

			if !isValidURL(req.URL) {
				cfg.Logger.Warn("Rejected invalid scrape URL",
					zap.String("ip", c.IP()),
					zap.String("url", req.URL),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid URL format",
				})
			}

			if req.SimilarityThreshold != nil && (*req.SimilarityThreshold < 0 || *req.SimilarityThreshold > 1) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "similarity_threshold must be in [0, 1]",
				})
			}
		}

		return c.Next()
	}
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func isValidURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
