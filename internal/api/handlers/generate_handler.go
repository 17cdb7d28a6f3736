package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/qaforge/backend/internal/pipeline"
	"github.com/qaforge/backend/internal/scrape"
	"github.com/qaforge/backend/pkg/logger"
)

type GenerateHandler struct {
	pipeline *pipeline.Pipeline
}

func NewGenerateHandler(p *pipeline.Pipeline) *GenerateHandler {
	return &GenerateHandler{pipeline: p}
}

// Generate runs the full ingestion pipeline for one URL.
func (h *GenerateHandler) Generate(c *fiber.Ctx) error {
	var req struct {
		URL                 string   `json:"url"`
		Collection          string   `json:"collection"`
		CleaningModel       string   `json:"cleaning_model"`
		TargetLanguage      string   `json:"target_language"`
		QAModel             string   `json:"qa_model"`
		SimilarityThreshold *float64 `json:"similarity_threshold"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.URL == "" || req.Collection == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url and collection are required",
		})
	}

	result, err := h.pipeline.ProcessURL(c.Context(), pipeline.Request{
		URL:                 req.URL,
		CollectionName:      req.Collection,
		CleaningModel:       req.CleaningModel,
		TargetLanguage:      req.TargetLanguage,
		QAModel:             req.QAModel,
		SimilarityThreshold: req.SimilarityThreshold,
	})
	if err != nil {
		logger.Error("Pipeline failed", zap.String("url", req.URL), zap.Error(err))

		status := fiber.StatusInternalServerError
		if errors.Is(err, scrape.ErrInvalidURL) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
			"url":   req.URL,
		})
	}

	return c.JSON(result)
}
