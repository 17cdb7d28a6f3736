package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/qaforge/backend/internal/dedup"
	"github.com/qaforge/backend/internal/metrics"
	"github.com/qaforge/backend/internal/storage/models"
	"github.com/qaforge/backend/internal/storage/sqlite"
	"github.com/qaforge/backend/pkg/logger"
)

// CollectionStore is the storage surface the collection endpoints use.
type CollectionStore interface {
	GetOrCreateCollection(ctx context.Context, name, description string) (*models.Collection, error)
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
	GetCollectionByName(ctx context.Context, name string) (*models.Collection, error)
	ListCollections(ctx context.Context) ([]models.Collection, error)
	DeleteCollection(ctx context.Context, id string) error
	CountRecords(ctx context.Context, collectionID string) (int, error)
	GetRecordsByCollection(ctx context.Context, collectionID string) ([]models.Record, error)
}

type CollectionHandler struct {
	store  CollectionStore
	engine *dedup.Engine

	defaultThreshold float64
}

func NewCollectionHandler(store CollectionStore, engine *dedup.Engine, defaultThreshold float64) *CollectionHandler {
	if defaultThreshold <= 0 || defaultThreshold > 1 {
		defaultThreshold = 0.9
	}
	return &CollectionHandler{store: store, engine: engine, defaultThreshold: defaultThreshold}
}

func (h *CollectionHandler) Create(c *fiber.Ctx) error {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name is required",
		})
	}

	if _, err := h.store.GetCollectionByName(c.Context(), req.Name); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "collection already exists",
			"name":  req.Name,
		})
	}

	col, err := h.store.GetOrCreateCollection(c.Context(), req.Name, req.Description)
	if err != nil {
		logger.Error("Failed to create collection", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create collection",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":          col.ID,
		"name":        col.Name,
		"description": col.Description,
	})
}

func (h *CollectionHandler) List(c *fiber.Ctx) error {
	if id := c.Query("id"); id != "" {
		return h.getOne(c, id)
	}

	cols, err := h.store.ListCollections(c.Context())
	if err != nil {
		logger.Error("Failed to list collections", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list collections",
		})
	}

	out := make([]fiber.Map, 0, len(cols))
	for _, col := range cols {
		out = append(out, fiber.Map{
			"id":          col.ID,
			"name":        col.Name,
			"description": col.Description,
			"created_at":  col.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{"collections": out})
}

func (h *CollectionHandler) getOne(c *fiber.Ctx, id string) error {
	col, err := h.store.GetCollection(c.Context(), id)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "collection not found",
			})
		}
		logger.Error("Failed to get collection", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get collection",
		})
	}

	count, err := h.store.CountRecords(c.Context(), col.ID)
	if err != nil {
		logger.Error("Failed to count records", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get collection",
		})
	}

	return c.JSON(fiber.Map{
		"id":            col.ID,
		"name":          col.Name,
		"description":   col.Description,
		"created_at":    col.CreatedAt,
		"records_count": count,
	})
}

// Delete removes a collection and cascades to its snapshots and records.
func (h *CollectionHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.store.DeleteCollection(c.Context(), id); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "collection not found",
			})
		}
		logger.Error("Failed to delete collection", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete collection",
		})
	}

	return c.JSON(fiber.Map{"deleted": id})
}

// AnalyzeSimilarities reports every question pair in the collection at or
// above the threshold without changing anything.
func (h *CollectionHandler) AnalyzeSimilarities(c *fiber.Ctx) error {
	id := c.Params("id")
	threshold := c.QueryFloat("threshold", h.defaultThreshold)

	if threshold < 0 || threshold > 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "threshold must be in [0, 1]",
		})
	}

	if _, err := h.store.GetCollection(c.Context(), id); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "collection not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to analyze similarities",
		})
	}

	pairs, err := h.engine.AnalyzeSimilar(c.Context(), id, threshold)
	if err != nil {
		logger.Error("Similarity analysis failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to analyze similarities",
		})
	}

	return c.JSON(fiber.Map{
		"collection_id":       id,
		"threshold":           threshold,
		"similar_pairs_found": len(pairs),
		"similarities":        pairs,
	})
}

// CleanSimilarities removes near-duplicate records, keeping the higher
// confidence (or older) record of each similar pair.
func (h *CollectionHandler) CleanSimilarities(c *fiber.Ctx) error {
	id := c.Params("id")
	threshold := c.QueryFloat("threshold", h.defaultThreshold)

	if threshold < 0 || threshold > 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "threshold must be in [0, 1]",
		})
	}

	if _, err := h.store.GetCollection(c.Context(), id); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "collection not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clean similarities",
		})
	}

	result, err := h.engine.CleanSimilar(c.Context(), id, threshold)
	if err != nil {
		logger.Error("Similarity cleanup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clean similarities",
		})
	}

	metrics.RecordsCleaned.Add(float64(len(result.Removed)))

	return c.JSON(fiber.Map{
		"collection_id":   id,
		"threshold":       threshold,
		"total_records":   result.TotalRecords,
		"removed_records": len(result.Removed),
		"removed_items":   result.Removed,
	})
}

// Export returns the collection's records in the dataset-item shape.
func (h *CollectionHandler) Export(c *fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.store.GetCollection(c.Context(), id); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "collection not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export collection",
		})
	}

	records, err := h.store.GetRecordsByCollection(c.Context(), id)
	if err != nil {
		logger.Error("Failed to load records for export", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export collection",
		})
	}

	items := make([]map[string]interface{}, 0, len(records))
	for i := range records {
		items = append(items, records[i].ExportItem())
	}

	return c.JSON(fiber.Map{
		"collection_id": id,
		"count":         len(items),
		"items":         items,
	})
}
