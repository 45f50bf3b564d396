package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"courier-go/internal/metrics"
	"courier-go/internal/store"
)

// OutcomeHandler serves recorded processing outcomes.
type OutcomeHandler struct {
	repo   store.OutcomeRepository
	logger *slog.Logger
}

// NewOutcomeHandler creates a new outcome handler.
func NewOutcomeHandler(repo store.OutcomeRepository, logger *slog.Logger) *OutcomeHandler {
	return &OutcomeHandler{
		repo:   repo,
		logger: logger,
	}
}

// Get handles GET /v1/outcomes/:messageId
func (h *OutcomeHandler) Get(c *fiber.Ctx) error {
	messageID := c.Params("messageId")
	if messageID == "" {
		return BadRequest(c, "message id is required")
	}

	start := time.Now()
	o, err := h.repo.Get(c.UserContext(), messageID)
	metrics.OutcomeOperationLatency.WithLabelValues("get").Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, store.ErrOutcomeNotFound) {
			metrics.OutcomeOperationsTotal.WithLabelValues("get", "not_found").Inc()
			return NotFound(c, "outcome not found")
		}
		metrics.OutcomeOperationsTotal.WithLabelValues("get", metrics.ResultFailure).Inc()
		h.logger.Error("failed to get outcome", "error", err, "messageID", messageID)
		return InternalError(c, "failed to get outcome")
	}
	metrics.OutcomeOperationsTotal.WithLabelValues("get", metrics.ResultSuccess).Inc()

	return Success(c, o)
}
