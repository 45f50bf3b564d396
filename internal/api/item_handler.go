package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"courier-go/internal/producer"
)

// Submitter accepts work items for asynchronous processing.
type Submitter interface {
	Submit(ctx context.Context, payload json.RawMessage) (*producer.Receipt, error)
}

// ItemHandler handles HTTP requests for work submission.
type ItemHandler struct {
	service Submitter
	logger  *slog.Logger
}

// NewItemHandler creates a new item handler.
func NewItemHandler(service Submitter, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{
		service: service,
		logger:  logger,
	}
}

// submitResponse is returned once the item is on the queue.
type submitResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	ItemID    string `json:"item_id"`
}

// Submit handles POST /endpoint and POST /v1/items.
// The body may be any JSON value. A 200 means the queue accepted the item;
// processing happens later and its result is never returned here.
func (h *ItemHandler) Submit(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 || !json.Valid(body) {
		h.logger.Debug("rejected request body that is not valid JSON", "bytes", len(body))
		return BadRequest(c, "request body must be valid JSON")
	}

	// fasthttp reuses the request buffer after the handler returns
	payload := make(json.RawMessage, len(body))
	copy(payload, body)

	receipt, err := h.service.Submit(c.UserContext(), payload)
	if err != nil {
		h.logger.Error("failed to submit work item", "error", err)
		if errors.Is(err, producer.ErrEnqueueFailed) {
			return Error(c, fiber.StatusInternalServerError, ErrCodeEnqueueFailed, err.Error())
		}
		return InternalError(c, err.Error())
	}

	h.logger.Debug("work item accepted", "messageID", receipt.MessageID, "itemID", receipt.ItemID)

	return Success(c, submitResponse{
		Status:    "enqueued",
		MessageID: receipt.MessageID,
		ItemID:    receipt.ItemID,
	})
}
