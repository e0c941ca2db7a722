package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mediagatehq/mediagate/internal/queue"
)

// QueueHandler exposes the approval-gated upload queue.
type QueueHandler struct {
	service *queue.Service
	logger  *slog.Logger
}

type queueCreatePayload struct {
	MediaID       string `json:"media_id"`
	DestinationID string `json:"destination_id"`
}

type queueBulkPayload struct {
	IDs []string `json:"ids"`
}

func NewQueueHandler(log *slog.Logger, service *queue.Service) *QueueHandler {
	return &QueueHandler{
		service: service,
		logger:  log.With(slog.String("handler", "queue")),
	}
}

func (h *QueueHandler) Register(e *echo.Echo) {
	group := e.Group("/api/queue")
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/stats", h.Stats)
	group.POST("/approve", h.BulkApprove)
	group.POST("/reject", h.BulkReject)
	group.GET("/:id", h.Get)
	group.POST("/:id/approve", h.Approve)
	group.POST("/:id/reject", h.Reject)
	group.POST("/:id/retry", h.Retry)
}

// Create queues a media item for a destination in pending state.
//
// @Summary Queue media for upload
// @Description Queue a media item for a destination in pending state
// @Tags queue
// @Param payload body queueCreatePayload true "Media and destination ids"
// @Success 201 {object} queue.Entry
// @Failure 400 {object} echo.HTTPError
// @Failure 409 {object} echo.HTTPError
// @Router /api/queue [post]
func (h *QueueHandler) Create(c echo.Context) error {
	var payload queueCreatePayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if payload.MediaID == "" || payload.DestinationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "media_id and destination_id are required")
	}

	entry, err := h.service.Create(c.Request().Context(), payload.MediaID, payload.DestinationID)
	if errors.Is(err, queue.ErrAlreadyQueued) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		h.logger.Error("queue create failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "queue create failed")
	}
	return c.JSON(http.StatusCreated, entry)
}

// List returns queue entries filtered by status, destination_id, and
// media_id query params, newest first.
//
// @Summary List queue entries
// @Description List queue entries with media and destination summaries
// @Tags queue
// @Param status query string false "Status filter"
// @Param destination_id query string false "Destination filter"
// @Param media_id query string false "Media filter"
// @Success 200 {object} map[string]any
// @Failure 400 {object} echo.HTTPError
// @Router /api/queue [get]
func (h *QueueHandler) List(c echo.Context) error {
	filter := queue.ListFilter{
		Status:        queue.Status(c.QueryParam("status")),
		DestinationID: c.QueryParam("destination_id"),
		MediaID:       c.QueryParam("media_id"),
		Limit:         intQueryParam(c, "limit", 50),
		Offset:        intQueryParam(c, "offset", 0),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	entries, err := h.service.List(c.Request().Context(), filter)
	if err != nil {
		h.logger.Error("queue list failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "queue list failed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// Get returns one queue entry.
//
// @Summary Get queue entry
// @Description Get one queue entry by id
// @Tags queue
// @Param id path string true "Queue entry id"
// @Success 200 {object} queue.Entry
// @Failure 404 {object} echo.HTTPError
// @Router /api/queue/{id} [get]
func (h *QueueHandler) Get(c echo.Context) error {
	entry, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, queue.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "queue get failed")
	}
	return c.JSON(http.StatusOK, entry)
}

// Stats counts entries per status.
//
// @Summary Queue statistics
// @Description Count queue entries per status
// @Tags queue
// @Success 200 {object} queue.Stats
// @Router /api/queue/stats [get]
func (h *QueueHandler) Stats(c echo.Context) error {
	stats, err := h.service.Stats(c.Request().Context())
	if err != nil {
		h.logger.Error("queue stats failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "queue stats failed")
	}
	return c.JSON(http.StatusOK, stats)
}

// Approve moves a pending entry to approved.
//
// @Summary Approve queue entry
// @Description Move a pending entry to approved
// @Tags queue
// @Param id path string true "Queue entry id"
// @Success 200 {object} queue.Entry
// @Failure 404 {object} echo.HTTPError
// @Failure 409 {object} echo.HTTPError
// @Router /api/queue/{id}/approve [post]
func (h *QueueHandler) Approve(c echo.Context) error {
	return h.mutate(c, h.service.Approve)
}

// Reject moves a pending entry to rejected.
//
// @Summary Reject queue entry
// @Description Move a pending entry to rejected
// @Tags queue
// @Param id path string true "Queue entry id"
// @Success 200 {object} queue.Entry
// @Failure 404 {object} echo.HTTPError
// @Failure 409 {object} echo.HTTPError
// @Router /api/queue/{id}/reject [post]
func (h *QueueHandler) Reject(c echo.Context) error {
	return h.mutate(c, h.service.Reject)
}

// Retry requeues a failed entry. The retry count is bumped, never
// reset.
//
// @Summary Retry failed queue entry
// @Description Requeue a failed entry for the next dispatch pass
// @Tags queue
// @Param id path string true "Queue entry id"
// @Success 200 {object} queue.Entry
// @Failure 404 {object} echo.HTTPError
// @Failure 409 {object} echo.HTTPError
// @Router /api/queue/{id}/retry [post]
func (h *QueueHandler) Retry(c echo.Context) error {
	return h.mutate(c, h.service.Retry)
}

func (h *QueueHandler) mutate(c echo.Context, op func(ctx context.Context, id string) (queue.Entry, error)) error {
	entry, err := op(c.Request().Context(), c.Param("id"))
	if errors.Is(err, queue.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
	}
	if errors.Is(err, queue.ErrInvalidTransition) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		h.logger.Error("queue update failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "queue update failed")
	}
	return c.JSON(http.StatusOK, entry)
}

// BulkApprove approves the listed pending entries, or every pending
// entry when the body carries no ids.
//
// @Summary Bulk approve queue entries
// @Description Approve listed pending entries, or all pending entries when ids is empty
// @Tags queue
// @Param payload body queueBulkPayload false "Queue entry ids, empty for all pending"
// @Success 200 {object} map[string]any
// @Failure 400 {object} echo.HTTPError
// @Failure 500 {object} echo.HTTPError
// @Router /api/queue/approve [post]
func (h *QueueHandler) BulkApprove(c echo.Context) error {
	return h.bulk(c, h.service.BulkApprove)
}

// BulkReject rejects the listed pending entries, or every pending entry
// when the body carries no ids.
//
// @Summary Bulk reject queue entries
// @Description Reject listed pending entries, or all pending entries when ids is empty
// @Tags queue
// @Param payload body queueBulkPayload false "Queue entry ids, empty for all pending"
// @Success 200 {object} map[string]any
// @Failure 400 {object} echo.HTTPError
// @Failure 500 {object} echo.HTTPError
// @Router /api/queue/reject [post]
func (h *QueueHandler) BulkReject(c echo.Context) error {
	return h.bulk(c, h.service.BulkReject)
}

func (h *QueueHandler) bulk(c echo.Context, op func(ctx context.Context, ids []string) (int, error)) error {
	var payload queueBulkPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := op(c.Request().Context(), payload.IDs)
	if err != nil {
		h.logger.Error("bulk queue update failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "bulk queue update failed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"updated": updated,
	})
}
