package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mediagatehq/mediagate/internal/webhooklog"
)

// LogsHandler exposes the webhook delivery log.
type LogsHandler struct {
	service *webhooklog.Service
	logger  *slog.Logger
}

func NewLogsHandler(log *slog.Logger, service *webhooklog.Service) *LogsHandler {
	return &LogsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "logs")),
	}
}

func (h *LogsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/logs")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
}

// List returns log entries, newest first. ?processed=true|false filters
// on processing state.
//
// @Summary List webhook log entries
// @Description List inbound call log entries, newest first
// @Tags logs
// @Param processed query bool false "Filter on processing state"
// @Success 200 {object} map[string]any
// @Failure 400 {object} echo.HTTPError
// @Router /api/logs [get]
func (h *LogsHandler) List(c echo.Context) error {
	filter := webhooklog.ListFilter{
		Limit:  intQueryParam(c, "limit", 50),
		Offset: intQueryParam(c, "offset", 0),
	}
	switch c.QueryParam("processed") {
	case "":
	case "true":
		v := true
		filter.Processed = &v
	case "false":
		v := false
		filter.Processed = &v
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "processed must be true or false")
	}

	entries, err := h.service.List(c.Request().Context(), filter)
	if err != nil {
		h.logger.Error("log list failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "log list failed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// Get returns one log entry.
//
// @Summary Get webhook log entry
// @Description Get one log entry by id
// @Tags logs
// @Param id path string true "Log entry id"
// @Success 200 {object} webhooklog.Entry
// @Failure 404 {object} echo.HTTPError
// @Router /api/logs/{id} [get]
func (h *LogsHandler) Get(c echo.Context) error {
	entry, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, webhooklog.ErrEntryNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "log entry not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "log get failed")
	}
	return c.JSON(http.StatusOK, entry)
}
