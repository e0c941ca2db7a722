package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mediagatehq/mediagate/internal/dispatch"
)

// DispatchHandler triggers a dispatch pass on demand. The same pass runs
// on the cron schedule; this endpoint exists for manual kicks and tests.
type DispatchHandler struct {
	processor *dispatch.Processor
	logger    *slog.Logger
}

func NewDispatchHandler(log *slog.Logger, processor *dispatch.Processor) *DispatchHandler {
	return &DispatchHandler{
		processor: processor,
		logger:    log.With(slog.String("handler", "dispatch")),
	}
}

func (h *DispatchHandler) Register(e *echo.Echo) {
	e.POST("/dispatch", h.Process)
}

// Process runs one dispatch pass over the approved queue.
//
// @Summary Trigger dispatch pass
// @Description Claim a batch of approved queue entries and deliver them
// @Tags dispatch
// @Success 200 {object} dispatch.Summary
// @Failure 500 {object} echo.HTTPError
// @Router /dispatch [post]
func (h *DispatchHandler) Process(c echo.Context) error {
	if h.processor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "dispatch not available")
	}
	summary, err := h.processor.Run(c.Request().Context())
	if err != nil {
		h.logger.Error("dispatch pass failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "dispatch pass failed")
	}
	return c.JSON(http.StatusOK, summary)
}
