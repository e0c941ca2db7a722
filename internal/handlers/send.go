package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/mediagatehq/mediagate/internal/webhooklog"
	"github.com/mediagatehq/mediagate/internal/whatsapp"
)

// OutboundLogStore records synthetic log entries for outbound sends.
type OutboundLogStore interface {
	CreateProcessed(ctx context.Context, payload map[string]any) (string, error)
}

// SendHandler pushes outbound WhatsApp messages through the Cloud API.
type SendHandler struct {
	client   *whatsapp.Client
	logs     OutboundLogStore
	validate *validator.Validate
	logger   *slog.Logger
}

func NewSendHandler(log *slog.Logger, client *whatsapp.Client, logs OutboundLogStore) *SendHandler {
	return &SendHandler{
		client:   client,
		logs:     logs,
		validate: validator.New(),
		logger:   log.With(slog.String("handler", "send")),
	}
}

func (h *SendHandler) Register(e *echo.Echo) {
	e.POST("/send", h.Send)
}

// Send delivers one outbound message. Successful sends are mirrored into
// the webhook log as already-processed outbound_message entries so the
// log shows traffic in both directions.
//
// @Summary Send outbound WhatsApp message
// @Description Deliver a text, template, image or video message through the Cloud API
// @Tags send
// @Accept json
// @Param payload body whatsapp.SendRequest true "Outbound message"
// @Success 200 {object} map[string]any
// @Failure 400 {object} echo.HTTPError
// @Failure 502 {object} echo.HTTPError
// @Failure 503 {object} echo.HTTPError
// @Router /send [post]
func (h *SendHandler) Send(c echo.Context) error {
	if h.client == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "whatsapp client not available")
	}

	var req whatsapp.SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.client.SendMessage(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, whatsapp.ErrNotConfigured) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		h.logger.Error("send failed", slog.String("to", req.To), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	if h.logs != nil {
		payload := map[string]any{
			webhooklog.KeyEventType: webhooklog.EventTypeOutbound,
			"to":                    result.To,
			"type":                  req.Type,
			"message_id":            result.MessageID,
		}
		if _, err := h.logs.CreateProcessed(c.Request().Context(), payload); err != nil {
			h.logger.Warn("outbound log failed", slog.Any("error", err))
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"messageId": result.MessageID,
		"to":        result.To,
	})
}
