package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mediagatehq/mediagate/internal/channel/twilio"
)

// TwilioWebhookHandler receives Twilio WhatsApp webhook deliveries.
type TwilioWebhookHandler struct {
	processor *twilio.Processor
	logger    *slog.Logger
}

func NewTwilioWebhookHandler(log *slog.Logger, processor *twilio.Processor) *TwilioWebhookHandler {
	return &TwilioWebhookHandler{
		processor: processor,
		logger:    log.With(slog.String("handler", "twilio_webhook")),
	}
}

func (h *TwilioWebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/form", h.Receive)
}

// Receive handles one form-encoded delivery. Twilio expects an empty
// TwiML document back; anything else triggers redelivery loops, so the
// ack is returned even when some attachments failed.
//
// @Summary Receive Twilio webhook delivery
// @Description Ingest media attachments from a form-encoded Twilio WhatsApp delivery
// @Tags webhooks
// @Accept x-www-form-urlencoded
// @Produce xml
// @Success 200 {string} string "empty TwiML document"
// @Failure 500 {object} echo.HTTPError
// @Router /webhooks/form [post]
func (h *TwilioWebhookHandler) Receive(c echo.Context) error {
	if h.processor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "twilio channel not available")
	}
	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form payload")
	}

	result, err := h.processor.Process(c.Request().Context(), form)
	if err != nil {
		h.logger.Error("webhook processing failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook processing failed")
	}

	h.logger.Info("webhook handled",
		slog.String("message_sid", result.MessageID),
		slog.Int("ingested", result.Ingested),
		slog.Int("failed", result.Failed))
	return c.Blob(http.StatusOK, "text/xml", []byte(twilio.TwiMLAck))
}
