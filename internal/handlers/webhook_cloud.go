package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mediagatehq/mediagate/internal/channel/cloudapi"
	"github.com/mediagatehq/mediagate/internal/webhooklog"
)

// maxWebhookBody bounds the raw delivery we are willing to buffer.
const maxWebhookBody = 1 << 20

// CloudWebhookHandler receives Meta WhatsApp Cloud API deliveries and
// answers Meta's subscription handshake.
type CloudWebhookHandler struct {
	processor   *cloudapi.Processor
	verifyToken string
	logger      *slog.Logger
}

func NewCloudWebhookHandler(log *slog.Logger, processor *cloudapi.Processor, verifyToken string) *CloudWebhookHandler {
	return &CloudWebhookHandler{
		processor:   processor,
		verifyToken: verifyToken,
		logger:      log.With(slog.String("handler", "cloud_webhook")),
	}
}

func (h *CloudWebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhooks/cloud", h.Verify)
	e.POST("/webhooks/cloud", h.Receive)
}

// Verify answers the hub.challenge handshake Meta sends when the webhook
// is subscribed.
//
// @Summary Verify webhook subscription
// @Description Answer the Cloud API hub.challenge handshake
// @Tags webhooks
// @Param hub.mode query string true "Subscription mode"
// @Param hub.verify_token query string true "Verification token"
// @Param hub.challenge query string true "Challenge to echo"
// @Success 200 {string} string
// @Failure 403 {object} echo.HTTPError
// @Router /webhooks/cloud [get]
func (h *CloudWebhookHandler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		h.logger.Info("webhook subscription verified")
		return c.String(http.StatusOK, challenge)
	}
	return echo.NewHTTPError(http.StatusForbidden, "verification failed")
}

// Receive handles one JSON delivery.
//
// @Summary Receive Cloud API webhook delivery
// @Description Ingest media messages from a WhatsApp Cloud API delivery
// @Tags webhooks
// @Accept json
// @Success 200 {object} map[string]string
// @Failure 500 {object} echo.HTTPError
// @Router /webhooks/cloud [post]
func (h *CloudWebhookHandler) Receive(c echo.Context) error {
	if h.processor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "cloud api channel not available")
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable payload")
	}

	result, err := h.processor.Process(c.Request().Context(), body)
	if err != nil {
		h.logger.Error("webhook processing failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook processing failed")
	}

	if result.EventType == webhooklog.EventTypeUnknown && result.Ingested == 0 {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
