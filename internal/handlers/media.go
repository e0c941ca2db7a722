package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mediagatehq/mediagate/internal/media"
)

// MediaHandler exposes the ingested media library.
type MediaHandler struct {
	service   *media.Service
	signedTTL time.Duration
	logger    *slog.Logger
}

func NewMediaHandler(log *slog.Logger, service *media.Service, signedTTLSeconds int) *MediaHandler {
	ttl := time.Duration(signedTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MediaHandler{
		service:   service,
		signedTTL: ttl,
		logger:    log.With(slog.String("handler", "media")),
	}
}

func (h *MediaHandler) Register(e *echo.Echo) {
	group := e.Group("/api/media")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.GET("/:id/url", h.SignedURL)
	group.DELETE("/:id", h.Delete)
}

// List returns media items, newest first. Supports group_id, media_type,
// since/until (RFC 3339), limit, and offset query params.
//
// @Summary List media items
// @Description List ingested media, newest first, with optional filters
// @Tags media
// @Param group_id query string false "Group filter"
// @Param media_type query string false "photo or video"
// @Param since query string false "RFC 3339 lower bound"
// @Param until query string false "RFC 3339 upper bound"
// @Success 200 {object} map[string]any
// @Failure 400 {object} echo.HTTPError
// @Router /api/media [get]
func (h *MediaHandler) List(c echo.Context) error {
	filter := media.ListFilter{
		GroupID:   c.QueryParam("group_id"),
		MediaType: media.Type(c.QueryParam("media_type")),
	}
	if filter.MediaType != "" && !filter.MediaType.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid media_type")
	}
	if raw := c.QueryParam("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid since timestamp")
		}
		filter.Since = since
	}
	if raw := c.QueryParam("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid until timestamp")
		}
		filter.Until = until
	}
	filter.Limit = intQueryParam(c, "limit", 50)
	filter.Offset = intQueryParam(c, "offset", 0)

	items, err := h.service.List(c.Request().Context(), filter)
	if err != nil {
		h.logger.Error("list media failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list media failed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// Get returns one media item.
//
// @Summary Get media item
// @Description Get one media item by id
// @Tags media
// @Param id path string true "Media item id"
// @Success 200 {object} media.Item
// @Failure 404 {object} echo.HTTPError
// @Router /api/media/{id} [get]
func (h *MediaHandler) Get(c echo.Context) error {
	item, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, media.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "media item not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "get media failed")
	}
	return c.JSON(http.StatusOK, item)
}

// SignedURL mints a short-lived download link for the item's blob.
//
// @Summary Get signed media URL
// @Description Mint a short-lived download link for the media blob
// @Tags media
// @Param id path string true "Media item id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} echo.HTTPError
// @Router /api/media/{id}/url [get]
func (h *MediaHandler) SignedURL(c echo.Context) error {
	item, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, media.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "media item not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "get media failed")
	}

	url, err := h.service.SignedURL(c.Request().Context(), item, h.signedTTL)
	if err != nil {
		h.logger.Error("sign url failed", slog.String("id", item.ID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "sign url failed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"url":        url,
		"expires_in": int(h.signedTTL.Seconds()),
	})
}

// Delete removes the item's row and blob. Queue entries referencing it
// go with it via the foreign key cascade.
//
// @Summary Delete media item
// @Description Delete the media item, its blob, and any queue entries referencing it
// @Tags media
// @Param id path string true "Media item id"
// @Success 204
// @Failure 404 {object} echo.HTTPError
// @Router /api/media/{id} [delete]
func (h *MediaHandler) Delete(c echo.Context) error {
	err := h.service.Delete(c.Request().Context(), c.Param("id"))
	if errors.Is(err, media.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "media item not found")
	}
	if err != nil {
		h.logger.Error("delete media failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "delete media failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func intQueryParam(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
