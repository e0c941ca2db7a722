package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mediagatehq/mediagate/internal/destinations"
)

// DestinationsHandler manages republish targets.
type DestinationsHandler struct {
	service *destinations.Service
	logger  *slog.Logger
}

func NewDestinationsHandler(log *slog.Logger, service *destinations.Service) *DestinationsHandler {
	return &DestinationsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "destinations")),
	}
}

func (h *DestinationsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/destinations")
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.PATCH("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
}

// Create registers a new destination after validating its config.
//
// @Summary Create destination
// @Description Register an upload destination with a type-checked config
// @Tags destinations
// @Param payload body destinations.CreateInput true "Destination"
// @Success 201 {object} destinations.Destination
// @Failure 400 {object} echo.HTTPError
// @Router /api/destinations [post]
func (h *DestinationsHandler) Create(c echo.Context) error {
	var input destinations.CreateInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	dest, err := h.service.Create(c.Request().Context(), input)
	if errors.Is(err, destinations.ErrInvalidType) || errors.Is(err, destinations.ErrInvalidConfig) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		h.logger.Error("destination create failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "destination create failed")
	}
	return c.JSON(http.StatusCreated, dest)
}

// List returns destinations; ?active=true narrows to active ones.
//
// @Summary List destinations
// @Description List upload destinations
// @Tags destinations
// @Param active query bool false "Only active destinations"
// @Success 200 {object} map[string]any
// @Router /api/destinations [get]
func (h *DestinationsHandler) List(c echo.Context) error {
	activeOnly := c.QueryParam("active") == "true"
	dests, err := h.service.List(c.Request().Context(), activeOnly)
	if err != nil {
		h.logger.Error("destination list failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "destination list failed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"destinations": dests,
		"count":        len(dests),
	})
}

// Get returns one destination.
//
// @Summary Get destination
// @Description Get one destination by id
// @Tags destinations
// @Param id path string true "Destination id"
// @Success 200 {object} destinations.Destination
// @Failure 404 {object} echo.HTTPError
// @Router /api/destinations/{id} [get]
func (h *DestinationsHandler) Get(c echo.Context) error {
	dest, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, destinations.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "destination not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "destination get failed")
	}
	return c.JSON(http.StatusOK, dest)
}

// Update changes a destination; config changes are re-validated against
// the stored type.
//
// @Summary Update destination
// @Description Update a destination, re-validating config against its type
// @Tags destinations
// @Param id path string true "Destination id"
// @Param payload body destinations.UpdateInput true "Destination changes"
// @Success 200 {object} destinations.Destination
// @Failure 400 {object} echo.HTTPError
// @Failure 404 {object} echo.HTTPError
// @Router /api/destinations/{id} [patch]
func (h *DestinationsHandler) Update(c echo.Context) error {
	var input destinations.UpdateInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	dest, err := h.service.Update(c.Request().Context(), c.Param("id"), input)
	if errors.Is(err, destinations.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "destination not found")
	}
	if errors.Is(err, destinations.ErrInvalidConfig) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		h.logger.Error("destination update failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "destination update failed")
	}
	return c.JSON(http.StatusOK, dest)
}

// Delete removes a destination.
//
// @Summary Delete destination
// @Description Delete a destination by id
// @Tags destinations
// @Param id path string true "Destination id"
// @Success 204
// @Failure 404 {object} echo.HTTPError
// @Router /api/destinations/{id} [delete]
func (h *DestinationsHandler) Delete(c echo.Context) error {
	err := h.service.Delete(c.Request().Context(), c.Param("id"))
	if errors.Is(err, destinations.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "destination not found")
	}
	if err != nil {
		h.logger.Error("destination delete failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "destination delete failed")
	}
	return c.NoContent(http.StatusNoContent)
}
