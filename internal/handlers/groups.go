package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mediagatehq/mediagate/internal/groups"
)

// GroupsHandler exposes the registry of WhatsApp groups media has
// arrived from.
type GroupsHandler struct {
	service *groups.Service
	logger  *slog.Logger
}

type groupUpdatePayload struct {
	GroupName string `json:"group_name"`
	IsActive  *bool  `json:"is_active"`
}

func NewGroupsHandler(log *slog.Logger, service *groups.Service) *GroupsHandler {
	return &GroupsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "groups")),
	}
}

func (h *GroupsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/groups")
	group.GET("", h.List)
	group.PATCH("/:id", h.Update)
}

// List returns every known group.
//
// @Summary List WhatsApp groups
// @Description List registered sender groups
// @Tags groups
// @Success 200 {object} map[string]any
// @Router /api/groups [get]
func (h *GroupsHandler) List(c echo.Context) error {
	list, err := h.service.List(c.Request().Context())
	if err != nil {
		h.logger.Error("group list failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "group list failed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"groups": list,
		"count":  len(list),
	})
}

// Update renames a group or toggles its active flag.
//
// @Summary Update WhatsApp group
// @Description Rename a group or toggle its active flag
// @Tags groups
// @Param id path string true "Group id"
// @Param payload body groupUpdatePayload true "Group changes"
// @Success 200 {object} groups.Group
// @Failure 400 {object} echo.HTTPError
// @Failure 404 {object} echo.HTTPError
// @Router /api/groups/{id} [patch]
func (h *GroupsHandler) Update(c echo.Context) error {
	var payload groupUpdatePayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	active := true
	if payload.IsActive != nil {
		active = *payload.IsActive
	}

	group, err := h.service.Update(c.Request().Context(), c.Param("id"), payload.GroupName, active)
	if errors.Is(err, groups.ErrGroupNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "group not found")
	}
	if err != nil {
		h.logger.Error("group update failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "group update failed")
	}
	return c.JSON(http.StatusOK, group)
}
