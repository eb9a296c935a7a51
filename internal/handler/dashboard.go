package handler

import (
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/repository"
)

// DashboardHandler serves the manager overview of a branch.
type DashboardHandler struct {
    Dashboard *repository.DashboardRepo
    Logger    *zap.Logger
    now       func() time.Time
}

func NewDashboardHandler(d *repository.DashboardRepo, logger *zap.Logger) *DashboardHandler {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &DashboardHandler{Dashboard: d, Logger: logger.Named("dashboard"), now: time.Now}
}

func startOfDay(t time.Time) time.Time {
    y, m, d := t.Date()
    return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Stats counts today's sessions and revenue and the current device and
// stock picture.
func (h *DashboardHandler) Stats(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    s, err := h.Dashboard.Stats(ctx, branchID, startOfDay(h.now()))
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, s)
}

// Popular ranks games and devices over the last ?days= days (default 30).
func (h *DashboardHandler) Popular(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    days := queryInt(c, "days", 30)
    if days < 1 || days > 366 {
        return invalidFields(c, map[string]string{"days": "must be between 1 and 366"})
    }
    limit := queryInt(c, "limit", 5)
    if limit < 1 || limit > 50 {
        return invalidFields(c, map[string]string{"limit": "must be between 1 and 50"})
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    since := startOfDay(h.now()).AddDate(0, 0, 1-days)
    games, devices, err := h.Dashboard.Popular(ctx, branchID, since, limit)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"since": since, "games": games, "devices": devices})
}

func (h *DashboardHandler) Activities(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    out, err := h.Dashboard.Activities(ctx, branchID, queryInt(c, "limit", 20))
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, out)
}
