package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/pricing"
    "github.com/iliyamo/game-ground/internal/repository"
    "github.com/iliyamo/game-ground/internal/service"
)

// SessionOps is the session lifecycle as the HTTP layer sees it.
type SessionOps interface {
    Quote(ctx context.Context, branchID uint64, raw pricing.RawDraft) (pricing.Quote, error)
    Create(ctx context.Context, branchID, actorID uint64, in service.CreateInput) (*model.Session, error)
    Extend(ctx context.Context, branchID, sessionID, actorID uint64, in service.ExtendInput) (*model.Session, error)
    End(ctx context.Context, branchID, sessionID, actorID uint64) (*model.Session, error)
    Update(ctx context.Context, branchID, sessionID uint64, in service.UpdateInput) (*model.Session, error)
    Delete(ctx context.Context, branchID, sessionID uint64) error
    Get(ctx context.Context, branchID, sessionID uint64) (*model.Session, error)
    List(ctx context.Context, branchID uint64, f repository.SessionFilter) ([]model.Session, error)
    Active(ctx context.Context, branchID uint64) ([]model.Session, error)
    EndingSoon(ctx context.Context, branchID uint64, window time.Duration) ([]model.Session, error)
}

type SessionHandler struct {
    Sessions SessionOps
    Logger   *zap.Logger
}

func NewSessionHandler(s SessionOps, logger *zap.Logger) *SessionHandler {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &SessionHandler{Sessions: s, Logger: logger.Named("sessions")}
}

// Quote prices a booking form without saving anything.  Unparsable input
// yields an all-zero quote rather than an error.
func (h *SessionHandler) Quote(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var raw pricing.RawDraft
    if err := c.Bind(&raw); err != nil {
        return badRequest(c, "invalid body")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    q, err := h.Sessions.Quote(ctx, branchID, raw)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, q.View())
}

func (h *SessionHandler) Create(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var in service.CreateInput
    if err := c.Bind(&in); err != nil {
        return badRequest(c, "invalid body")
    }
    uid, _ := getUserID(c)
    ctx, cancel := reqCtx(c)
    defer cancel()
    s, err := h.Sessions.Create(ctx, branchID, uid, in)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusCreated, s)
}

func (h *SessionHandler) Extend(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var in service.ExtendInput
    if err := c.Bind(&in); err != nil {
        return badRequest(c, "invalid body")
    }
    uid, _ := getUserID(c)
    ctx, cancel := reqCtx(c)
    defer cancel()
    s, err := h.Sessions.Extend(ctx, branchID, id, uid, in)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, s)
}

func (h *SessionHandler) End(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    uid, _ := getUserID(c)
    ctx, cancel := reqCtx(c)
    defer cancel()
    s, err := h.Sessions.End(ctx, branchID, id, uid)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, s)
}

// Update edits the customer details of a session.
func (h *SessionHandler) Update(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var in service.UpdateInput
    if err := c.Bind(&in); err != nil {
        return badRequest(c, "invalid body")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    s, err := h.Sessions.Update(ctx, branchID, id, in)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, s)
}

func (h *SessionHandler) Delete(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Sessions.Delete(ctx, branchID, id); err != nil {
        return respond(c, h.Logger, err)
    }
    return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) Get(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    s, err := h.Sessions.Get(ctx, branchID, id)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, s)
}

// parseDay accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDay(v string) (time.Time, bool) {
    if t, err := time.Parse(time.RFC3339, v); err == nil {
        return t, true
    }
    if t, err := time.Parse(time.DateOnly, v); err == nil {
        return t, true
    }
    return time.Time{}, false
}

// List supports ?status=, ?device_id=, ?from=, ?to=, ?limit= and ?offset=.
func (h *SessionHandler) List(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    f := repository.SessionFilter{
        Status: c.QueryParam("status"),
        Limit:  queryInt(c, "limit", 100),
        Offset: queryInt(c, "offset", 0),
    }
    bad := map[string]string{}
    switch f.Status {
    case "", model.SessionActive, model.SessionExtended, model.SessionCompleted:
    default:
        bad["status"] = "must be one of Active, Extended, Completed"
    }
    if v := c.QueryParam("device_id"); v != "" {
        id, ok := parseID(v)
        if !ok {
            bad["device_id"] = "must be a positive integer"
        }
        f.DeviceID = id
    }
    for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
        if v := c.QueryParam(name); v != "" {
            t, ok := parseDay(v)
            if !ok {
                bad[name] = "must be a date (YYYY-MM-DD) or RFC 3339 time"
            }
            *dst = t
        }
    }
    if len(bad) > 0 {
        return invalidFields(c, bad)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    out, err := h.Sessions.List(ctx, branchID, f)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, out)
}

func (h *SessionHandler) Active(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    out, err := h.Sessions.Active(ctx, branchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, out)
}

// EndingSoon lists open sessions ending within ?minutes= (default 10),
// overdue ones included.
func (h *SessionHandler) EndingSoon(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    minutes := queryInt(c, "minutes", 10)
    if minutes < 0 || minutes > 24*60 {
        return invalidFields(c, map[string]string{"minutes": "must be between 0 and 1440"})
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    out, err := h.Sessions.EndingSoon(ctx, branchID, time.Duration(minutes)*time.Minute)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, out)
}
