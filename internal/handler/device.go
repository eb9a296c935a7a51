package handler

import (
    "context"
    "net/http"
    "strings"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/repository"
)

// DeviceOps are the device operations that must agree with sessions.
type DeviceOps interface {
    Reset(ctx context.Context, branchID, deviceID, actorID uint64) ([]model.Session, error)
    SetStatus(ctx context.Context, branchID, deviceID uint64, status string) (model.Device, error)
    Reconcile(ctx context.Context) (int, error)
}

// DeviceHandler serves device categories and devices of the caller's branch.
type DeviceHandler struct {
    Categories *repository.CategoryRepo
    Devices    *repository.DeviceRepo
    Ops        DeviceOps
    Logger     *zap.Logger
}

func NewDeviceHandler(cats *repository.CategoryRepo, devs *repository.DeviceRepo, ops DeviceOps, logger *zap.Logger) *DeviceHandler {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &DeviceHandler{Categories: cats, Devices: devs, Ops: ops, Logger: logger.Named("devices")}
}

// scope returns the branch, and the :id path parameter when withID is set.
func scope(c echo.Context, withID bool) (branchID, id uint64, err error) {
    branchID, err = getBranchID(c)
    if err != nil {
        return 0, 0, repository.ErrForbidden
    }
    if withID {
        var ok bool
        if id, ok = pathID(c, "id"); !ok {
            return 0, 0, validation.Errors{"id": validation.NewError("validation_id", "must be a positive integer")}
        }
    }
    return branchID, id, nil
}

// ----- categories -----

type categoryReq struct {
    Name string `json:"name"`
}

func (r *categoryReq) validate() error {
    r.Name = strings.TrimSpace(r.Name)
    return validation.Errors{
        "name": validation.Validate(r.Name, validation.Required, validation.Length(1, 100)),
    }.Filter()
}

func (h *DeviceHandler) ListCategories(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    out, err := h.Categories.List(ctx, branchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, out)
}

func (h *DeviceHandler) CreateCategory(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var req categoryReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    if err := req.validate(); err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    cat := model.DeviceCategory{BranchID: branchID, Name: req.Name}
    if err := h.Categories.Create(ctx, &cat); err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusCreated, cat)
}

func (h *DeviceHandler) UpdateCategory(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var req categoryReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    if err := req.validate(); err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Categories.Rename(ctx, branchID, id, req.Name); err != nil {
        return respond(c, h.Logger, err)
    }
    cat, err := h.Categories.GetByID(ctx, branchID, id)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, cat)
}

func (h *DeviceHandler) DeleteCategory(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Categories.Delete(ctx, branchID, id); err != nil {
        return respond(c, h.Logger, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// ----- devices -----

type deviceReq struct {
    CategoryID          uint64 `json:"category_id"`
    Name                string `json:"name"`
    ScreenNumber        int    `json:"screen_number"`
    NumberOfControllers int    `json:"number_of_controllers"`
    IsAvailable         *bool  `json:"is_available"`
}

func (r *deviceReq) device(branchID uint64) (model.Device, error) {
    r.Name = strings.TrimSpace(r.Name)
    if err := (validation.Errors{
        "category_id":           validation.Validate(r.CategoryID, validation.Required),
        "name":                  validation.Validate(r.Name, validation.Required, validation.Length(1, 100)),
        "screen_number":         validation.Validate(r.ScreenNumber, validation.Required, validation.Min(1)),
        "number_of_controllers": validation.Validate(r.NumberOfControllers, validation.Min(0)),
    }).Filter(); err != nil {
        return model.Device{}, err
    }
    avail := true
    if r.IsAvailable != nil {
        avail = *r.IsAvailable
    }
    return model.Device{
        BranchID:            branchID,
        CategoryID:          r.CategoryID,
        Name:                r.Name,
        ScreenNumber:        r.ScreenNumber,
        NumberOfControllers: r.NumberOfControllers,
        IsAvailable:         avail,
    }, nil
}

// ListDevices supports ?status= and ?category_id= filters.
func (h *DeviceHandler) ListDevices(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    f := repository.DeviceFilter{Status: c.QueryParam("status")}
    if f.Status != "" && !model.ValidDeviceStatus(f.Status) {
        return invalidFields(c, map[string]string{"status": "must be one of Available, Occupied, Extended"})
    }
    if v := c.QueryParam("category_id"); v != "" {
        n, ok := parseID(v)
        if !ok {
            return invalidFields(c, map[string]string{"category_id": "must be a positive integer"})
        }
        f.CategoryID = n
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    out, err := h.Devices.List(ctx, branchID, f)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, out)
}

func (h *DeviceHandler) GetDevice(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    d, err := h.Devices.GetByID(ctx, branchID, id)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, d)
}

func (h *DeviceHandler) CreateDevice(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var req deviceReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    d, err := req.device(branchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Devices.Create(ctx, &d); err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusCreated, d)
}

func (h *DeviceHandler) UpdateDevice(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var req deviceReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    d, err := req.device(branchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    d.ID = id
    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Devices.Update(ctx, &d); err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, d)
}

func (h *DeviceHandler) DeleteDevice(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Devices.Delete(ctx, branchID, id); err != nil {
        return respond(c, h.Logger, err)
    }
    return c.NoContent(http.StatusNoContent)
}

type deviceStatusReq struct {
    DeviceStatus string `json:"device_status"`
}

// SetStatus writes a manual status; it is refused when it contradicts the
// device's open sessions.
func (h *DeviceHandler) SetStatus(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var req deviceStatusReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    d, err := h.Ops.SetStatus(ctx, branchID, id, strings.TrimSpace(req.DeviceStatus))
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, d)
}

// Reset completes the device's open sessions and frees it.
func (h *DeviceHandler) Reset(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    uid, _ := getUserID(c)
    ctx, cancel := reqCtx(c)
    defer cancel()
    closed, err := h.Ops.Reset(ctx, branchID, id, uid)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"device_id": id, "device_status": model.DeviceAvailable, "sessions_closed": closed})
}

// Reconcile runs the drift repair immediately.
func (h *DeviceHandler) Reconcile(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()
    n, err := h.Ops.Reconcile(ctx)
    if err != nil {
        h.Logger.Warn("reconcile finished with errors", zap.Int("repaired", n), zap.Error(err))
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reconcile incomplete", "repaired": n})
    }
    return c.JSON(http.StatusOK, echo.Map{"repaired": n})
}
