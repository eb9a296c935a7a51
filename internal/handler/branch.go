package handler

import (
    "net/http"
    "strings"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/middleware"
    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/repository"
)

type BranchHandler struct {
    Branches *repository.BranchRepo
    Users    *repository.UserRepo
    Logger   *zap.Logger
}

func NewBranchHandler(b *repository.BranchRepo, u *repository.UserRepo, logger *zap.Logger) *BranchHandler {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &BranchHandler{Branches: b, Users: u, Logger: logger.Named("branches")}
}

type branchReq struct {
    Name     string `json:"name"`
    Location string `json:"location"`
}

// List returns every branch for SuperAdmin and the granted ones otherwise.
func (h *BranchHandler) List(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    var out []model.Branch
    if middleware.Role(c) == model.RoleSuperAdmin {
        out, err = h.Branches.List(ctx)
    } else {
        out, err = h.Branches.ListForUser(ctx, uid)
    }
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, out)
}

// Create adds a branch with the default rate card and grants it to its
// creator.
func (h *BranchHandler) Create(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req branchReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    b := model.Branch{Name: strings.TrimSpace(req.Name), Location: strings.TrimSpace(req.Location), CreatedBy: uid}
    if err := (validation.Errors{
        "name":     validation.Validate(b.Name, validation.Required, validation.Length(2, 100)),
        "location": validation.Validate(b.Location, validation.Required, validation.Length(2, 255)),
    }).Filter(); err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Branches.Create(ctx, &b); err != nil {
        return respond(c, h.Logger, err)
    }
    if err := h.Users.SetBranchAccess(ctx, uid, b.ID, true); err != nil {
        return respond(c, h.Logger, err)
    }
    h.Logger.Info("branch created", zap.Uint64("branch_id", b.ID), zap.String("name", b.Name))
    return c.JSON(http.StatusCreated, b)
}
