package handler

import (
    "context"
    "net/http"
    "slices"
    "strings"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/middleware"
    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/repository"
)

// StaffHandler manages user accounts and their branch grants.  SuperAdmin
// manages everyone; Admin manages non-SuperAdmin accounts granted the
// branch in their token, and only touches grants in branches they hold.
type StaffHandler struct {
    Users      *repository.UserRepo
    Branches   *repository.BranchRepo
    BcryptCost int
    Logger     *zap.Logger
}

func NewStaffHandler(u *repository.UserRepo, b *repository.BranchRepo, cost int, logger *zap.Logger) *StaffHandler {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &StaffHandler{Users: u, Branches: b, BcryptCost: cost, Logger: logger.Named("staff")}
}

type createStaffReq struct {
    Username  string   `json:"username"`
    Password  string   `json:"password"`
    Role      string   `json:"role"`
    BranchIDs []uint64 `json:"branch_ids"`
}

type updateStaffReq struct {
    Role      *string  `json:"role"`
    IsActive  *bool    `json:"is_active"`
    Password  *string  `json:"password"`
    BranchIDs []uint64 `json:"branch_ids"`
}

var roleRule = validation.In(model.RoleSuperAdmin, model.RoleAdmin, model.RoleStoreManager, model.RoleStaff).
    Error("must be one of SuperAdmin, Admin, StoreManager, Staff")

// checkGrants verifies an Admin only hands out branches they hold.
func (h *StaffHandler) checkGrants(ctx context.Context, c echo.Context, branchIDs []uint64) error {
    if middleware.Role(c) == model.RoleSuperAdmin {
        for _, b := range branchIDs {
            if _, err := h.Branches.GetByID(ctx, b); err != nil {
                return err
            }
        }
        return nil
    }
    uid, _ := getUserID(c)
    for _, b := range branchIDs {
        ok, err := h.Branches.HasAccess(ctx, uid, b)
        if err != nil {
            return err
        }
        if !ok {
            return repository.ErrForbidden
        }
    }
    return nil
}

// List returns the staff of the current branch.
func (h *StaffHandler) List(c echo.Context) error {
    branchID, err := getBranchID(c)
    if err != nil {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "no branch selected"})
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    users, err := h.Users.ListByBranch(ctx, branchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, users)
}

// Create adds an account.  Without branch_ids the user is granted the
// current branch.
func (h *StaffHandler) Create(c echo.Context) error {
    var req createStaffReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    req.Username = strings.ToLower(strings.TrimSpace(req.Username))
    if err := (validation.Errors{
        "username": validation.Validate(req.Username, validation.Required, validation.Length(3, 64)),
        "password": validation.Validate(req.Password, validation.Required, validation.Length(8, 0)),
        "role":     validation.Validate(req.Role, validation.Required, roleRule),
    }).Filter(); err != nil {
        return respond(c, h.Logger, err)
    }
    if req.Role == model.RoleSuperAdmin && middleware.Role(c) != model.RoleSuperAdmin {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "only a SuperAdmin can create a SuperAdmin"})
    }
    if len(req.BranchIDs) == 0 {
        if b, err := getBranchID(c); err == nil {
            req.BranchIDs = []uint64{b}
        }
    }

    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.checkGrants(ctx, c, req.BranchIDs); err != nil {
        return respond(c, h.Logger, err)
    }
    id, err := h.Users.Create(ctx, req.Username, req.Password, req.Role, h.BcryptCost, req.BranchIDs)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    u, err := h.Users.GetByID(ctx, id)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    u.BranchIDs = req.BranchIDs
    h.Logger.Info("staff created", zap.Uint64("user_id", id), zap.String("role", u.Role))
    return c.JSON(http.StatusCreated, u)
}

// target loads the user named by :id and checks the caller may edit it.
func (h *StaffHandler) target(ctx context.Context, c echo.Context) (model.User, error) {
    id, ok := pathID(c, "id")
    if !ok {
        return model.User{}, validation.Errors{"id": validation.NewError("validation_id", "must be a positive integer")}
    }
    u, err := h.Users.GetByID(ctx, id)
    if err != nil {
        return u, err
    }
    if middleware.Role(c) == model.RoleSuperAdmin {
        return u, nil
    }
    if u.Role == model.RoleSuperAdmin {
        return u, repository.ErrForbidden
    }
    ok, err = h.Branches.HasAccess(ctx, u.ID, middleware.BranchID(c))
    if err != nil {
        return u, err
    }
    if !ok {
        return u, repository.ErrForbidden
    }
    return u, nil
}

// withForeignGrants adds to want the target's grants in branches the caller
// does not hold, so an Admin only rewrites grants inside their own branches.
func (h *StaffHandler) withForeignGrants(ctx context.Context, c echo.Context, targetID uint64, want []uint64) ([]uint64, error) {
    if middleware.Role(c) == model.RoleSuperAdmin {
        return want, nil
    }
    have, err := h.Users.BranchIDs(ctx, targetID)
    if err != nil {
        return nil, err
    }
    uid, _ := getUserID(c)
    out := append([]uint64{}, want...)
    for _, b := range have {
        if slices.Contains(want, b) {
            continue
        }
        held, err := h.Branches.HasAccess(ctx, uid, b)
        if err != nil {
            return nil, err
        }
        if !held {
            out = append(out, b)
        }
    }
    return out, nil
}

// Update changes role, active flag, password or branch grants.
func (h *StaffHandler) Update(c echo.Context) error {
    var req updateStaffReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    errs := validation.Errors{}
    if req.Role != nil {
        errs["role"] = validation.Validate(*req.Role, validation.Required, roleRule)
    }
    if req.Password != nil {
        errs["password"] = validation.Validate(*req.Password, validation.Required, validation.Length(8, 0))
    }
    if err := errs.Filter(); err != nil {
        return respond(c, h.Logger, err)
    }
    if req.Role != nil && *req.Role == model.RoleSuperAdmin && middleware.Role(c) != model.RoleSuperAdmin {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "only a SuperAdmin can grant SuperAdmin"})
    }

    ctx, cancel := reqCtx(c)
    defer cancel()
    u, err := h.target(ctx, c)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    if req.BranchIDs != nil {
        if err := h.checkGrants(ctx, c, req.BranchIDs); err != nil {
            return respond(c, h.Logger, err)
        }
        if req.BranchIDs, err = h.withForeignGrants(ctx, c, u.ID, req.BranchIDs); err != nil {
            return respond(c, h.Logger, err)
        }
    }
    upd := repository.UserUpdate{Role: req.Role, IsActive: req.IsActive, Password: req.Password, BranchIDs: req.BranchIDs}
    if err := h.Users.Update(ctx, u.ID, upd, h.BcryptCost); err != nil {
        return respond(c, h.Logger, err)
    }
    u, err = h.Users.GetByID(ctx, u.ID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    if u.BranchIDs, err = h.Users.BranchIDs(ctx, u.ID); err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, u)
}

// Delete removes an account.  Users cannot delete themselves.
func (h *StaffHandler) Delete(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()
    u, err := h.target(ctx, c)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    if uid, _ := getUserID(c); uid == u.ID {
        return c.JSON(http.StatusConflict, echo.Map{"error": "cannot delete your own account"})
    }
    if err := h.Users.Delete(ctx, u.ID); err != nil {
        return respond(c, h.Logger, err)
    }
    h.Logger.Info("staff deleted", zap.Uint64("user_id", u.ID))
    return c.NoContent(http.StatusNoContent)
}
