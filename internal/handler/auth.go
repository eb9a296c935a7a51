package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/config"
    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/repository"
    "github.com/iliyamo/game-ground/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Cfg      config.Config
    Users    *repository.UserRepo
    Tokens   *repository.TokenRepo
    Branches *repository.BranchRepo
    Logger   *zap.Logger
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, b *repository.BranchRepo, logger *zap.Logger) *AuthHandler {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Branches: b, Logger: logger.Named("auth")}
}

// ----- DTOs -----

type loginReq struct {
    Username string `json:"username"`
    Password string `json:"password"`
    BranchID uint64 `json:"branch_id"`
}
type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}
type switchBranchReq struct {
    BranchID uint64 `json:"branch_id"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}
type userPart struct {
    ID       uint64 `json:"id"`
    Username string `json:"username"`
    Role     string `json:"role"`
    BranchID uint64 `json:"branch_id"`
}
type authResp struct {
    User    userPart  `json:"user"`
    Access  tokenPart `json:"access"`
    Refresh tokenPart `json:"refresh"`
}

var errNoBranch = errors.New("no branch access")

// resolveBranch picks the branch a login or switch lands on.  An explicit
// choice must be granted (SuperAdmin may pick any existing branch); without
// one the user's first granted branch is used.  A SuperAdmin on an empty
// install gets branch 0 so they can create the first branch.
func (h *AuthHandler) resolveBranch(ctx context.Context, u model.User, want uint64) (uint64, error) {
    super := u.Role == model.RoleSuperAdmin
    if want != 0 {
        if super {
            if _, err := h.Branches.GetByID(ctx, want); err != nil {
                return 0, err
            }
            return want, nil
        }
        ok, err := h.Branches.HasAccess(ctx, u.ID, want)
        if err != nil {
            return 0, err
        }
        if !ok {
            return 0, repository.ErrForbidden
        }
        return want, nil
    }
    var (
        id  uint64
        err error
    )
    if super {
        id, err = h.Branches.First(ctx)
        if errors.Is(err, repository.ErrBranchNotFound) {
            return 0, nil
        }
    } else {
        id, err = h.Branches.FirstForUser(ctx, u.ID)
        if errors.Is(err, repository.ErrBranchNotFound) {
            return 0, errNoBranch
        }
    }
    return id, err
}

// issue creates an access/refresh pair and stores the refresh hash.
func (h *AuthHandler) issue(ctx context.Context, u model.User, branchID uint64) (authResp, error) {
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, utils.Claims{UserID: u.ID, Role: u.Role, BranchID: branchID}, h.Cfg.AccessTTLMin)
    if err != nil {
        return authResp{}, err
    }
    refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
    if err != nil {
        return authResp{}, err
    }
    if err := h.Tokens.StoreRefresh(ctx, u.ID, branchID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
        return authResp{}, err
    }
    return authResp{
        User:    userPart{ID: u.ID, Username: u.Username, Role: u.Role, BranchID: branchID},
        Access:  tokenPart{Token: access.Token, Expires: access.Exp},
        Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
    }, nil
}

// Login: verify credentials, pick a branch and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    req.Username = strings.ToLower(strings.TrimSpace(req.Username))
    if req.Username == "" || req.Password == "" {
        return badRequest(c, "username/password required")
    }

    ctx, cancel := reqCtx(c)
    defer cancel()

    u, err := h.Users.GetByUsername(ctx, req.Username)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
        }
        return respond(c, h.Logger, err)
    }
    if !utils.VerifyPassword(u.PasswordHash, req.Password) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    }
    if !u.IsActive {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "account is disabled"})
    }

    branchID, err := h.resolveBranch(ctx, u, req.BranchID)
    if errors.Is(err, errNoBranch) {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "user has no branch access"})
    }
    if err != nil {
        return respond(c, h.Logger, err)
    }

    resp, err := h.issue(ctx, u, branchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    h.Logger.Info("login", zap.Uint64("user_id", u.ID), zap.Uint64("branch_id", branchID))
    return c.JSON(http.StatusOK, resp)
}

var errInvalidRefresh = errors.New("invalid refresh")

func bindRefresh(c echo.Context) string {
    var req refreshReq
    _ = c.Bind(&req)
    return strings.TrimSpace(req.RefreshToken)
}

// loadRefresh validates a refresh token and the active user it belongs to.
func (h *AuthHandler) loadRefresh(ctx context.Context, raw string) (model.User, uint64, string, error) {
    hash := utils.HashRefreshRaw(raw)
    userID, branchID, err := h.Tokens.ValidateRefresh(ctx, hash)
    if err != nil {
        return model.User{}, 0, "", errInvalidRefresh
    }
    u, err := h.Users.GetByID(ctx, userID)
    if errors.Is(err, repository.ErrUserNotFound) || (err == nil && !u.IsActive) {
        return model.User{}, 0, "", errInvalidRefresh
    }
    return u, branchID, hash, err
}

// Refresh: validate by hash, revoke old, issue new for the same branch.
func (h *AuthHandler) Refresh(c echo.Context) error {
    raw := bindRefresh(c)
    if raw == "" {
        return badRequest(c, "refresh_token required")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    u, branchID, hash, err := h.loadRefresh(ctx, raw)
    if errors.Is(err, errInvalidRefresh) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
    }
    if err != nil {
        return respond(c, h.Logger, err)
    }
    if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
        return respond(c, h.Logger, err)
    }
    resp, err := h.issue(ctx, u, branchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, resp)
}

// RefreshAccess returns a new access token without rotating the refresh
// token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
    raw := bindRefresh(c)
    if raw == "" {
        return badRequest(c, "refresh_token required")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    u, branchID, _, err := h.loadRefresh(ctx, raw)
    if errors.Is(err, errInvalidRefresh) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
    }
    if err != nil {
        return respond(c, h.Logger, err)
    }
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, utils.Claims{UserID: u.ID, Role: u.Role, BranchID: branchID}, h.Cfg.AccessTTLMin)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "access": tokenPart{Token: access.Token, Expires: access.Exp},
    })
}

// Logout revokes the given refresh token, or every refresh token of the
// caller when only a valid access token is presented.
func (h *AuthHandler) Logout(c echo.Context) error {
    refreshToken := bindRefresh(c)

    ctx, cancel := reqCtx(c)
    defer cancel()

    if refreshToken != "" {
        hash := utils.HashRefreshRaw(refreshToken)
        if _, _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
        }
        if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
            return respond(c, h.Logger, err)
        }
        return c.NoContent(http.StatusNoContent)
    }

    auth := c.Request().Header.Get("Authorization")
    if strings.HasPrefix(auth, "Bearer ") {
        claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
        if err != nil {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
        }
        if err := h.Tokens.RevokeAllForUser(ctx, claims.UserID); err != nil {
            return respond(c, h.Logger, err)
        }
        return c.NoContent(http.StatusNoContent)
    }
    return badRequest(c, "provide Authorization header or refresh_token")
}

// Me returns the caller's profile, current branch and accessible branches.
func (h *AuthHandler) Me(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    u, err := h.Users.GetByID(ctx, uid)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var branches []model.Branch
    if u.Role == model.RoleSuperAdmin {
        branches, err = h.Branches.List(ctx)
    } else {
        branches, err = h.Branches.ListForUser(ctx, uid)
    }
    if err != nil {
        return respond(c, h.Logger, err)
    }
    current, _ := getBranchID(c)
    return c.JSON(http.StatusOK, echo.Map{
        "user":      u,
        "branch_id": current,
        "branches":  branches,
    })
}

// SwitchBranch issues a new token pair scoped to another granted branch.
func (h *AuthHandler) SwitchBranch(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req switchBranchReq
    if err := c.Bind(&req); err != nil || req.BranchID == 0 {
        return invalidFields(c, map[string]string{"branch_id": "cannot be blank"})
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    u, err := h.Users.GetByID(ctx, uid)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    branchID, err := h.resolveBranch(ctx, u, req.BranchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    resp, err := h.issue(ctx, u, branchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    h.Logger.Info("branch switched", zap.Uint64("user_id", uid), zap.Uint64("branch_id", branchID))
    return c.JSON(http.StatusOK, resp)
}
