package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
    CtxUserID   = "user_id"
    CtxRole     = "role"
    CtxBranchID = "branch_id"
)

// UserID returns the authenticated user, or 0 when the request carries none.
func UserID(c echo.Context) uint64 { return uintFrom(c.Get(CtxUserID)) }

// BranchID returns the branch the access token is scoped to, or 0.
func BranchID(c echo.Context) uint64 { return uintFrom(c.Get(CtxBranchID)) }

// Role returns the role claim, or "".
func Role(c echo.Context) string {
    r, _ := c.Get(CtxRole).(string)
    return r
}

func uintFrom(v any) uint64 {
    switch t := v.(type) {
    case uint64:
        return t
    case int:
        if t > 0 {
            return uint64(t)
        }
    case int64:
        if t > 0 {
            return uint64(t)
        }
    case float64:
        if t > 0 {
            return uint64(t)
        }
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil {
            return n
        }
    }
    return 0
}

// identity renders the caller for cache, rate-limit and idempotency keys.
func identity(c echo.Context) (user, branch string) {
    user, branch = "anon", "none"
    if id := UserID(c); id != 0 {
        user = strconv.FormatUint(id, 10)
    }
    if id := BranchID(c); id != 0 {
        branch = strconv.FormatUint(id, 10)
    }
    return user, branch
}
