package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// RequireRole rejects with 403 any request whose role claim is not one of
// roles.  It must run after JWTAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !allowed[Role(c)] {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}

// RequireBranch rejects tokens that are not scoped to a branch.  Every
// catalog and session route reads the branch from the token.
func RequireBranch() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if BranchID(c) == 0 {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "no branch selected, use /v1/auth/switch-branch"})
            }
            return next(c)
        }
    }
}
