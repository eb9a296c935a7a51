package middleware

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/game-ground/internal/utils"
)

// JWTAuth validates a Bearer access token and injects its user, role and
// branch claims into the request context.  Browsers cannot set headers on a
// websocket handshake, so upgrade requests may pass the token as the
// access_token query parameter instead.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw, ok := bearer(c.Request())
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            claims, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            c.Set(CtxUserID, claims.UserID)
            c.Set(CtxRole, claims.Role)
            c.Set(CtxBranchID, claims.BranchID)
            return next(c)
        }
    }
}

func bearer(r *http.Request) (string, bool) {
    auth := r.Header.Get("Authorization")
    if strings.HasPrefix(auth, "Bearer ") {
        raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
        return raw, raw != ""
    }
    if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
        raw := r.URL.Query().Get("access_token")
        return raw, raw != ""
    }
    return "", false
}
