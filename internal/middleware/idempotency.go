package middleware

import (
    "context"
    "crypto/sha1"
    "fmt"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/config"
)

// HeaderIdempotencyKey is the request header naming a retry-safe request.
const HeaderIdempotencyKey = "Idempotency-Key"

// NewIdempotency replays the stored response of a mutating request whose
// Idempotency-Key was already seen for the same caller and route.  While
// the first request is still running a duplicate gets 409.  Server errors
// are not stored, so a failed request can be retried with the same key.
func NewIdempotency(cfg config.IdempotencyConfig, rdb *redis.Client, logger *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return passThrough
    }
    if logger == nil {
        logger = zap.NewNop()
    }
    logger = logger.Named("idempotency")

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            r := c.Request()
            raw := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
            if raw == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
                return next(c)
            }
            if len(raw) > 255 {
                return c.JSON(http.StatusBadRequest, echo.Map{"error": "Idempotency-Key is too long"})
            }
            doneKey, lockKey := idempotencyKeys(cfg.Prefix, c, raw)
            ctx := r.Context()

            if bs, err := rdb.Get(ctx, doneKey).Bytes(); err == nil {
                if status, hdr, body, ok := decodePayload(bs); ok {
                    c.Response().Header().Set("Idempotent-Replayed", "true")
                    replay(c, status, hdr, body)
                    return nil
                }
            } else if err != redis.Nil {
                logger.Warn("idempotency lookup failed", zap.Error(err))
                return next(c)
            }

            locked, err := rdb.SetNX(ctx, lockKey, 1, cfg.LockTTL).Result()
            if err != nil {
                logger.Warn("idempotency lock failed", zap.Error(err))
                return next(c)
            }
            if !locked {
                return c.JSON(http.StatusConflict, echo.Map{"error": "a request with this Idempotency-Key is still in progress"})
            }
            defer func() {
                if err := rdb.Del(context.Background(), lockKey).Err(); err != nil {
                    logger.Warn("idempotency unlock failed", zap.Error(err))
                }
            }()

            cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
            c.Response().Writer = cw
            if err := next(c); err != nil {
                return err
            }
            if cw.status >= http.StatusInternalServerError {
                return nil
            }
            payload, err := encodePayload(cw.status, cloneHeader(c.Response().Header()), cw.buf.Bytes())
            if err != nil {
                return nil
            }
            if err := rdb.Set(context.Background(), doneKey, payload, cfg.TTL).Err(); err != nil {
                logger.Warn("idempotency store failed", zap.Error(err))
            }
            return nil
        }
    }
}

// idempotencyKeys scopes a client key to the caller, branch, method and path.
func idempotencyKeys(prefix string, c echo.Context, raw string) (done, lock string) {
    user, branch := identity(c)
    r := c.Request()
    sum := sha1.Sum([]byte(r.Method + " " + r.URL.Path + " " + raw))
    base := fmt.Sprintf("%s:b%s:u%s:%x", prefix, branch, user, sum[:])
    return base + ":resp", base + ":lock"
}
