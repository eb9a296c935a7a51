package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"
)

// RequestLogger writes one structured line per request.  Handler errors are
// passed to Echo's error handler first so the logged status is the one the
// client saw.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
    if logger == nil {
        logger = zap.NewNop()
    }
    logger = logger.Named("http")
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            if err := next(c); err != nil {
                c.Error(err)
            }
            res := c.Response()
            fields := []zap.Field{
                zap.String("method", c.Request().Method),
                zap.String("route", c.Path()),
                zap.String("uri", c.Request().RequestURI),
                zap.Int("status", res.Status),
                zap.Int64("bytes", res.Size),
                zap.Duration("latency", time.Since(start)),
                zap.String("ip", c.RealIP()),
            }
            if id := res.Header().Get(echo.HeaderXRequestID); id != "" {
                fields = append(fields, zap.String("request_id", id))
            }
            if uid := UserID(c); uid != 0 {
                fields = append(fields, zap.Uint64("user_id", uid), zap.Uint64("branch_id", BranchID(c)))
            }
            switch {
            case res.Status >= 500:
                logger.Error("request", fields...)
            case res.Status >= 400:
                logger.Warn("request", fields...)
            default:
                logger.Info("request", fields...)
            }
            return nil
        }
    }
}
