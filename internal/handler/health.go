package handler

import (
    "context"
    "database/sql"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness plus the state of the backing stores.
type HealthHandler struct {
    DB    *sql.DB
    Redis *redis.Client
}

func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
    return &HealthHandler{DB: db, Redis: rdb}
}

// Health returns 200 while the database answers.  Redis is optional and
// only reported.
func (h *HealthHandler) Health(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
    defer cancel()

    status := http.StatusOK
    body := echo.Map{"status": "ok", "database": "up", "redis": "disabled"}
    if h.DB != nil {
        if err := h.DB.PingContext(ctx); err != nil {
            status = http.StatusServiceUnavailable
            body["status"], body["database"] = "degraded", "down"
        }
    }
    if h.Redis != nil {
        body["redis"] = "up"
        if err := h.Redis.Ping(ctx).Err(); err != nil {
            body["redis"] = "down"
        }
    }
    return c.JSON(status, body)
}
