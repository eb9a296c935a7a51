package config

// Redis backs the response cache, the rate limiter, idempotency keys and the
// "already notified" markers of the expiry watcher.  None of these are the
// source of truth, so a missing Redis only degrades those features.

import (
    "context"
    "crypto/tls"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
)

const (
    redisDialTimeout  = 5 * time.Second
    redisReadTimeout  = 3 * time.Second
    redisWriteTimeout = 3 * time.Second
)

// NewRedisClient instantiates a Redis client using environment variables.
// Supported variables are:
//   REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//   REDIS_ADDR – host:port shorthand (host/port take precedence when both are set)
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS when "true" or "1"
// The returned client is nil if the server does not answer a PING; callers
// must treat nil as "Redis disabled".
func NewRedisClient(logger *zap.Logger) *redis.Client {
    host := os.Getenv("REDIS_HOST")
    port := os.Getenv("REDIS_PORT")
    addr := os.Getenv("REDIS_ADDR")
    if host != "" && port != "" {
        addr = host + ":" + port
    }
    if addr == "" {
        addr = "localhost:6379"
    }
    dbNum := 0
    if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
        if n, err := strconv.Atoi(dbStr); err == nil {
            dbNum = n
        }
    }
    var tlsConf *tls.Config
    if tlsEnv := os.Getenv("REDIS_TLS"); strings.EqualFold(tlsEnv, "true") || tlsEnv == "1" {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(&redis.Options{
        Addr:         addr,
        Password:     os.Getenv("REDIS_PASSWORD"),
        DB:           dbNum,
        TLSConfig:    tlsConf,
        DialTimeout:  redisDialTimeout,
        ReadTimeout:  redisReadTimeout,
        WriteTimeout: redisWriteTimeout,
    })
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        logger.Warn("redis unavailable, cache/rate limit/idempotency disabled",
            zap.String("addr", addr), zap.Error(err))
        _ = client.Close()
        return nil
    }
    logger.Info("redis connected", zap.String("addr", addr), zap.Int("db", dbNum))
    return client
}
