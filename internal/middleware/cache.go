package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/binary"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/config"
    "github.com/iliyamo/game-ground/internal/metrics"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
    http.ResponseWriter
    status int
    buf    bytes.Buffer
    size   int64
    limit  int64
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }

func (cw *captureWriter) Write(b []byte) (int, error) {
    switch {
    case cw.limit <= 0:
        cw.buf.Write(b)
    case cw.size < cw.limit:
        remain := cw.limit - cw.size
        if int64(len(b)) <= remain {
            cw.buf.Write(b)
        } else {
            cw.buf.Write(b[:remain])
        }
    }
    cw.size += int64(len(b))
    return cw.ResponseWriter.Write(b)
}

// truncated reports whether more was written than the buffer kept.
func (cw *captureWriter) truncated() bool { return cw.limit > 0 && cw.size > cw.limit }

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
    hdrJSON, err := json.Marshal(header)
    if err != nil {
        return nil, err
    }
    out := make([]byte, 8+len(hdrJSON)+len(body))
    binary.BigEndian.PutUint32(out[0:4], uint32(status))
    binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
    copy(out[8:8+len(hdrJSON)], hdrJSON)
    copy(out[8+len(hdrJSON):], body)
    return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
    if len(bs) < 8 {
        return 0, nil, nil, false
    }
    status = int(binary.BigEndian.Uint32(bs[0:4]))
    hlen := int(binary.BigEndian.Uint32(bs[4:8]))
    if hlen < 0 || 8+hlen > len(bs) {
        return 0, nil, nil, false
    }
    header = make(http.Header)
    if hlen > 0 {
        if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
            return 0, nil, nil, false
        }
    }
    return status, header, bs[8+hlen:], true
}

// replay writes a stored response.  Content-Length is left to Echo.
func replay(c echo.Context, status int, hdr http.Header, body []byte) {
    for k, vals := range hdr {
        if strings.EqualFold(k, "Content-Length") {
            continue
        }
        for _, v := range vals {
            c.Response().Header().Add(k, v)
        }
    }
    c.Response().WriteHeader(status)
    if len(body) > 0 {
        _, _ = c.Response().Write(body)
    }
}

func cloneHeader(h http.Header) http.Header {
    out := make(http.Header, len(h))
    for k, vals := range h {
        out[k] = append([]string(nil), vals...)
    }
    return out
}

// ResponseCache caches branch-scoped catalog reads in Redis.  Every key
// embeds the branch generation; a successful write anywhere in the branch
// bumps it, so entries cached before the write are never served again and
// simply expire.
type ResponseCache struct {
    cfg     config.CacheConfig
    rdb     *redis.Client
    metrics *metrics.Metrics
    logger  *zap.Logger
}

func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client, m *metrics.Metrics, logger *zap.Logger) *ResponseCache {
    if logger == nil {
        logger = zap.NewNop()
    }
    if cfg.TTL <= 0 {
        cfg.TTL = 30 * time.Second
    }
    return &ResponseCache{cfg: cfg, rdb: rdb, metrics: m, logger: logger.Named("cache")}
}

func (rc *ResponseCache) enabled() bool { return rc != nil && rc.cfg.Enabled && rc.rdb != nil }

func (rc *ResponseCache) genKey(branch string) string {
    return rc.cfg.Prefix + ":gen:" + branch
}

// generation returns the current generation of a branch; a missing key is
// generation 0.
func (rc *ResponseCache) generation(ctx context.Context, branch string) (int64, error) {
    n, err := rc.rdb.Get(ctx, rc.genKey(branch)).Int64()
    if err == redis.Nil {
        return 0, nil
    }
    return n, err
}

// key builds a stable cache key honoring prefix/strategy.  The user is part
// of the key because list responses can depend on the caller's grants.
func (rc *ResponseCache) key(c echo.Context, gen int64) string {
    r := c.Request()
    user, branch := identity(c)
    var parts []string
    switch strings.ToLower(rc.cfg.KeyStrategy) {
    case "route":
        parts = []string{"route", c.Path()}
    case "method_route":
        parts = []string{"method", r.Method, "route", c.Path()}
    case "method_route_query":
        parts = []string{"method", r.Method, "route", c.Path(), "q", r.URL.RawQuery}
    default: // "route_query"
        parts = []string{"route", c.Path(), "q", r.URL.RawQuery}
    }
    parts = append(parts, "path", r.URL.Path, "user", user)
    sum := sha1.Sum([]byte(strings.Join(parts, ":")))
    return fmt.Sprintf("%s:b%s:g%d:%x", rc.cfg.Prefix, branch, gen, sum[:])
}

// Read serves cached copies of 200 responses for the configured methods and
// stores fresh ones.  Redis failures fall through to the handler.
func (rc *ResponseCache) Read() echo.MiddlewareFunc {
    if !rc.enabled() {
        return passThrough
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
                return next(c)
            }
            ctx := c.Request().Context()
            _, branch := identity(c)
            gen, err := rc.generation(ctx, branch)
            if err != nil {
                rc.logger.Warn("cache generation lookup failed", zap.Error(err))
                rc.metrics.Cache("error")
                return next(c)
            }
            key := rc.key(c, gen)

            if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
                if status, hdr, body, ok := decodePayload(bs); ok {
                    rc.metrics.Cache("hit")
                    c.Response().Header().Set("X-Cache", "HIT")
                    replay(c, status, hdr, body)
                    return nil
                }
            }

            rc.metrics.Cache("miss")
            cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(rc.cfg.MaxBodyBytes)}
            c.Response().Writer = cw
            c.Response().Header().Set("X-Cache", "MISS")

            if err := next(c); err != nil {
                return err
            }
            if cw.status != http.StatusOK || cw.truncated() {
                return nil
            }
            hdr := cloneHeader(c.Response().Header())
            hdr.Del("X-Cache")
            payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
            if err != nil {
                return nil
            }
            if err := rc.rdb.Set(context.Background(), key, payload, rc.cfg.TTL).Err(); err != nil {
                rc.logger.Warn("cache store failed", zap.String("route", c.Path()), zap.Error(err))
            }
            return nil
        }
    }
}

// Invalidate bumps the branch generation after every successful request
// whose method is not cached, so writes are visible on the next read.
func (rc *ResponseCache) Invalidate() echo.MiddlewareFunc {
    if !rc.enabled() {
        return passThrough
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            err := next(c)
            if rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
                return err
            }
            if status := c.Response().Status; err == nil && status >= 200 && status < 300 {
                _, branch := identity(c)
                rc.Bump(context.Background(), branch)
            }
            return err
        }
    }
}

// Bump moves a branch to a new generation.
func (rc *ResponseCache) Bump(ctx context.Context, branch string) {
    if !rc.enabled() {
        return
    }
    if err := rc.rdb.Incr(ctx, rc.genKey(branch)).Err(); err != nil {
        rc.logger.Warn("cache invalidation failed", zap.String("branch", branch), zap.Error(err))
    }
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
