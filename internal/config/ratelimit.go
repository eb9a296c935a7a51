package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// RateLimitConfig configures the Redis token bucket applied to the API.
// Capacity is the bucket size, RefillTokens are added every RefillInterval.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string
    Prefix         string
    Debug          bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables and normalises them so the
// limiter never runs with a zero bucket or a TTL shorter than a few refills.
func LoadRateLimitConfig() RateLimitConfig {
    def := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 120),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 2),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "branch_user_route"),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "gg:rl"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
    }
    if b := envInt("RATE_LIMIT_BURST", -1); b > 0 {
        def.Capacity = b
    }
    def.Capacity = max(def.Capacity, 1)
    def.RefillTokens = max(def.RefillTokens, 1)
    if def.RefillInterval <= 0 {
        def.RefillInterval = time.Second
    }
    def.TTL = max(def.TTL, 5*def.RefillInterval)
    return def
}

func envStr(k, d string) string {
    if v := strings.TrimSpace(os.Getenv(k)); v != "" {
        return v
    }
    return d
}

// envBool accepts strconv.ParseBool values plus yes/no and on/off.
func envBool(k string, d bool) bool {
    v := strings.ToLower(envStr(k, ""))
    switch v {
    case "":
        return d
    case "yes", "on":
        return true
    case "no", "off":
        return false
    }
    if b, err := strconv.ParseBool(v); err == nil {
        return b
    }
    return d
}

func envInt(k string, d int) int {
    if n, err := strconv.Atoi(envStr(k, "")); err == nil {
        return n
    }
    return d
}

func envDur(k string, d time.Duration) time.Duration {
    if dur, err := time.ParseDuration(envStr(k, "")); err == nil {
        return dur
    }
    return d
}
