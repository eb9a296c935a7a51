package config

import (
    "strings"
    "time"
)

// CacheConfig defines settings for the branch-scoped response cache that sits
// in front of the catalog reads (games, snacks, devices, pricing).  When
// Enabled is false or no Redis client is configured, caching is disabled.
// Any successful write on a cached group bumps the branch generation so
// stale entries are never served after an edit.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool
    TTL          time.Duration
    KeyStrategy  string
    Prefix       string
    MaxBodyBytes int
}

// LoadCacheConfig reads environment variables to build a CacheConfig.  Defaults
// are used when variables are not set.  All methods are upper-cased.
func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
        TTL:          envDur("CACHE_TTL", 30*time.Second),
        KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
        Prefix:       envStr("CACHE_PREFIX", "gg:cache"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1048576),
    }
}

// IdempotencyConfig controls replay of mutating session requests carrying an
// Idempotency-Key header.  LockTTL bounds how long a first request may hold
// the key before a duplicate is allowed to retry.
type IdempotencyConfig struct {
    Enabled bool
    TTL     time.Duration
    LockTTL time.Duration
    Prefix  string
}

// LoadIdempotencyConfig reads IDEMPOTENCY_* variables.
func LoadIdempotencyConfig() IdempotencyConfig {
    c := IdempotencyConfig{
        Enabled: envBool("IDEMPOTENCY_ENABLED", true),
        TTL:     envDur("IDEMPOTENCY_TTL", 24*time.Hour),
        LockTTL: envDur("IDEMPOTENCY_LOCK_TTL", 30*time.Second),
        Prefix:  envStr("IDEMPOTENCY_PREFIX", "gg:idem"),
    }
    if c.LockTTL <= 0 { c.LockTTL = 30 * time.Second }
    return c
}

func parseMethods(s string) map[string]bool {
    m := map[string]bool{}
    for _, p := range strings.Split(s, ",") {
        p = strings.TrimSpace(strings.ToUpper(p))
        if p != "" {
            m[p] = true
        }
    }
    return m
}
