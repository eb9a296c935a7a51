package service

import (
    "context"
    "fmt"
    "math"
    "sync"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/metrics"
    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/notify"
)

// EndingSource finds open sessions that end at or before a time.  Branch 0
// means every branch.
type EndingSource interface {
    EndingBefore(ctx context.Context, branchID uint64, until time.Time) ([]model.Session, error)
}

// Broadcaster delivers a notification to a branch's subscribers.
type Broadcaster interface {
    Broadcast(n notify.Notification) int
}

// NotifiedStore remembers which (session, end time) pairs were already
// announced.  MarkNotified returns true the first time it sees a pair.
type NotifiedStore interface {
    MarkNotified(ctx context.Context, sessionID uint64, end time.Time, ttl time.Duration) (bool, error)
}

// RedisNotified keeps the markers in Redis with SETNX so several server
// instances announce each session once.
type RedisNotified struct {
    rdb    *redis.Client
    prefix string
}

func NewRedisNotified(rdb *redis.Client, prefix string) *RedisNotified {
    if prefix == "" {
        prefix = "gg:notified"
    }
    return &RedisNotified{rdb: rdb, prefix: prefix}
}

func (r *RedisNotified) MarkNotified(ctx context.Context, sessionID uint64, end time.Time, ttl time.Duration) (bool, error) {
    key := fmt.Sprintf("%s:%d:%d", r.prefix, sessionID, end.Unix())
    return r.rdb.SetNX(ctx, key, 1, ttl).Result()
}

// MemoryNotified is the single-instance fallback used when Redis is down.
type MemoryNotified struct {
    mu   sync.Mutex
    seen map[string]time.Time
    now  func() time.Time
}

func NewMemoryNotified() *MemoryNotified {
    return &MemoryNotified{seen: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryNotified) MarkNotified(_ context.Context, sessionID uint64, end time.Time, ttl time.Duration) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    now := m.now()
    for k, exp := range m.seen {
        if now.After(exp) {
            delete(m.seen, k)
        }
    }
    key := fmt.Sprintf("%d:%d", sessionID, end.Unix())
    if _, ok := m.seen[key]; ok {
        return false, nil
    }
    m.seen[key] = now.Add(ttl)
    return true, nil
}

// ExpiryWatcher warns staff about sessions that are about to run out.  It
// only notifies; ending a session stays a staff action.
type ExpiryWatcher struct {
    sessions EndingSource
    notified NotifiedStore
    hub      Broadcaster
    metrics  *metrics.Metrics
    logger   *zap.Logger
    lead     time.Duration
    now      func() time.Time
}

func NewExpiryWatcher(sessions EndingSource, notified NotifiedStore, hub Broadcaster, lead time.Duration, m *metrics.Metrics, logger *zap.Logger) *ExpiryWatcher {
    if logger == nil {
        logger = zap.NewNop()
    }
    if lead <= 0 {
        lead = 10 * time.Minute
    }
    return &ExpiryWatcher{
        sessions: sessions,
        notified: notified,
        hub:      hub,
        metrics:  m,
        logger:   logger.Named("expiry"),
        lead:     lead,
        now:      time.Now,
    }
}

// CheckOnce announces every open session ending within the lead window that
// has not been announced for its current end time.  Extending a session
// moves its end, so it is announced again before the new end.
func (w *ExpiryWatcher) CheckOnce(ctx context.Context) (int, error) {
    now := w.now().UTC()
    due, err := w.sessions.EndingBefore(ctx, 0, now.Add(w.lead))
    if err != nil {
        return 0, err
    }
    sent := 0
    for _, s := range due {
        first, err := w.notified.MarkNotified(ctx, s.ID, s.SessionEnd, w.lead+time.Hour)
        if err != nil {
            w.logger.Warn("notified marker unavailable", zap.Uint64("session_id", s.ID), zap.Error(err))
            first = true
        }
        if !first {
            continue
        }
        left := s.SessionEnd.Sub(now)
        n := notify.Notification{
            Type:         notify.TypeEndingSoon,
            BranchID:     s.BranchID,
            SessionID:    s.ID,
            DeviceID:     s.DeviceID,
            DeviceName:   s.DeviceName,
            CustomerName: s.CustomerName,
            SessionEnd:   s.SessionEnd,
            MinutesLeft:  int(math.Max(0, math.Ceil(left.Minutes()))),
            Overdue:      left < 0,
        }
        delivered := 0
        if w.hub != nil {
            delivered = w.hub.Broadcast(n)
        }
        w.metrics.EndingSoonAlert()
        w.logger.Info("session ending soon",
            zap.Uint64("session_id", s.ID),
            zap.Uint64("branch_id", s.BranchID),
            zap.String("device", s.DeviceName),
            zap.Int("minutes_left", n.MinutesLeft),
            zap.Bool("overdue", n.Overdue),
            zap.Int("subscribers", delivered))
        sent++
    }
    return sent, nil
}

// Run calls CheckOnce every interval until ctx is done.
func (w *ExpiryWatcher) Run(ctx context.Context, interval time.Duration) {
    if interval <= 0 {
        interval = time.Minute
    }
    ticker := time.NewTicker(interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            if _, err := w.CheckOnce(ctx); err != nil && ctx.Err() == nil {
                w.logger.Error("expiry check failed", zap.Error(err))
            }
        }
    }
}
