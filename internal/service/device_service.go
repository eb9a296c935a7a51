package service

import (
    "context"
    "errors"
    "fmt"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/metrics"
    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/queue"
    "github.com/iliyamo/game-ground/internal/repository"
)

// DriftSource lists devices whose status disagrees with their sessions.
type DriftSource interface {
    DriftedDevices(ctx context.Context) ([]repository.DeviceDrift, error)
}

// DeviceStore is what the device operations need from storage.
type DeviceStore interface {
    Transactor
    DriftSource
}

// DeviceService changes device status by hand and repairs drift between
// devices and sessions.
type DeviceService struct {
    store    DeviceStore
    sessions *SessionService
    metrics  *metrics.Metrics
    logger   *zap.Logger
    now      func() time.Time
    repaired func(ctx context.Context, branchID uint64)
}

// NewDeviceService shares the clock and event publisher of sessions, so a
// reset emits the same session.ended event as End.
func NewDeviceService(store DeviceStore, sessions *SessionService, m *metrics.Metrics, logger *zap.Logger) *DeviceService {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &DeviceService{
        store:    store,
        sessions: sessions,
        metrics:  m,
        logger:   logger.Named("devices"),
        now:      sessions.now,
    }
}

// Reset completes every open session of the device and makes it Available.
// It returns the sessions that were closed.
func (d *DeviceService) Reset(ctx context.Context, branchID, deviceID, actorID uint64) ([]model.Session, error) {
    var closed []model.Session
    err := d.store.InTx(ctx, func(tx repository.SessionTx) error {
        if _, err := tx.DeviceForUpdate(ctx, branchID, deviceID); err != nil {
            return err
        }
        open, err := tx.OpenSessionsForDevice(ctx, deviceID)
        if err != nil {
            return err
        }
        closed = closed[:0]
        for i := range open {
            if err := completeSession(ctx, tx, &open[i], d.now()); err != nil {
                return err
            }
            closed = append(closed, open[i])
        }
        return tx.SetDeviceStatus(ctx, deviceID, model.DeviceAvailable)
    })
    if err != nil {
        return nil, err
    }
    d.logger.Info("device reset", zap.Uint64("device_id", deviceID), zap.Int("sessions_closed", len(closed)))
    for _, s := range closed {
        d.sessions.publish(queue.EventSessionEnded, s, actorID)
    }
    return closed, nil
}

// SetStatus writes a manual status.  The status must agree with the
// device's open sessions; anything else would break the device/session
// pairing and is a conflict.
func (d *DeviceService) SetStatus(ctx context.Context, branchID, deviceID uint64, status string) (model.Device, error) {
    if !model.ValidDeviceStatus(status) {
        return model.Device{}, invalid("device_status", "must be one of Available, Occupied, Extended")
    }
    var dev model.Device
    err := d.store.InTx(ctx, func(tx repository.SessionTx) error {
        var err error
        dev, err = tx.DeviceForUpdate(ctx, branchID, deviceID)
        if err != nil {
            return err
        }
        open, err := tx.OpenSessionsForDevice(ctx, deviceID)
        if err != nil {
            return err
        }
        if want := expectedStatus(open); status != want {
            return fmt.Errorf("%w: device has %d open session(s), its status must be %s",
                repository.ErrConflict, len(open), want)
        }
        if dev.DeviceStatus == status {
            return nil
        }
        if err := tx.SetDeviceStatus(ctx, deviceID, status); err != nil {
            return err
        }
        dev.DeviceStatus = status
        return nil
    })
    return dev, err
}

// OnRepair registers fn to run after a device of branchID was repaired.
func (d *DeviceService) OnRepair(fn func(ctx context.Context, branchID uint64)) {
    d.repaired = fn
}

// Reconcile repairs every drifted device and returns how many were changed.
// Each device is fixed in its own transaction; one failure does not stop
// the rest.
func (d *DeviceService) Reconcile(ctx context.Context) (int, error) {
    drifts, err := d.store.DriftedDevices(ctx)
    if err != nil {
        return 0, err
    }
    repaired := 0
    var errs []error
    for _, drift := range drifts {
        changed, err := d.repair(ctx, drift)
        if err != nil {
            errs = append(errs, fmt.Errorf("device %d: %w", drift.DeviceID, err))
            continue
        }
        if changed {
            repaired++
            if d.repaired != nil {
                d.repaired(ctx, drift.BranchID)
            }
        }
    }
    d.metrics.DevicesRepaired(repaired)
    if repaired > 0 || len(errs) > 0 {
        d.logger.Warn("device drift repaired",
            zap.Int("found", len(drifts)), zap.Int("repaired", repaired), zap.Int("failed", len(errs)))
    }
    return repaired, errors.Join(errs...)
}

func (d *DeviceService) repair(ctx context.Context, drift repository.DeviceDrift) (bool, error) {
    changed := false
    err := d.store.InTx(ctx, func(tx repository.SessionTx) error {
        changed = false
        dev, err := tx.DeviceForUpdate(ctx, drift.BranchID, drift.DeviceID)
        if err != nil {
            return err
        }
        open, err := tx.OpenSessionsForDevice(ctx, drift.DeviceID)
        if err != nil {
            return err
        }
        if len(open) > 1 {
            d.logger.Error("device has more than one open session",
                zap.Uint64("device_id", dev.ID), zap.Int("open_sessions", len(open)))
        }
        want := expectedStatus(open)
        if dev.DeviceStatus == want {
            return nil
        }
        if err := tx.SetDeviceStatus(ctx, dev.ID, want); err != nil {
            return err
        }
        d.logger.Info("device status repaired",
            zap.Uint64("device_id", dev.ID), zap.String("from", dev.DeviceStatus), zap.String("to", want))
        changed = true
        return nil
    })
    return changed, err
}

// RunReconciler calls Reconcile every interval until ctx is done.  A
// non-positive interval disables the loop.
func (d *DeviceService) RunReconciler(ctx context.Context, interval time.Duration) {
    if interval <= 0 {
        return
    }
    ticker := time.NewTicker(interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            if _, err := d.Reconcile(ctx); err != nil && ctx.Err() == nil {
                d.logger.Error("reconcile failed", zap.Error(err))
            }
        }
    }
}

// expectedStatus is the device status implied by its open sessions, the
// most recently started one winning.
func expectedStatus(open []model.Session) string {
    if len(open) == 0 {
        return model.DeviceAvailable
    }
    return model.DeviceStatusFor(open[len(open)-1].SessionStatus)
}
