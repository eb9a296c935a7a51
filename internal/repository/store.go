package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/game-ground/internal/model"
)

// SessionTx is the set of reads and writes a session lifecycle transition
// may perform.  Every method runs inside the transaction opened by
// Store.InTx; the *ForUpdate methods take row locks that are held until
// commit or rollback.
type SessionTx interface {
    PricingForBranch(ctx context.Context, branchID uint64) (model.Pricing, error)
    GameForBranch(ctx context.Context, branchID, gameID uint64) (model.Game, error)
    DeviceForUpdate(ctx context.Context, branchID, deviceID uint64) (model.Device, error)
    SnacksForUpdate(ctx context.Context, branchID uint64, ids []uint64) (map[uint64]model.Snack, error)
    DecrementSnackStock(ctx context.Context, snackID uint64, qty int) error
    InsertSession(ctx context.Context, s *model.Session) error
    SessionDevice(ctx context.Context, branchID, sessionID uint64) (uint64, error)
    SessionForUpdate(ctx context.Context, branchID, sessionID uint64) (model.Session, error)
    UpdateSession(ctx context.Context, s *model.Session) error
    OpenSessionsForDevice(ctx context.Context, deviceID uint64) ([]model.Session, error)
    SetDeviceStatus(ctx context.Context, deviceID uint64, status string) error
}

// DeviceDrift names a device whose status disagrees with its open sessions.
type DeviceDrift struct {
    DeviceID uint64
    BranchID uint64
    Status   string
}

// Store opens the transactions that keep sessions and devices consistent.
type Store struct {
    db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// DB exposes the pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// InTx runs fn in a single transaction.  fn's error, or a panic, rolls the
// transaction back; otherwise it is committed.  A transaction chosen as a
// deadlock victim is run once more, so fn must not keep state between calls.
func (s *Store) InTx(ctx context.Context, fn func(tx SessionTx) error) error {
    err := s.inTx(ctx, fn)
    if isDeadlock(err) {
        err = s.inTx(ctx, fn)
    }
    return err
}

func (s *Store) inTx(ctx context.Context, fn func(tx SessionTx) error) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return fmt.Errorf("begin: %w", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := fn(&txStore{tx: tx}); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return fmt.Errorf("commit: %w", err)
    }
    committed = true
    return nil
}

// DriftedDevices lists devices whose status does not match the open
// session that references them (or the lack of one).
func (s *Store) DriftedDevices(ctx context.Context) ([]DeviceDrift, error) {
    const q = `SELECT DISTINCT d.id, d.branch_id, d.device_status
               FROM devices d
               LEFT JOIN sessions s ON s.device_id = d.id AND s.session_status IN ` + openStatuses + `
               WHERE (s.id IS NULL AND d.device_status <> 'Available')
                  OR (s.session_status = 'Active' AND d.device_status <> 'Occupied')
                  OR (s.session_status = 'Extended' AND d.device_status <> 'Extended')
               ORDER BY d.id`
    rows, err := s.db.QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []DeviceDrift
    for rows.Next() {
        var d DeviceDrift
        if err := rows.Scan(&d.DeviceID, &d.BranchID, &d.Status); err != nil {
            return nil, err
        }
        out = append(out, d)
    }
    return out, rows.Err()
}

type txStore struct {
    tx *sql.Tx
}

func (t *txStore) PricingForBranch(ctx context.Context, branchID uint64) (model.Pricing, error) {
    return getPricing(ctx, t.tx, branchID)
}

func (t *txStore) GameForBranch(ctx context.Context, branchID, gameID uint64) (model.Game, error) {
    return getGame(ctx, t.tx, branchID, gameID)
}

func (t *txStore) DeviceForUpdate(ctx context.Context, branchID, deviceID uint64) (model.Device, error) {
    return getDevice(ctx, t.tx, branchID, deviceID, true)
}

func (t *txStore) SnacksForUpdate(ctx context.Context, branchID uint64, ids []uint64) (map[uint64]model.Snack, error) {
    out := make(map[uint64]model.Snack, len(ids))
    if len(ids) == 0 {
        return out, nil
    }
    args := append([]any{branchID}, idArgs(ids)...)
    rows, err := t.tx.QueryContext(ctx,
        "SELECT "+snackColumns+" FROM snacks WHERE branch_id = ? AND id IN ("+placeholders(len(ids))+") ORDER BY id FOR UPDATE",
        args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    for rows.Next() {
        var s model.Snack
        if err := scanSnack(rows, &s); err != nil {
            return nil, err
        }
        out[s.ID] = s
    }
    return out, rows.Err()
}

func (t *txStore) DecrementSnackStock(ctx context.Context, snackID uint64, qty int) error {
    res, err := t.tx.ExecContext(ctx,
        "UPDATE snacks SET stock = stock - ? WHERE id = ? AND stock >= ?", qty, snackID, qty)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return fmt.Errorf("%w: insufficient stock for snack %d", ErrConflict, snackID)
    }
    return nil
}

// InsertSession stores the session and its snack lines and fills in ID and
// timestamps.
func (t *txStore) InsertSession(ctx context.Context, s *model.Session) error {
    res, err := t.tx.ExecContext(ctx,
        `INSERT INTO sessions (branch_id, customer_name, contact_number, game_id, device_id, session_start,
            session_end, duration_minutes, number_of_players, discount_rate, discount_amount,
            reward_points_used, total_amount, session_status, created_by)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
        s.BranchID, s.CustomerName, s.ContactNumber, s.GameID, s.DeviceID, s.SessionStart,
        s.SessionEnd, s.DurationMinutes, s.NumberOfPlayers, s.DiscountRate, s.DiscountAmount,
        s.RewardPointsUsed, s.TotalAmount, s.SessionStatus, s.CreatedBy)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    s.ID = uint64(id)

    if len(s.Snacks) > 0 {
        query := "INSERT INTO session_snacks (session_id, snack_id, quantity, unit_price) VALUES "
        args := make([]any, 0, len(s.Snacks)*4)
        for i, line := range s.Snacks {
            if i > 0 {
                query += ","
            }
            query += "(?, ?, ?, ?)"
            args = append(args, s.ID, line.SnackID, line.Quantity, line.UnitPrice)
        }
        if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
            return err
        }
    }
    return t.tx.QueryRowContext(ctx, "SELECT created_at, updated_at FROM sessions WHERE id = ?", s.ID).
        Scan(&s.CreatedAt, &s.UpdatedAt)
}

// SessionDevice reads the device of a session without locking, so callers
// can lock the device row before the session row.
func (t *txStore) SessionDevice(ctx context.Context, branchID, sessionID uint64) (uint64, error) {
    var id uint64
    err := t.tx.QueryRowContext(ctx,
        "SELECT device_id FROM sessions WHERE id = ? AND branch_id = ?", sessionID, branchID).Scan(&id)
    if errors.Is(err, sql.ErrNoRows) {
        return 0, ErrSessionNotFound
    }
    return id, err
}

func (t *txStore) SessionForUpdate(ctx context.Context, branchID, sessionID uint64) (model.Session, error) {
    return getSession(ctx, t.tx, branchID, sessionID, true)
}

// UpdateSession writes the fields a lifecycle transition can change.
func (t *txStore) UpdateSession(ctx context.Context, s *model.Session) error {
    res, err := t.tx.ExecContext(ctx,
        `UPDATE sessions SET session_end = ?, duration_minutes = ?, number_of_players = ?,
            total_amount = ?, session_status = ?
         WHERE id = ?`,
        s.SessionEnd, s.DurationMinutes, s.NumberOfPlayers, s.TotalAmount, s.SessionStatus, s.ID)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrSessionNotFound
    }
    s.UpdatedAt = time.Now().UTC()
    return nil
}

func (t *txStore) OpenSessionsForDevice(ctx context.Context, deviceID uint64) ([]model.Session, error) {
    return querySessions(ctx, t.tx,
        "SELECT "+sessionColumns+sessionFrom+" WHERE s.device_id = ? AND s.session_status IN "+openStatuses+
            " ORDER BY s.session_start, s.id FOR UPDATE OF s", deviceID)
}

func (t *txStore) SetDeviceStatus(ctx context.Context, deviceID uint64, status string) error {
    if !model.ValidDeviceStatus(status) {
        return fmt.Errorf("invalid device status %q", status)
    }
    res, err := t.tx.ExecContext(ctx, "UPDATE devices SET device_status = ? WHERE id = ?", status, deviceID)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrDeviceNotFound
    }
    return nil
}
