package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"

    "github.com/iliyamo/game-ground/internal/model"
)

// DeviceRepo covers device CRUD.  Status transitions driven by sessions go
// through Store so they share the session's transaction.
type DeviceRepo struct {
    db *sql.DB
}

func NewDeviceRepo(db *sql.DB) *DeviceRepo { return &DeviceRepo{db: db} }

const deviceColumns = `d.id, d.branch_id, d.category_id, c.name, d.name, d.screen_number,
    d.number_of_controllers, d.is_available, d.device_status, d.created_at, d.updated_at`

const deviceFrom = " FROM devices d JOIN device_categories c ON c.id = d.category_id"

func scanDevice(row interface{ Scan(...any) error }, d *model.Device) error {
    return row.Scan(&d.ID, &d.BranchID, &d.CategoryID, &d.CategoryName, &d.Name, &d.ScreenNumber,
        &d.NumberOfControllers, &d.IsAvailable, &d.DeviceStatus, &d.CreatedAt, &d.UpdatedAt)
}

func getDevice(ctx context.Context, q querier, branchID, id uint64, lock bool) (model.Device, error) {
    query := "SELECT " + deviceColumns + deviceFrom + " WHERE d.id = ? AND d.branch_id = ?"
    if lock {
        query += " FOR UPDATE OF d"
    }
    var d model.Device
    err := scanDevice(q.QueryRowContext(ctx, query, id, branchID), &d)
    if errors.Is(err, sql.ErrNoRows) {
        return d, ErrDeviceNotFound
    }
    return d, err
}

// DeviceFilter narrows List.  Zero values mean "any".
type DeviceFilter struct {
    Status     string
    CategoryID uint64
}

func (r *DeviceRepo) List(ctx context.Context, branchID uint64, f DeviceFilter) ([]model.Device, error) {
    q := "SELECT " + deviceColumns + deviceFrom + " WHERE d.branch_id = ?"
    args := []any{branchID}
    if f.Status != "" {
        q += " AND d.device_status = ?"
        args = append(args, f.Status)
    }
    if f.CategoryID != 0 {
        q += " AND d.category_id = ?"
        args = append(args, f.CategoryID)
    }
    q += " ORDER BY d.screen_number, d.id"

    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []model.Device{}
    for rows.Next() {
        var d model.Device
        if err := scanDevice(rows, &d); err != nil {
            return nil, err
        }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (r *DeviceRepo) GetByID(ctx context.Context, branchID, id uint64) (*model.Device, error) {
    d, err := getDevice(ctx, r.db, branchID, id, false)
    if err != nil {
        return nil, err
    }
    return &d, nil
}

// Create inserts a device in Available state.  The category must belong to
// the same branch.
func (r *DeviceRepo) Create(ctx context.Context, d *model.Device) error {
    if err := r.checkCategory(ctx, d.BranchID, d.CategoryID); err != nil {
        return err
    }
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO devices (branch_id, category_id, name, screen_number, number_of_controllers, is_available, device_status)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
        d.BranchID, d.CategoryID, d.Name, d.ScreenNumber, d.NumberOfControllers, d.IsAvailable, model.DeviceAvailable)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    got, err := getDevice(ctx, r.db, d.BranchID, uint64(id), false)
    if err != nil {
        return err
    }
    *d = got
    return nil
}

// Update rewrites the editable attributes.  DeviceStatus is not editable
// here.
func (r *DeviceRepo) Update(ctx context.Context, d *model.Device) error {
    if err := r.checkCategory(ctx, d.BranchID, d.CategoryID); err != nil {
        return err
    }
    if _, err := getDevice(ctx, r.db, d.BranchID, d.ID, false); err != nil {
        return err
    }
    if _, err := r.db.ExecContext(ctx,
        `UPDATE devices SET category_id = ?, name = ?, screen_number = ?, number_of_controllers = ?, is_available = ?
         WHERE id = ? AND branch_id = ?`,
        d.CategoryID, d.Name, d.ScreenNumber, d.NumberOfControllers, d.IsAvailable, d.ID, d.BranchID); err != nil {
        return err
    }
    got, err := getDevice(ctx, r.db, d.BranchID, d.ID, false)
    if err != nil {
        return err
    }
    *d = got
    return nil
}

// Delete refuses busy devices and devices with session history.
func (r *DeviceRepo) Delete(ctx context.Context, branchID, id uint64) error {
    d, err := getDevice(ctx, r.db, branchID, id, false)
    if err != nil {
        return err
    }
    if d.Busy() {
        return fmt.Errorf("%w: device is in use", ErrConflict)
    }
    _, err = r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ? AND branch_id = ?", id, branchID)
    return conflictOn(err, "", "device has session history")
}

func (r *DeviceRepo) checkCategory(ctx context.Context, branchID, categoryID uint64) error {
    var id uint64
    err := r.db.QueryRowContext(ctx,
        "SELECT id FROM device_categories WHERE id = ? AND branch_id = ?", categoryID, branchID).Scan(&id)
    if errors.Is(err, sql.ErrNoRows) {
        return ErrCategoryNotFound
    }
    return err
}
