package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/game-ground/internal/model"
)

// CategoryRepo stores device categories of a branch.
type CategoryRepo struct {
    db *sql.DB
}

func NewCategoryRepo(db *sql.DB) *CategoryRepo { return &CategoryRepo{db: db} }

const categoryColumns = "id, branch_id, name, created_at, updated_at"

func (r *CategoryRepo) Create(ctx context.Context, c *model.DeviceCategory) error {
    res, err := r.db.ExecContext(ctx, "INSERT INTO device_categories (branch_id, name) VALUES (?, ?)", c.BranchID, c.Name)
    if err != nil {
        return conflictOn(err, "category name already exists", "")
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    got, err := r.GetByID(ctx, c.BranchID, uint64(id))
    if err != nil {
        return err
    }
    *c = *got
    return nil
}

func (r *CategoryRepo) GetByID(ctx context.Context, branchID, id uint64) (*model.DeviceCategory, error) {
    var c model.DeviceCategory
    err := r.db.QueryRowContext(ctx,
        "SELECT "+categoryColumns+" FROM device_categories WHERE id = ? AND branch_id = ?", id, branchID).
        Scan(&c.ID, &c.BranchID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrCategoryNotFound
    }
    if err != nil {
        return nil, err
    }
    return &c, nil
}

func (r *CategoryRepo) List(ctx context.Context, branchID uint64) ([]model.DeviceCategory, error) {
    rows, err := r.db.QueryContext(ctx,
        "SELECT "+categoryColumns+" FROM device_categories WHERE branch_id = ? ORDER BY name", branchID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []model.DeviceCategory{}
    for rows.Next() {
        var c model.DeviceCategory
        if err := rows.Scan(&c.ID, &c.BranchID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
            return nil, err
        }
        out = append(out, c)
    }
    return out, rows.Err()
}

func (r *CategoryRepo) Rename(ctx context.Context, branchID, id uint64, name string) error {
    res, err := r.db.ExecContext(ctx,
        "UPDATE device_categories SET name = ? WHERE id = ? AND branch_id = ?", name, id, branchID)
    if err != nil {
        return conflictOn(err, "category name already exists", "")
    }
    if n, _ := res.RowsAffected(); n == 0 {
        // MySQL reports 0 affected rows for an unchanged name too.
        _, err := r.GetByID(ctx, branchID, id)
        return err
    }
    return nil
}

// Delete refuses while devices still use the category.
func (r *CategoryRepo) Delete(ctx context.Context, branchID, id uint64) error {
    res, err := r.db.ExecContext(ctx, "DELETE FROM device_categories WHERE id = ? AND branch_id = ?", id, branchID)
    if err != nil {
        return conflictOn(err, "", "category still has devices")
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrCategoryNotFound
    }
    return nil
}
