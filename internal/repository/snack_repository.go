package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/shopspring/decimal"

    "github.com/iliyamo/game-ground/internal/model"
)

type SnackRepo struct {
    db *sql.DB
}

func NewSnackRepo(db *sql.DB) *SnackRepo { return &SnackRepo{db: db} }

const snackColumns = "id, branch_id, name, category, price, stock, low_stock_threshold, description, created_at, updated_at"

func scanSnack(row interface{ Scan(...any) error }, s *model.Snack) error {
    err := row.Scan(&s.ID, &s.BranchID, &s.Name, &s.Category, &s.Price, &s.Stock,
        &s.LowStockThreshold, &s.Description, &s.CreatedAt, &s.UpdatedAt)
    if err == nil {
        s.Derive()
    }
    return err
}

func (r *SnackRepo) List(ctx context.Context, branchID uint64) ([]model.Snack, error) {
    rows, err := r.db.QueryContext(ctx,
        "SELECT "+snackColumns+" FROM snacks WHERE branch_id = ? ORDER BY category, name", branchID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []model.Snack{}
    for rows.Next() {
        var s model.Snack
        if err := scanSnack(rows, &s); err != nil {
            return nil, err
        }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (r *SnackRepo) GetByID(ctx context.Context, branchID, id uint64) (*model.Snack, error) {
    var s model.Snack
    err := scanSnack(r.db.QueryRowContext(ctx,
        "SELECT "+snackColumns+" FROM snacks WHERE id = ? AND branch_id = ?", id, branchID), &s)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrSnackNotFound
    }
    if err != nil {
        return nil, err
    }
    return &s, nil
}

// PricesByID returns the current price of each known snack id.  Unknown ids
// are simply absent from the map.
func (r *SnackRepo) PricesByID(ctx context.Context, branchID uint64, ids []uint64) (map[uint64]decimal.Decimal, error) {
    out := make(map[uint64]decimal.Decimal, len(ids))
    if len(ids) == 0 {
        return out, nil
    }
    args := append([]any{branchID}, idArgs(ids)...)
    rows, err := r.db.QueryContext(ctx,
        "SELECT id, price FROM snacks WHERE branch_id = ? AND id IN ("+placeholders(len(ids))+")", args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    for rows.Next() {
        var id uint64
        var p decimal.Decimal
        if err := rows.Scan(&id, &p); err != nil {
            return nil, err
        }
        out[id] = p
    }
    return out, rows.Err()
}

func (r *SnackRepo) Create(ctx context.Context, s *model.Snack) error {
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO snacks (branch_id, name, category, price, stock, low_stock_threshold, description)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
        s.BranchID, s.Name, s.Category, s.Price, s.Stock, s.LowStockThreshold, s.Description)
    if err != nil {
        return conflictOn(err, "snack name already exists", "")
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    got, err := r.GetByID(ctx, s.BranchID, uint64(id))
    if err != nil {
        return err
    }
    *s = *got
    return nil
}

func (r *SnackRepo) Update(ctx context.Context, s *model.Snack) error {
    if _, err := r.GetByID(ctx, s.BranchID, s.ID); err != nil {
        return err
    }
    if _, err := r.db.ExecContext(ctx,
        `UPDATE snacks SET name = ?, category = ?, price = ?, stock = ?, low_stock_threshold = ?, description = ?
         WHERE id = ? AND branch_id = ?`,
        s.Name, s.Category, s.Price, s.Stock, s.LowStockThreshold, s.Description, s.ID, s.BranchID); err != nil {
        return conflictOn(err, "snack name already exists", "")
    }
    got, err := r.GetByID(ctx, s.BranchID, s.ID)
    if err != nil {
        return err
    }
    *s = *got
    return nil
}

func (r *SnackRepo) Delete(ctx context.Context, branchID, id uint64) error {
    res, err := r.db.ExecContext(ctx, "DELETE FROM snacks WHERE id = ? AND branch_id = ?", id, branchID)
    if err != nil {
        return conflictOn(err, "", "snack appears on sessions")
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrSnackNotFound
    }
    return nil
}
