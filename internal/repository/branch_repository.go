package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/game-ground/internal/model"
)

// BranchRepo stores cafe branches and the per-user access grants.
type BranchRepo struct {
    db *sql.DB
}

func NewBranchRepo(db *sql.DB) *BranchRepo { return &BranchRepo{db: db} }

const branchColumns = "id, name, location, created_by, created_at, updated_at"

func scanBranch(row interface{ Scan(...any) error }, b *model.Branch) error {
    return row.Scan(&b.ID, &b.Name, &b.Location, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
}

// Create inserts a branch together with its default rate card so the branch
// can take bookings immediately.
func (r *BranchRepo) Create(ctx context.Context, b *model.Branch) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    res, err := tx.ExecContext(ctx,
        "INSERT INTO branches (name, location, created_by) VALUES (?, ?, ?)",
        b.Name, b.Location, b.CreatedBy)
    if err != nil {
        return conflictOn(err, "branch name already exists", "")
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    b.ID = uint64(id)

    def := model.DefaultPricing(b.ID)
    if _, err := tx.ExecContext(ctx,
        "INSERT INTO pricing (branch_id, single_player_price, multi_player_price, over_three_players_price) VALUES (?, ?, ?, ?)",
        b.ID, def.SinglePlayerPrice, def.MultiPlayerPrice, def.OverThreePlayersPrice); err != nil {
        return err
    }
    if err := scanBranch(tx.QueryRowContext(ctx, "SELECT "+branchColumns+" FROM branches WHERE id = ?", b.ID), b); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// GetByID returns ErrBranchNotFound when no row matches.
func (r *BranchRepo) GetByID(ctx context.Context, id uint64) (*model.Branch, error) {
    var b model.Branch
    err := scanBranch(r.db.QueryRowContext(ctx, "SELECT "+branchColumns+" FROM branches WHERE id = ?", id), &b)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrBranchNotFound
    }
    if err != nil {
        return nil, err
    }
    return &b, nil
}

// List returns every branch ordered by id.
func (r *BranchRepo) List(ctx context.Context) ([]model.Branch, error) {
    return r.list(ctx, "SELECT "+branchColumns+" FROM branches ORDER BY id")
}

// ListForUser returns the branches a user holds an active grant for.
func (r *BranchRepo) ListForUser(ctx context.Context, userID uint64) ([]model.Branch, error) {
    const q = `SELECT b.id, b.name, b.location, b.created_by, b.created_at, b.updated_at
               FROM branches b
               JOIN user_branches ub ON ub.branch_id = b.id
               WHERE ub.user_id = ? AND ub.can_access = 1
               ORDER BY b.id`
    return r.list(ctx, q, userID)
}

func (r *BranchRepo) list(ctx context.Context, q string, args ...any) ([]model.Branch, error) {
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []model.Branch{}
    for rows.Next() {
        var b model.Branch
        if err := scanBranch(rows, &b); err != nil {
            return nil, err
        }
        out = append(out, b)
    }
    return out, rows.Err()
}

// HasAccess reports whether userID may act in branchID.  The caller decides
// whether the role bypasses grants.
func (r *BranchRepo) HasAccess(ctx context.Context, userID, branchID uint64) (bool, error) {
    var can bool
    err := r.db.QueryRowContext(ctx,
        "SELECT can_access FROM user_branches WHERE user_id = ? AND branch_id = ?",
        userID, branchID).Scan(&can)
    if errors.Is(err, sql.ErrNoRows) {
        return false, nil
    }
    return can, err
}

// FirstForUser returns the lowest-id branch the user can access, or
// ErrBranchNotFound.
func (r *BranchRepo) FirstForUser(ctx context.Context, userID uint64) (uint64, error) {
    var id uint64
    err := r.db.QueryRowContext(ctx,
        "SELECT branch_id FROM user_branches WHERE user_id = ? AND can_access = 1 ORDER BY branch_id LIMIT 1",
        userID).Scan(&id)
    if errors.Is(err, sql.ErrNoRows) {
        return 0, ErrBranchNotFound
    }
    return id, err
}

// First returns the lowest branch id, used for SuperAdmin logins that name
// no branch.
func (r *BranchRepo) First(ctx context.Context) (uint64, error) {
    var id uint64
    err := r.db.QueryRowContext(ctx, "SELECT id FROM branches ORDER BY id LIMIT 1").Scan(&id)
    if errors.Is(err, sql.ErrNoRows) {
        return 0, ErrBranchNotFound
    }
    return id, err
}
