package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrUsernameExists = errors.New("username already exists")

const userColumns = "id, username, password_hash, role, is_active, created_at, updated_at"

func scanUser(row interface{ Scan(...any) error }, u *model.User) error {
    return row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
}

// Create inserts a user, grants the given branches and returns the new ID.
func (r *UserRepo) Create(ctx context.Context, username, password, role string, cost int, branchIDs []uint64) (uint64, error) {
    username = strings.ToLower(strings.TrimSpace(username))
    hash, err := utils.HashPassword(password, cost)
    if err != nil {
        return 0, err
    }

    tx, err := r.DB.BeginTx(ctx, nil)
    if err != nil {
        return 0, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    res, err := tx.ExecContext(ctx,
        "INSERT INTO users (username, password_hash, role) VALUES (?,?,?)",
        username, hash, role)
    if err != nil {
        if isDuplicate(err) {
            return 0, ErrUsernameExists
        }
        return 0, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return 0, err
    }
    uid := uint64(id)
    for _, b := range branchIDs {
        if err := setAccess(ctx, tx, uid, b, true); err != nil {
            return 0, err
        }
    }
    if err := tx.Commit(); err != nil {
        return 0, err
    }
    committed = true
    return uid, nil
}

// GetByUsername fetches a user by normalized username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
    username = strings.ToLower(strings.TrimSpace(username))
    var u model.User
    err := scanUser(r.DB.QueryRowContext(ctx,
        "SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", username), &u)
    if errors.Is(err, sql.ErrNoRows) {
        return u, ErrUserNotFound
    }
    return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
    var u model.User
    err := scanUser(r.DB.QueryRowContext(ctx,
        "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id), &u)
    if errors.Is(err, sql.ErrNoRows) {
        return u, ErrUserNotFound
    }
    return u, err
}

// ListByBranch returns the staff granted access to a branch, with their
// branch ids filled in.
func (r *UserRepo) ListByBranch(ctx context.Context, branchID uint64) ([]model.User, error) {
    const q = `SELECT u.id, u.username, u.password_hash, u.role, u.is_active, u.created_at, u.updated_at
               FROM users u
               JOIN user_branches ub ON ub.user_id = u.id
               WHERE ub.branch_id = ? AND ub.can_access = 1
               ORDER BY u.id`
    rows, err := r.DB.QueryContext(ctx, q, branchID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []model.User{}
    for rows.Next() {
        var u model.User
        if err := scanUser(rows, &u); err != nil {
            return nil, err
        }
        out = append(out, u)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    for i := range out {
        ids, err := r.BranchIDs(ctx, out[i].ID)
        if err != nil {
            return nil, err
        }
        out[i].BranchIDs = ids
    }
    return out, nil
}

// BranchIDs lists the branches a user can access.
func (r *UserRepo) BranchIDs(ctx context.Context, userID uint64) ([]uint64, error) {
    rows, err := r.DB.QueryContext(ctx,
        "SELECT branch_id FROM user_branches WHERE user_id = ? AND can_access = 1 ORDER BY branch_id", userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var ids []uint64
    for rows.Next() {
        var id uint64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        ids = append(ids, id)
    }
    return ids, rows.Err()
}

// UserUpdate carries the optional fields of a staff edit.  Nil pointers are
// left untouched.
type UserUpdate struct {
    Role      *string
    IsActive  *bool
    Password  *string
    BranchIDs []uint64 // replaces all grants when non-nil
}

// Update applies a staff edit in one transaction.
func (r *UserRepo) Update(ctx context.Context, id uint64, upd UserUpdate, cost int) error {
    tx, err := r.DB.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    var exists uint64
    if err := tx.QueryRowContext(ctx, "SELECT id FROM users WHERE id = ? FOR UPDATE", id).Scan(&exists); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return ErrUserNotFound
        }
        return err
    }
    if upd.Role != nil {
        if _, err := tx.ExecContext(ctx, "UPDATE users SET role = ? WHERE id = ?", *upd.Role, id); err != nil {
            return err
        }
    }
    if upd.IsActive != nil {
        if _, err := tx.ExecContext(ctx, "UPDATE users SET is_active = ? WHERE id = ?", *upd.IsActive, id); err != nil {
            return err
        }
    }
    if upd.Password != nil {
        hash, err := utils.HashPassword(*upd.Password, cost)
        if err != nil {
            return err
        }
        if _, err := tx.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", hash, id); err != nil {
            return err
        }
    }
    if upd.BranchIDs != nil {
        if _, err := tx.ExecContext(ctx, "UPDATE user_branches SET can_access = 0 WHERE user_id = ?", id); err != nil {
            return err
        }
        for _, b := range upd.BranchIDs {
            if err := setAccess(ctx, tx, id, b, true); err != nil {
                return err
            }
        }
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// Delete removes a user; grants and refresh tokens cascade.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
    res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
    if err != nil {
        return conflictOn(err, "", "user still referenced by branches or sessions")
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrUserNotFound
    }
    return nil
}

// SetBranchAccess grants or withdraws a single branch.
func (r *UserRepo) SetBranchAccess(ctx context.Context, userID, branchID uint64, can bool) error {
    return setAccess(ctx, r.DB, userID, branchID, can)
}

func setAccess(ctx context.Context, q querier, userID, branchID uint64, can bool) error {
    _, err := q.ExecContext(ctx,
        `INSERT INTO user_branches (user_id, branch_id, can_access) VALUES (?, ?, ?)
         ON DUPLICATE KEY UPDATE can_access = VALUES(can_access)`,
        userID, branchID, can)
    return err
}
