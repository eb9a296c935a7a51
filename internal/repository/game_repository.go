package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/game-ground/internal/model"
)

type GameRepo struct {
    db *sql.DB
}

func NewGameRepo(db *sql.DB) *GameRepo { return &GameRepo{db: db} }

const gameColumns = "id, branch_id, title, number_of_players, description, is_available, created_at, updated_at"

func scanGame(row interface{ Scan(...any) error }, g *model.Game) error {
    return row.Scan(&g.ID, &g.BranchID, &g.Title, &g.NumberOfPlayers, &g.Description, &g.IsAvailable, &g.CreatedAt, &g.UpdatedAt)
}

func getGame(ctx context.Context, q querier, branchID, id uint64) (model.Game, error) {
    var g model.Game
    err := scanGame(q.QueryRowContext(ctx,
        "SELECT "+gameColumns+" FROM games WHERE id = ? AND branch_id = ?", id, branchID), &g)
    if errors.Is(err, sql.ErrNoRows) {
        return g, ErrGameNotFound
    }
    return g, err
}

// List returns the branch's games; availableOnly hides titles switched off.
func (r *GameRepo) List(ctx context.Context, branchID uint64, availableOnly bool) ([]model.Game, error) {
    q := "SELECT " + gameColumns + " FROM games WHERE branch_id = ?"
    if availableOnly {
        q += " AND is_available = 1"
    }
    q += " ORDER BY title"
    rows, err := r.db.QueryContext(ctx, q, branchID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []model.Game{}
    for rows.Next() {
        var g model.Game
        if err := scanGame(rows, &g); err != nil {
            return nil, err
        }
        out = append(out, g)
    }
    return out, rows.Err()
}

func (r *GameRepo) GetByID(ctx context.Context, branchID, id uint64) (*model.Game, error) {
    g, err := getGame(ctx, r.db, branchID, id)
    if err != nil {
        return nil, err
    }
    return &g, nil
}

func (r *GameRepo) Create(ctx context.Context, g *model.Game) error {
    if g.Description == "" {
        g.Description = model.DefaultGameDescription
    }
    res, err := r.db.ExecContext(ctx,
        "INSERT INTO games (branch_id, title, number_of_players, description, is_available) VALUES (?, ?, ?, ?, ?)",
        g.BranchID, g.Title, g.NumberOfPlayers, g.Description, g.IsAvailable)
    if err != nil {
        return conflictOn(err, "game title already exists", "")
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    got, err := getGame(ctx, r.db, g.BranchID, uint64(id))
    if err != nil {
        return err
    }
    *g = got
    return nil
}

func (r *GameRepo) Update(ctx context.Context, g *model.Game) error {
    if _, err := getGame(ctx, r.db, g.BranchID, g.ID); err != nil {
        return err
    }
    if g.Description == "" {
        g.Description = model.DefaultGameDescription
    }
    if _, err := r.db.ExecContext(ctx,
        "UPDATE games SET title = ?, number_of_players = ?, description = ?, is_available = ? WHERE id = ? AND branch_id = ?",
        g.Title, g.NumberOfPlayers, g.Description, g.IsAvailable, g.ID, g.BranchID); err != nil {
        return conflictOn(err, "game title already exists", "")
    }
    got, err := getGame(ctx, r.db, g.BranchID, g.ID)
    if err != nil {
        return err
    }
    *g = got
    return nil
}

// Delete refuses games referenced by sessions.
func (r *GameRepo) Delete(ctx context.Context, branchID, id uint64) error {
    res, err := r.db.ExecContext(ctx, "DELETE FROM games WHERE id = ? AND branch_id = ?", id, branchID)
    if err != nil {
        return conflictOn(err, "", "game has session history")
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrGameNotFound
    }
    return nil
}
