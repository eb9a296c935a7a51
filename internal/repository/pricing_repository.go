package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/game-ground/internal/model"
)

// PricingRepo reads and writes the single rate card of each branch.
type PricingRepo struct {
    db *sql.DB
}

func NewPricingRepo(db *sql.DB) *PricingRepo { return &PricingRepo{db: db} }

func getPricing(ctx context.Context, q querier, branchID uint64) (model.Pricing, error) {
    var p model.Pricing
    err := q.QueryRowContext(ctx,
        `SELECT id, branch_id, single_player_price, multi_player_price, over_three_players_price, updated_at
         FROM pricing WHERE branch_id = ?`, branchID).
        Scan(&p.ID, &p.BranchID, &p.SinglePlayerPrice, &p.MultiPlayerPrice, &p.OverThreePlayersPrice, &p.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return p, ErrPricingNotFound
    }
    return p, err
}

// Get returns the branch rate card or ErrPricingNotFound.
func (r *PricingRepo) Get(ctx context.Context, branchID uint64) (model.Pricing, error) {
    return getPricing(ctx, r.db, branchID)
}

// Upsert stores the rate card and returns the saved row.
func (r *PricingRepo) Upsert(ctx context.Context, p model.Pricing) (model.Pricing, error) {
    _, err := r.db.ExecContext(ctx,
        `INSERT INTO pricing (branch_id, single_player_price, multi_player_price, over_three_players_price)
         VALUES (?, ?, ?, ?)
         ON DUPLICATE KEY UPDATE
           single_player_price = VALUES(single_player_price),
           multi_player_price = VALUES(multi_player_price),
           over_three_players_price = VALUES(over_three_players_price)`,
        p.BranchID, p.SinglePlayerPrice, p.MultiPlayerPrice, p.OverThreePlayersPrice)
    if err != nil {
        return model.Pricing{}, err
    }
    return getPricing(ctx, r.db, p.BranchID)
}
