package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// Pricing is the per-branch hourly rate card.  ID is zero when the branch
// has never saved one and the defaults are being returned.
type Pricing struct {
    ID                    uint64          `json:"id"`
    BranchID              uint64          `json:"branch_id"`
    SinglePlayerPrice     decimal.Decimal `json:"single_player_price"`
    MultiPlayerPrice      decimal.Decimal `json:"multi_player_price"`
    OverThreePlayersPrice decimal.Decimal `json:"over_three_players_price"`
    IsDefault             bool            `json:"is_default"`
    UpdatedAt             time.Time       `json:"updated_at"`
}

// DefaultPricing returns the rate card used until a branch saves its own.
func DefaultPricing(branchID uint64) Pricing {
    return Pricing{
        BranchID:              branchID,
        SinglePlayerPrice:     decimal.NewFromInt(120),
        MultiPlayerPrice:      decimal.NewFromInt(70),
        OverThreePlayersPrice: decimal.NewFromInt(60),
        IsDefault:             true,
    }
}
