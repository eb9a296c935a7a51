// Package pricing computes what a session costs.  Calculate is a pure
// function shared by the quote endpoint and the create and extend flows, so
// the bill a customer is shown is the bill that gets stored.
package pricing

import (
    "github.com/shopspring/decimal"
)

var (
    sixty   = decimal.NewFromInt(60)
    hundred = decimal.NewFromInt(100)
)

// Catalog is the per-player hourly rate card of one branch.
type Catalog struct {
    SinglePlayerPrice     decimal.Decimal
    MultiPlayerPrice      decimal.Decimal
    OverThreePlayersPrice decimal.Decimal
}

// SnackSelection is a requested snack line.  Quantities below zero count as
// zero.
type SnackSelection struct {
    SnackID  uint64 `json:"snack_id"`
    Quantity int    `json:"quantity"`
}

// Draft holds the numeric inputs of a session bill.
type Draft struct {
    NumberOfPlayers  int
    DurationMinutes  int
    Snacks           []SnackSelection
    DiscountRate     decimal.Decimal // percent, clamped to [0,100]
    DiscountAmount   decimal.Decimal // flat, clamped to >= 0
    RewardPointsUsed decimal.Decimal // capped at what is left to pay
}

// Quote is the itemised result.  Figures are unrounded; call Rounded before
// display or persistence.
type Quote struct {
    PricePerPlayer       decimal.Decimal
    BaseAmount           decimal.Decimal
    SnacksCost           decimal.Decimal
    Subtotal             decimal.Decimal
    PercentageDiscount   decimal.Decimal
    FlatDiscount         decimal.Decimal
    RewardPointsDiscount decimal.Decimal
    TotalAmount          decimal.Decimal
}

// Rounded returns q with every figure rounded half away from zero to two
// decimal places.
func (q Quote) Rounded() Quote {
    return Quote{
        PricePerPlayer:       q.PricePerPlayer.Round(2),
        BaseAmount:           q.BaseAmount.Round(2),
        SnacksCost:           q.SnacksCost.Round(2),
        Subtotal:             q.Subtotal.Round(2),
        PercentageDiscount:   q.PercentageDiscount.Round(2),
        FlatDiscount:         q.FlatDiscount.Round(2),
        RewardPointsDiscount: q.RewardPointsDiscount.Round(2),
        TotalAmount:          q.TotalAmount.Round(2),
    }
}

// IsZero reports whether every figure is zero, which is what a fail-safe
// quote looks like.
func (q Quote) IsZero() bool {
    return q.Subtotal.IsZero() && q.TotalAmount.IsZero() && q.PricePerPlayer.IsZero()
}

// RateFor resolves the per-player rate: one player pays the single rate, two
// pay the multi rate, three or more pay the over-three rate.
func RateFor(c *Catalog, players int) decimal.Decimal {
    switch {
    case c == nil || players < 1:
        return decimal.Zero
    case players == 1:
        return c.SinglePlayerPrice
    case players == 2:
        return c.MultiPlayerPrice
    default:
        return c.OverThreePlayersPrice
    }
}

// Calculate prices a draft against a catalog and a snack price list.  Snack
// ids missing from prices contribute nothing.  A nil catalog, fewer than one
// player or a negative duration yield a zero Quote.
func Calculate(c *Catalog, d Draft, prices map[uint64]decimal.Decimal) Quote {
    if c == nil || d.NumberOfPlayers < 1 || d.DurationMinutes < 0 {
        return Quote{}
    }

    rate := RateFor(c, d.NumberOfPlayers)
    base := rate.
        Mul(decimal.NewFromInt(int64(d.NumberOfPlayers))).
        Mul(decimal.NewFromInt(int64(d.DurationMinutes))).
        Div(sixty)

    snacks := decimal.Zero
    for _, s := range d.Snacks {
        if s.Quantity <= 0 {
            continue
        }
        p, ok := prices[s.SnackID]
        if !ok {
            continue
        }
        snacks = snacks.Add(p.Mul(decimal.NewFromInt(int64(s.Quantity))))
    }

    subtotal := base.Add(snacks)

    pctRate := clamp(d.DiscountRate, decimal.Zero, hundred)
    pct := subtotal.Mul(pctRate).Div(hundred)
    flat := decimal.Max(decimal.Zero, d.DiscountAmount)

    remaining := subtotal.Sub(pct).Sub(flat)
    reward := decimal.Max(decimal.Zero, decimal.Min(d.RewardPointsUsed, remaining))

    total := decimal.Max(decimal.Zero, remaining.Sub(reward))

    return Quote{
        PricePerPlayer:       rate,
        BaseAmount:           base,
        SnacksCost:           snacks,
        Subtotal:             subtotal,
        PercentageDiscount:   pct,
        FlatDiscount:         flat,
        RewardPointsDiscount: reward,
        TotalAmount:          total,
    }
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
    if v.LessThan(lo) {
        return lo
    }
    if v.GreaterThan(hi) {
        return hi
    }
    return v
}

// MergeSnacks folds repeated snack ids into one line and drops lines whose
// quantity is not positive.  Order of first appearance is kept.
func MergeSnacks(in []SnackSelection) []SnackSelection {
    idx := make(map[uint64]int, len(in))
    out := make([]SnackSelection, 0, len(in))
    for _, s := range in {
        if s.Quantity <= 0 || s.SnackID == 0 {
            continue
        }
        if i, ok := idx[s.SnackID]; ok {
            out[i].Quantity += s.Quantity
            continue
        }
        idx[s.SnackID] = len(out)
        out = append(out, s)
    }
    return out
}
