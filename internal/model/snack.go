package model

import (
    "time"

    "github.com/shopspring/decimal"
)

const (
    SnackEatables = "Eatables"
    SnackDrinks   = "Drinks"

    SnackStatusAvailable  = "Available"
    SnackStatusOutOfStock = "Out of Stock"

    DefaultLowStockThreshold = 5
)

// Snack is an inventory item sold alongside sessions.  Status and LowStock
// are derived from Stock when the row is loaded.
type Snack struct {
    ID                uint64          `json:"id"`
    BranchID          uint64          `json:"branch_id"`
    Name              string          `json:"name"`
    Category          string          `json:"category"`
    Price             decimal.Decimal `json:"price"`
    Stock             int             `json:"stock"`
    LowStockThreshold int             `json:"low_stock_threshold"`
    Description       string          `json:"description"`
    Status            string          `json:"status"`
    LowStock          bool            `json:"low_stock"`
    CreatedAt         time.Time       `json:"created_at"`
    UpdatedAt         time.Time       `json:"updated_at"`
}

// Derive fills Status and LowStock from Stock.
func (s *Snack) Derive() {
    if s.Stock > 0 {
        s.Status = SnackStatusAvailable
    } else {
        s.Status = SnackStatusOutOfStock
    }
    s.LowStock = s.Stock <= s.LowStockThreshold
}
