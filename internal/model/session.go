package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// Session status values.  Completed is terminal.
const (
    SessionActive    = "Active"
    SessionExtended  = "Extended"
    SessionCompleted = "Completed"
)

// SessionSnack is one snack line of a session.  UnitPrice is frozen at
// booking time so later price edits do not change an open bill.
type SessionSnack struct {
    SnackID   uint64          `json:"snack_id"`
    Name      string          `json:"name,omitempty"`
    Quantity  int             `json:"quantity"`
    UnitPrice decimal.Decimal `json:"unit_price"`
}

// Session is a billed occupation of a device.
type Session struct {
    ID               uint64          `json:"id"`
    BranchID         uint64          `json:"branch_id"`
    CustomerName     string          `json:"customer_name"`
    ContactNumber    string          `json:"contact_number"`
    GameID           uint64          `json:"game_id"`
    GameTitle        string          `json:"game_title,omitempty"`
    DeviceID         uint64          `json:"device_id"`
    DeviceName       string          `json:"device_name,omitempty"`
    SessionStart     time.Time       `json:"session_start"`
    SessionEnd       time.Time       `json:"session_end"`
    DurationMinutes  int             `json:"duration_minutes"`
    NumberOfPlayers  int             `json:"number_of_players"`
    Snacks           []SessionSnack  `json:"snacks"`
    DiscountRate     decimal.Decimal `json:"discount_rate"`
    DiscountAmount   decimal.Decimal `json:"discount_amount"`
    RewardPointsUsed decimal.Decimal `json:"reward_points_used"`
    TotalAmount      decimal.Decimal `json:"total_amount"`
    SessionStatus    string          `json:"session_status"`
    CreatedBy        uint64          `json:"created_by"`
    CreatedAt        time.Time       `json:"created_at"`
    UpdatedAt        time.Time       `json:"updated_at"`
}

// Open reports whether the session still holds its device.
func (s Session) Open() bool {
    return s.SessionStatus == SessionActive || s.SessionStatus == SessionExtended
}

// DeviceStatusFor maps an open session status to the device status it
// implies.  Completed sessions free the device.
func DeviceStatusFor(sessionStatus string) string {
    switch sessionStatus {
    case SessionActive:
        return DeviceOccupied
    case SessionExtended:
        return DeviceExtended
    default:
        return DeviceAvailable
    }
}
