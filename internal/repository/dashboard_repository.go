package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/shopspring/decimal"
)

// DashboardRepo runs the aggregate queries behind the manager dashboard.
type DashboardRepo struct {
    db *sql.DB
}

func NewDashboardRepo(db *sql.DB) *DashboardRepo { return &DashboardRepo{db: db} }

// Stats is the headline block of the dashboard for one branch.
type Stats struct {
    ActiveSessions   int             `json:"active_sessions"`
    SessionsToday    int             `json:"sessions_today"`
    RevenueToday     decimal.Decimal `json:"revenue_today"`
    DevicesTotal     int             `json:"devices_total"`
    DevicesAvailable int             `json:"devices_available"`
    DevicesBusy      int             `json:"devices_busy"`
    LowStockSnacks   int             `json:"low_stock_snacks"`
    OutOfStockSnacks int             `json:"out_of_stock_snacks"`
}

// Stats aggregates sessions started at or after since.
func (r *DashboardRepo) Stats(ctx context.Context, branchID uint64, since time.Time) (Stats, error) {
    var s Stats
    var revenue decimal.NullDecimal
    err := r.db.QueryRowContext(ctx,
        `SELECT
            COALESCE(SUM(session_status IN ('Active','Extended')), 0),
            COALESCE(SUM(session_start >= ?), 0),
            SUM(CASE WHEN session_start >= ? THEN total_amount END)
         FROM sessions WHERE branch_id = ?`,
        since, since, branchID).Scan(&s.ActiveSessions, &s.SessionsToday, &revenue)
    if err != nil {
        return s, err
    }
    s.RevenueToday = revenue.Decimal

    err = r.db.QueryRowContext(ctx,
        `SELECT COUNT(*),
                COALESCE(SUM(device_status = 'Available'), 0),
                COALESCE(SUM(device_status <> 'Available'), 0)
         FROM devices WHERE branch_id = ?`, branchID).
        Scan(&s.DevicesTotal, &s.DevicesAvailable, &s.DevicesBusy)
    if err != nil {
        return s, err
    }

    err = r.db.QueryRowContext(ctx,
        `SELECT COALESCE(SUM(stock > 0 AND stock <= low_stock_threshold), 0),
                COALESCE(SUM(stock = 0), 0)
         FROM snacks WHERE branch_id = ?`, branchID).
        Scan(&s.LowStockSnacks, &s.OutOfStockSnacks)
    return s, err
}

// PopularItem is one ranked game or device.
type PopularItem struct {
    ID       uint64          `json:"id"`
    Name     string          `json:"name"`
    Sessions int             `json:"sessions"`
    Revenue  decimal.Decimal `json:"revenue"`
}

// Popular ranks games and devices by number of sessions since the given
// time.
func (r *DashboardRepo) Popular(ctx context.Context, branchID uint64, since time.Time, limit int) (games, devices []PopularItem, err error) {
    if limit <= 0 {
        limit = 5
    }
    games, err = r.rank(ctx,
        `SELECT g.id, g.title, COUNT(s.id), COALESCE(SUM(s.total_amount), 0)
         FROM sessions s JOIN games g ON g.id = s.game_id
         WHERE s.branch_id = ? AND s.session_start >= ?
         GROUP BY g.id, g.title
         ORDER BY COUNT(s.id) DESC, g.title
         LIMIT ?`, branchID, since, limit)
    if err != nil {
        return nil, nil, err
    }
    devices, err = r.rank(ctx,
        `SELECT d.id, d.name, COUNT(s.id), COALESCE(SUM(s.total_amount), 0)
         FROM sessions s JOIN devices d ON d.id = s.device_id
         WHERE s.branch_id = ? AND s.session_start >= ?
         GROUP BY d.id, d.name
         ORDER BY COUNT(s.id) DESC, d.name
         LIMIT ?`, branchID, since, limit)
    return games, devices, err
}

func (r *DashboardRepo) rank(ctx context.Context, q string, args ...any) ([]PopularItem, error) {
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []PopularItem{}
    for rows.Next() {
        var it PopularItem
        if err := rows.Scan(&it.ID, &it.Name, &it.Sessions, &it.Revenue); err != nil {
            return nil, err
        }
        out = append(out, it)
    }
    return out, rows.Err()
}

// Activity is one line of the recent-activity feed.
type Activity struct {
    SessionID    uint64          `json:"session_id"`
    CustomerName string          `json:"customer_name"`
    DeviceName   string          `json:"device_name"`
    GameTitle    string          `json:"game_title"`
    Status       string          `json:"session_status"`
    TotalAmount  decimal.Decimal `json:"total_amount"`
    At           time.Time       `json:"at"`
}

// Activities returns the most recently touched sessions.
func (r *DashboardRepo) Activities(ctx context.Context, branchID uint64, limit int) ([]Activity, error) {
    if limit <= 0 || limit > 100 {
        limit = 20
    }
    rows, err := r.db.QueryContext(ctx,
        `SELECT s.id, s.customer_name, d.name, g.title, s.session_status, s.total_amount, s.updated_at
         FROM sessions s
         JOIN devices d ON d.id = s.device_id
         JOIN games g ON g.id = s.game_id
         WHERE s.branch_id = ?
         ORDER BY s.updated_at DESC, s.id DESC
         LIMIT ?`, branchID, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []Activity{}
    for rows.Next() {
        var a Activity
        if err := rows.Scan(&a.SessionID, &a.CustomerName, &a.DeviceName, &a.GameTitle, &a.Status, &a.TotalAmount, &a.At); err != nil {
            return nil, err
        }
        out = append(out, a)
    }
    return out, rows.Err()
}
