package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/game-ground/internal/model"
)

// SessionRepo serves the session read models and the edits that never touch
// a device.  Lifecycle transitions live on Store.
type SessionRepo struct {
    db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `s.id, s.branch_id, s.customer_name, s.contact_number, s.game_id, g.title,
    s.device_id, d.name, s.session_start, s.session_end, s.duration_minutes, s.number_of_players,
    s.discount_rate, s.discount_amount, s.reward_points_used, s.total_amount, s.session_status,
    s.created_by, s.created_at, s.updated_at`

const sessionFrom = " FROM sessions s JOIN games g ON g.id = s.game_id JOIN devices d ON d.id = s.device_id"

const openStatuses = "('Active','Extended')"

func scanSession(row interface{ Scan(...any) error }, s *model.Session) error {
    return row.Scan(&s.ID, &s.BranchID, &s.CustomerName, &s.ContactNumber, &s.GameID, &s.GameTitle,
        &s.DeviceID, &s.DeviceName, &s.SessionStart, &s.SessionEnd, &s.DurationMinutes, &s.NumberOfPlayers,
        &s.DiscountRate, &s.DiscountAmount, &s.RewardPointsUsed, &s.TotalAmount, &s.SessionStatus,
        &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
}

func querySessions(ctx context.Context, q querier, query string, args ...any) ([]model.Session, error) {
    rows, err := q.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    out := []model.Session{}
    for rows.Next() {
        var s model.Session
        if err := scanSession(rows, &s); err != nil {
            rows.Close()
            return nil, err
        }
        out = append(out, s)
    }
    if err := rows.Err(); err != nil {
        rows.Close()
        return nil, err
    }
    rows.Close()
    if err := attachSnackLines(ctx, q, out); err != nil {
        return nil, err
    }
    return out, nil
}

// attachSnackLines loads the snack lines of all given sessions with one
// query.
func attachSnackLines(ctx context.Context, q querier, sessions []model.Session) error {
    if len(sessions) == 0 {
        return nil
    }
    idx := make(map[uint64]int, len(sessions))
    ids := make([]uint64, 0, len(sessions))
    for i := range sessions {
        sessions[i].Snacks = []model.SessionSnack{}
        idx[sessions[i].ID] = i
        ids = append(ids, sessions[i].ID)
    }
    rows, err := q.QueryContext(ctx,
        `SELECT ss.session_id, ss.snack_id, sn.name, ss.quantity, ss.unit_price
         FROM session_snacks ss JOIN snacks sn ON sn.id = ss.snack_id
         WHERE ss.session_id IN (`+placeholders(len(ids))+`)
         ORDER BY ss.session_id, ss.snack_id`, idArgs(ids)...)
    if err != nil {
        return err
    }
    defer rows.Close()
    for rows.Next() {
        var sid uint64
        var line model.SessionSnack
        if err := rows.Scan(&sid, &line.SnackID, &line.Name, &line.Quantity, &line.UnitPrice); err != nil {
            return err
        }
        if i, ok := idx[sid]; ok {
            sessions[i].Snacks = append(sessions[i].Snacks, line)
        }
    }
    return rows.Err()
}

func getSession(ctx context.Context, q querier, branchID, id uint64, lock bool) (model.Session, error) {
    query := "SELECT " + sessionColumns + sessionFrom + " WHERE s.id = ? AND s.branch_id = ?"
    if lock {
        query += " FOR UPDATE OF s"
    }
    var s model.Session
    err := scanSession(q.QueryRowContext(ctx, query, id, branchID), &s)
    if errors.Is(err, sql.ErrNoRows) {
        return s, ErrSessionNotFound
    }
    if err != nil {
        return s, err
    }
    one := []model.Session{s}
    if err := attachSnackLines(ctx, q, one); err != nil {
        return s, err
    }
    return one[0], nil
}

// GetByID returns one session with its snack lines.
func (r *SessionRepo) GetByID(ctx context.Context, branchID, id uint64) (*model.Session, error) {
    s, err := getSession(ctx, r.db, branchID, id, false)
    if err != nil {
        return nil, err
    }
    return &s, nil
}

// SessionFilter narrows List.  Zero values mean "any".
type SessionFilter struct {
    Status   string
    DeviceID uint64
    From     time.Time // session_start >= From
    To       time.Time // session_start < To
    Limit    int
    Offset   int
}

// List returns sessions newest first.
func (r *SessionRepo) List(ctx context.Context, branchID uint64, f SessionFilter) ([]model.Session, error) {
    q := "SELECT " + sessionColumns + sessionFrom + " WHERE s.branch_id = ?"
    args := []any{branchID}
    if f.Status != "" {
        q += " AND s.session_status = ?"
        args = append(args, f.Status)
    }
    if f.DeviceID != 0 {
        q += " AND s.device_id = ?"
        args = append(args, f.DeviceID)
    }
    if !f.From.IsZero() {
        q += " AND s.session_start >= ?"
        args = append(args, f.From)
    }
    if !f.To.IsZero() {
        q += " AND s.session_start < ?"
        args = append(args, f.To)
    }
    limit := f.Limit
    if limit <= 0 || limit > 500 {
        limit = 100
    }
    q += fmt.Sprintf(" ORDER BY s.session_start DESC, s.id DESC LIMIT %d OFFSET %d", limit, max(f.Offset, 0))
    return querySessions(ctx, r.db, q, args...)
}

// Active returns the open sessions of a branch ordered by end time.
func (r *SessionRepo) Active(ctx context.Context, branchID uint64) ([]model.Session, error) {
    return querySessions(ctx, r.db,
        "SELECT "+sessionColumns+sessionFrom+" WHERE s.branch_id = ? AND s.session_status IN "+openStatuses+
            " ORDER BY s.session_end, s.id", branchID)
}

// EndingBefore returns open sessions whose end is at or before until,
// including overdue ones.  branchID 0 scans every branch.
func (r *SessionRepo) EndingBefore(ctx context.Context, branchID uint64, until time.Time) ([]model.Session, error) {
    q := "SELECT " + sessionColumns + sessionFrom + " WHERE s.session_status IN " + openStatuses + " AND s.session_end <= ?"
    args := []any{until}
    if branchID != 0 {
        q += " AND s.branch_id = ?"
        args = append(args, branchID)
    }
    q += " ORDER BY s.session_end, s.id"
    return querySessions(ctx, r.db, q, args...)
}

// UpdateCustomer edits the customer details only.
func (r *SessionRepo) UpdateCustomer(ctx context.Context, branchID, id uint64, name, contact string) error {
    if _, err := getSession(ctx, r.db, branchID, id, false); err != nil {
        return err
    }
    _, err := r.db.ExecContext(ctx,
        "UPDATE sessions SET customer_name = ?, contact_number = ? WHERE id = ? AND branch_id = ?",
        name, contact, id, branchID)
    return err
}

// DeleteCompleted removes a finished session.  Open sessions are a
// conflict: deleting them would orphan their device.
func (r *SessionRepo) DeleteCompleted(ctx context.Context, branchID, id uint64) error {
    res, err := r.db.ExecContext(ctx,
        "DELETE FROM sessions WHERE id = ? AND branch_id = ? AND session_status = ?",
        id, branchID, model.SessionCompleted)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n > 0 {
        return nil
    }
    if _, err := getSession(ctx, r.db, branchID, id, false); err != nil {
        return err
    }
    return fmt.Errorf("%w: only completed sessions can be deleted", ErrConflict)
}
