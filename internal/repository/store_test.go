package repository

import (
    "context"
    "database/sql/driver"
    "errors"
    "regexp"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/go-sql-driver/mysql"
    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/game-ground/internal/model"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, func() *Store) {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() { _ = db.Close() })
    return mock, func() *Store { return NewStore(db) }
}

var sessionCols = []string{
    "id", "branch_id", "customer_name", "contact_number", "game_id", "title",
    "device_id", "name", "session_start", "session_end", "duration_minutes", "number_of_players",
    "discount_rate", "discount_amount", "reward_points_used", "total_amount", "session_status",
    "created_by", "created_at", "updated_at",
}

func sessionRow(id uint64, status string) []driver.Value {
    start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
    return []driver.Value{
        id, 1, "Ravi Kumar", "9876543210", 3, "FIFA 25",
        4, "PS5 #1", start, start.Add(time.Hour), 60, 1,
        "0.00", "0.00", "0.00", "120.00", status,
        9, start, start,
    }
}

func TestStore_InTxCommits(t *testing.T) {
    mock, store := newMock(t)
    ctx := context.Background()

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta("UPDATE devices SET device_status = ? WHERE id = ?")).
        WithArgs(model.DeviceOccupied, 4).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    err := store().InTx(ctx, func(tx SessionTx) error {
        return tx.SetDeviceStatus(ctx, 4, model.DeviceOccupied)
    })

    require.NoError(t, err)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InTxRetriesDeadlockOnce(t *testing.T) {
    mock, store := newMock(t)
    ctx := context.Background()
    deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
    update := regexp.QuoteMeta("UPDATE devices SET device_status = ? WHERE id = ?")

    mock.ExpectBegin()
    mock.ExpectExec(update).WithArgs(model.DeviceAvailable, 4).WillReturnError(deadlock)
    mock.ExpectRollback()
    mock.ExpectBegin()
    mock.ExpectExec(update).WithArgs(model.DeviceAvailable, 4).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    calls := 0
    err := store().InTx(ctx, func(tx SessionTx) error {
        calls++
        return tx.SetDeviceStatus(ctx, 4, model.DeviceAvailable)
    })

    require.NoError(t, err)
    assert.Equal(t, 2, calls)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InTxGivesUpAfterSecondDeadlock(t *testing.T) {
    mock, store := newMock(t)
    ctx := context.Background()
    deadlock := &mysql.MySQLError{Number: 1213}

    for i := 0; i < 2; i++ {
        mock.ExpectBegin()
        mock.ExpectExec(regexp.QuoteMeta("UPDATE devices SET device_status")).WillReturnError(deadlock)
        mock.ExpectRollback()
    }

    err := store().InTx(ctx, func(tx SessionTx) error {
        return tx.SetDeviceStatus(ctx, 4, model.DeviceAvailable)
    })

    var me *mysql.MySQLError
    require.ErrorAs(t, err, &me)
    assert.Equal(t, uint16(1213), me.Number)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SessionDevice(t *testing.T) {
    mock, store := newMock(t)
    ctx := context.Background()

    mock.ExpectBegin()
    mock.ExpectQuery(regexp.QuoteMeta("SELECT device_id FROM sessions WHERE id = ? AND branch_id = ?")).
        WithArgs(5, 1).WillReturnRows(sqlmock.NewRows([]string{"device_id"}).AddRow(4))
    mock.ExpectQuery(regexp.QuoteMeta("SELECT device_id FROM sessions")).
        WithArgs(6, 1).WillReturnRows(sqlmock.NewRows([]string{"device_id"}))
    mock.ExpectRollback()

    err := store().InTx(ctx, func(tx SessionTx) error {
        id, err := tx.SessionDevice(ctx, 1, 5)
        require.NoError(t, err)
        assert.Equal(t, uint64(4), id)
        _, err = tx.SessionDevice(ctx, 1, 6)
        return err
    })

    assert.ErrorIs(t, err, ErrSessionNotFound)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InTxRollsBackOnError(t *testing.T) {
    mock, store := newMock(t)
    ctx := context.Background()
    boom := errors.New("device write failed")

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET session_end")).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(regexp.QuoteMeta("UPDATE devices SET device_status")).
        WillReturnError(boom)
    mock.ExpectRollback()

    err := store().InTx(ctx, func(tx SessionTx) error {
        s := &model.Session{ID: 1, SessionStatus: model.SessionCompleted, TotalAmount: decimal.NewFromInt(120)}
        if err := tx.UpdateSession(ctx, s); err != nil {
            return err
        }
        return tx.SetDeviceStatus(ctx, 4, model.DeviceAvailable)
    })

    assert.ErrorIs(t, err, boom)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SetDeviceStatusRejectsUnknownStatus(t *testing.T) {
    mock, store := newMock(t)
    ctx := context.Background()

    mock.ExpectBegin()
    mock.ExpectRollback()

    err := store().InTx(ctx, func(tx SessionTx) error {
        return tx.SetDeviceStatus(ctx, 4, "Broken")
    })

    assert.Error(t, err)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DecrementSnackStockInsufficient(t *testing.T) {
    mock, store := newMock(t)
    ctx := context.Background()

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta("UPDATE snacks SET stock = stock - ? WHERE id = ? AND stock >= ?")).
        WithArgs(3, 7, 3).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectRollback()

    err := store().InTx(ctx, func(tx SessionTx) error {
        return tx.DecrementSnackStock(ctx, 7, 3)
    })

    assert.ErrorIs(t, err, ErrConflict)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeviceForUpdateNotFound(t *testing.T) {
    mock, store := newMock(t)
    ctx := context.Background()

    mock.ExpectBegin()
    mock.ExpectQuery(`FROM devices d JOIN device_categories c .* FOR UPDATE OF d`).
        WithArgs(12, 1).
        WillReturnRows(sqlmock.NewRows([]string{"id"}))
    mock.ExpectRollback()

    err := store().InTx(ctx, func(tx SessionTx) error {
        _, err := tx.DeviceForUpdate(ctx, 1, 12)
        return err
    })

    assert.ErrorIs(t, err, ErrDeviceNotFound)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertSessionWritesSnackLines(t *testing.T) {
    mock, store := newMock(t)
    ctx := context.Background()
    now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
        WillReturnResult(sqlmock.NewResult(41, 1))
    mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_snacks (session_id, snack_id, quantity, unit_price) VALUES (?, ?, ?, ?),(?, ?, ?, ?)")).
        WithArgs(41, 1, 2, sqlmock.AnyArg(), 41, 2, 1, sqlmock.AnyArg()).
        WillReturnResult(sqlmock.NewResult(0, 2))
    mock.ExpectQuery(regexp.QuoteMeta("SELECT created_at, updated_at FROM sessions WHERE id = ?")).
        WithArgs(41).
        WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
    mock.ExpectCommit()

    s := &model.Session{
        BranchID: 1,
        Snacks: []model.SessionSnack{
            {SnackID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
            {SnackID: 2, Quantity: 1, UnitPrice: decimal.NewFromInt(30)},
        },
    }
    err := store().InTx(ctx, func(tx SessionTx) error { return tx.InsertSession(ctx, s) })

    require.NoError(t, err)
    assert.Equal(t, uint64(41), s.ID)
    assert.Equal(t, now, s.CreatedAt)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SessionForUpdateLoadsSnackLines(t *testing.T) {
    mock, store := newMock(t)
    ctx := context.Background()

    mock.ExpectBegin()
    mock.ExpectQuery(`FROM sessions s JOIN games g .* WHERE s.id = \? AND s.branch_id = \? FOR UPDATE OF s`).
        WithArgs(5, 1).
        WillReturnRows(sqlmock.NewRows(sessionCols).AddRow(sessionRow(5, model.SessionActive)...))
    mock.ExpectQuery(`FROM session_snacks ss JOIN snacks sn`).
        WithArgs(5).
        WillReturnRows(sqlmock.NewRows([]string{"session_id", "snack_id", "name", "quantity", "unit_price"}).
            AddRow(5, 1, "Cola", 2, "40.00"))
    mock.ExpectCommit()

    var got model.Session
    err := store().InTx(ctx, func(tx SessionTx) error {
        var err error
        got, err = tx.SessionForUpdate(ctx, 1, 5)
        return err
    })

    require.NoError(t, err)
    assert.Equal(t, model.SessionActive, got.SessionStatus)
    assert.Equal(t, "120.00", got.TotalAmount.StringFixed(2))
    require.Len(t, got.Snacks, 1)
    assert.Equal(t, "Cola", got.Snacks[0].Name)
    assert.Equal(t, "40", got.Snacks[0].UnitPrice.String())
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DriftedDevices(t *testing.T) {
    mock, store := newMock(t)

    mock.ExpectQuery(`SELECT DISTINCT d.id, d.branch_id, d.device_status`).
        WillReturnRows(sqlmock.NewRows([]string{"id", "branch_id", "device_status"}).
            AddRow(4, 1, model.DeviceOccupied).
            AddRow(9, 2, model.DeviceAvailable))

    got, err := store().DriftedDevices(context.Background())

    require.NoError(t, err)
    assert.Equal(t, []DeviceDrift{
        {DeviceID: 4, BranchID: 1, Status: model.DeviceOccupied},
        {DeviceID: 9, BranchID: 2, Status: model.DeviceAvailable},
    }, got)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictOn(t *testing.T) {
    dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
    ref := &mysql.MySQLError{Number: 1451, Message: "Cannot delete or update a parent row"}
    other := errors.New("connection reset")

    err := conflictOn(dup, "name already exists", "")
    assert.ErrorIs(t, err, ErrConflict)
    assert.Contains(t, err.Error(), "name already exists")

    assert.ErrorIs(t, conflictOn(ref, "", "still referenced"), ErrConflict)
    assert.Equal(t, other, conflictOn(other, "a", "b"))
    assert.NoError(t, conflictOn(nil, "a", "b"))
}

func TestIsNotFound(t *testing.T) {
    assert.True(t, IsNotFound(ErrSnackNotFound))
    assert.True(t, IsNotFound(errors.Join(errors.New("ctx"), ErrSessionNotFound)))
    assert.False(t, IsNotFound(ErrConflict))
}
