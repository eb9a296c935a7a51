package repository

import (
    "context"
    "regexp"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/game-ground/internal/model"
)

func TestPricingRepo_GetMissing(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    mock.ExpectQuery(regexp.QuoteMeta("FROM pricing WHERE branch_id = ?")).
        WithArgs(3).
        WillReturnRows(sqlmock.NewRows([]string{"id"}))

    _, err = NewPricingRepo(db).Get(context.Background(), 3)

    assert.ErrorIs(t, err, ErrPricingNotFound)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPricingRepo_Get(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()
    now := time.Now().UTC()

    mock.ExpectQuery(regexp.QuoteMeta("FROM pricing WHERE branch_id = ?")).
        WithArgs(1).
        WillReturnRows(sqlmock.NewRows([]string{"id", "branch_id", "single", "multi", "over", "updated_at"}).
            AddRow(1, 1, "150.00", "90.00", "75.50", now))

    p, err := NewPricingRepo(db).Get(context.Background(), 1)

    require.NoError(t, err)
    assert.False(t, p.IsDefault)
    assert.Equal(t, "75.50", p.OverThreePlayersPrice.StringFixed(2))
}

func TestSnackRepo_PricesByID(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    mock.ExpectQuery(regexp.QuoteMeta("SELECT id, price FROM snacks WHERE branch_id = ? AND id IN (?,?)")).
        WithArgs(1, 1, 2).
        WillReturnRows(sqlmock.NewRows([]string{"id", "price"}).AddRow(1, "50.00"))

    prices, err := NewSnackRepo(db).PricesByID(context.Background(), 1, []uint64{1, 2})

    require.NoError(t, err)
    assert.Len(t, prices, 1)
    assert.Equal(t, "50", prices[1].String())
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnackRepo_PricesByIDEmpty(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    prices, err := NewSnackRepo(db).PricesByID(context.Background(), 1, nil)

    require.NoError(t, err)
    assert.Empty(t, prices)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_DeleteCompletedRejectsOpenSession(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE id = ? AND branch_id = ? AND session_status = ?")).
        WithArgs(5, 1, model.SessionCompleted).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(`WHERE s.id = \? AND s.branch_id = \?`).
        WithArgs(5, 1).
        WillReturnRows(sqlmock.NewRows(sessionCols).AddRow(sessionRow(5, model.SessionActive)...))
    mock.ExpectQuery(`FROM session_snacks`).
        WillReturnRows(sqlmock.NewRows([]string{"session_id", "snack_id", "name", "quantity", "unit_price"}))

    err = NewSessionRepo(db).DeleteCompleted(context.Background(), 1, 5)

    assert.ErrorIs(t, err, ErrConflict)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_DeleteCompletedMissing(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions")).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(`WHERE s.id = \? AND s.branch_id = \?`).
        WillReturnRows(sqlmock.NewRows(sessionCols))

    err = NewSessionRepo(db).DeleteCompleted(context.Background(), 1, 5)

    assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepo_EndingBeforeAllBranches(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()
    until := time.Date(2026, 3, 1, 19, 10, 0, 0, time.UTC)

    mock.ExpectQuery(`s.session_status IN \('Active','Extended'\) AND s.session_end <= \? ORDER BY`).
        WithArgs(until).
        WillReturnRows(sqlmock.NewRows(sessionCols).
            AddRow(sessionRow(5, model.SessionActive)...).
            AddRow(sessionRow(6, model.SessionExtended)...))
    mock.ExpectQuery(`FROM session_snacks`).
        WithArgs(5, 6).
        WillReturnRows(sqlmock.NewRows([]string{"session_id", "snack_id", "name", "quantity", "unit_price"}).
            AddRow(6, 2, "Chips", 1, "30.00"))

    got, err := NewSessionRepo(db).EndingBefore(context.Background(), 0, until)

    require.NoError(t, err)
    require.Len(t, got, 2)
    assert.Empty(t, got[0].Snacks)
    assert.Len(t, got[1].Snacks, 1)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBranchRepo_HasAccessWithoutGrant(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    mock.ExpectQuery(regexp.QuoteMeta("SELECT can_access FROM user_branches")).
        WithArgs(2, 8).
        WillReturnRows(sqlmock.NewRows([]string{"can_access"}))

    ok, err := NewBranchRepo(db).HasAccess(context.Background(), 2, 8)

    require.NoError(t, err)
    assert.False(t, ok)
}

func TestPlaceholders(t *testing.T) {
    assert.Equal(t, "", placeholders(0))
    assert.Equal(t, "?", placeholders(1))
    assert.Equal(t, "?,?,?", placeholders(3))
}
