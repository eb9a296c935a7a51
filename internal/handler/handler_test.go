package handler

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/config"
    "github.com/iliyamo/game-ground/internal/middleware"
    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/pricing"
    "github.com/iliyamo/game-ground/internal/repository"
    "github.com/iliyamo/game-ground/internal/service"
    "github.com/iliyamo/game-ground/internal/utils"
)

// as stands in for JWTAuth.
func as(userID, branchID uint64, role string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            c.Set(middleware.CtxUserID, userID)
            c.Set(middleware.CtxBranchID, branchID)
            c.Set(middleware.CtxRole, role)
            return next(c)
        }
    }
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
    var req *http.Request
    if body == "" {
        req = httptest.NewRequest(method, target, nil)
    } else {
        req = httptest.NewRequest(method, target, strings.NewReader(body))
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestRespond(t *testing.T) {
    cases := []struct {
        name string
        err  error
        code int
        body string
    }{
        {"validation", &service.ValidationError{Fields: map[string]string{"device_id": "cannot be blank"}}, 400,
            `{"error":"validation failed","fields":{"device_id":"cannot be blank"}}`},
        {"not found", fmt.Errorf("load: %w", repository.ErrDeviceNotFound), 404, `{"error":"load: device not found"}`},
        {"forbidden", repository.ErrForbidden, 403, `{"error":"forbidden"}`},
        {"conflict", fmt.Errorf("%w: device is occupied", repository.ErrConflict), 409, `{"error":"device is occupied"}`},
        {"duplicate user", repository.ErrUsernameExists, 409, `{"error":"username already exists"}`},
        {"internal", errors.New("boom"), 500, `{"error":"internal error"}`},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            e := echo.New()
            c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
            rec := c.Response().Writer.(*httptest.ResponseRecorder)
            require.NoError(t, respond(c, zap.NewNop(), tc.err))
            assert.Equal(t, tc.code, rec.Code)
            assert.JSONEq(t, tc.body, rec.Body.String())
        })
    }
}

func TestParseID(t *testing.T) {
    for in, want := range map[string]bool{"1": true, "42": true, "0": false, "-3": false, "x": false, "": false} {
        _, ok := parseID(in)
        assert.Equal(t, want, ok, in)
    }
}

// ----- sessions -----

type fakeSessions struct {
    gotBranch, gotActor uint64
    gotCreate           service.CreateInput
    gotQuote            pricing.RawDraft
    gotFilter           repository.SessionFilter
    gotWindow           time.Duration
    err                 error
}

func (f *fakeSessions) Quote(_ context.Context, branchID uint64, raw pricing.RawDraft) (pricing.Quote, error) {
    f.gotBranch, f.gotQuote = branchID, raw
    return pricing.Quote{PricePerPlayer: decimal.NewFromInt(50), TotalAmount: decimal.RequireFromString("83.333")}, f.err
}

func (f *fakeSessions) Create(_ context.Context, branchID, actorID uint64, in service.CreateInput) (*model.Session, error) {
    f.gotBranch, f.gotActor, f.gotCreate = branchID, actorID, in
    if f.err != nil {
        return nil, f.err
    }
    return &model.Session{ID: 9, BranchID: branchID, DeviceID: in.DeviceID, SessionStatus: model.SessionActive}, nil
}

func (f *fakeSessions) Extend(_ context.Context, branchID, sessionID, actorID uint64, _ service.ExtendInput) (*model.Session, error) {
    f.gotBranch, f.gotActor = branchID, actorID
    if f.err != nil {
        return nil, f.err
    }
    return &model.Session{ID: sessionID, SessionStatus: model.SessionExtended}, nil
}

func (f *fakeSessions) End(_ context.Context, branchID, sessionID, actorID uint64) (*model.Session, error) {
    f.gotBranch, f.gotActor = branchID, actorID
    if f.err != nil {
        return nil, f.err
    }
    return &model.Session{ID: sessionID, SessionStatus: model.SessionCompleted}, nil
}

func (f *fakeSessions) Update(_ context.Context, _, sessionID uint64, in service.UpdateInput) (*model.Session, error) {
    return &model.Session{ID: sessionID, CustomerName: in.CustomerName}, f.err
}

func (f *fakeSessions) Delete(context.Context, uint64, uint64) error { return f.err }

func (f *fakeSessions) Get(_ context.Context, _, sessionID uint64) (*model.Session, error) {
    if f.err != nil {
        return nil, f.err
    }
    return &model.Session{ID: sessionID}, nil
}

func (f *fakeSessions) List(_ context.Context, _ uint64, fl repository.SessionFilter) ([]model.Session, error) {
    f.gotFilter = fl
    return []model.Session{}, f.err
}

func (f *fakeSessions) Active(context.Context, uint64) ([]model.Session, error) {
    return []model.Session{}, f.err
}

func (f *fakeSessions) EndingSoon(_ context.Context, _ uint64, window time.Duration) ([]model.Session, error) {
    f.gotWindow = window
    return []model.Session{}, f.err
}

func sessionServer(f *fakeSessions) *echo.Echo {
    e := echo.New()
    h := NewSessionHandler(f, zap.NewNop())
    g := e.Group("/v1/sessions", as(5, 2, model.RoleStaff))
    g.POST("/quote", h.Quote)
    g.POST("", h.Create)
    g.GET("", h.List)
    g.GET("/ending-soon", h.EndingSoon)
    g.GET("/:id", h.Get)
    g.POST("/:id/extend", h.Extend)
    g.POST("/:id/end", h.End)
    g.DELETE("/:id", h.Delete)
    return e
}

func TestSessionHandler_CreateUsesTokenScope(t *testing.T) {
    f := &fakeSessions{}
    rec := do(sessionServer(f), http.MethodPost, "/v1/sessions",
        `{"customer_name":"Sara","contact_number":"0912345678","game_id":3,"device_id":4,"number_of_players":"2","duration_minutes":60}`)

    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    assert.Equal(t, uint64(2), f.gotBranch)
    assert.Equal(t, uint64(5), f.gotActor)
    assert.Equal(t, uint64(4), f.gotCreate.DeviceID)
    n, err := f.gotCreate.NumberOfPlayers.Int()
    require.NoError(t, err)
    assert.Equal(t, 2, n)
}

func TestSessionHandler_QuoteRendersTwoDecimals(t *testing.T) {
    rec := do(sessionServer(&fakeSessions{}), http.MethodPost, "/v1/sessions/quote", `{"number_of_players":1,"duration_minutes":100}`)

    require.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), `"price_per_player":"50.00"`)
    assert.Contains(t, rec.Body.String(), `"total_amount":"83.33"`)
}

func TestSessionHandler_QuoteTakesLooseSnackIDs(t *testing.T) {
    f := &fakeSessions{}
    rec := do(sessionServer(f), http.MethodPost, "/v1/sessions/quote",
        `{"number_of_players":1,"duration_minutes":60,"snacks":[{"snack_id":"3","quantity":1},{"snack_id":"cola","quantity":1}]}`)

    require.Equal(t, http.StatusOK, rec.Code)
    require.Len(t, f.gotQuote.Snacks, 2)
    assert.Equal(t, uint64(3), f.gotQuote.Snacks[0].SnackID)
    assert.Zero(t, f.gotQuote.Snacks[1].SnackID)
}

func TestSessionHandler_ErrorMapping(t *testing.T) {
    f := &fakeSessions{err: fmt.Errorf("%w: session is already completed", repository.ErrConflict)}
    rec := do(sessionServer(f), http.MethodPost, "/v1/sessions/7/extend", `{"extra_minutes":30}`)
    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.JSONEq(t, `{"error":"session is already completed"}`, rec.Body.String())

    f.err = repository.ErrSessionNotFound
    assert.Equal(t, http.StatusNotFound, do(sessionServer(f), http.MethodPost, "/v1/sessions/7/end", "").Code)

    f.err = &service.ValidationError{Fields: map[string]string{"extra_minutes": "must be a multiple of 30"}}
    rec = do(sessionServer(f), http.MethodPost, "/v1/sessions/7/extend", `{"extra_minutes":20}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Contains(t, rec.Body.String(), "multiple of 30")
}

func TestSessionHandler_BadID(t *testing.T) {
    rec := do(sessionServer(&fakeSessions{}), http.MethodGet, "/v1/sessions/abc", "")
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Contains(t, rec.Body.String(), `"id"`)
}

func TestSessionHandler_ListFilters(t *testing.T) {
    f := &fakeSessions{}
    rec := do(sessionServer(f), http.MethodGet, "/v1/sessions?status=Completed&device_id=4&from=2024-05-01&limit=10", "")

    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, model.SessionCompleted, f.gotFilter.Status)
    assert.Equal(t, uint64(4), f.gotFilter.DeviceID)
    assert.Equal(t, 10, f.gotFilter.Limit)
    assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), f.gotFilter.From)
    assert.True(t, f.gotFilter.To.IsZero())

    rec = do(sessionServer(f), http.MethodGet, "/v1/sessions?status=Paused&device_id=0&to=yesterday", "")
    require.Equal(t, http.StatusBadRequest, rec.Code)
    for _, field := range []string{"status", "device_id", "to"} {
        assert.Contains(t, rec.Body.String(), `"`+field+`"`)
    }
}

func TestSessionHandler_EndingSoonWindow(t *testing.T) {
    f := &fakeSessions{}
    require.Equal(t, http.StatusOK, do(sessionServer(f), http.MethodGet, "/v1/sessions/ending-soon", "").Code)
    assert.Equal(t, 10*time.Minute, f.gotWindow)

    require.Equal(t, http.StatusOK, do(sessionServer(f), http.MethodGet, "/v1/sessions/ending-soon?minutes=25", "").Code)
    assert.Equal(t, 25*time.Minute, f.gotWindow)

    assert.Equal(t, http.StatusBadRequest, do(sessionServer(f), http.MethodGet, "/v1/sessions/ending-soon?minutes=-1", "").Code)
}

func TestSessionHandler_DeleteNoContent(t *testing.T) {
    assert.Equal(t, http.StatusNoContent, do(sessionServer(&fakeSessions{}), http.MethodDelete, "/v1/sessions/3", "").Code)
}

func TestSessionHandler_NoBranchInToken(t *testing.T) {
    e := echo.New()
    h := NewSessionHandler(&fakeSessions{}, nil)
    e.GET("/v1/sessions/active", h.Active, as(5, 0, model.RoleSuperAdmin))
    assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/v1/sessions/active", "").Code)
}

// ----- devices -----

type fakeDeviceOps struct {
    status    string
    err       error
    repaired  int
    closed    []model.Session
    gotActor  uint64
    gotBranch uint64
}

func (f *fakeDeviceOps) Reset(_ context.Context, branchID, _, actorID uint64) ([]model.Session, error) {
    f.gotBranch, f.gotActor = branchID, actorID
    return f.closed, f.err
}

func (f *fakeDeviceOps) SetStatus(_ context.Context, branchID, deviceID uint64, status string) (model.Device, error) {
    f.gotBranch, f.status = branchID, status
    if f.err != nil {
        return model.Device{}, f.err
    }
    return model.Device{ID: deviceID, BranchID: branchID, DeviceStatus: status}, nil
}

func (f *fakeDeviceOps) Reconcile(context.Context) (int, error) { return f.repaired, f.err }

func deviceServer(ops DeviceOps) *echo.Echo {
    e := echo.New()
    h := NewDeviceHandler(nil, nil, ops, zap.NewNop())
    g := e.Group("/v1/devices", as(5, 2, model.RoleAdmin))
    g.GET("", h.ListDevices)
    g.POST("", h.CreateDevice)
    g.PUT("/:id/status", h.SetStatus)
    g.POST("/:id/reset", h.Reset)
    g.POST("/reconcile", h.Reconcile)
    return e
}

func TestDeviceHandler_SetStatus(t *testing.T) {
    ops := &fakeDeviceOps{}
    rec := do(deviceServer(ops), http.MethodPut, "/v1/devices/4/status", `{"device_status":" Occupied "}`)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, model.DeviceOccupied, ops.status)
    assert.Equal(t, uint64(2), ops.gotBranch)

    ops.err = fmt.Errorf("%w: device has an open session", repository.ErrConflict)
    rec = do(deviceServer(ops), http.MethodPut, "/v1/devices/4/status", `{"device_status":"Available"}`)
    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.JSONEq(t, `{"error":"device has an open session"}`, rec.Body.String())
}

func TestDeviceHandler_Reset(t *testing.T) {
    ops := &fakeDeviceOps{closed: []model.Session{{ID: 11, SessionStatus: model.SessionCompleted}}}
    rec := do(deviceServer(ops), http.MethodPost, "/v1/devices/4/reset", "")

    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, uint64(5), ops.gotActor)
    assert.Contains(t, rec.Body.String(), `"device_status":"Available"`)
    assert.Contains(t, rec.Body.String(), `"id":11`)
}

func TestDeviceHandler_Reconcile(t *testing.T) {
    rec := do(deviceServer(&fakeDeviceOps{repaired: 3}), http.MethodPost, "/v1/devices/reconcile", "")
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"repaired":3}`, rec.Body.String())

    rec = do(deviceServer(&fakeDeviceOps{repaired: 1, err: errors.New("device 9: lock wait timeout")}), http.MethodPost, "/v1/devices/reconcile", "")
    assert.Equal(t, http.StatusInternalServerError, rec.Code)
    assert.Contains(t, rec.Body.String(), `"repaired":1`)
}

func TestDeviceHandler_Validation(t *testing.T) {
    rec := do(deviceServer(&fakeDeviceOps{}), http.MethodGet, "/v1/devices?status=Broken", "")
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    rec = do(deviceServer(&fakeDeviceOps{}), http.MethodPost, "/v1/devices", `{"name":"  ","screen_number":0}`)
    require.Equal(t, http.StatusBadRequest, rec.Code)
    for _, field := range []string{"category_id", "name", "screen_number"} {
        assert.Contains(t, rec.Body.String(), `"`+field+`"`)
    }
}

// ----- dashboard -----

func TestDashboardHandler_Stats(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    h := NewDashboardHandler(repository.NewDashboardRepo(db), nil)
    h.now = func() time.Time { return time.Date(2024, 5, 1, 15, 30, 0, 0, time.UTC) }
    midnight := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

    mock.ExpectQuery("FROM sessions WHERE branch_id").
        WithArgs(midnight, midnight, uint64(2)).
        WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c"}).AddRow(2, 7, "1250.50"))
    mock.ExpectQuery("FROM devices WHERE branch_id").
        WithArgs(uint64(2)).
        WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c"}).AddRow(6, 4, 2))
    mock.ExpectQuery("FROM snacks WHERE branch_id").
        WithArgs(uint64(2)).
        WillReturnRows(sqlmock.NewRows([]string{"a", "b"}).AddRow(1, 0))

    e := echo.New()
    e.GET("/stats", h.Stats, as(5, 2, model.RoleStoreManager))
    rec := do(e, http.MethodGet, "/stats", "")

    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
    assert.Contains(t, rec.Body.String(), `"sessions_today":7`)
    assert.Contains(t, rec.Body.String(), `"revenue_today":"1250.5"`)
    assert.Contains(t, rec.Body.String(), `"devices_busy":2`)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardHandler_PopularValidatesWindow(t *testing.T) {
    e := echo.New()
    h := NewDashboardHandler(nil, nil)
    e.GET("/popular", h.Popular, as(5, 2, model.RoleAdmin))
    assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/popular?days=0", "").Code)
    assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/popular?limit=500", "").Code)
}

// ----- auth -----

func TestAuthHandler_Login(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    hash, err := utils.HashPassword("s3cret!", 4)
    require.NoError(t, err)
    now := time.Now()
    userRows := func() *sqlmock.Rows {
        return sqlmock.NewRows([]string{"id", "username", "password_hash", "role", "is_active", "created_at", "updated_at"}).
            AddRow(5, "sara", hash, model.RoleStaff, true, now, now)
    }

    cfg := config.Config{JWTSecret: "k", AccessTTLMin: 15, RefreshTTLDays: 7}
    h := NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db), repository.NewBranchRepo(db), zap.NewNop())
    e := echo.New()
    e.POST("/login", h.Login)

    mock.ExpectQuery("FROM users WHERE username").WithArgs("sara").WillReturnRows(userRows())
    mock.ExpectQuery("FROM user_branches").WithArgs(uint64(5)).
        WillReturnRows(sqlmock.NewRows([]string{"branch_id"}).AddRow(3))
    mock.ExpectExec("INSERT INTO refresh_tokens").
        WithArgs(uint64(5), uint64(3), sqlmock.AnyArg(), sqlmock.AnyArg()).
        WillReturnResult(sqlmock.NewResult(1, 1))

    rec := do(e, http.MethodPost, "/login", `{"username":" Sara ","password":"s3cret!"}`)
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
    assert.Contains(t, rec.Body.String(), `"branch_id":3`)

    mock.ExpectQuery("FROM users WHERE username").WithArgs("sara").WillReturnRows(userRows())
    rec = do(e, http.MethodPost, "/login", `{"username":"sara","password":"wrong"}`)
    assert.Equal(t, http.StatusUnauthorized, rec.Code)

    mock.ExpectQuery("FROM users WHERE username").WithArgs("sara").WillReturnRows(userRows())
    mock.ExpectQuery("FROM user_branches").WithArgs(uint64(5), uint64(9)).
        WillReturnRows(sqlmock.NewRows([]string{"can_access"}))
    rec = do(e, http.MethodPost, "/login", `{"username":"sara","password":"s3cret!","branch_id":9}`)
    assert.Equal(t, http.StatusForbidden, rec.Code)

    assert.NoError(t, mock.ExpectationsWereMet())
}

func staffServer(t *testing.T, userID, branchID uint64, role string) (*echo.Echo, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() { _ = db.Close() })

    h := NewStaffHandler(repository.NewUserRepo(db), repository.NewBranchRepo(db), 4, zap.NewNop())
    e := echo.New()
    g := e.Group("/staff", as(userID, branchID, role))
    g.PUT("/:id", h.Update)
    g.DELETE("/:id", h.Delete)
    return e, mock
}

func staffRow(id uint64, role string) *sqlmock.Rows {
    now := time.Now()
    return sqlmock.NewRows([]string{"id", "username", "password_hash", "role", "is_active", "created_at", "updated_at"}).
        AddRow(id, "kiran", "x", role, true, now, now)
}

func TestStaffHandler_AdminCannotTouchOtherBranchStaff(t *testing.T) {
    e, mock := staffServer(t, 1, 1, model.RoleAdmin)

    mock.ExpectQuery("FROM users WHERE id").WithArgs(uint64(7)).WillReturnRows(staffRow(7, model.RoleStaff))
    mock.ExpectQuery("SELECT can_access FROM user_branches").WithArgs(uint64(7), uint64(1)).
        WillReturnRows(sqlmock.NewRows([]string{"can_access"}))
    rec := do(e, http.MethodPut, "/staff/7", `{"is_active":false}`)
    assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

    mock.ExpectQuery("FROM users WHERE id").WithArgs(uint64(7)).WillReturnRows(staffRow(7, model.RoleAdmin))
    mock.ExpectQuery("SELECT can_access FROM user_branches").WithArgs(uint64(7), uint64(1)).
        WillReturnRows(sqlmock.NewRows([]string{"can_access"}).AddRow(false))
    rec = do(e, http.MethodDelete, "/staff/7", "")
    assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

    // No UPDATE or DELETE reached the database.
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStaffHandler_AdminKeepsGrantsOutsideTheirBranches(t *testing.T) {
    e, mock := staffServer(t, 1, 1, model.RoleAdmin)

    mock.ExpectQuery("FROM users WHERE id").WithArgs(uint64(7)).WillReturnRows(staffRow(7, model.RoleStaff))
    mock.ExpectQuery("SELECT can_access FROM user_branches").WithArgs(uint64(7), uint64(1)).
        WillReturnRows(sqlmock.NewRows([]string{"can_access"}).AddRow(true))
    // The Admin may grant branch 3.
    mock.ExpectQuery("SELECT can_access FROM user_branches").WithArgs(uint64(1), uint64(3)).
        WillReturnRows(sqlmock.NewRows([]string{"can_access"}).AddRow(true))
    // Kiran holds 1 and 2; the Admin holds 1 but not 2.
    mock.ExpectQuery("SELECT branch_id FROM user_branches").WithArgs(uint64(7)).
        WillReturnRows(sqlmock.NewRows([]string{"branch_id"}).AddRow(1).AddRow(2))
    mock.ExpectQuery("SELECT can_access FROM user_branches").WithArgs(uint64(1), uint64(1)).
        WillReturnRows(sqlmock.NewRows([]string{"can_access"}).AddRow(true))
    mock.ExpectQuery("SELECT can_access FROM user_branches").WithArgs(uint64(1), uint64(2)).
        WillReturnRows(sqlmock.NewRows([]string{"can_access"}))

    mock.ExpectBegin()
    mock.ExpectQuery("SELECT id FROM users WHERE id = \\? FOR UPDATE").WithArgs(uint64(7)).
        WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
    mock.ExpectExec("UPDATE user_branches SET can_access = 0").WithArgs(uint64(7)).
        WillReturnResult(sqlmock.NewResult(0, 2))
    mock.ExpectExec("INSERT INTO user_branches").WithArgs(uint64(7), uint64(3), true).
        WillReturnResult(sqlmock.NewResult(1, 1))
    mock.ExpectExec("INSERT INTO user_branches").WithArgs(uint64(7), uint64(2), true).
        WillReturnResult(sqlmock.NewResult(1, 2))
    mock.ExpectCommit()

    mock.ExpectQuery("FROM users WHERE id").WithArgs(uint64(7)).WillReturnRows(staffRow(7, model.RoleStaff))
    mock.ExpectQuery("SELECT branch_id FROM user_branches").WithArgs(uint64(7)).
        WillReturnRows(sqlmock.NewRows([]string{"branch_id"}).AddRow(2).AddRow(3))

    rec := do(e, http.MethodPut, "/staff/7", `{"branch_ids":[3]}`)
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStaffHandler_SuperAdminSkipsBranchScope(t *testing.T) {
    e, mock := staffServer(t, 1, 1, model.RoleSuperAdmin)

    mock.ExpectQuery("FROM users WHERE id").WithArgs(uint64(7)).WillReturnRows(staffRow(7, model.RoleStaff))
    mock.ExpectExec("DELETE FROM users").WithArgs(uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))

    rec := do(e, http.MethodDelete, "/staff/7", "")
    assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPricingHandler_GetUnsetBranchIsNotFound(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    e := echo.New()
    e.GET("/pricing", NewPricingHandler(repository.NewPricingRepo(db), zap.NewNop()).Get, as(5, 2, model.RoleStaff))

    mock.ExpectQuery("FROM pricing WHERE branch_id").WithArgs(uint64(2)).
        WillReturnRows(sqlmock.NewRows([]string{"id"}))
    rec := do(e, http.MethodGet, "/pricing", "")
    assert.Equal(t, http.StatusNotFound, rec.Code)
    assert.Contains(t, rec.Body.String(), `"defaults":{`)
    assert.Contains(t, rec.Body.String(), `"is_default":true`)

    mock.ExpectQuery("FROM pricing WHERE branch_id").WithArgs(uint64(2)).
        WillReturnRows(sqlmock.NewRows([]string{"id", "branch_id", "single", "multi", "over", "updated_at"}).
            AddRow(1, 2, "150.00", "90.00", "75.00", time.Now()))
    rec = do(e, http.MethodGet, "/pricing", "")
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), `"is_default":false`)

    assert.NoError(t, mock.ExpectationsWereMet())
}
