// Package router defines how HTTP routes are registered for the API.
package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/game-ground/internal/handler"
    "github.com/iliyamo/game-ground/internal/metrics"
    "github.com/iliyamo/game-ground/internal/middleware"
    "github.com/iliyamo/game-ground/internal/model"
)

// Handlers bundles every HTTP handler of the API.
type Handlers struct {
    Health    *handler.HealthHandler
    Auth      *handler.AuthHandler
    Branches  *handler.BranchHandler
    Staff     *handler.StaffHandler
    Devices   *handler.DeviceHandler
    Games     *handler.GameHandler
    Snacks    *handler.SnackHandler
    Pricing   *handler.PricingHandler
    Sessions  *handler.SessionHandler
    Dashboard *handler.DashboardHandler
    Notify    *handler.NotifyHandler
}

// Options carries the route-level middleware built in main.  A nil Cache,
// RateLimit or Idempotency disables that layer.
type Options struct {
    JWTSecret   string
    Cache       *middleware.ResponseCache
    RateLimit   echo.MiddlewareFunc
    Idempotency echo.MiddlewareFunc
    Metrics     *metrics.Metrics
}

// RegisterRoutes registers the routes that need no authentication: the
// health check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler, m *metrics.Metrics) {
    e.GET("/healthz", h.Health)
    if m != nil {
        e.GET("/metrics", echo.WrapHandler(m.Handler()))
    }
}

// RegisterAuth registers token issue and rotation under /v1/auth and the
// profile endpoints that only need a valid access token.  Anonymous calls are
// limited per IP and route.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, o Options) {
    o = withDefaults(o)
    g := e.Group("/v1/auth", o.RateLimit)
    g.POST("/login", a.Login)
    g.POST("/refresh", a.Refresh)
    g.POST("/refresh-access", a.RefreshAccess)
    // Logout accepts either a refresh token in the body or a bearer token,
    // so it stays outside the JWT group.
    g.POST("/logout", a.Logout)

    me := authed(e, "/me", o)
    me.GET("", a.Me)
    sw := authed(e, "/auth/switch-branch", o)
    sw.POST("", a.SwitchBranch)
}

// Register wires every route of the API.
func Register(e *echo.Echo, h Handlers, o Options) {
    RegisterRoutes(e, h.Health, o.Metrics)
    RegisterAuth(e, h.Auth, o)
    RegisterBranches(e, h, o)
    RegisterCatalog(e, h, o)
    RegisterSessions(e, h, o)
}

func noop(next echo.HandlerFunc) echo.HandlerFunc { return next }

func withDefaults(o Options) Options {
    if o.Idempotency == nil {
        o.Idempotency = noop
    }
    if o.RateLimit == nil {
        o.RateLimit = noop
    }
    return o
}

// authed returns a /v1 sub-group that requires a signed-in user with one of
// the known roles.  The rate limiter runs after JWTAuth so buckets are keyed
// by branch and user.
func authed(e *echo.Echo, prefix string, o Options, m ...echo.MiddlewareFunc) *echo.Group {
    o = withDefaults(o)
    base := []echo.MiddlewareFunc{middleware.JWTAuth(o.JWTSecret), middleware.RequireRole(model.AllRoles...), o.RateLimit}
    return e.Group("/v1"+prefix, append(base, m...)...)
}

// scoped is authed plus a mandatory branch claim.  Successful writes under
// it invalidate the branch's cached reads.
func scoped(e *echo.Echo, prefix string, o Options, m ...echo.MiddlewareFunc) *echo.Group {
    base := []echo.MiddlewareFunc{middleware.RequireBranch(), o.Cache.Invalidate()}
    return authed(e, prefix, o, append(base, m...)...)
}

// RegisterBranches covers branch and staff administration.
func RegisterBranches(e *echo.Echo, h Handlers, o Options) {
    b := authed(e, "/branches", o)
    b.GET("", h.Branches.List)
    b.POST("", h.Branches.Create, middleware.RequireRole(model.RoleSuperAdmin))

    s := scoped(e, "/staff", o, middleware.RequireRole(model.RoleSuperAdmin, model.RoleAdmin))
    s.GET("", h.Staff.List)
    s.POST("", h.Staff.Create)
    s.PUT("/:id", h.Staff.Update)
    s.DELETE("/:id", h.Staff.Delete)
}

// RegisterCatalog covers devices, games, snacks and pricing.  Reads are open
// to every role and cached per branch; writes need a manager.
func RegisterCatalog(e *echo.Echo, h Handlers, o Options) {
    o = withDefaults(o)
    read := o.Cache.Read()
    managers := middleware.RequireRole(model.Managers...)
    admins := middleware.RequireRole(model.RoleSuperAdmin, model.RoleAdmin)

    cats := scoped(e, "/device-categories", o, managers)
    cats.GET("", h.Devices.ListCategories, read)
    cats.POST("", h.Devices.CreateCategory)
    cats.PUT("/:id", h.Devices.UpdateCategory)
    cats.DELETE("/:id", h.Devices.DeleteCategory)

    dev := scoped(e, "/devices", o)
    dev.GET("", h.Devices.ListDevices, read)
    dev.GET("/:id", h.Devices.GetDevice, read)
    dev.POST("", h.Devices.CreateDevice, managers)
    dev.PUT("/:id", h.Devices.UpdateDevice, managers)
    dev.DELETE("/:id", h.Devices.DeleteDevice, managers)
    dev.PUT("/:id/status", h.Devices.SetStatus, managers)
    dev.POST("/:id/reset", h.Devices.Reset, managers)
    dev.POST("/reconcile", h.Devices.Reconcile, managers)

    games := scoped(e, "/games", o)
    games.GET("", h.Games.List, read)
    games.GET("/:id", h.Games.Get, read)
    games.POST("", h.Games.Create, managers)
    games.PUT("/:id", h.Games.Update, managers)
    games.DELETE("/:id", h.Games.Delete, managers)

    snacks := scoped(e, "/snacks", o)
    snacks.GET("", h.Snacks.List, read)
    snacks.GET("/:id", h.Snacks.Get, read)
    snacks.POST("", h.Snacks.Create, managers)
    snacks.PUT("/:id", h.Snacks.Update, managers)
    snacks.DELETE("/:id", h.Snacks.Delete, managers)

    p := scoped(e, "/pricing", o)
    p.GET("", h.Pricing.Get, read)
    p.PUT("", h.Pricing.Upsert, admins)
}

// RegisterSessions covers the session lifecycle, the dashboard and the
// live notification feed.  Mutations honour Idempotency-Key.
func RegisterSessions(e *echo.Echo, h Handlers, o Options) {
    o = withDefaults(o)
    idem := o.Idempotency

    // Quoting writes nothing, so it must not invalidate cached reads.
    q := authed(e, "/sessions/quote", o, middleware.RequireBranch())
    q.POST("", h.Sessions.Quote)

    s := scoped(e, "/sessions", o)
    s.GET("", h.Sessions.List)
    s.GET("/active", h.Sessions.Active)
    s.GET("/ending-soon", h.Sessions.EndingSoon)
    s.GET("/:id", h.Sessions.Get)
    s.POST("", h.Sessions.Create, idem)
    s.POST("/:id/extend", h.Sessions.Extend, idem)
    s.POST("/:id/end", h.Sessions.End, idem)
    s.PUT("/:id", h.Sessions.Update, idem)
    s.DELETE("/:id", h.Sessions.Delete, middleware.RequireRole(model.RoleSuperAdmin, model.RoleAdmin), idem)

    d := scoped(e, "/dashboard", o, middleware.RequireRole(model.Managers...))
    d.GET("/stats", h.Dashboard.Stats)
    d.GET("/popular", h.Dashboard.Popular)
    d.GET("/activities", h.Dashboard.Activities)

    n := scoped(e, "/notifications", o)
    n.GET("/ws", h.Notify.Subscribe)
}
