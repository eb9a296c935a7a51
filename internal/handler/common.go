package handler

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "strings"
    "time"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/middleware"
    "github.com/iliyamo/game-ground/internal/repository"
    "github.com/iliyamo/game-ground/internal/service"
)

// requestTimeout bounds the database work of a single request.
const requestTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// getUserID returns the authenticated user from the context.
func getUserID(c echo.Context) (uint64, error) {
    if id := middleware.UserID(c); id != 0 {
        return id, nil
    }
    return 0, errors.New("invalid user_id in context")
}

// getBranchID returns the branch the access token is scoped to.
func getBranchID(c echo.Context) (uint64, error) {
    if id := middleware.BranchID(c); id != 0 {
        return id, nil
    }
    return 0, errors.New("invalid branch_id in context")
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
    return parseID(c.Param(name))
}

func parseID(v string) (uint64, bool) {
    n, err := strconv.ParseUint(v, 10, 64)
    return n, err == nil && n > 0
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func invalidFields(c echo.Context, fields map[string]string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fields})
}

// fieldsOf flattens ozzo errors into field -> message.
func fieldsOf(errs validation.Errors) map[string]string {
    out := make(map[string]string, len(errs))
    for k, e := range errs {
        if e != nil {
            out[k] = e.Error()
        }
    }
    return out
}

// respond translates service and repository errors into HTTP responses.
// Anything unrecognised is logged and reported as a generic 500.
func respond(c echo.Context, logger *zap.Logger, err error) error {
    if ve, ok := service.AsValidation(err); ok {
        return invalidFields(c, ve.Fields)
    }
    var ve validation.Errors
    if errors.As(err, &ve) {
        return invalidFields(c, fieldsOf(ve))
    }
    switch {
    case repository.IsNotFound(err):
        return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
    case errors.Is(err, repository.ErrForbidden):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    case errors.Is(err, repository.ErrConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": strings.TrimPrefix(err.Error(), repository.ErrConflict.Error()+": ")})
    case errors.Is(err, repository.ErrUsernameExists):
        return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
    }
    if logger != nil {
        logger.Error("request failed",
            zap.String("method", c.Request().Method),
            zap.String("route", c.Path()),
            zap.Error(err))
    }
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// queryBool reads an optional boolean query parameter.
func queryBool(c echo.Context, name string) bool {
    b, _ := strconv.ParseBool(c.QueryParam(name))
    return b
}

// queryInt reads an optional integer query parameter, returning def when it
// is missing or malformed.
func queryInt(c echo.Context, name string, def int) int {
    if n, err := strconv.Atoi(c.QueryParam(name)); err == nil {
        return n
    }
    return def
}
