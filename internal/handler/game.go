package handler

import (
    "net/http"
    "strings"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/repository"
)

type GameHandler struct {
    Games  *repository.GameRepo
    Logger *zap.Logger
}

func NewGameHandler(g *repository.GameRepo, logger *zap.Logger) *GameHandler {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &GameHandler{Games: g, Logger: logger.Named("games")}
}

type gameReq struct {
    Title           string `json:"title"`
    NumberOfPlayers int    `json:"number_of_players"`
    Description     string `json:"description"`
    IsAvailable     *bool  `json:"is_available"`
}

func (r *gameReq) game(branchID uint64) (model.Game, error) {
    r.Title = strings.TrimSpace(r.Title)
    if err := (validation.Errors{
        "title":             validation.Validate(r.Title, validation.Required, validation.Length(1, 150)),
        "number_of_players": validation.Validate(r.NumberOfPlayers, validation.Required, validation.Min(1)),
        "description":       validation.Validate(r.Description, validation.Length(0, 1000)),
    }).Filter(); err != nil {
        return model.Game{}, err
    }
    avail := true
    if r.IsAvailable != nil {
        avail = *r.IsAvailable
    }
    return model.Game{
        BranchID:        branchID,
        Title:           r.Title,
        NumberOfPlayers: r.NumberOfPlayers,
        Description:     strings.TrimSpace(r.Description),
        IsAvailable:     avail,
    }, nil
}

// List supports ?available=true to hide games that cannot be booked.
func (h *GameHandler) List(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    out, err := h.Games.List(ctx, branchID, queryBool(c, "available"))
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, out)
}

func (h *GameHandler) Get(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    g, err := h.Games.GetByID(ctx, branchID, id)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, g)
}

func (h *GameHandler) Create(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var req gameReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    g, err := req.game(branchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Games.Create(ctx, &g); err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusCreated, g)
}

func (h *GameHandler) Update(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var req gameReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    g, err := req.game(branchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    g.ID = id
    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Games.Update(ctx, &g); err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, g)
}

func (h *GameHandler) Delete(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Games.Delete(ctx, branchID, id); err != nil {
        return respond(c, h.Logger, err)
    }
    return c.NoContent(http.StatusNoContent)
}
