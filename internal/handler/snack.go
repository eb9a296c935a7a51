package handler

import (
    "net/http"
    "strings"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/repository"
)

type SnackHandler struct {
    Snacks *repository.SnackRepo
    Logger *zap.Logger
}

func NewSnackHandler(s *repository.SnackRepo, logger *zap.Logger) *SnackHandler {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &SnackHandler{Snacks: s, Logger: logger.Named("snacks")}
}

type snackReq struct {
    Name              string          `json:"name"`
    Category          string          `json:"category"`
    Price             decimal.Decimal `json:"price"`
    Stock             int             `json:"stock"`
    LowStockThreshold *int            `json:"low_stock_threshold"`
    Description       string          `json:"description"`
}

func (r *snackReq) snack(branchID uint64) (model.Snack, error) {
    r.Name = strings.TrimSpace(r.Name)
    threshold := model.DefaultLowStockThreshold
    if r.LowStockThreshold != nil {
        threshold = *r.LowStockThreshold
    }
    errs := validation.Errors{
        "name":                validation.Validate(r.Name, validation.Required, validation.Length(1, 100)),
        "category":            validation.Validate(r.Category, validation.Required, validation.In(model.SnackEatables, model.SnackDrinks).Error("must be Eatables or Drinks")),
        "stock":               validation.Validate(r.Stock, validation.Min(0)),
        "low_stock_threshold": validation.Validate(threshold, validation.Min(0)),
    }
    if r.Price.IsNegative() {
        errs["price"] = validation.NewError("validation_min", "must be no less than 0")
    }
    if err := errs.Filter(); err != nil {
        return model.Snack{}, err
    }
    return model.Snack{
        BranchID:          branchID,
        Name:              r.Name,
        Category:          r.Category,
        Price:             r.Price.Round(2),
        Stock:             r.Stock,
        LowStockThreshold: threshold,
        Description:       strings.TrimSpace(r.Description),
    }, nil
}

// List returns snacks with their derived stock status.
func (h *SnackHandler) List(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    out, err := h.Snacks.List(ctx, branchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, out)
}

func (h *SnackHandler) Get(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    s, err := h.Snacks.GetByID(ctx, branchID, id)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, s)
}

func (h *SnackHandler) Create(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var req snackReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    s, err := req.snack(branchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Snacks.Create(ctx, &s); err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusCreated, s)
}

func (h *SnackHandler) Update(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var req snackReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    s, err := req.snack(branchID)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    s.ID = id
    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Snacks.Update(ctx, &s); err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, s)
}

func (h *SnackHandler) Delete(c echo.Context) error {
    branchID, id, err := scope(c, true)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    if err := h.Snacks.Delete(ctx, branchID, id); err != nil {
        return respond(c, h.Logger, err)
    }
    return c.NoContent(http.StatusNoContent)
}
