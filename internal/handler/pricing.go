package handler

import (
    "errors"
    "net/http"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/repository"
)

type PricingHandler struct {
    Pricing *repository.PricingRepo
    Logger  *zap.Logger
}

func NewPricingHandler(p *repository.PricingRepo, logger *zap.Logger) *PricingHandler {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &PricingHandler{Pricing: p, Logger: logger.Named("pricing")}
}

type pricingReq struct {
    SinglePlayerPrice     *decimal.Decimal `json:"single_player_price"`
    MultiPlayerPrice      *decimal.Decimal `json:"multi_player_price"`
    OverThreePlayersPrice *decimal.Decimal `json:"over_three_players_price"`
}

// Get returns the branch rate card.  A branch that never saved one gets 404
// with the suggested defaults, since Quote and Create cannot charge them.
func (h *PricingHandler) Get(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    p, err := h.Pricing.Get(ctx, branchID)
    if errors.Is(err, repository.ErrPricingNotFound) {
        return c.JSON(http.StatusNotFound, echo.Map{
            "error":    "pricing is not configured for this branch",
            "defaults": model.DefaultPricing(branchID),
        })
    }
    if err != nil {
        return respond(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, p)
}

// Upsert saves the rate card.  Every price is required and must be
// positive.
func (h *PricingHandler) Upsert(c echo.Context) error {
    branchID, _, err := scope(c, false)
    if err != nil {
        return respond(c, h.Logger, err)
    }
    var req pricingReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    errs := validation.Errors{}
    check := func(field string, v *decimal.Decimal) {
        switch {
        case v == nil:
            errs[field] = validation.ErrRequired
        case !v.IsPositive():
            errs[field] = validation.NewError("validation_min", "must be greater than 0")
        }
    }
    check("single_player_price", req.SinglePlayerPrice)
    check("multi_player_price", req.MultiPlayerPrice)
    check("over_three_players_price", req.OverThreePlayersPrice)
    if err := errs.Filter(); err != nil {
        return respond(c, h.Logger, err)
    }

    ctx, cancel := reqCtx(c)
    defer cancel()
    p, err := h.Pricing.Upsert(ctx, model.Pricing{
        BranchID:              branchID,
        SinglePlayerPrice:     req.SinglePlayerPrice.Round(2),
        MultiPlayerPrice:      req.MultiPlayerPrice.Round(2),
        OverThreePlayersPrice: req.OverThreePlayersPrice.Round(2),
    })
    if err != nil {
        return respond(c, h.Logger, err)
    }
    h.Logger.Info("pricing saved", zap.Uint64("branch_id", branchID))
    return c.JSON(http.StatusOK, p)
}
