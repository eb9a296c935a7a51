// Package service holds the session lifecycle (create, extend, end) and the
// background jobs that keep devices and sessions in step.  Each transition
// runs the pricing calculator and the device status change inside one
// database transaction.
package service

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "sync"
    "time"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "github.com/iliyamo/game-ground/internal/metrics"
    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/pricing"
    "github.com/iliyamo/game-ground/internal/queue"
    "github.com/iliyamo/game-ground/internal/repository"
)

// Booking slots are sold in half hours, and no session runs past a day.
const (
    slotMinutes       = 30
    maxSessionMinutes = 24 * 60
)

var hundred = decimal.NewFromInt(100)

// Transactor runs fn inside one database transaction.
type Transactor interface {
    InTx(ctx context.Context, fn func(tx repository.SessionTx) error) error
}

// SessionStore is the non-transactional side of session storage.
type SessionStore interface {
    GetByID(ctx context.Context, branchID, id uint64) (*model.Session, error)
    List(ctx context.Context, branchID uint64, f repository.SessionFilter) ([]model.Session, error)
    Active(ctx context.Context, branchID uint64) ([]model.Session, error)
    EndingBefore(ctx context.Context, branchID uint64, until time.Time) ([]model.Session, error)
    UpdateCustomer(ctx context.Context, branchID, id uint64, name, contact string) error
    DeleteCompleted(ctx context.Context, branchID, id uint64) error
}

// PricingSource returns the stored rate card of a branch.
type PricingSource interface {
    Get(ctx context.Context, branchID uint64) (model.Pricing, error)
}

// SnackPricer resolves current snack prices for quotes.
type SnackPricer interface {
    PricesByID(ctx context.Context, branchID uint64, ids []uint64) (map[uint64]decimal.Decimal, error)
}

// EventPublisher receives an event after its transition has committed.
type EventPublisher interface {
    Publish(ctx context.Context, ev queue.SessionEvent) error
}

// SessionDeps are the collaborators of SessionService.  Events, Metrics and
// Now are optional.
type SessionDeps struct {
    Tx       Transactor
    Sessions SessionStore
    Pricing  PricingSource
    Snacks   SnackPricer
    Events   EventPublisher
    Metrics  *metrics.Metrics
    Logger   *zap.Logger
    Now      func() time.Time
}

// SessionService implements the session lifecycle.
type SessionService struct {
    tx       Transactor
    sessions SessionStore
    pricing  PricingSource
    snacks   SnackPricer
    events   EventPublisher
    metrics  *metrics.Metrics
    logger   *zap.Logger
    now      func() time.Time

    publishing sync.WaitGroup
}

func NewSessionService(d SessionDeps) *SessionService {
    if d.Logger == nil {
        d.Logger = zap.NewNop()
    }
    if d.Now == nil {
        d.Now = time.Now
    }
    if d.Events == nil {
        d.Events = queue.LogPublisher{Logger: d.Logger}
    }
    return &SessionService{
        tx:       d.Tx,
        sessions: d.Sessions,
        pricing:  d.Pricing,
        snacks:   d.Snacks,
        events:   d.Events,
        metrics:  d.Metrics,
        logger:   d.Logger.Named("sessions"),
        now:      d.Now,
    }
}

// CreateInput is the booking form.  The numeric part is kept raw so the same
// body can be priced by Quote.
type CreateInput struct {
    CustomerName  string `json:"customer_name"`
    ContactNumber string `json:"contact_number"`
    GameID        uint64 `json:"game_id"`
    DeviceID      uint64 `json:"device_id"`
    pricing.RawDraft
}

// ExtendInput adds time and/or players to an open session.
type ExtendInput struct {
    ExtraMinutes      pricing.Field `json:"extra_minutes"`
    AdditionalPlayers pricing.Field `json:"additional_players"`
}

// UpdateInput edits the customer details of a session.
type UpdateInput struct {
    CustomerName  string `json:"customer_name"`
    ContactNumber string `json:"contact_number"`
}

// Quote prices a draft without touching any state.  A branch without a rate
// card, or a form that does not parse, yields a zero quote.
func (s *SessionService) Quote(ctx context.Context, branchID uint64, raw pricing.RawDraft) (pricing.Quote, error) {
    p, err := s.pricing.Get(ctx, branchID)
    if errors.Is(err, repository.ErrPricingNotFound) {
        return pricing.Quote{}, nil
    }
    if err != nil {
        return pricing.Quote{}, err
    }
    ids := make([]uint64, 0, len(raw.Snacks))
    for _, sn := range raw.Snacks {
        if sn.SnackID != 0 {
            ids = append(ids, sn.SnackID)
        }
    }
    prices, err := s.snacks.PricesByID(ctx, branchID, ids)
    if err != nil {
        return pricing.Quote{}, err
    }
    return pricing.QuoteRaw(catalogOf(p), raw, prices).Rounded(), nil
}

// Create validates the form, then in one transaction locks the device and
// snacks, decrements stock, stores the session and marks the device
// Occupied.
func (s *SessionService) Create(ctx context.Context, branchID, actorID uint64, in CreateInput) (*model.Session, error) {
    draft, err := validateCreate(in)
    if err != nil {
        s.metrics.Transition("create", "rejected")
        return nil, err
    }

    var created model.Session
    err = s.tx.InTx(ctx, func(tx repository.SessionTx) error {
        p, err := loadPricing(ctx, tx, branchID)
        if err != nil {
            return err
        }
        dev, err := tx.DeviceForUpdate(ctx, branchID, in.DeviceID)
        if err != nil {
            return err
        }
        if !dev.IsAvailable || dev.DeviceStatus != model.DeviceAvailable {
            return fmt.Errorf("%w: device %q is not available", repository.ErrConflict, dev.Name)
        }
        game, err := tx.GameForBranch(ctx, branchID, in.GameID)
        if err != nil {
            return err
        }
        if !game.IsAvailable {
            return fmt.Errorf("%w: game %q is not available", repository.ErrConflict, game.Title)
        }
        if draft.NumberOfPlayers > game.NumberOfPlayers {
            return invalid("number_of_players", fmt.Sprintf("exceeds the game's capacity of %d", game.NumberOfPlayers))
        }

        lines, prices, err := reserveSnacks(ctx, tx, branchID, pricing.MergeSnacks(draft.Snacks))
        if err != nil {
            return err
        }
        draft.Snacks = selections(lines)
        q := pricing.Calculate(catalogOf(p), draft, prices).Rounded()

        now := s.now().UTC().Truncate(time.Second)
        created = model.Session{
            BranchID:         branchID,
            CustomerName:     strings.TrimSpace(in.CustomerName),
            ContactNumber:    strings.TrimSpace(in.ContactNumber),
            GameID:           game.ID,
            GameTitle:        game.Title,
            DeviceID:         dev.ID,
            DeviceName:       dev.Name,
            SessionStart:     now,
            SessionEnd:       now.Add(time.Duration(draft.DurationMinutes) * time.Minute),
            DurationMinutes:  draft.DurationMinutes,
            NumberOfPlayers:  draft.NumberOfPlayers,
            Snacks:           lines,
            DiscountRate:     draft.DiscountRate,
            DiscountAmount:   draft.DiscountAmount,
            RewardPointsUsed: draft.RewardPointsUsed,
            TotalAmount:      q.TotalAmount,
            SessionStatus:    model.SessionActive,
            CreatedBy:        actorID,
        }
        if err := tx.InsertSession(ctx, &created); err != nil {
            return err
        }
        return tx.SetDeviceStatus(ctx, dev.ID, model.DeviceOccupied)
    })
    if err != nil {
        s.observe("create", err)
        return nil, err
    }
    s.metrics.Transition("create", "ok")
    s.logger.Info("session started",
        zap.Uint64("session_id", created.ID),
        zap.Uint64("branch_id", branchID),
        zap.Uint64("device_id", created.DeviceID),
        zap.String("total_amount", created.TotalAmount.StringFixed(2)))
    s.publish(queue.EventSessionStarted, created, actorID)
    return &created, nil
}

// Extend recomputes the whole bill for the new duration and head count,
// using the session's frozen snack prices and the branch's current rates.
func (s *SessionService) Extend(ctx context.Context, branchID, sessionID, actorID uint64, in ExtendInput) (*model.Session, error) {
    extra, players, err := validateExtend(in)
    if err != nil {
        s.metrics.Transition("extend", "rejected")
        return nil, err
    }

    var updated model.Session
    err = s.tx.InTx(ctx, func(tx repository.SessionTx) error {
        sess, err := lockSession(ctx, tx, branchID, sessionID)
        if err != nil {
            return err
        }
        if !sess.Open() {
            return fmt.Errorf("%w: session is already completed", repository.ErrConflict)
        }
        if sess.DurationMinutes+extra > maxSessionMinutes {
            return invalid("extra_minutes", fmt.Sprintf("a session may run at most %d minutes", maxSessionMinutes))
        }
        p, err := loadPricing(ctx, tx, branchID)
        if err != nil {
            return err
        }
        game, err := tx.GameForBranch(ctx, branchID, sess.GameID)
        if err != nil {
            return err
        }
        newPlayers := sess.NumberOfPlayers + players
        if newPlayers > game.NumberOfPlayers {
            return invalid("additional_players", fmt.Sprintf("total players would exceed the game's capacity of %d", game.NumberOfPlayers))
        }

        prices := make(map[uint64]decimal.Decimal, len(sess.Snacks))
        for _, l := range sess.Snacks {
            prices[l.SnackID] = l.UnitPrice
        }
        draft := pricing.Draft{
            NumberOfPlayers:  newPlayers,
            DurationMinutes:  sess.DurationMinutes + extra,
            Snacks:           selections(sess.Snacks),
            DiscountRate:     sess.DiscountRate,
            DiscountAmount:   sess.DiscountAmount,
            RewardPointsUsed: sess.RewardPointsUsed,
        }
        q := pricing.Calculate(catalogOf(p), draft, prices).Rounded()

        sess.SessionEnd = sess.SessionEnd.Add(time.Duration(extra) * time.Minute)
        sess.DurationMinutes = draft.DurationMinutes
        sess.NumberOfPlayers = newPlayers
        sess.TotalAmount = q.TotalAmount
        sess.SessionStatus = model.SessionExtended
        if err := tx.UpdateSession(ctx, &sess); err != nil {
            return err
        }
        if err := tx.SetDeviceStatus(ctx, sess.DeviceID, model.DeviceExtended); err != nil {
            return err
        }
        updated = sess
        return nil
    })
    if err != nil {
        s.observe("extend", err)
        return nil, err
    }
    s.metrics.Transition("extend", "ok")
    s.logger.Info("session extended",
        zap.Uint64("session_id", updated.ID),
        zap.Int("extra_minutes", extra),
        zap.Int("additional_players", players),
        zap.String("total_amount", updated.TotalAmount.StringFixed(2)))
    s.publish(queue.EventSessionExtended, updated, actorID)
    return &updated, nil
}

// End completes an open session now and frees its device.
func (s *SessionService) End(ctx context.Context, branchID, sessionID, actorID uint64) (*model.Session, error) {
    var ended model.Session
    err := s.tx.InTx(ctx, func(tx repository.SessionTx) error {
        sess, err := lockSession(ctx, tx, branchID, sessionID)
        if err != nil {
            return err
        }
        if !sess.Open() {
            return fmt.Errorf("%w: session is already completed", repository.ErrConflict)
        }
        if err := completeSession(ctx, tx, &sess, s.now()); err != nil {
            return err
        }
        ended = sess
        return nil
    })
    if err != nil {
        s.observe("end", err)
        return nil, err
    }
    s.metrics.Transition("end", "ok")
    s.logger.Info("session ended", zap.Uint64("session_id", ended.ID), zap.Uint64("device_id", ended.DeviceID))
    s.publish(queue.EventSessionEnded, ended, actorID)
    return &ended, nil
}

// Update edits customer name and contact number only.
func (s *SessionService) Update(ctx context.Context, branchID, sessionID uint64, in UpdateInput) (*model.Session, error) {
    if err := collect(nil, customerRules(in.CustomerName, in.ContactNumber)); err != nil {
        return nil, err
    }
    if err := s.sessions.UpdateCustomer(ctx, branchID, sessionID,
        strings.TrimSpace(in.CustomerName), strings.TrimSpace(in.ContactNumber)); err != nil {
        return nil, err
    }
    return s.sessions.GetByID(ctx, branchID, sessionID)
}

// Delete removes a completed session.
func (s *SessionService) Delete(ctx context.Context, branchID, sessionID uint64) error {
    return s.sessions.DeleteCompleted(ctx, branchID, sessionID)
}

func (s *SessionService) Get(ctx context.Context, branchID, sessionID uint64) (*model.Session, error) {
    return s.sessions.GetByID(ctx, branchID, sessionID)
}

func (s *SessionService) List(ctx context.Context, branchID uint64, f repository.SessionFilter) ([]model.Session, error) {
    return s.sessions.List(ctx, branchID, f)
}

func (s *SessionService) Active(ctx context.Context, branchID uint64) ([]model.Session, error) {
    return s.sessions.Active(ctx, branchID)
}

// EndingSoon lists open sessions ending within window, overdue ones
// included.
func (s *SessionService) EndingSoon(ctx context.Context, branchID uint64, window time.Duration) ([]model.Session, error) {
    return s.sessions.EndingBefore(ctx, branchID, s.now().UTC().Add(window))
}

// Wait blocks until every in-flight event publish has returned.
func (s *SessionService) Wait() { s.publishing.Wait() }

// publish hands the event to the broker off the request path.  Failures are
// logged and counted only.
func (s *SessionService) publish(typ string, sess model.Session, actorID uint64) {
    ev := queue.NewSessionEvent(typ, sess, actorID, s.now())
    s.publishing.Add(1)
    go func() {
        defer s.publishing.Done()
        ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        if err := s.events.Publish(ctx, ev); err != nil {
            s.metrics.PublishFailed(typ)
            s.logger.Warn("session event not published",
                zap.String("event_type", typ), zap.Uint64("session_id", sess.ID), zap.Error(err))
        }
    }()
}

func (s *SessionService) observe(kind string, err error) {
    if _, ok := AsValidation(err); ok || errors.Is(err, repository.ErrConflict) || repository.IsNotFound(err) {
        s.metrics.Transition(kind, "rejected")
        return
    }
    s.metrics.Transition(kind, "error")
    s.logger.Error("session transition failed", zap.String("transition", kind), zap.Error(err))
}

// lockSession locks the session's device and then the session, the same
// order Create, Reset and the reconciler lock in.
func lockSession(ctx context.Context, tx repository.SessionTx, branchID, sessionID uint64) (model.Session, error) {
    deviceID, err := tx.SessionDevice(ctx, branchID, sessionID)
    if err != nil {
        return model.Session{}, err
    }
    if _, err := tx.DeviceForUpdate(ctx, branchID, deviceID); err != nil {
        return model.Session{}, err
    }
    return tx.SessionForUpdate(ctx, branchID, sessionID)
}

// completeSession closes sess at now and frees its device.
func completeSession(ctx context.Context, tx repository.SessionTx, sess *model.Session, now time.Time) error {
    sess.SessionEnd = now.UTC().Truncate(time.Second)
    sess.SessionStatus = model.SessionCompleted
    if err := tx.UpdateSession(ctx, sess); err != nil {
        return err
    }
    return tx.SetDeviceStatus(ctx, sess.DeviceID, model.DeviceAvailable)
}

func loadPricing(ctx context.Context, tx repository.SessionTx, branchID uint64) (model.Pricing, error) {
    p, err := tx.PricingForBranch(ctx, branchID)
    if errors.Is(err, repository.ErrPricingNotFound) {
        return p, fmt.Errorf("%w: pricing is not configured for this branch", repository.ErrConflict)
    }
    return p, err
}

// reserveSnacks locks the requested snacks, takes the quantities out of
// stock and returns the session lines with their unit prices frozen.
func reserveSnacks(ctx context.Context, tx repository.SessionTx, branchID uint64, want []pricing.SnackSelection) ([]model.SessionSnack, map[uint64]decimal.Decimal, error) {
    prices := make(map[uint64]decimal.Decimal, len(want))
    if len(want) == 0 {
        return nil, prices, nil
    }
    ids := make([]uint64, len(want))
    for i, w := range want {
        ids[i] = w.SnackID
    }
    stock, err := tx.SnacksForUpdate(ctx, branchID, ids)
    if err != nil {
        return nil, nil, err
    }
    lines := make([]model.SessionSnack, 0, len(want))
    for _, w := range want {
        sn, ok := stock[w.SnackID]
        if !ok {
            return nil, nil, fmt.Errorf("%w: snack %d", repository.ErrSnackNotFound, w.SnackID)
        }
        if sn.Stock < w.Quantity {
            return nil, nil, fmt.Errorf("%w: only %d of %q left in stock", repository.ErrConflict, sn.Stock, sn.Name)
        }
        if err := tx.DecrementSnackStock(ctx, sn.ID, w.Quantity); err != nil {
            return nil, nil, err
        }
        prices[sn.ID] = sn.Price
        lines = append(lines, model.SessionSnack{SnackID: sn.ID, Name: sn.Name, Quantity: w.Quantity, UnitPrice: sn.Price})
    }
    return lines, prices, nil
}

func selections(lines []model.SessionSnack) []pricing.SnackSelection {
    out := make([]pricing.SnackSelection, len(lines))
    for i, l := range lines {
        out[i] = pricing.SnackSelection{SnackID: l.SnackID, Quantity: l.Quantity}
    }
    return out
}

func catalogOf(p model.Pricing) *pricing.Catalog {
    return &pricing.Catalog{
        SinglePlayerPrice:     p.SinglePlayerPrice,
        MultiPlayerPrice:      p.MultiPlayerPrice,
        OverThreePlayersPrice: p.OverThreePlayersPrice,
    }
}

func validateCreate(in CreateInput) (pricing.Draft, error) {
    draft, fields := in.RawDraft.Parse()

    errs := customerRules(in.CustomerName, in.ContactNumber)
    errs["game_id"] = validation.Validate(in.GameID, validation.Required.Error("select a game"))
    errs["device_id"] = validation.Validate(in.DeviceID, validation.Required.Error("select a device"))
    errs["number_of_players"] = validation.Validate(draft.NumberOfPlayers,
        validation.By(atLeast(1)))
    errs["duration_minutes"] = validation.Validate(draft.DurationMinutes,
        validation.By(atLeast(slotMinutes)),
        validation.By(atMost(maxSessionMinutes)),
        validation.By(multipleOf(slotMinutes)))
    errs["discount_rate"] = validation.Validate(draft.DiscountRate, validation.By(decimalRange(decimal.Zero, &hundred)))
    errs["discount_amount"] = validation.Validate(draft.DiscountAmount, validation.By(decimalRange(decimal.Zero, nil)))
    errs["reward_points_used"] = validation.Validate(draft.RewardPointsUsed, validation.By(decimalRange(decimal.Zero, nil)))
    for i, sn := range in.Snacks {
        if sn.SnackID == 0 {
            errs[fmt.Sprintf("snacks.%d.snack_id", i)] = errors.New("is required")
        }
        if q, err := sn.Quantity.Int(); err == nil && q < 0 {
            errs[fmt.Sprintf("snacks.%d.quantity", i)] = errors.New("must not be negative")
        }
    }
    if err := collect(fields, errs); err != nil {
        return draft, err
    }
    return draft, nil
}

func validateExtend(in ExtendInput) (extra, players int, err error) {
    fields := map[string]string{}
    extra, e1 := in.ExtraMinutes.Int()
    if e1 != nil {
        fields["extra_minutes"] = "must be a whole number"
    }
    players, e2 := in.AdditionalPlayers.Int()
    if e2 != nil {
        fields["additional_players"] = "must be a whole number"
    }
    errs := validation.Errors{
        "extra_minutes": validation.Validate(extra,
            validation.By(atLeast(0)),
            validation.By(atMost(maxSessionMinutes)),
            validation.By(multipleOf(slotMinutes))),
        "additional_players": validation.Validate(players, validation.By(atLeast(0))),
    }
    if err := collect(fields, errs); err != nil {
        return 0, 0, err
    }
    if extra == 0 && players == 0 {
        return 0, 0, invalid("extra_minutes", "add time or players to extend a session")
    }
    return extra, players, nil
}
