package service

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "sync"
    "testing"
    "time"

    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/assert"

    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/queue"
    "github.com/iliyamo/game-ground/internal/repository"
)

var (
    errDeviceWrite  = errors.New("device write failed")
    errSessionWrite = errors.New("session write failed")
)

// fakeDB is an in-memory store whose InTx snapshots every table and
// restores the snapshot when fn fails, like a real rollback.
type fakeDB struct {
    mu sync.Mutex

    pricing  map[uint64]model.Pricing
    games    map[uint64]model.Game
    devices  map[uint64]model.Device
    snacks   map[uint64]model.Snack
    sessions map[uint64]model.Session
    nextID   uint64
    now      func() time.Time

    failDeviceWrite  bool
    failSessionWrite bool

    // locks records row locks in the order they were taken.
    locks []string
}

type fakeTables struct {
    pricing  map[uint64]model.Pricing
    games    map[uint64]model.Game
    devices  map[uint64]model.Device
    snacks   map[uint64]model.Snack
    sessions map[uint64]model.Session
    nextID   uint64
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
    out := make(map[K]V, len(m))
    for k, v := range m {
        out[k] = v
    }
    return out
}

func (f *fakeDB) snapshot() fakeTables {
    return fakeTables{
        pricing:  cloneMap(f.pricing),
        games:    cloneMap(f.games),
        devices:  cloneMap(f.devices),
        snacks:   cloneMap(f.snacks),
        sessions: cloneMap(f.sessions),
        nextID:   f.nextID,
    }
}

func (f *fakeDB) restore(t fakeTables) {
    f.pricing, f.games, f.devices, f.snacks, f.sessions, f.nextID =
        t.pricing, t.games, t.devices, t.snacks, t.sessions, t.nextID
}

// newFakeDB seeds branch 1 with default pricing, two devices, two games and
// two snacks.  Branch 2 has a device but no pricing.
func newFakeDB(now func() time.Time) *fakeDB {
    return &fakeDB{
        pricing: map[uint64]model.Pricing{1: model.DefaultPricing(1)},
        games: map[uint64]model.Game{
            3: {ID: 3, BranchID: 1, Title: "FIFA 25", NumberOfPlayers: 4, IsAvailable: true},
            4: {ID: 4, BranchID: 1, Title: "Retired Game", NumberOfPlayers: 2, IsAvailable: false},
            5: {ID: 5, BranchID: 2, Title: "Tekken 8", NumberOfPlayers: 2, IsAvailable: true},
        },
        devices: map[uint64]model.Device{
            10: {ID: 10, BranchID: 1, Name: "PS5 #1", IsAvailable: true, DeviceStatus: model.DeviceAvailable},
            11: {ID: 11, BranchID: 1, Name: "PS5 #2", IsAvailable: true, DeviceStatus: model.DeviceAvailable},
            12: {ID: 12, BranchID: 1, Name: "PC #1", IsAvailable: false, DeviceStatus: model.DeviceAvailable},
            20: {ID: 20, BranchID: 2, Name: "Xbox #1", IsAvailable: true, DeviceStatus: model.DeviceAvailable},
        },
        snacks: map[uint64]model.Snack{
            1: {ID: 1, BranchID: 1, Name: "Cola", Price: decimal.NewFromInt(50), Stock: 10},
            2: {ID: 2, BranchID: 1, Name: "Chips", Price: decimal.NewFromInt(30), Stock: 1},
        },
        sessions: map[uint64]model.Session{},
        nextID:   100,
        now:      now,
    }
}

func (f *fakeDB) InTx(ctx context.Context, fn func(tx repository.SessionTx) error) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    snap := f.snapshot()
    if err := fn(&fakeTx{f: f}); err != nil {
        f.restore(snap)
        return err
    }
    return nil
}

func (f *fakeDB) DriftedDevices(ctx context.Context) ([]repository.DeviceDrift, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    var out []repository.DeviceDrift
    for _, d := range f.devices {
        if want := expectedStatus(f.openFor(d.ID)); d.DeviceStatus != want {
            out = append(out, repository.DeviceDrift{DeviceID: d.ID, BranchID: d.BranchID, Status: d.DeviceStatus})
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
    return out, nil
}

func (f *fakeDB) openFor(deviceID uint64) []model.Session {
    var out []model.Session
    for _, s := range f.sessions {
        if s.DeviceID == deviceID && s.Open() {
            out = append(out, s)
        }
    }
    sort.Slice(out, func(i, j int) bool {
        if out[i].SessionStart.Equal(out[j].SessionStart) {
            return out[i].ID < out[j].ID
        }
        return out[i].SessionStart.Before(out[j].SessionStart)
    })
    return out
}

// SessionStore, PricingSource and SnackPricer.

func (f *fakeDB) GetByID(ctx context.Context, branchID, id uint64) (*model.Session, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    s, ok := f.sessions[id]
    if !ok || s.BranchID != branchID {
        return nil, repository.ErrSessionNotFound
    }
    return &s, nil
}

func (f *fakeDB) List(ctx context.Context, branchID uint64, _ repository.SessionFilter) ([]model.Session, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    var out []model.Session
    for _, s := range f.sessions {
        if s.BranchID == branchID {
            out = append(out, s)
        }
    }
    return out, nil
}

func (f *fakeDB) Active(ctx context.Context, branchID uint64) ([]model.Session, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    var out []model.Session
    for _, s := range f.sessions {
        if s.BranchID == branchID && s.Open() {
            out = append(out, s)
        }
    }
    return out, nil
}

func (f *fakeDB) EndingBefore(ctx context.Context, branchID uint64, until time.Time) ([]model.Session, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    var out []model.Session
    for _, s := range f.sessions {
        if s.Open() && !s.SessionEnd.After(until) && (branchID == 0 || s.BranchID == branchID) {
            out = append(out, s)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (f *fakeDB) UpdateCustomer(ctx context.Context, branchID, id uint64, name, contact string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    s, ok := f.sessions[id]
    if !ok || s.BranchID != branchID {
        return repository.ErrSessionNotFound
    }
    s.CustomerName, s.ContactNumber = name, contact
    f.sessions[id] = s
    return nil
}

func (f *fakeDB) DeleteCompleted(ctx context.Context, branchID, id uint64) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    s, ok := f.sessions[id]
    if !ok || s.BranchID != branchID {
        return repository.ErrSessionNotFound
    }
    if s.Open() {
        return fmt.Errorf("%w: only completed sessions can be deleted", repository.ErrConflict)
    }
    delete(f.sessions, id)
    return nil
}

func (f *fakeDB) Get(ctx context.Context, branchID uint64) (model.Pricing, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    p, ok := f.pricing[branchID]
    if !ok {
        return model.Pricing{}, repository.ErrPricingNotFound
    }
    return p, nil
}

func (f *fakeDB) PricesByID(ctx context.Context, branchID uint64, ids []uint64) (map[uint64]decimal.Decimal, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    out := map[uint64]decimal.Decimal{}
    for _, id := range ids {
        if s, ok := f.snacks[id]; ok && s.BranchID == branchID {
            out[id] = s.Price
        }
    }
    return out, nil
}

// fakeTx runs with fakeDB.mu held.
type fakeTx struct{ f *fakeDB }

func (t *fakeTx) PricingForBranch(ctx context.Context, branchID uint64) (model.Pricing, error) {
    p, ok := t.f.pricing[branchID]
    if !ok {
        return model.Pricing{}, repository.ErrPricingNotFound
    }
    return p, nil
}

func (t *fakeTx) GameForBranch(ctx context.Context, branchID, gameID uint64) (model.Game, error) {
    g, ok := t.f.games[gameID]
    if !ok || g.BranchID != branchID {
        return model.Game{}, repository.ErrGameNotFound
    }
    return g, nil
}

func (t *fakeTx) DeviceForUpdate(ctx context.Context, branchID, deviceID uint64) (model.Device, error) {
    t.f.locks = append(t.f.locks, fmt.Sprintf("device:%d", deviceID))
    d, ok := t.f.devices[deviceID]
    if !ok || d.BranchID != branchID {
        return model.Device{}, repository.ErrDeviceNotFound
    }
    return d, nil
}

func (t *fakeTx) SnacksForUpdate(ctx context.Context, branchID uint64, ids []uint64) (map[uint64]model.Snack, error) {
    out := map[uint64]model.Snack{}
    for _, id := range ids {
        if s, ok := t.f.snacks[id]; ok && s.BranchID == branchID {
            out[id] = s
        }
    }
    return out, nil
}

func (t *fakeTx) DecrementSnackStock(ctx context.Context, snackID uint64, qty int) error {
    s := t.f.snacks[snackID]
    if s.Stock < qty {
        return fmt.Errorf("%w: insufficient stock", repository.ErrConflict)
    }
    s.Stock -= qty
    t.f.snacks[snackID] = s
    return nil
}

func (t *fakeTx) InsertSession(ctx context.Context, s *model.Session) error {
    if t.f.failSessionWrite {
        return errSessionWrite
    }
    t.f.nextID++
    s.ID = t.f.nextID
    s.CreatedAt = t.f.now()
    s.UpdatedAt = s.CreatedAt
    t.f.sessions[s.ID] = *s
    return nil
}

func (t *fakeTx) SessionDevice(ctx context.Context, branchID, sessionID uint64) (uint64, error) {
    s, ok := t.f.sessions[sessionID]
    if !ok || s.BranchID != branchID {
        return 0, repository.ErrSessionNotFound
    }
    return s.DeviceID, nil
}

func (t *fakeTx) SessionForUpdate(ctx context.Context, branchID, sessionID uint64) (model.Session, error) {
    t.f.locks = append(t.f.locks, fmt.Sprintf("session:%d", sessionID))
    s, ok := t.f.sessions[sessionID]
    if !ok || s.BranchID != branchID {
        return model.Session{}, repository.ErrSessionNotFound
    }
    return s, nil
}

func (t *fakeTx) UpdateSession(ctx context.Context, s *model.Session) error {
    if t.f.failSessionWrite {
        return errSessionWrite
    }
    if _, ok := t.f.sessions[s.ID]; !ok {
        return repository.ErrSessionNotFound
    }
    t.f.sessions[s.ID] = *s
    return nil
}

func (t *fakeTx) OpenSessionsForDevice(ctx context.Context, deviceID uint64) ([]model.Session, error) {
    return t.f.openFor(deviceID), nil
}

func (t *fakeTx) SetDeviceStatus(ctx context.Context, deviceID uint64, status string) error {
    if t.f.failDeviceWrite {
        return errDeviceWrite
    }
    d, ok := t.f.devices[deviceID]
    if !ok {
        return repository.ErrDeviceNotFound
    }
    d.DeviceStatus = status
    t.f.devices[deviceID] = d
    return nil
}

// recordingPublisher keeps every event it is handed.
type recordingPublisher struct {
    mu     sync.Mutex
    events []queue.SessionEvent
    err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev queue.SessionEvent) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.events = append(p.events, ev)
    return p.err
}

func (p *recordingPublisher) types() []string {
    p.mu.Lock()
    defer p.mu.Unlock()
    out := make([]string, len(p.events))
    for i, e := range p.events {
        out[i] = e.Type
    }
    return out
}

// assertDevicePairing checks that every device is busy exactly while one
// open session references it, with the matching status.
func assertDevicePairing(t *testing.T, f *fakeDB) {
    t.Helper()
    f.mu.Lock()
    defer f.mu.Unlock()
    for _, d := range f.devices {
        open := f.openFor(d.ID)
        if !assert.LessOrEqual(t, len(open), 1, "device %d has several open sessions", d.ID) {
            continue
        }
        assert.Equal(t, expectedStatus(open), d.DeviceStatus, "device %d", d.ID)
    }
}
