// Package seed loads a YAML description of branches, staff and catalog and
// writes it through the repositories.  It is meant for fresh installs and
// demo data; branches that already exist are left untouched.
package seed

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "os"
    "strings"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"
    "gopkg.in/yaml.v3"

    "github.com/iliyamo/game-ground/internal/model"
    "github.com/iliyamo/game-ground/internal/repository"
)

// File is the root of a seed document.
type File struct {
    Admin    Account  `yaml:"admin"`
    Branches []Branch `yaml:"branches"`
}

// Account is a user to create.  Role is ignored for the admin account,
// which is always a SuperAdmin.
type Account struct {
    Username string `yaml:"username"`
    Password string `yaml:"password"`
    Role     string `yaml:"role"`
}

type Branch struct {
    Name       string     `yaml:"name"`
    Location   string     `yaml:"location"`
    Pricing    *Pricing   `yaml:"pricing"`
    Categories []Category `yaml:"categories"`
    Games      []Game     `yaml:"games"`
    Snacks     []Snack    `yaml:"snacks"`
    Staff      []Account  `yaml:"staff"`
}

// Pricing values are strings so that "120.50" keeps its exact decimal value.
type Pricing struct {
    SinglePlayer     string `yaml:"single_player"`
    MultiPlayer      string `yaml:"multi_player"`
    OverThreePlayers string `yaml:"over_three_players"`
}

type Category struct {
    Name    string   `yaml:"name"`
    Devices []Device `yaml:"devices"`
}

type Device struct {
    Name        string `yaml:"name"`
    Screen      int    `yaml:"screen"`
    Controllers int    `yaml:"controllers"`
}

type Game struct {
    Title       string `yaml:"title"`
    Players     int    `yaml:"players"`
    Description string `yaml:"description"`
}

type Snack struct {
    Name              string `yaml:"name"`
    Category          string `yaml:"category"`
    Price             string `yaml:"price"`
    Stock             int    `yaml:"stock"`
    LowStockThreshold *int   `yaml:"low_stock_threshold"`
}

// Load reads and validates a seed file.
func Load(path string) (File, error) {
    data, err := os.ReadFile(path)
    if err != nil {
        return File{}, fmt.Errorf("seed: read file: %w", err)
    }
    return Parse(data)
}

// Parse decodes and validates a seed document.
func Parse(data []byte) (File, error) {
    var f File
    dec := yaml.NewDecoder(bytes.NewReader(data))
    dec.KnownFields(true)
    if err := dec.Decode(&f); err != nil {
        return File{}, fmt.Errorf("seed: decode yaml: %w", err)
    }
    if err := f.Validate(); err != nil {
        return File{}, fmt.Errorf("seed: %w", err)
    }
    return f, nil
}

func amount(positive bool) validation.RuleFunc {
    return func(value any) error {
        s, _ := value.(string)
        d, err := decimal.NewFromString(strings.TrimSpace(s))
        switch {
        case err != nil:
            return errors.New("must be a decimal number")
        case positive && !d.IsPositive():
            return errors.New("must be greater than 0")
        case d.IsNegative():
            return errors.New("must be no less than 0")
        }
        return nil
    }
}

func (a Account) validate(admin bool) error {
    rules := []*validation.FieldRules{
        validation.Field(&a.Username, validation.Required, validation.Length(3, 50)),
        validation.Field(&a.Password, validation.Required, validation.Length(8, 72)),
    }
    if !admin {
        rules = append(rules, validation.Field(&a.Role, validation.Required,
            validation.In(model.RoleAdmin, model.RoleStoreManager, model.RoleStaff)))
    }
    return validation.ValidateStruct(&a, rules...)
}

// Validate checks the whole document and reports the first bad entry with
// its position.
func (f File) Validate() error {
    if err := f.Admin.validate(true); err != nil {
        return fmt.Errorf("admin: %w", err)
    }
    if len(f.Branches) == 0 {
        return errors.New("at least one branch is required")
    }
    for i, b := range f.Branches {
        at := fmt.Sprintf("branches[%d]", i)
        if err := validation.Validate(b.Name, validation.Required, validation.Length(1, 100)); err != nil {
            return fmt.Errorf("%s.name: %w", at, err)
        }
        if p := b.Pricing; p != nil {
            if err := validation.ValidateStruct(p,
                validation.Field(&p.SinglePlayer, validation.By(amount(true))),
                validation.Field(&p.MultiPlayer, validation.By(amount(true))),
                validation.Field(&p.OverThreePlayers, validation.By(amount(true))),
            ); err != nil {
                return fmt.Errorf("%s.pricing: %w", at, err)
            }
        }
        for j, c := range b.Categories {
            if err := validation.Validate(c.Name, validation.Required); err != nil {
                return fmt.Errorf("%s.categories[%d].name: %w", at, j, err)
            }
            for k, d := range c.Devices {
                if err := validation.ValidateStruct(&d,
                    validation.Field(&d.Name, validation.Required),
                    validation.Field(&d.Screen, validation.Required, validation.Min(1)),
                    validation.Field(&d.Controllers, validation.Min(0)),
                ); err != nil {
                    return fmt.Errorf("%s.categories[%d].devices[%d]: %w", at, j, k, err)
                }
            }
        }
        for j, g := range b.Games {
            if err := validation.ValidateStruct(&g,
                validation.Field(&g.Title, validation.Required),
                validation.Field(&g.Players, validation.Required, validation.Min(1)),
            ); err != nil {
                return fmt.Errorf("%s.games[%d]: %w", at, j, err)
            }
        }
        for j, s := range b.Snacks {
            if err := validation.ValidateStruct(&s,
                validation.Field(&s.Name, validation.Required),
                validation.Field(&s.Category, validation.Required, validation.In(model.SnackEatables, model.SnackDrinks)),
                validation.Field(&s.Price, validation.Required, validation.By(amount(false))),
                validation.Field(&s.Stock, validation.Min(0)),
            ); err != nil {
                return fmt.Errorf("%s.snacks[%d]: %w", at, j, err)
            }
        }
        for j, a := range b.Staff {
            if err := a.validate(false); err != nil {
                return fmt.Errorf("%s.staff[%d]: %w", at, j, err)
            }
        }
    }
    return nil
}

// Storage the seeder writes through; the repository types satisfy these.
type (
    BranchStore interface {
        List(ctx context.Context) ([]model.Branch, error)
        Create(ctx context.Context, b *model.Branch) error
    }
    UserStore interface {
        GetByUsername(ctx context.Context, username string) (model.User, error)
        Create(ctx context.Context, username, password, role string, cost int, branchIDs []uint64) (uint64, error)
        SetBranchAccess(ctx context.Context, userID, branchID uint64, can bool) error
    }
    CategoryStore interface {
        Create(ctx context.Context, c *model.DeviceCategory) error
    }
    DeviceStore interface {
        Create(ctx context.Context, d *model.Device) error
    }
    GameStore interface {
        Create(ctx context.Context, g *model.Game) error
    }
    SnackStore interface {
        Create(ctx context.Context, s *model.Snack) error
    }
    PricingStore interface {
        Upsert(ctx context.Context, p model.Pricing) (model.Pricing, error)
    }
)

// Seeder applies a File.
type Seeder struct {
    Branches   BranchStore
    Users      UserStore
    Categories CategoryStore
    Devices    DeviceStore
    Games      GameStore
    Snacks     SnackStore
    Pricing    PricingStore
    BcryptCost int
    Logger     *zap.Logger
}

// Report counts what a run created.
type Report struct {
    Branches        int `json:"branches"`
    SkippedBranches int `json:"skipped_branches"`
    Users           int `json:"users"`
    Devices         int `json:"devices"`
    Games           int `json:"games"`
    Snacks          int `json:"snacks"`
}

// Apply creates the admin, then every branch that does not exist yet with
// its catalog and staff.  Users that already exist are only granted access.
func (s *Seeder) Apply(ctx context.Context, f File) (Report, error) {
    var rep Report
    log := s.Logger
    if log == nil {
        log = zap.NewNop()
    }

    adminID, created, err := s.user(ctx, f.Admin.Username, f.Admin.Password, model.RoleSuperAdmin, nil)
    if err != nil {
        return rep, fmt.Errorf("admin: %w", err)
    }
    if created {
        rep.Users++
    }

    existing, err := s.Branches.List(ctx)
    if err != nil {
        return rep, err
    }
    have := make(map[string]bool, len(existing))
    for _, b := range existing {
        have[strings.ToLower(b.Name)] = true
    }

    for _, fb := range f.Branches {
        if have[strings.ToLower(fb.Name)] {
            log.Info("branch exists, skipped", zap.String("branch", fb.Name))
            rep.SkippedBranches++
            continue
        }
        b := model.Branch{Name: fb.Name, Location: fb.Location, CreatedBy: adminID}
        if err := s.Branches.Create(ctx, &b); err != nil {
            return rep, fmt.Errorf("branch %q: %w", fb.Name, err)
        }
        rep.Branches++
        if err := s.Users.SetBranchAccess(ctx, adminID, b.ID, true); err != nil {
            return rep, err
        }
        if err := s.branch(ctx, b.ID, fb, &rep); err != nil {
            return rep, fmt.Errorf("branch %q: %w", fb.Name, err)
        }
        log.Info("branch seeded", zap.String("branch", fb.Name), zap.Uint64("branch_id", b.ID))
    }
    return rep, nil
}

func (s *Seeder) branch(ctx context.Context, branchID uint64, fb Branch, rep *Report) error {
    if p := fb.Pricing; p != nil {
        if _, err := s.Pricing.Upsert(ctx, model.Pricing{
            BranchID:              branchID,
            SinglePlayerPrice:     decimal.RequireFromString(strings.TrimSpace(p.SinglePlayer)).Round(2),
            MultiPlayerPrice:      decimal.RequireFromString(strings.TrimSpace(p.MultiPlayer)).Round(2),
            OverThreePlayersPrice: decimal.RequireFromString(strings.TrimSpace(p.OverThreePlayers)).Round(2),
        }); err != nil {
            return fmt.Errorf("pricing: %w", err)
        }
    }
    for _, fc := range fb.Categories {
        cat := model.DeviceCategory{BranchID: branchID, Name: fc.Name}
        if err := s.Categories.Create(ctx, &cat); err != nil {
            return fmt.Errorf("category %q: %w", fc.Name, err)
        }
        for _, fd := range fc.Devices {
            d := model.Device{
                BranchID:            branchID,
                CategoryID:          cat.ID,
                Name:                fd.Name,
                ScreenNumber:        fd.Screen,
                NumberOfControllers: fd.Controllers,
                IsAvailable:         true,
            }
            if err := s.Devices.Create(ctx, &d); err != nil {
                return fmt.Errorf("device %q: %w", fd.Name, err)
            }
            rep.Devices++
        }
    }
    for _, fg := range fb.Games {
        g := model.Game{BranchID: branchID, Title: fg.Title, NumberOfPlayers: fg.Players, Description: fg.Description, IsAvailable: true}
        if err := s.Games.Create(ctx, &g); err != nil {
            return fmt.Errorf("game %q: %w", fg.Title, err)
        }
        rep.Games++
    }
    for _, fs := range fb.Snacks {
        threshold := model.DefaultLowStockThreshold
        if fs.LowStockThreshold != nil {
            threshold = *fs.LowStockThreshold
        }
        sn := model.Snack{
            BranchID:          branchID,
            Name:              fs.Name,
            Category:          fs.Category,
            Price:             decimal.RequireFromString(strings.TrimSpace(fs.Price)).Round(2),
            Stock:             fs.Stock,
            LowStockThreshold: threshold,
        }
        if err := s.Snacks.Create(ctx, &sn); err != nil {
            return fmt.Errorf("snack %q: %w", fs.Name, err)
        }
        rep.Snacks++
    }
    for _, a := range fb.Staff {
        _, created, err := s.user(ctx, a.Username, a.Password, a.Role, []uint64{branchID})
        if err != nil {
            return fmt.Errorf("staff %q: %w", a.Username, err)
        }
        if created {
            rep.Users++
        }
    }
    return nil
}

// user creates an account or, when the username is taken, grants the
// existing one the given branches.
func (s *Seeder) user(ctx context.Context, username, password, role string, branchIDs []uint64) (uint64, bool, error) {
    username = strings.ToLower(strings.TrimSpace(username))
    u, err := s.Users.GetByUsername(ctx, username)
    switch {
    case err == nil:
        for _, b := range branchIDs {
            if err := s.Users.SetBranchAccess(ctx, u.ID, b, true); err != nil {
                return 0, false, err
            }
        }
        return u.ID, false, nil
    case !errors.Is(err, repository.ErrUserNotFound):
        return 0, false, err
    }
    id, err := s.Users.Create(ctx, username, password, role, s.BcryptCost, branchIDs)
    return id, err == nil, err
}
