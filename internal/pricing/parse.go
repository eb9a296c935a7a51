package pricing

import (
    "bytes"
    "encoding/json"
    "fmt"
    "math"
    "strings"

    "github.com/shopspring/decimal"
)

// Field is a form value that may arrive as a JSON number or a string.  It
// never fails to unmarshal; parsing happens later so a bad value can turn
// into a zero quote instead of a request error.
type Field struct {
    raw string
}

// F builds a Field from a literal, mostly for tests and the seed command.
func F(v any) Field { return Field{raw: strings.TrimSpace(fmt.Sprint(v))} }

// UnmarshalJSON accepts numbers, strings and null.
func (f *Field) UnmarshalJSON(b []byte) error {
    b = bytes.TrimSpace(b)
    if bytes.Equal(b, []byte("null")) {
        f.raw = ""
        return nil
    }
    if len(b) > 0 && b[0] == '"' {
        var s string
        if err := json.Unmarshal(b, &s); err != nil {
            f.raw = string(b)
            return nil
        }
        f.raw = strings.TrimSpace(s)
        return nil
    }
    f.raw = string(b)
    return nil
}

// MarshalJSON writes the raw text back as a string.
func (f Field) MarshalJSON() ([]byte, error) { return json.Marshal(f.raw) }

// Blank reports whether the field was omitted or empty.
func (f Field) Blank() bool { return f.raw == "" }

// Decimal parses the field.  Blank yields zero.
func (f Field) Decimal() (decimal.Decimal, error) {
    if f.Blank() {
        return decimal.Zero, nil
    }
    return decimal.NewFromString(f.raw)
}

// maxWhole bounds every count and minute value a form may carry.
var maxWhole = decimal.NewFromInt(math.MaxInt32)

// Int parses the field as a whole number.  "60" and "60.0" both parse;
// "60.5" does not, and neither does anything beyond ±MaxInt32.  Blank
// yields zero.
func (f Field) Int() (int, error) {
    d, err := f.Decimal()
    if err != nil {
        return 0, err
    }
    if !d.IsInteger() || d.Abs().GreaterThan(maxWhole) {
        return 0, fmt.Errorf("%q is not a whole number", f.raw)
    }
    return int(d.IntPart()), nil
}

// RawSnack is a snack line as submitted by the booking form.
type RawSnack struct {
    SnackID  uint64 `json:"snack_id"`
    Quantity Field  `json:"quantity"`

    badID bool
}

// UnmarshalJSON takes snack_id as a number or a numeric string, the way a
// select box posts it.  An id that does not parse is kept back for Parse to
// report, so the line never fails the whole body.
func (s *RawSnack) UnmarshalJSON(b []byte) error {
    var aux struct {
        SnackID  Field `json:"snack_id"`
        Quantity Field `json:"quantity"`
    }
    if err := json.Unmarshal(b, &aux); err != nil {
        *s = RawSnack{badID: true}
        return nil
    }
    *s = RawSnack{Quantity: aux.Quantity}
    id, err := aux.SnackID.Int()
    if err != nil || id < 0 {
        s.badID = true
        return nil
    }
    s.SnackID = uint64(id)
    return nil
}

// RawDraft is the numeric part of a booking form before parsing.
type RawDraft struct {
    NumberOfPlayers  Field      `json:"number_of_players"`
    DurationMinutes  Field      `json:"duration_minutes"`
    Snacks           []RawSnack `json:"snacks"`
    DiscountRate     Field      `json:"discount_rate"`
    DiscountAmount   Field      `json:"discount_amount"`
    RewardPointsUsed Field      `json:"reward_points_used"`
}

// Parse converts r into a Draft.  Problems are reported per field, keyed by
// the JSON name; snack lines are keyed as snacks.N.snack_id and
// snacks.N.quantity.  Blank optional
// fields count as zero.  Blank players or duration is an error.
func (r RawDraft) Parse() (Draft, map[string]string) {
    errs := map[string]string{}
    var d Draft

    required := func(name string, f Field, dst *int) {
        if f.Blank() {
            errs[name] = "is required"
            return
        }
        n, err := f.Int()
        if err != nil {
            errs[name] = "must be a whole number"
            return
        }
        *dst = n
    }
    optional := func(name string, f Field, dst *decimal.Decimal) {
        v, err := f.Decimal()
        if err != nil {
            errs[name] = "must be a number"
            return
        }
        *dst = v
    }

    required("number_of_players", r.NumberOfPlayers, &d.NumberOfPlayers)
    required("duration_minutes", r.DurationMinutes, &d.DurationMinutes)
    optional("discount_rate", r.DiscountRate, &d.DiscountRate)
    optional("discount_amount", r.DiscountAmount, &d.DiscountAmount)
    optional("reward_points_used", r.RewardPointsUsed, &d.RewardPointsUsed)

    for i, s := range r.Snacks {
        if s.badID {
            errs[fmt.Sprintf("snacks.%d.snack_id", i)] = "must be a whole number"
            continue
        }
        q, err := s.Quantity.Int()
        if err != nil {
            errs[fmt.Sprintf("snacks.%d.quantity", i)] = "must be a whole number"
            continue
        }
        d.Snacks = append(d.Snacks, SnackSelection{SnackID: s.SnackID, Quantity: q})
    }
    return d, errs
}

// ParseDraft is Parse collapsed to a single ok flag.
func ParseDraft(r RawDraft) (Draft, bool) {
    d, errs := r.Parse()
    return d, len(errs) == 0
}

// QuoteRaw parses and prices a form in one step.  Any parse failure yields a
// zero Quote.
func QuoteRaw(c *Catalog, r RawDraft, prices map[uint64]decimal.Decimal) Quote {
    d, ok := ParseDraft(r)
    if !ok {
        return Quote{}
    }
    return Calculate(c, d, prices)
}

// View is the display form of a Quote: every figure rounded and rendered
// with exactly two decimals.
type View struct {
    PricePerPlayer       string `json:"price_per_player"`
    BaseAmount           string `json:"base_amount"`
    SnacksCost           string `json:"snacks_cost"`
    Subtotal             string `json:"subtotal"`
    PercentageDiscount   string `json:"percentage_discount"`
    FlatDiscount         string `json:"flat_discount"`
    RewardPointsDiscount string `json:"reward_points_discount"`
    TotalAmount          string `json:"total_amount"`
}

// View renders q for the booking form.
func (q Quote) View() View {
    return View{
        PricePerPlayer:       q.PricePerPlayer.StringFixed(2),
        BaseAmount:           q.BaseAmount.StringFixed(2),
        SnacksCost:           q.SnacksCost.StringFixed(2),
        Subtotal:             q.Subtotal.StringFixed(2),
        PercentageDiscount:   q.PercentageDiscount.StringFixed(2),
        FlatDiscount:         q.FlatDiscount.StringFixed(2),
        RewardPointsDiscount: q.RewardPointsDiscount.StringFixed(2),
        TotalAmount:          q.TotalAmount.StringFixed(2),
    }
}
