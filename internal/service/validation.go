package service

import (
    "errors"
    "fmt"
    "sort"
    "strings"
    "unicode"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/shopspring/decimal"
)

// ValidationError carries per-field messages keyed by the JSON field name.
type ValidationError struct {
    Fields map[string]string
}

func (e *ValidationError) Error() string {
    keys := make([]string, 0, len(e.Fields))
    for k := range e.Fields {
        keys = append(keys, k)
    }
    sort.Strings(keys)
    parts := make([]string, 0, len(keys))
    for _, k := range keys {
        parts = append(parts, k+": "+e.Fields[k])
    }
    return "validation failed: " + strings.Join(parts, "; ")
}

// invalid builds a single-field ValidationError.
func invalid(field, msg string) error {
    return &ValidationError{Fields: map[string]string{field: msg}}
}

// collect merges ozzo errors into fields without overwriting a message that
// is already there, and returns nil when nothing is wrong.
func collect(fields map[string]string, errs validation.Errors) error {
    if fields == nil {
        fields = map[string]string{}
    }
    for k, err := range errs {
        if err == nil {
            continue
        }
        if _, taken := fields[k]; !taken {
            fields[k] = err.Error()
        }
    }
    if len(fields) == 0 {
        return nil
    }
    return &ValidationError{Fields: fields}
}

// AsValidation unwraps a *ValidationError.
func AsValidation(err error) (*ValidationError, bool) {
    var ve *ValidationError
    ok := errors.As(err, &ve)
    return ve, ok
}

func minDigits(n int) validation.RuleFunc {
    return func(v any) error {
        s, _ := v.(string)
        count := 0
        for _, r := range s {
            if unicode.IsDigit(r) {
                count++
            }
        }
        if count < n {
            return fmt.Errorf("must contain at least %d digits", n)
        }
        return nil
    }
}

// atLeast is validation.Min without its skip-on-zero behaviour.
func atLeast(n int) validation.RuleFunc {
    return func(v any) error {
        if x, _ := v.(int); x < n {
            return fmt.Errorf("must be at least %d", n)
        }
        return nil
    }
}

func atMost(n int) validation.RuleFunc {
    return func(v any) error {
        if x, _ := v.(int); x > n {
            return fmt.Errorf("must be at most %d", n)
        }
        return nil
    }
}

func multipleOf(step int) validation.RuleFunc {
    return func(v any) error {
        n, _ := v.(int)
        if n%step != 0 {
            return fmt.Errorf("must be a multiple of %d", step)
        }
        return nil
    }
}

// decimalRange checks lo <= v and, when hi is set, v <= hi.
func decimalRange(lo decimal.Decimal, hi *decimal.Decimal) validation.RuleFunc {
    return func(v any) error {
        d, _ := v.(decimal.Decimal)
        if d.LessThan(lo) {
            return fmt.Errorf("must be at least %s", lo.String())
        }
        if hi != nil && d.GreaterThan(*hi) {
            return fmt.Errorf("must be at most %s", hi.String())
        }
        return nil
    }
}

func customerRules(name, contact string) validation.Errors {
    return validation.Errors{
        "customer_name": validation.Validate(strings.TrimSpace(name),
            validation.Required.Error("is required"),
            validation.RuneLength(2, 0).Error("must be at least 2 characters")),
        "contact_number": validation.Validate(strings.TrimSpace(contact),
            validation.Required.Error("is required"),
            validation.By(minDigits(10))),
    }
}
