// Package repository holds the MySQL data access layer.  The sentinel
// errors below let handlers and services tell failure kinds apart without
// looking at driver errors.
package repository

import (
    "errors"
    "fmt"
    "strings"

    "github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller may not touch a resource, such as
// a branch they hold no grant for.  Handlers translate it into 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when the current state forbids the operation: a
// busy device, a completed session, not enough stock, a duplicate name or a
// row still referenced elsewhere.  Wrap it with a reason:
//
//    fmt.Errorf("%w: device is occupied", ErrConflict)
//
// Handlers translate it into 409.
var ErrConflict = errors.New("conflict")

var (
    ErrBranchNotFound   = errors.New("branch not found")
    ErrUserNotFound     = errors.New("user not found")
    ErrCategoryNotFound = errors.New("device category not found")
    ErrDeviceNotFound   = errors.New("device not found")
    ErrGameNotFound     = errors.New("game not found")
    ErrSnackNotFound    = errors.New("snack not found")
    ErrPricingNotFound  = errors.New("pricing not configured")
    ErrSessionNotFound  = errors.New("session not found")
)

// IsNotFound reports whether err wraps any of the not-found sentinels.
func IsNotFound(err error) bool {
    for _, target := range []error{
        ErrBranchNotFound, ErrUserNotFound, ErrCategoryNotFound, ErrDeviceNotFound,
        ErrGameNotFound, ErrSnackNotFound, ErrPricingNotFound, ErrSessionNotFound,
    } {
        if errors.Is(err, target) {
            return true
        }
    }
    return false
}

// MySQL error numbers mapped onto ErrConflict, plus the deadlock code
// Store.InTx retries on.
const (
    mysqlDuplicateEntry  = 1062
    mysqlRowIsReferenced = 1451
    mysqlDeadlock        = 1213
)

func mysqlCode(err error) uint16 {
    var me *mysql.MySQLError
    if errors.As(err, &me) {
        return me.Number
    }
    return 0
}

// isDuplicate reports a unique key violation.
func isDuplicate(err error) bool {
    if err == nil {
        return false
    }
    return mysqlCode(err) == mysqlDuplicateEntry || strings.Contains(err.Error(), "1062")
}

func isDeadlock(err error) bool {
    return err != nil && mysqlCode(err) == mysqlDeadlock
}

// isReferenced reports a delete blocked by a foreign key.
func isReferenced(err error) bool {
    return err != nil && mysqlCode(err) == mysqlRowIsReferenced
}

// conflictOn converts duplicate-key and foreign-key violations into wrapped
// ErrConflict values and passes every other error through.
func conflictOn(err error, duplicate, referenced string) error {
    switch {
    case err == nil:
        return nil
    case isDuplicate(err):
        return fmt.Errorf("%w: %s", ErrConflict, duplicate)
    case isReferenced(err):
        return fmt.Errorf("%w: %s", ErrConflict, referenced)
    }
    return err
}
