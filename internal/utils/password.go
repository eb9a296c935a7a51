package utils

import (
    "errors"

    "golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned when asked to hash an empty password.
var ErrEmptyPassword = errors.New("empty password")

// HashPassword bcrypt-hashes plain.  A cost outside bcrypt's range falls back
// to bcrypt.DefaultCost.
func HashPassword(plain string, cost int) (string, error) {
    if plain == "" {
        return "", ErrEmptyPassword
    }
    if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
        cost = bcrypt.DefaultCost
    }
    b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
    if err != nil {
        return "", err
    }
    return string(b), nil
}

// VerifyPassword reports whether plain matches the stored hash.  Accounts
// without a hash never match.
func VerifyPassword(hash, plain string) bool {
    if hash == "" {
        return false
    }
    return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
