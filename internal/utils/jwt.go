package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA‑256 hashing for refresh tokens
    "encoding/hex"  // hex encoding and decoding functions
    "errors"
    "fmt"
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by ParseAccessToken for any token that is
// malformed, expired, signed with another key or missing a claim.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
    Token string
    Exp   time.Time
}

// RefreshToken represents a long‑lived token used to obtain new access tokens.
// Only a SHA‑256 hash of Raw is stored in the database.
type RefreshToken struct {
    Raw string
    Exp time.Time
}

// Claims are the identity fields carried by an access token.  BranchID is
// the branch every branch-scoped query of the request is restricted to.
type Claims struct {
    UserID   uint64
    Role     string
    BranchID uint64
}

// NewAccessToken builds and signs an HS256 JWT with the standard sub, exp
// and iat claims plus role and branch_id.
func NewAccessToken(secret string, c Claims, ttlMin int) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":       c.UserID,
        "role":      c.Role,
        "branch_id": c.BranchID,
        "exp":       exp.Unix(),
        "iat":       now.Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw against secret and extracts its claims.
func ParseAccessToken(secret, raw string) (Claims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return Claims{}, ErrInvalidToken
    }
    mc, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return Claims{}, ErrInvalidToken
    }
    uid, ok := numberClaim(mc["sub"])
    if !ok || uid == 0 {
        return Claims{}, ErrInvalidToken
    }
    role, _ := mc["role"].(string)
    if role == "" {
        return Claims{}, ErrInvalidToken
    }
    // Tokens issued before a branch was chosen carry branch_id 0.
    branchID, _ := numberClaim(mc["branch_id"])
    return Claims{UserID: uid, Role: role, BranchID: branchID}, nil
}

// numberClaim accepts the float64 encoding/json produces for numeric claims.
func numberClaim(v any) (uint64, bool) {
    switch n := v.(type) {
    case float64:
        if n < 0 {
            return 0, false
        }
        return uint64(n), true
    case int64:
        if n < 0 {
            return 0, false
        }
        return uint64(n), true
    case uint64:
        return n, true
    }
    return 0, false
}

// NewRefreshToken returns a cryptographically secure random token (raw) and
// its expiration time.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
    raw, err := randomHex(48) // 48 bytes -> 96 hex chars
    if err != nil {
        return RefreshToken{}, err
    }
    return RefreshToken{
        Raw: raw,
        Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
    }, nil
}

// HashRefreshRaw returns the SHA‑256 hash of the raw refresh token as a hex
// string.
func HashRefreshRaw(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
