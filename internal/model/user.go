package model

import "time"

// Roles carried in the users.role column and the access token "role" claim.
const (
    RoleSuperAdmin   = "SuperAdmin"
    RoleAdmin        = "Admin"
    RoleStoreManager = "StoreManager"
    RoleStaff        = "Staff"
)

// Managers are the roles allowed to edit the branch catalog (devices,
// categories, games, snacks) and see the dashboard.
var Managers = []string{RoleSuperAdmin, RoleAdmin, RoleStoreManager}

// AllRoles is every role a signed-in user can hold.
var AllRoles = []string{RoleSuperAdmin, RoleAdmin, RoleStoreManager, RoleStaff}

// ValidRole reports whether r is one of the four known roles.
func ValidRole(r string) bool {
    for _, x := range AllRoles {
        if x == r {
            return true
        }
    }
    return false
}

// User represents a row of the `users` table.  PasswordHash never leaves the
// server.
type User struct {
    ID           uint64    `json:"id"`
    Username     string    `json:"username"`
    PasswordHash string    `json:"-"`
    Role         string    `json:"role"`
    IsActive     bool      `json:"is_active"`
    BranchIDs    []uint64  `json:"branch_ids,omitempty"`
    CreatedAt    time.Time `json:"created_at"`
    UpdatedAt    time.Time `json:"updated_at"`
}

// UserBranch grants (or, with CanAccess=false, withholds) a user's access to
// a branch.  SuperAdmin needs no grants.
type UserBranch struct {
    UserID    uint64 `json:"user_id"`
    BranchID  uint64 `json:"branch_id"`
    CanAccess bool   `json:"can_access"`
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the raw token is stored.  BranchID remembers which branch
// the session was opened for so a refresh keeps the same scope.
type RefreshToken struct {
    ID        uint64
    UserID    uint64
    BranchID  uint64
    TokenHash string
    ExpiresAt time.Time
    RevokedAt *time.Time
    CreatedAt time.Time
}
