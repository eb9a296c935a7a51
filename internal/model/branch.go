package model

import "time"

// Branch is a cafe location.  Every other catalog and session row is
// partitioned by branch_id.
type Branch struct {
    ID        uint64    `json:"id"`
    Name      string    `json:"name"`
    Location  string    `json:"location"`
    CreatedBy uint64    `json:"created_by"`
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}
