package model

import "time"

// DefaultGameDescription is stored when a game is created without one.
const DefaultGameDescription = "No description provided"

// Game is a title offered at a branch.  NumberOfPlayers is the capacity a
// session for this game may not exceed.
type Game struct {
    ID              uint64    `json:"id"`
    BranchID        uint64    `json:"branch_id"`
    Title           string    `json:"title"`
    NumberOfPlayers int       `json:"number_of_players"`
    Description     string    `json:"description"`
    IsAvailable     bool      `json:"is_available"`
    CreatedAt       time.Time `json:"created_at"`
    UpdatedAt       time.Time `json:"updated_at"`
}
