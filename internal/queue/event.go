// Package queue defines the session events exchanged over RabbitMQ, the
// publisher the lifecycle service hands them to, and the consumer that turns
// them into the activity log.
package queue

import (
    "fmt"
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/game-ground/internal/model"
)

// SessionEventsQueue is the durable queue every session event goes to.
const SessionEventsQueue = "session.events"

// Event types.
const (
    EventSessionStarted  = "session.started"
    EventSessionExtended = "session.extended"
    EventSessionEnded    = "session.ended"
)

// SessionEvent is published after a lifecycle transition commits.  It carries
// enough for the activity log without another database read.
type SessionEvent struct {
    ID              string `json:"id"`
    Type            string `json:"type"`
    SessionID       uint64 `json:"session_id"`
    BranchID        uint64 `json:"branch_id"`
    DeviceID        uint64 `json:"device_id"`
    DeviceName      string `json:"device_name,omitempty"`
    GameID          uint64 `json:"game_id"`
    GameTitle       string `json:"game_title,omitempty"`
    CustomerName    string `json:"customer_name"`
    NumberOfPlayers int    `json:"number_of_players"`
    DurationMinutes int    `json:"duration_minutes"`
    SessionStart    string `json:"session_start"`
    SessionEnd      string `json:"session_end"`
    TotalAmount     string `json:"total_amount"`
    Status          string `json:"session_status"`
    ActorID         uint64 `json:"actor_id"`
    OccurredAt      string `json:"occurred_at"`
}

// NewSessionEvent snapshots s.  Times are RFC 3339 in UTC.
func NewSessionEvent(typ string, s model.Session, actorID uint64, at time.Time) SessionEvent {
    return SessionEvent{
        ID:              uuid.NewString(),
        Type:            typ,
        SessionID:       s.ID,
        BranchID:        s.BranchID,
        DeviceID:        s.DeviceID,
        DeviceName:      s.DeviceName,
        GameID:          s.GameID,
        GameTitle:       s.GameTitle,
        CustomerName:    s.CustomerName,
        NumberOfPlayers: s.NumberOfPlayers,
        DurationMinutes: s.DurationMinutes,
        SessionStart:    s.SessionStart.UTC().Format(time.RFC3339),
        SessionEnd:      s.SessionEnd.UTC().Format(time.RFC3339),
        TotalAmount:     s.TotalAmount.StringFixed(2),
        Status:          s.SessionStatus,
        ActorID:         actorID,
        OccurredAt:      at.UTC().Format(time.RFC3339),
    }
}

// LogLine renders the event as one line of the activity log.
func (e SessionEvent) LogLine() string {
    return fmt.Sprintf("[%s] %s | event_id=%s | session_id=%d | branch_id=%d | device=%q | game=%q | customer=%q | players=%d | minutes=%d | start=%s | end=%s | total=%s | status=%s | actor_id=%d\n",
        e.OccurredAt, e.Type, e.ID, e.SessionID, e.BranchID, e.DeviceName, e.GameTitle, e.CustomerName,
        e.NumberOfPlayers, e.DurationMinutes, e.SessionStart, e.SessionEnd, e.TotalAmount, e.Status, e.ActorID)
}
