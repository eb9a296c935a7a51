package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Subscriber attaches a websocket to the notification feed of a branch.
type Subscriber interface {
    ServeWS(w http.ResponseWriter, r *http.Request, branchID, userID uint64) error
}

type NotifyHandler struct {
    Hub Subscriber
}

func NewNotifyHandler(hub Subscriber) *NotifyHandler { return &NotifyHandler{Hub: hub} }

// Subscribe upgrades to a websocket and streams ending-soon alerts of the
// caller's branch until the client disconnects.
func (h *NotifyHandler) Subscribe(c echo.Context) error {
    branchID, err := getBranchID(c)
    if err != nil {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    uid, _ := getUserID(c)
    // A failed upgrade has already been answered by the upgrader.
    _ = h.Hub.ServeWS(c.Response(), c.Request(), branchID, uid)
    return nil
}
