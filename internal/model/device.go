package model

import "time"

// Device status values.  A device is Occupied or Extended exactly while one
// open session references it.
const (
    DeviceAvailable = "Available"
    DeviceOccupied  = "Occupied"
    DeviceExtended  = "Extended"
)

// ValidDeviceStatus reports whether s is a known device status.
func ValidDeviceStatus(s string) bool {
    return s == DeviceAvailable || s == DeviceOccupied || s == DeviceExtended
}

// DeviceCategory groups devices (PS5, PC, VR ...) within a branch.
type DeviceCategory struct {
    ID        uint64    `json:"id"`
    BranchID  uint64    `json:"branch_id"`
    Name      string    `json:"name"`
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}

// Device is a bookable console or PC.  IsAvailable is the manager's
// in-service switch; DeviceStatus follows the session lifecycle.
type Device struct {
    ID                  uint64    `json:"id"`
    BranchID            uint64    `json:"branch_id"`
    CategoryID          uint64    `json:"category_id"`
    CategoryName        string    `json:"category_name,omitempty"`
    Name                string    `json:"name"`
    ScreenNumber        int       `json:"screen_number"`
    NumberOfControllers int       `json:"number_of_controllers"`
    IsAvailable         bool      `json:"is_available"`
    DeviceStatus        string    `json:"device_status"`
    CreatedAt           time.Time `json:"created_at"`
    UpdatedAt           time.Time `json:"updated_at"`
}

// Busy reports whether the device is held by an open session.
func (d Device) Busy() bool {
    return d.DeviceStatus == DeviceOccupied || d.DeviceStatus == DeviceExtended
}
