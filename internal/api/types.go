package api

import "encoding/json"

// TimeFormat is the timestamp layout the service expects in request and
// response bodies ("2006-01-02 15:04:05", local time).
const TimeFormat = "2006-01-02 15:04:05"

// envelope is the shared response wrapper returned by every endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Machine is a vending machine record.
type Machine struct {
	ID           int64  `json:"id,omitempty"`
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number,omitempty"`
	Location     string `json:"location,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// MachineOrder is a stocking order for a machine.
type MachineOrder struct {
	ID         int64  `json:"id,omitempty"`
	MachineID  int64  `json:"machine_id"`
	TemplateID *int64 `json:"template_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// Assignment is a route assignment for a service technician.
type Assignment struct {
	ID            int64          `json:"id"`
	Date          string         `json:"date"`
	Status        string         `json:"status"`
	NumberOfItems int            `json:"number_of_items,omitempty"`
	ScheduledTime string         `json:"scheduled_time,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	Machines      []Machine      `json:"machines,omitempty"`
	MachineOrders []MachineOrder `json:"machine_orders,omitempty"`
}

// RouteMessage is a dispatcher note attached to a route plan date.
type RouteMessage struct {
	ID            int64  `json:"id"`
	Message       string `json:"message"`
	Type          string `json:"type,omitempty"`
	CreatedAt     string `json:"created_at"`
	RoutePlanDate string `json:"route_plan_date"`
}

// Template is a reusable machine-order template.
type Template struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ImageSrc string `json:"image_src,omitempty"`
}

// TrackingTime is a server-side tracking session record.
type TrackingTime struct {
	ID           int64  `json:"id"`
	AssignmentID *int64 `json:"assignment_id"`
	Kind         string `json:"type"`
	Description  string `json:"description,omitempty"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date,omitempty"`
}

// TrackingItem is one entry of a batch tracking-times submission.
// TrackingTimeID is nil for sessions created offline (the server assigns
// an id) and set for offline mutations of server-confirmed sessions.
type TrackingItem struct {
	TrackingTimeID *int64 `json:"tracking_time_id"`
	AssignmentID   *int64 `json:"assignment_id"`
	Kind           string `json:"type"`
	Description    string `json:"description,omitempty"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date,omitempty"`
}

// AssignmentsPage is the combined payload of GET /route-assignments.
type AssignmentsPage struct {
	Assignments   []Assignment   `json:"assignments"`
	Messages      []RouteMessage `json:"messages,omitempty"`
	TrackingTimes []TrackingTime `json:"tracking_times,omitempty"`
}
