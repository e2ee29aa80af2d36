package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Money decodes a remote money column that may arrive as a JSON number,
// a numeric string, or null. Anything unparseable decodes to 0.
type Money float64

// UnmarshalJSON implements json.Unmarshaler.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*m = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*m = 0
			return nil
		}
		*m = Money(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		*m = 0
		return nil
	}
	*m = Money(f)
	return nil
}

// RemoteCustomer is a row from the customers table.
type RemoteCustomer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Notes string `json:"notes"`
}

// RemoteQuote is a row from the quotes table. Vehicles and Addons may be
// structured JSON or a serialized JSON string, so they stay raw until the
// reconciler decodes them.
type RemoteQuote struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Status     string          `json:"status"`
	Pkg        string          `json:"pkg"`
	Size       string          `json:"size"`
	Notes      string          `json:"notes"`
	CreatedAt  string          `json:"created_at"`
	Total      Money           `json:"total"`
	Vehicles   json.RawMessage `json:"vehicles"`
	Addons     json.RawMessage `json:"addons"`
}

// RemoteAppointment is a row from the appointments table.
type RemoteAppointment struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Notes      string          `json:"notes"`
	Date       string          `json:"date"`
	Time       string          `json:"time"`
	Services   json.RawMessage `json:"services"`
	Total      Money           `json:"total"`
}

// RemoteJob is a row from the jobs table (scheduled service jobs).
type RemoteJob struct {
	ID         string `json:"id"`
	QuoteID    string `json:"quote_id"`
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
	Notes      string `json:"notes"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Total      Money  `json:"total"`
}

// RemoteTransaction is a row from the transactions table.
type RemoteTransaction struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Method     string `json:"method"`
	Amount     Money  `json:"amount"`
	Date       string `json:"date"`
	CustomerID string `json:"customer_id"`
	JobID      string `json:"job_id"`
}

// Snapshot aggregates one full read of the five remote collections.
type Snapshot struct {
	Customers    []RemoteCustomer    `json:"customers"`
	Quotes       []RemoteQuote       `json:"quotes"`
	Jobs         []RemoteJob         `json:"jobs"`
	Appointments []RemoteAppointment `json:"appointments"`
	Transactions []RemoteTransaction `json:"transactions"`
}

// ActionType distinguishes queued mutation kinds.
type ActionType string

const (
	// ActionUpsert writes a payload to a named remote table.
	ActionUpsert ActionType = "upsert"
	// ActionInvoke calls a named remote function with a payload.
	ActionInvoke ActionType = "invoke"
)

// Action is a deferred remote mutation awaiting a readiness window.
// The ID is minted at enqueue time so a drain can remove exactly the
// actions it delivered, even if new ones were appended mid-drain.
type Action struct {
	ID           string          `json:"id"`
	Type         ActionType      `json:"type"`
	Table        string          `json:"table,omitempty"`
	FunctionName string          `json:"functionName,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	QueuedAt     int64           `json:"queuedAt"`
}

// SyncResult reports the outcome of a bootstrap cycle.
type SyncResult struct {
	Synced bool   `json:"synced"`
	Reason string `json:"reason,omitempty"`
}

// BookingRequest carries the pieces of a booking submission. The payloads
// stay raw because their shape belongs to the remote backend.
type BookingRequest struct {
	Customer    json.RawMessage `json:"customer" binding:"required"`
	Appointment json.RawMessage `json:"appointment" binding:"required"`
	Charge      json.RawMessage `json:"charge,omitempty"`
}

// BookingResult is the outcome of CreateBooking.
type BookingResult struct {
	Queued      bool            `json:"queued,omitempty"`
	Customer    json.RawMessage `json:"customer,omitempty"`
	Appointment json.RawMessage `json:"appointment,omitempty"`
}

// CheckoutResult is the outcome of CreateStripeCheckout.
type CheckoutResult struct {
	Queued bool            `json:"queued,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ErrorResponse represents an error response from the host API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Version     string    `json:"version"`
	Online      bool      `json:"online"`
	Initialised bool      `json:"initialised"`
	QueueDepth  int       `json:"queue_depth"`
}
