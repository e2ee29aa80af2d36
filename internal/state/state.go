// Package state holds the session-local CRM state tree. The tree is owned
// by the hosting application; the reconciler mutates it in place.
package state

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Job workflow statuses. Remote records may carry additional workflow
// states which pass through untouched.
const (
	StatusQuoted = "Quoted"
	StatusBooked = "Booked"
	StatusNew    = "New"
)

// Transaction types.
const (
	TxIncome  = "Income"
	TxExpense = "Expense"
)

// State is the local state tree for one session.
type State struct {
	Clients      []*Client      `json:"clients"`
	Jobs         []*Job         `json:"jobs"`
	Transactions []*Transaction `json:"transactions"`
}

// Discount describes a client-level or job-level discount.
type Discount struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// Client is a CRM customer. The id equals the remote customer id for
// remotely sourced clients.
type Client struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	Email    string    `json:"email"`
	Notes    string    `json:"notes"`
	Discount Discount  `json:"discount"`
	Vehicles []Vehicle `json:"vehicles"`
}

// Addon is a named extra on a vehicle or service.
type Addon struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Included bool    `json:"included"`
}

// Vehicle describes one vehicle on a job or quote.
type Vehicle struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Pkg    string  `json:"pkg"`
	Size   string  `json:"size"`
	Base   float64 `json:"base"`
	Addons []Addon `json:"addons"`
}

// Service is one line item of work on a job.
type Service struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Included bool    `json:"included"`
}

// Payment records money taken against a job.
type Payment struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount"`
	Method string  `json:"method"`
	Date   string  `json:"date"`
}

// ExtraCharge is an ad-hoc charge added to a job.
type ExtraCharge struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Schedule holds the booked slot for a job.
type Schedule struct {
	Date            string `json:"date"`
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes *int   `json:"durationMinutes"`
}

// Timer is a countable stopwatch. Elapsed is milliseconds; RunningSince is
// a unix-millisecond timestamp when running, nil when stopped.
type Timer struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Elapsed      int64  `json:"elapsed"`
	RunningSince *int64 `json:"runningSince"`
}

// Timers groups the named stopwatches every job carries.
type Timers struct {
	Overall Timer `json:"overall"`
	Setup   Timer `json:"setup"`
	Base    Timer `json:"base"`
	Addons  Timer `json:"addons"`
}

// RemoteRef is the set of remote identifiers a job has accumulated from
// each record kind it has been linked to. A job holds at most one id per
// kind at any time.
type RemoteRef struct {
	QuoteID       string `json:"quoteId,omitempty"`
	AppointmentID string `json:"appointmentId,omitempty"`
	JobID         string `json:"jobId,omitempty"`
}

// Job represents a unit of work across its lifecycle stages
// (quote, appointment, in-progress job).
type Job struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"clientId"`
	Status       string          `json:"status"`
	Pkg          string          `json:"pkg"`
	Size         string          `json:"size"`
	Notes        string          `json:"notes"`
	CreatedAt    string          `json:"createdAt"`
	Vehicles     []Vehicle       `json:"vehicles"`
	Services     []Service       `json:"services"`
	Payments     []Payment       `json:"payments"`
	Schedule     Schedule        `json:"schedule"`
	DiscType     string          `json:"discType"`
	DiscValue    float64         `json:"discValue"`
	DiscScope    string          `json:"discScope"`
	ExtraCharges []ExtraCharge   `json:"extraCharges"`
	Timers       Timers          `json:"timers"`
	Checklist    json.RawMessage `json:"checklist,omitempty"`
	RemoteTotal  float64         `json:"remoteTotal"`
	Remote       RemoteRef       `json:"remote"`
}

// Transaction is a money movement, identified by remote.transactionId when
// it originated remotely.
type Transaction struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Payment  string         `json:"payment"`
	Amount   float64        `json:"amount"`
	Date     string         `json:"date"`
	Notes    string         `json:"notes"`
	ClientID string         `json:"clientId,omitempty"`
	JobID    string         `json:"jobId,omitempty"`
	Remote   TransactionRef `json:"remote"`
}

// TransactionRef is the remote cross-reference of a transaction.
type TransactionRef struct {
	TransactionID string `json:"transactionId,omitempty"`
}

// New returns an empty state tree.
func New() *State {
	return &State{
		Clients:      []*Client{},
		Jobs:         []*Job{},
		Transactions: []*Transaction{},
	}
}

// NewBlankJob returns a job with defaults applied: fresh id, Quoted status
// and zeroed timers.
func NewBlankJob() *Job {
	return &Job{
		ID:           uuid.New().String(),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		Status:       StatusQuoted,
		Vehicles:     []Vehicle{},
		Services:     []Service{},
		Payments:     []Payment{},
		ExtraCharges: []ExtraCharge{},
		DiscType:     "none",
		DiscScope:    "job",
		Timers: Timers{
			Overall: Timer{ID: "overall", Label: "Overall Timer"},
			Setup:   Timer{ID: "setup", Label: "Setup / Prep"},
			Base:    Timer{ID: "base", Label: "Base Services"},
			Addons:  Timer{ID: "addons", Label: "Add-ons / Finishing"},
		},
	}
}

var nameCollator = collate.New(language.English)

// SortClientsByName orders clients lexicographically by display name.
// Empty names sort first. The sort is stable so equal names keep their
// relative order across repeated merges.
func SortClientsByName(clients []*Client) {
	sort.SliceStable(clients, func(i, j int) bool {
		return nameCollator.CompareString(clients[i].Name, clients[j].Name) < 0
	})
}
