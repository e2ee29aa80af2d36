package sync

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/polishcrew/syncbridge/internal/config"
	"github.com/polishcrew/syncbridge/internal/metrics"
	"github.com/polishcrew/syncbridge/internal/queue"
	"github.com/polishcrew/syncbridge/internal/state"
	"github.com/polishcrew/syncbridge/pkg/types"
	"github.com/sirupsen/logrus"
)

// BookingEvent is the payload of EventBookingCreated.
type BookingEvent struct {
	Customer    json.RawMessage `json:"customer"`
	Appointment json.RawMessage `json:"appointment"`
	Charge      json.RawMessage `json:"charge,omitempty"`
}

// Bridge is the mutation façade over the remote backend. It is constructed
// once by the hosting application and injected into consumers. High-level
// operations execute immediately when the remote is ready, or enqueue
// themselves for later replay when it is not.
type Bridge struct {
	cfg     config.Config
	remote  Remote
	queue   *queue.Queue
	emitter *Emitter
	hook    ServicesHook

	mu          sync.Mutex
	localState  *state.State
	initialised bool
}

// NewBridge wires a bridge from its collaborators. hook may be nil, in
// which case reconciliation leaves job services untouched.
func NewBridge(cfg config.Config, remote Remote, q *queue.Queue, hook ServicesHook) *Bridge {
	return &Bridge{
		cfg:     cfg,
		remote:  remote,
		queue:   q,
		emitter: NewEmitter(),
		hook:    hook,
	}
}

// On registers a listener for a bridge event and returns an unsubscribe
// func.
func (b *Bridge) On(event string, fn Handler) func() {
	return b.emitter.Subscribe(event, fn)
}

// SetLocalState binds the externally owned state tree.
func (b *Bridge) SetLocalState(st *state.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.localState = st
}

// Initialised reports whether at least one fetch+merge cycle completed.
func (b *Bridge) Initialised() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialised
}

// State returns the currently bound state tree, or nil before bootstrap.
// The tree is mutated under the bridge lock during merges; callers that
// read it concurrently with bootstraps must go through StateJSON instead.
func (b *Bridge) State() *state.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.localState
}

// StateJSON marshals the bound state tree while holding the bridge lock,
// so readers never observe a half-merged tree. Returns nil before a state
// is bound.
func (b *Bridge) StateJSON() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.localState == nil {
		return nil, nil
	}
	return json.Marshal(b.localState)
}

// Bootstrap binds the local state and attempts one fetch+merge cycle. With
// no remote configured the result is a degraded, not-synced mode rather
// than an error. On success a sync:complete event carries the raw
// snapshot.
func (b *Bridge) Bootstrap(ctx context.Context, st *state.State) types.SyncResult {
	b.SetLocalState(st)

	if !b.remote.Ready() {
		return types.SyncResult{Synced: false, Reason: "not-configured"}
	}

	snapshot, err := FetchAll(ctx, b.remote)
	if err != nil {
		logrus.WithError(err).Warn("Bootstrap sync failed")
		metrics.MergeFailuresTotal.Inc()
		return types.SyncResult{Synced: false, Reason: err.Error()}
	}

	b.mu.Lock()
	Merge(b.localState, snapshot, b.hook)
	b.initialised = true
	b.mu.Unlock()

	metrics.MergesTotal.Inc()
	b.emitter.Emit(EventSyncComplete, snapshot)
	return types.SyncResult{Synced: true}
}

// CreateBooking creates a customer, an appointment and an optional charge
// notification. With the remote not ready, the notification invocation and
// the appointment upsert are deferred and the booking proceeds
// optimistically. On the ready path any remote error propagates to the
// caller.
func (b *Bridge) CreateBooking(ctx context.Context, req types.BookingRequest) (types.BookingResult, error) {
	if !b.remote.Ready() {
		b.ScheduleFunction(b.cfg.NotificationsFunction, marshalBookingBody(req.Customer, req.Appointment, req.Charge))
		b.ScheduleUpsert("appointments", req.Appointment)
		metrics.BookingsTotal.WithLabelValues("queued").Inc()
		return types.BookingResult{Queued: true}, nil
	}

	customerRow, err := b.remote.UpsertReturning(ctx, "customers", req.Customer)
	if err != nil {
		return types.BookingResult{}, err
	}

	appointmentPayload := withCustomerID(req.Appointment, customerRow)
	appointmentRow, err := b.remote.InsertReturning(ctx, "appointments", appointmentPayload)
	if err != nil {
		return types.BookingResult{}, err
	}

	if chargePresent(req.Charge) && b.cfg.NotificationsFunction != "" {
		body := marshalBookingBody(customerRow, appointmentRow, req.Charge)
		if _, err := b.remote.Invoke(ctx, b.cfg.NotificationsFunction, body); err != nil {
			return types.BookingResult{}, err
		}
	}

	metrics.BookingsTotal.WithLabelValues("direct").Inc()
	b.emitter.Emit(EventBookingCreated, BookingEvent{
		Customer:    customerRow,
		Appointment: appointmentRow,
		Charge:      req.Charge,
	})
	return types.BookingResult{Customer: customerRow, Appointment: appointmentRow}, nil
}

// CreateStripeCheckout invokes the checkout function, or defers the
// invocation when the remote is not ready.
func (b *Bridge) CreateStripeCheckout(ctx context.Context, payload json.RawMessage) (types.CheckoutResult, error) {
	if !b.remote.Ready() {
		b.ScheduleFunction(b.cfg.StripeFunction, payload)
		return types.CheckoutResult{Queued: true}, nil
	}

	data, err := b.remote.Invoke(ctx, b.cfg.StripeFunction, payload)
	if err != nil {
		return types.CheckoutResult{}, err
	}
	return types.CheckoutResult{Data: data}, nil
}

// ScheduleUpsert defers a table write to the queue. No-op on an empty
// table or payload.
func (b *Bridge) ScheduleUpsert(table string, payload json.RawMessage) {
	if table == "" || len(payload) == 0 {
		return
	}
	if err := b.queue.Enqueue(context.Background(), types.Action{
		Type:    types.ActionUpsert,
		Table:   table,
		Payload: payload,
	}); err != nil {
		logrus.WithError(err).WithField("table", table).Warn("Failed to queue upsert")
	}
}

// ScheduleFunction defers a function invocation to the queue. No-op on an
// empty function name.
func (b *Bridge) ScheduleFunction(functionName string, payload json.RawMessage) {
	if functionName == "" {
		return
	}
	if err := b.queue.Enqueue(context.Background(), types.Action{
		Type:         types.ActionInvoke,
		FunctionName: functionName,
		Payload:      payload,
	}); err != nil {
		logrus.WithError(err).WithField("function", functionName).Warn("Failed to queue invocation")
	}
}

// marshalBookingBody assembles the notification function body.
func marshalBookingBody(customer, appointment, charge json.RawMessage) json.RawMessage {
	body, err := json.Marshal(map[string]json.RawMessage{
		"customer":    orNull(customer),
		"appointment": orNull(appointment),
		"charge":      orNull(charge),
	})
	if err != nil {
		return json.RawMessage("{}")
	}
	return body
}

// withCustomerID injects the canonical remote customer id into an
// appointment payload. An unparseable payload passes through unchanged.
func withCustomerID(appointment, customerRow json.RawMessage) json.RawMessage {
	var ref struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(customerRow, &ref); err != nil || ref.ID == "" {
		return appointment
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(appointment, &fields); err != nil {
		return appointment
	}
	id, err := json.Marshal(ref.ID)
	if err != nil {
		return appointment
	}
	fields["customer_id"] = id

	merged, err := json.Marshal(fields)
	if err != nil {
		return appointment
	}
	return merged
}

func chargePresent(charge json.RawMessage) bool {
	return len(charge) > 0 && string(charge) != "null"
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
