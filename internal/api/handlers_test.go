package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/polishcrew/syncbridge/internal/state"
	"github.com/polishcrew/syncbridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBridge struct {
	syncResult   types.SyncResult
	booking      types.BookingResult
	bookingErr   error
	checkout     types.CheckoutResult
	checkoutErr  error
	st           *state.State
	stateJSONErr error
	initialised  bool

	bootstraps int
	lastReq    types.BookingRequest
}

func (f *fakeBridge) Bootstrap(_ context.Context, _ *state.State) types.SyncResult {
	f.bootstraps++
	return f.syncResult
}

func (f *fakeBridge) CreateBooking(_ context.Context, req types.BookingRequest) (types.BookingResult, error) {
	f.lastReq = req
	return f.booking, f.bookingErr
}

func (f *fakeBridge) CreateStripeCheckout(_ context.Context, _ json.RawMessage) (types.CheckoutResult, error) {
	return f.checkout, f.checkoutErr
}

func (f *fakeBridge) State() *state.State { return f.st }
func (f *fakeBridge) Initialised() bool   { return f.initialised }

func (f *fakeBridge) StateJSON() ([]byte, error) {
	if f.stateJSONErr != nil {
		return nil, f.stateJSONErr
	}
	if f.st == nil {
		return nil, nil
	}
	return json.Marshal(f.st)
}

type fakeDrainer struct {
	drainErr error
	depth    int
	drains   int
}

func (f *fakeDrainer) Drain(context.Context) error { f.drains++; return f.drainErr }
func (f *fakeDrainer) Depth(context.Context) int   { return f.depth }

func newTestRouter(bridge *fakeBridge, drainer *fakeDrainer, online func() bool) *gin.Engine {
	router := gin.New()
	SetupRoutes(router, NewHandler(bridge, drainer, online), nil)
	return router
}

func perform(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck_DegradedWhenOffline(t *testing.T) {
	router := newTestRouter(&fakeBridge{}, &fakeDrainer{depth: 3}, nil)

	rec := perform(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health types.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.False(t, health.Online)
	assert.Equal(t, 3, health.QueueDepth)
}

func TestHealthCheck_HealthyWhenOnline(t *testing.T) {
	router := newTestRouter(&fakeBridge{initialised: true}, &fakeDrainer{}, func() bool { return true })

	rec := perform(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health types.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.Online)
	assert.True(t, health.Initialised)
}

func TestHealthCheck_ReportsNotInitialised(t *testing.T) {
	router := newTestRouter(&fakeBridge{}, &fakeDrainer{}, func() bool { return true })

	rec := perform(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health types.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.False(t, health.Initialised)
}

func TestBootstrap_ReturnsSyncResult(t *testing.T) {
	bridge := &fakeBridge{
		st:         state.New(),
		syncResult: types.SyncResult{Synced: true},
	}
	router := newTestRouter(bridge, &fakeDrainer{}, nil)

	rec := perform(router, http.MethodPost, "/api/v1/sync/bootstrap", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, bridge.bootstraps)

	var result types.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Synced)
}

func TestFlush_TriggersDrain(t *testing.T) {
	drainer := &fakeDrainer{depth: 2}
	router := newTestRouter(&fakeBridge{}, drainer, nil)

	rec := perform(router, http.MethodPost, "/api/v1/sync/flush", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, drainer.drains)
	assert.JSONEq(t, `{"status":"flushed","pending":2}`, rec.Body.String())
}

func TestFlush_DrainFailure(t *testing.T) {
	drainer := &fakeDrainer{drainErr: errors.New("storage offline")}
	router := newTestRouter(&fakeBridge{}, drainer, nil)

	rec := perform(router, http.MethodPost, "/api/v1/sync/flush", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "flush failed", resp.Error)
}

func TestGetState_NotFoundBeforeBinding(t *testing.T) {
	router := newTestRouter(&fakeBridge{}, &fakeDrainer{}, nil)

	rec := perform(router, http.MethodGet, "/api/v1/state", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetState_ReturnsTree(t *testing.T) {
	st := state.New()
	st.Clients = append(st.Clients, &state.Client{ID: "C1", Name: "Ada"})
	router := newTestRouter(&fakeBridge{st: st}, &fakeDrainer{}, nil)

	rec := perform(router, http.MethodGet, "/api/v1/state", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got state.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Clients, 1)
	assert.Equal(t, "Ada", got.Clients[0].Name)
}

func TestGetState_SerializationFailure(t *testing.T) {
	bridge := &fakeBridge{st: state.New(), stateJSONErr: errors.New("marshal failed")}
	router := newTestRouter(bridge, &fakeDrainer{}, nil)

	rec := perform(router, http.MethodGet, "/api/v1/state", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "state unavailable", resp.Error)
}

func TestCreateBooking_Created(t *testing.T) {
	bridge := &fakeBridge{
		booking: types.BookingResult{
			Customer:    json.RawMessage(`{"id":"C9"}`),
			Appointment: json.RawMessage(`{"id":"A5"}`),
		},
	}
	router := newTestRouter(bridge, &fakeDrainer{}, nil)

	rec := perform(router, http.MethodPost, "/api/v1/bookings",
		`{"customer":{"name":"Ada"},"appointment":{"date":"2024-06-02"}}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"name":"Ada"}`, string(bridge.lastReq.Customer))
}

func TestCreateBooking_AcceptedWhenQueued(t *testing.T) {
	bridge := &fakeBridge{booking: types.BookingResult{Queued: true}}
	router := newTestRouter(bridge, &fakeDrainer{}, nil)

	rec := perform(router, http.MethodPost, "/api/v1/bookings",
		`{"customer":{},"appointment":{}}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCreateBooking_BadRequestOnInvalidJSON(t *testing.T) {
	router := newTestRouter(&fakeBridge{}, &fakeDrainer{}, nil)

	rec := perform(router, http.MethodPost, "/api/v1/bookings", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBooking_BadGatewayOnFailure(t *testing.T) {
	bridge := &fakeBridge{bookingErr: errors.New("customers write rejected")}
	router := newTestRouter(bridge, &fakeDrainer{}, nil)

	rec := perform(router, http.MethodPost, "/api/v1/bookings",
		`{"customer":{},"appointment":{}}`)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "booking failed", resp.Error)
}

func TestCreateCheckout_OK(t *testing.T) {
	bridge := &fakeBridge{checkout: types.CheckoutResult{Data: json.RawMessage(`{"url":"https://pay.example"}`)}}
	router := newTestRouter(bridge, &fakeDrainer{}, nil)

	rec := perform(router, http.MethodPost, "/api/v1/checkout", `{"priceId":"p1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateCheckout_AcceptedWhenQueued(t *testing.T) {
	bridge := &fakeBridge{checkout: types.CheckoutResult{Queued: true}}
	router := newTestRouter(bridge, &fakeDrainer{}, nil)

	rec := perform(router, http.MethodPost, "/api/v1/checkout", `{}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCreateCheckout_RejectsNonJSONBody(t *testing.T) {
	router := newTestRouter(&fakeBridge{}, &fakeDrainer{}, nil)

	rec := perform(router, http.MethodPost, "/api/v1/checkout", `not json at all`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
