package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/polishcrew/syncbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(serverURL string) config.Config {
	cfg := config.Default()
	cfg.SupabaseURL = serverURL
	cfg.SupabaseAnonKey = "anon-key"
	return cfg
}

func TestNewClient_NotReadyWithoutConnectionParams(t *testing.T) {
	assert.False(t, NewClient(config.Default()).Ready())

	cfg := config.Default()
	cfg.SupabaseURL = "https://example.supabase.co"
	assert.False(t, NewClient(cfg).Ready()) // no anon key

	cfg = config.Default()
	cfg.SupabaseAnonKey = "anon"
	assert.False(t, NewClient(cfg).Ready()) // no URL
}

func TestNewClient_NotReadyWithInvalidURL(t *testing.T) {
	cfg := config.Default()
	cfg.SupabaseAnonKey = "anon"

	cfg.SupabaseURL = "://bad"
	assert.False(t, NewClient(cfg).Ready())

	cfg.SupabaseURL = "ftp://example.com"
	assert.False(t, NewClient(cfg).Ready())
}

func TestClient_NotReadyOperationsReturnErrNotReady(t *testing.T) {
	client := NewClient(config.Default())
	ctx := context.Background()

	_, err := client.SelectAll(ctx, "customers")
	assert.ErrorIs(t, err, ErrNotReady)

	err = client.Upsert(ctx, "customers", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = client.Invoke(ctx, "fn", nil)
	assert.ErrorIs(t, err, ErrNotReady)

	assert.Empty(t, client.BaseURL())
}

func TestClient_SelectAllSendsAuthHeaders(t *testing.T) {
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		_, _ = w.Write([]byte(`[{"id":"C1"}]`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	require.True(t, client.Ready())

	body, err := client.SelectAll(context.Background(), "customers")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"C1"}]`, string(body))

	require.NotNil(t, captured)
	assert.Equal(t, "/rest/v1/customers", captured.URL.Path)
	assert.Equal(t, "select=*", captured.URL.RawQuery)
	assert.Equal(t, "anon-key", captured.Header.Get("apikey"))
	assert.Equal(t, "Bearer anon-key", captured.Header.Get("Authorization"))
	assert.Equal(t, "polish-crew-crm", captured.Header.Get("x-pcwa-client"))
}

func TestClient_UpsertSendsMergeDuplicatesPrefer(t *testing.T) {
	var prefer, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefer = r.Header.Get("Prefer")
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	err := client.Upsert(context.Background(), "appointments", json.RawMessage(`{"id":"A1"}`))

	require.NoError(t, err)
	assert.Equal(t, "resolution=merge-duplicates", prefer)
	assert.Equal(t, "application/json", contentType)
}

func TestClient_UpsertReturningUnwrapsRowArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "resolution=merge-duplicates,return=representation", r.Header.Get("Prefer"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"C9","name":"Ada"}]`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	row, err := client.UpsertReturning(context.Background(), "customers", json.RawMessage(`{"name":"Ada"}`))

	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"C9","name":"Ada"}`, string(row))
}

func TestClient_InsertReturningBareObjectResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"A5"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	row, err := client.InsertReturning(context.Background(), "appointments", json.RawMessage(`{}`))

	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"A5"}`, string(row))
}

func TestClient_InsertReturningEmptyRowSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.InsertReturning(context.Background(), "appointments", json.RawMessage(`{}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no row returned")
}

func TestClient_InvokePostsToFunctionsEndpoint(t *testing.T) {
	var path, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	result, err := client.Invoke(context.Background(), "send-booking-confirmation", json.RawMessage(`{"amount":50}`))

	require.NoError(t, err)
	assert.Equal(t, "/functions/v1/send-booking-confirmation", path)
	assert.JSONEq(t, `{"amount":50}`, body)
	assert.JSONEq(t, `{"ok":true}`, string(result))
}

func TestClient_InvokeNilBodyDefaultsToEmptyObject(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.Invoke(context.Background(), "fn", nil)

	require.NoError(t, err)
	assert.Equal(t, "{}", body)
}

func TestClient_NonSuccessStatusSurfacesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid api key"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.SelectAll(context.Background(), "customers")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid api key")
}
