// ABOUTME: Tests for the Onloc server HTTP client
// ABOUTME: Covers auth headers, error-vs-empty distinction, and wire payloads

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebs/onloc-agent/internal/model"
)

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/login", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "alice", req["username"])
		require.Equal(t, "hunter2", req["password"])

		json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-123",
			"user":  map[string]any{"id": 42, "username": "alice"},
		})
	}))
	defer srv.Close()

	c := NewClient(nil)
	token, user, err := c.Login(context.Background(), srv.URL, "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
	require.NotNil(t, user)
	assert.Equal(t, 42, user.ID)
}

func TestLoginRejectsIncompletePair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"token": "tok-123"})
	}))
	defer srv.Close()

	c := NewClient(nil)
	_, _, err := c.Login(context.Background(), srv.URL, "alice", "hunter2")
	assert.Error(t, err)
}

func TestListDevices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/devices", r.URL.Path)
		require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]any{
			"devices": []map[string]any{
				{"id": 1, "name": "phone"},
				{"id": 7, "name": "bike"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(nil)
	devices, err := c.ListDevices(context.Background(), srv.URL, "tok-123")
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, model.Device{ID: 7, Name: "bike"}, devices[1])
}

func TestListDevicesEmptyIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"devices": []any{}})
	}))
	defer srv.Close()

	c := NewClient(nil)
	devices, err := c.ListDevices(context.Background(), srv.URL, "tok")
	require.NoError(t, err)
	assert.Empty(t, devices)
	assert.NotNil(t, devices, "empty result must be a list, not an error")
}

func TestListDevicesSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "token expired"})
	}))
	defer srv.Close()

	c := NewClient(nil)
	devices, err := c.ListDevices(context.Background(), srv.URL, "stale")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token expired")
	assert.Nil(t, devices)
}

func TestPostLocation(t *testing.T) {
	captured := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/locations", r.URL.Path)
		require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		captured <- body
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	fix := model.Fix{
		DeviceID:         7,
		Latitude:         45.5019,
		Longitude:        -73.5674,
		Altitude:         36.2,
		Accuracy:         4.5,
		AltitudeAccuracy: 2.1,
		CapturedAt:       time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
	}

	c := NewClient(nil)
	require.NoError(t, c.PostLocation(context.Background(), srv.URL, "tok-123", fix))

	body := <-captured
	assert.Equal(t, float64(7), body["deviceId"])
	assert.Equal(t, 45.5019, body["latitude"])
	assert.Equal(t, -73.5674, body["longitude"])
	assert.Contains(t, body, "accuracy")
	assert.Contains(t, body, "altitudeAccuracy")
	assert.Contains(t, body, "timestamp")
}

func TestPostLocationReturnsErrorOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(nil)
	err := c.PostLocation(context.Background(), srv.URL, "tok", model.Fix{DeviceID: 1})
	assert.Error(t, err)
}

func TestLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/logout", r.URL.Path)
		require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, float64(42), body["userId"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(nil)
	assert.NoError(t, c.Logout(context.Background(), srv.URL, "tok-123", 42))
}

func TestUnreachableServer(t *testing.T) {
	c := NewClient(nil)
	_, err := c.ListDevices(context.Background(), "http://127.0.0.1:1", "tok")
	assert.Error(t, err)
}
