// ABOUTME: Core data types shared across the agent: devices, users, and location fixes
// ABOUTME: Fixes are immutable once constructed and are never persisted locally

package model

import "time"

// Device is a server-side identity that location fixes are attributed to.
// It is distinct from the machine the agent runs on: the server may know
// several devices for one account, and the user picks which one this agent
// reports as. Devices are fetched, never mutated locally.
type Device struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// User is the authenticated principal. The vault stores it opaquely as JSON;
// nothing in the agent interprets it beyond displaying the name and passing
// the ID to the logout call.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Fix is a single position reading stamped with the device identity it
// belongs to. ID is zero on creation and assigned by the server. A fix is
// either delivered or discarded; there is no local queue of past fixes.
type Fix struct {
	ID               int       `json:"id"`
	DeviceID         int       `json:"deviceId"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Altitude         float64   `json:"altitude"`
	Accuracy         float32   `json:"accuracy"`
	AltitudeAccuracy float32   `json:"altitudeAccuracy"`
	CapturedAt       time.Time `json:"timestamp"`
}
