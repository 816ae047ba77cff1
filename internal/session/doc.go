// ABOUTME: Package documentation for the session controller
// ABOUTME: Describes the state machine and the permission gating model

// Package session owns the tracking session: whether tracking is enabled,
// whether it may run, and the lifecycle of the background process doing it.
//
// # State machine
//
// Two states, {Stopped, Running}, and three transitions:
//
//   - start: Stopped -> Running, guarded by CanStart (device selected and
//     both location permissions granted)
//   - stop: Running -> Stopped, unconditional
//   - logout: either -> Stopped, additionally clearing credentials and the
//     device binding
//
// There is no paused state. Revoking a permission while running does not
// mutate the stored flag; Status reports PermissionsMissing until the user
// stops or the grants return. Passive reads never change state.
//
// # Permission gating
//
// CanStart is recomputed from live permission and store state on every call.
// Permissions change outside the agent's control, so nothing here is cached;
// the cost of a re-read is nothing next to the drift a cache would invite.
package session
