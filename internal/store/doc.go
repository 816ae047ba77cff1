// ABOUTME: Package documentation for the settings store
// ABOUTME: Explains the split between plain settings and the encrypted vault

// Package store provides the plain half of the agent's persisted session
// state, backed by SQLite.
//
// Session state is split across two stores with independent atomicity:
//
//   - Settings (this package): selected device id, server endpoint, and the
//     tracking-enabled flag. Not secret, but must survive process death.
//   - vault.Vault: the token + user credential pair, encrypted at rest.
//
// No operation spans both stores. A crash between a vault clear and a device
// id clear is acceptable: a missing credential pair already forces
// re-authentication, which makes a leftover device id harmless until it is
// explicitly overwritten.
//
// Reads deliberately do not return errors. A value that cannot be read is
// reported as absent (device id -1, empty endpoint, tracking off), because
// every caller treats absence as "not ready" rather than as a fault.
package store
