// ABOUTME: Location provider abstraction — the push source of raw position reports
// ABOUTME: Providers run until cancelled and hand every report to a single handler

package provider

import (
	"context"
	"time"
)

// Report is one raw position reading as pushed by a location source, before
// it is stamped with a device identity. Accuracy values are in meters.
type Report struct {
	Latitude         float64
	Longitude        float64
	Altitude         float64
	Accuracy         float32
	AltitudeAccuracy float32
	Time             time.Time
}

// Handler consumes a pushed report. It is invoked from the provider's own
// goroutine and must not block on network I/O.
type Handler func(Report)

// Provider is a push-style location source. Run blocks, delivering reports
// to h at the source's own cadence until ctx is cancelled. The report rate is
// the provider's contract; consumers do not rate-limit.
type Provider interface {
	Run(ctx context.Context, h Handler) error
}
