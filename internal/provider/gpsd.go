// ABOUTME: gpsd location provider speaking the JSON watch protocol over TCP
// ABOUTME: Reconnects with a fixed delay; only 2D/3D TPV reports become position reports

package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const (
	gpsdWatchCommand   = `?WATCH={"enable":true,"json":true};`
	gpsdReconnectDelay = 5 * time.Second
)

// Gpsd subscribes to a gpsd daemon and forwards its TPV reports. The
// connection is re-established after errors for as long as the context
// lives; a tracking session should ride out a GPS daemon restart.
type Gpsd struct {
	addr   string
	logger *slog.Logger
}

// NewGpsd creates a provider reading from the gpsd daemon at addr.
func NewGpsd(addr string) *Gpsd {
	return &Gpsd{
		addr:   addr,
		logger: slog.Default().With("component", "gpsd"),
	}
}

// tpv is the subset of a gpsd TPV report the agent consumes. epx/epy/epv are
// the estimated errors in meters; mode 2 and 3 are 2D and 3D fixes.
type tpv struct {
	Class string    `json:"class"`
	Mode  int       `json:"mode"`
	Time  time.Time `json:"time"`
	Lat   float64   `json:"lat"`
	Lon   float64   `json:"lon"`
	Alt   float64   `json:"alt"`
	Epx   float64   `json:"epx"`
	Epy   float64   `json:"epy"`
	Epv   float64   `json:"epv"`
}

// Run connects to gpsd and pushes reports to h until ctx is cancelled.
func (g *Gpsd) Run(ctx context.Context, h Handler) error {
	for {
		if err := g.watch(ctx, h); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.Warn("gpsd connection lost, reconnecting", "addr", g.addr, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(gpsdReconnectDelay):
		}
	}
}

func (g *Gpsd) watch(ctx context.Context, h Handler) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", g.addr)
	if err != nil {
		return fmt.Errorf("dialing gpsd: %w", err)
	}
	defer conn.Close()

	// Unblock the blocking read when the session stops.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if _, err := fmt.Fprintln(conn, gpsdWatchCommand); err != nil {
		return fmt.Errorf("enabling watch: %w", err)
	}
	g.logger.Info("watching gpsd", "addr", g.addr)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var report tpv
		if err := json.Unmarshal(scanner.Bytes(), &report); err != nil {
			// gpsd emits VERSION/DEVICES/SKY lines too; anything that
			// doesn't parse as TPV is simply not for us.
			continue
		}
		if report.Class != "TPV" || report.Mode < 2 {
			continue
		}

		captured := report.Time
		if captured.IsZero() {
			captured = time.Now()
		}

		h(Report{
			Latitude:         report.Lat,
			Longitude:        report.Lon,
			Altitude:         report.Alt,
			Accuracy:         float32(max(report.Epx, report.Epy)),
			AltitudeAccuracy: float32(report.Epv),
			Time:             captured,
		})
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading gpsd stream: %w", err)
	}
	return nil
}
