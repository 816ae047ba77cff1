// ABOUTME: Minimal fake gpsd for E2E testing — streams TPV reports from a TOML route.
// ABOUTME: Usage: fake-gpsd [-addr 127.0.0.1:2947] [-route route.toml] [-interval 1s]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/kebs/onloc-agent/internal/provider"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:2947", "TCP listen address")
	routeFile := flag.String("route", "route.toml", "TOML route file to replay")
	interval := flag.Duration("interval", time.Second, "delay between TPV reports")
	flag.Parse()

	if err := run(*addr, *routeFile, *interval); err != nil {
		log.Fatal(err)
	}
}

func run(addr, routeFile string, interval time.Duration) error {
	route, err := provider.LoadRoute(routeFile)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	defer ln.Close()

	log.Printf("fake gpsd listening on %s, replaying %d points", addr, len(route.Points))

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		go serve(conn, route, interval)
	}
}

// tpv mirrors the wire shape a real gpsd emits for a 3D fix.
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

func serve(conn net.Conn, route *provider.Route, interval time.Duration) {
	defer conn.Close()
	log.Printf("client connected: %s", conn.RemoteAddr())

	// Real gpsd announces itself before the client enables watch mode.
	version := map[string]any{
		"class":       "VERSION",
		"release":     "3.25~fake",
		"proto_major": 3,
		"proto_minor": 14,
	}
	enc := json.NewEncoder(conn)
	if err := enc.Encode(version); err != nil {
		return
	}

	// The client's ?WATCH command arrives next; the stream starts
	// regardless of its content, which is all our consumer needs.
	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	conn.Read(buf)

	i := 0
	for {
		p := route.Points[i%len(route.Points)]
		i++

		report := tpv{
			Class: "TPV",
			Mode:  3,
			Time:  time.Now().UTC(),
			Lat:   p.Latitude,
			Lon:   p.Longitude,
			Alt:   p.Altitude,
			Epx:   float64(p.Accuracy),
			Epy:   float64(p.Accuracy),
			Epv:   float64(p.AltitudeAccuracy),
		}
		if err := enc.Encode(report); err != nil {
			log.Printf("client gone: %s", conn.RemoteAddr())
			return
		}

		if !route.Loop && i >= len(route.Points) {
			// Non-looping routes park at their last point, like a
			// stationary receiver.
			i = len(route.Points) - 1
		}
		time.Sleep(interval)
	}
}
