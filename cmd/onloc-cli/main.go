// ABOUTME: Operator CLI for a running onloc-agent daemon
// ABOUTME: Drives the localhost control API: login, device selection, start/stop, status

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
             _                    _ _
  ___  _ __ | | ___   ___     ___| (_)
 / _ \| '_ \| |/ _ \ / __|__ / __| | |
| (_) | | | | | (_) | (_|____| (__| | |
 \___/|_| |_|_|\___/ \___|    \___|_|_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	agentURL := os.Getenv("ONLOC_AGENT_URL")
	if agentURL == "" {
		agentURL = "http://127.0.0.1:8847"
	}
	agentURL = strings.TrimRight(agentURL, "/")

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(agentURL)
	case "start":
		err = cmdStart(agentURL)
	case "stop":
		err = cmdStop(agentURL)
	case "devices":
		err = cmdDevices(agentURL)
	case "select":
		err = cmdSelect(agentURL, args)
	case "login":
		err = cmdLogin(agentURL, args)
	case "logout":
		err = cmdLogout(agentURL)
	case "last-fix":
		err = cmdLastFix(agentURL)
	case "watch":
		err = cmdWatch(agentURL)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: onloc-cli <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status               Show agent session state")
	fmt.Println("  start                Start location tracking")
	fmt.Println("  stop                 Stop location tracking")
	fmt.Println("  devices              List devices registered on the server")
	fmt.Println("  select <id>          Bind this agent to a device")
	fmt.Println("  login [endpoint]     Authenticate against the server")
	fmt.Println("  logout               Stop tracking and clear the session")
	fmt.Println("  last-fix             Show the most recent location fix")
	fmt.Println("  watch                Stream location fixes as they arrive")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  ONLOC_AGENT_URL      Agent control API (default: http://127.0.0.1:8847)")
	fmt.Println()
}

// apiError is the control API's error body.
type apiError struct {
	Error string `json:"error"`
}

// call performs one control API request and decodes the response into out.
// Non-2xx responses become errors carrying the server's message.
func call(agentURL, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, agentURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent unreachable at %s (is onloc-agent running?): %w", agentURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("agent returned status %d", resp.StatusCode)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

type statusResponse struct {
	Status          string     `json:"status"`
	TrackingEnabled bool       `json:"trackingEnabled"`
	DeviceID        int        `json:"deviceId"`
	Endpoint        string     `json:"endpoint"`
	User            *userInfo  `json:"user"`
	TokenExpiresAt  *time.Time `json:"tokenExpiresAt"`
	TokenExpired    bool       `json:"tokenExpired"`
}

type userInfo struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

func cmdStatus(agentURL string) error {
	var status statusResponse
	if err := call(agentURL, http.MethodGet, "/status", nil, &status); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	switch status.Status {
	case "running":
		green.Printf("  Tracking: ")
		fmt.Println("running")
	case "permissions_missing":
		yellow.Printf("  Tracking: ")
		fmt.Println("blocked (location permissions missing)")
	case "no_device_selected":
		yellow.Printf("  Tracking: ")
		fmt.Println("blocked (no device selected)")
	default:
		fmt.Printf("  Tracking: %s\n", status.Status)
	}

	if status.User != nil {
		green.Printf("  Account:  ")
		fmt.Println(status.User.Username)
		if status.TokenExpiresAt != nil {
			if status.TokenExpired {
				yellow.Printf("  Token:    ")
				color.Red("expired %s\n", status.TokenExpiresAt.Format("Jan 02 15:04"))
			} else {
				green.Printf("  Token:    ")
				fmt.Printf("valid until %s\n", status.TokenExpiresAt.Format("Jan 02 15:04"))
			}
		}
	} else {
		yellow.Printf("  Account:  ")
		fmt.Println("(not logged in)")
	}

	if status.Endpoint != "" {
		green.Printf("  Server:   ")
		fmt.Println(status.Endpoint)
	}
	if status.DeviceID >= 0 {
		green.Printf("  Device:   ")
		fmt.Println(status.DeviceID)
	}
	fmt.Println()

	return nil
}

func cmdStart(agentURL string) error {
	if err := call(agentURL, http.MethodPost, "/start", nil, nil); err != nil {
		return err
	}
	color.Green("tracking started")
	return nil
}

func cmdStop(agentURL string) error {
	if err := call(agentURL, http.MethodPost, "/stop", nil, nil); err != nil {
		return err
	}
	color.Green("tracking stopped")
	return nil
}

type device struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func cmdDevices(agentURL string) error {
	var resp struct {
		Devices []device `json:"devices"`
	}
	if err := call(agentURL, http.MethodGet, "/devices", nil, &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Devices")
	cyan.Println("  -------")

	if len(resp.Devices) == 0 {
		fmt.Println("  (no devices registered on the server)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME")
	fmt.Fprintln(w, "  --\t----")
	for _, d := range resp.Devices {
		fmt.Fprintf(w, "  %d\t%s\n", d.ID, d.Name)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdSelect(agentURL string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: onloc-cli select <device-id>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id < 0 {
		return fmt.Errorf("device id must be a non-negative integer")
	}

	body := map[string]int{"deviceId": id}
	if err := call(agentURL, http.MethodPut, "/device", body, nil); err != nil {
		return err
	}
	color.Green("device %d selected", id)
	return nil
}

func cmdLogin(agentURL string, args []string) error {
	endpoint := ""
	if len(args) > 0 {
		endpoint = args[0]
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	fmt.Print("Password: ")
	password, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	body := map[string]string{
		"endpoint": endpoint,
		"username": strings.TrimSpace(username),
		"password": strings.TrimSpace(password),
	}
	var resp struct {
		User *userInfo `json:"user"`
	}
	if err := call(agentURL, http.MethodPost, "/login", body, &resp); err != nil {
		return err
	}
	if resp.User != nil {
		color.Green("logged in as %s", resp.User.Username)
	} else {
		color.Green("logged in")
	}
	return nil
}

func cmdLogout(agentURL string) error {
	if err := call(agentURL, http.MethodPost, "/logout", nil, nil); err != nil {
		return err
	}
	color.Green("logged out")
	return nil
}

func cmdLastFix(agentURL string) error {
	req, err := http.NewRequest(http.MethodGet, agentURL+"/last-fix", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent unreachable at %s: %w", agentURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		fmt.Println("(no fix received yet)")
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent returned status %d", resp.StatusCode)
	}

	var fix struct {
		DeviceID   int       `json:"deviceId"`
		Latitude   float64   `json:"latitude"`
		Longitude  float64   `json:"longitude"`
		Altitude   float64   `json:"altitude"`
		Accuracy   float32   `json:"accuracy"`
		CapturedAt time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fix); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	fmt.Println()
	green.Printf("  Position: ")
	fmt.Printf("%.6f, %.6f\n", fix.Latitude, fix.Longitude)
	green.Printf("  Altitude: ")
	fmt.Printf("%.1f m\n", fix.Altitude)
	green.Printf("  Accuracy: ")
	fmt.Printf("±%.1f m\n", fix.Accuracy)
	green.Printf("  Device:   ")
	fmt.Println(fix.DeviceID)
	green.Printf("  Captured: ")
	fmt.Println(fix.CapturedAt.Local().Format("Jan 02 15:04:05"))
	fmt.Println()

	return nil
}

// cmdWatch follows the agent's fix stream and prints one line per fix
// until interrupted.
func cmdWatch(agentURL string) error {
	resp, err := http.Get(agentURL + "/last-fix/stream")
	if err != nil {
		return fmt.Errorf("agent unreachable at %s: %w", agentURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent returned status %d", resp.StatusCode)
	}

	gray := color.New(color.FgHiBlack)
	gray.Println("watching for fixes (Ctrl-C to stop)")

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var fix struct {
			DeviceID   int       `json:"deviceId"`
			Latitude   float64   `json:"latitude"`
			Longitude  float64   `json:"longitude"`
			Accuracy   float32   `json:"accuracy"`
			CapturedAt time.Time `json:"timestamp"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &fix); err != nil {
			continue
		}

		gray.Printf("%s  ", fix.CapturedAt.Local().Format("15:04:05"))
		fmt.Printf("%.6f, %.6f", fix.Latitude, fix.Longitude)
		gray.Printf("  ±%.1f m  device %d\n", fix.Accuracy, fix.DeviceID)
	}
	return scanner.Err()
}
