// ABOUTME: HTTP client for the Onloc tracking server
// ABOUTME: Pure transport — callers supply the endpoint and token on every call

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kebs/onloc-agent/internal/model"
)

// Client talks to the Onloc server's REST API. It holds no session state of
// its own: endpoint and token are parameters on every call because both can
// change between calls (logout, device switch) and the store owns them.
type Client struct {
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a sync client. Pass nil to use the default HTTP client;
// no explicit timeout is set beyond the transport's own.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		client: httpClient,
		logger: slog.Default().With("component", "api"),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Login authenticates against the server and returns the bearer token and
// user record to store in the vault.
func (c *Client) Login(ctx context.Context, endpoint, username, password string) (string, *model.User, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, endpoint, "/api/auth/login", "",
		loginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return "", nil, err
	}
	if resp.Token == "" || resp.User == nil {
		return "", nil, fmt.Errorf("server returned incomplete credentials")
	}
	return resp.Token, resp.User, nil
}

type devicesResponse struct {
	Devices []model.Device `json:"devices"`
}

// ListDevices fetches the devices the authenticated user may track. An empty
// result is a valid answer and is distinct from an error: callers must show a
// failure state, not "zero devices", when err is non-nil.
func (c *Client) ListDevices(ctx context.Context, endpoint, token string) ([]model.Device, error) {
	var resp devicesResponse
	if err := c.do(ctx, http.MethodGet, endpoint, "/api/devices", token, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Devices == nil {
		return []model.Device{}, nil
	}
	return resp.Devices, nil
}

// PostLocation delivers one fix to the server under the device id stamped on
// the fix. The returned error is informational: the tracking use case accepts
// a lost point, so callers log it and move on — no retry, no queue.
func (c *Client) PostLocation(ctx context.Context, endpoint, token string, fix model.Fix) error {
	return c.do(ctx, http.MethodPost, endpoint, "/api/locations", token, fix, nil)
}

type logoutRequest struct {
	UserID int `json:"userId"`
}

// Logout asks the server to invalidate the session. Best effort: the caller
// clears local credentials whether or not this call succeeds.
func (c *Client) Logout(ctx context.Context, endpoint, token string, userID int) error {
	return c.do(ctx, http.MethodPost, endpoint, "/api/auth/logout", token, logoutRequest{UserID: userID}, nil)
}

// do performs one JSON request. A non-2xx response is returned as an error
// carrying the server's message when one is present.
func (c *Client) do(ctx context.Context, method, endpoint, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	url := strings.TrimSuffix(endpoint, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorFromResponse extracts an error message from a non-2xx response.
func (c *Client) errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
		}
		if errResp.Message != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Message)
		}
	}

	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
