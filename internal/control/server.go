// ABOUTME: Localhost control API — the surface a UI or CLI drives the agent through
// ABOUTME: Exposes session start/stop/status, device selection, login/logout, and the last fix

package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kebs/onloc-agent/internal/auth"
	"github.com/kebs/onloc-agent/internal/model"
	"github.com/kebs/onloc-agent/internal/session"
	"github.com/kebs/onloc-agent/internal/store"
	"github.com/kebs/onloc-agent/internal/vault"
)

// syncClient is the slice of the sync client the control surface needs.
type syncClient interface {
	Login(ctx context.Context, endpoint, username, password string) (string, *model.User, error)
	ListDevices(ctx context.Context, endpoint, token string) ([]model.Device, error)
}

// lastFixSource is the slice of the bridge the control surface needs.
type lastFixSource interface {
	LastFix() (model.Fix, bool)
	Subscribe(ctx context.Context) (<-chan model.Fix, string)
	Unsubscribe(subID string)
}

// Server handles the control API. It binds to loopback only; there is no
// authentication on this surface because reaching it already means being on
// the machine.
type Server struct {
	controller *session.Controller
	settings   *store.Settings
	vault      *vault.Vault
	client     syncClient
	lastFix    lastFixSource
	logger     *slog.Logger
}

// NewServer wires the control API to its collaborators.
func NewServer(controller *session.Controller, settings *store.Settings, v *vault.Vault, client syncClient, lastFix lastFixSource) *Server {
	return &Server{
		controller: controller,
		settings:   settings,
		vault:      v,
		client:     client,
		lastFix:    lastFix,
		logger:     slog.Default().With("component", "control"),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", s.handleStatus)
	r.Post("/start", s.handleStart)
	r.Post("/stop", s.handleStop)
	r.Get("/last-fix", s.handleLastFix)
	r.Get("/last-fix/stream", s.handleStreamFixes)

	r.Get("/devices", s.handleListDevices)
	r.Put("/device", s.handleSelectDevice)
	r.Delete("/device", s.handleClearDevice)

	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	return r
}

// statusResponse is the agent state a UI renders.
type statusResponse struct {
	Status          session.Status `json:"status"`
	TrackingEnabled bool           `json:"trackingEnabled"`
	DeviceID        int            `json:"deviceId"`
	Endpoint        string         `json:"endpoint,omitempty"`
	User            *model.User    `json:"user,omitempty"`
	TokenExpiresAt  *time.Time     `json:"tokenExpiresAt,omitempty"`
	TokenExpired    bool           `json:"tokenExpired"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := statusResponse{
		Status:          s.controller.Status(ctx),
		TrackingEnabled: s.settings.TrackingEnabled(ctx),
		DeviceID:        s.settings.DeviceID(ctx),
		Endpoint:        s.settings.Endpoint(ctx),
	}

	if token, user, ok := s.vault.Get(); ok {
		resp.User = user
		resp.TokenExpired = auth.TokenExpired(token, time.Now())
		if exp, err := auth.TokenExpiry(token); err == nil {
			resp.TokenExpiresAt = &exp
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Start(r.Context()); err != nil {
		if errors.Is(err, session.ErrPrecondition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("start failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start tracking")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Stop(r.Context()); err != nil {
		s.logger.Error("stop failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to stop tracking")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLastFix(w http.ResponseWriter, _ *http.Request) {
	fix, ok := s.lastFix.LastFix()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, fix)
}

// handleStreamFixes pushes fixes to the client as server-sent events. The
// stream opens with the current fix when one exists, then carries every
// update until the client disconnects.
func (s *Server) handleStreamFixes(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	updates, subID := s.lastFix.Subscribe(ctx)
	defer s.lastFix.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if fix, ok := s.lastFix.LastFix(); ok {
		if err := writeEvent(w, fix); err != nil {
			return
		}
		flusher.Flush()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, fix); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, fix model.Fix) error {
	data, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, _, ok := s.vault.Get()
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	endpoint := s.settings.Endpoint(ctx)
	if endpoint == "" {
		writeError(w, http.StatusConflict, "no server endpoint configured")
		return
	}

	devices, err := s.client.ListDevices(ctx, endpoint, token)
	if err != nil {
		// Not conflated with an empty list: the caller must show a
		// failure state, not "you have zero devices".
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.Device{"devices": devices})
}

type selectDeviceRequest struct {
	DeviceID int `json:"deviceId"`
}

func (s *Server) handleSelectDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req selectDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID < 0 {
		writeError(w, http.StatusBadRequest, "deviceId must be a non-negative integer")
		return
	}

	// The binding is frozen while tracking runs; fixes in flight carry the
	// device they were stamped with, and a silent switch mid-session would
	// scatter one walk across two devices.
	if s.settings.TrackingEnabled(ctx) {
		writeError(w, http.StatusConflict, "stop tracking before switching devices")
		return
	}

	if err := s.settings.SetDeviceID(ctx, req.DeviceID); err != nil {
		s.logger.Error("device selection failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store device selection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.settings.TrackingEnabled(ctx) {
		writeError(w, http.StatusConflict, "stop tracking before clearing the device")
		return
	}
	if err := s.settings.ClearDeviceID(ctx); err != nil {
		s.logger.Error("device clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear device selection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type loginRequest struct {
	Endpoint string `json:"endpoint"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid login request")
		return
	}
	if req.Endpoint == "" {
		req.Endpoint = s.settings.Endpoint(ctx)
	}
	if req.Endpoint == "" || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "endpoint, username, and password are required")
		return
	}

	token, user, err := s.client.Login(ctx, req.Endpoint, req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	// Endpoint first: a crash between the two writes leaves a usable
	// endpoint and no credentials, which just means logging in again.
	if err := s.settings.SetEndpoint(ctx, req.Endpoint); err != nil {
		s.logger.Error("storing endpoint failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store endpoint")
		return
	}
	if err := s.vault.Set(token, user); err != nil {
		s.logger.Error("storing credentials failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]*model.User{"user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Logout(r.Context()); err != nil {
		s.logger.Error("logout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear local session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
