package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/quarryos/pkgfetch/internal/domain"
	"github.com/quarryos/pkgfetch/internal/service/installer"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy","time":"` + time.Now().Format(time.RFC3339) + `"}`))
}

// handleStats returns a snapshot of per-mirror health counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.stats.Snapshot()); err != nil {
		s.logger.Error("failed to encode stats", zap.Error(err))
	}
}

type installRequest struct {
	Name    string `json:"name"`
	Variant string `json:"variant"`
	Pin     string `json:"pin,omitempty"`
}

type installResponse struct {
	ContentID string `json:"content_id"`
}

// handleInstall triggers a package install and blocks until it resolves.
func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body installRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if body.Variant == "" {
		body.Variant = "0"
	}

	req := installer.Request{Name: body.Name, Variant: body.Variant}
	if body.Pin != "" {
		pin, err := domain.ParseContentID(body.Pin)
		if err != nil {
			http.Error(w, "invalid pin: "+err.Error(), http.StatusBadRequest)
			return
		}
		req.Pin = &pin
	}

	id, err := s.installer.Install(r.Context(), req)
	if err != nil {
		s.logger.Error("install failed",
			zap.String("package", body.Name),
			zap.String("variant", body.Variant),
			zap.Error(err))
		http.Error(w, err.Error(), installStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(installResponse{ContentID: id.String()})
}

// installStatus maps install errors onto response codes.
func installStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrPackageNotFound):
		return http.StatusNotFound
	case isAccessDenied(err):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

func isAccessDenied(err error) bool {
	var statusErr *domain.BadHTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == http.StatusUnauthorized || statusErr.Status == http.StatusForbidden
	}
	return false
}
