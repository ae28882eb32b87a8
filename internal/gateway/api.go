// ABOUTME: HTTP API handlers for the professional panel
// ABOUTME: Login, patient list, conversation read/reply, control handoff, SSE live view

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cuideme/care-gateway/internal/auth"
	"github.com/cuideme/care-gateway/internal/conversation"
	"github.com/cuideme/care-gateway/internal/store"
)

// LoginRequest is the JSON request body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the JSON response for a successful login.
type LoginResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// PatientResponse is the JSON shape of a patient in list responses.
type PatientResponse struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	Name        string `json:"name,omitempty"`
	ControlMode string `json:"control_mode"`
	HasAlert    bool   `json:"has_alert"`
	CreatedAt   string `json:"created_at"`
}

// MessageResponse is the JSON shape of a conversation message.
type MessageResponse struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	HasAlert  bool   `json:"has_alert"`
	Timestamp string `json:"timestamp"`
}

// ReplyRequest is the JSON request body for POST /api/patients/{id}/messages.
type ReplyRequest struct {
	Text string `json:"text"`
}

// SummaryResponse is the JSON response for POST /api/patients/{id}/summarize.
type SummaryResponse struct {
	Summary string `json:"summary"`
}

// handleLogin handles POST /api/auth/login requests.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		g.sendJSONError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, professional, err := g.authn.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			g.sendJSONError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		g.logger.Error("login failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.writeJSON(w, http.StatusOK, LoginResponse{Token: token, Email: professional.Email})
}

// handleListPatients handles GET /api/patients requests. It returns every
// patient with the alert rollup the panel sorts by.
func (g *Gateway) handleListPatients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	summaries, err := g.service.ListPatients(r.Context())
	if err != nil {
		g.logger.Error("listing patients failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]PatientResponse, 0, len(summaries))
	for _, s := range summaries {
		response = append(response, patientResponse(s))
	}
	g.writeJSON(w, http.StatusOK, response)
}

// handlePatientRoutes dispatches /api/patients/{id}/{action} requests.
func (g *Gateway) handlePatientRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/patients/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		g.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}
	patientID, action := parts[0], parts[1]

	switch {
	case action == "messages" && r.Method == http.MethodGet:
		g.handleReadConversation(w, r, patientID)
	case action == "messages" && r.Method == http.MethodPost:
		g.handleProfessionalReply(w, r, patientID)
	case action == "assume-control" && r.Method == http.MethodPost:
		g.handleControlChange(w, r, patientID, g.service.AssumeControl)
	case action == "release-control" && r.Method == http.MethodPost:
		g.handleControlChange(w, r, patientID, g.service.ReleaseControl)
	case action == "summarize" && r.Method == http.MethodPost:
		g.handleSummarize(w, r, patientID)
	case action == "stream" && r.Method == http.MethodGet:
		g.handleStream(w, r, patientID)
	case action == "messages" || action == "assume-control" || action == "release-control" || action == "summarize" || action == "stream":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		g.sendJSONError(w, http.StatusNotFound, "not found")
	}
}

// handleReadConversation handles GET /api/patients/{id}/messages.
// Reading marks the patient's alerts as attended.
func (g *Gateway) handleReadConversation(w http.ResponseWriter, r *http.Request, patientID string) {
	if _, err := g.store.GetPatient(r.Context(), patientID); err != nil {
		g.respondStoreError(w, err)
		return
	}

	messages, err := g.service.ReadConversation(r.Context(), patientID)
	if err != nil {
		g.respondStoreError(w, err)
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		response = append(response, messageResponse(m))
	}
	g.writeJSON(w, http.StatusOK, response)
}

// handleProfessionalReply handles POST /api/patients/{id}/messages.
func (g *Gateway) handleProfessionalReply(w http.ResponseWriter, r *http.Request, patientID string) {
	var req ReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	msg, err := g.service.SendProfessionalReply(r.Context(), patientID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			g.sendJSONError(w, http.StatusNotFound, "patient not found")
		case errors.Is(err, conversation.ErrDelivery):
			// Details are already logged; the panel gets a generic failure
			g.sendJSONError(w, http.StatusBadGateway, "could not deliver message")
		default:
			g.logger.Error("professional reply failed", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	g.writeJSON(w, http.StatusCreated, messageResponse(msg))
}

// handleControlChange handles the assume-control and release-control posts.
func (g *Gateway) handleControlChange(w http.ResponseWriter, r *http.Request, patientID string, change func(ctx context.Context, id string) error) {
	if err := change(r.Context(), patientID); err != nil {
		g.respondStoreError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSummarize handles POST /api/patients/{id}/summarize.
func (g *Gateway) handleSummarize(w http.ResponseWriter, r *http.Request, patientID string) {
	summary, err := g.service.Summarize(r.Context(), patientID)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrAIDisabled):
			g.sendJSONError(w, http.StatusServiceUnavailable, "ai capability not configured")
		case errors.Is(err, store.ErrNotFound):
			g.sendJSONError(w, http.StatusNotFound, "patient not found")
		case errors.Is(err, conversation.ErrNoMessages):
			g.sendJSONError(w, http.StatusBadRequest, "conversation is empty")
		default:
			g.logger.Error("summarize failed", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	g.writeJSON(w, http.StatusOK, SummaryResponse{Summary: summary})
}

// handleStream handles GET /api/patients/{id}/stream. It subscribes the
// caller as a live viewer and relays each persisted message as one SSE
// event until the client disconnects or the viewer is torn down.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request, patientID string) {
	if _, err := g.store.GetPatient(r.Context(), patientID); err != nil {
		g.respondStoreError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, subID := g.service.Registry().Subscribe(r.Context(), patientID)
	defer g.service.Registry().Unsubscribe(patientID, subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "connected", map[string]string{"patient_id": patientID})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-ch:
			if !open {
				// Torn down as stalled or registry closed
				return
			}
			g.writeSSEEvent(w, "message", messageResponse(msg))
			flusher.Flush()
		}
	}
}

// respondStoreError maps storage errors onto HTTP statuses.
func (g *Gateway) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "patient not found")
		return
	}
	g.logger.Error("store operation failed", "error", err)
	g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
}

func patientResponse(s *conversation.PatientSummary) PatientResponse {
	return PatientResponse{
		ID:          s.Patient.ID,
		Address:     s.Patient.Address,
		Name:        s.Patient.Name,
		ControlMode: string(s.Patient.ControlMode),
		HasAlert:    s.HasAlert,
		CreatedAt:   s.Patient.CreatedAt.Format(time.RFC3339Nano),
	}
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		Text:      m.Text,
		Sender:    m.Sender,
		HasAlert:  m.HasAlert,
		Timestamp: m.Timestamp.Format(time.RFC3339Nano),
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// writeJSON writes a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}
