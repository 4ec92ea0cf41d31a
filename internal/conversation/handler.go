package conversation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/previmed/visit-assistant/pkg/logging"
)

// Handler wires HTTP requests to the conversation service.
type Handler struct {
	service Service
	logger  *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(service Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// ChatRequest is the POST /chat body. Texto and Documento are older field
// names still sent by some clients.
type ChatRequest struct {
	Utterance string        `json:"utterance"`
	CallerKey string        `json:"callerKey"`
	History   []ChatMessage `json:"history"`
	Texto     string        `json:"texto"`
	Documento string        `json:"documento"`
}

func (r ChatRequest) turn() TurnRequest {
	utterance := r.Utterance
	if strings.TrimSpace(utterance) == "" {
		utterance = r.Texto
	}
	callerKey := r.CallerKey
	if strings.TrimSpace(callerKey) == "" {
		callerKey = r.Documento
	}
	return TurnRequest{Utterance: utterance, CallerKey: callerKey, History: r.History}
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode chat request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.ProcessMessage(r.Context(), req.turn())
	if err != nil {
		if errors.Is(err, ErrEmptyUtterance) {
			http.Error(w, "utterance is required", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to process message", "error", err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
