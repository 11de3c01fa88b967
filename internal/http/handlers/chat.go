package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/medorder-assistant/internal/dialogue"
	"github.com/wolfman30/medorder-assistant/internal/match"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

const maxChatBody = 256 << 10

type turnHandler interface {
	HandleTurn(ctx context.Context, req dialogue.Request) (dialogue.Reply, error)
}

// ChatHandler serves the chat and retrieval endpoints. It is stateless; the
// client posts its session context with every message.
type ChatHandler struct {
	engine turnHandler
	logger *logging.Logger
}

func NewChatHandler(engine turnHandler, logger *logging.Logger) *ChatHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{engine: engine, logger: logger}
}

type chatRequest struct {
	Message   string                   `json:"message"`
	Query     string                   `json:"query"`
	SessionID string                   `json:"sessionId"`
	Context   *dialogue.SessionContext `json:"context"`
}

type chatResponse struct {
	Response       string                  `json:"response"`
	UpdatedContext dialogue.SessionContext `json:"updatedContext"`
	Type           string                  `json:"type,omitempty"`
	OrderData      *dialogue.OrderData     `json:"orderData,omitempty"`
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, match.ModeChat)
}

// Query handles POST /api/rag/query. It takes "query" instead of "message"
// and matches in retrieval mode.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, match.ModeRetrieval)
}

func (h *ChatHandler) serve(w http.ResponseWriter, r *http.Request, mode match.Mode) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		if errors.Is(err, dialogue.ErrInvalidContext) {
			http.Error(w, "invalid session context", http.StatusBadRequest)
			return
		}
		h.logger.Warn("failed to decode chat request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	message := req.Message
	if mode == match.ModeRetrieval && strings.TrimSpace(req.Query) != "" {
		message = req.Query
	}

	var sc dialogue.SessionContext
	if req.Context != nil {
		sc = *req.Context
	}
	sessionID := firstNonEmpty(req.SessionID, sc.SessionID, r.Header.Get("X-Session-Id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply, err := h.engine.HandleTurn(r.Context(), dialogue.Request{
		Message:   message,
		SessionID: sessionID,
		Context:   sc,
		Mode:      mode,
	})
	if err != nil {
		if errors.Is(err, dialogue.ErrEmptyMessage) {
			http.Error(w, "message is required", http.StatusBadRequest)
			return
		}
		if errors.Is(err, dialogue.ErrInvalidContext) {
			http.Error(w, "invalid session context", http.StatusBadRequest)
			return
		}
		h.logger.Error("chat turn failed", "error", err, "session_id", sessionID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("X-Session-Id", reply.UpdatedContext.SessionID)
	writeJSON(w, http.StatusOK, chatResponse{
		Response:       reply.Response,
		UpdatedContext: reply.UpdatedContext,
		Type:           reply.Type,
		OrderData:      reply.OrderData,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
