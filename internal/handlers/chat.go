package handlers

import (
	"net/http"

	"github.com/hackpilot/hackpilot/internal/conversation"
	"github.com/hackpilot/hackpilot/internal/router"
)

// ChatHandler accepts user messages and hands them to the router. Results
// arrive asynchronously over the WebSocket feed; the HTTP response only
// acknowledges acceptance.
type ChatHandler struct {
	router  *router.Router
	manager *conversation.Manager
}

func NewChatHandler(r *router.Router, m *conversation.Manager) *ChatHandler {
	return &ChatHandler{router: r, manager: m}
}

// Send handles POST /api/chat.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	if err := h.router.Handle(r.Context(), req.Message); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"thread_id": h.manager.ActiveID(),
	})
}

// Stop handles POST /api/chat/stop — cancels the active generation.
func (h *ChatHandler) Stop(w http.ResponseWriter, r *http.Request) {
	stopped := h.router.StopActive()
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}
