package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hackpilot/hackpilot/internal/conversation"
)

type ThreadsHandler struct {
	manager *conversation.Manager
}

func NewThreadsHandler(m *conversation.Manager) *ThreadsHandler {
	return &ThreadsHandler{manager: m}
}

// List handles GET /api/threads.
func (h *ThreadsHandler) List(w http.ResponseWriter, r *http.Request) {
	threads, err := h.manager.ListThreads()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"threads":   threads,
		"active_id": h.manager.ActiveID(),
	})
}

// Create handles POST /api/threads.
func (h *ThreadsHandler) Create(w http.ResponseWriter, r *http.Request) {
	t, err := h.manager.NewThread()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Get handles GET /api/threads/{id} — the thread plus its messages.
func (h *ThreadsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.manager.GetThread(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	msgs, err := h.manager.Messages(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thread":   t,
		"messages": msgs,
	})
}

// Activate handles POST /api/threads/{id}/activate.
func (h *ThreadsHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.SwitchTo(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active_id": id})
}

// Delete handles DELETE /api/threads/{id}.
func (h *ThreadsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active_id": h.manager.ActiveID()})
}
