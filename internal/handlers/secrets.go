package handlers

import (
	"net/http"

	"github.com/hackpilot/hackpilot/internal/database"
	"github.com/hackpilot/hackpilot/internal/llm"
	"github.com/hackpilot/hackpilot/internal/logger"
	"github.com/hackpilot/hackpilot/internal/secrets"
)

// SecretsHandler manages the hosted-backend API key. Stored values are never
// returned; only existence is reported.
type SecretsHandler struct {
	store  *secrets.Store
	client *llm.Client
	db     *database.DB
}

func NewSecretsHandler(store *secrets.Store, client *llm.Client, db *database.DB) *SecretsHandler {
	return &SecretsHandler{store: store, client: client, db: db}
}

// Status handles GET /api/secrets/openai-key.
func (h *SecretsHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"configured": h.store.Exists(secrets.KindOpenAIKey),
	})
}

// Set handles PUT /api/secrets/openai-key.
func (h *SecretsHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := secrets.ValidateFormat(secrets.KindOpenAIKey, req.Key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Set(secrets.KindOpenAIKey, req.Key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.client.UpdateAPIKey(req.Key)
	h.db.LogAudit("secret_set", "secrets", secrets.KindOpenAIKey, "")
	logger.Secret("stored", secrets.KindOpenAIKey, len(req.Key))
	writeJSON(w, http.StatusOK, map[string]bool{"configured": true})
}

// Delete handles DELETE /api/secrets/openai-key.
func (h *SecretsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(secrets.KindOpenAIKey); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.client.UpdateAPIKey("")
	h.db.LogAudit("secret_deleted", "secrets", secrets.KindOpenAIKey, "")
	writeJSON(w, http.StatusOK, map[string]bool{"configured": false})
}
