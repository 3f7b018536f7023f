package handlers

import (
	"net/http"

	"github.com/hackpilot/hackpilot/internal/config"
	"github.com/hackpilot/hackpilot/internal/executor"
	"github.com/hackpilot/hackpilot/internal/llm"
	"github.com/hackpilot/hackpilot/internal/router"
	"github.com/hackpilot/hackpilot/internal/usage"
)

type SystemHandler struct {
	cfg    *config.Config
	client *llm.Client
	router *router.Router
	meter  *usage.Meter
}

func NewSystemHandler(cfg *config.Config, client *llm.Client, r *router.Router, meter *usage.Meter) *SystemHandler {
	return &SystemHandler{cfg: cfg, client: client, router: r, meter: meter}
}

// Health handles GET /api/system/health.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"backend":         h.router.SelectedBackend(),
		"model":           h.router.SelectedModel(),
		"local_reachable": h.client.LocalReachable(r.Context()),
		"hosted_key":      h.client.HasKey(),
	})
}

// Tools handles GET /api/system/tools.
func (h *SystemHandler) Tools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": executor.LookupTools(router.KnownTools()),
	})
}

// Models handles GET /api/system/models.
func (h *SystemHandler) Models(w http.ResponseWriter, r *http.Request) {
	local, err := h.client.LocalModels(r.Context())
	resp := map[string]any{
		"active":     h.router.SelectedModel(),
		"hosted_key": h.client.HasKey(),
	}
	if err != nil {
		resp["local_error"] = err.Error()
	} else {
		resp["local"] = local
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetModel handles PUT /api/system/model.
func (h *SystemHandler) SetModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}
	h.router.SetModel(req.Model)
	writeJSON(w, http.StatusOK, map[string]string{"model": req.Model})
}

// Usage handles GET /api/usage.
func (h *SystemHandler) Usage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.meter.Snapshot())
}

// ResetUsage handles POST /api/usage/reset.
func (h *SystemHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	h.meter.Reset()
	writeJSON(w, http.StatusOK, h.meter.Snapshot())
}
