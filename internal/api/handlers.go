package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kardosh/multisend/internal/activity"
	"github.com/kardosh/multisend/internal/dispatch"
	"github.com/kardosh/multisend/internal/model"
	"github.com/kardosh/multisend/internal/orchestrator"
	"github.com/kardosh/multisend/internal/ratelimit"
	"github.com/kardosh/multisend/internal/sweeper"
	"github.com/kardosh/multisend/internal/template"
)

// ActivitySource serves the audit trail. Nil when no database is
// configured.
type ActivitySource interface {
	Recent(ctx context.Context, limit int) ([]activity.Event, error)
}

type Handler struct {
	orch     *orchestrator.Orchestrator
	sweep    *sweeper.Sweeper
	settings *ratelimit.Settings
	audit    ActivitySource
}

func NewHandler(
	orch *orchestrator.Orchestrator,
	sweep *sweeper.Sweeper,
	settings *ratelimit.Settings,
	audit ActivitySource,
) *Handler {
	return &Handler{orch: orch, sweep: sweep, settings: settings, audit: audit}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type connectRequest struct {
	Identity string `json:"identity"`
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.orch.Connect(r.Context(), req.Identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) RequestPairingCode(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	code, err := h.orch.RequestPairingCode(r.Context(), identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity":    identity,
		"pairingCode": code,
	})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": h.orch.ListActiveSessions(),
	})
}

func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.SessionStatus(r.PathValue("identity")))
}

func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	if err := h.orch.Disconnect(r.Context(), identity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity":     identity,
		"disconnected": true,
	})
}

type dispatchRequest struct {
	CallerID          string            `json:"callerId"`
	Template          string            `json:"template"`
	Target            string            `json:"target"`
	Message           string            `json:"message,omitempty"`
	Extra             map[string]string `json:"extra,omitempty"`
	Count             int               `json:"count,omitempty"`
	DelayMs           int               `json:"delayMs,omitempty"`
	PreferredIdentity string            `json:"preferredIdentity,omitempty"`
}

func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.CallerID == "" {
		http.Error(w, "callerId is required", http.StatusBadRequest)
		return
	}

	res, err := h.orch.Dispatch(r.Context(), dispatch.Request{
		CallerID:          req.CallerID,
		Template:          req.Template,
		Target:            req.Target,
		Params:            template.Params{Message: req.Message, Extra: req.Extra},
		Count:             req.Count,
		Delay:             time.Duration(req.DelayMs) * time.Millisecond,
		PreferredIdentity: req.PreferredIdentity,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CancelDispatch(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	if err := h.orch.CancelDispatch(jobID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":     jobID,
		"cancelled": true,
	})
}

func (h *Handler) RunningJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.orch.RunningJobs()
	if jobs == nil {
		jobs = []model.DispatchJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *Handler) Limits(w http.ResponseWriter, r *http.Request) {
	ls := h.orch.Limits(r.PathValue("caller"))
	writeJSON(w, http.StatusOK, map[string]any{
		"callerId":            ls.CallerID,
		"cooldownRemainingMs": ls.CooldownRemaining.Milliseconds(),
		"quota":               ls.Quota,
	})
}

type settingsRequest struct {
	CooldownMs *int `json:"cooldownMs,omitempty"`
	MaxPerDay  *int `json:"maxPerDay,omitempty"`
}

// UpdateSettings hot-reloads the rate limit policy. Omitted fields keep
// their current value.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.CooldownMs != nil {
		if *req.CooldownMs < 0 {
			http.Error(w, "cooldownMs must be >= 0", http.StatusBadRequest)
			return
		}
		h.settings.SetCooldown(time.Duration(*req.CooldownMs) * time.Millisecond)
	}
	if req.MaxPerDay != nil {
		if *req.MaxPerDay <= 0 {
			http.Error(w, "maxPerDay must be > 0", http.StatusBadRequest)
			return
		}
		h.settings.SetMaxPerDay(*req.MaxPerDay)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cooldownMs": h.settings.Cooldown().Milliseconds(),
		"maxPerDay":  h.settings.MaxPerDay(),
	})
}

func (h *Handler) SweeperStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sweep.IsRunning()})
}

func (h *Handler) SweeperStart(w http.ResponseWriter, r *http.Request) {
	h.sweep.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sweep.IsRunning()})
}

func (h *Handler) SweeperStop(w http.ResponseWriter, r *http.Request) {
	h.sweep.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sweep.IsRunning()})
}

func (h *Handler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []activity.Event{}})
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 50)
	items, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []activity.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidTarget),
		errors.Is(err, model.ErrUnknownTemplate):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrCooldownActive),
		errors.Is(err, model.ErrQuotaExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, model.ErrAlreadyActive),
		errors.Is(err, model.ErrNoActiveSession):
		status = http.StatusConflict
	case errors.Is(err, model.ErrAuthTimeout):
		status = http.StatusRequestTimeout
	case errors.Is(err, model.ErrAuthFailed):
		status = http.StatusUnauthorized
	}

	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"kind":  model.Kind(err),
	})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
