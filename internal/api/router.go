package api

import "net/http"

// Router wires the HTTP surface. events, when non-nil, serves the
// realtime status stream.
func Router(h *Handler, events http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/sessions", h.ListSessions)
	mux.HandleFunc("POST /v1/sessions", h.Connect)
	mux.HandleFunc("GET /v1/sessions/{identity}", h.SessionStatus)
	mux.HandleFunc("DELETE /v1/sessions/{identity}", h.Disconnect)
	mux.HandleFunc("POST /v1/sessions/{identity}/pair", h.RequestPairingCode)

	mux.HandleFunc("POST /v1/dispatch", h.Dispatch)
	mux.HandleFunc("GET /v1/dispatch", h.RunningJobs)
	mux.HandleFunc("DELETE /v1/dispatch/{id}", h.CancelDispatch)

	mux.HandleFunc("GET /v1/limits/{caller}", h.Limits)
	mux.HandleFunc("PUT /v1/settings", h.UpdateSettings)

	mux.HandleFunc("GET /v1/sweeper/status", h.SweeperStatus)
	mux.HandleFunc("POST /v1/sweeper/start", h.SweeperStart)
	mux.HandleFunc("POST /v1/sweeper/stop", h.SweeperStop)

	mux.HandleFunc("GET /v1/activity", h.RecentActivity)

	if events != nil {
		mux.Handle("GET /v1/events", events)
	}

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("multisend"))
	})

	return mux
}
