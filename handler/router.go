package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (h *Handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.correlate, h.observe)

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	r.HandleFunc("/threads", h.createThread).Methods(http.MethodPost)
	r.HandleFunc("/threads", h.listThreads).Methods(http.MethodGet)
	r.HandleFunc("/threads/{threadId}", h.renameThread).Methods(http.MethodPatch)
	r.HandleFunc("/threads/{threadId}/archive", h.archiveThread).Methods(http.MethodPost)
	r.HandleFunc("/threads/{threadId}/messages", h.askQuestion).Methods(http.MethodPost)
	r.HandleFunc("/threads/{threadId}/messages", h.listMessages).Methods(http.MethodGet)

	r.HandleFunc("/context", h.addContext).Methods(http.MethodPost)
	r.HandleFunc("/entries", h.listEntries).Methods(http.MethodGet)
	r.HandleFunc("/entries/{entryId}/chunks", h.listChunks).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "NOT_FOUND", Reason: "no_route"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "INVALID_INPUT", Reason: "method_not_allowed"})
	})
	return r
}

// correlate echoes or assigns the correlation id on every response.
func (h *Handler) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerCorrelationID, correlationID(r))
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = r.Method + " " + tmpl
			}
		}
		elapsed := time.Since(start)
		if h.obs != nil {
			h.obs.ObserveRequest(route, rec.status, elapsed)
		}
		h.log.Debug("request",
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed),
			zap.String("correlationId", w.Header().Get(headerCorrelationID)),
		)
	})
}
