// Package api wires the HTTP handlers into a router.
package api

import (
	"net/http"
	"strings"

	"github.com/saveplus/saveplus/internal/api/handlers"
	"github.com/saveplus/saveplus/internal/api/middleware"
)

// Handlers groups every handler the router serves. BankSync may be nil.
type Handlers struct {
	Subscriptions *handlers.SubscriptionsHandler
	Nudges        *handlers.NudgesHandler
	Transactions  *handlers.TransactionsHandler
	BankSync      *handlers.BankSyncHandler
	Jobs          *handlers.JobsHandler
}

// method restricts a handler to the given HTTP methods.
func method(h http.HandlerFunc, allowed ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, m := range allowed {
			if r.Method == m {
				h(w, r)
				return
			}
		}
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// NewRouter registers every endpoint on a new ServeMux.
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	// Subscriptions endpoints
	mux.HandleFunc("/api/subscriptions", method(h.Subscriptions.ListSubscriptions, http.MethodGet))
	mux.HandleFunc("/api/subscriptions/detect", method(h.Subscriptions.EnqueueDetection, http.MethodPost))
	mux.HandleFunc("/api/subscriptions/zombie-score", method(h.Subscriptions.EnqueueZombieScoring, http.MethodPost))
	mux.HandleFunc("/api/subscriptions/", method(func(w http.ResponseWriter, r *http.Request) {
		// /api/subscriptions/{id}/status
		rest := strings.TrimPrefix(r.URL.Path, "/api/subscriptions/")
		id, action, ok := strings.Cut(rest, "/")
		if !ok || id == "" || action != "status" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		h.Subscriptions.SetStatus(w, r, id)
	}, http.MethodPut, http.MethodPost))

	// Nudges endpoints
	mux.HandleFunc("/api/nudges", method(h.Nudges.ListNudges, http.MethodGet))

	// Transactions endpoints
	mux.HandleFunc("/api/anomalies", method(h.Transactions.ListAnomalies, http.MethodGet))
	mux.HandleFunc("/api/transactions/voice", method(h.Transactions.CreateFromVoice, http.MethodPost))
	if h.BankSync != nil {
		mux.HandleFunc("/api/bank-sync", method(h.BankSync.Upload, http.MethodPost))
	}

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", method(h.Jobs.ListJobs, http.MethodGet))
	mux.HandleFunc("/api/jobs/", method(func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		h.Jobs.GetJob(w, r, jobID)
	}, http.MethodGet))

	mux.HandleFunc("/health", handlers.Health)

	return mux
}
