package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jonwraymond/staffcache/auth"
	"github.com/jonwraymond/staffcache/backend"
	"github.com/jonwraymond/staffcache/cache"
	"github.com/jonwraymond/staffcache/observe"
	"github.com/jonwraymond/staffcache/resilience"
	"github.com/jonwraymond/staffcache/staffing"
)

type handlers struct {
	catalog *staffing.Catalog
	manager *cache.Manager
	logger  observe.Logger
}

func (h *handlers) projects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.catalog.Projects(r.Context())
	h.respond(w, r, projects, err)
}

func (h *handlers) projectsByMonth(w http.ResponseWriter, r *http.Request) {
	m, err := backend.ParseMonth(r.PathValue("month"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	projects, err := h.catalog.MonthView(r.Context(), m)
	h.respond(w, r, projects, err)
}

func (h *handlers) candidates(w http.ResponseWriter, r *http.Request) {
	f := backend.CandidateFilterFromQuery(r.URL.Query())
	candidates, err := h.catalog.Candidates(r.Context(), f)
	h.respond(w, r, candidates, err)
}

func (h *handlers) paymentBatches(w http.ResponseWriter, r *http.Request) {
	status := backend.BatchStatus(r.URL.Query().Get("status"))
	batches, err := h.catalog.PaymentBatches(r.Context(), status)
	h.respond(w, r, batches, err)
}

// invalidate clears a namespace, or the single key named by the query:
// ?month= for projectsByMonth, the candidate filter for candidates and
// ?status= for paymentBatches.
func (h *handlers) invalidate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("namespace")
	args, err := invalidateArgs(name, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.catalog.Invalidate(name, args...); err != nil {
		if errors.Is(err, cache.ErrNamespaceUnknown) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.fail(w, r, err)
		return
	}
	h.logger.Info(r.Context(), "cache invalidated",
		observe.F("namespace", name),
		observe.F("keyed", len(args) > 0),
		observe.F("by", auth.PrincipalFromContext(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

func invalidateArgs(name string, r *http.Request) ([]any, error) {
	q := r.URL.Query()
	switch name {
	case staffing.NamespaceProjectsByMonth:
		if raw := q.Get("month"); raw != "" {
			m, err := backend.ParseMonth(raw)
			if err != nil {
				return nil, err
			}
			return []any{m}, nil
		}
	case staffing.NamespaceCandidates:
		if f := backend.CandidateFilterFromQuery(q); f != (backend.CandidateFilter{}) {
			return []any{f}, nil
		}
	case staffing.NamespacePaymentBatches:
		if s := q.Get("status"); s != "" {
			return []any{backend.BatchStatus(s)}, nil
		}
	}
	return nil, nil
}

type namespaceStats struct {
	Name           string    `json:"name"`
	Entries        int       `json:"entries"`
	InFlight       int       `json:"in_flight"`
	Loading        bool      `json:"loading"`
	Hits           int64     `json:"hits"`
	StaleHits      int64     `json:"stale_hits"`
	Misses         int64     `json:"misses"`
	Evictions      int64     `json:"evictions"`
	ExpireAfter    string    `json:"expire_after"`
	StaleAfter     string    `json:"stale_after"`
	MaxEntries     int       `json:"max_entries"`
	LastOK         time.Time `json:"last_ok,omitzero"`
	LastError      string    `json:"last_error,omitempty"`
	RefreshFailing bool      `json:"refresh_failing"`
	Failing        int       `json:"failing"`
}

func (h *handlers) stats(w http.ResponseWriter, _ *http.Request) {
	all := h.manager.Stats()
	out := make([]namespaceStats, 0, len(all))
	for _, s := range all {
		out = append(out, namespaceStats{
			Name:           s.Name,
			Entries:        s.Entries,
			InFlight:       s.InFlight,
			Loading:        s.Loading,
			Hits:           s.Hits,
			StaleHits:      s.StaleHits,
			Misses:         s.Misses,
			Evictions:      s.Evictions,
			ExpireAfter:    s.Policy.ExpireAfter.String(),
			StaleAfter:     s.Policy.StaleAfter.String(),
			MaxEntries:     s.Policy.MaxEntries,
			LastOK:         s.LastOK,
			LastError:      s.LastErr,
			RefreshFailing: s.RefreshFailing(),
			Failing:        s.Failing,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"namespaces": out})
}

func (h *handlers) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)
	if code >= http.StatusInternalServerError {
		h.logger.Warn(r.Context(), "request failed",
			observe.F("path", r.URL.Path),
			observe.F("status", code),
			observe.F("error", err),
		)
	}
	http.Error(w, http.StatusText(code), code)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, backend.ErrInvalidMonth), errors.Is(err, staffing.ErrBadArgument):
		return http.StatusBadRequest
	case backend.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrBulkheadFull),
		errors.Is(err, resilience.ErrRateLimitExceeded), errors.Is(err, cache.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, resilience.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
