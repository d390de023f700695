package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/staffcache/auth"
)

// Dataset is the content served by a stub backend.
type Dataset struct {
	Projects       []Project      `yaml:"projects"`
	Candidates     []Candidate    `yaml:"candidates"`
	PaymentBatches []PaymentBatch `yaml:"payment_batches"`
}

// LoadDataset reads a Dataset from a YAML (or JSON) file.
func LoadDataset(path string) (Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("backend: read dataset: %w", err)
	}
	var ds Dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return Dataset{}, fmt.Errorf("backend: parse dataset %s: %w", path, err)
	}
	return ds, nil
}

// Stub serves the backend API from memory. Replace swaps the data, which lets
// tests observe cache revalidation.
type Stub struct {
	mu   sync.RWMutex
	data Dataset
	hits map[string]int
}

// NewStub creates a stub serving ds.
func NewStub(ds Dataset) *Stub {
	return &Stub{data: ds, hits: make(map[string]int)}
}

// Replace swaps the served dataset.
func (s *Stub) Replace(ds Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = ds
}

// Hits returns how many requests reached path, such as "/v1/projects".
func (s *Stub) Hits(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits[path]
}

// Handler returns the HTTP API. A non-nil verifier requires a bearer token.
func (s *Stub) Handler(v *auth.Verifier) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /"+pathProjects, s.projects)
	mux.HandleFunc("GET /"+pathCandidates, s.candidates)
	mux.HandleFunc("GET /"+pathPaymentBatches, s.paymentBatches)

	var h http.Handler = mux
	if v != nil {
		h = auth.RequireBearer(v, "")(h)
	}
	return h
}

func (s *Stub) snapshot(r *http.Request) Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[r.URL.Path]++
	return s.data
}

func (s *Stub) projects(w http.ResponseWriter, r *http.Request) {
	ds := s.snapshot(r)
	raw := r.URL.Query().Get("month")
	if raw == "" {
		writeJSON(w, http.StatusOK, nonNil(ds.Projects))
		return
	}
	m, err := ParseMonth(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, filter(ds.Projects, func(p Project) bool { return p.Overlaps(m) }))
}

func (s *Stub) candidates(w http.ResponseWriter, r *http.Request) {
	ds := s.snapshot(r)
	f := CandidateFilterFromQuery(r.URL.Query())
	writeJSON(w, http.StatusOK, filter(ds.Candidates, f.Match))
}

func (s *Stub) paymentBatches(w http.ResponseWriter, r *http.Request) {
	ds := s.snapshot(r)
	status := BatchStatus(strings.ToLower(r.URL.Query().Get("status")))
	writeJSON(w, http.StatusOK, filter(ds.PaymentBatches, func(b PaymentBatch) bool {
		return status == "" || b.Status == status
	}))
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := slices.Clone(in)
	out = slices.DeleteFunc(out, func(v T) bool { return !keep(v) })
	return nonNil(out)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
