// Package health provides readiness state tracking and HTTP health check handlers.
package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

// State constants for the readiness state machine.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Checker tracks the service's readiness state plus the mode of each
// storage tier. The service stays ready with degraded tiers; the modes
// surface in the readiness body so operators can see what is missing.
// It is safe for concurrent use.
type Checker struct {
	state atomic.Int32

	mu    sync.Mutex
	tiers map[string]string
}

// NewChecker creates a Checker in the Starting state.
func NewChecker() *Checker {
	return &Checker{tiers: make(map[string]string)}
}

// SetReady transitions to the Ready state.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the Draining state.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady returns true when the state is Ready.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// SetTier records the operating mode of a storage tier, e.g.
// SetTier("cache", "redis") or SetTier("database", "disabled").
func (c *Checker) SetTier(name, mode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tiers[name] = mode
}

// State returns the current state as a human-readable string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

// healthResponse is the JSON body returned by health endpoints.
type healthResponse struct {
	Status string            `json:"status"`
	Tiers  map[string]string `json:"tiers,omitempty"`
}

func (c *Checker) tierSnapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tiers) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.tiers))
	keys := make([]string, 0, len(c.tiers))
	for k := range c.tiers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = c.tiers[k]
	}
	return out
}

// LivenessHandler returns an http.HandlerFunc that always responds 200 OK.
// Use this for K8s livenessProbe (/healthz).
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// ReadinessHandler returns an http.HandlerFunc that responds 200 when ready
// and 503 when starting or draining.
// Use this for K8s readinessProbe (/readyz).
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body := healthResponse{Status: c.State(), Tiers: c.tierSnapshot()}
		if c.IsReady() {
			writeJSON(w, http.StatusOK, body)
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, body)
	}
}

func writeJSON(w http.ResponseWriter, code int, v healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
