// Package health aggregates subsystem probes behind the readiness endpoint.
// The server reports not-ready while any registered probe fails, which takes
// a degraded instance out of rotation without killing its in-flight scores.
package health

import (
	"context"
	"sync"
)

// Status is the outcome of one subsystem probe.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes one subsystem (the upstream breaker, the result cache).
type Checker func(ctx context.Context) Status

// Registry holds the service's probes and runs them on demand. Probes run
// in registration order so /readyz output stays stable across requests.
type Registry struct {
	mu     sync.RWMutex
	probes []probe
}

type probe struct {
	name  string
	check Checker
}

// NewRegistry creates an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named probe.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.probes = append(r.probes, probe{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs every probe and reports the aggregate plus per-subsystem
// results. The aggregate is healthy only when every probe passes.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	probes := make([]probe, len(r.probes))
	copy(probes, r.probes)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(probes))

	for i, p := range probes {
		statuses[i] = p.check(ctx)
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}
