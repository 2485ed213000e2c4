// Package registry holds the static machine-to-machine trust configuration:
// which service owns which shared secret, and which services it may request
// tokens for. Loaded once at startup, read-only afterwards.
package registry

import "finditnow-auth/internal/pkg/secure"

// Registry is the static service → secret map plus the directed call graph.
type Registry struct {
	secrets   map[string]string
	callGraph map[string]map[string]struct{}
}

// New builds a Registry from configuration. The call graph is directed:
// allowing A→B says nothing about B→A.
func New(secrets map[string]string, callGraph map[string][]string) *Registry {
	graph := make(map[string]map[string]struct{}, len(callGraph))
	for from, targets := range callGraph {
		set := make(map[string]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		graph[from] = set
	}
	return &Registry{secrets: secrets, callGraph: graph}
}

// Authenticate checks a service's shared secret in constant time.
func (r *Registry) Authenticate(service, secret string) bool {
	known, ok := r.secrets[service]
	if !ok {
		return false
	}
	return secure.SecureCompare(secret, known)
}

// CanCall reports whether from may request a token scoped to to.
func (r *Registry) CanCall(from, to string) bool {
	targets, ok := r.callGraph[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}
