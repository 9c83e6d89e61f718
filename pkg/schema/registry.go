// Package schema holds declared graph type definitions.
//
// A TypeDefinition describes the expected property surface of one
// (entity kind, label) pair. Definitions are advisory: validation uses them
// for warning-level conformance checks only, never for structural rejection.
package schema

import (
	"sort"
	"strings"
	"sync"
)

// EntityKind distinguishes node types from edge (relationship) types.
type EntityKind string

const (
	KindNode EntityKind = "node"
	KindEdge EntityKind = "edge"
)

// ParseEntityKind normalizes the wire-format "type" field.
func ParseEntityKind(value string) (EntityKind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "node":
		return KindNode, true
	case "edge":
		return KindEdge, true
	default:
		return "", false
	}
}

// TypeDefinition describes one declared entity type, keyed by (Kind, Label).
// Required and Optional preserve declaration order.
type TypeDefinition struct {
	Kind        EntityKind `json:"kind" msgpack:"kind"`
	Label       string     `json:"label" msgpack:"label"`
	Description string     `json:"description" msgpack:"description"`
	Required    []string   `json:"required_properties" msgpack:"required_properties"`
	Optional    []string   `json:"optional_properties" msgpack:"optional_properties"`
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (d *TypeDefinition) Clone() *TypeDefinition {
	if d == nil {
		return nil
	}
	out := &TypeDefinition{
		Kind:        d.Kind,
		Label:       d.Label,
		Description: d.Description,
	}
	if d.Required != nil {
		out.Required = append([]string(nil), d.Required...)
	}
	if d.Optional != nil {
		out.Optional = append([]string(nil), d.Optional...)
	}
	return out
}

type defKey struct {
	kind  EntityKind
	label string
}

// Registry is an in-memory store of TypeDefinitions.
//
// Registries are explicit injected state with a defined lifetime: construct
// one per graph instance and pass it to the validator and applier. Defining
// the same (kind, label) twice overwrites the previous definition, which is
// what makes DEFINE idempotent.
type Registry struct {
	mu   sync.RWMutex
	defs map[defKey]*TypeDefinition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[defKey]*TypeDefinition)}
}

// Define upserts a definition. The last write wins.
func (r *Registry) Define(def *TypeDefinition) {
	if def == nil || def.Label == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[defKey{kind: def.Kind, label: def.Label}] = def.Clone()
}

// Lookup returns the definition for (kind, label), or nil when undeclared.
func (r *Registry) Lookup(kind EntityKind, label string) *TypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defs[defKey{kind: kind, label: label}].Clone()
}

// Has reports whether (kind, label) is declared.
func (r *Registry) Has(kind EntityKind, label string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[defKey{kind: kind, label: label}]
	return ok
}

// All returns every definition sorted by kind then label.
func (r *Registry) All() []*TypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TypeDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Len returns the number of declared definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Replace swaps the registry contents with the given definitions. Used at
// startup to hydrate from persisted storage.
func (r *Registry) Replace(defs []*TypeDefinition) {
	next := make(map[defKey]*TypeDefinition, len(defs))
	for _, def := range defs {
		if def == nil || def.Label == "" {
			continue
		}
		next[defKey{kind: def.Kind, label: def.Label}] = def.Clone()
	}
	r.mu.Lock()
	r.defs = next
	r.mu.Unlock()
}
