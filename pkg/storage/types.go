// Package storage provides the badger-backed graph store for Kartograph.
//
// The store holds nodes, edges, and persisted type definitions. Ids are
// opaque unique keys; the canonical "prefix:16hex" shape is a convention
// enforced upstream as a warning, never here. Every edge is indexed by both
// of its endpoints so that deleting a node can cascade to its incident
// relationships.
package storage

import "time"

// NodeID uniquely identifies a node.
type NodeID string

// EdgeID uniquely identifies an edge.
type EdgeID string

// Node is a labeled entity with arbitrary key/value properties.
type Node struct {
	ID         NodeID         `json:"id" msgpack:"id"`
	Label      string         `json:"label" msgpack:"label"`
	Properties map[string]any `json:"properties" msgpack:"properties"`
	CreatedAt  time.Time      `json:"created_at" msgpack:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" msgpack:"updated_at"`
}

// Edge is a labeled relationship between two nodes.
type Edge struct {
	ID         EdgeID         `json:"id" msgpack:"id"`
	Label      string         `json:"label" msgpack:"label"`
	StartID    NodeID         `json:"start_id" msgpack:"start_id"`
	EndID      NodeID         `json:"end_id" msgpack:"end_id"`
	Properties map[string]any `json:"properties" msgpack:"properties"`
	CreatedAt  time.Time      `json:"created_at" msgpack:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" msgpack:"updated_at"`
}

// Stats summarizes store contents.
type Stats struct {
	Nodes           int64 `json:"nodes"`
	Edges           int64 `json:"edges"`
	TypeDefinitions int64 `json:"type_definitions"`
}
