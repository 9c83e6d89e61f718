// Package mutation implements the Kartograph mutation protocol: the typed
// operation model, the line parser, validation, deterministic ordering, the
// transactional applier, and the dual-mode parse dispatcher.
//
// A batch is newline-delimited JSON, one operation per line, discriminated by
// the "op" field (DEFINE / CREATE / UPDATE / DELETE). The same validator runs
// on the live-preview path and again before apply, so the two paths can never
// diverge in what they accept.
package mutation

import "github.com/openshift-hyperfleet/kartograph-sub000/pkg/schema"

// OpKind is the operation discriminator.
type OpKind string

const (
	OpDefine OpKind = "DEFINE"
	OpCreate OpKind = "CREATE"
	OpUpdate OpKind = "UPDATE"
	OpDelete OpKind = "DELETE"
)

// Pos locates an operation in its batch: the 0-based operation index (skipped
// lines do not count) and the 1-based source line. Diagnostic only, never part
// of the operation's identity.
type Pos struct {
	Index int `json:"index"`
	Line  int `json:"line"`
}

// Operation is the closed set of mutation variants. Exhaustive type switches
// in the validator and applier handle every variant.
type Operation interface {
	Kind() OpKind
	Pos() Pos
	isOperation()
}

type opBase struct {
	pos Pos
}

func (b opBase) Pos() Pos { return b.pos }

func (opBase) isOperation() {}

// Define declares (or redeclares) a type. Redeclaring the same
// (kind, label) overwrites the previous definition, which makes DEFINE
// idempotent.
type Define struct {
	opBase
	EntityKind  schema.EntityKind
	Label       string
	Description string
	Required    []string
	Optional    []string
}

func (Define) Kind() OpKind { return OpDefine }

// Create is an idempotent upsert by id. StartID/EndID are set only for edges.
type Create struct {
	opBase
	EntityKind    schema.EntityKind
	Label         string
	ID            string
	StartID       string
	EndID         string
	SetProperties map[string]any
}

func (Create) Kind() OpKind { return OpCreate }

// Update overwrites the named properties, then removes RemoveProperties.
// Remove is applied after set, so a property listed in both ends up removed.
type Update struct {
	opBase
	EntityKind       schema.EntityKind
	ID               string
	SetProperties    map[string]any
	RemoveProperties []string
}

func (Update) Kind() OpKind { return OpUpdate }

// Delete removes the target entity. Deleting a node cascades to every edge
// incident to it.
type Delete struct {
	opBase
	EntityKind schema.EntityKind
	ID         string
}

func (Delete) Kind() OpKind { return OpDelete }
