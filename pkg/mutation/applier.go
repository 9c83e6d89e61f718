package mutation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/schema"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/storage"
)

// Applier executes a batch as one atomic transaction against the graph store.
//
// Contract: given a fatal-error-free batch, either every operation takes
// effect or none does. The applier always re-validates before executing, so
// it never trusts a caller's claim that a batch already passed preview.
type Applier struct {
	store     storage.Engine
	registry  *schema.Registry
	validator *Validator
}

// NewApplier creates an applier bound to a store and a registry. The registry
// is refreshed with the batch's DEFINEs only after a successful commit.
func NewApplier(store storage.Engine, registry *schema.Registry) *Applier {
	return &Applier{
		store:     store,
		registry:  registry,
		validator: NewValidator(registry),
	}
}

// ApplyText parses, validates, sorts, and applies a raw batch.
func (a *Applier) ApplyText(ctx context.Context, text string) *Result {
	return a.Apply(ctx, Parse(text))
}

// Apply executes a parsed batch. The batch is re-validated here regardless of
// any validation the preview path already did.
func (a *Applier) Apply(ctx context.Context, batch *Batch) *Result {
	a.validator.Validate(batch)
	if batch.HasFatalErrors() {
		return failedResult(batch.ErrorStrings())
	}

	sorted := SortForExecution(batch.Ops)
	if len(sorted) == 0 {
		return &Result{Success: true, OperationsApplied: 0}
	}

	tx, err := a.store.Begin()
	if err != nil {
		return failedResult([]string{fmt.Sprintf("beginning transaction: %v", err)})
	}
	defer tx.Rollback()

	start := time.Now()
	now := start.UTC()
	var defines []*schema.TypeDefinition

	for _, parsed := range sorted {
		if err := ctx.Err(); err != nil {
			return failedResult([]string{fmt.Sprintf("operation %d: %v", parsed.Op.Pos().Index, err)})
		}
		def, err := a.applyOne(tx, parsed.Op, now)
		if err != nil {
			return failedResult([]string{fmt.Sprintf("operation %d: %v", parsed.Op.Pos().Index, err)})
		}
		if def != nil {
			defines = append(defines, def)
		}
	}

	if err := tx.Commit(); err != nil {
		return failedResult([]string{fmt.Sprintf("commit failed: %v", err)})
	}

	// The in-memory registry only learns about DEFINEs once they are durable.
	for _, def := range defines {
		a.registry.Define(def)
	}

	log.Printf("applied batch: %d operations in %s (tx %s)", len(sorted), time.Since(start).Round(time.Microsecond), tx.ID)
	return &Result{Success: true, OperationsApplied: len(sorted)}
}

// applyOne executes a single operation inside the transaction. It returns the
// staged type definition for DEFINE operations.
func (a *Applier) applyOne(tx *storage.Tx, op Operation, now time.Time) (*schema.TypeDefinition, error) {
	switch op := op.(type) {
	case Define:
		return a.applyDefine(tx, op)
	case Create:
		return nil, a.applyCreate(tx, op, now)
	case Update:
		return nil, a.applyUpdate(tx, op, now)
	case Delete:
		return nil, a.applyDelete(tx, op)
	default:
		return nil, fmt.Errorf("unhandled operation kind %s", op.Kind())
	}
}

func (a *Applier) applyDefine(tx *storage.Tx, op Define) (*schema.TypeDefinition, error) {
	def := &schema.TypeDefinition{
		Kind:        op.EntityKind,
		Label:       op.Label,
		Description: op.Description,
		Required:    op.Required,
		Optional:    op.Optional,
	}
	if err := tx.PutTypeDefinition(def); err != nil {
		return nil, fmt.Errorf("DEFINE %s/%s: %w", op.EntityKind, op.Label, err)
	}
	return def, nil
}

// applyCreate is an idempotent upsert by id: a missing entity is created with
// the given label/endpoints and properties; an existing one gets the named
// properties overwritten, with unnamed properties, label, and endpoints left
// untouched. Running the identical CREATE twice yields exactly one entity.
func (a *Applier) applyCreate(tx *storage.Tx, op Create, now time.Time) error {
	switch op.EntityKind {
	case schema.KindNode:
		existing, err := tx.GetNode(storage.NodeID(op.ID))
		if errors.Is(err, storage.ErrNotFound) {
			return tx.PutNode(&storage.Node{
				ID:         storage.NodeID(op.ID),
				Label:      op.Label,
				Properties: mergeProperties(nil, op.SetProperties),
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
		if err != nil {
			return fmt.Errorf("CREATE node %s: %w", op.ID, err)
		}
		existing.Properties = mergeProperties(existing.Properties, op.SetProperties)
		existing.UpdatedAt = now
		return tx.PutNode(existing)

	case schema.KindEdge:
		existing, err := tx.GetEdge(storage.EdgeID(op.ID))
		if errors.Is(err, storage.ErrNotFound) {
			err := tx.PutEdge(&storage.Edge{
				ID:         storage.EdgeID(op.ID),
				Label:      op.Label,
				StartID:    storage.NodeID(op.StartID),
				EndID:      storage.NodeID(op.EndID),
				Properties: mergeProperties(nil, op.SetProperties),
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			if errors.Is(err, storage.ErrDanglingEndpoint) {
				return fmt.Errorf("CREATE edge %s: %w", op.ID, err)
			}
			return err
		}
		if err != nil {
			return fmt.Errorf("CREATE edge %s: %w", op.ID, err)
		}
		existing.Properties = mergeProperties(existing.Properties, op.SetProperties)
		existing.UpdatedAt = now
		return tx.PutEdge(existing)

	default:
		return fmt.Errorf("CREATE %s: unknown entity kind", op.ID)
	}
}

// applyUpdate applies set_properties first, then remove_properties, so a
// property listed in both ends up removed. The target must already exist.
func (a *Applier) applyUpdate(tx *storage.Tx, op Update, now time.Time) error {
	switch op.EntityKind {
	case schema.KindNode:
		node, err := tx.GetNode(storage.NodeID(op.ID))
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("UPDATE node %s: target does not exist", op.ID)
		}
		if err != nil {
			return fmt.Errorf("UPDATE node %s: %w", op.ID, err)
		}
		node.Properties = mergeProperties(node.Properties, op.SetProperties)
		for _, prop := range op.RemoveProperties {
			delete(node.Properties, prop)
		}
		node.UpdatedAt = now
		return tx.PutNode(node)

	case schema.KindEdge:
		edge, err := tx.GetEdge(storage.EdgeID(op.ID))
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("UPDATE edge %s: target does not exist", op.ID)
		}
		if err != nil {
			return fmt.Errorf("UPDATE edge %s: %w", op.ID, err)
		}
		edge.Properties = mergeProperties(edge.Properties, op.SetProperties)
		for _, prop := range op.RemoveProperties {
			delete(edge.Properties, prop)
		}
		edge.UpdatedAt = now
		return tx.PutEdge(edge)

	default:
		return fmt.Errorf("UPDATE %s: unknown entity kind", op.ID)
	}
}

func (a *Applier) applyDelete(tx *storage.Tx, op Delete) error {
	switch op.EntityKind {
	case schema.KindNode:
		if _, err := tx.DeleteNode(storage.NodeID(op.ID)); errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("DELETE node %s: target does not exist", op.ID)
		} else if err != nil {
			return fmt.Errorf("DELETE node %s: %w", op.ID, err)
		}
		return nil

	case schema.KindEdge:
		if err := tx.DeleteEdge(storage.EdgeID(op.ID)); errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("DELETE edge %s: target does not exist", op.ID)
		} else if err != nil {
			return fmt.Errorf("DELETE edge %s: %w", op.ID, err)
		}
		return nil

	default:
		return fmt.Errorf("DELETE %s: unknown entity kind", op.ID)
	}
}

func mergeProperties(existing, set map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(set))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range set {
		out[k] = v
	}
	return out
}
