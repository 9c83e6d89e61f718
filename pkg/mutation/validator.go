package mutation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/schema"
)

// Provenance properties every CREATE must carry in set_properties. Their
// absence is a fatal structural error, not a warning: created entities must
// always be traceable to their origin.
const (
	PropDataSourceID = "data_source_id"
	PropSourcePath   = "source_path"
)

// idShape is the canonical id form: label prefix, colon, 16 lowercase hex.
// Enforced as a warning only; the store treats ids as opaque unique keys.
var idShape = regexp.MustCompile(`^[a-z0-9_]+:[0-9a-f]{16}$`)

// Validator applies structural (fatal) and schema (warning) rules to a parsed
// batch. The registry is optional: with a nil registry the batch is still
// fully structurally validated, only schema-conformance warnings are skipped.
//
// One Validator instance serves both the live-preview dispatcher and the
// applier, so preview can never promise success that apply then refuses.
type Validator struct {
	registry *schema.Registry
}

// NewValidator creates a validator. registry may be nil.
func NewValidator(registry *schema.Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate annotates every operation with warnings and records structural
// errors on the batch. Idempotent: re-running replaces prior annotations.
func (v *Validator) Validate(batch *Batch) {
	batch.structuralErrors = nil

	// DEFINEs anywhere in the batch count as known labels, because the
	// sorter guarantees they execute before every other operation.
	batchDefs := make(map[string]*schema.TypeDefinition)
	for i := range batch.Ops {
		batch.Ops[i].Warnings = nil
		if def, ok := batch.Ops[i].Op.(Define); ok && def.Label != "" {
			batchDefs[defLookupKey(def.EntityKind, def.Label)] = &schema.TypeDefinition{
				Kind:     def.EntityKind,
				Label:    def.Label,
				Required: def.Required,
				Optional: def.Optional,
			}
		}
	}

	for i := range batch.Ops {
		parsed := &batch.Ops[i]
		switch op := parsed.Op.(type) {
		case Define:
			v.validateDefine(batch, op)
		case Create:
			v.validateCreate(batch, parsed, op, batchDefs)
		case Update:
			v.validateUpdate(batch, parsed, op)
		case Delete:
			v.validateDelete(batch, parsed, op)
		}
	}
}

func (v *Validator) validateDefine(batch *Batch, op Define) {
	if op.EntityKind == "" {
		batch.addStructuralError(op, "DEFINE missing or invalid entity type")
	}
	if op.Label == "" {
		batch.addStructuralError(op, "DEFINE missing label")
	}
}

func (v *Validator) validateCreate(batch *Batch, parsed *ParsedOp, op Create, batchDefs map[string]*schema.TypeDefinition) {
	if op.EntityKind == "" {
		batch.addStructuralError(op, "CREATE missing or invalid entity type")
	}
	if op.ID == "" {
		batch.addStructuralError(op, "CREATE missing id")
	}
	if op.Label == "" {
		batch.addStructuralError(op, "CREATE missing label")
	}
	if op.EntityKind == schema.KindEdge && (op.StartID == "" || op.EndID == "") {
		batch.addStructuralError(op, "edge CREATE requires both start_id and end_id")
	}
	for _, prop := range []string{PropDataSourceID, PropSourcePath} {
		if _, ok := op.SetProperties[prop]; !ok {
			batch.addStructuralError(op, "CREATE set_properties missing provenance property %q", prop)
		}
	}

	v.warnIDShape(parsed, op.ID)
	if op.ID != "" && op.Label != "" && idShape.MatchString(op.ID) {
		prefix := op.ID[:strings.IndexByte(op.ID, ':')]
		if prefix != op.Label {
			warnf(parsed, "id prefix '%s' does not match label '%s'", prefix, op.Label)
		}
	}

	// Schema-conformance warnings require a registry.
	if v.registry == nil || op.Label == "" || op.EntityKind == "" {
		return
	}
	def := batchDefs[defLookupKey(op.EntityKind, op.Label)]
	if def == nil {
		def = v.registry.Lookup(op.EntityKind, op.Label)
	}
	if def == nil {
		warnf(parsed, "label '%s' undefined", op.Label)
		return
	}
	for _, required := range def.Required {
		if _, ok := op.SetProperties[required]; !ok {
			warnf(parsed, "missing required property '%s' for label '%s'", required, op.Label)
		}
	}
}

func (v *Validator) validateUpdate(batch *Batch, parsed *ParsedOp, op Update) {
	if op.EntityKind == "" {
		batch.addStructuralError(op, "UPDATE missing or invalid entity type")
	}
	if op.ID == "" {
		batch.addStructuralError(op, "UPDATE missing id")
	}
	v.warnIDShape(parsed, op.ID)

	for _, prop := range op.RemoveProperties {
		if _, ok := op.SetProperties[prop]; ok {
			warnf(parsed, "property '%s' in both set_properties and remove_properties; remove wins", prop)
		}
	}
}

func (v *Validator) validateDelete(batch *Batch, parsed *ParsedOp, op Delete) {
	if op.EntityKind == "" {
		batch.addStructuralError(op, "DELETE missing or invalid entity type")
	}
	if op.ID == "" {
		batch.addStructuralError(op, "DELETE missing id")
	}
	v.warnIDShape(parsed, op.ID)
}

func (v *Validator) warnIDShape(parsed *ParsedOp, id string) {
	if id != "" && !idShape.MatchString(id) {
		warnf(parsed, "id '%s' does not match canonical shape prefix:16-hex", id)
	}
}

func warnf(parsed *ParsedOp, format string, args ...any) {
	parsed.Warnings = append(parsed.Warnings, fmt.Sprintf(format, args...))
}

func defLookupKey(kind schema.EntityKind, label string) string {
	return string(kind) + "\x00" + label
}
