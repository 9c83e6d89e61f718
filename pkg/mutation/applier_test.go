package mutation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/schema"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/storage"
)

func newTestApplier(t *testing.T) (*Applier, *storage.BadgerEngine, *schema.Registry) {
	t.Helper()
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { _ = engine.Close() })
	registry := schema.NewRegistry()
	return NewApplier(engine, registry), engine, registry
}

const createAlice = `{"op":"CREATE","type":"node","label":"person","id":"person:a000000000000001","set_properties":{"name":"Alice","data_source_id":"ds1","source_path":"p.md"}}`

func TestApplier_CreateIsIdempotent(t *testing.T) {
	applier, engine, _ := newTestApplier(t)
	ctx := context.Background()

	res := applier.ApplyText(ctx, createAlice)
	require.True(t, res.Success, "errors: %v", res.Errors)
	assert.Equal(t, 1, res.OperationsApplied)

	// Identical CREATE again: exactly one entity, properties from the most
	// recent application.
	res = applier.ApplyText(ctx, createAlice)
	require.True(t, res.Success)

	stats, err := engine.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Nodes)

	node, err := engine.GetNode("person:a000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "Alice", node.Properties["name"])
}

func TestApplier_CreateUpsertMergesProperties(t *testing.T) {
	applier, engine, _ := newTestApplier(t)
	ctx := context.Background()

	require.True(t, applier.ApplyText(ctx, createAlice).Success)

	// Second CREATE with a different label and a new property: named
	// properties overwritten, unnamed ones and the label untouched.
	res := applier.ApplyText(ctx,
		`{"op":"CREATE","type":"node","label":"human","id":"person:a000000000000001","set_properties":{"age":30,"data_source_id":"ds2","source_path":"q.md"}}`)
	require.True(t, res.Success)

	node, err := engine.GetNode("person:a000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "person", node.Label)
	assert.Equal(t, "Alice", node.Properties["name"])
	assert.Equal(t, float64(30), node.Properties["age"])
	assert.Equal(t, "ds2", node.Properties["data_source_id"])
}

func TestApplier_UpdateSetThenRemove(t *testing.T) {
	applier, engine, _ := newTestApplier(t)
	ctx := context.Background()

	require.True(t, applier.ApplyText(ctx, createAlice).Success)

	// Set and remove the same property: remove is applied after set, so the
	// entity ends up without it even when it never existed before.
	res := applier.ApplyText(ctx,
		`{"op":"UPDATE","type":"node","id":"person:a000000000000001","set_properties":{"a":1},"remove_properties":["a"]}`)
	require.True(t, res.Success)

	node, err := engine.GetNode("person:a000000000000001")
	require.NoError(t, err)
	_, hasA := node.Properties["a"]
	assert.False(t, hasA)
	assert.Equal(t, "Alice", node.Properties["name"])
}

func TestApplier_UpdateMissingTargetAborts(t *testing.T) {
	applier, engine, _ := newTestApplier(t)

	text := strings.Join([]string{
		createAlice,
		`{"op":"UPDATE","type":"node","id":"person:ffffffffffffffff","set_properties":{"a":1}}`,
	}, "\n")
	res := applier.ApplyText(context.Background(), text)

	assert.False(t, res.Success)
	assert.Equal(t, 0, res.OperationsApplied)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "operation 1:")
	assert.Contains(t, res.Errors[0], "does not exist")

	// Full rollback: the earlier CREATE contributed nothing.
	_, err := engine.GetNode("person:a000000000000001")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplier_DeleteCascadesWithinBatch(t *testing.T) {
	// DELETE of a node CREATEd earlier in the same batch, with an edge also
	// created earlier, removes both node and edge.
	applier, engine, _ := newTestApplier(t)

	text := strings.Join([]string{
		`{"op":"CREATE","type":"node","label":"person","id":"person:a000000000000001","set_properties":{"data_source_id":"d","source_path":"p"}}`,
		`{"op":"CREATE","type":"node","label":"person","id":"person:a000000000000002","set_properties":{"data_source_id":"d","source_path":"p"}}`,
		`{"op":"CREATE","type":"edge","label":"knows","id":"knows:e000000000000001","start_id":"person:a000000000000001","end_id":"person:a000000000000002","set_properties":{"data_source_id":"d","source_path":"p"}}`,
		`{"op":"DELETE","type":"node","id":"person:a000000000000001"}`,
	}, "\n")

	res := applier.ApplyText(context.Background(), text)
	require.True(t, res.Success, "errors: %v", res.Errors)
	assert.Equal(t, 4, res.OperationsApplied)

	_, err := engine.GetNode("person:a000000000000001")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = engine.GetEdge("knows:e000000000000001")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	node, err := engine.GetNode("person:a000000000000002")
	require.NoError(t, err)
	assert.Equal(t, "person", node.Label)
}

func TestApplier_DanglingEdgeEndpointAborts(t *testing.T) {
	applier, engine, _ := newTestApplier(t)

	text := strings.Join([]string{
		createAlice,
		`{"op":"CREATE","type":"edge","label":"knows","id":"knows:e000000000000001","start_id":"person:a000000000000001","end_id":"person:missing0000000001","set_properties":{"data_source_id":"d","source_path":"p"}}`,
	}, "\n")

	res := applier.ApplyText(context.Background(), text)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.OperationsApplied)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "operation 1:")

	_, err := engine.GetNode("person:a000000000000001")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplier_StructuralErrorBlocksApply(t *testing.T) {
	applier, engine, _ := newTestApplier(t)

	text := strings.Join([]string{
		createAlice,
		`{"op":"CREATE","type":"node","id":"person:a000000000000002","set_properties":{"data_source_id":"d","source_path":"p"}}`,
	}, "\n")

	res := applier.ApplyText(context.Background(), text)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.OperationsApplied)
	require.NotEmpty(t, res.Errors)

	stats, err := engine.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Nodes)
}

func TestApplier_ParseErrorBlocksApply(t *testing.T) {
	applier, _, _ := newTestApplier(t)

	text := createAlice + "\nnot json at all"
	res := applier.ApplyText(context.Background(), text)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.OperationsApplied)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Line 2: invalid syntax", res.Errors[0])
}

func TestApplier_DefinePersistsAndRegisters(t *testing.T) {
	applier, engine, registry := newTestApplier(t)

	text := strings.Join([]string{
		`{"op":"CREATE","type":"node","label":"person","id":"person:a000000000000001","set_properties":{"name":"Alice","data_source_id":"d","source_path":"p"}}`,
		`{"op":"DEFINE","type":"node","label":"person","description":"a person","required_properties":["name"]}`,
	}, "\n")

	res := applier.ApplyText(context.Background(), text)
	require.True(t, res.Success, "errors: %v", res.Errors)

	// Registry learned the definition after commit.
	def := registry.Lookup(schema.KindNode, "person")
	require.NotNil(t, def)
	assert.Equal(t, []string{"name"}, def.Required)

	// And it is durable in the store.
	defs, err := engine.TypeDefinitions()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "a person", defs[0].Description)
}

func TestApplier_FailedBatchDefinesNothing(t *testing.T) {
	applier, _, registry := newTestApplier(t)

	text := strings.Join([]string{
		`{"op":"DEFINE","type":"node","label":"person"}`,
		`{"op":"DELETE","type":"node","id":"person:ffffffffffffffff"}`,
	}, "\n")

	res := applier.ApplyText(context.Background(), text)
	assert.False(t, res.Success)
	assert.False(t, registry.Has(schema.KindNode, "person"))
}

func TestApplier_DeleteMissingTargetAborts(t *testing.T) {
	applier, _, _ := newTestApplier(t)

	res := applier.ApplyText(context.Background(),
		`{"op":"DELETE","type":"edge","id":"knows:ffffffffffffffff"}`)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "operation 0:")
	assert.Contains(t, res.Errors[0], "does not exist")
}

func TestApplier_EmptyBatchSucceeds(t *testing.T) {
	applier, _, _ := newTestApplier(t)

	res := applier.ApplyText(context.Background(), "// nothing here\n")
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.OperationsApplied)
}

func TestApplier_CancelledContextAborts(t *testing.T) {
	applier, engine, _ := newTestApplier(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := applier.ApplyText(ctx, createAlice)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.OperationsApplied)

	_, err := engine.GetNode("person:a000000000000001")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
