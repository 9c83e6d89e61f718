package mutation

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/schema"
)

func largeBatchText(ops int) string {
	var sb strings.Builder
	for i := 0; i < ops; i++ {
		fmt.Fprintf(&sb, `{"op":"CREATE","type":"node","label":"person","id":"person:%016x","set_properties":{"data_source_id":"d","source_path":"p"}}`, i)
		sb.WriteByte('\n')
	}
	return sb.String()
}

type resultCollector struct {
	mu      sync.Mutex
	results []*ParseResult
}

func (c *resultCollector) collect(r *ParseResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *resultCollector) wait(t *testing.T, n int) []*ParseResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.results) >= n {
			out := append([]*ParseResult(nil), c.results...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d results", n)
	return nil
}

func TestDispatcher_SyncPathForSmallInput(t *testing.T) {
	d := NewDispatcher(NewValidator(schema.NewRegistry()), nil, nil)
	defer d.Close()

	res := d.Submit(`{"op":"DELETE","type":"node","id":"person:a000000000000001"}`)
	require.NotNil(t, res)
	assert.Equal(t, ParseModeSync, res.Mode)
	require.NotNil(t, res.Batch)
	assert.Len(t, res.Batch.Ops, 1)
	assert.Equal(t, StateReady, d.State())
}

func TestDispatcher_BackgroundPathForLargeInput(t *testing.T) {
	collector := &resultCollector{}
	config := &DispatcherConfig{
		SyncThreshold:    128,
		SummaryThreshold: 1 << 30,
		DebounceInterval: 10 * time.Millisecond,
		MaxSummaryErrors: 20,
	}
	d := NewDispatcher(NewValidator(schema.NewRegistry()), config, collector.collect)
	defer d.Close()

	res := d.Submit(largeBatchText(50))
	assert.Nil(t, res, "large input must not parse on the caller's context")

	results := collector.wait(t, 1)
	require.NotNil(t, results[0].Batch)
	assert.Equal(t, ParseModeBackground, results[0].Mode)
	assert.Len(t, results[0].Batch.Ops, 50)
}

func TestDispatcher_LastRequestWins(t *testing.T) {
	collector := &resultCollector{}
	config := &DispatcherConfig{
		SyncThreshold:    16,
		SummaryThreshold: 1 << 30,
		DebounceInterval: 20 * time.Millisecond,
		MaxSummaryErrors: 20,
	}
	d := NewDispatcher(NewValidator(schema.NewRegistry()), config, collector.collect)
	defer d.Close()

	// Rapid edits: every submission but the last is superseded by debounce.
	for i := 1; i <= 5; i++ {
		d.Submit(largeBatchText(i))
	}

	results := collector.wait(t, 1)
	time.Sleep(50 * time.Millisecond) // no further results may arrive

	collector.mu.Lock()
	defer collector.mu.Unlock()
	require.Len(t, collector.results, 1)
	assert.Len(t, results[0].Batch.Ops, 5)
}

func TestDispatcher_SummaryModeAboveThreshold(t *testing.T) {
	collector := &resultCollector{}
	config := &DispatcherConfig{
		SyncThreshold:    16,
		SummaryThreshold: 512,
		DebounceInterval: time.Millisecond,
		MaxSummaryErrors: 3,
	}
	d := NewDispatcher(NewValidator(schema.NewRegistry()), config, collector.collect)
	defer d.Close()

	text := largeBatchText(40) + "broken line\n"
	require.Greater(t, len(text), config.SummaryThreshold)
	d.Submit(text)

	results := collector.wait(t, 1)
	res := results[0]
	assert.Equal(t, ParseModeSummary, res.Mode)
	assert.Nil(t, res.Batch)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 40, res.Summary.Creates)
	assert.Equal(t, 40, res.Summary.Operations())
	assert.Equal(t, 1, res.Summary.ParseErrors)
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(NewValidator(schema.NewRegistry()), nil, nil)
	d.Close()
	d.Close()
	assert.Nil(t, d.Submit("{}"))
}

func TestSummarize_CountsPerKind(t *testing.T) {
	text := strings.Join([]string{
		`{"op":"DEFINE","type":"node","label":"person"}`,
		`{"op":"CREATE","type":"node","label":"person","id":"person:a000000000000001"}`,
		`{"op":"UPDATE","type":"node","id":"person:a000000000000001"}`,
		`{"op":"DELETE","type":"node","id":"person:a000000000000001"}`,
		`# comment`,
		``,
		`garbage`,
		`{"op":"NOPE"}`,
	}, "\n")

	s := Summarize(text, 10)
	assert.Equal(t, 1, s.Defines)
	assert.Equal(t, 1, s.Creates)
	assert.Equal(t, 1, s.Updates)
	assert.Equal(t, 1, s.Deletes)
	assert.Equal(t, 2, s.Skipped)
	assert.Equal(t, 2, s.ParseErrors)
	require.Len(t, s.FirstErrors, 2)
	assert.Equal(t, "Line 7: invalid syntax", s.FirstErrors[0])
	assert.Equal(t, 8, s.TotalLines)
}

func TestSummarize_ErrorCap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString("broken\n")
	}
	s := Summarize(sb.String(), 3)
	assert.Equal(t, 10, s.ParseErrors)
	assert.Len(t, s.FirstErrors, 3)
}
