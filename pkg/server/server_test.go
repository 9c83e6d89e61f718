package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/config"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/metrics"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/schema"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/storage"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()

	cfg := config.Default()
	cfg.InMemory = true
	cfg.ParseDebounce = 5 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { _ = engine.Close() })

	s := New(cfg, engine, schema.NewRegistry(), metrics.New())
	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)
	return s, ts
}

func postText(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "text/plain", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp, []byte(readAll(t, resp))
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			return sb.String()
		}
	}
}

const applyBatch = `{"op":"DEFINE","type":"node","label":"person","required_properties":["name"]}
{"op":"CREATE","type":"node","label":"person","id":"person:a000000000000001","set_properties":{"name":"Alice","data_source_id":"ds1","source_path":"p.md"}}`

func TestServer_ApplyAndLookup(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := postText(t, ts.URL+"/v1/mutations/apply", applyBatch)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Success           bool     `json:"success"`
		OperationsApplied int      `json:"operations_applied"`
		Errors            []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.True(t, result.Success, "errors: %v", result.Errors)
	assert.Equal(t, 2, result.OperationsApplied)

	resp2, err := http.Get(ts.URL + "/v1/nodes/person:a000000000000001")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var node storage.Node
	require.NoError(t, json.Unmarshal([]byte(readAll(t, resp2)), &node))
	assert.Equal(t, "person", node.Label)
	assert.Equal(t, "Alice", node.Properties["name"])

	resp3, err := http.Get(ts.URL + "/v1/schema/types")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Contains(t, readAll(t, resp3), `"label":"person"`)
}

func TestServer_ApplyFatalErrorReturns422(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := postText(t, ts.URL+"/v1/mutations/apply",
		`{"op":"CREATE","type":"node","id":"person:a000000000000001","set_properties":{"data_source_id":"d","source_path":"p"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var result struct {
		Success           bool `json:"success"`
		OperationsApplied int  `json:"operations_applied"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.OperationsApplied)
}

func TestServer_LintReportsWarningsWithoutApplying(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := postText(t, ts.URL+"/v1/mutations/lint",
		`{"op":"CREATE","type":"node","label":"person","id":"person:a000000000000001","set_properties":{"name":"Alice","data_source_id":"d","source_path":"p"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lint struct {
		Operations int  `json:"operations"`
		Applyable  bool `json:"applyable"`
		Warnings   []struct {
			Index    int      `json:"index"`
			Messages []string `json:"messages"`
		} `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(body, &lint))
	assert.Equal(t, 1, lint.Operations)
	assert.True(t, lint.Applyable)
	require.Len(t, lint.Warnings, 1)
	assert.Contains(t, lint.Warnings[0].Messages[0], "undefined")

	// Lint never touches the store.
	resp2, err := http.Get(ts.URL + "/v1/nodes/person:a000000000000001")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestServer_LintSummaryAboveThreshold(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.SyncThresholdBytes = 64
		cfg.SummaryThresholdBytes = 128
	})

	var sb strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, `{"op":"DELETE","type":"node","id":"person:%016x"}`, i)
		sb.WriteByte('\n')
	}

	resp, body := postText(t, ts.URL+"/v1/mutations/lint", sb.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lint struct {
		Summary *struct {
			Deletes int `json:"deletes"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(body, &lint))
	require.NotNil(t, lint.Summary)
	assert.Equal(t, 10, lint.Summary.Deletes)
}

func TestServer_PreviewSessionSyncPath(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := postText(t, ts.URL+"/v1/sessions/editor-1/preview",
		`{"op":"DELETE","type":"node","id":"person:a000000000000001"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var preview struct {
		State      string `json:"state"`
		Mode       string `json:"mode"`
		Operations int    `json:"operations"`
		Applyable  bool   `json:"applyable"`
	}
	require.NoError(t, json.Unmarshal(body, &preview))
	assert.Equal(t, "ready", preview.State)
	assert.Equal(t, "sync", preview.Mode)
	assert.Equal(t, 1, preview.Operations)
	assert.True(t, preview.Applyable)
}

func TestServer_PreviewSessionBackgroundPath(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.SyncThresholdBytes = 32
	})

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, `{"op":"DELETE","type":"node","id":"person:%016x"}`, i)
		sb.WriteByte('\n')
	}

	resp, _ := postText(t, ts.URL+"/v1/sessions/editor-2/preview", sb.String())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Poll until the background result is honored.
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(ts.URL + "/v1/sessions/editor-2/preview")
		require.NoError(t, err)
		body := readAll(t, resp)
		resp.Body.Close()

		var preview struct {
			State      string `json:"state"`
			Operations int    `json:"operations"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &preview))
		if preview.State == "ready" {
			assert.Equal(t, 20, preview.Operations)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("preview never became ready, last state %q", preview.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Closing the session drops it.
	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/sessions/editor-2", nil)
	require.NoError(t, err)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	resp3, err := http.Get(ts.URL + "/v1/sessions/editor-2/preview")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

func TestServer_UnknownSessionAndMissingEntities(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/v1/sessions/nope/preview")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/v1/edges/knows:ffffffffffffffff")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_StatsAndHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, _ := postText(t, ts.URL+"/v1/mutations/apply", applyBatch)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/v1/stats")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var stats storage.Stats
	require.NoError(t, json.Unmarshal([]byte(readAll(t, resp2)), &stats))
	assert.Equal(t, int64(1), stats.Nodes)
	assert.Equal(t, int64(1), stats.TypeDefinitions)

	resp3, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
}

func TestServer_BatchSizeLimit(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.MaxBatchBytes = 64
	})

	resp, _ := postText(t, ts.URL+"/v1/mutations/apply", strings.Repeat("x", 200))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}
