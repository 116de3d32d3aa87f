package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/answerlake/answerlake/pkg/frame"
	"github.com/answerlake/answerlake/pkg/llm"
	"github.com/answerlake/answerlake/pkg/metrics"
	"github.com/answerlake/answerlake/pkg/logger"
	"github.com/answerlake/answerlake/pkg/pipeline"
	"github.com/answerlake/answerlake/pkg/warehouse"
)

type stubOracle struct{}

func (stubOracle) ProposeSQL(ctx context.Context, conversation []llm.Message) (*llm.SQLProposal, error) {
	return &llm.SQLProposal{Description: "totals by name", Query: "SELECT name, total FROM sales"}, nil
}

func (stubOracle) ProposeCode(ctx context.Context, conversation []llm.Message) (*llm.CodeProposal, error) {
	return &llm.CodeProposal{
		Docstring: "Sum the totals.",
		Code:      "def answer_question(df):\n    return df['total'].sum()\n",
	}, nil
}

type stubGuard struct{}

func (stubGuard) IsBlocked(ctx context.Context, question string) bool { return false }

type stubConnector struct {
	listCalls int
}

func (c *stubConnector) Kind() string { return "duckdb" }

func (c *stubConnector) DryRun(ctx context.Context, query string) ([]string, error) {
	return nil, nil
}

func (c *stubConnector) Execute(ctx context.Context, query string) (*frame.Frame, error) {
	f := frame.New([]string{"name", "total"})
	f.Append(map[string]any{"name": "alpha", "total": int64(12)})
	f.Append(map[string]any{"name": "beta", "total": int64(30)})
	return f, nil
}

func (c *stubConnector) ListDatasets(ctx context.Context) ([]string, error) {
	c.listCalls++
	return []string{"main"}, nil
}

func (c *stubConnector) ListTables(ctx context.Context, dataset string) ([]string, error) {
	return []string{"sales"}, nil
}

func (c *stubConnector) GetSchema(ctx context.Context, dataset, table string) ([]warehouse.Column, error) {
	return []warehouse.Column{
		{Name: "name", Type: "VARCHAR"},
		{Name: "total", Type: "BIGINT"},
	}, nil
}

func (c *stubConnector) Close() error { return nil }

func newTestServer(t *testing.T) (*Server, *stubConnector) {
	t.Helper()
	conn := &stubConnector{}
	log := logger.New(io.Discard, false)
	orch := pipeline.NewOrchestrator(stubOracle{}, stubGuard{}, conn, clockwork.NewFakeClock(), log)
	s, err := New(Config{Log: log, Orchestrator: orch, Conn: conn})
	require.NoError(t, err)
	return s, conn
}

func analyzeBody(t *testing.T, question string) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(pipeline.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: question}},
	})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestServer_Healthz(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "duckdb", body["datasource"])
}

func TestServer_Analyze(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", analyzeBody(t, "total sales?"))
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp pipeline.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, pipeline.StatusSucceeded, resp.Status)
	require.Len(t, resp.Outputs, 4)
	require.Equal(t, pipeline.OutputSQLQuery, resp.Outputs[0].Type)
	require.Equal(t, pipeline.OutputInt, resp.Outputs[3].Type)
	require.Equal(t, 2, resp.Usage.Tokens)
}

func TestServer_Analyze_RecordsAttemptMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", analyzeBody(t, "total sales?"))
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// One observation per stage that ran, labeled sql and code.
	got := testutil.CollectAndCount(metrics.AnalysisAttempts, "answerlake_analysis_attempts")
	require.Equal(t, 2, got)
}

func TestServer_StartStopsOnContextCancel(t *testing.T) {
	s, _ := newTestServer(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_Analyze_InvalidBody(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("{not json"))
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_AnalyzeStream(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze/stream", analyzeBody(t, "total sales?"))
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	raw := rec.Body.String()
	frames := strings.Split(strings.TrimSuffix(raw, frameTerminator+"\n"), frameTerminator+"\n")
	require.GreaterOrEqual(t, len(frames), 3)

	var deltas []pipeline.Delta
	for _, fr := range frames {
		payload, ok := strings.CutPrefix(fr, "data: ")
		require.Truef(t, ok, "frame missing data prefix: %q", fr)
		var d pipeline.Delta
		require.NoError(t, json.Unmarshal([]byte(payload), &d))
		deltas = append(deltas, d)
	}

	// the final frame carries the assembled response
	last := deltas[len(deltas)-1]
	require.NotNil(t, last.Response)
	require.Equal(t, pipeline.StatusSucceeded, last.Response.Status)
	for _, d := range deltas[:len(deltas)-1] {
		require.Nil(t, d.Response)
	}
}

func TestServer_AnalyzeHonorsStreamFlag(t *testing.T) {
	s, _ := newTestServer(t)

	body, err := json.Marshal(pipeline.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "total sales?"}},
		Config:   pipeline.Config{Stream: true},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(body))
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), frameTerminator)
}

func TestServer_SchemaSummaryCached(t *testing.T) {
	s, conn := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/analyze", analyzeBody(t, "total sales?"))
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Equal(t, 1, conn.listCalls, "schema is summarized once within the TTL")
}
