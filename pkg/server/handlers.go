package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/answerlake/answerlake/pkg/metrics"
	"github.com/answerlake/answerlake/pkg/pipeline"
)

// frameTerminator closes each streamed frame. Clients split the stream on
// it rather than on newlines, which may occur inside the JSON payload.
const frameTerminator = "<end>"

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":     "ok",
		"datasource": s.conn.Kind(),
	})
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (*pipeline.Request, bool) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	if req.Config.Stream {
		s.stream(w, r, req)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	start := time.Now()
	resp := s.orch.Analyze(ctx, *req)
	s.observe(resp, time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	s.stream(w, r, req)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, req *pipeline.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(d pipeline.Delta) {
		payload, err := json.Marshal(d)
		if err != nil {
			s.log.Error("failed to encode delta", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s%s\n", payload, frameTerminator)
		flusher.Flush()
	}

	start := time.Now()
	resp := s.orch.AnalyzeStream(ctx, *req, emit)
	s.observe(resp, time.Since(start))
}

func (s *Server) observe(resp *pipeline.Response, elapsed time.Duration) {
	metrics.AnalysesTotal.WithLabelValues(string(resp.Status)).Inc()
	metrics.AnalysisDuration.Observe(elapsed.Seconds())
	metrics.GenerationTokens.Add(float64(resp.Usage.Tokens))
	// Attempt indices restart at zero when the code stage begins.
	sqlAttempts, codeAttempts := len(resp.Attempts), 0
	for i := 1; i < len(resp.Attempts); i++ {
		if resp.Attempts[i].Index == 0 {
			sqlAttempts = i
			codeAttempts = len(resp.Attempts) - i
			break
		}
	}
	if sqlAttempts > 0 {
		metrics.AnalysisAttempts.WithLabelValues("sql").Observe(float64(sqlAttempts))
	}
	if codeAttempts > 0 {
		metrics.AnalysisAttempts.WithLabelValues("code").Observe(float64(codeAttempts))
	}
	s.log.Info("analysis finished",
		"status", resp.Status,
		"attempts", len(resp.Attempts),
		"outputs", len(resp.Outputs),
		"errors", len(resp.Errors),
		"tokens", resp.Usage.Tokens,
		"duration", elapsed,
	)
}
