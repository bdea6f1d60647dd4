package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/pipeline"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// envelope is the JSON body of every API response.
type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Results any    `json:"results,omitempty"`
	Summary any    `json:"summary,omitempty"`
	Message string `json:"message"`
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	var env envelope
	err := s.withProcessor(r.Context(), "", func(ctx context.Context, p *pipeline.Processor) error {
		res, err := p.Fetch(ctx)
		if err != nil {
			return err
		}
		env = envelope{Status: statusSuccess, Data: res.Data.Records(), Message: message(ctx, p, "Data retrieved successfully")}
		return nil
	})
	s.respond(w, env, err)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var env envelope
	locator := strings.TrimSpace(r.URL.Query().Get("url"))
	if locator != "" && locator != s.processor.Source() && !pipeline.IsRemote(locator) {
		writeJSON(w, http.StatusBadRequest, envelope{Status: statusError, Message: "url must be an http or https URL"})
		return
	}
	err := s.withProcessor(r.Context(), locator, func(ctx context.Context, p *pipeline.Processor) error {
		rep, err := p.Analyze(ctx)
		if err != nil {
			return err
		}
		env = envelope{Status: statusSuccess, Results: rep, Message: message(ctx, p, "Data processed successfully")}
		return nil
	})
	s.respond(w, env, err)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var env envelope
	err := s.withProcessor(r.Context(), "", func(ctx context.Context, p *pipeline.Processor) error {
		sum, err := p.Summarize(ctx)
		if err != nil {
			return err
		}
		env = envelope{Status: statusSuccess, Summary: sum, Message: message(ctx, p, "Summary generated successfully")}
		return nil
	})
	s.respond(w, env, err)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatic serves the frontend build, falling back to index.html so client
// side routes resolve.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	dir := s.cfg.StaticDir
	if dir == "" {
		http.NotFound(w, r)
		return
	}
	name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	if serveFile(w, r, name) {
		return
	}
	if !serveFile(w, r, filepath.Join(dir, "index.html")) {
		http.NotFound(w, r)
	}
}

// serveFile writes the named regular file and reports whether it existed.
func serveFile(w http.ResponseWriter, r *http.Request, name string) bool {
	f, err := os.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}

// message appends a note when the processor is serving the demo dataset.
func message(ctx context.Context, p *pipeline.Processor, base string) string {
	res, err := p.Fetch(ctx)
	if err != nil || res.Outcome != pipeline.Fallback {
		return base
	}
	return base + " (demo dataset: source unavailable)"
}

func (s *Server) respond(w http.ResponseWriter, env envelope, err error) {
	if err != nil {
		s.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, envelope{Status: statusError, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
