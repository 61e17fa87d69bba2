// Package collector is a small HTTP endpoint nodes can POST records to. It
// forwards every accepted record to a sink and keeps the latest record per
// device and sensor for an overview page.
package collector

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"soilnode/internal/sink"
	"soilnode/internal/telemetry"
)

// maxBody bounds a single record POST.
const maxBody = 4096

//go:embed templates/index.html
var content embed.FS

type key struct {
	device string
	sensor int
}

// Server accepts records on /api.
type Server struct {
	Writer sink.RecordWriter
	Log    *slog.Logger

	tpl *template.Template

	mu       sync.Mutex
	latest   map[key]telemetry.Record
	received int
	rejected int
}

// NewServer creates a collector forwarding to w.
func NewServer(w sink.RecordWriter, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	return &Server{Writer: w, Log: log, tpl: tpl, latest: make(map[key]telemetry.Record)}
}

// Handler returns the collector routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api", s.handleRecord)
	mux.HandleFunc("/nodes", s.handleNodes)
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil || len(body) > maxBody || !json.Valid(body) {
		s.reject(w, "malformed record", len(body))
		return
	}
	rec, err := telemetry.Decode(body)
	if err != nil || rec.DeviceID == "" {
		s.reject(w, "malformed record", len(body))
		return
	}

	if s.Writer != nil {
		if err := s.Writer.Write(rec); err != nil {
			s.Log.Error("sink write failed", "device", rec.DeviceID, "sensor", rec.SensorID, "error", err)
			http.Error(w, "sink unavailable", http.StatusBadGateway)
			return
		}
	}

	s.mu.Lock()
	s.latest[key{rec.DeviceID, rec.SensorID}] = rec
	s.received++
	s.mu.Unlock()

	s.Log.Debug("record accepted", "device", rec.DeviceID, "sensor", rec.SensorID, "status", rec.StatusBit.String())
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "ok")
}

func (s *Server) reject(w http.ResponseWriter, msg string, n int) {
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()
	s.Log.Warn("record rejected", "reason", msg, "bytes", n)
	if s.Writer != nil {
		sink.NotifyReject(s.Writer, msg, n)
	}
	http.Error(w, msg, http.StatusBadRequest)
}

// Latest returns the newest record per device and sensor, sorted.
func (s *Server) Latest() []telemetry.Record {
	s.mu.Lock()
	out := make([]telemetry.Record, 0, len(s.latest))
	for _, r := range s.latest {
		out = append(out, r)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].SensorID < out[j].SensorID
	})
	return out
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Latest())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	received, rejected := s.received, s.rejected
	s.mu.Unlock()
	data := struct {
		Received int
		Rejected int
		Nodes    []telemetry.Record
	}{received, rejected, s.Latest()}
	if err := s.tpl.Execute(w, data); err != nil {
		s.Log.Error("render index", "error", err)
	}
}
