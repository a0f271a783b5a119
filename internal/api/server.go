// Package api serves the counter's HTTP interface: live counters, frame loop
// statistics, out-of-range status, stored count history and debug charts.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/headcount/internal/db"
	"github.com/banshee-data/headcount/internal/outofrange"
	"github.com/banshee-data/headcount/internal/pipeline"
	"github.com/banshee-data/headcount/internal/serialmux"
	"github.com/banshee-data/headcount/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// CounterReader reports the live counters.
type CounterReader interface {
	Counters() (in, out int)
}

// StatusSource reports the out-of-range compensation status.
type StatusSource interface {
	Status() outofrange.Status
}

// StatsSource reports frame loop statistics.
type StatsSource interface {
	Stats() pipeline.Stats
}

// HistoryStore reads stored count events.
type HistoryStore interface {
	RecentEvents(ctx context.Context, limit int) ([]db.CountRecord, error)
	HourlyTotals(ctx context.Context, start, end time.Time) ([]db.HourlyTotal, error)
}

// Options wires a Server. Counters is required; the rest are optional and
// their routes answer 404 when unset.
type Options struct {
	Counters   CounterReader
	OutOfRange StatusSource
	Stats      StatsSource
	History    HistoryStore
	Commands   *serialmux.CommandHandler
	Clock      timeutil.Clock
}

type Server struct {
	counters CounterReader
	oor      StatusSource
	stats    StatsSource
	history  HistoryStore
	commands *serialmux.CommandHandler
	clock    timeutil.Clock
}

func NewServer(o Options) *Server {
	clock := o.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{
		counters: o.Counters,
		oor:      o.OutOfRange,
		stats:    o.Stats,
		history:  o.History,
		commands: o.Commands,
		clock:    clock,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/counters", s.showCounters)
	mux.HandleFunc("/api/command", s.sendCommandHandler)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/outofrange", s.showOutOfRange)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/hourly", s.showHourly)
	s.AttachAdminRoutes(mux)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: failed to write response: %v", err)
	}
}

// CountersResponse is the body of GET /api/counters.
type CountersResponse struct {
	In   int       `json:"in"`
	Out  int       `json:"out"`
	Time time.Time `json:"time"`
}

func (s *Server) showCounters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	in, out := s.counters.Counters()
	s.writeJSON(w, CountersResponse{In: in, Out: out, Time: s.clock.Now().UTC()})
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.commands == nil {
		http.Error(w, "Commands not available", http.StatusNotFound)
		return
	}
	reply, err := s.commands.Handle(r.Context(), r.FormValue("command"))
	if err != nil {
		http.Error(w, reply, http.StatusBadRequest)
		return
	}
	io.WriteString(w, reply)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.stats == nil {
		s.writeJSONError(w, http.StatusNotFound, "no frame statistics available")
		return
	}
	s.writeJSON(w, s.stats.Stats())
}

func (s *Server) showOutOfRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.oor == nil {
		s.writeJSONError(w, http.StatusNotFound, "out-of-range compensation not configured")
		return
	}
	s.writeJSON(w, s.oor.Status())
}

// intParam parses a positive integer query parameter, returning def when it
// is absent.
func intParam(r *http.Request, name string, def, max int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("invalid '%s' parameter", name)
	}
	return n, nil
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.history == nil {
		s.writeJSONError(w, http.StatusNotFound, "no count history available")
		return
	}
	limit, err := intParam(r, "limit", 100, 10000)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.history.RecentEvents(r.Context(), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	if events == nil {
		events = []db.CountRecord{}
	}
	s.writeJSON(w, events)
}

func (s *Server) hourlyTotals(r *http.Request) ([]db.HourlyTotal, int, error) {
	hours, err := intParam(r, "hours", 24, 24*366)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	end := s.clock.Now().UTC().Truncate(time.Hour).Add(time.Hour)
	start := end.Add(-time.Duration(hours) * time.Hour)
	totals, err := s.history.HourlyTotals(r.Context(), start, end)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to retrieve hourly totals: %v", err)
	}
	return totals, http.StatusOK, nil
}

func (s *Server) showHourly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.history == nil {
		s.writeJSONError(w, http.StatusNotFound, "no count history available")
		return
	}
	totals, status, err := s.hourlyTotals(r)
	if err != nil {
		s.writeJSONError(w, status, err.Error())
		return
	}
	if totals == nil {
		totals = []db.HourlyTotal{}
	}
	s.writeJSON(w, totals)
}
