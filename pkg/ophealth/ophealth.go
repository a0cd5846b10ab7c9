// Package ophealth exposes the operational HTTP endpoints fleetsched
// serves alongside its control loops (adapted from the teacher's
// pkg/api/health.go): /health (liveness), /ready (readiness — store
// reachable and the caller's ready check true; leader-lock status is
// reported but does not affect readiness), /events (the
// most recent entries off pkg/events' audit stream) and /metrics
// (promhttp).
package ophealth

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/fleetform/fleetsched/pkg/events"
	"github.com/fleetform/fleetsched/pkg/metrics"
	"github.com/fleetform/fleetsched/pkg/store"
)

// recentEvents bounds how many audit events /events keeps around.
const recentEvents = 50

// Server serves fleetsched's operational HTTP surface.
type Server struct {
	store    store.Store
	isLeader func() bool
	ready    func() bool

	sub      events.Subscriber
	broker   *events.Broker
	mu       sync.Mutex
	recent   []*events.Event
	stopCh   chan struct{}

	mux *http.ServeMux
}

// New constructs a Server. isLeader reports whether this process
// currently holds the scheduler leader lock and is only reported in the
// /ready checks; ready, when non-nil, must return true for /ready to
// succeed (cmd/fleetsched sets it once the control loops are started).
// If broker is non-nil, Server
// subscribes to it and serves the most recent events it observes at
// /events.
func New(s store.Store, isLeader, ready func() bool, broker *events.Broker) *Server {
	srv := &Server{store: s, isLeader: isLeader, ready: ready, mux: http.NewServeMux()}
	srv.mux.HandleFunc("/health", srv.health)
	srv.mux.HandleFunc("/ready", srv.readiness)
	srv.mux.HandleFunc("/events", srv.events)
	srv.mux.Handle("/metrics", metrics.Handler())

	if broker != nil {
		srv.broker = broker
		srv.sub = broker.Subscribe()
		srv.stopCh = make(chan struct{})
		go srv.collect()
	}
	return srv
}

// collect drains the event subscription into a bounded ring buffer for
// /events to serve without blocking on the broker.
func (s *Server) collect() {
	for {
		select {
		case event := <-s.sub:
			s.mu.Lock()
			s.recent = append(s.recent, event)
			if len(s.recent) > recentEvents {
				s.recent = s.recent[len(s.recent)-recentEvents:]
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// Stop unsubscribes from the event broker, if one was given to New.
func (s *Server) Stop() {
	if s.broker == nil {
		return
	}
	close(s.stopCh)
	s.broker.Unsubscribe(s.sub)
}

// Handler returns the HTTP handler for embedding in another server, or
// use Start to run it standalone.
func (s *Server) Handler() http.Handler { return s.mux }

// Start runs the server, blocking until it errors or the listener closes.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	recent := make([]*events.Event, len(s.recent))
	copy(recent, s.recent)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, recent)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: time.Now()})
}

type readyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ok := true

	if err := s.store.Ping(); err != nil {
		checks["store"] = "error: " + err.Error()
		ok = false
	} else {
		checks["store"] = "ok"
	}

	if s.isLeader() {
		checks["leaderlock"] = "leader"
	} else {
		checks["leaderlock"] = "follower"
	}

	if s.ready != nil && !s.ready() {
		checks["control_loops"] = "not yet run"
		ok = false
	} else {
		checks["control_loops"] = "ok"
	}

	status := "ready"
	code := http.StatusOK
	if !ok {
		status = "not ready"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, readyResponse{Status: status, Timestamp: time.Now(), Checks: checks})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
