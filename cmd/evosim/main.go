// Command evosim serves a local evolution telemetry feed for development:
// the websocket endpoint plus the status, trigger, and reset REST actions,
// all driven by the simulation generator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/observatory/internal/observability"
	"github.com/coachpo/observatory/internal/schema"
	"github.com/coachpo/observatory/internal/sim"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
	writeTimeout      = 5 * time.Second
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	interval := flag.Duration("interval", 5*time.Second, "generation broadcast interval")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	observability.SetLogger(observability.NewStdLogger("evosim ", false))

	server := newServer(*interval)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/evolution/ws", server.handleWS)
	mux.HandleFunc("/api/evolution/status", server.handleStatus)
	mux.HandleFunc("/api/evolution/trigger", server.handleTrigger)
	mux.HandleFunc("/api/evolution/reset", server.handleReset)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	var wg conc.WaitGroup
	wg.Go(func() { server.broadcastLoop(ctx) })
	wg.Go(func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observability.Log().Error("listen failed", observability.F("error", err))
			cancel()
		}
	})

	observability.Log().Info("evosim listening", observability.F("addr", *addr))
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
	wg.Wait()
}

// server owns the simulated evolution state and the connected clients.
type server struct {
	interval  time.Duration
	generator *sim.Generator

	mu      sync.Mutex
	current *schema.Snapshot
	clients map[*websocket.Conn]struct{}
}

func newServer(interval time.Duration) *server {
	generator := sim.NewGenerator(rand.New(rand.NewSource(time.Now().UnixNano())))
	return &server{
		interval:  interval,
		generator: generator,
		current:   generator.Seed(),
		clients:   make(map[*websocket.Conn]struct{}),
	}
}

// broadcastLoop advances one generation per interval and pushes it to every
// connected client.
func (s *server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.advance()
			s.broadcast(ctx, schema.MessageTypeEvolutionUpdate)
		}
	}
}

func (s *server) advance() {
	s.mu.Lock()
	s.current = s.generator.Tick(s.current)
	s.mu.Unlock()
}

func (s *server) snapshot() *schema.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

func (s *server) broadcast(ctx context.Context, messageType string) {
	frame, err := feedFrame(messageType, s.snapshot())
	if err != nil {
		observability.Log().Error("encode broadcast", observability.F("error", err))
		return
	}
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := conn.Write(writeCtx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			s.drop(conn)
		}
	}
}

func (s *server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observability.Log().Error("accept failed", observability.F("error", err))
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	observability.Log().Info("client connected", observability.F("remote", r.RemoteAddr))

	// New clients get the full state up front.
	s.send(r.Context(), conn, schema.MessageTypeInitialState)
	s.readLoop(r.Context(), conn)
}

// readLoop answers client control messages until the connection drops.
func (s *server) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer s.drop(conn)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var control struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &control); err != nil {
			continue
		}
		switch control.Type {
		case schema.MessageTypeRequestUpdate:
			s.send(ctx, conn, schema.MessageTypeEvolutionUpdate)
		case schema.MessageTypePing:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			_ = conn.Write(writeCtx, websocket.MessageText, []byte(`{"type":"pong"}`))
			cancel()
		}
	}
}

func (s *server) send(ctx context.Context, conn *websocket.Conn, messageType string) {
	frame, err := feedFrame(messageType, s.snapshot())
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, frame); err != nil {
		s.drop(conn)
	}
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, statusPayload(s.snapshot()))
}

func (s *server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.advance()
	s.broadcast(r.Context(), schema.MessageTypeEvolutionUpdate)
	snap := s.snapshot()
	writeJSON(w, map[string]any{
		"status":            "triggered",
		"generation":        snap.Generation,
		"expected_duration": s.interval.String(),
	})
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	s.current = s.generator.Seed()
	s.mu.Unlock()
	s.broadcast(r.Context(), schema.MessageTypeInitialState)
	writeJSON(w, map[string]any{
		"status":  "reset_complete",
		"message": "evolution state reset to the seed catalogue",
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		observability.Log().Error("write response", observability.F("error", err))
	}
}

// statusPayload renders a snapshot in the current server field names. The
// dashboard's normalizer accepts both these and the legacy names.
func statusPayload(snap *schema.Snapshot) map[string]any {
	strategies := make([]map[string]any, 0, len(snap.Strategies))
	for _, st := range snap.Strategies {
		strategies = append(strategies, map[string]any{
			"id":         st.ID,
			"fitness":    st.Fitness,
			"complexity": st.Complexity,
			"species":    st.Species,
		})
	}
	speciesList := make([]map[string]any, 0, len(snap.Species))
	adaptations := make([]string, 0, len(snap.Species))
	for _, sp := range snap.Species {
		speciesList = append(speciesList, map[string]any{
			"name":        sp.Name,
			"population":  sp.Population,
			"avg_fitness": sp.AvgFitness,
			"max_fitness": sp.MaxFitness,
		})
		adaptations = append(adaptations, sp.Name)
	}
	return map[string]any{
		"adaptive_improvements":         strategies,
		"active_experiments":            speciesList,
		"optimization_cycles_completed": snap.Population,
		"current_generation":            snap.Generation,
		"system_adaptations":            adaptations,
		"performance_metrics": map[string]any{
			"avg_fitness": snap.AvgFitness,
		},
	}
}

func feedFrame(messageType string, snap *schema.Snapshot) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": messageType,
		"data": statusPayload(snap),
	})
}
