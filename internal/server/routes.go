package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.HelloWorldHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /register", s.registerHandler)
	mux.HandleFunc("DELETE /register/{token}", s.unregisterHandler)
	mux.HandleFunc("GET /ws/{token}", s.websocketHandler)

	// Wrap the mux with CORS middleware
	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Replace "*" with specific origins if needed
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) HelloWorldHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "All's good here!"})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.health.Health(r.Context()))
}

// registerHandler upserts the player by name, mints a fresh session token in
// the registry (not yet attached to any socket), and hands back the websocket
// endpoint to open with it.
func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorMessage{Message: "Invalid register payload"})
		return
	}

	if err := ValidateUsername(req.Username); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorMessage{Message: err.Error()})
		return
	}

	player, err := s.store.GetOrCreatePlayer(r.Context(), req.Username)
	if err != nil {
		log.Printf("Failed to register %q: %v", req.Username, err)
		s.writeJSON(w, http.StatusInternalServerError, ErrorMessage{Message: "Registration failed"})
		return
	}

	token := uuid.New().String()
	s.registry.Register(token, player.ID, player.Name)
	log.Printf("Registered %s as connection %s", player.Name, token)

	s.writeJSON(w, http.StatusOK, RegisterResponse{URL: s.cfg.ConnectionURL(token)})
}

func (s *Server) unregisterHandler(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	s.registry.Unregister(token)
	log.Printf("Unregistered connection %s", token)
	w.WriteHeader(http.StatusOK)
}

// websocketHandler upgrades a registered token to a live duplex connection
// and runs its two tasks: a writer pump draining the outbound queue and the
// inbound receive loop. Cleanup unregisters exactly once no matter which
// side fails first.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	// Registration must precede the upgrade.
	conn, ok := s.registry.Get(token)
	if !ok {
		http.Error(w, "Unknown session token", http.StatusNotFound)
		return
	}

	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // TODO: make environment-specific
	})
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	outbound, ok := s.registry.Attach(token)
	if !ok {
		// Unregistered between the lookup and the upgrade finishing.
		return
	}

	log.Printf("%s connected at %s", conn.Username, token)
	defer func() {
		s.registry.Unregister(token)
		s.limiter.RemoveConnection(token)
		log.Printf("%s disconnected at %s", conn.Username, token)
	}()

	// Writer pump: forward the queue to the wire until the queue closes or
	// the transport fails. Closing the socket on failure unblocks the reader,
	// which then runs the shared cleanup.
	go func() {
		for payload := range outbound {
			if err := socket.Write(ctx, websocket.MessageText, payload); err != nil {
				log.Printf("Connection %s write error: %v", token, err)
				socket.Close(websocket.StatusInternalError, "Write failure")
				return
			}
		}
	}()

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			log.Printf("Connection %s read error: %v", token, err)
			return
		}

		if msgType != websocket.MessageText {
			log.Printf("Non-text input from %s", token)
			continue
		}

		// Keepalives are advisory text, not game traffic.
		if msg := string(data); msg == "ping" || msg == "ping\n" {
			continue
		}

		if !s.limiter.Allow(token) {
			log.Printf("Rate limited %s", token)
			continue
		}

		var req ClientRequest
		if err := json.Unmarshal(data, &req); err != nil {
			// Malformed frames are dropped; the connection stays open.
			log.Printf("Invalid JSON from %s: %v", token, err)
			continue
		}

		if err := s.coordinator.PlayPiece(ctx, conn.UserID, req.Play); err != nil {
			// The requester gets no updated view and may retry.
			log.Printf("Play from %s failed: %v", token, err)
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

// HealthReporter is the probe surface the health endpoint exposes; the
// Postgres store implements it.
type HealthReporter interface {
	Health(ctx context.Context) map[string]string
}
