package server

import (
	"sync"
)

// sendBuffer bounds each connection's outbound queue. Deliver drops payloads
// for consumers that stopped draining; the reader loop owns teardown.
const sendBuffer = 32

// Connection is one registered session token. A token is minted at
// registration, before any socket exists; send stays nil until the websocket
// upgrade completes and the writer pump attaches.
type Connection struct {
	Token    string
	UserID   int64
	Username string

	send chan []byte
}

// Registry tracks every live connection of every player. Both maps are kept
// consistent as a pair: a token present in conns for user u always appears in
// byUser[u], and vice versa. The lock is held only across individual map
// operations, never across a whole move.
type Registry struct {
	conns  map[string]*Connection        // token → connection
	byUser map[int64]map[string]struct{} // user id → set of tokens
	mu     sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		byUser: make(map[int64]map[string]struct{}),
	}
}

// Register creates an entry with no outbound channel yet.
func (r *Registry) Register(token string, userID int64, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[token] = &Connection{Token: token, UserID: userID, Username: username}

	tokens, ok := r.byUser[userID]
	if !ok {
		tokens = make(map[string]struct{})
		r.byUser[userID] = tokens
	}
	tokens[token] = struct{}{}
}

func (r *Registry) Get(token string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[token]
	return conn, ok
}

// Attach sets the outbound channel once the transport upgrade finished and
// returns it for the writer pump to drain. Attaching an unknown token fails;
// attaching twice returns the existing channel.
func (r *Registry) Attach(token string) (<-chan []byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[token]
	if !ok {
		return nil, false
	}
	if conn.send == nil {
		conn.send = make(chan []byte, sendBuffer)
	}
	return conn.send, true
}

// Unregister removes the connection, prunes its user's token set when it
// empties, and closes the outbound channel. Idempotent: unknown tokens are a
// no-op, so both the reader loop and the REST unregister path may call it.
func (r *Registry) Unregister(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[token]
	if !ok {
		return
	}
	delete(r.conns, token)

	if tokens, ok := r.byUser[conn.UserID]; ok {
		delete(tokens, token)
		if len(tokens) == 0 {
			delete(r.byUser, conn.UserID)
		}
	}

	if conn.send != nil {
		close(conn.send)
	}
}

// Deliver enqueues payload on every attached connection the user currently
// has: every open tab and device, unordered, best effort. Unattached
// connections are skipped (upgrade still in flight) and full queues are
// dropped. The read lock excludes Unregister's close, so an enqueue never
// races a closing channel.
func (r *Registry) Deliver(userID int64, payload []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for token := range r.byUser[userID] {
		conn, ok := r.conns[token]
		if !ok || conn.send == nil {
			continue
		}
		select {
		case conn.send <- payload:
		default:
		}
	}
}
