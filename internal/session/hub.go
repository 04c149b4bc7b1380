package session

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jshea2/NMS-DMX-App/internal/config"
	"github.com/jshea2/NMS-DMX-App/internal/live"
)

// sendBuffer is the per-session outbound queue depth. A session that cannot
// drain this many broadcasts is dropped rather than allowed to stall the
// fan-out to everyone else.
const sendBuffer = 64

// Hub accepts websocket connections and owns the set of open sessions.
// Broadcasts are enqueued to every session under one lock, so each session
// observes them in the order they were generated.
type Hub struct {
	cfg      *config.Store
	live     *live.Store
	registry *Registry
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*Session]struct{}

	// updateMu serializes snapshot + broadcast for both state and roster
	// messages, so the broadcast for a later mutation always carries it and
	// two racing roster builds cannot be delivered newest-first. Live-state
	// merges themselves are atomic in the live store; this only orders the
	// resulting snapshots.
	updateMu sync.Mutex
}

// Session is one open connection, bound to at most one authenticated device
// id. It holds no durable data: the record it references outlives it.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	remoteIP   string
	isLoopback bool

	mu       sync.Mutex
	clientID string // empty until the auth handshake completes
	role     Role

	closeOnce sync.Once
}

// NewHub creates the session hub.
func NewHub(cfg *config.Store, liveStore *live.Store, registry *Registry) *Hub {
	return &Hub{
		cfg:      cfg,
		live:     liveStore,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The browser UI may be served from another origin in development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[*Session]struct{}),
	}
}

// ServeHTTP upgrades the connection and runs the session until it closes.
// The current state is pushed immediately; everything except the initial
// state push requires the auth handshake first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	ip := remoteIP(r)
	s := &Session{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		remoteIP:   ip,
		isLoopback: isLoopbackIP(ip),
		role:       RoleViewer,
	}

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	log.Info().Str("ip", ip).Msg("Client connected")

	go s.writePump()
	s.enqueue(stateMessage{Type: "state", Data: h.live.Get()})
	s.readPump(r.UserAgent())
}

// ApplyUpdate merges a mutation and broadcasts the resulting full state.
// Exposed for the HTTP surface, which shares the session layer's ordering
// guarantee.
func (h *Hub) ApplyUpdate(update live.Update) live.State {
	h.updateMu.Lock()
	defer h.updateMu.Unlock()
	snapshot := h.live.Apply(update)
	h.broadcast(stateMessage{Type: "state", Data: snapshot})
	return snapshot
}

// BroadcastState pushes the current full state to every open connection,
// authenticated or not.
func (h *Hub) BroadcastState() {
	h.updateMu.Lock()
	defer h.updateMu.Unlock()
	h.broadcast(stateMessage{Type: "state", Data: h.live.Get()})
}

// BroadcastRoster pushes the active-client list to every open connection.
// Fired on every authentication, disconnect, role change and removal.
func (h *Hub) BroadcastRoster() {
	h.updateMu.Lock()
	defer h.updateMu.Unlock()

	doc := h.cfg.Get()

	h.mu.Lock()
	entries := make([]rosterEntry, 0, len(h.sessions))
	seen := make(map[string]bool)
	for s := range h.sessions {
		id, role := s.identity()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		nickname := ""
		if c := doc.ClientByID(id); c != nil {
			nickname = c.Nickname
		}
		entries = append(entries, rosterEntry{
			ID:       id,
			ShortID:  ShortID(id),
			Role:     role,
			Nickname: nickname,
		})
	}
	h.mu.Unlock()

	h.broadcast(rosterMessage{
		Type:               "activeClients",
		Clients:            entries,
		ShowConnectedUsers: doc.WebServer.ShowConnectedUsers,
	})
}

// NotifyRole pushes a direct roleUpdate to every session authenticated as the
// given device id, so a promoted client refreshes its privilege view at once.
func (h *Hub) NotifyRole(clientID string, role Role) {
	payload, err := json.Marshal(roleUpdateMessage{Type: "roleUpdate", Role: role})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		if id, _ := s.identity(); id == clientID {
			s.setRole(role)
			s.trySend(payload)
		}
	}
}

// CloseClient closes all sessions authenticated as the given device id.
// Used when a record is removed from the registry.
func (h *Hub) CloseClient(clientID string) {
	h.mu.Lock()
	var victims []*Session
	for s := range h.sessions {
		if id, _ := s.identity(); id == clientID {
			victims = append(victims, s)
		}
	}
	h.mu.Unlock()

	for _, s := range victims {
		s.close()
	}
}

// ActiveIDs returns the set of device ids with at least one open session.
func (h *Hub) ActiveIDs() map[string]bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	active := make(map[string]bool)
	for s := range h.sessions {
		if id, _ := s.identity(); id != "" {
			active[id] = true
		}
	}
	return active
}

// broadcast marshals once and enqueues to every session. Sessions whose
// buffers are full are closed; a slow reader must not serialize the loop.
func (h *Hub) broadcast(msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Broadcast encode failed")
		return
	}

	h.mu.Lock()
	var stalled []*Session
	for s := range h.sessions {
		if !s.trySend(payload) {
			stalled = append(stalled, s)
		}
	}
	h.mu.Unlock()

	for _, s := range stalled {
		log.Warn().Str("ip", s.remoteIP).Msg("Dropping unresponsive session")
		s.close()
	}
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	_, present := h.sessions[s]
	delete(h.sessions, s)
	if present {
		// No sender can reach this session once it is out of the map, so the
		// writer goroutine can be released.
		close(s.send)
	}
	h.mu.Unlock()

	if present {
		id, _ := s.identity()
		log.Info().Str("ip", s.remoteIP).Str("client", ShortID(id)).Msg("Client disconnected")
		h.BroadcastRoster()
	}
}

// readPump processes inbound frames until the connection closes. Malformed
// frames are logged and ignored; the connection stays open.
func (s *Session) readPump(userAgent string) {
	defer func() {
		s.close()
		s.hub.unregister(s)
	}()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn().Err(err).Str("ip", s.remoteIP).Msg("Malformed client message")
			continue
		}

		switch msg.Type {
		case "auth":
			s.handleAuth(msg.ClientID, userAgent)
		case "update":
			s.handleUpdate(msg.Data)
		case "requestAccess":
			s.handleRequestAccess()
		default:
			log.Warn().Str("type", msg.Type).Str("ip", s.remoteIP).Msg("Unknown message type")
		}
	}
}

func (s *Session) handleAuth(clientID, userAgent string) {
	if clientID == "" {
		s.deny("accessDenied", "auth requires a clientId")
		return
	}

	record, err := s.hub.registry.GetOrCreate(clientID, s.remoteIP, userAgent, s.isLoopback)
	if err != nil {
		log.Error().Err(err).Msg("Client registration failed")
		s.deny("accessDenied", "registration failed, try again")
		return
	}

	role := ParseRole(record.Role)
	if s.isLoopback {
		role = RoleEditor
		log.Info().Str("client", ShortID(clientID)).Msg("Loopback connection granted editor")
	}

	s.mu.Lock()
	s.clientID = clientID
	s.role = role
	s.mu.Unlock()

	s.enqueue(authResultMessage{
		Type:     "authResult",
		Role:     role,
		ClientID: clientID,
		ShortID:  ShortID(clientID),
	})
	s.hub.BroadcastRoster()
}

func (s *Session) handleUpdate(data json.RawMessage) {
	id, role := s.identity()
	if id == "" {
		s.deny("accessDenied", "authenticate before sending updates")
		return
	}

	// Re-resolve on every mutation: a record deleted or demoted mid-session
	// must fail closed immediately.
	if !s.isLoopback {
		if !s.hub.registry.Exists(id) {
			s.deny("accessDenied", "client registration was removed")
			return
		}
		role = s.hub.registry.ResolveRole(id, false)
		s.setRole(role)
	}

	if !role.CanEdit() {
		s.deny("permissionDenied", "controller access required to change levels")
		return
	}

	var update live.Update
	if err := json.Unmarshal(data, &update); err != nil {
		log.Warn().Err(err).Str("client", ShortID(id)).Msg("Malformed update payload")
		return
	}

	s.hub.ApplyUpdate(update)
}

func (s *Session) handleRequestAccess() {
	id, role := s.identity()
	if id == "" {
		s.deny("accessDenied", "authenticate before requesting access")
		return
	}
	if role != RoleViewer {
		return
	}
	if err := s.hub.registry.RequestAccess(id); err != nil {
		log.Warn().Err(err).Msg("Access request failed")
		return
	}
	s.hub.BroadcastRoster()
}

func (s *Session) deny(kind, message string) {
	s.enqueue(denialMessage{Type: kind, Message: message})
}

func (s *Session) enqueue(msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.trySend(payload)
}

// trySend enqueues without blocking. Returns false if the buffer is full.
func (s *Session) trySend(payload []byte) bool {
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// writePump serializes all writes to the connection.
func (s *Session) writePump() {
	for payload := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.close()
			return
		}
	}
}

func (s *Session) identity() (string, Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID, s.role
}

func (s *Session) setRole(role Role) {
	s.mu.Lock()
	s.role = role
	s.mu.Unlock()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}

// remoteIP strips the port from the request's transport-level origin.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isLoopbackIP reports whether the transport origin is the local machine.
// Loopback connections get the operator-convenience editor override.
func isLoopbackIP(ip string) bool {
	if ip == "127.0.0.1" || ip == "::1" || ip == "::ffff:127.0.0.1" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
