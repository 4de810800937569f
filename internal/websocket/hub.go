package websocket

import (
	"time"

	apierrors "codeberg.org/pairview/server/internal/errors"
	"codeberg.org/pairview/server/internal/logger"
	"codeberg.org/pairview/server/internal/registry"
)

func NewHub(reg *registry.Registry) *Hub {
	return &Hub{
		sessions:         make(map[string]map[string]*Client),
		Register:         make(chan *Client),
		Unregister:       make(chan *Client),
		Broadcast:        make(chan *Message, 256),
		registry:         reg,
		handlers:         make(map[string]MessageHandler),
		shutdown:         make(chan struct{}),
		sessionSequences: make(map[string]uint64),
	}
}

// registers a handler for a specific message type
func (h *Hub) RegisterHandler(messageType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[messageType] = handler
}

// sets callback to be called when a client disconnects
func (h *Hub) OnClientDisconnect(callback func(client *Client, wasLast bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClientDisconnect = callback
}

// starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.Broadcast:
			h.handleMessage(message)

		case <-h.shutdown:
			h.closeAllConnections()
			return
		}
	}
}

// registerClient adds a client to the hub and completes its handshake
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()

	if h.sessions[client.SessionID] == nil {
		h.sessions[client.SessionID] = make(map[string]*Client)
	}

	h.sessions[client.SessionID][client.ID] = client
	client.SetState(StateActive)

	// build participants list from connected clients (including the new client)
	participants := make([]SessionStateParticipant, 0)

	for _, c := range h.sessions[client.SessionID] {
		participants = append(participants, SessionStateParticipant{
			UserID:      c.UserID,
			DisplayName: c.DisplayName,
			Role:        c.Role,
		})
	}

	h.mu.Unlock()

	// the attach-time snapshot can lag edits applied while the client was
	// upgrading; re-read now that the client is in the fan-out map. Edits
	// committed after this read reach it as broadcasts, and any overlap
	// carries a version no greater than the snapshot's.
	snapshot := client.InitialSnapshot
	if h.registry != nil {
		if snap, ok := h.registry.Snapshot(client.SessionID); ok {
			snapshot = snap
		}
	}

	logger.Info("client registered",
		"client_id", client.ID,
		"session_id", client.SessionID,
		"role", client.Role,
		"user_id", client.UserID,
		"version", snapshot.Version,
	)

	// send session_state to connecting client
	sessionStateMsg, err := NewMessage(TypeSessionState, client.SessionID, client.UserID, SessionStatePayload{
		YourRole:     client.Role,
		Version:      snapshot.Version,
		Content:      snapshot.Content,
		Language:     snapshot.Language,
		EditorConfig: snapshot.Config,
		Participants: participants,
	})
	if err == nil {
		if sendErr := client.Send(sessionStateMsg); sendErr != nil {
			logger.ErrorErr(sendErr, "failed to send session state",
				"client_id", client.ID,
				"session_id", client.SessionID,
			)
		}
	}

	// broadcast user_joined to other clients in the session
	userJoinedMsg, err := NewMessage(TypeUserJoined, client.SessionID, client.UserID, UserJoinedPayload{
		UserID:      client.UserID,
		DisplayName: client.DisplayName,
		Role:        client.Role,
	})
	if err == nil {
		h.BroadcastToSession(client.SessionID, userJoinedMsg, client.ID)
	}
}

// removes a client from the hub and detaches it from the registry
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	// capture callback reference under lock
	callback := h.onClientDisconnect

	sessionClients, exists := h.sessions[client.SessionID]
	if !exists {
		h.mu.Unlock()
		return
	}

	if _, exists := sessionClients[client.ID]; !exists {
		h.mu.Unlock()
		return
	}

	delete(sessionClients, client.ID)
	client.Close()

	wasLast := len(sessionClients) == 0

	logger.Info("client unregistered",
		"client_id", client.ID,
		"session_id", client.SessionID,
	)

	if wasLast {
		delete(h.sessions, client.SessionID)
		delete(h.sessionSequences, client.SessionID)
	} else {
		userLeftMsg, err := NewMessage(TypeUserLeft, client.SessionID, client.UserID, UserLeftPayload{
			UserID:      client.UserID,
			DisplayName: client.DisplayName,
		})
		if err == nil {
			h.broadcastToSession(client.SessionID, userLeftMsg, "")
		}
	}

	h.mu.Unlock()

	// the registry keeps the entry through a grace period; a quick
	// reconnect resumes without a cold-start read
	if h.registry != nil {
		h.registry.Detach(client.ID, client.SessionID)
	}

	// call disconnect callback outside lock (may do flush I/O)
	if callback != nil {
		callback(client, wasLast)
	}
}

// processes an incoming message
func (h *Hub) handleMessage(msg *Message) {
	h.mu.RLock()

	sessionClients, exists := h.sessions[msg.SessionID]
	if !exists {
		h.mu.RUnlock()
		logger.Warn("session not found for message",
			"session_id", msg.SessionID,
			"message_type", msg.Type,
		)
		return
	}

	sender, exists := sessionClients[msg.ClientID]
	h.mu.RUnlock()

	if !exists {
		logger.Warn("sender client not found for message",
			"client_id", msg.ClientID,
			"session_id", msg.SessionID,
			"message_type", msg.Type,
		)
		return
	}

	// only Active connections may submit or receive relayed events
	if sender.State() != StateActive {
		sender.SendError(apierrors.CodeBadRequest, "connection is not active", "")
		return
	}

	h.mu.RLock()
	handler, exists := h.handlers[msg.Type]
	h.mu.RUnlock()

	if exists {
		// run handler asynchronously to avoid blocking the hub
		go func() {
			if err := handler(h, sender, msg); err != nil {
				logger.Debug("handler rejected message",
					"message_type", msg.Type,
					"client_id", sender.ID,
					"session_id", msg.SessionID,
					"error", err,
				)
			}
		}()
	} else {
		logger.Warn("unhandled message type received",
			"message_type", msg.Type,
			"client_id", sender.ID,
			"session_id", msg.SessionID,
		)

		sender.SendError(apierrors.CodeBadRequest, "unsupported message type", "message type not recognized")
	}
}

// sends a message to all clients in a session
func (h *Hub) BroadcastToSession(sessionID string, msg *Message, excludeClientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastToSession(sessionID, msg, excludeClientID)
}

// the internal broadcast function (must be called with lock held).
// The registry's connection set decides who receives: a client still in the
// hub map but already detached from the registry is skipped. Without a
// registry the hub falls back to its own map.
func (h *Hub) broadcastToSession(sessionID string, msg *Message, excludeClientID string) {
	sessionClients, exists := h.sessions[sessionID]
	if !exists {
		return
	}

	// assign sequence number to message
	h.sessionSequences[sessionID]++
	msg.Sequence = h.sessionSequences[sessionID]

	var targets []string
	if h.registry != nil {
		targets = h.registry.Targets(sessionID, excludeClientID)
	} else {
		targets = make([]string, 0, len(sessionClients))
		for clientID := range sessionClients {
			if clientID != excludeClientID {
				targets = append(targets, clientID)
			}
		}
	}

	for _, clientID := range targets {
		client, exists := sessionClients[clientID]
		if !exists || client.IsClosed() {
			continue
		}

		if err := client.Send(msg); err != nil {
			logger.ErrorErr(err, "failed to send message to client",
				"client_id", clientID,
				"session_id", sessionID,
			)
		}
	}
}

// returns all clients in a session
func (h *Hub) GetSessionClients(sessionID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessionClients, exists := h.sessions[sessionID]
	if !exists {
		return []*Client{}
	}

	clients := make([]*Client, 0, len(sessionClients))

	for _, client := range sessionClients {
		clients = append(clients, client)
	}

	return clients
}

// returns the number of clients in a session
func (h *Hub) GetClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessionClients, exists := h.sessions[sessionID]
	if !exists {
		return 0
	}

	return len(sessionClients)
}

func (h *Hub) GetSessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// IsSessionActive checks if a session has any active websocket connections
func (h *Hub) IsSessionActive(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessionClients, exists := h.sessions[sessionID]
	return exists && len(sessionClients) > 0
}

// Shutdown stops the hub loop; safe to call more than once
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		close(h.shutdown)
	})
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()

	logger.Info("notifying clients of server shutdown")

	for sessionID, sessionClients := range h.sessions {
		shutdownMsg, err := NewMessage(TypeServerShutdown, sessionID, "", ServerShutdownPayload{
			Reason: "server is shutting down for maintenance",
		})
		if err != nil {
			logger.ErrorErr(err, "failed to create shutdown message")
			continue
		}

		for _, client := range sessionClients {
			if err := client.Send(shutdownMsg); err != nil {
				logger.ErrorErr(err, "failed to send shutdown notification",
					"client_id", client.ID,
					"session_id", sessionID,
				)
			}
		}
	}

	h.mu.Unlock()

	// give clients time to receive the shutdown message
	time.Sleep(500 * time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()

	logger.Info("closing all websocket connections")

	for sessionID, sessionClients := range h.sessions {
		for clientID, client := range sessionClients {
			client.Close()
			logger.Debug("closed client",
				"client_id", clientID,
				"session_id", sessionID,
			)
		}
	}

	h.sessions = make(map[string]map[string]*Client)
	h.sessionSequences = make(map[string]uint64)
}

// broadcasts session_ended to all clients in a session and closes their
// connections; used for explicit end and inactivity expiry
func (h *Hub) EndSession(sessionID string, reason string) {
	h.mu.Lock()

	sessionClients, exists := h.sessions[sessionID]
	if !exists {
		h.mu.Unlock()

		// no live connections, but the registry may still hold a
		// grace-period entry
		if h.registry != nil {
			h.registry.Evict(sessionID)
		}
		return
	}

	logger.Info("ending session, notifying clients",
		"session_id", sessionID,
		"client_count", len(sessionClients),
	)

	sessionEndedMsg, err := NewMessage(TypeSessionEnded, sessionID, "", SessionEndedPayload{
		Reason: reason,
	})
	if err != nil {
		logger.ErrorErr(err, "failed to create session_ended message",
			"session_id", sessionID,
		)
		h.mu.Unlock()
		return
	}

	for _, client := range sessionClients {
		if err := client.Send(sessionEndedMsg); err != nil {
			logger.ErrorErr(err, "failed to send session_ended notification",
				"client_id", client.ID,
				"session_id", sessionID,
			)
		}
	}

	h.mu.Unlock()

	// give clients time to receive the message
	time.Sleep(100 * time.Millisecond)

	h.mu.Lock()

	sessionClients, exists = h.sessions[sessionID]
	if !exists {
		h.mu.Unlock()
		return
	}

	for clientID, client := range sessionClients {
		client.Close()
		logger.Debug("closed client due to session end",
			"client_id", clientID,
			"session_id", sessionID,
		)
	}

	delete(h.sessions, sessionID)
	delete(h.sessionSequences, sessionID)
	h.mu.Unlock()

	if h.registry != nil {
		h.registry.Evict(sessionID)
	}

	logger.Info("session ended and removed",
		"session_id", sessionID,
	)
}
