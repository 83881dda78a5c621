// internal/websocket/hub.go
package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"

	wstypes "objettrouve-service/internal/domain/websocket"
	"objettrouve-service/internal/pkg/session"

	"go.uber.org/zap"
)

// Hub pushes session events to every open connection of a subject.
type Hub struct {
	// Registered clients by subject
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	// closed when Run returns
	done     chan struct{}
	doneOnce sync.Once

	sessionManager *session.Manager
	logger         *zap.Logger
}

type BroadcastMessage struct {
	Subjects  []string
	SessionID string // when set, only connections of this session receive the message
	Message   *wstypes.WSMessage
}

func NewHub(sessionManager *session.Manager, logger *zap.Logger) *Hub {
	return &Hub{
		clients:        make(map[string]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		done:           make(chan struct{}),
		sessionManager: sessionManager,
		logger:         logger,
	}
}

// Connections are opened with the session cookie; these reject the upgrade.
var (
	ErrNoSession   = errors.New("websocket: no session cookie")
	ErrSessionGone = errors.New("websocket: session expired or revoked")
)

// AuthenticateClient resolves a session cookie value into client credentials
func (h *Hub) AuthenticateClient(ctx context.Context, sessionID string) (*ClientAuth, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	data, err := h.sessionManager.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionGone, err)
	}

	return &ClientAuth{
		Subject:   data.Subject,
		SessionID: data.ID,
		Email:     data.Email,
	}, nil
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			h.doneOnce.Do(func() { close(h.done) })
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

// Register hands client to the running hub. It reports false once the hub
// has stopped; the caller then owns closing the connection.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterAsync(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.subject] == nil {
		h.clients[client.subject] = make(map[*Client]bool)
	}
	h.clients[client.subject][client] = true

	h.logger.Info("websocket client connected",
		zap.String("sub", client.subject),
		zap.Int("total", h.totalClients()),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"sub":   client.subject,
		"email": client.email,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.subject]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.subject)
			}

			h.logger.Info("websocket client disconnected",
				zap.String("sub", client.subject),
				zap.Int("total", h.totalClients()),
			)
		}
	}
}

func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, subject := range msg.Subjects {
		for client := range h.clients[subject] {
			if msg.SessionID != "" && client.sessionID != msg.SessionID {
				continue
			}
			client.SendMessage(msg.Message)
		}
	}
}

// ForceLogout tells open connections to drop their cached identity.
// An empty sessionID targets every session of the subject.
func (h *Hub) ForceLogout(subject, sessionID, reason string) {
	msg := wstypes.NewMessage(wstypes.EventTypeForceLogout, wstypes.SessionEventData{
		SessionID: sessionID,
		Reason:    reason,
		Message:   "You have been signed out",
	})
	h.enqueue(&BroadcastMessage{Subjects: []string{subject}, SessionID: sessionID, Message: msg})
}

// SessionChanged tells open connections that the identity behind them changed
func (h *Hub) SessionChanged(subject, reason string) {
	msg := wstypes.NewMessage(wstypes.EventTypeSessionRefresh, wstypes.SessionEventData{
		Reason:  reason,
		Message: "Your session was updated",
	})
	h.enqueue(&BroadcastMessage{Subjects: []string{subject}, Message: msg})
}

func (h *Hub) enqueue(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message",
			zap.String("type", string(msg.Message.Type)),
		)
	}
}

// GetConnectedClients returns the number of open connections of subject
func (h *Hub) GetConnectedClients(subject string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[subject])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

// ConnectedSubjects returns how many distinct subjects hold a connection
func (h *Hub) ConnectedSubjects() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
}
