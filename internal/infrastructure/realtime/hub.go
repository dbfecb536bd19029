package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/infrastructure/metrics"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

// MembershipChecker resolves a conversation and confirms the user participates in it.
type MembershipChecker interface {
	AuthorizeParticipant(ctx context.Context, conversationID, userID string) (*conversation.Conversation, error)
}

// Hub is the connection registry and channel membership manager. It tracks
// every authenticated connection, the connections of each user and the
// subscribers of each conversation channel.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection            // connectionID -> connection
	users       map[string]map[string]*Connection // userID -> connectionID -> connection
	channels    map[string]map[string]*Connection // conversationID -> connectionID -> connection
	memberships map[string]map[string]struct{}    // connectionID -> conversationIDs
	closed      bool

	members MembershipChecker
	log     zerolog.Logger
}

var _ conversation.Publisher = (*Hub)(nil)

// NewHub constructs an empty Hub.
func NewHub(members MembershipChecker, log zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		users:       make(map[string]map[string]*Connection),
		channels:    make(map[string]map[string]*Connection),
		memberships: make(map[string]map[string]struct{}),
		members:     members,
		log:         log.With().Str("component", "realtime-hub").Logger(),
	}
}

// SetMembershipChecker replaces the checker used by Join. It exists because
// the conversation service publishes through the hub and checks membership for it.
func (h *Hub) SetMembershipChecker(members MembershipChecker) {
	h.mu.Lock()
	h.members = members
	h.mu.Unlock()
}

// Register tracks conn. It returns false when the hub is shut down or the
// connection is already registered.
func (h *Hub) Register(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	if _, ok := h.connections[conn.ID]; ok {
		return false
	}
	h.connections[conn.ID] = conn
	owned := h.users[conn.UserID]
	if owned == nil {
		owned = make(map[string]*Connection)
		h.users[conn.UserID] = owned
	}
	owned[conn.ID] = conn
	metrics.RecordConnectionOpened()
	return true
}

// Unregister forgets conn and drops it from every channel. Repeated calls are no-ops.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if owned := h.users[conn.UserID]; owned != nil {
		delete(owned, conn.ID)
		if len(owned) == 0 {
			delete(h.users, conn.UserID)
		}
	}

	subscriptions := len(h.memberships[conn.ID])
	for conversationID := range h.memberships[conn.ID] {
		h.leaveLocked(conversationID, conn.ID)
	}
	delete(h.memberships, conn.ID)
	metrics.RecordConnectionClosed(subscriptions)
}

// ConnectionsFor returns a snapshot of the user's live connections.
func (h *Hub) ConnectionsFor(userID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	owned := h.users[userID]
	result := make([]*Connection, 0, len(owned))
	for _, conn := range owned {
		result = append(result, conn)
	}
	return result
}

// Join subscribes conn to the conversation channel after confirming its user
// participates. Joining twice is a no-op.
func (h *Hub) Join(ctx context.Context, conn *Connection, conversationID string) error {
	h.mu.RLock()
	members := h.members
	h.mu.RUnlock()
	if members == nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRealtime, platformerrors.ErrorTypeInternal,
			"membership checker not configured", nil, "b1c4f0e8-7a92-4d3e-8f61-c5a0d2e9b7f3")
	}
	if _, err := members.AuthorizeParticipant(ctx, conversationID, conn.UserID); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// the connection may have gone away while membership was checked
	if _, ok := h.connections[conn.ID]; !ok {
		return platformerrors.NewError(ctx, platformerrors.LayerRealtime, platformerrors.ErrorTypeUnauthorized,
			"connection is not registered", nil, "2e7d9a41-c6b3-4f58-a0e2-9d1f7c3b5a86")
	}
	channel := h.channels[conversationID]
	if channel == nil {
		channel = make(map[string]*Connection)
		h.channels[conversationID] = channel
	}
	if _, ok := channel[conn.ID]; ok {
		return nil
	}
	channel[conn.ID] = conn

	joined := h.memberships[conn.ID]
	if joined == nil {
		joined = make(map[string]struct{})
		h.memberships[conn.ID] = joined
	}
	joined[conversationID] = struct{}{}
	metrics.ChannelSubscriptions.Inc()
	return nil
}

// Leave unsubscribes conn from the conversation channel.
func (h *Hub) Leave(conn *Connection, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.leaveLocked(conversationID, conn.ID) {
		metrics.ChannelSubscriptions.Dec()
	}
}

// Subscribers returns a snapshot of the channel's connections.
func (h *Hub) Subscribers(conversationID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	channel := h.channels[conversationID]
	result := make([]*Connection, 0, len(channel))
	for _, conn := range channel {
		result = append(result, conn)
	}
	return result
}

// PublishToConversation implements conversation.Publisher.
func (h *Hub) PublishToConversation(conversationID string, event conversation.Event, exclude conversation.Exclusion) int {
	payload, ok := h.encode(event)
	if !ok {
		return 0
	}

	delivered := 0
	for _, conn := range h.Subscribers(conversationID) {
		if exclude.ConnectionID != "" && conn.ID == exclude.ConnectionID {
			continue
		}
		if exclude.UserID != "" && conn.UserID == exclude.UserID {
			continue
		}
		if h.deliver(conn, event.Type, payload) {
			delivered++
		}
	}
	return delivered
}

// PublishToUser implements conversation.Publisher.
func (h *Hub) PublishToUser(userID string, event conversation.Event) int {
	payload, ok := h.encode(event)
	if !ok {
		return 0
	}

	delivered := 0
	for _, conn := range h.ConnectionsFor(userID) {
		if h.deliver(conn, event.Type, payload) {
			delivered++
		}
	}
	return delivered
}

// Close shuts every connection with 1001 and clears all state. Later
// registrations are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		conns = append(conns, conn)
	}
	subscriptions := 0
	for _, joined := range h.memberships {
		subscriptions += len(joined)
	}
	h.connections = make(map[string]*Connection)
	h.users = make(map[string]map[string]*Connection)
	h.channels = make(map[string]map[string]*Connection)
	h.memberships = make(map[string]map[string]struct{})
	h.closed = true
	h.mu.Unlock()

	metrics.ActiveConnections.Sub(float64(len(conns)))
	metrics.ChannelSubscriptions.Sub(float64(subscriptions))
	for _, conn := range conns {
		conn.Close(CloseGoingAway, "server shutting down")
	}
	h.log.Info().Int("connections", len(conns)).Msg("realtime hub closed")
}

func (h *Hub) encode(event conversation.Event) ([]byte, bool) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("event", string(event.Type)).Msg("failed to encode event")
		return nil, false
	}
	return payload, true
}

func (h *Hub) deliver(conn *Connection, eventType conversation.EventType, payload []byte) bool {
	err := conn.Send(payload)
	metrics.RecordFanout(string(eventType), err == nil)
	if err != nil {
		h.log.Debug().Err(err).
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Str("event", string(eventType)).
			Msg("event dropped")
		return false
	}
	return true
}

// leaveLocked reports whether a subscription was removed. Callers hold h.mu.
func (h *Hub) leaveLocked(conversationID, connectionID string) bool {
	channel := h.channels[conversationID]
	if channel == nil {
		return false
	}
	if _, ok := channel[connectionID]; !ok {
		return false
	}
	delete(channel, connectionID)
	if len(channel) == 0 {
		delete(h.channels, conversationID)
	}
	if joined, ok := h.memberships[connectionID]; ok {
		delete(joined, conversationID)
	}
	return true
}
