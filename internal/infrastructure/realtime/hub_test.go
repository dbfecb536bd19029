package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

type fakeMembers struct {
	participants map[string][]string
}

func (f *fakeMembers) AuthorizeParticipant(ctx context.Context, conversationID, userID string) (*conversation.Conversation, error) {
	members, ok := f.participants[conversationID]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "conversation not found", nil, "test")
	}
	for _, m := range members {
		if m == userID {
			return &conversation.Conversation{ID: conversationID, Participants: members}, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "not a participant", nil, "test")
}

func newTestHub() *Hub {
	return NewHub(&fakeMembers{participants: map[string][]string{
		"conv_ab": {"alice", "bob"},
	}}, zerolog.Nop())
}

func drain(conn *Connection) []conversation.Event {
	var events []conversation.Event
	for {
		select {
		case payload := <-conn.send:
			var e conversation.Event
			if err := json.Unmarshal(payload, &e); err == nil {
				events = append(events, e)
			}
		default:
			return events
		}
	}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := newTestHub()
	a1 := NewConnection("conn_a1", "alice", nil, ConnectionOptions{})
	a2 := NewConnection("conn_a2", "alice", nil, ConnectionOptions{})

	assert.True(t, hub.Register(a1))
	assert.False(t, hub.Register(a1), "second register is a no-op")
	assert.True(t, hub.Register(a2))
	assert.Len(t, hub.ConnectionsFor("alice"), 2)

	require.NoError(t, hub.Join(context.Background(), a1, "conv_ab"))
	hub.Unregister(a1)
	hub.Unregister(a1)

	assert.Len(t, hub.ConnectionsFor("alice"), 1)
	assert.Empty(t, hub.Subscribers("conv_ab"))
}

func TestHub_JoinChecksMembership(t *testing.T) {
	hub := newTestHub()
	bob := NewConnection("conn_b", "bob", nil, ConnectionOptions{})
	carol := NewConnection("conn_c", "carol", nil, ConnectionOptions{})
	hub.Register(bob)
	hub.Register(carol)

	err := hub.Join(context.Background(), carol, "conv_ab")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))
	assert.Empty(t, hub.Subscribers("conv_ab"))

	err = hub.Join(context.Background(), bob, "conv_missing")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	require.NoError(t, hub.Join(context.Background(), bob, "conv_ab"))
	require.NoError(t, hub.Join(context.Background(), bob, "conv_ab"))
	assert.Len(t, hub.Subscribers("conv_ab"), 1)

	hub.Leave(bob, "conv_ab")
	hub.Leave(bob, "conv_ab")
	assert.Empty(t, hub.Subscribers("conv_ab"))
}

func TestHub_JoinRequiresRegisteredConnection(t *testing.T) {
	hub := newTestHub()
	bob := NewConnection("conn_b", "bob", nil, ConnectionOptions{})

	err := hub.Join(context.Background(), bob, "conv_ab")
	require.Error(t, err)
	assert.Empty(t, hub.Subscribers("conv_ab"))
}

func TestHub_PublishToConversationHonorsExclusion(t *testing.T) {
	hub := newTestHub()
	a1 := NewConnection("conn_a1", "alice", nil, ConnectionOptions{})
	a2 := NewConnection("conn_a2", "alice", nil, ConnectionOptions{})
	b1 := NewConnection("conn_b1", "bob", nil, ConnectionOptions{})
	for _, c := range []*Connection{a1, a2, b1} {
		require.True(t, hub.Register(c))
		require.NoError(t, hub.Join(context.Background(), c, "conv_ab"))
	}

	event := conversation.Event{Type: conversation.EventMessagesRead, ConversationID: "conv_ab"}

	n := hub.PublishToConversation("conv_ab", event, conversation.Exclusion{ConnectionID: "conn_a1"})
	assert.Equal(t, 2, n)
	assert.Empty(t, drain(a1))
	assert.Len(t, drain(a2), 1)
	assert.Len(t, drain(b1), 1)

	n = hub.PublishToConversation("conv_ab", event, conversation.Exclusion{ConnectionID: "conn_a1", UserID: "alice"})
	assert.Equal(t, 1, n)
	assert.Empty(t, drain(a2))
	events := drain(b1)
	require.Len(t, events, 1)
	assert.Equal(t, conversation.EventMessagesRead, events[0].Type)
}

func TestHub_PublishToUserReachesEveryConnection(t *testing.T) {
	hub := newTestHub()
	b1 := NewConnection("conn_b1", "bob", nil, ConnectionOptions{})
	b2 := NewConnection("conn_b2", "bob", nil, ConnectionOptions{})
	hub.Register(b1)
	hub.Register(b2)

	n := hub.PublishToUser("bob", conversation.Event{Type: conversation.EventMessageNotification})
	assert.Equal(t, 2, n)
	assert.Len(t, drain(b1), 1)
	assert.Len(t, drain(b2), 1)
	assert.Zero(t, hub.PublishToUser("nobody", conversation.Event{Type: conversation.EventMessageNotification}))
}

func TestHub_SlowConsumerIsClosed(t *testing.T) {
	hub := newTestHub()
	slow := NewConnection("conn_slow", "bob", nil, ConnectionOptions{SendBuffer: 1})
	hub.Register(slow)

	event := conversation.Event{Type: conversation.EventMessageNotification}
	assert.Equal(t, 1, hub.PublishToUser("bob", event))
	assert.Zero(t, hub.PublishToUser("bob", event))

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow connection should be closed")
	}
	assert.Equal(t, ClosePolicyViolation, slow.closeCode)
	assert.ErrorIs(t, slow.Send([]byte("{}")), ErrConnectionClosed)
}

func TestHub_CloseRefusesNewConnections(t *testing.T) {
	hub := newTestHub()
	a := NewConnection("conn_a", "alice", nil, ConnectionOptions{})
	hub.Register(a)

	hub.Close()

	<-a.Done()
	assert.Equal(t, CloseGoingAway, a.closeCode)
	assert.Empty(t, hub.ConnectionsFor("alice"))
	assert.False(t, hub.Register(NewConnection("conn_late", "alice", nil, ConnectionOptions{})))
}
