package memoryrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/inbox"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

func seedConversation(t *testing.T, repo *ConversationRepository, id string, participants ...string) *conversation.Conversation {
	t.Helper()
	conv := conversation.NewConversation(id, participants, nil, time.Now().UTC())
	require.NoError(t, repo.Create(context.Background(), conv))
	return conv
}

func TestConversationRepository_CreateRejectsDuplicateKey(t *testing.T) {
	store := NewStore()
	repo := NewConversationRepository(store)
	seedConversation(t, repo, "conv_1", "alice", "bob")

	dup := conversation.NewConversation("conv_2", []string{"bob", "alice"}, nil, time.Now())
	err := repo.Create(context.Background(), dup)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))

	listing := "listing_9"
	scoped := conversation.NewConversation("conv_3", []string{"alice", "bob"}, &listing, time.Now())
	require.NoError(t, repo.Create(context.Background(), scoped))

	found, err := repo.FindByParticipantKey(context.Background(), "alice,bob", &listing)
	require.NoError(t, err)
	assert.Equal(t, "conv_3", found.ID)
}

func TestConversationRepository_FindByIDMissing(t *testing.T) {
	repo := NewConversationRepository(NewStore())
	_, err := repo.FindByID(context.Background(), "conv_missing")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}

func TestConversationRepository_IncrementUnreadSkipsSender(t *testing.T) {
	store := NewStore()
	repo := NewConversationRepository(store)
	seedConversation(t, repo, "conv_1", "alice", "bob", "carol")

	require.NoError(t, repo.IncrementUnread(context.Background(), "conv_1", "alice"))
	require.NoError(t, repo.IncrementUnread(context.Background(), "conv_1", "bob"))

	conv, err := repo.FindByID(context.Background(), "conv_1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 1, "bob": 1, "carol": 2}, conv.UnreadCounts)

	total, err := repo.SumUnread(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	require.NoError(t, repo.SetActive(context.Background(), "conv_1", false))
	total, err = repo.SumUnread(context.Background(), "carol")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestStore_WithinTransactionRollsBack(t *testing.T) {
	store := NewStore()
	convs := NewConversationRepository(store)
	msgs := NewMessageRepository(store)
	seedConversation(t, convs, "conv_1", "alice", "bob")

	boom := errors.New("boom")
	err := store.WithinTransaction(context.Background(), func(ctx context.Context) error {
		now := time.Now().UTC()
		msg := &conversation.Message{ID: "msg_01", ConversationID: "conv_1", Seq: 1, SenderID: "alice", Body: "hi", CreatedAt: now}
		require.NoError(t, msgs.Create(ctx, msg))
		require.NoError(t, convs.RecordMessage(ctx, msg))
		require.NoError(t, convs.IncrementUnread(ctx, "conv_1", "alice"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	conv, err := convs.FindByID(context.Background(), "conv_1")
	require.NoError(t, err)
	assert.Nil(t, conv.LastMessageID)
	assert.Zero(t, conv.UnreadFor("bob"))

	_, err = msgs.FindByID(context.Background(), "msg_01")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	page, err := msgs.ListByConversation(context.Background(), "conv_1", conversation.MessageFilter{})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMessageRepository_PagingAndReadState(t *testing.T) {
	store := NewStore()
	convs := NewConversationRepository(store)
	msgs := NewMessageRepository(store)
	seedConversation(t, convs, "conv_1", "alice", "bob")

	ctx := context.Background()
	now := time.Now().UTC()
	// Ids deliberately sort against the sequence, as after a clock step back.
	for i, id := range []string{"msg_04", "msg_03", "msg_02", "msg_01"} {
		sender := "alice"
		if i%2 == 1 {
			sender = "bob"
		}
		msg := &conversation.Message{ID: id, ConversationID: "conv_1", Seq: int64(i + 1), SenderID: sender, CreatedAt: now}
		require.NoError(t, msgs.Create(ctx, msg))
	}

	page, err := msgs.ListByConversation(ctx, "conv_1", conversation.MessageFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "msg_01", page[0].ID)
	assert.Equal(t, "msg_02", page[1].ID)

	page, err = msgs.ListByConversation(ctx, "conv_1", conversation.MessageFilter{Before: "msg_02", Limit: 10})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "msg_03", page[0].ID)
	assert.Equal(t, "msg_04", page[1].ID)

	page, err = msgs.ListByConversation(ctx, "conv_1", conversation.MessageFilter{Before: "msg_99"})
	require.NoError(t, err)
	assert.Empty(t, page)

	count, err := msgs.CountFromOthersAfter(ctx, "conv_1", "bob", "msg_04")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	count, err = msgs.CountFromOthersAfter(ctx, "conv_1", "bob", "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	err = msgs.Create(ctx, &conversation.Message{ID: "msg_05", ConversationID: "conv_1", Seq: 4, SenderID: "alice", CreatedAt: now})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))

	changed, err := msgs.MarkReadFromOthers(ctx, "conv_1", "bob", now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, changed)

	changed, err = msgs.MarkReadFromOthers(ctx, "conv_1", "bob", now)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestInboxRepository_IdempotentCreate(t *testing.T) {
	repo := NewInboxRepository(NewStore())
	ctx := context.Background()
	n := &inbox.Notification{ID: "ntf_1", UserID: "bob", MessageID: "msg_01", CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, n))
	again := *n
	again.ID = "ntf_2"
	require.NoError(t, repo.Create(ctx, &again))

	items, err := repo.ListByUser(ctx, "bob", inbox.Filter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ntf_1", items[0].ID)

	err = repo.MarkRead(ctx, "alice", "ntf_1")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
	require.NoError(t, repo.MarkRead(ctx, "bob", "ntf_1"))

	items, err = repo.ListByUser(ctx, "bob", inbox.Filter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, items)
}
