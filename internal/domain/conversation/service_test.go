package conversation_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/inbox"
	"jan-server/services/chat-api/internal/domain/user"
	"jan-server/services/chat-api/internal/infrastructure/database/repository/memoryrepo"
	"jan-server/services/chat-api/internal/infrastructure/lock"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

type published struct {
	conversationID string
	userID         string
	event          conversation.Event
	exclude        conversation.Exclusion
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) PublishToConversation(conversationID string, event conversation.Event, exclude conversation.Exclusion) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{conversationID: conversationID, event: event, exclude: exclude})
	return 1
}

func (p *recordingPublisher) PublishToUser(userID string, event conversation.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{userID: userID, event: event})
	return 1
}

func (p *recordingPublisher) ofType(eventType conversation.EventType) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []inbox.Notification
	err   error
}

func (n *recordingNotifier) Enqueue(_ context.Context, item inbox.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.items = append(n.items, item)
	return nil
}

// failingConversations fails IncrementUnread after the message insert succeeded.
// With stall set, row locking waits until the caller gives up, like a row held
// by another writer.
type failingConversations struct {
	conversation.ConversationRepository
	fail  bool
	stall bool
}

func (f *failingConversations) FindByIDForUpdate(ctx context.Context, id string) (*conversation.Conversation, error) {
	if f.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.ConversationRepository.FindByIDForUpdate(ctx, id)
}

func (f *failingConversations) IncrementUnread(ctx context.Context, conversationID, senderID string) error {
	if f.fail {
		return errors.New("connection reset by peer")
	}
	return f.ConversationRepository.IncrementUnread(ctx, conversationID, senderID)
}

type fixture struct {
	service       conversation.Service
	store         *memoryrepo.Store
	conversations *failingConversations
	messages      *memoryrepo.MessageRepository
	publisher     *recordingPublisher
	notifier      *recordingNotifier
	locker        *lock.KeyedMutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, conversation.Options{OperationTimeout: 2 * time.Second})
}

func newFixtureWith(t *testing.T, opts conversation.Options) *fixture {
	t.Helper()
	log := zerolog.Nop()
	store := memoryrepo.NewStore()
	users := memoryrepo.NewUserRepository(store)
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		users.Upsert(&user.User{ID: id, DisplayName: strings.ToUpper(id[:1]) + id[1:]})
	}
	directory, err := user.NewDirectory(users, 16, log)
	require.NoError(t, err)

	f := &fixture{
		store:         store,
		conversations: &failingConversations{ConversationRepository: memoryrepo.NewConversationRepository(store)},
		messages:      memoryrepo.NewMessageRepository(store),
		publisher:     &recordingPublisher{},
		notifier:      &recordingNotifier{},
		locker:        lock.NewKeyedMutex(),
	}
	opts.Validation = conversation.ValidationRules{MaxBodyLength: 100, MaxAttachments: 2, AllowedMediaTypes: []string{"image/jpeg", "image/png"}}
	f.service = conversation.NewService(conversation.Dependencies{
		Conversations: f.conversations,
		Messages:      f.messages,
		Transactor:    store,
		Locker:        f.locker,
		Publisher:     f.publisher,
		Notifier:      f.notifier,
		Directory:     directory,
	}, opts, log)
	return f
}

func (f *fixture) open(t *testing.T, creator string, others ...string) string {
	t.Helper()
	view, _, err := f.service.CreateConversation(context.Background(), conversation.CreateConversationInput{
		CreatorID:      creator,
		ParticipantIDs: others,
	})
	require.NoError(t, err)
	return view.ID
}

func (f *fixture) send(t *testing.T, convID, sender, body string) *conversation.MessageView {
	t.Helper()
	view, err := f.service.SendMessage(context.Background(), conversation.SendMessageInput{
		ConversationID: convID,
		SenderID:       sender,
		Body:           body,
		Origin:         conversation.OriginREST,
	})
	require.NoError(t, err)
	return view
}

func (f *fixture) unread(t *testing.T, convID, userID string) int {
	t.Helper()
	conv, err := f.conversations.FindByID(context.Background(), convID)
	require.NoError(t, err)
	return conv.UnreadFor(userID)
}

func TestSendThenMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.open(t, "alice", "bob")

	msg := f.send(t, convID, "alice", "hello")
	assert.Equal(t, "Alice", msg.Sender.DisplayName)
	assert.Equal(t, 1, f.unread(t, convID, "bob"))
	assert.Equal(t, 0, f.unread(t, convID, "alice"))

	newMessages := f.publisher.ofType(conversation.EventNewMessage)
	require.Len(t, newMessages, 1)
	assert.Equal(t, convID, newMessages[0].conversationID)

	notifications := f.publisher.ofType(conversation.EventMessageNotification)
	require.Len(t, notifications, 1)
	assert.Equal(t, "bob", notifications[0].userID)
	assert.Equal(t, 1, notifications[0].event.Data.(*conversation.MessageNotification).UnreadCount)

	require.Len(t, f.notifier.items, 1)
	assert.Equal(t, "bob", f.notifier.items[0].UserID)
	assert.Equal(t, msg.ID, f.notifier.items[0].MessageID)

	receipt, err := f.service.MarkRead(ctx, conversation.MarkReadInput{ConversationID: convID, UserID: "bob", ConnectionID: "conn-b"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), receipt.Count)
	assert.Equal(t, 0, f.unread(t, convID, "bob"))

	reads := f.publisher.ofType(conversation.EventMessagesRead)
	require.Len(t, reads, 1)
	assert.Equal(t, "conn-b", reads[0].exclude.ConnectionID)
	assert.Empty(t, reads[0].exclude.UserID)

	stored, err := f.messages.FindByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read)
	require.NotNil(t, stored.ReadAt)

	total, err := f.service.TotalUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.open(t, "alice", "bob")
	f.send(t, convID, "alice", "hello")

	_, err := f.service.MarkRead(ctx, conversation.MarkReadInput{ConversationID: convID, UserID: "bob"})
	require.NoError(t, err)

	receipt, err := f.service.MarkRead(ctx, conversation.MarkReadInput{ConversationID: convID, UserID: "bob"})
	require.NoError(t, err)
	assert.Zero(t, receipt.Count)
	assert.Len(t, f.publisher.ofType(conversation.EventMessagesRead), 1)

	// the sender acknowledging its own message changes nothing
	receipt, err = f.service.MarkRead(ctx, conversation.MarkReadInput{ConversationID: convID, UserID: "alice"})
	require.NoError(t, err)
	assert.Zero(t, receipt.Count)
}

func TestConcurrentSendsKeepCountersExact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.open(t, "alice", "bob", "carol")

	const perSender = 20
	var wg sync.WaitGroup
	for _, sender := range []string{"alice", "bob"} {
		for i := 0; i < perSender; i++ {
			wg.Add(1)
			go func(sender string) {
				defer wg.Done()
				_, err := f.service.SendMessage(ctx, conversation.SendMessageInput{
					ConversationID: convID,
					SenderID:       sender,
					Body:           "offer from " + sender,
					Origin:         conversation.OriginSocket,
				})
				assert.NoError(t, err)
			}(sender)
		}
	}
	wg.Wait()

	assert.Equal(t, perSender, f.unread(t, convID, "alice"))
	assert.Equal(t, perSender, f.unread(t, convID, "bob"))
	assert.Equal(t, 2*perSender, f.unread(t, convID, "carol"))

	for _, participant := range []string{"alice", "bob", "carol"} {
		count, err := f.messages.CountFromOthersAfter(ctx, convID, participant, "")
		require.NoError(t, err)
		assert.Equal(t, int64(f.unread(t, convID, participant)), count, participant)
	}

	// channel fan-out follows commit order
	events := f.publisher.ofType(conversation.EventNewMessage)
	require.Len(t, events, 2*perSender)
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.event.Data.(*conversation.MessageView).ID)
	}
	assert.True(t, sort.StringsAreSorted(ids))

	conv, err := f.conversations.FindByID(ctx, convID)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessageID)
	assert.Equal(t, ids[len(ids)-1], *conv.LastMessageID)
}

func TestNonParticipantHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.open(t, "alice", "bob")

	_, err := f.service.SendMessage(ctx, conversation.SendMessageInput{ConversationID: convID, SenderID: "carol", Body: "hi"})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))

	_, err = f.service.MarkRead(ctx, conversation.MarkReadInput{ConversationID: convID, UserID: "carol"})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))

	err = f.service.Typing(ctx, conversation.TypingInput{ConversationID: convID, UserID: "carol", Typing: true})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))

	msgs, err := f.messages.ListByConversation(ctx, convID, conversation.MessageFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Zero(t, f.unread(t, convID, "alice"))
	assert.Zero(t, f.unread(t, convID, "bob"))
	assert.Empty(t, f.publisher.events)
	assert.Empty(t, f.notifier.items)

	_, err = f.service.SendMessage(ctx, conversation.SendMessageInput{ConversationID: "missing", SenderID: "alice", Body: "hi"})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.open(t, "alice", "bob")

	tests := []struct {
		name        string
		body        string
		attachments []conversation.Attachment
	}{
		{name: "empty", body: "  "},
		{name: "too long", body: strings.Repeat("a", 101)},
		{name: "too many attachments", body: "pics", attachments: []conversation.Attachment{
			{Kind: conversation.AttachmentKindImage, URL: "https://cdn.example.com/1.jpg", MediaType: "image/jpeg"},
			{Kind: conversation.AttachmentKindImage, URL: "https://cdn.example.com/2.jpg", MediaType: "image/jpeg"},
			{Kind: conversation.AttachmentKindImage, URL: "https://cdn.example.com/3.jpg", MediaType: "image/jpeg"},
		}},
		{name: "bad url", attachments: []conversation.Attachment{
			{Kind: conversation.AttachmentKindImage, URL: "not a url", MediaType: "image/jpeg"},
		}},
		{name: "disallowed media type", attachments: []conversation.Attachment{
			{Kind: conversation.AttachmentKindDocument, URL: "https://cdn.example.com/a.exe", MediaType: "application/x-msdownload"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.SendMessage(ctx, conversation.SendMessageInput{
				ConversationID: convID,
				SenderID:       "alice",
				Body:           tt.body,
				Attachments:    tt.attachments,
			})
			require.Error(t, err)
			assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
		})
	}
	assert.Zero(t, f.unread(t, convID, "bob"))

	view, err := f.service.SendMessage(ctx, conversation.SendMessageInput{
		ConversationID: convID,
		SenderID:       "alice",
		Attachments: []conversation.Attachment{
			{Kind: conversation.AttachmentKindImage, URL: "https://cdn.example.com/1.png", MediaType: "image/png"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, view.Attachments, 1)
}

func TestFailedCounterUpdateRollsBackMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.open(t, "alice", "bob")

	f.conversations.fail = true
	_, err := f.service.SendMessage(ctx, conversation.SendMessageInput{ConversationID: convID, SenderID: "alice", Body: "lost"})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeTransient))

	msgs, err := f.messages.ListByConversation(ctx, convID, conversation.MessageFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, msgs)
	conv, err := f.conversations.FindByID(ctx, convID)
	require.NoError(t, err)
	assert.Nil(t, conv.LastMessageID)
	assert.Empty(t, f.publisher.events)
	assert.Empty(t, f.notifier.items)

	f.conversations.fail = false
	f.send(t, convID, "alice", "retry")
	assert.Equal(t, 1, f.unread(t, convID, "bob"))
}

func TestNotificationFailureDoesNotFailSend(t *testing.T) {
	f := newFixture(t)
	convID := f.open(t, "alice", "bob")
	f.notifier.err = errors.New("queue full")

	f.send(t, convID, "alice", "hello")
	assert.Equal(t, 1, f.unread(t, convID, "bob"))
}

func TestTypingExcludesTypist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.open(t, "alice", "bob")

	require.NoError(t, f.service.Typing(ctx, conversation.TypingInput{ConversationID: convID, UserID: "alice", ConnectionID: "conn-a", Typing: true}))
	require.NoError(t, f.service.Typing(ctx, conversation.TypingInput{ConversationID: convID, UserID: "alice", ConnectionID: "conn-a"}))

	typing := f.publisher.ofType(conversation.EventUserTyping)
	require.Len(t, typing, 1)
	assert.Equal(t, "alice", typing[0].exclude.UserID)
	assert.Len(t, f.publisher.ofType(conversation.EventUserStopTyping), 1)
}

func TestCreateConversationIsIdempotentUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]struct{}{}
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			creator, other := "alice", "bob"
			if i%2 == 1 {
				creator, other = other, creator
			}
			view, isNew, err := f.service.CreateConversation(ctx, conversation.CreateConversationInput{CreatorID: creator, ParticipantIDs: []string{other}})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[view.ID] = struct{}{}
			if isNew {
				created++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)
}

func TestArchiveAndReactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.open(t, "alice", "bob")
	f.send(t, convID, "alice", "hello")

	require.NoError(t, f.service.Archive(ctx, convID, "bob"))
	require.NoError(t, f.service.Archive(ctx, convID, "bob"))

	list, err := f.service.ListConversations(ctx, conversation.ListConversationsInput{UserID: "bob"})
	require.NoError(t, err)
	assert.Empty(t, list)
	total, err := f.service.TotalUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, total, "archived conversations do not count toward the badge")

	f.send(t, convID, "alice", "are you there?")
	list, err = f.service.ListConversations(ctx, conversation.ListConversationsInput{UserID: "bob"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].UnreadCount)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "are you there?", list[0].LastMessage.Body)
}

func TestListMessagesAcknowledgesUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.open(t, "alice", "bob")
	first := f.send(t, convID, "alice", "one")
	f.send(t, convID, "alice", "two")

	msgs, err := f.service.ListMessages(ctx, conversation.ListMessagesInput{ConversationID: convID, UserID: "bob", Limit: 1})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "two", msgs[0].Body)
	assert.True(t, msgs[0].Read)
	assert.Zero(t, f.unread(t, convID, "bob"))

	older, err := f.service.ListMessages(ctx, conversation.ListMessagesInput{ConversationID: convID, UserID: "bob", Before: msgs[0].ID})
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, first.ID, older[0].ID)

	_, err = f.service.ListMessages(ctx, conversation.ListMessagesInput{ConversationID: convID, UserID: "carol"})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))
}

func TestReconcileRepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.open(t, "alice", "bob")
	f.send(t, convID, "alice", "one")
	f.send(t, convID, "alice", "two")

	require.NoError(t, f.conversations.SetUnread(ctx, convID, "bob", 7))
	require.NoError(t, f.conversations.SetUnread(ctx, convID, "alice", 3))

	corrected, err := f.service.ReconcileUnread(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, corrected)
	assert.Equal(t, 2, f.unread(t, convID, "bob"))
	assert.Zero(t, f.unread(t, convID, "alice"))

	corrected, err = f.service.ReconcileUnread(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, corrected)
}

func TestReconcileSurvivesClockStepBack(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixtureWith(t, conversation.Options{
		OperationTimeout: 2 * time.Second,
		Now:              func() time.Time { return clock },
	})
	ctx := context.Background()
	convID := f.open(t, "alice", "bob")

	f.send(t, convID, "alice", "m1")
	_, err := f.service.MarkRead(ctx, conversation.MarkReadInput{ConversationID: convID, UserID: "bob"})
	require.NoError(t, err)

	clock = clock.Add(-2 * time.Second)
	f.send(t, convID, "alice", "m2")
	require.Equal(t, 1, f.unread(t, convID, "bob"))

	msgs, err := f.messages.ListByConversation(ctx, convID, conversation.MessageFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].Body)
	assert.Equal(t, "m1", msgs[1].Body)
	assert.Greater(t, msgs[0].Seq, msgs[1].Seq)

	older, err := f.messages.ListByConversation(ctx, convID, conversation.MessageFilter{Before: msgs[0].ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "m1", older[0].Body)

	corrected, err := f.service.ReconcileUnread(ctx, clock.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, corrected)
	assert.Equal(t, 1, f.unread(t, convID, "bob"))
}

func TestOperationsTimeOutAsTransient(t *testing.T) {
	f := newFixtureWith(t, conversation.Options{OperationTimeout: 100 * time.Millisecond})
	ctx := context.Background()
	convID := f.open(t, "alice", "bob")

	t.Run("conversation lock held", func(t *testing.T) {
		unlock, err := f.locker.Lock(ctx, "conversation:"+convID)
		require.NoError(t, err)
		defer unlock()

		start := time.Now()
		_, err = f.service.SendMessage(ctx, conversation.SendMessageInput{ConversationID: convID, SenderID: "alice", Body: "hi"})
		require.Error(t, err)
		assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeTransient), err.Error())
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("row lock never granted", func(t *testing.T) {
		f.conversations.stall = true
		defer func() { f.conversations.stall = false }()

		start := time.Now()
		_, err := f.service.SendMessage(ctx, conversation.SendMessageInput{ConversationID: convID, SenderID: "alice", Body: "hi"})
		require.Error(t, err)
		assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeTransient), err.Error())

		_, err = f.service.MarkRead(ctx, conversation.MarkReadInput{ConversationID: convID, UserID: "bob"})
		require.Error(t, err)
		assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeTransient), err.Error())
		assert.Less(t, time.Since(start), time.Second)
	})

	msgs, err := f.messages.ListByConversation(ctx, convID, conversation.MessageFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Zero(t, f.unread(t, convID, "bob"))
	assert.Empty(t, f.publisher.ofType(conversation.EventNewMessage))
	assert.Empty(t, f.notifier.items)
}

func TestPageSizes(t *testing.T) {
	assert.Equal(t, 50, conversation.ConversationPageSize(0))
	assert.Equal(t, 200, conversation.ConversationPageSize(1000))
	assert.Equal(t, 20, conversation.ConversationPageSize(20))
	assert.Equal(t, 50, conversation.MessagePageSize(-3))
	assert.Equal(t, 200, conversation.MessagePageSize(500))
}
