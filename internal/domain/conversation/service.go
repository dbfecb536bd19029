package conversation

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/domain/inbox"
	"jan-server/services/chat-api/internal/domain/user"
	"jan-server/services/chat-api/internal/infrastructure/metrics"
	"jan-server/services/chat-api/internal/infrastructure/observability"
	"jan-server/services/chat-api/internal/utils/idgen"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

const (
	defaultConversationLimit = 50
	maxConversationLimit     = 200
	defaultMessageLimit      = 50
	maxMessageLimit          = 200
)

// Origin names the entry point that invoked the dispatcher.
type Origin string

const (
	OriginREST   Origin = "rest"
	OriginSocket Origin = "socket"
)

// CreateConversationInput opens or reuses a conversation.
type CreateConversationInput struct {
	CreatorID      string
	ParticipantIDs []string
	ListingID      *string
}

// ListConversationsInput pages the caller's conversations.
type ListConversationsInput struct {
	UserID          string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// ListMessagesInput pages a conversation's messages newest first.
type ListMessagesInput struct {
	ConversationID string
	UserID         string
	Before         string
	Limit          int
}

// SendMessageInput is the request handled by the dispatcher.
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Body           string
	Attachments    []Attachment
	Origin         Origin
	ConnectionID   string
}

// MarkReadInput acknowledges everything other participants sent.
type MarkReadInput struct {
	ConversationID string
	UserID         string
	ConnectionID   string
}

// TypingInput relays an ephemeral typing indicator.
type TypingInput struct {
	ConversationID string
	UserID         string
	ConnectionID   string
	Typing         bool
}

// Service is the single implementation of conversation operations shared by
// the REST routes and the websocket handler.
type Service interface {
	CreateConversation(ctx context.Context, input CreateConversationInput) (*ConversationView, bool, error)
	GetConversation(ctx context.Context, conversationID, userID string) (*ConversationView, error)
	ListConversations(ctx context.Context, input ListConversationsInput) ([]*ConversationView, error)
	TotalUnread(ctx context.Context, userID string) (int, error)
	ListMessages(ctx context.Context, input ListMessagesInput) ([]*MessageView, error)
	SendMessage(ctx context.Context, input SendMessageInput) (*MessageView, error)
	MarkRead(ctx context.Context, input MarkReadInput) (*ReadReceipt, error)
	Archive(ctx context.Context, conversationID, userID string) error
	Typing(ctx context.Context, input TypingInput) error
	AuthorizeParticipant(ctx context.Context, conversationID, userID string) (*Conversation, error)
	ReconcileUnread(ctx context.Context, since time.Time) (int, error)
}

// Dependencies are the collaborators of the conversation service.
type Dependencies struct {
	Conversations ConversationRepository
	Messages      MessageRepository
	Transactor    Transactor
	Locker        Locker
	Publisher     Publisher
	Notifier      NotificationEnqueuer
	Directory     *user.Directory
	Sanitizer     TextSanitizer
}

// Options tune the conversation service.
type Options struct {
	OperationTimeout time.Duration
	Validation       ValidationRules
	Now              func() time.Time
}

type service struct {
	conversations ConversationRepository
	messages      MessageRepository
	tx            Transactor
	locker        Locker
	publisher     Publisher
	notifier      NotificationEnqueuer
	directory     *user.Directory
	sanitizer     TextSanitizer
	validator     *MessageValidator
	opTimeout     time.Duration
	now           func() time.Time
	log           zerolog.Logger
}

// NewService creates the conversation service.
func NewService(deps Dependencies, opts Options, log zerolog.Logger) Service {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	timeout := opts.OperationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &service{
		conversations: deps.Conversations,
		messages:      deps.Messages,
		tx:            deps.Transactor,
		locker:        deps.Locker,
		publisher:     deps.Publisher,
		notifier:      deps.Notifier,
		directory:     deps.Directory,
		sanitizer:     deps.Sanitizer,
		validator:     NewMessageValidator(opts.Validation),
		opTimeout:     timeout,
		now:           now,
		log:           log.With().Str("component", "conversation-service").Logger(),
	}
}

func lockKey(conversationID string) string {
	return "conversation:" + conversationID
}

// withLock runs fn while holding the per-conversation lock.
func (s *service) withLock(ctx context.Context, key string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return errTransient(ctx, "failed to acquire conversation lock", err)
	}
	defer unlock()
	return fn()
}

// AuthorizeParticipant resolves the conversation and checks membership.
func (s *service) AuthorizeParticipant(ctx context.Context, conversationID, userID string) (*Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, storeError(ctx, err, "failed to load conversation")
	}
	if !conv.HasParticipant(userID) {
		return nil, errNotParticipant(ctx)
	}
	return conv, nil
}

func (s *service) CreateConversation(ctx context.Context, input CreateConversationInput) (*ConversationView, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	participants := NormalizeParticipants(append([]string{input.CreatorID}, input.ParticipantIDs...))
	if len(participants) < 2 {
		return nil, false, errValidation(ctx, "a conversation needs at least two distinct participants", nil)
	}
	for _, id := range participants {
		if id == input.CreatorID {
			continue
		}
		_, found, err := s.directory.Lookup(ctx, id)
		if err != nil {
			return nil, false, storeError(ctx, err, "failed to resolve participant")
		}
		if !found {
			return nil, false, errValidation(ctx, "unknown participant "+id, nil)
		}
	}

	key := ParticipantKey(participants)
	var (
		conv    *Conversation
		created bool
	)
	err := s.withLock(ctx, "create:"+key+"|"+ListingKey(input.ListingID), func() error {
		existing, err := s.conversations.FindByParticipantKey(ctx, key, input.ListingID)
		switch {
		case err == nil:
			if !existing.Active {
				if err := s.conversations.SetActive(ctx, existing.ID, true); err != nil {
					return storeError(ctx, err, "failed to reactivate conversation")
				}
				existing.Active = true
			}
			conv = existing
			return nil
		case !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound):
			return storeError(ctx, err, "failed to look up conversation")
		}

		id, err := idgen.NewConversationID()
		if err != nil {
			return errTransient(ctx, "failed to generate conversation id", err)
		}
		candidate := NewConversation(id, participants, input.ListingID, s.now())
		if err := s.conversations.Create(ctx, candidate); err != nil {
			if platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict) {
				// created concurrently by another writer
				existing, findErr := s.conversations.FindByParticipantKey(ctx, key, input.ListingID)
				if findErr != nil {
					return storeError(ctx, findErr, "failed to look up conversation")
				}
				conv = existing
				return nil
			}
			return storeError(ctx, err, "failed to create conversation")
		}
		conv, created = candidate, true
		return nil
	})
	if err != nil {
		return nil, false, deadline(ctx, err)
	}

	if created {
		s.log.Info().
			Str("conversation_id", conv.ID).
			Int("participants", len(conv.Participants)).
			Msg("conversation created")
	}
	return s.viewFor(ctx, conv, input.CreatorID), created, nil
}

func (s *service) GetConversation(ctx context.Context, conversationID, userID string) (*ConversationView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	conv, err := s.AuthorizeParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, deadline(ctx, err)
	}
	return s.viewFor(ctx, conv, userID), nil
}

func (s *service) ListConversations(ctx context.Context, input ListConversationsInput) ([]*ConversationView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	limit := ConversationPageSize(input.Limit)
	offset := max(input.Offset, 0)
	convs, err := s.conversations.FindByFilter(ctx, ConversationFilter{
		ParticipantID:   input.UserID,
		IncludeArchived: input.IncludeArchived,
	}, &Pagination{Limit: limit, Offset: offset})
	if err != nil {
		return nil, deadline(ctx, storeError(ctx, err, "failed to list conversations"))
	}

	views := make([]*ConversationView, 0, len(convs))
	for _, conv := range convs {
		views = append(views, s.viewFor(ctx, conv, input.UserID))
	}
	return views, nil
}

func (s *service) TotalUnread(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	total, err := s.conversations.SumUnread(ctx, userID)
	if err != nil {
		return 0, deadline(ctx, storeError(ctx, err, "failed to count unread messages"))
	}
	return total, nil
}

// ListMessages acknowledges the caller's unread messages, then pages the history.
func (s *service) ListMessages(ctx context.Context, input ListMessagesInput) ([]*MessageView, error) {
	if _, err := s.MarkRead(ctx, MarkReadInput{ConversationID: input.ConversationID, UserID: input.UserID}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	msgs, err := s.messages.ListByConversation(ctx, input.ConversationID, MessageFilter{
		Before: input.Before,
		Limit:  MessagePageSize(input.Limit),
	})
	if err != nil {
		return nil, deadline(ctx, storeError(ctx, err, "failed to list messages"))
	}
	return s.messageViews(ctx, msgs), nil
}

// Archive soft-deletes the conversation. Any later message reactivates it.
func (s *service) Archive(ctx context.Context, conversationID, userID string) error {
	ctx, span := observability.StartOperation(ctx, "archive", conversationID)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	start := time.Now()

	err := s.withLock(ctx, lockKey(conversationID), func() error {
		conv, err := s.AuthorizeParticipant(ctx, conversationID, userID)
		if err != nil {
			return err
		}
		if !conv.Active {
			return nil
		}
		if err := s.conversations.SetActive(ctx, conversationID, false); err != nil {
			return storeError(ctx, err, "failed to archive conversation")
		}
		return nil
	})
	err = deadline(ctx, err)
	metrics.RecordDispatch("archive", err, time.Since(start).Seconds())
	if err != nil {
		observability.RecordError(ctx, err)
		return err
	}
	s.log.Info().Str("conversation_id", conversationID).Str("user_id", userID).Msg("conversation archived")
	return nil
}

func (s *service) viewFor(ctx context.Context, conv *Conversation, userID string) *ConversationView {
	view := &ConversationView{
		ID:           conv.ID,
		Participants: s.directory.Profiles(ctx, conv.Participants),
		ListingID:    conv.ListingID,
		UnreadCount:  conv.UnreadFor(userID),
		Active:       conv.Active,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
	if conv.LastMessageID != nil {
		msg, err := s.messages.FindByID(ctx, *conv.LastMessageID)
		if err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to load last message")
		} else {
			view.LastMessage = NewMessageView(msg, s.directory.Profile(ctx, msg.SenderID))
		}
	}
	return view
}

func (s *service) messageViews(ctx context.Context, msgs []*Message) []*MessageView {
	senders := make([]string, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senders = append(senders, m.SenderID)
		}
	}
	profiles := make(map[string]user.Profile, len(senders))
	for _, p := range s.directory.Profiles(ctx, senders) {
		profiles[p.ID] = p
	}

	views := make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, NewMessageView(m, profiles[m.SenderID]))
	}
	return views
}

func (s *service) preview(body string) string {
	if s.sanitizer == nil {
		return ""
	}
	return s.sanitizer.SanitizeText(inbox.Preview(body, 0))
}

// ConversationPageSize is the page size ListConversations serves for a requested limit.
func ConversationPageSize(requested int) int {
	return clamp(requested, defaultConversationLimit, maxConversationLimit)
}

// MessagePageSize is the page size ListMessages serves for a requested limit.
func MessagePageSize(requested int) int {
	return clamp(requested, defaultMessageLimit, maxMessageLimit)
}

func clamp(value, def, max int) int {
	if value <= 0 {
		return def
	}
	if value > max {
		return max
	}
	return value
}
