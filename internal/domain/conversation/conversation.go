package conversation

import (
	"sort"
	"strings"
	"time"
)

// Conversation is a durable thread between a fixed set of participants,
// optionally scoped to one listing.
type Conversation struct {
	ID            string
	Participants  []string
	ListingID     *string
	LastMessageID *string
	LastMessageAt *time.Time
	// LastSeq is the Seq of the newest message, zero for an empty thread.
	LastSeq int64
	// UnreadCounts holds one entry per participant and no other keys.
	UnreadCounts map[string]int
	// ReadCursors maps a participant to the last message id they acknowledged.
	ReadCursors map[string]string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewConversation builds an active conversation with zeroed counters.
func NewConversation(id string, participants []string, listingID *string, now time.Time) *Conversation {
	participants = NormalizeParticipants(participants)
	counts := make(map[string]int, len(participants))
	for _, p := range participants {
		counts[p] = 0
	}
	return &Conversation{
		ID:           id,
		Participants: participants,
		ListingID:    normalizeListing(listingID),
		UnreadCounts: counts,
		ReadCursors:  map[string]string{},
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasParticipant reports whether userID belongs to the participant set.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// UnreadFor returns the caller's own unread count. Non-participants get zero.
func (c *Conversation) UnreadFor(userID string) int {
	if c.UnreadCounts == nil {
		return 0
	}
	return c.UnreadCounts[userID]
}

// OtherParticipants returns every participant except userID.
func (c *Conversation) OtherParticipants(userID string) []string {
	others := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			others = append(others, p)
		}
	}
	return others
}

// Key returns the participant key used for uniqueness together with the listing.
func (c *Conversation) Key() string {
	return ParticipantKey(c.Participants)
}

// ApplyMessage mirrors a committed send: it moves the last-message pointer and
// increments every other participant's counter by one.
func (c *Conversation) ApplyMessage(msg *Message) {
	id := msg.ID
	at := msg.CreatedAt
	c.LastMessageID = &id
	c.LastMessageAt = &at
	c.LastSeq = msg.Seq
	c.Active = true
	c.UpdatedAt = at
	if c.UnreadCounts == nil {
		c.UnreadCounts = make(map[string]int, len(c.Participants))
	}
	for _, p := range c.OtherParticipants(msg.SenderID) {
		c.UnreadCounts[p]++
	}
}

// ApplyRead mirrors a committed read acknowledgement by userID.
func (c *Conversation) ApplyRead(userID string, at time.Time) {
	if c.UnreadCounts == nil {
		c.UnreadCounts = make(map[string]int, len(c.Participants))
	}
	c.UnreadCounts[userID] = 0
	if c.ReadCursors == nil {
		c.ReadCursors = map[string]string{}
	}
	if c.LastMessageID != nil {
		c.ReadCursors[userID] = *c.LastMessageID
	}
	c.UpdatedAt = at
}

// NormalizeParticipants trims, deduplicates and sorts participant ids.
func NormalizeParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ParticipantKey is the canonical form of a participant set.
func ParticipantKey(ids []string) string {
	return strings.Join(NormalizeParticipants(ids), ",")
}

// ListingKey is the storage form of an optional listing reference.
func ListingKey(listingID *string) string {
	if l := normalizeListing(listingID); l != nil {
		return *l
	}
	return ""
}

func normalizeListing(listingID *string) *string {
	if listingID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*listingID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
