package idgen

import (
	"crypto/rand"
	"fmt"
)

const (
	ConversationPrefix = "conv"
	ConnectionPrefix   = "conn"
	NotificationPrefix = "ntf"
)

// GenerateSecureID generates a cryptographically secure ID with the given prefix and length.
// Uses only alphanumeric characters (0-9, a-z) - no dashes or special characters.
func GenerateSecureID(prefix string, length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	const charset = "0123456789abcdefghijklmnopqrstuvwxyz"
	encoded := make([]byte, length)
	for i := 0; i < length; i++ {
		encoded[i] = charset[bytes[i]%byte(len(charset))]
	}

	return fmt.Sprintf("%s_%s", prefix, string(encoded)), nil
}

// NewConversationID returns a conv_* identifier.
func NewConversationID() (string, error) {
	return GenerateSecureID(ConversationPrefix, 16)
}

// NewConnectionID returns a conn_* identifier.
func NewConnectionID() (string, error) {
	return GenerateSecureID(ConnectionPrefix, 12)
}

// NewNotificationID returns a ntf_* identifier.
func NewNotificationID() (string, error) {
	return GenerateSecureID(NotificationPrefix, 16)
}
