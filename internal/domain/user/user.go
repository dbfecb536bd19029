package user

import (
	"context"
)

// User is the subset of the marketplace user record this service reads.
type User struct {
	ID          string
	DisplayName string
	AvatarURL   string
}

// Profile is the display identity attached to delivered messages.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ProfileOf converts a user record into its public display identity.
func ProfileOf(u *User) Profile {
	return Profile{ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}

// Repository reads user records owned by the account service.
type Repository interface {
	// FindByID returns a NOT_FOUND platform error when the user does not exist.
	FindByID(ctx context.Context, id string) (*User, error)
	// FindByIDs returns the users that exist; missing ids are skipped.
	FindByIDs(ctx context.Context, ids []string) ([]*User, error)
}
