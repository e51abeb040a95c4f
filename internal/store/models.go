package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateUsername is returned when a username is already registered.
	ErrDuplicateUsername = errors.New("username already taken")
)

// User is an identity record. Local accounts carry Username and PasswordHash,
// federated accounts carry GoogleID; both may carry a Secret.
type User struct {
	ID           string
	Username     *string
	PasswordHash *string
	GoogleID     *string
	Secret       *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// List is a user's single todo list. At most one per user.
type List struct {
	UserID    string
	Name      string
	Items     []Item
	CreatedAt time.Time
}

// Item is one entry in a List, ordered by insertion.
type Item struct {
	ID   string
	Task string
}
