// Package web holds the HTTP surface and the per-user CRUD behavior behind it.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stash/web/internal/config"
	"stash/web/internal/store"
	"stash/web/internal/util"
)

// DefaultListName is the name given to a list created on first view.
const DefaultListName = "Your List"

var defaultTasks = []string{
	"Welcome to your todolist!",
	"Hit + to add a new item.",
	"<-- Hit this to complete an item.",
}

// Store is the document-store surface the handlers consume.
type Store interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	EnsureList(ctx context.Context, userID, name string, seed []store.Item) (bool, error)
	GetList(ctx context.Context, userID string) (store.List, error)
	AddItem(ctx context.Context, userID string, item store.Item) error
	RemoveItem(ctx context.Context, userID, itemID string) error
	SetSecret(ctx context.Context, userID, secret string) error
	ListSecrets(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// Sessions maps opaque session ids to authenticated user ids.
type Sessions interface {
	Create(ctx context.Context, userID string, ttl time.Duration) (string, error)
	Lookup(ctx context.Context, sessionID string) (string, error)
	Revoke(ctx context.Context, sessionID string) error
	SaveState(ctx context.Context, state string, ttl time.Duration) error
	TakeState(ctx context.Context, state string) error
}

// PasswordAuth is the local-credentials service.
type PasswordAuth interface {
	Register(ctx context.Context, username, password string) (store.User, error)
	Login(ctx context.Context, username, password string) (store.User, error)
}

// GoogleAuth is the federated sign-in service.
type GoogleAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (store.User, error)
}

type Service struct {
	cfg       config.Config
	store     Store
	sessions  Sessions
	passwords PasswordAuth
	google    GoogleAuth
	logger    *slog.Logger
}

func NewService(cfg config.Config, st Store, sessions Sessions, passwords PasswordAuth, google GoogleAuth, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:       cfg,
		store:     st,
		sessions:  sessions,
		passwords: passwords,
		google:    google,
		logger:    logger,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func defaultItems() []store.Item {
	items := make([]store.Item, 0, len(defaultTasks))
	for _, task := range defaultTasks {
		items = append(items, store.Item{ID: util.NewID("itm"), Task: task})
	}
	return items
}

// ViewList returns the user's list, creating and seeding it on first view.
// created reports whether this call seeded the list; callers redirect back
// to the list view in that case so the fresh list renders.
func (s *Service) ViewList(ctx context.Context, userID string) (store.List, bool, error) {
	created, err := s.store.EnsureList(ctx, userID, DefaultListName, defaultItems())
	if err != nil {
		return store.List{}, false, fmt.Errorf("ensure list: %w", err)
	}
	if created {
		return store.List{}, true, nil
	}

	list, err := s.store.GetList(ctx, userID)
	if err != nil {
		return store.List{}, false, fmt.Errorf("load list: %w", err)
	}
	return list, false, nil
}

// AddItem appends a new item with a fresh id to the user's list.
func (s *Service) AddItem(ctx context.Context, userID, task string) error {
	task = strings.TrimSpace(task)
	if task == "" {
		return errors.New("task must not be empty")
	}
	item := store.Item{ID: util.NewID("itm"), Task: task}
	if err := s.store.AddItem(ctx, userID, item); err != nil {
		return fmt.Errorf("add item: %w", err)
	}
	return nil
}

// RemoveItem deletes an item by id. An id not present in the list is a
// silent no-op, not an error.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) error {
	if itemID == "" {
		return nil
	}
	if err := s.store.RemoveItem(ctx, userID, itemID); err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	return nil
}

// Secrets returns every posted secret for the public wall.
func (s *Service) Secrets(ctx context.Context) ([]string, error) {
	secrets, err := s.store.ListSecrets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	return secrets, nil
}

// SubmitSecret overwrites the user's secret. The user is re-loaded first:
// the route gate already checked the session, but the write is only applied
// for a user record that still exists.
func (s *Service) SubmitSecret(ctx context.Context, userID, secret string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if err := s.store.SetSecret(ctx, user.ID, strings.TrimSpace(secret)); err != nil {
		return fmt.Errorf("set secret: %w", err)
	}
	return nil
}
