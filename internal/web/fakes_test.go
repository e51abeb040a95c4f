package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"stash/web/internal/config"
	"stash/web/internal/session"
	"stash/web/internal/store"
	"stash/web/internal/view"
)

const testSecret = "test-session-secret"

// memStore is an in-memory Store honoring the same contracts as the
// Postgres implementation.
type memStore struct {
	mu    sync.Mutex
	users map[string]store.User
	lists map[string]*store.List
	fail  error
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[string]store.User),
		lists: make(map[string]*store.List),
	}
}

func (m *memStore) addUser(user store.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *memStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return store.User{}, m.fail
	}
	user, ok := m.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memStore) EnsureList(_ context.Context, userID, name string, seed []store.Item) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return false, m.fail
	}
	if _, ok := m.lists[userID]; ok {
		return false, nil
	}
	list := &store.List{UserID: userID, Name: name, CreatedAt: time.Now()}
	list.Items = append(list.Items, seed...)
	m.lists[userID] = list
	return true, nil
}

func (m *memStore) GetList(_ context.Context, userID string) (store.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return store.List{}, m.fail
	}
	list, ok := m.lists[userID]
	if !ok {
		return store.List{}, store.ErrNotFound
	}
	return *list, nil
}

func (m *memStore) AddItem(_ context.Context, userID string, item store.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	list, ok := m.lists[userID]
	if !ok {
		return store.ErrNotFound
	}
	for _, existing := range list.Items {
		if existing.ID == item.ID {
			return nil
		}
	}
	list.Items = append(list.Items, item)
	return nil
}

func (m *memStore) RemoveItem(_ context.Context, userID, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	list, ok := m.lists[userID]
	if !ok {
		return nil
	}
	kept := list.Items[:0]
	for _, item := range list.Items {
		if item.ID != itemID {
			kept = append(kept, item)
		}
	}
	list.Items = kept
	return nil
}

func (m *memStore) SetSecret(_ context.Context, userID, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	user, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.Secret = &secret
	m.users[userID] = user
	return nil
}

func (m *memStore) ListSecrets(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	var secrets []string
	for _, user := range m.users {
		if user.Secret != nil && *user.Secret != "" {
			secrets = append(secrets, *user.Secret)
		}
	}
	return secrets, nil
}

func (m *memStore) Ping(context.Context) error { return nil }

// fakeSessions is an in-memory Sessions implementation.
type fakeSessions struct {
	mu       sync.Mutex
	next     int
	sessions map[string]string
	states   map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		sessions: make(map[string]string),
		states:   make(map[string]bool),
	}
}

func (f *fakeSessions) Create(_ context.Context, userID string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := fmt.Sprintf("sess-%d", f.next)
	f.sessions[id] = userID
	return id, nil
}

func (f *fakeSessions) Lookup(_ context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.sessions[sessionID]
	if !ok {
		return "", session.ErrNoSession
	}
	return userID, nil
}

func (f *fakeSessions) Revoke(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeSessions) SaveState(_ context.Context, state string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state] = true
	return nil
}

func (f *fakeSessions) TakeState(_ context.Context, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.states[state] {
		return session.ErrNoSession
	}
	delete(f.states, state)
	return nil
}

type fakePasswords struct {
	registerFn func(ctx context.Context, username, password string) (store.User, error)
	loginFn    func(ctx context.Context, username, password string) (store.User, error)
}

func (f *fakePasswords) Register(ctx context.Context, username, password string) (store.User, error) {
	if f.registerFn == nil {
		return store.User{}, errors.New("register not stubbed")
	}
	return f.registerFn(ctx, username, password)
}

func (f *fakePasswords) Login(ctx context.Context, username, password string) (store.User, error) {
	if f.loginFn == nil {
		return store.User{}, errors.New("login not stubbed")
	}
	return f.loginFn(ctx, username, password)
}

type fakeGoogle struct {
	exchangeFn func(ctx context.Context, code string) (store.User, error)
}

func (f *fakeGoogle) AuthURL(state string) string {
	return "https://accounts.example.com/consent?state=" + state
}

func (f *fakeGoogle) Exchange(ctx context.Context, code string) (store.User, error) {
	if f.exchangeFn == nil {
		return store.User{}, errors.New("exchange not stubbed")
	}
	return f.exchangeFn(ctx, code)
}

type testEnv struct {
	handler   http.Handler
	store     *memStore
	sessions  *fakeSessions
	passwords *fakePasswords
	google    *fakeGoogle
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Config{
		SessionSecret: testSecret,
		SessionTTL:    time.Hour,
	}
	st := newMemStore()
	sessions := newFakeSessions()
	passwords := &fakePasswords{}
	google := &fakeGoogle{}

	views, err := view.New()
	if err != nil {
		t.Fatalf("view.New failed: %v", err)
	}
	logger := slog.New(slog.DiscardHandler)
	service := NewService(cfg, st, sessions, passwords, google, logger)

	return &testEnv{
		handler:   NewServer(service, views).Handler(),
		store:     st,
		sessions:  sessions,
		passwords: passwords,
		google:    google,
	}
}

// signedIn registers a user in the fake store and returns a session cookie
// authenticating as that user.
func (e *testEnv) signedIn(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	e.store.addUser(store.User{ID: userID})
	sessionID, err := e.sessions.Create(context.Background(), userID, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return &http.Cookie{
		Name:  session.CookieName,
		Value: session.EncodeCookie([]byte(testSecret), sessionID),
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func wantRedirect(t *testing.T, rr *httptest.ResponseRecorder, location string) {
	t.Helper()
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Location"); got != location {
		t.Fatalf("expected redirect to %s, got %s", location, got)
	}
}
