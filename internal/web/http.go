package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stash/web/internal/session"
	"stash/web/internal/store"
	"stash/web/internal/view"
)

const oauthStateTTL = 10 * time.Minute

type Server struct {
	service *Service
	views   *view.Renderer
}

func NewServer(service *Service, views *view.Renderer) *Server {
	return &Server{service: service, views: views}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.accessLog)
	r.Use(s.withSession)

	r.Get("/", s.handleHome)
	r.Get("/healthz", s.handleHealth)

	r.Get("/register", s.handleRegisterForm)
	r.Post("/register", s.handleRegister)
	r.Get("/login", s.handleLoginForm)
	r.Post("/login", s.handleLogin)
	r.Get("/logout", s.handleLogout)

	r.Get("/auth/google", s.handleGoogleStart)
	r.Get("/auth/google/callback", s.handleGoogleCallback)

	r.Get("/secrets", s.handleSecrets)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/list", s.handleList)
		r.Post("/add", s.handleAdd)
		r.Post("/delete", s.handleDelete)
		r.Get("/submit", s.handleSubmitForm)
		r.Post("/submit", s.handleSubmit)
	})

	return r
}

// identity is the session-resolved authentication state for one request.
type identity struct {
	UserID    string
	SessionID string
}

type identityKey struct{}

// currentIdentity returns the request's identity, or false for anonymous.
func currentIdentity(ctx context.Context) (identity, bool) {
	id, ok := ctx.Value(identityKey{}).(identity)
	return id, ok
}

// withSession resolves the session cookie to an identity. Missing, tampered
// or expired cookies leave the request anonymous; they never fail it.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(session.CookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		sessionID, err := session.DecodeCookie([]byte(s.service.cfg.SessionSecret), cookie.Value)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := s.service.sessions.Lookup(r.Context(), sessionID)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, identity{UserID: userID, SessionID: sessionID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth gates user-scoped routes: anonymous requests are redirected to
// the login view before any handler runs, so no state can be mutated.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := currentIdentity(r.Context()); !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, "home.html", nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.service.Ping(ctx); err != nil {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, "register.html", nil)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	user, err := s.service.passwords.Register(r.Context(), username, password)
	if err != nil {
		if !errors.Is(err, store.ErrDuplicateUsername) {
			s.service.logger.Error("register failed", "error", err)
		}
		http.Redirect(w, r, "/register", http.StatusFound)
		return
	}
	s.signIn(w, r, user)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, "login.html", nil)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	user, err := s.service.passwords.Login(r.Context(), username, password)
	if err != nil {
		// Generic failure only; no detail reaches the client.
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	s.signIn(w, r, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := currentIdentity(r.Context()); ok {
		if err := s.service.sessions.Revoke(r.Context(), id.SessionID); err != nil {
			s.service.logger.Error("revoke session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	state := randomState()
	if err := s.service.sessions.SaveState(r.Context(), state, oauthStateTTL); err != nil {
		s.service.logger.Error("save oauth state", "error", err)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	http.Redirect(w, r, s.service.google.AuthURL(state), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if err := s.service.sessions.TakeState(r.Context(), state); err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	user, err := s.service.google.Exchange(r.Context(), code)
	if err != nil {
		s.service.logger.Error("google exchange failed", "error", err)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	s.signIn(w, r, user)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	id, _ := currentIdentity(r.Context())

	list, created, err := s.service.ViewList(r.Context(), id.UserID)
	if err != nil {
		s.service.logger.Error("view list failed", "user_id", id.UserID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if created {
		// Seeded on this request; reload so the fresh list renders.
		http.Redirect(w, r, "/list", http.StatusFound)
		return
	}
	s.render(w, "list.html", view.ListData{Title: list.Name, Items: list.Items})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	id, _ := currentIdentity(r.Context())

	if err := s.service.AddItem(r.Context(), id.UserID, r.PostFormValue("newItem")); err != nil {
		s.service.logger.Error("add item failed", "user_id", id.UserID, "error", err)
	}
	http.Redirect(w, r, "/list", http.StatusFound)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := currentIdentity(r.Context())

	if err := s.service.RemoveItem(r.Context(), id.UserID, r.PostFormValue("checkbox")); err != nil {
		s.service.logger.Error("delete item failed", "user_id", id.UserID, "error", err)
	}
	http.Redirect(w, r, "/list", http.StatusFound)
}

func (s *Server) handleSecrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := s.service.Secrets(r.Context())
	if err != nil {
		s.service.logger.Error("list secrets failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.render(w, "secrets.html", view.SecretsData{Secrets: secrets})
}

func (s *Server) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, "submit.html", nil)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, _ := currentIdentity(r.Context())

	if err := s.service.SubmitSecret(r.Context(), id.UserID, r.PostFormValue("secret")); err != nil {
		s.service.logger.Error("submit secret failed", "user_id", id.UserID, "error", err)
	}
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

// signIn starts a session for the user, sets the signed cookie and lands on
// the list view.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request, user store.User) {
	sessionID, err := s.service.sessions.Create(r.Context(), user.ID, s.service.cfg.SessionTTL)
	if err != nil {
		s.service.logger.Error("create session", "error", err)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    session.EncodeCookie([]byte(s.service.cfg.SessionSecret), sessionID),
		Path:     "/",
		MaxAge:   int(s.service.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.service.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/list", http.StatusFound)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	if err := s.views.Render(w, name, data); err != nil {
		s.service.logger.Error("render failed", "template", name, "error", err)
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func randomState() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
