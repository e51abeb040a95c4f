// Package authgoogle provides federated sign-in through Google OAuth2.
package authgoogle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"stash/web/internal/store"
	"stash/web/internal/util"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// UserStore defines the storage interface for federated identity resolution.
type UserStore interface {
	FindOrCreateByGoogleID(ctx context.Context, id, googleID string) (store.User, error)
}

// Service runs the redirect-based Google handshake and resolves the
// federated identity to a canonical user record.
type Service struct {
	oauth       *oauth2.Config
	userInfoURL string
	users       UserStore
}

// NewService creates a Google sign-in service against the real Google
// endpoints.
func NewService(clientID, clientSecret, callbackURL string, users UserStore) *Service {
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  googleAuthURL,
				TokenURL: googleTokenURL,
			},
		},
		userInfoURL: googleUserInfoURL,
		users:       users,
	}
}

// WithEndpoints overrides the provider endpoints. Tests point these at
// httptest servers.
func (s *Service) WithEndpoints(endpoint oauth2.Endpoint, userInfoURL string) *Service {
	s.oauth.Endpoint = endpoint
	s.userInfoURL = userInfoURL
	return s
}

// AuthURL returns the consent-screen redirect target for a state nonce.
func (s *Service) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// Exchange trades the callback code for the Google subject id and resolves
// it to a user, creating one on first sign-in. Repeated sign-ins with the
// same Google account always resolve to the same user.
func (s *Service) Exchange(ctx context.Context, code string) (store.User, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return store.User{}, fmt.Errorf("exchange code: %w", err)
	}

	googleID, err := s.fetchSubject(ctx, token)
	if err != nil {
		return store.User{}, err
	}

	user, err := s.users.FindOrCreateByGoogleID(ctx, util.NewID("usr"), googleID)
	if err != nil {
		return store.User{}, fmt.Errorf("resolve federated user: %w", err)
	}
	return user, nil
}

func (s *Service) fetchSubject(ctx context.Context, token *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("build userinfo request: %w", err)
	}

	resp, err := s.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info struct {
		Sub string `json:"sub"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Sub == "" {
		return "", fmt.Errorf("userinfo missing subject")
	}
	return info.Sub, nil
}
