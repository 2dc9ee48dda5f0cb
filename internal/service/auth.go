package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/store"
)

const (
	discordAPIBase = "https://discord.com/api"
	sessionIssuer  = "prism"
)

// DiscordEndpoint is Discord's OAuth2 endpoint.
var DiscordEndpoint = oauth2.Endpoint{
	AuthURL:   discordAPIBase + "/oauth2/authorize",
	TokenURL:  discordAPIBase + "/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// Identity is the profile returned by Discord's /users/@me.
type Identity struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Email      string `json:"email"`
	Avatar     string `json:"avatar"`
}

// DisplayName prefers the global display name over the username.
func (i *Identity) DisplayName() string {
	if i.GlobalName != "" {
		return i.GlobalName
	}
	return i.Username
}

// Principal is the identity carried by a dashboard session.
type Principal struct {
	UserID string
	Name   string
}

// AuthOptions configures an AuthService.
type AuthOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// VIPs may sign in to the dashboard.
	VIPs          []string
	SessionSecret string
	SessionTTL    time.Duration
	// Endpoint and APIBase override Discord's URLs.
	Endpoint oauth2.Endpoint
	APIBase  string
}

// AuthService handles Discord sign-in and dashboard sessions.
type AuthService struct {
	users      UserStore
	oauth      *oauth2.Config
	apiBase    string
	vips       Allowlist
	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time
}

// NewAuthService creates an AuthService.
func NewAuthService(users UserStore, opts AuthOptions) *AuthService {
	if opts.Endpoint == (oauth2.Endpoint{}) {
		opts.Endpoint = DiscordEndpoint
	}
	if opts.APIBase == "" {
		opts.APIBase = discordAPIBase
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	return &AuthService{
		users: users,
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       []string{"identify"},
			Endpoint:     opts.Endpoint,
		},
		apiBase:    opts.APIBase,
		vips:       NewAllowlist(opts.VIPs),
		secret:     []byte(opts.SessionSecret),
		sessionTTL: opts.SessionTTL,
		now:        time.Now,
	}
}

// Configured reports whether OAuth credentials are present.
func (s *AuthService) Configured() bool {
	return s.oauth.ClientID != "" && s.oauth.ClientSecret != ""
}

// IsVIP reports whether userID may use the dashboard.
func (s *AuthService) IsVIP(userID string) bool {
	return s.vips.Contains(userID)
}

// SessionTTL is the lifetime of issued sessions.
func (s *AuthService) SessionTTL() time.Duration { return s.sessionTTL }

// AuthCodeURL returns the Discord consent URL carrying state.
func (s *AuthService) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for the caller's Discord identity.
func (s *AuthService) Exchange(ctx context.Context, code string) (*Identity, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("discord oauth: %w", ErrNotConfigured)
	}
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBase+"/users/@me", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch identity: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch identity: unexpected status %d", resp.StatusCode)
	}

	var ident Identity
	if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	if ident.ID == "" {
		return nil, errors.New("decode identity: missing id")
	}
	return &ident, nil
}

// Login admits a VIP identity: the user record is refreshed and a signed
// session token returned. Non-VIPs get an *AuthorizationError and nothing
// is stored.
func (s *AuthService) Login(ctx context.Context, ident *Identity) (*model.User, string, error) {
	if !s.IsVIP(ident.ID) {
		return nil, "", &AuthorizationError{UserID: ident.ID, Action: "access the dashboard"}
	}
	u, err := s.users.UpsertUser(ctx, &model.User{
		ID:          ident.ID,
		Email:       ident.Email,
		DisplayName: ident.DisplayName(),
		AvatarURL:   model.AvatarURLFor(ident.ID, ident.Avatar),
	})
	if err != nil {
		return nil, "", &StoreError{Op: "upsert user", Err: err}
	}
	token, err := s.IssueSession(u.ID, u.DisplayName)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// IssueSession creates a signed session token for userID.
func (s *AuthService) IssueSession(userID, name string) (string, error) {
	now := s.now()
	claims := sessionClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.sessionTTL)),
			Issuer:    sessionIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateSession verifies a session token.
func (s *AuthService) ValidateSession(tokenStr string) (*Principal, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidCredentials
	}
	return &Principal{UserID: claims.Subject, Name: claims.Name}, nil
}

// CurrentUser returns the stored dashboard user.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Kind: "user", ID: userID}
	}
	if err != nil {
		return nil, &StoreError{Op: "get user", Err: err}
	}
	return u, nil
}

type sessionClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}
