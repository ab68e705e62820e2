package oauth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/truesplit/tsauth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// StateCookieName carries the signed state and verifier between redirect and callback.
	StateCookieName = "TS_OAUTH_STATE"
	// StateTTL bounds how long a started sign-in may take.
	StateTTL = 10 * time.Minute

	// DefaultUserInfoURL is Google's OpenID userinfo endpoint.
	DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	maxProfileBytes = 1 << 20
)

var (
	ErrInvalidState = errors.New("oauth state invalid")
	ErrExchange     = errors.New("oauth code exchange failed")
	ErrProfile      = errors.New("oauth profile unavailable")
)

// Config configures the Google client. Endpoint and UserInfoURL default to
// Google's production endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// StateSecret signs the state cookie. The JWT secret is reused in practice.
	StateSecret []byte

	Endpoint    oauth2.Endpoint
	UserInfoURL string
	HTTPClient  *http.Client
}

// Google runs the authorization code flow with PKCE against Google.
type Google struct {
	oauth       *oauth2.Config
	userInfoURL string
	secret      []byte
	httpClient  *http.Client
}

// NewGoogle validates cfg. Both client id and secret are required.
func NewGoogle(cfg Config) (*Google, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("oauth client id and secret required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("oauth redirect url required")
	}
	if len(cfg.StateSecret) == 0 {
		return nil, errors.New("oauth state secret required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = DefaultUserInfoURL
	}

	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       append([]string(nil), scopes...),
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
		secret:      append([]byte(nil), cfg.StateSecret...),
		httpClient:  cfg.HTTPClient,
	}, nil
}

// Begin returns the URL to redirect the browser to and the signed cookie
// value to store under [StateCookieName].
func (g *Google) Begin() (authURL string, cookieValue string) {
	state := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()

	authURL = g.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
	)
	return authURL, g.sign(state + "." + verifier)
}

// Complete checks the callback state against cookieValue, exchanges code
// and fetches the profile.
func (g *Google) Complete(ctx context.Context, cookieValue, state, code string) (tsauth.ExternalIdentity, error) {
	expectedState, verifier, err := g.open(cookieValue)
	if err != nil {
		return tsauth.ExternalIdentity{}, err
	}
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expectedState)) != 1 {
		return tsauth.ExternalIdentity{}, ErrInvalidState
	}
	if code == "" {
		return tsauth.ExternalIdentity{}, fmt.Errorf("%w: missing code", ErrExchange)
	}

	if g.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}

	token, err := g.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return tsauth.ExternalIdentity{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	return g.profile(ctx, token)
}

type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (g *Google) profile(ctx context.Context, token *oauth2.Token) (tsauth.ExternalIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return tsauth.ExternalIdentity{}, fmt.Errorf("%w: %v", ErrProfile, err)
	}

	resp, err := g.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return tsauth.ExternalIdentity{}, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tsauth.ExternalIdentity{}, fmt.Errorf("%w: userinfo status %d", ErrProfile, resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&info); err != nil {
		return tsauth.ExternalIdentity{}, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	if info.Email == "" {
		return tsauth.ExternalIdentity{}, fmt.Errorf("%w: no email in profile", ErrProfile)
	}
	if info.EmailVerified != nil && !*info.EmailVerified {
		return tsauth.ExternalIdentity{}, fmt.Errorf("%w: email not verified by provider", ErrProfile)
	}

	return tsauth.ExternalIdentity{
		Provider: tsauth.ProviderGoogle,
		Subject:  info.Sub,
		Email:    info.Email,
		Name:     info.Name,
		Picture:  info.Picture,
	}, nil
}

func (g *Google) sign(payload string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(payload))
	return payload + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// open verifies a signed cookie value and splits it into state and verifier.
func (g *Google) open(value string) (string, string, error) {
	idx := strings.LastIndexByte(value, '.')
	if idx <= 0 {
		return "", "", ErrInvalidState
	}
	payload, sig := value[:idx], value[idx+1:]

	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", "", ErrInvalidState
	}
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(payload))
	if !hmac.Equal(got, mac.Sum(nil)) {
		return "", "", ErrInvalidState
	}

	state, verifier, ok := strings.Cut(payload, ".")
	if !ok || state == "" || verifier == "" {
		return "", "", ErrInvalidState
	}
	return state, verifier, nil
}
