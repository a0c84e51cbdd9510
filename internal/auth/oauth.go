package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"balancio/internal/config"
	"balancio/internal/log"
)

type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrUnknownFlow     = errors.New("unknown or expired oauth state")
	ErrFlowTimeout     = errors.New("oauth flow timed out")
	ErrNoEmail         = errors.New("oauth provider returned no verified email")
)

// Profile is the identity a provider reports after a successful login.
type Profile struct {
	Provider  Provider
	Email     string
	FirstName string
	LastName  string
	Avatar    string
}

// ProviderConfig describes one OAuth provider. EmailsURL is consulted when
// the profile endpoint hides the user's address (GitHub).
type ProviderConfig struct {
	OAuth      oauth2.Config
	ProfileURL string
	EmailsURL  string
}

// LoginFunc finds or creates the user behind p and returns a session token.
type LoginFunc func(ctx context.Context, p Profile) (string, error)

type flowResult struct {
	token string
	err   error
}

type flow struct {
	provider  Provider
	verifier  string
	expires   time.Time
	completed bool
	done      chan flowResult
}

// Broker runs the browser OAuth dance for API clients. Start registers a
// pending flow and hands out the provider URL; the provider redirects to
// Complete; the client blocks in Wait until the flow's completion channel
// fires or the flow times out.
type Broker struct {
	mu        sync.Mutex
	providers map[Provider]ProviderConfig
	flows     map[string]*flow
	timeout   time.Duration
	login     LoginFunc
	logger    *log.Logger
	now       func() time.Time
}

func NewBroker(timeout time.Duration, login LoginFunc, logger *log.Logger) *Broker {
	if logger == nil {
		logger = log.Discard()
	}
	return &Broker{
		providers: make(map[Provider]ProviderConfig),
		flows:     make(map[string]*flow),
		timeout:   timeout,
		login:     login,
		logger:    logger.WithComponent(log.ComponentAuth),
		now:       time.Now,
	}
}

// CallbackURL is the redirect target registered with the provider.
func CallbackURL(baseURL string, p Provider) string {
	return strings.TrimRight(baseURL, "/") + "/api/auth/oauth/" + string(p) + "/callback"
}

func GoogleProvider(clientID, clientSecret, redirectURL string) ProviderConfig {
	return ProviderConfig{
		OAuth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
		},
		ProfileURL: "https://www.googleapis.com/oauth2/v3/userinfo",
	}
}

func GitHubProvider(clientID, clientSecret, redirectURL string) ProviderConfig {
	return ProviderConfig{
		OAuth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user", "user:email"},
		},
		ProfileURL: "https://api.github.com/user",
		EmailsURL:  "https://api.github.com/user/emails",
	}
}

// Configure registers every provider that has credentials in cfg.
func (b *Broker) Configure(baseURL string, cfg config.OAuthConfig) {
	if cfg.GoogleClientID != "" {
		b.Register(ProviderGoogle, GoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, CallbackURL(baseURL, ProviderGoogle)))
	}
	if cfg.GitHubClientID != "" {
		b.Register(ProviderGitHub, GitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, CallbackURL(baseURL, ProviderGitHub)))
	}
}

func (b *Broker) Register(p Provider, cfg ProviderConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers[p] = cfg
}

func (b *Broker) provider(p Provider) (ProviderConfig, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cfg, ok := b.providers[p]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	return cfg, nil
}

// Start opens a flow and returns the provider authorization URL and the
// state the client passes to Wait.
func (b *Broker) Start(p Provider) (authURL, state string, err error) {
	cfg, err := b.provider(p)
	if err != nil {
		return "", "", err
	}

	state = uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	b.mu.Lock()
	b.flows[state] = &flow{
		provider: p,
		verifier: verifier,
		expires:  b.now().Add(b.timeout),
		done:     make(chan flowResult, 1),
	}
	b.mu.Unlock()

	b.logger.Debug("OAuth flow started", log.FieldProvider, p)
	return cfg.OAuth.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier)), state, nil
}

// claim marks the flow as being completed so a replayed callback is refused.
func (b *Broker) claim(p Provider, state string) (*flow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.flows[state]
	if !ok || f.provider != p || f.completed || b.now().After(f.expires) {
		return nil, ErrUnknownFlow
	}
	f.completed = true
	return f, nil
}

// Complete handles the provider redirect: it exchanges code, fetches the
// profile, logs the user in and delivers the token to the waiting client.
func (b *Broker) Complete(ctx context.Context, p Provider, state, code string) error {
	cfg, err := b.provider(p)
	if err != nil {
		return err
	}
	f, err := b.claim(p, state)
	if err != nil {
		return err
	}

	token, err := b.complete(ctx, cfg, p, f, code)
	f.done <- flowResult{token: token, err: err}
	if err != nil {
		b.logger.WarnContext(ctx, "OAuth flow failed", log.FieldProvider, p, log.FieldError, err)
		return err
	}
	b.logger.InfoContext(ctx, "OAuth flow completed", log.FieldProvider, p)
	return nil
}

// Fail delivers a provider-side error (for example a denied consent).
func (b *Broker) Fail(p Provider, state string, cause error) error {
	f, err := b.claim(p, state)
	if err != nil {
		return err
	}
	f.done <- flowResult{err: cause}
	return nil
}

func (b *Broker) complete(ctx context.Context, cfg ProviderConfig, p Provider, f *flow, code string) (string, error) {
	if code == "" {
		return "", errors.New("missing authorization code")
	}
	tok, err := cfg.OAuth.Exchange(ctx, code, oauth2.VerifierOption(f.verifier))
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}
	profile, err := fetchProfile(ctx, cfg, p, cfg.OAuth.Client(ctx, tok))
	if err != nil {
		return "", err
	}
	return b.login(ctx, profile)
}

// Wait blocks until the flow completes, ctx ends or the flow times out.
// A cancelled ctx leaves the flow pending so the client can wait again.
func (b *Broker) Wait(ctx context.Context, state string) (string, error) {
	b.mu.Lock()
	f, ok := b.flows[state]
	b.mu.Unlock()
	if !ok {
		return "", ErrUnknownFlow
	}

	timer := time.NewTimer(f.expires.Sub(b.now()))
	defer timer.Stop()

	select {
	case res := <-f.done:
		b.remove(state)
		return res.token, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		b.remove(state)
		return "", ErrFlowTimeout
	}
}

func (b *Broker) remove(state string) {
	b.mu.Lock()
	delete(b.flows, state)
	b.mu.Unlock()
}

// Pending reports the number of open flows.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.flows)
}

// Sweep drops flows that expired without anyone waiting for them.
func (b *Broker) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	removed := 0
	for state, f := range b.flows {
		if now.After(f.expires) {
			delete(b.flows, state)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (b *Broker) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.Sweep(); n > 0 {
				b.logger.Debug("Swept expired OAuth flows", "count", n)
			}
		}
	}
}

func fetchProfile(ctx context.Context, cfg ProviderConfig, p Provider, client *http.Client) (Profile, error) {
	switch p {
	case ProviderGitHub:
		var u struct {
			Login     string `json:"login"`
			Name      string `json:"name"`
			Email     string `json:"email"`
			AvatarURL string `json:"avatar_url"`
		}
		if err := getJSON(ctx, client, cfg.ProfileURL, &u); err != nil {
			return Profile{}, err
		}
		email := u.Email
		if email == "" && cfg.EmailsURL != "" {
			var emails []struct {
				Email    string `json:"email"`
				Primary  bool   `json:"primary"`
				Verified bool   `json:"verified"`
			}
			if err := getJSON(ctx, client, cfg.EmailsURL, &emails); err != nil {
				return Profile{}, err
			}
			for _, e := range emails {
				if e.Primary && e.Verified {
					email = e.Email
					break
				}
			}
		}
		if email == "" {
			return Profile{}, ErrNoEmail
		}
		name := u.Name
		if name == "" {
			name = u.Login
		}
		first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
		return Profile{Provider: p, Email: email, FirstName: first, LastName: strings.TrimSpace(last), Avatar: u.AvatarURL}, nil

	default:
		var u struct {
			Email         string `json:"email"`
			EmailVerified bool   `json:"email_verified"`
			GivenName     string `json:"given_name"`
			FamilyName    string `json:"family_name"`
			Picture       string `json:"picture"`
		}
		if err := getJSON(ctx, client, cfg.ProfileURL, &u); err != nil {
			return Profile{}, err
		}
		if u.Email == "" || !u.EmailVerified {
			return Profile{}, ErrNoEmail
		}
		return Profile{Provider: p, Email: u.Email, FirstName: u.GivenName, LastName: u.FamilyName, Avatar: u.Picture}, nil
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch profile: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode profile: %w", err)
	}
	return nil
}
