package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeProvider serves the token and profile endpoints of an OAuth provider.
type fakeProvider struct {
	*httptest.Server
	verifiers chan string
}

func newFakeProvider(t *testing.T, profile, emails any) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{verifiers: make(chan string, 4)}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		fp.verifiers <- r.PostForm.Get("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "access", "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(profile)
	})
	mux.HandleFunc("GET /user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(emails)
	})
	fp.Server = httptest.NewServer(mux)
	t.Cleanup(fp.Close)
	return fp
}

func (fp *fakeProvider) config() ProviderConfig {
	return ProviderConfig{
		OAuth: oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost/cb",
			Endpoint: oauth2.Endpoint{
				AuthURL:   fp.URL + "/authorize",
				TokenURL:  fp.URL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		ProfileURL: fp.URL + "/user",
		EmailsURL:  fp.URL + "/user/emails",
	}
}

func recordingLogin(got *Profile) LoginFunc {
	return func(_ context.Context, p Profile) (string, error) {
		*got = p
		return "session-for-" + p.Email, nil
	}
}

func TestBroker_GoogleFlow(t *testing.T) {
	fp := newFakeProvider(t, map[string]any{
		"email": "ada@example.com", "email_verified": true,
		"given_name": "Ada", "family_name": "Lovelace", "picture": "http://img/ada.png",
	}, nil)

	var profile Profile
	b := NewBroker(time.Minute, recordingLogin(&profile), nil)
	b.Register(ProviderGoogle, fp.config())

	authURL, state, err := b.Start(ProviderGoogle)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = b.Complete(context.Background(), ProviderGoogle, state, "good-code")
	}()

	token, err := b.Wait(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "session-for-ada@example.com", token)
	assert.Equal(t, Profile{Provider: ProviderGoogle, Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace", Avatar: "http://img/ada.png"}, profile)
	assert.NotEmpty(t, <-fp.verifiers, "token exchange must carry the PKCE verifier")
	assert.Equal(t, 0, b.Pending())
}

func TestBroker_GitHubEmailFallback(t *testing.T) {
	fp := newFakeProvider(t,
		map[string]any{"login": "octo", "name": "Octo Cat", "email": nil, "avatar_url": "http://img/octo.png"},
		[]map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		})

	var profile Profile
	b := NewBroker(time.Minute, recordingLogin(&profile), nil)
	b.Register(ProviderGitHub, fp.config())

	_, state, err := b.Start(ProviderGitHub)
	require.NoError(t, err)
	require.NoError(t, b.Complete(context.Background(), ProviderGitHub, state, "good-code"))

	token, err := b.Wait(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "session-for-octo@example.com", token)
	assert.Equal(t, "Octo", profile.FirstName)
	assert.Equal(t, "Cat", profile.LastName)
}

func TestBroker_FailedExchangeReachesWaiter(t *testing.T) {
	fp := newFakeProvider(t, map[string]any{}, nil)
	var profile Profile
	b := NewBroker(time.Minute, recordingLogin(&profile), nil)
	b.Register(ProviderGoogle, fp.config())

	_, state, err := b.Start(ProviderGoogle)
	require.NoError(t, err)
	require.Error(t, b.Complete(context.Background(), ProviderGoogle, state, "bad-code"))

	_, err = b.Wait(context.Background(), state)
	assert.Error(t, err)
	assert.ErrorIs(t, b.Complete(context.Background(), ProviderGoogle, state, "good-code"), ErrUnknownFlow,
		"a flow completes once")
}

func TestBroker_Timeout(t *testing.T) {
	b := NewBroker(30*time.Millisecond, nil, nil)
	b.Register(ProviderGoogle, ProviderConfig{OAuth: oauth2.Config{Endpoint: oauth2.Endpoint{AuthURL: "http://x/auth"}}})

	_, state, err := b.Start(ProviderGoogle)
	require.NoError(t, err)

	start := time.Now()
	_, err = b.Wait(context.Background(), state)
	assert.ErrorIs(t, err, ErrFlowTimeout)
	assert.Less(t, time.Since(start), time.Second)

	_, err = b.Wait(context.Background(), state)
	assert.ErrorIs(t, err, ErrUnknownFlow)
}

func TestBroker_CancelledWaitKeepsFlow(t *testing.T) {
	b := NewBroker(time.Minute, nil, nil)
	b.Register(ProviderGoogle, ProviderConfig{OAuth: oauth2.Config{Endpoint: oauth2.Endpoint{AuthURL: "http://x/auth"}}})
	_, state, err := b.Start(ProviderGoogle)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Wait(ctx, state)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, b.Pending())

	denied := errors.New("access_denied")
	require.NoError(t, b.Fail(ProviderGoogle, state, denied))
	_, err = b.Wait(context.Background(), state)
	assert.ErrorIs(t, err, denied)
}

func TestBroker_UnknownProviderAndState(t *testing.T) {
	b := NewBroker(time.Minute, nil, nil)
	_, _, err := b.Start(ProviderGitHub)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = b.Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownFlow)

	b.Register(ProviderGoogle, ProviderConfig{OAuth: oauth2.Config{Endpoint: oauth2.Endpoint{AuthURL: "http://x/auth"}}})
	b.Register(ProviderGitHub, ProviderConfig{OAuth: oauth2.Config{Endpoint: oauth2.Endpoint{AuthURL: "http://y/auth"}}})
	_, state, err := b.Start(ProviderGoogle)
	require.NoError(t, err)
	assert.ErrorIs(t, b.Complete(context.Background(), ProviderGitHub, state, "code"), ErrUnknownFlow,
		"state is bound to the provider that issued it")
}

func TestBroker_Sweep(t *testing.T) {
	b := NewBroker(time.Minute, nil, nil)
	b.Register(ProviderGoogle, ProviderConfig{OAuth: oauth2.Config{Endpoint: oauth2.Endpoint{AuthURL: "http://x/auth"}}})
	_, _, err := b.Start(ProviderGoogle)
	require.NoError(t, err)

	assert.Equal(t, 0, b.Sweep())
	b.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, 1, b.Sweep())
	assert.Equal(t, 0, b.Pending())
}

func TestCallbackURL(t *testing.T) {
	assert.Equal(t, "https://app.test/api/auth/oauth/github/callback", CallbackURL("https://app.test/", ProviderGitHub))
}
