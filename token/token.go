package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/maneframe/qbbillbridge/metrics"
)

// IntuitAuthURL is the Intuit authorization url
const IntuitAuthURL string = "https://appcenter.intuit.com/connect/oauth2"

// IntuitTokenURL is the Intuit token receipt url
const IntuitTokenURL string = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"

// IntuitRevokeURL is the Intuit revocation endpoint
const IntuitRevokeURL string = "https://developer.api.intuit.com/v2/oauth2/tokens/revoke"

// AccountingScope is the scope needed to read vendors and write bills
const AccountingScope string = "com.intuit.quickbooks.accounting"

// IntuitRefreshExpirationDays is the lifetime of a QuickBooks refresh
// token, used when the token endpoint does not report one
// See https://developer.intuit.com/app/developer/qbo/docs/develop/authentication-and-authorization/faq
const IntuitRefreshExpirationDays int = 100

// DefaultExpirySecs is the number of seconds before the access token
// expiry at which it is no longer handed out
const DefaultExpirySecs int = 60

// DefaultHTTPTimeout bounds each call to the Intuit oauth endpoints
const DefaultHTTPTimeout = 10 * time.Second

// ErrNotConnected is returned when no refresh token is held, meaning the
// oauth flow has to be completed (again) before QuickBooks can be called
var ErrNotConnected = errors.New("quickbooks is not connected")

// Config holds the oauth client settings for NewToken. Empty urls
// default to the Intuit production endpoints.
type Config struct {
	Redirect     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	// RealmID optionally fixes the QuickBooks company before any
	// callback has been received
	RealmID string
	// RefreshToken optionally seeds the token from a saved refresh token
	// so that the login flow can be skipped
	RefreshToken string
	ExpirySecs   int
	HTTPTimeout  time.Duration
}

// Token is the single oauth token record held by the bridge: the
// QuickBooks access token, valid for one hour, and the refresh token
// which is rotated by Intuit and lives for 100 days. The realm id
// identifies the company the tokens are scoped to.
//
// All access to the record goes through the locker. Refreshes are
// funnelled through a singleflight group so that concurrent callers
// observing an expired access token cause one call to the token
// endpoint.
type Token struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiryUTC  time.Time `json:"access_token_expiry_utc"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiryUTC time.Time `json:"refresh_token_expiry_utc"`
	RealmID               string    `json:"realm_id"`

	clientID             string
	clientSecret         string
	redirectURL          string
	scopesRequested      []string
	authURL              string
	tokenURL             string
	revokeURL            string
	states               *stateStore
	httpclient           *http.Client
	expireTimeTicker     time.Duration
	expirySecs           time.Duration
	refreshWindow        time.Duration
	refreshTokenLifetime time.Duration
	locker               sync.RWMutex
	flight               singleflight.Group
}

// Status is the public view of a Token; secrets are not included
type Status struct {
	Connected             bool      `json:"connected"`
	RealmID               string    `json:"realm_id,omitempty"`
	AccessTokenValid      bool      `json:"access_token_valid"`
	AccessTokenExpiryUTC  time.Time `json:"access_token_expiry_utc"`
	RefreshTokenExpiryUTC time.Time `json:"refresh_token_expiry_utc"`
	Scopes                []string  `json:"scopes"`
}

// String represents Token for printing, with the secrets shortened
func (t *Token) String() string {
	t.locker.RLock()
	defer t.locker.RUnlock()
	tpl := `
access_token   %s
expiry         %s
refresh_token  %s
refresh_expiry %s
realm_id       %s
`
	return fmt.Sprintf(
		tpl,
		mask(t.AccessToken),
		t.AccessTokenExpiryUTC,
		mask(t.RefreshToken),
		t.RefreshTokenExpiryUTC,
		t.RealmID,
	)
}

// mask shows only the start of a secret
func mask(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + "..." + strings.Repeat("*", 4)
}

// Status returns the connection status of the token
func (t *Token) Status() Status {
	t.locker.RLock()
	defer t.locker.RUnlock()
	return Status{
		Connected:             t.RefreshToken != "",
		RealmID:               t.RealmID,
		AccessTokenValid:      t.validLocked(),
		AccessTokenExpiryUTC:  t.AccessTokenExpiryUTC,
		RefreshTokenExpiryUTC: t.RefreshTokenExpiryUTC,
		Scopes:                t.scopesRequested,
	}
}

// StatusJSON returns a json encoding of the token status
func (t *Token) StatusJSON() (j []byte, err error) {
	return json.Marshal(t.Status())
}

// Realm returns the QuickBooks company id the token is scoped to
func (t *Token) Realm() string {
	t.locker.RLock()
	defer t.locker.RUnlock()
	return t.RealmID
}

// Connected reports whether a refresh token is held
func (t *Token) Connected() bool {
	t.locker.RLock()
	defer t.locker.RUnlock()
	return t.RefreshToken != ""
}

// NewToken returns a new Token after checking the client configuration
func NewToken(cfg Config) (t *Token, err error) {

	_, err = url.ParseRequestURI(cfg.Redirect)
	if err != nil {
		return t, errors.New("redirect url invalid")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return t, errors.New("redirect, client or secret is empty")
	}
	if len(cfg.Scopes) < 1 {
		return t, errors.New("scopes cannot be empty")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = IntuitAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = IntuitTokenURL
	}
	if cfg.RevokeURL == "" {
		cfg.RevokeURL = IntuitRevokeURL
	}
	for _, u := range []string{cfg.AuthURL, cfg.TokenURL, cfg.RevokeURL} {
		if _, err = url.ParseRequestURI(u); err != nil {
			return nil, fmt.Errorf("oauth endpoint %q invalid: %w", u, err)
		}
	}
	if cfg.ExpirySecs <= 0 {
		cfg.ExpirySecs = DefaultExpirySecs
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}

	refreshLifetime := time.Hour * time.Duration(24*IntuitRefreshExpirationDays)

	t = &Token{
		RefreshToken:         cfg.RefreshToken,
		RealmID:              cfg.RealmID,
		clientID:             cfg.ClientID,
		clientSecret:         cfg.ClientSecret,
		redirectURL:          cfg.Redirect,
		scopesRequested:      cfg.Scopes,
		authURL:              cfg.AuthURL,
		tokenURL:             cfg.TokenURL,
		revokeURL:            cfg.RevokeURL,
		states:               newStateStore(StateLifetime),
		httpclient:           &http.Client{Timeout: cfg.HTTPTimeout},
		expireTimeTicker:     time.Hour,
		expirySecs:           time.Second * time.Duration(cfg.ExpirySecs),
		refreshWindow:        time.Hour * 24 * 7,
		refreshTokenLifetime: refreshLifetime,
	}
	if cfg.RefreshToken != "" {
		log.WithField("realm_id", cfg.RealmID).Info("token seeded from saved refresh token")
	}
	return t, nil
}

// AuthURL returns the authorization url which is the beginning of the
// authorization process. Each call issues a new state string which the
// callback has to present.
func (t *Token) AuthURL() string {
	// authURL is checked by NewToken
	u, _ := url.Parse(t.authURL)
	q := u.Query()
	q.Set("client_id", t.clientID)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(t.scopesRequested, " "))
	q.Set("redirect_uri", t.redirectURL)
	q.Set("state", t.states.issue())
	u.RawQuery = q.Encode()
	return u.String()
}

// VerifyState checks and consumes a state string returned by the
// authorization server
func (t *Token) VerifyState(state string) error {
	if state == "" {
		return errors.New("no state provided")
	}
	if !t.states.consume(state) {
		return errors.New("state is unknown or has expired")
	}
	return nil
}

// Results is the type of the Intuit token endpoint response
type Results struct {
	AccessToken           string `json:"access_token"`
	ExpiresIn             int    `json:"expires_in"`
	TokenType             string `json:"token_type"`
	RefreshToken          string `json:"refresh_token"`
	RefreshTokenExpiresIn int    `json:"x_refresh_token_expires_in"`
}

// Apply stores a token endpoint response, recomputing the expiry times
// from now
func (t *Token) Apply(results Results) {
	now := time.Now().UTC()
	t.locker.Lock()
	defer t.locker.Unlock()
	t.AccessToken = results.AccessToken
	t.RefreshToken = results.RefreshToken
	t.AccessTokenExpiryUTC = now.Add(time.Duration(results.ExpiresIn) * time.Second)
	if results.RefreshTokenExpiresIn > 0 {
		t.RefreshTokenExpiryUTC = now.Add(time.Duration(results.RefreshTokenExpiresIn) * time.Second)
	} else {
		t.RefreshTokenExpiryUTC = now.Add(t.refreshTokenLifetime)
	}
	log.WithFields(log.Fields{
		"access_expiry":  t.AccessTokenExpiryUTC,
		"refresh_expiry": t.RefreshTokenExpiryUTC,
	}).Debug("token applied")
}

// postToken calls the token endpoint with the given grant, using basic
// authentication with the client id and secret
func (t *Token) postToken(ctx context.Context, form url.Values) (*Results, error) {

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.clientID, t.clientSecret)

	resp, err := t.httpclient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			body = []byte("could not read body")
		}
		return nil, &HTTPClientError{resp.StatusCode, string(body)}
	}

	var results Results
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("json decoding error: %w", err)
	}
	if results.AccessToken == "" || results.RefreshToken == "" || results.ExpiresIn == 0 {
		return nil, errors.New("empty response received from server")
	}
	return &results, nil
}

// GetToken exchanges an authorization code for a token and refresh
// token, recording the realm the code was issued for
func (t *Token) GetToken(ctx context.Context, code, realmID string) error {

	form := url.Values{}
	form.Add("grant_type", "authorization_code")
	form.Add("code", code)
	form.Add("redirect_uri", t.redirectURL)

	results, err := t.postToken(ctx, form)
	metrics.ObserveToken("authorization_code", err)
	if err != nil {
		return err
	}
	t.Apply(*results)

	if realmID != "" {
		t.locker.Lock()
		if t.RealmID != "" && t.RealmID != realmID {
			log.WithFields(log.Fields{
				"configured": t.RealmID,
				"callback":   realmID,
			}).Warn("callback realm differs from configured realm, using callback realm")
		}
		t.RealmID = realmID
		t.locker.Unlock()
	}
	return nil
}

// refresh uses the refresh token to retrieve a new token and refresh
// token
func (t *Token) refresh(ctx context.Context) (string, error) {

	t.locker.RLock()
	refreshToken := t.RefreshToken
	t.locker.RUnlock()

	if refreshToken == "" {
		return "", ErrNotConnected
	}

	form := url.Values{}
	form.Add("grant_type", "refresh_token")
	form.Add("refresh_token", refreshToken)

	results, err := t.postToken(ctx, form)
	metrics.ObserveToken("refresh_token", err)
	if err != nil {
		return "", fmt.Errorf("refresh failed: %w", err)
	}
	t.Apply(*results)

	log.WithField("refresh_token", mask(results.RefreshToken)).Info("token refreshed")
	return results.AccessToken, nil
}

// Refresh forces a refresh of the access token
func (t *Token) Refresh(ctx context.Context) error {
	_, err, _ := t.flight.Do("refresh", func() (interface{}, error) {
		return t.refresh(context.WithoutCancel(ctx))
	})
	return err
}

// validLocked reports if the access token can be handed out; the caller
// holds the locker
func (t *Token) validLocked() bool {
	now := time.Now().UTC()
	return t.AccessToken != "" && t.AccessTokenExpiryUTC.Add(-t.expirySecs).After(now)
}

// Get returns a valid access token, refreshing it first if it is absent
// or expired. Some latitude (expirySecs) is allowed when determining
// expiration.
func (t *Token) Get(ctx context.Context) (string, error) {
	t.locker.RLock()
	if t.validLocked() {
		accessToken := t.AccessToken
		t.locker.RUnlock()
		return accessToken, nil
	}
	t.locker.RUnlock()

	v, err, _ := t.flight.Do("refresh", func() (interface{}, error) {
		// another flight may have completed a refresh in the meantime
		t.locker.RLock()
		if t.validLocked() {
			accessToken := t.AccessToken
			t.locker.RUnlock()
			return accessToken, nil
		}
		t.locker.RUnlock()
		log.Debug("access token expired, running refresh")
		return t.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Revoke revokes the refresh token, and with it the connection to the
// QuickBooks company, then clears the record
// See https://developer.intuit.com/app/developer/qbo/docs/develop/authentication-and-authorization/oauth-2.0#revoke-token-disconnect
func (t *Token) Revoke(ctx context.Context) error {

	t.locker.RLock()
	refreshToken := t.RefreshToken
	t.locker.RUnlock()

	if refreshToken == "" {
		return ErrNotConnected
	}

	body, err := json.Marshal(map[string]string{"token": refreshToken})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.revokeURL, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(t.clientID, t.clientSecret)

	resp, err := t.httpclient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			body = []byte("could not read body")
		}
		return &HTTPClientError{resp.StatusCode, string(body)}
	}

	t.clear()
	return nil
}

// clear empties the record
func (t *Token) clear() {
	t.locker.Lock()
	t.AccessToken = ""
	t.RefreshToken = ""
	t.RealmID = ""
	t.AccessTokenExpiryUTC = time.Time{}
	t.RefreshTokenExpiryUTC = time.Time{}
	t.locker.Unlock()
}
