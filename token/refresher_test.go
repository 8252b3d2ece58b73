package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRefresher(t *testing.T) {
	token := initToken()
	token.RefreshToken = "def"

	now := time.Now().UTC()

	token.expireTimeTicker = 40 * time.Millisecond
	token.RefreshTokenExpiryUTC = now.Add(200 * time.Millisecond)
	token.refreshWindow = 500 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	after := time.After(130 * time.Millisecond)
	refresher := token.refresher(ctx)

	counter := 0
loop:
	for {
		select {
		case <-refresher:
			counter++
			break loop
		case <-after:
			t.Errorf("Timeout triggered")
			break loop
		}
	}
	if counter != 1 {
		t.Errorf("Expected 1 tick during test, got %d", counter)
	}
}

func TestRefresherNotExpiring(t *testing.T) {
	token := initToken()
	token.RefreshToken = "def"
	token.expireTimeTicker = 10 * time.Millisecond
	token.RefreshTokenExpiryUTC = time.Now().UTC().Add(30 * 24 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	refresher := token.refresher(ctx)

	select {
	case <-refresher:
		t.Error("refresher fired for a token far from expiry")
	case <-time.After(60 * time.Millisecond):
	}

	// cancelling closes the channel
	cancel()
	select {
	case _, ok := <-refresher:
		if ok {
			t.Error("refresher fired after cancel")
		}
	case <-time.After(time.Second):
		t.Error("refresher channel not closed after cancel")
	}
}

func TestExpiringNotConnected(t *testing.T) {
	token := initToken()
	if token.expiring() {
		t.Error("a token without a refresh token cannot be expiring")
	}
}

func TestTriggerRefreshRunner(t *testing.T) {
	token := initToken()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"access_token": "abc", "refresh_token": "def", "expires_in": 3600}`))
	}))
	defer server.Close()

	token.tokenURL = server.URL
	token.AccessToken = "ghi"
	token.RefreshToken = "jkl"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresher := make(chan struct{})
	token.refreshRunner(ctx, refresher)
	refresher <- struct{}{}
	close(refresher)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if token.Status().AccessTokenValid {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	token.locker.RLock()
	defer token.locker.RUnlock()
	if token.AccessToken != "abc" {
		t.Errorf("access token error have(%s) want(%s)", token.AccessToken, "abc")
	}
	if token.RefreshToken != "def" {
		t.Errorf("refresh token error have(%s) want(%s)", token.RefreshToken, "def")
	}
}
