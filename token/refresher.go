package token

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Keepalive starts goroutines that refresh the token whenever the
// refresh token comes within refreshWindow of its expiry, checking every
// interval. A bridge that is rarely called otherwise loses its
// connection once the refresh token lapses. The goroutines stop when
// ctx is cancelled.
func (t *Token) Keepalive(ctx context.Context, interval time.Duration) {
	if interval > 0 {
		t.expireTimeTicker = interval
	}
	t.refreshRunner(ctx, t.refresher(ctx))
}

// refresher returns a channel which receives a value each tick on which
// the refresh token is expiring
func (t *Token) refresher(ctx context.Context) <-chan struct{} {
	ticker := time.NewTicker(t.expireTimeTicker)
	refresher := make(chan struct{})
	go func() {
		defer ticker.Stop()
		defer close(refresher)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !t.expiring() {
					continue
				}
				select {
				case refresher <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return refresher
}

// expiring reports if a refresh token is held and is within
// refreshWindow of expiring
func (t *Token) expiring() bool {
	t.locker.RLock()
	defer t.locker.RUnlock()
	if t.RefreshToken == "" {
		return false
	}
	now := time.Now().UTC()
	return t.RefreshTokenExpiryUTC.Add(-t.refreshWindow).Before(now)
}

// refreshRunner refreshes the token for each value received; separated
// from the refresher function to allow for testing
func (t *Token) refreshRunner(ctx context.Context, refresher <-chan struct{}) {
	go func() {
		for range refresher {
			if err := t.Refresh(ctx); err != nil {
				log.WithError(err).Error("background refresh failed")
			}
		}
	}()
}
