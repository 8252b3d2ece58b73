package token

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const notConnectedMsg = "QuickBooks is not connected; authorise at /auth/qb/start"

// HandleStart begins the oauth flow by redirecting to the Intuit
// authorization page
func (t *Token) HandleStart(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, t.AuthURL(), http.StatusFound)
}

// HandleCallback is the redirect target of the Intuit authorization
// page. The state string is checked against those issued by HandleStart
// to refuse spoofed callouts, then the code is exchanged for a token.
func (t *Token) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if e := query.Get("error"); e != "" {
		msg := fmt.Sprintf("authorization refused: %s", e)
		log.WithField("description", query.Get("error_description")).Warn(msg)
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	code := strings.TrimSpace(query.Get("code"))
	if code == "" {
		msg := "No code to extract"
		log.Warn(msg)
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	if err := t.VerifyState(query.Get("state")); err != nil {
		msg := fmt.Sprintf("state verification failed: %s", err)
		log.Warn(msg)
		http.Error(w, msg, http.StatusForbidden)
		return
	}

	realmID := query.Get("realmId")
	err := t.GetToken(r.Context(), code, realmID)
	if err != nil {
		log.WithError(err).Error("token exchange failed")
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}
	log.WithField("realm_id", realmID).Info("QuickBooks connected")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><title>QuickBooks connected</title><body>")
	fmt.Fprint(w, "<h4>QuickBooks connected</h4>")
	fmt.Fprintf(w, "<p>Tokens stored for company %s.</p>", html.EscapeString(t.Realm()))
	fmt.Fprint(w, `<p>View the connection <a href="/auth/qb/status">status</a> `)
	fmt.Fprint(w, `or <a href="/qb/vendors">list vendors</a>.</p>`)
	fmt.Fprint(w, "</body></html>")
}

// HandleStatus reports whether the bridge is connected, without
// revealing the tokens
func (t *Token) HandleStatus(w http.ResponseWriter, r *http.Request) {
	j, err := t.StatusJSON()
	if err != nil {
		msg := fmt.Sprintf("status json encoding error: %s", err)
		log.Error(msg)
		http.Error(w, msg, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(j)
}

// HandleRefresh forces a token refresh, redirecting to the status
// endpoint if successful
func (t *Token) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if !t.Connected() {
		log.Warn(notConnectedMsg)
		http.Error(w, notConnectedMsg, http.StatusUnauthorized)
		return
	}
	n := time.Now()
	err := t.Refresh(r.Context())
	if err != nil {
		log.WithError(err).Error("refresh failed")
		http.Error(w, "token refresh failed", http.StatusInternalServerError)
		return
	}
	log.Debugf("Refresh took: %s", time.Since(n))
	http.Redirect(w, r, "/auth/qb/status", http.StatusFound)
}

// HandleDisconnect revokes the tokens and forgets the company
func (t *Token) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	err := t.Revoke(r.Context())
	if errors.Is(err, ErrNotConnected) {
		http.Error(w, notConnectedMsg, http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.WithError(err).Error("revoke failed")
		http.Error(w, "token revocation failed", http.StatusInternalServerError)
		return
	}
	log.Info("QuickBooks disconnected")
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"disconnected"}`))
}
