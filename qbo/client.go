// Package qbo is a small client for the QuickBooks Online accounting
// API covering the entity queries and bill creation the bridge needs.
package qbo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/maneframe/qbbillbridge/metrics"
)

// ProductionBaseURL is the QuickBooks Online production api host
const ProductionBaseURL = "https://quickbooks.api.intuit.com"

// SandboxBaseURL is the QuickBooks Online sandbox api host
const SandboxBaseURL = "https://sandbox-quickbooks.api.intuit.com"

// DefaultMinorVersion is the api schema revision requested when none is
// configured
const DefaultMinorVersion = "75"

// DefaultMaxResults caps the rows returned by a query
const DefaultMaxResults = 1000

// ErrNoRealm is returned when no QuickBooks company has been connected
var ErrNoRealm = errors.New("no quickbooks realm id")

// TokenSource supplies bearer tokens and the realm they are scoped to
type TokenSource interface {
	Get(ctx context.Context) (string, error)
	Realm() string
}

// Client calls the accounting api on behalf of a single realm
type Client struct {
	baseURL      string
	minorVersion string
	tokens       TokenSource
	httpclient   *http.Client
	requestID    func() string
}

// Response is a raw api response, relayed as is by the bridge
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// BaseURL returns the api host for the "sandbox" or "production"
// environment
func BaseURL(environment string) (string, error) {
	switch strings.ToLower(environment) {
	case "sandbox", "":
		return SandboxBaseURL, nil
	case "production":
		return ProductionBaseURL, nil
	}
	return "", fmt.Errorf("unknown quickbooks environment %q", environment)
}

// NewClient returns a Client for baseURL
func NewClient(baseURL, minorVersion string, tokens TokenSource, timeout time.Duration) *Client {
	if minorVersion == "" {
		minorVersion = DefaultMinorVersion
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		minorVersion: minorVersion,
		tokens:       tokens,
		httpclient:   &http.Client{Timeout: timeout},
		requestID:    uuid.NewString,
	}
}

// endpoint builds the url of a company resource
func (c *Client) endpoint(realm, resource string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("minorversion", c.minorVersion)
	return fmt.Sprintf("%s/v3/company/%s/%s?%s",
		c.baseURL, url.PathEscape(realm), resource, params.Encode())
}

// do sends an authenticated request for op, returning the raw response
func (c *Client) do(ctx context.Context, op, method, resource string, params url.Values, body []byte) (*Response, error) {

	realm := c.tokens.Realm()
	if realm == "" {
		return nil, ErrNoRealm
	}
	accessToken, err := c.tokens.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get valid token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(realm, resource, params), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpclient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(op, 0, start)
		return nil, fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream(op, resp.StatusCode, start)

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s body read error: %w", op, err)
	}
	log.WithFields(log.Fields{
		"op":         op,
		"realm_id":   realm,
		"status":     resp.StatusCode,
		"intuit_tid": resp.Header.Get("intuit_tid"),
	}).Debug("quickbooks call")

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        b,
	}, nil
}

// Query runs a read-only query for entity and returns its rows, or an
// empty slice if there are none
func (c *Client) Query(ctx context.Context, entity string, filters ...Filter) ([]json.RawMessage, error) {

	statement, err := Statement(entity, DefaultMaxResults, filters...)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("query", statement)

	resp, err := c.do(ctx, "query", http.MethodGet, "query", params, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, decodeFault(resp)
	}

	var results struct {
		QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
	}
	if err := json.Unmarshal(resp.Body, &results); err != nil {
		return nil, fmt.Errorf("query json decoding error: %w", err)
	}
	rows := []json.RawMessage{}
	if raw, ok := results.QueryResponse[entity]; ok {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("query %s rows decoding error: %w", entity, err)
		}
	}
	return rows, nil
}

// CreateBill submits bill. The provider's response is returned whatever
// its status; an error means no response was received.
func (c *Client) CreateBill(ctx context.Context, bill *Bill) (*Response, error) {
	body, err := json.Marshal(bill)
	if err != nil {
		return nil, fmt.Errorf("bill json encoding error: %w", err)
	}
	params := url.Values{}
	// requestid makes retried submissions idempotent on the Intuit side
	params.Set("requestid", c.requestID())
	return c.do(ctx, "bill", http.MethodPost, "bill", params, body)
}
