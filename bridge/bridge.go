// Package bridge provides the http handlers the internal system calls:
// liveness checks, vendor and account lookups and bill creation.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maneframe/qbbillbridge/qbo"
	"github.com/maneframe/qbbillbridge/token"
)

// AliveMessage is the body of the root liveness check
const AliveMessage = "Maneframe Finance Bridge Alive ✅"

const notConnectedMsg = "QuickBooks is not connected; authorise at /auth/qb/start"

// Accounting is the part of the QuickBooks client used by the handlers
type Accounting interface {
	Query(ctx context.Context, entity string, filters ...qbo.Filter) ([]json.RawMessage, error)
	CreateBill(ctx context.Context, bill *qbo.Bill) (*qbo.Response, error)
}

// Handler serves the bridge routes
type Handler struct {
	accounting     Accounting
	expenseAccount string
	validate       *billValidator
}

// NewHandler returns a Handler booking bills against expenseAccount
// unless a request names its own account
func NewHandler(accounting Accounting, expenseAccount string) *Handler {
	return &Handler{
		accounting:     accounting,
		expenseAccount: expenseAccount,
		validate:       newBillValidator(),
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON writes v with status
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("response encoding error")
	}
}

// upstreamError reports a failed QuickBooks call. A missing connection
// is a 401; everything else is a 500 with a short fixed message, the
// provider's detail only going to the log.
func upstreamError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, token.ErrNotConnected) || errors.Is(err, qbo.ErrNoRealm) {
		log.WithError(err).Warn(msg)
		writeJSON(w, http.StatusUnauthorized, errorBody{notConnectedMsg})
		return
	}
	entry := log.WithError(err)
	var fe *qbo.FaultError
	if errors.As(err, &fe) {
		entry = entry.WithField("body", string(fe.Body))
	}
	entry.Error(msg)
	writeJSON(w, http.StatusInternalServerError, errorBody{msg})
}

// HandleRoot is the plain text liveness check
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(AliveMessage))
}

// HandlePing is the json liveness check
func (h *Handler) HandlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"ping": "pong",
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleVendors lists vendors. The optional "name" parameter matches
// display names containing it; "active" restricts to (in)active vendors.
func (h *Handler) HandleVendors(w http.ResponseWriter, r *http.Request) {
	filters, err := lookupFilters(r, "DisplayName")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{err.Error()})
		return
	}
	rows, err := h.accounting.Query(r.Context(), "Vendor", filters...)
	if err != nil {
		upstreamError(w, "failed to fetch vendors", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleAccounts lists accounts, optionally filtered by "name",
// "active" and "type" (the QuickBooks AccountType, eg "Expense")
func (h *Handler) HandleAccounts(w http.ResponseWriter, r *http.Request) {
	filters, err := lookupFilters(r, "Name")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{err.Error()})
		return
	}
	if accountType := r.URL.Query().Get("type"); accountType != "" {
		filters = append(filters, qbo.Filter{Field: "AccountType", Op: "=", Value: accountType})
	}
	rows, err := h.accounting.Query(r.Context(), "Account", filters...)
	if err != nil {
		upstreamError(w, "failed to fetch accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// lookupFilters reads the name and active parameters common to lookups
func lookupFilters(r *http.Request, nameField string) ([]qbo.Filter, error) {
	var filters []qbo.Filter
	q := r.URL.Query()
	if name := q.Get("name"); name != "" {
		filters = append(filters, qbo.Filter{Field: nameField, Op: "LIKE", Value: "%" + name + "%"})
	}
	if active := q.Get("active"); active != "" {
		b, err := strconv.ParseBool(active)
		if err != nil {
			return nil, errors.New("active must be true or false")
		}
		filters = append(filters, qbo.Filter{Field: "Active", Op: "=", Value: b})
	}
	return filters, nil
}

// HandleBills creates a bill and relays the QuickBooks response,
// success or fault, unchanged
func (h *Handler) HandleBills(w http.ResponseWriter, r *http.Request) {
	var req BillRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{"invalid json body"})
		return
	}
	if err := h.validate.check(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{err.Error()})
		return
	}

	bill, err := req.Bill(h.expenseAccount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{err.Error()})
		return
	}
	resp, err := h.accounting.CreateBill(r.Context(), bill)
	if err != nil {
		upstreamError(w, "failed to create bill", err)
		return
	}

	entry := log.WithFields(log.Fields{
		"vendor_id": req.VendorID,
		"amount":    *req.Amount,
		"status":    resp.StatusCode,
	})
	if resp.OK() {
		entry.Info("bill created")
	} else {
		entry.WithField("body", string(resp.Body)).Warn("bill rejected by QuickBooks")
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}
