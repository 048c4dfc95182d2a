// Package api provides the HTTP handlers for the ledger: registration,
// bidding, settlement, withdrawal and the read-only queries.
//
// All monetary values use shopspring/decimal, encoded as JSON strings of
// integral base units.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/adledger/internal/auth"
	"github.com/atmx/adledger/internal/events"
	"github.com/atmx/adledger/internal/ledger"
	"github.com/atmx/adledger/internal/model"
	"github.com/atmx/adledger/internal/treasury"
)

// Handler exposes a ledger.Engine over HTTP.
type Handler struct {
	engine *ledger.Engine
}

// NewHandler creates a new HTTP handler set for engine.
func NewHandler(engine *ledger.Engine) *Handler {
	return &Handler{engine: engine}
}

// --- Request/Response types ---

// InitializeRequest is the JSON body for POST /initialize.
type InitializeRequest struct {
	Owner string `json:"owner"`
}

// BidRequest is the JSON body for POST /bids. Value is the amount the
// caller transfers into escrow with the bid.
type BidRequest struct {
	DeclaredAmount decimal.Decimal `json:"declared_amount"`
	Value          decimal.Decimal `json:"value"`
}

// SettleRequest is the JSON body for POST /bids/{bidID}/settle.
type SettleRequest struct {
	Shareholders []string          `json:"shareholders"`
	Shares       []decimal.Decimal `json:"shares"`
}

// WithdrawRequest is the JSON body for POST /withdrawals.
type WithdrawRequest struct {
	Beneficiary string `json:"beneficiary"`
}

// AddressRequest is the JSON body for PUT /trusted-service and PUT /owner.
type AddressRequest struct {
	Address string `json:"address"`
}

// BidView is the JSON form of a bid.
type BidView struct {
	ID             uint64          `json:"id"`
	Sender         string          `json:"sender"`
	DeclaredAmount decimal.Decimal `json:"declared_amount"`
	EscrowedValue  decimal.Decimal `json:"escrowed_value"`
	Settled        bool            `json:"settled"`
	CreatedAt      time.Time       `json:"created_at"`
}

// BidResponse is returned from POST /bids.
type BidResponse struct {
	Bid   BidView        `json:"bid"`
	Event events.Message `json:"event"`
}

// WithdrawResponse is returned from POST /withdrawals.
type WithdrawResponse struct {
	Beneficiary string          `json:"beneficiary"`
	Amount      decimal.Decimal `json:"amount"`
	Event       events.Message  `json:"event"`
}

// BalanceResponse is returned from GET /balances/{address}.
type BalanceResponse struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

// TotalBalanceResponse is returned from GET /balance.
type TotalBalanceResponse struct {
	TotalBalance decimal.Decimal `json:"total_balance"`
}

// AccessResponse is returned from GET /access.
type AccessResponse struct {
	Initialized    bool   `json:"initialized"`
	Owner          string `json:"owner,omitempty"`
	TrustedService string `json:"trusted_service,omitempty"`
}

func newBidView(b model.Bid) BidView {
	return BidView{
		ID:             b.ID,
		Sender:         b.Sender.String(),
		DeclaredAmount: b.DeclaredAmount,
		EscrowedValue:  b.EscrowedValue,
		Settled:        b.Settled,
		CreatedAt:      b.CreatedAt,
	}
}

// --- HTTP Handlers ---

// Initialize handles POST /api/v1/initialize
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "InvalidRequest", "invalid request body", http.StatusBadRequest)
		return
	}
	owner, err := model.ParseAddress(req.Owner)
	if err != nil {
		writeError(w, "InvalidRequest", err.Error(), http.StatusBadRequest)
		return
	}

	ev, err := h.engine.Initialize(r.Context(), owner)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, events.NewMessage(ev))
}

// GetName handles GET /api/v1/name
func (h *Handler) GetName(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"name": h.engine.Name()})
}

// GetAccess handles GET /api/v1/access
func (h *Handler) GetAccess(w http.ResponseWriter, r *http.Request) {
	acc, initialized := h.engine.Access()
	resp := AccessResponse{Initialized: initialized}
	if initialized {
		resp.Owner = acc.Owner.String()
		resp.TrustedService = acc.TrustedService.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Register handles POST /api/v1/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	ev, err := h.engine.Register(r.Context(), caller)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, events.NewMessage(ev))
}

// IsRegistered handles GET /api/v1/registered/{address}
func (h *Handler) IsRegistered(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	addr, err := model.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, "InvalidRequest", err.Error(), http.StatusBadRequest)
		return
	}

	registered, err := h.engine.IsRegistered(caller, addr)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":    addr.String(),
		"registered": registered,
	})
}

// PlaceBid handles POST /api/v1/bids
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "InvalidRequest", "invalid request body", http.StatusBadRequest)
		return
	}

	bid, ev, err := h.engine.Bid(r.Context(), caller, req.DeclaredAmount, req.Value)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BidResponse{
		Bid:   newBidView(bid),
		Event: events.NewMessage(ev),
	})
}

// GetBid handles GET /api/v1/bids/{bidID}
func (h *Handler) GetBid(w http.ResponseWriter, r *http.Request) {
	id, ok := bidIDParam(w, r)
	if !ok {
		return
	}

	bid, err := h.engine.GetBid(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBidView(bid))
}

// ListBids handles GET /api/v1/bids
// Returns all bids, optionally filtered by ?sender=<address>.
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	var bids []model.Bid
	if s := r.URL.Query().Get("sender"); s != "" {
		sender, err := model.ParseAddress(s)
		if err != nil {
			writeError(w, "InvalidRequest", err.Error(), http.StatusBadRequest)
			return
		}
		bids = h.engine.BidsBySender(sender)
	} else {
		bids = h.engine.ListBids()
	}

	views := make([]BidView, 0, len(bids))
	for _, b := range bids {
		views = append(views, newBidView(b))
	}
	writeJSON(w, http.StatusOK, views)
}

// Settle handles POST /api/v1/bids/{bidID}/settle
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := bidIDParam(w, r)
	if !ok {
		return
	}
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "InvalidRequest", "invalid request body", http.StatusBadRequest)
		return
	}

	// Malformed strings become the zero address so the engine reports them
	// as invalid shareholders, in list order, after its access checks.
	holders := make([]model.Address, len(req.Shareholders))
	for i, s := range req.Shareholders {
		if addr, err := model.ParseAddress(s); err == nil {
			holders[i] = addr
		}
	}

	ev, err := h.engine.Settle(r.Context(), caller, id, holders, req.Shares)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events.NewMessage(ev))
}

// Withdraw handles POST /api/v1/withdrawals
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "InvalidRequest", "invalid request body", http.StatusBadRequest)
		return
	}
	beneficiary, err := model.ParseAddress(req.Beneficiary)
	if err != nil {
		writeError(w, "InvalidRequest", err.Error(), http.StatusBadRequest)
		return
	}

	amount, ev, err := h.engine.WithdrawMoney(r.Context(), caller, beneficiary)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WithdrawResponse{
		Beneficiary: beneficiary.String(),
		Amount:      amount,
		Event:       events.NewMessage(ev),
	})
}

// GetTotalBalance handles GET /api/v1/balance
func (h *Handler) GetTotalBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TotalBalanceResponse{TotalBalance: h.engine.TotalBalance()})
}

// GetBalance handles GET /api/v1/balances/{address}
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := model.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, "InvalidRequest", err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{
		Address: addr.String(),
		Balance: h.engine.BalanceOf(addr),
	})
}

// SetTrustedService handles PUT /api/v1/trusted-service
func (h *Handler) SetTrustedService(w http.ResponseWriter, r *http.Request) {
	h.updateAccess(w, r, h.engine.SetTrustedService)
}

// TransferOwnership handles PUT /api/v1/owner
func (h *Handler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	h.updateAccess(w, r, h.engine.TransferOwnership)
}

type accessUpdate func(ctx context.Context, caller, target model.Address) (model.Event, error)

func (h *Handler) updateAccess(w http.ResponseWriter, r *http.Request, update accessUpdate) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req AddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "InvalidRequest", "invalid request body", http.StatusBadRequest)
		return
	}
	target, err := model.ParseAddress(req.Address)
	if err != nil {
		writeError(w, "InvalidRequest", err.Error(), http.StatusBadRequest)
		return
	}

	ev, err := update(r.Context(), caller, target)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events.NewMessage(ev))
}

// ListEvents handles GET /api/v1/events?after=<seq>&limit=<n>
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if s := q.Get("after"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, "InvalidRequest", "after must be a non-negative integer", http.StatusBadRequest)
			return
		}
		after = v
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			writeError(w, "InvalidRequest", "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = v
	}

	evs := h.engine.Events(after, limit)
	msgs := make([]events.Message, 0, len(evs))
	for _, ev := range evs {
		msgs = append(msgs, events.NewMessage(ev))
	}
	writeJSON(w, http.StatusOK, msgs)
}

// --- helpers ---

func requireCaller(w http.ResponseWriter, r *http.Request) (model.Address, bool) {
	caller, ok := auth.Caller(r.Context())
	if !ok {
		writeError(w, "Unauthenticated", "caller credentials required", http.StatusUnauthorized)
		return model.ZeroAddress, false
	}
	return caller, true
}

func bidIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "bidID"), 10, 64)
	if err != nil {
		writeError(w, "InvalidRequest", "bid id must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// statusFor maps a ledger failure to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized),
		errors.Is(err, ledger.ErrNotRegistered):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrBidNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAlreadyRegistered),
		errors.Is(err, ledger.ErrBidAlreadySettled),
		errors.Is(err, ledger.ErrAlreadyInitialized),
		errors.Is(err, ledger.ErrNotInitialized),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, treasury.ErrInsufficientReserve):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrIncorrectAmount),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidShareholder),
		errors.Is(err, ledger.ErrShareMismatch),
		errors.Is(err, ledger.ErrShareSumMismatch),
		errors.Is(err, ledger.ErrNothingToWithdraw),
		errors.Is(err, ledger.ErrInvalidIdentity):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeLedgerError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	kind := ledger.Kind(err)
	msg := err.Error()
	if errors.Is(err, treasury.ErrInsufficientReserve) {
		kind = "InsufficientReserve"
	} else if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, kind, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, kind, message string, status int) {
	writeJSON(w, status, map[string]string{"error": kind, "message": message})
}
