// Package ledger is the escrow and auction accounting engine: participant
// registry, bid escrow, settlement of a bid's funds among shareholders and
// owner-driven withdrawal, all behind owner and trusted-service gates.
//
// Engine serializes every mutation behind one lock. A mutation validates
// against the in-memory state without touching it, commits the resulting
// model.Change (together with the value transfer) through the store, and
// only then folds the change into memory. Any failure leaves state as it was.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/adledger/internal/metrics"
	"github.com/atmx/adledger/internal/model"
	"github.com/atmx/adledger/internal/store"
	"github.com/atmx/adledger/internal/treasury"
)

// Publisher receives every committed event, in commit order. Implementations
// must not block.
type Publisher interface {
	Publish(e model.Event)
}

// Engine is the ledger facade.
type Engine struct {
	mu       sync.RWMutex
	params   Params
	state    *model.State
	store    store.Store
	treasury treasury.Treasury
	pubs     []Publisher
	now      func() time.Time
}

// NewEngine restores state from st and returns a ready engine.
func NewEngine(ctx context.Context, st store.Store, tr treasury.Treasury, params Params, pubs ...Publisher) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	state, err := st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	e := &Engine{
		params:   params,
		state:    state,
		store:    st,
		treasury: tr,
		pubs:     pubs,
		now:      time.Now,
	}
	e.refreshGauges()

	slog.Info("ledger restored",
		"initialized", state.Initialized,
		"participants", len(state.Registered),
		"bids", len(state.Bids),
		"total_balance", state.TotalBalance.String(),
	)
	return e, nil
}

// --- Mutations ---

// Initialize sets the owner once. The trusted service starts out as the
// owner.
func (e *Engine) Initialize(ctx context.Context, owner model.Address) (ev model.Event, err error) {
	defer func() { observe("initialize", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Initialized {
		return model.Event{}, fmt.Errorf("%w: owner is %s", ErrAlreadyInitialized, e.state.Access.Owner)
	}
	if owner.IsZero() {
		return model.Event{}, fmt.Errorf("%w: owner must not be the zero address", ErrInvalidIdentity)
	}

	ev = e.newEvent(model.EventInitialized, owner, owner, 0, decimal.Zero)
	change := model.Change{
		Access: &model.Access{Owner: owner, TrustedService: owner},
		Event:  ev,
	}
	if err := e.commit(ctx, "initialize", change, nil, nil); err != nil {
		return model.Event{}, err
	}

	slog.Info("ledger initialized", "owner", owner.String())
	return ev, nil
}

// Register marks caller as a registered participant.
func (e *Engine) Register(ctx context.Context, caller model.Address) (ev model.Event, err error) {
	defer func() { observe("register", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInitialized(); err != nil {
		return model.Event{}, err
	}
	if caller.IsZero() {
		return model.Event{}, fmt.Errorf("%w: zero address cannot register", ErrInvalidIdentity)
	}
	if err := checkRegister(e.state, caller); err != nil {
		return model.Event{}, err
	}

	ev = e.newEvent(model.EventRegistered, caller, caller, 0, decimal.Zero)
	change := model.Change{
		Register: &caller,
		Event:    ev,
	}
	if err := e.commit(ctx, "register", change, nil, nil); err != nil {
		return model.Event{}, err
	}

	slog.Info("participant registered", "address", caller.String())
	return ev, nil
}

// Bid escrows transferred from caller against a declared amount. The
// transferred value must equal declared × EscrowMultiplier.
func (e *Engine) Bid(ctx context.Context, caller model.Address, declared, transferred decimal.Decimal) (bid model.Bid, ev model.Event, err error) {
	defer func() { observe("bid", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInitialized(); err != nil {
		return model.Bid{}, model.Event{}, err
	}
	bid, err = planBid(e.state, e.params, caller, declared, transferred, e.now().UTC())
	if err != nil {
		return model.Bid{}, model.Event{}, err
	}

	total := e.state.TotalBalance.Add(transferred)
	ev = e.newEvent(model.EventBidRecorded, caller, caller, bid.ID, transferred)
	change := model.Change{
		Bid:          &bid,
		TotalBalance: &total,
		Event:        ev,
	}
	collect := func(ctx context.Context) error {
		return e.treasury.Collect(ctx, caller, transferred)
	}
	refund := func(ctx context.Context) error {
		return e.treasury.Payout(ctx, caller, transferred)
	}
	if err := e.commit(ctx, "bid", change, collect, refund); err != nil {
		return model.Bid{}, model.Event{}, err
	}
	metrics.EscrowVolume.Add(floatOf(transferred))

	slog.Info("bid recorded",
		"bid_id", bid.ID,
		"sender", caller.String(),
		"declared", declared.String(),
		"escrowed", transferred.String(),
	)
	return bid, ev, nil
}

// Settle splits a bid's escrow among shareholders. Only the trusted service
// may call it. The whole batch is validated before any balance is credited.
func (e *Engine) Settle(ctx context.Context, caller model.Address, bidID uint64, shareholders []model.Address, shares []decimal.Decimal) (ev model.Event, err error) {
	defer func() { observe("settle", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInitialized(); err != nil {
		return model.Event{}, err
	}
	plan, err := planSettlement(e.state, e.params, caller, bidID, shareholders, shares)
	if err != nil {
		return model.Event{}, err
	}

	distributed := decimal.Sum(decimal.Zero, shares...)
	ev = e.newEvent(model.EventSettled, caller, plan.bid.Sender, bidID, distributed)
	change := model.Change{
		Bid:      &plan.bid,
		Balances: plan.balances,
		Event:    ev,
	}
	if err := e.commit(ctx, "settle", change, nil, nil); err != nil {
		return model.Event{}, err
	}

	slog.Info("bid settled",
		"bid_id", bidID,
		"shareholders", len(shareholders),
		"distributed", distributed.String(),
		"escrowed", plan.bid.EscrowedValue.String(),
	)
	return ev, nil
}

// WithdrawMoney pays beneficiary's entire withdrawable balance out of the
// ledger. Owner only.
func (e *Engine) WithdrawMoney(ctx context.Context, caller, beneficiary model.Address) (amount decimal.Decimal, ev model.Event, err error) {
	defer func() { observe("withdraw", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInitialized(); err != nil {
		return decimal.Zero, model.Event{}, err
	}
	amount, err = planWithdraw(e.state, caller, beneficiary)
	if err != nil {
		return decimal.Zero, model.Event{}, err
	}

	total := e.state.TotalBalance.Sub(amount)
	ev = e.newEvent(model.EventWithdrawn, caller, beneficiary, 0, amount)
	change := model.Change{
		Balances:     map[model.Address]decimal.Decimal{beneficiary: decimal.Zero},
		TotalBalance: &total,
		Event:        ev,
	}
	payout := func(ctx context.Context) error {
		return e.treasury.Payout(ctx, beneficiary, amount)
	}
	reclaim := func(ctx context.Context) error {
		return e.treasury.Collect(ctx, beneficiary, amount)
	}
	if err := e.commit(ctx, "withdraw", change, payout, reclaim); err != nil {
		return decimal.Zero, model.Event{}, err
	}
	metrics.WithdrawnVolume.Add(floatOf(amount))

	slog.Info("balance withdrawn",
		"beneficiary", beneficiary.String(),
		"amount", amount.String(),
		"total_balance", total.String(),
	)
	return amount, ev, nil
}

// SetTrustedService replaces the settlement authority. Owner only.
func (e *Engine) SetTrustedService(ctx context.Context, caller, service model.Address) (ev model.Event, err error) {
	defer func() { observe("set_trusted_service", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInitialized(); err != nil {
		return model.Event{}, err
	}
	if err := requireOwner(e.state.Access, caller); err != nil {
		return model.Event{}, err
	}
	if service.IsZero() {
		return model.Event{}, fmt.Errorf("%w: trusted service must not be the zero address", ErrInvalidIdentity)
	}

	ev = e.newEvent(model.EventTrustedServiceChanged, caller, service, 0, decimal.Zero)
	change := model.Change{
		Access: &model.Access{Owner: e.state.Access.Owner, TrustedService: service},
		Event:  ev,
	}
	if err := e.commit(ctx, "set_trusted_service", change, nil, nil); err != nil {
		return model.Event{}, err
	}

	slog.Info("trusted service changed", "service", service.String())
	return ev, nil
}

// TransferOwnership hands the owner role to newOwner. Owner only. The
// trusted service is left as it is.
func (e *Engine) TransferOwnership(ctx context.Context, caller, newOwner model.Address) (ev model.Event, err error) {
	defer func() { observe("transfer_ownership", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInitialized(); err != nil {
		return model.Event{}, err
	}
	if err := requireOwner(e.state.Access, caller); err != nil {
		return model.Event{}, err
	}
	if newOwner.IsZero() {
		return model.Event{}, fmt.Errorf("%w: new owner must not be the zero address", ErrInvalidIdentity)
	}

	ev = e.newEvent(model.EventOwnershipTransferred, caller, newOwner, 0, decimal.Zero)
	change := model.Change{
		Access: &model.Access{Owner: newOwner, TrustedService: e.state.Access.TrustedService},
		Event:  ev,
	}
	if err := e.commit(ctx, "transfer_ownership", change, nil, nil); err != nil {
		return model.Event{}, err
	}

	slog.Info("ownership transferred", "from", caller.String(), "to", newOwner.String())
	return ev, nil
}

// --- Queries ---

// Name returns the fixed descriptive name of the ledger.
func (e *Engine) Name() string {
	return e.params.Name
}

// Params returns the rules this engine runs with.
func (e *Engine) Params() Params {
	return e.params
}

// IsRegistered reports whether id is registered. Owner only.
func (e *Engine) IsRegistered(caller, id model.Address) (ok bool, err error) {
	defer func() { observe("is_registered", err) }()

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.requireInitialized(); err != nil {
		return false, err
	}
	if err := requireOwner(e.state.Access, caller); err != nil {
		return false, err
	}
	return e.state.Registered[id], nil
}

// GetBid returns the bid with the given id.
func (e *Engine) GetBid(id uint64) (model.Bid, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return lookupBid(e.state, id)
}

// ListBids returns all bids in id order.
func (e *Engine) ListBids() []model.Bid {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.Bid, len(e.state.Bids))
	copy(out, e.state.Bids)
	return out
}

// BidsBySender returns the bids placed by sender in id order.
func (e *Engine) BidsBySender(sender model.Address) []model.Bid {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := []model.Bid{}
	for _, b := range e.state.Bids {
		if b.Sender == sender {
			out = append(out, b)
		}
	}
	return out
}

// TotalBalance returns the aggregate value held.
func (e *Engine) TotalBalance() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.TotalBalance
}

// BalanceOf returns id's withdrawable balance.
func (e *Engine) BalanceOf(id model.Address) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Balances[id]
}

// Access returns the privileged identities and whether the ledger has been
// initialized.
func (e *Engine) Access() (model.Access, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Access, e.state.Initialized
}

// Owner returns the current owner (zero before initialization).
func (e *Engine) Owner() model.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Access.Owner
}

// TrustedService returns the identity allowed to settle bids.
func (e *Engine) TrustedService() model.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Access.TrustedService
}

// Events returns up to limit events with Seq > after. limit <= 0 means all.
func (e *Engine) Events(after uint64, limit int) []model.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := []model.Event{}
	for _, ev := range e.state.Events {
		if ev.Seq <= after {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Snapshot returns a consistent deep copy of the whole state.
func (e *Engine) Snapshot() *model.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// --- internals ---

func (e *Engine) requireInitialized() error {
	if !e.state.Initialized {
		return ErrNotInitialized
	}
	return nil
}

func (e *Engine) newEvent(name string, caller, subject model.Address, bidID uint64, amount decimal.Decimal) model.Event {
	return model.Event{
		ID:      uuid.New().String(),
		Seq:     e.state.NextEventSeq(),
		Name:    name,
		Success: true,
		Caller:  caller,
		Subject: subject,
		BidID:   bidID,
		Amount:  amount,
		At:      e.now().UTC(),
	}
}

// commit persists change (running hook inside the store's unit of work),
// then applies it in memory and notifies publishers. Caller holds e.mu.
//
// A store can fail after hook succeeded (a Postgres COMMIT error, a failed
// snapshot rename). The value has then moved without a ledger record, so
// undo is run to move it back.
func (e *Engine) commit(ctx context.Context, op string, change model.Change, hook, undo store.Hook) error {
	start := time.Now()
	hookDone := false
	staged := hook
	if hook != nil {
		staged = func(ctx context.Context) error {
			if err := hook(ctx); err != nil {
				return err
			}
			hookDone = true
			return nil
		}
	}
	if err := e.store.Commit(ctx, change, staged); err != nil {
		slog.Error("ledger commit failed", "op", op, "err", err)
		if hookDone && undo != nil {
			if uerr := undo(context.WithoutCancel(ctx)); uerr != nil {
				metrics.CompensationFailures.Inc()
				slog.Error("treasury compensation failed", "op", op, "err", uerr)
				return fmt.Errorf("commit %s: %w (compensation failed: %v)", op, err, uerr)
			}
			slog.Warn("treasury transfer compensated", "op", op)
		}
		return fmt.Errorf("commit %s: %w", op, err)
	}
	e.state.Apply(change)
	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	e.refreshGauges()

	for _, p := range e.pubs {
		p.Publish(change.Event)
	}
	return nil
}

func (e *Engine) refreshGauges() {
	metrics.TotalBalance.Set(floatOf(e.state.TotalBalance))
	metrics.RegisteredParticipants.Set(float64(len(e.state.Registered)))
	metrics.BidsTotal.Set(float64(len(e.state.Bids)))
}

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = Kind(err)
	}
	metrics.OperationsTotal.WithLabelValues(op, result).Inc()
}

func floatOf(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
