package fund

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	defaultProposalTTL = 24 * time.Hour
	defaultLockWait    = 3 * time.Second
)

var errStateNotConfigured = errors.New("fund: state not configured")

// State is the persistence backend for fund aggregates. Implementations must
// make each Put durable; the engine batches the writes of one operation
// through InTransaction when the backend also implements Transactor.
type State interface {
	FundGet(id string) (*Fund, bool, error)
	FundPut(*Fund) error
	MemberGet(fundID string, wallet WalletID) (*Member, bool, error)
	MemberPut(*Member) error
	ProposalGet(fundID string, id uint64) (*TradeProposal, bool, error)
	ProposalPut(*TradeProposal) error
	// ProposalsOpen lists proposals still pending or approved for the fund.
	ProposalsOpen(fundID string) ([]*TradeProposal, error)
}

// Transactor is implemented by backends that can scope a batch of writes to a
// single atomic commit. When the engine's state implements it, every mutating
// operation runs inside one transaction so a persistence failure leaves no
// partial state behind.
type Transactor interface {
	InTransaction(fn func(State) error) error
}

// Engine is the fund share ledger and trade-proposal approval engine. All
// mutations to one fund's aggregate are serialised behind a per-fund lock;
// operations on different funds run in parallel.
type Engine struct {
	state       State
	emitter     Emitter
	nowFn       func() time.Time
	proposalTTL time.Duration
	lockWait    time.Duration

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewEngine constructs an engine with default no-op dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter:     NoopEmitter{},
		nowFn:       func() time.Time { return time.Now().UTC() },
		proposalTTL: defaultProposalTTL,
		lockWait:    defaultLockWait,
		locks:       make(map[string]chan struct{}),
	}
}

// SetState wires the engine to its persistence backend.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter Emitter) {
	if emitter == nil {
		e.emitter = NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests. Nil restores
// the default UTC clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

// SetProposalTTL configures the validity window stamped on new proposals.
func (e *Engine) SetProposalTTL(ttl time.Duration) {
	if ttl <= 0 {
		e.proposalTTL = defaultProposalTTL
		return
	}
	e.proposalTTL = ttl
}

// SetLockWait configures how long an operation waits for the fund lock before
// failing with ErrContended.
func (e *Engine) SetLockWait(wait time.Duration) {
	if wait <= 0 {
		e.lockWait = defaultLockWait
		return
	}
	e.lockWait = wait
}

func (e *Engine) emit(event Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() time.Time {
	if e == nil || e.nowFn == nil {
		return time.Now().UTC()
	}
	return e.nowFn()
}

// lockFund acquires the per-fund mutex with a bounded wait. The returned
// release function must be called exactly once.
func (e *Engine) lockFund(fundID string) (func(), error) {
	e.mu.Lock()
	sem, ok := e.locks[fundID]
	if !ok {
		sem = make(chan struct{}, 1)
		e.locks[fundID] = sem
	}
	e.mu.Unlock()

	timer := time.NewTimer(e.lockWait)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, ErrContended
	}
}

// withState runs fn against the configured state, inside a transaction when
// the backend supports one.
func (e *Engine) withState(fn func(State) error) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if tx, ok := e.state.(Transactor); ok {
		if err := tx.InTransaction(fn); err != nil {
			return wrapPersistence(err)
		}
		return nil
	}
	return fn(e.state)
}

// wrapPersistence tags backend failures so callers can distinguish them from
// validation rejections. Engine sentinels pass through untouched.
func wrapPersistence(err error) error {
	if err == nil {
		return nil
	}
	if isEngineError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

func isEngineError(err error) bool {
	for _, kind := range []error{
		ErrFundNotFound, ErrMemberNotFound, ErrProposalNotFound,
		ErrFundInactive, ErrMemberInactive, ErrBelowMinimum, ErrInvalidAmount,
		ErrNoShares, ErrFundEmpty, ErrNotTraderOrManager, ErrNotApprovedTrader,
		ErrNotAuthority, ErrProposalNotPending, ErrProposalExpired,
		ErrSelfApproval, ErrAlreadyApproved, ErrNotApproved, ErrContended,
		ErrSettlementFailed, ErrPersistence,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func loadFund(state State, fundID string) (*Fund, error) {
	record, ok, err := state.FundGet(fundID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	if !ok || record == nil {
		return nil, fmt.Errorf("%w: %s", ErrFundNotFound, fundID)
	}
	return SanitizeFund(record)
}

func loadMember(state State, fundID string, wallet WalletID) (*Member, error) {
	record, ok, err := state.MemberGet(fundID, wallet)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	if !ok || record == nil {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, wallet)
	}
	return SanitizeMember(record)
}

func loadProposal(state State, fundID string, id uint64) (*TradeProposal, error) {
	record, ok, err := state.ProposalGet(fundID, id)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	if !ok || record == nil {
		return nil, fmt.Errorf("%w: %d", ErrProposalNotFound, id)
	}
	return record.Clone(), nil
}
