package book

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/limitrelay/limitrelay/pkg/util"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrUnauthorized = errors.New("requester does not own order")
	ErrInvalidState = errors.New("order is not pending")
)

// ValidationError carries the list of reasons an order was rejected at
// creation. It is a client mistake, never retried.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %v", e.Reasons)
}

// CancelHook is the on-chain cancellation path supplied by the execution
// coordinator. It runs outside the store lock; the status flip happens
// only after it returns successfully.
type CancelHook func(ctx context.Context, o Order) (txHash string, gasUsed uint64, gasPrice string, err error)

// Stats is a point-in-time summary of the book.
type Stats struct {
	Total          int `json:"total"`
	Pending        int `json:"pending"`
	Executed       int `json:"executed"`
	Cancelled      int `json:"cancelled"`
	Expired        int `json:"expired"`
	DistinctOwners int `json:"distinctOwners"`
}

// Store is the authoritative in-process order book: a primary map keyed by
// order id plus a secondary owner index. It is the only shared mutable
// state in the core. The whole-store mutex is never held across a network
// call; callers run estimate/broadcast/confirm outside and re-enter only
// for the final commit.
type Store struct {
	mu      sync.RWMutex
	orders  map[string]*Order
	byOwner map[string][]string // owner -> ids in insertion order
	clock   util.Clock
}

func NewStore(clock util.Clock) *Store {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Store{
		orders:  make(map[string]*Order, 1024),
		byOwner: make(map[string][]string),
		clock:   clock,
	}
}

// Create validates and inserts the order, assigning an id if none is
// supplied. The owner-index update is atomic with the primary insert.
func (s *Store) Create(o Order) (string, error) {
	if reasons := o.Validate(); len(reasons) > 0 {
		return "", &ValidationError{Reasons: reasons}
	}

	now := util.NowMillis(s.clock)
	if o.ID == "" {
		o.ID = NewOrderID(now)
	}
	if o.CreatedAt == 0 {
		o.CreatedAt = now
	}
	o.Deadline = NormalizeDeadline(o.Deadline)
	o.Status = Pending
	o.TxHash = ""
	o.GasEstimate = 0
	o.GasPrice = ""

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID]; exists {
		return "", fmt.Errorf("order id %s already exists", o.ID)
	}
	cp := o
	s.orders[o.ID] = &cp
	s.byOwner[o.Owner] = append(s.byOwner[o.Owner], o.ID)
	return o.ID, nil
}

// Get returns a copy of the order.
func (s *Store) Get(id string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return *o, nil
}

// ListByOwner returns the owner's orders newest-first, windowed by
// (page-1)*limit .. page*limit. Out-of-range pages yield an empty slice.
func (s *Store) ListByOwner(owner string, limit, page int) []Order {
	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}

	s.mu.RLock()
	ids := s.byOwner[owner]
	all := make([]Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := s.orders[id]; ok {
			all = append(all, *o)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt > all[j].CreatedAt })

	start := (page - 1) * limit
	if start >= len(all) {
		return []Order{}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

// Update replaces the stored record. The id, owner and immutable economic
// terms of the original are kept; callers use it to persist strategy
// repricing.
func (s *Store) Update(id string, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.ID = cur.ID
	o.Owner = cur.Owner
	o.FromAsset = cur.FromAsset
	o.ToAsset = cur.ToAsset
	o.CreatedAt = cur.CreatedAt
	cp := o
	s.orders[id] = &cp
	return nil
}

// SetStatus transitions the order's status. Transitions out of a terminal
// state are rejected.
func (s *Store) SetStatus(id string, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStatusLocked(id, st)
}

func (s *Store) setStatusLocked(id string, st Status) error {
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrInvalidState, id, o.Status)
	}
	o.Status = st
	return nil
}

// CommitExecution atomically records the on-chain result and moves the
// order to the given terminal status. Fails if the order already left
// PENDING (e.g. swept to EXPIRED while the broadcast was in flight).
func (s *Store) CommitExecution(id string, st Status, txHash string, gasUsed uint64, gasPrice string) error {
	if st != Executed && st != Cancelled {
		return fmt.Errorf("commit to %s is not an execution result", st)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != Pending {
		return fmt.Errorf("%w: %s is %s", ErrInvalidState, id, o.Status)
	}
	o.Status = st
	o.TxHash = txHash
	o.GasEstimate = gasUsed
	o.GasPrice = gasPrice
	return nil
}

// Cancel authorizes the requester, runs the on-chain cancellation path
// outside the lock, and only then flips the order to CANCELLED. A nil hook
// cancels locally (nothing was ever broadcast for a pending order).
func (s *Store) Cancel(ctx context.Context, id, requester string, onchain CancelHook) (Order, error) {
	s.mu.Lock()
	o, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return Order{}, ErrNotFound
	}
	if o.Owner != requester {
		s.mu.Unlock()
		return Order{}, ErrUnauthorized
	}
	if o.Status != Pending {
		s.mu.Unlock()
		return Order{}, fmt.Errorf("%w: %s is %s", ErrInvalidState, id, o.Status)
	}
	snapshot := *o
	s.mu.Unlock()

	var txHash, gasPrice string
	var gasUsed uint64
	if onchain != nil {
		var err error
		txHash, gasUsed, gasPrice, err = onchain(ctx, snapshot)
		if err != nil {
			// order stays PENDING, safe to retry
			return Order{}, err
		}
	}

	if err := s.CommitExecution(id, Cancelled, txHash, gasUsed, gasPrice); err != nil {
		return Order{}, err
	}
	return s.Get(id)
}

// SweepExpired flips every PENDING order whose deadline has passed to
// EXPIRED and returns how many were flipped. Check-then-act runs under the
// same lock as Cancel/CommitExecution, so a sweep and an execution can
// never both apply to one order.
func (s *Store) SweepExpired() int {
	now := util.NowMillis(s.clock)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, o := range s.orders {
		if o.Status == Pending && o.Deadline > 0 && o.Deadline < now {
			o.Status = Expired
			n++
		}
	}
	return n
}

// ExpireIfPast flips the order to EXPIRED when its deadline has passed.
// Used by the coordinator's preflight so the expiry check and the flip are
// one atomic step.
func (s *Store) ExpireIfPast(id string) (bool, error) {
	now := util.NowMillis(s.clock)

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != Pending {
		return false, fmt.Errorf("%w: %s is %s", ErrInvalidState, id, o.Status)
	}
	if o.Deadline > 0 && o.Deadline < now {
		o.Status = Expired
		return true, nil
	}
	return false, nil
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Total: len(s.orders), DistinctOwners: len(s.byOwner)}
	for _, o := range s.orders {
		switch o.Status {
		case Pending:
			st.Pending++
		case Executed:
			st.Executed++
		case Cancelled:
			st.Cancelled++
		case Expired:
			st.Expired++
		}
	}
	return st
}
