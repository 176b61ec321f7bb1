package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps everything in process memory. Transactions stage their
// writes and apply them only on commit, so a failed InTx leaves no trace.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	holdings map[string]map[string]int64 // user -> symbol -> shares
	entries  map[string][]Entry          // user -> ledger in seq order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		holdings: make(map[string]map[string]int64),
		entries:  make(map[string][]Entry),
	}
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		m:        m,
		cash:     make(map[string]decimal.Decimal),
		holdings: make(map[holdingKey]int64),
		appended: make(map[string][]Entry),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View hands fn a reader that copies a user's committed state at the first
// read of that user. The store mutex is held only while copying.
func (m *MemoryStore) View(ctx context.Context, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memView{m: m, users: make(map[string]*memSnapshot)})
}

func (m *MemoryStore) CreateAccount(ctx context.Context, userID string, cash decimal.Decimal) (Account, error) {
	if userID == "" {
		return Account{}, fmt.Errorf("create account: user id is required")
	}
	if cash.IsNegative() {
		return Account{}, fmt.Errorf("create account: %w", ErrNegativeCash)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[userID]; ok {
		return Account{}, fmt.Errorf("create account %q: %w", userID, ErrAccountExists)
	}
	acct := Account{UserID: userID, Cash: cash, CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	m.accounts[userID] = acct
	return acct, nil
}

func (m *MemoryStore) Account(ctx context.Context, userID string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[userID]
	if !ok {
		return Account{}, fmt.Errorf("%w: %q", ErrAccountNotFound, userID)
	}
	return acct, nil
}

func (m *MemoryStore) Holding(ctx context.Context, userID, symbol string) (Holding, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	shares, ok := m.holdings[userID][symbol]
	if !ok {
		return Holding{}, false, nil
	}
	return Holding{UserID: userID, Symbol: symbol, Shares: shares}, true, nil
}

func (m *MemoryStore) Holdings(ctx context.Context, userID string) ([]Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return sortedHoldings(userID, m.holdings[userID]), nil
}

func (m *MemoryStore) History(ctx context.Context, userID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, len(m.entries[userID]))
	copy(out, m.entries[userID])
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

type holdingKey struct {
	user, symbol string
}

// memTx overlays staged writes on the committed maps. The store mutex is
// held for the lifetime of the transaction.
type memTx struct {
	m        *MemoryStore
	cash     map[string]decimal.Decimal
	holdings map[holdingKey]int64 // 0 marks a staged delete
	appended map[string][]Entry
}

func (tx *memTx) Account(ctx context.Context, userID string) (Account, error) {
	acct, ok := tx.m.accounts[userID]
	if !ok {
		return Account{}, fmt.Errorf("%w: %q", ErrAccountNotFound, userID)
	}
	if cash, ok := tx.cash[userID]; ok {
		acct.Cash = cash
	}
	return acct, nil
}

func (tx *memTx) Holding(ctx context.Context, userID, symbol string) (Holding, bool, error) {
	shares, staged := tx.holdings[holdingKey{userID, symbol}]
	if !staged {
		shares = tx.m.holdings[userID][symbol]
	}
	if shares == 0 {
		return Holding{}, false, nil
	}
	return Holding{UserID: userID, Symbol: symbol, Shares: shares}, true, nil
}

func (tx *memTx) Holdings(ctx context.Context, userID string) ([]Holding, error) {
	merged := make(map[string]int64, len(tx.m.holdings[userID]))
	for sym, shares := range tx.m.holdings[userID] {
		merged[sym] = shares
	}
	for k, shares := range tx.holdings {
		if k.user != userID {
			continue
		}
		if shares == 0 {
			delete(merged, k.symbol)
		} else {
			merged[k.symbol] = shares
		}
	}
	return sortedHoldings(userID, merged), nil
}

func (tx *memTx) SetCash(ctx context.Context, userID string, cash decimal.Decimal) error {
	if _, ok := tx.m.accounts[userID]; !ok {
		return fmt.Errorf("%w: %q", ErrAccountNotFound, userID)
	}
	if cash.IsNegative() {
		return fmt.Errorf("set cash %s: %w", cash, ErrNegativeCash)
	}
	tx.cash[userID] = cash
	return nil
}

func (tx *memTx) PutHolding(ctx context.Context, h Holding) error {
	if err := validateHolding(h); err != nil {
		return err
	}
	if _, ok := tx.m.accounts[h.UserID]; !ok {
		return fmt.Errorf("%w: %q", ErrAccountNotFound, h.UserID)
	}
	tx.holdings[holdingKey{h.UserID, h.Symbol}] = h.Shares
	return nil
}

func (tx *memTx) DeleteHolding(ctx context.Context, userID, symbol string) error {
	tx.holdings[holdingKey{userID, symbol}] = 0
	return nil
}

func (tx *memTx) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := validateEntry(e); err != nil {
		return Entry{}, err
	}
	if _, ok := tx.m.accounts[e.UserID]; !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrAccountNotFound, e.UserID)
	}

	var lastSeq int64
	var lastTime time.Time
	if staged := tx.appended[e.UserID]; len(staged) > 0 {
		lastSeq, lastTime = staged[len(staged)-1].Seq, staged[len(staged)-1].Time
	} else if committed := tx.m.entries[e.UserID]; len(committed) > 0 {
		lastSeq, lastTime = committed[len(committed)-1].Seq, committed[len(committed)-1].Time
	}

	e = nextEntry(e, lastSeq, lastTime)
	tx.appended[e.UserID] = append(tx.appended[e.UserID], e)
	return e, nil
}

func (tx *memTx) commit() {
	m := tx.m
	for user, cash := range tx.cash {
		acct := m.accounts[user]
		acct.Cash = cash
		m.accounts[user] = acct
	}
	for k, shares := range tx.holdings {
		if shares == 0 {
			delete(m.holdings[k.user], k.symbol)
			continue
		}
		if m.holdings[k.user] == nil {
			m.holdings[k.user] = make(map[string]int64)
		}
		m.holdings[k.user][k.symbol] = shares
	}
	for user, entries := range tx.appended {
		m.entries[user] = append(m.entries[user], entries...)
	}
}

func sortedHoldings(userID string, bySymbol map[string]int64) []Holding {
	out := make([]Holding, 0, len(bySymbol))
	for sym, shares := range bySymbol {
		out = append(out, Holding{UserID: userID, Symbol: sym, Shares: shares})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

var _ Store = (*MemoryStore)(nil)

type memSnapshot struct {
	acct     Account
	ok       bool
	holdings map[string]int64
}

type memView struct {
	m     *MemoryStore
	users map[string]*memSnapshot
}

func (v *memView) user(userID string) *memSnapshot {
	if snap, ok := v.users[userID]; ok {
		return snap
	}

	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	snap := &memSnapshot{holdings: make(map[string]int64, len(v.m.holdings[userID]))}
	snap.acct, snap.ok = v.m.accounts[userID]
	for sym, shares := range v.m.holdings[userID] {
		snap.holdings[sym] = shares
	}
	v.users[userID] = snap
	return snap
}

func (v *memView) Account(ctx context.Context, userID string) (Account, error) {
	snap := v.user(userID)
	if !snap.ok {
		return Account{}, fmt.Errorf("%w: %q", ErrAccountNotFound, userID)
	}
	return snap.acct, nil
}

func (v *memView) Holding(ctx context.Context, userID, symbol string) (Holding, bool, error) {
	shares, ok := v.user(userID).holdings[symbol]
	if !ok {
		return Holding{}, false, nil
	}
	return Holding{UserID: userID, Symbol: symbol, Shares: shares}, true, nil
}

func (v *memView) Holdings(ctx context.Context, userID string) ([]Holding, error) {
	return sortedHoldings(userID, v.user(userID).holdings), nil
}
