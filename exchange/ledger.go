package exchange

import (
	"maps"
	"sync"
)

// Account is a trader's holdings. Cash is in ticks.
type Account struct {
	Positions map[string]int64
	Cash      int64
}

// Ledger tracks positions and cash per trader from fills.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*Account)}
}

func (l *Ledger) account(trader string) *Account {
	acct, ok := l.accounts[trader]
	if !ok {
		acct = &Account{Positions: make(map[string]int64)}
		l.accounts[trader] = acct
	}
	return acct
}

// Record books both sides of a fill. A trader crossing itself nets to zero.
func (l *Ledger) Record(fill Fill) {
	l.mu.Lock()
	defer l.mu.Unlock()
	notional := fill.Price * fill.Quantity

	buyer := l.account(fill.Buyer)
	buyer.Positions[fill.Ticker] += fill.Quantity
	buyer.Cash -= notional

	seller := l.account(fill.Seller)
	seller.Positions[fill.Ticker] -= fill.Quantity
	seller.Cash += notional
}

// Account returns a copy of the trader's holdings; unknown traders are flat.
func (l *Ledger) Account(trader string) Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[trader]
	if !ok {
		return Account{Positions: map[string]int64{}}
	}
	return Account{Positions: maps.Clone(acct.Positions), Cash: acct.Cash}
}
