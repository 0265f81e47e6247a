package exchange

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Venue groups the books of a simulated market. It drains every book's
// streams, books fills into the ledger and republishes both streams on hubs.
type Venue struct {
	books   map[string]*OrderBook
	tickers []string
	ledger  *Ledger
	fills   *Hub[Fill]
	views   *Hub[BookView]
	wg      sync.WaitGroup
}

// NewVenue starts one book per config. Tickers must be unique.
func NewVenue(cfgs []BookConfig) (*Venue, error) {
	v := &Venue{
		books:  make(map[string]*OrderBook, len(cfgs)),
		ledger: NewLedger(),
		fills:  NewHub[Fill](),
		views:  NewHub[BookView](),
	}
	for _, cfg := range cfgs {
		if cfg.Ticker == "" {
			return nil, errors.New("book config without ticker")
		}
		if _, dup := v.books[cfg.Ticker]; dup {
			return nil, fmt.Errorf("duplicate ticker %s", cfg.Ticker)
		}
		v.books[cfg.Ticker] = nil
		v.tickers = append(v.tickers, cfg.Ticker)
	}
	slices.Sort(v.tickers)

	for _, cfg := range cfgs {
		book := NewOrderBook(cfg)
		v.books[cfg.Ticker] = book
		v.wg.Add(2)
		go v.consumeTrades(book)
		go v.consumeBookUpdates(book)
	}
	return v, nil
}

// Book returns the book for ticker.
func (v *Venue) Book(ticker string) (*OrderBook, bool) {
	book, ok := v.books[ticker]
	return book, ok
}

// Tickers lists the traded tickers in sorted order.
func (v *Venue) Tickers() []string {
	return slices.Clone(v.tickers)
}

// Account returns the ledger entry for trader.
func (v *Venue) Account(trader string) Account {
	return v.ledger.Account(trader)
}

// Fills streams every fill after it has been booked.
func (v *Venue) Fills() *Hub[Fill] {
	return v.fills
}

// Views streams depth updates from all books.
func (v *Venue) Views() *Hub[BookView] {
	return v.views
}

// Snapshots returns the current view of every book keyed by ticker.
func (v *Venue) Snapshots() (map[string]BookView, error) {
	out := make(map[string]BookView, len(v.books))
	for _, ticker := range v.tickers {
		view, err := v.books[ticker].Snapshot()
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", ticker, err)
		}
		out[ticker] = view
	}
	return out, nil
}

// CancelTrader pulls the trader's resting orders from every book.
func (v *Venue) CancelTrader(trader string) (int, error) {
	total := 0
	for _, ticker := range v.tickers {
		n, err := v.books[ticker].CancelTrader(trader)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Stop halts every book, waits for the streams to drain and closes the hubs.
func (v *Venue) Stop() {
	for _, book := range v.books {
		book.Stop()
	}
	v.wg.Wait()
	v.fills.Close()
	v.views.Close()
}

func (v *Venue) consumeTrades(book *OrderBook) {
	defer v.wg.Done()
	for fill := range book.Trades() {
		v.ledger.Record(fill)
		v.fills.Broadcast(fill)
	}
}

func (v *Venue) consumeBookUpdates(book *OrderBook) {
	defer v.wg.Done()
	for view := range book.BookUpdates() {
		v.views.Broadcast(view)
	}
}
