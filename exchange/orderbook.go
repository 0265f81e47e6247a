package exchange

import (
	"cmp"
	"container/heap"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var (
	// ErrBookStopped is returned for requests made after Stop.
	ErrBookStopped = errors.New("order book stopped")
	// ErrOrderNotFound is returned when cancelling an unknown order.
	ErrOrderNotFound = errors.New("order not found")
)

type requestType int

const (
	requestAdd requestType = iota
	requestCancel
	requestCancelTrader
	requestReplace
	requestSnapshot
)

type bookRequest struct {
	typ    requestType
	order  Order
	trader string
	batch  []Order
	resp   chan error
	count  chan int
	view   chan BookView
}

// OrderBook maintains bids and asks for a single ticker using price-time
// priority. All state is owned by the worker goroutine.
type OrderBook struct {
	cfg     BookConfig
	bids    priceTimeQueue
	asks    priceTimeQueue
	orders  map[string]*orderEntry
	seq     int64
	last    int64
	reqCh   chan bookRequest
	trades  chan Fill
	updates chan BookView
	done    chan struct{}
	stop    sync.Once
	now     func() time.Time
}

// NewOrderBook builds an order book and launches the worker loop.
func NewOrderBook(cfg BookConfig) *OrderBook {
	ob := &OrderBook{
		cfg:     cfg,
		bids:    priceTimeQueue{},
		asks:    priceTimeQueue{},
		orders:  make(map[string]*orderEntry),
		last:    cfg.InitialPrice,
		reqCh:   make(chan bookRequest),
		trades:  make(chan Fill, 256),
		updates: make(chan BookView, 64),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	heap.Init(&ob.bids)
	heap.Init(&ob.asks)
	go ob.run()
	return ob
}

// Ticker returns the instrument this book trades.
func (ob *OrderBook) Ticker() string {
	return ob.cfg.Ticker
}

func (ob *OrderBook) send(req bookRequest) error {
	select {
	case <-ob.done:
		return ErrBookStopped
	default:
	}
	select {
	case ob.reqCh <- req:
		return nil
	case <-ob.done:
		return ErrBookStopped
	}
}

// SubmitOrder matches a new order and rests any limit remainder.
func (ob *OrderBook) SubmitOrder(order Order) error {
	resp := make(chan error, 1)
	if err := ob.send(bookRequest{typ: requestAdd, order: order, resp: resp}); err != nil {
		return err
	}
	return <-resp
}

// CancelOrder cancels an active order by ID.
func (ob *OrderBook) CancelOrder(id string) error {
	resp := make(chan error, 1)
	if err := ob.send(bookRequest{typ: requestCancel, order: Order{ID: id}, resp: resp}); err != nil {
		return err
	}
	return <-resp
}

// CancelTrader removes every resting order of trader and reports how many
// were cancelled.
func (ob *OrderBook) CancelTrader(trader string) (int, error) {
	count := make(chan int, 1)
	if err := ob.send(bookRequest{typ: requestCancelTrader, trader: trader, count: count}); err != nil {
		return 0, err
	}
	return <-count, nil
}

// ReplaceOrders cancels the trader's resting orders and submits batch in
// order. The batch is validated up front; on error nothing changes.
func (ob *OrderBook) ReplaceOrders(trader string, batch []Order) error {
	resp := make(chan error, 1)
	if err := ob.send(bookRequest{typ: requestReplace, trader: trader, batch: batch, resp: resp}); err != nil {
		return err
	}
	return <-resp
}

// Snapshot returns the aggregated depth and last trade price.
func (ob *OrderBook) Snapshot() (BookView, error) {
	view := make(chan BookView, 1)
	if err := ob.send(bookRequest{typ: requestSnapshot, view: view}); err != nil {
		return BookView{}, err
	}
	return <-view, nil
}

// Trades exposes the stream of executed trades. It must be drained; matching
// blocks while the buffer is full.
func (ob *OrderBook) Trades() <-chan Fill {
	return ob.trades
}

// BookUpdates exposes the stream of depth updates. Updates are dropped when
// the consumer falls behind.
func (ob *OrderBook) BookUpdates() <-chan BookView {
	return ob.updates
}

// Stop terminates the worker loop and closes both streams. It is safe to call
// more than once.
func (ob *OrderBook) Stop() {
	ob.stop.Do(func() { close(ob.done) })
}

func (ob *OrderBook) run() {
	defer close(ob.updates)
	defer close(ob.trades)
	for {
		select {
		case <-ob.done:
			return
		case req := <-ob.reqCh:
			ob.handle(req)
		}
	}
}

func (ob *OrderBook) handle(req bookRequest) {
	switch req.typ {
	case requestAdd:
		err := ob.processAdd(req.order)
		req.resp <- err
		if err == nil {
			ob.publishView()
		}
	case requestCancel:
		err := ob.processCancel(req.order.ID)
		req.resp <- err
		if err == nil {
			ob.publishView()
		}
	case requestCancelTrader:
		n := ob.processCancelTrader(req.trader)
		req.count <- n
		if n > 0 {
			ob.publishView()
		}
	case requestReplace:
		err := ob.processReplace(req.trader, req.batch)
		req.resp <- err
		if err == nil {
			ob.publishView()
		}
	case requestSnapshot:
		req.view <- ob.snapshotView()
	}
}

func (ob *OrderBook) validate(order Order) error {
	if order.Ticker != ob.cfg.Ticker {
		return fmt.Errorf("order ticker %s does not match book %s", order.Ticker, ob.cfg.Ticker)
	}
	if order.ID == "" {
		return errors.New("order id is required")
	}
	if _, exists := ob.orders[order.ID]; exists {
		return fmt.Errorf("duplicate order id %s", order.ID)
	}
	if order.Quantity <= 0 {
		return errors.New("order quantity must be positive")
	}
	if order.Type == Limit && order.Price <= 0 {
		return errors.New("limit price must be at least one tick")
	}
	return nil
}

func (ob *OrderBook) processAdd(order Order) error {
	if err := ob.validate(order); err != nil {
		return err
	}

	ob.seq++
	order.Sequence = ob.seq
	order.Timestamp = ob.now()
	order.Remaining = order.Quantity

	if order.Side == Buy {
		ob.match(&order, &ob.asks, &ob.bids)
	} else {
		ob.match(&order, &ob.bids, &ob.asks)
	}
	return nil
}

func (ob *OrderBook) match(incoming *Order, opposing *priceTimeQueue, resting *priceTimeQueue) {
	for incoming.Remaining > 0 {
		best := opposing.peek()
		if best == nil {
			break
		}
		if incoming.Type == Limit {
			if incoming.Side == Buy && incoming.Price < best.order.Price {
				break
			}
			if incoming.Side == Sell && incoming.Price > best.order.Price {
				break
			}
		}

		tradedQty := min(incoming.Remaining, best.order.Remaining)
		tradePrice := best.order.Price
		incoming.Remaining -= tradedQty
		best.order.Remaining -= tradedQty
		ob.last = tradePrice

		buy, sell := incoming, best.order
		if incoming.Side == Sell {
			buy, sell = best.order, incoming
		}
		ob.trades <- Fill{
			Ticker:      incoming.Ticker,
			BuyOrderID:  buy.ID,
			SellOrderID: sell.ID,
			Buyer:       buy.Trader,
			Seller:      sell.Trader,
			Price:       tradePrice,
			Quantity:    tradedQty,
			Timestamp:   ob.now(),
		}

		if best.order.Remaining == 0 {
			heap.Pop(opposing)
			delete(ob.orders, best.order.ID)
		} else {
			heap.Fix(opposing, best.index)
		}
	}

	if incoming.Remaining > 0 && incoming.Type == Limit {
		entry := &orderEntry{order: incoming, isBid: incoming.Side == Buy}
		heap.Push(resting, entry)
		ob.orders[incoming.ID] = entry
		trimDepth(resting, ob.cfg.MaxDepth, ob.orders)
	}
}

func (ob *OrderBook) processCancel(id string) error {
	entry, ok := ob.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	ob.removeEntry(entry)
	return nil
}

func (ob *OrderBook) removeEntry(entry *orderEntry) {
	if entry.isBid {
		ob.bids.remove(entry)
	} else {
		ob.asks.remove(entry)
	}
	delete(ob.orders, entry.order.ID)
}

func (ob *OrderBook) processCancelTrader(trader string) int {
	var doomed []*orderEntry
	for _, entry := range ob.orders {
		if entry.order.Trader == trader {
			doomed = append(doomed, entry)
		}
	}
	for _, entry := range doomed {
		ob.removeEntry(entry)
	}
	return len(doomed)
}

func (ob *OrderBook) processReplace(trader string, batch []Order) error {
	ids := make(map[string]struct{}, len(batch))
	for _, order := range batch {
		if order.Trader != trader {
			return fmt.Errorf("order %s belongs to %q, not %q", order.ID, order.Trader, trader)
		}
		if _, dup := ids[order.ID]; dup {
			return fmt.Errorf("duplicate order id %s", order.ID)
		}
		ids[order.ID] = struct{}{}
		if err := ob.validate(order); err != nil {
			return err
		}
	}

	ob.processCancelTrader(trader)
	for _, order := range batch {
		if err := ob.processAdd(order); err != nil {
			return err
		}
	}
	return nil
}

func (ob *OrderBook) snapshotView() BookView {
	return BookView{
		Ticker:    ob.cfg.Ticker,
		Bids:      ob.bids.levels(true),
		Asks:      ob.asks.levels(false),
		LastPrice: ob.last,
	}
}

func (ob *OrderBook) publishView() {
	view := ob.snapshotView()
	select {
	case ob.updates <- view:
	default:
	}
}

func sortLevels(levels []Level, descending bool) {
	slices.SortFunc(levels, func(a, b Level) int {
		if descending {
			return cmp.Compare(b.Price, a.Price)
		}
		return cmp.Compare(a.Price, b.Price)
	})
}
