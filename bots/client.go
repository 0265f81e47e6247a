package bots

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"sampletrader/exchange"
)

// ThrottledClient trades one book as one trader, waiting on a shared
// throttle before each submission.
type ThrottledClient struct {
	book     *exchange.OrderBook
	trader   string
	throttle <-chan time.Time
	orderSeq atomic.Int64
}

// NewThrottledClient wraps an order book with basic rate limiting. A nil
// throttle disables limiting.
func NewThrottledClient(book *exchange.OrderBook, trader string, throttle <-chan time.Time) *ThrottledClient {
	return &ThrottledClient{
		book:     book,
		trader:   trader,
		throttle: throttle,
	}
}

func (c *ThrottledClient) waitThrottle(ctx context.Context) error {
	if c.throttle == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.throttle:
		return nil
	}
}

func (c *ThrottledClient) SubmitOrder(ctx context.Context, order exchange.Order) error {
	if err := c.waitThrottle(ctx); err != nil {
		return err
	}
	order.Ticker = c.book.Ticker()
	order.Trader = c.trader
	return c.book.SubmitOrder(order)
}

func (c *ThrottledClient) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.book.CancelOrder(orderID)
}

func (c *ThrottledClient) Snapshot(ctx context.Context) (exchange.BookView, error) {
	type result struct {
		view exchange.BookView
		err  error
	}
	done := make(chan result, 1)
	go func() {
		view, err := c.book.Snapshot()
		done <- result{view: view, err: err}
	}()

	select {
	case <-ctx.Done():
		return exchange.BookView{}, ctx.Err()
	case res := <-done:
		return res.view, res.err
	}
}

func (c *ThrottledClient) Ticker() string {
	return c.book.Ticker()
}

func (c *ThrottledClient) Trader() string {
	return c.trader
}

// NextID is unique per client; books are per ticker so that is enough.
func (c *ThrottledClient) NextID(prefix string) string {
	return fmt.Sprintf("%s-%s-%d", c.trader, prefix, c.orderSeq.Add(1))
}
