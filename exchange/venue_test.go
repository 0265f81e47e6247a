package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVenueBooksFillsIntoLedger(t *testing.T) {
	v, err := NewVenue([]BookConfig{{Ticker: "XYZ", InitialPrice: 2500}, {Ticker: "ABC", InitialPrice: 1000}})
	require.NoError(t, err)
	defer v.Stop()

	assert.Equal(t, []string{"ABC", "XYZ"}, v.Tickers())

	fills := v.Fills().Subscribe(8)
	book, ok := v.Book("ABC")
	require.True(t, ok)
	require.NoError(t, book.SubmitOrder(limit("s1", "seller", "ABC", Sell, 1001, 10)))
	require.NoError(t, book.SubmitOrder(limit("b1", "buyer", "ABC", Buy, 1002, 4)))

	select {
	case fill := <-fills.C:
		assert.Equal(t, int64(1001), fill.Price)
		assert.Equal(t, int64(4), fill.Quantity)
	case <-time.After(time.Second):
		t.Fatal("no fill broadcast")
	}

	// the hub publishes after the ledger has been updated
	buyer := v.Account("buyer")
	assert.Equal(t, int64(4), buyer.Positions["ABC"])
	assert.Equal(t, int64(-4004), buyer.Cash)
	seller := v.Account("seller")
	assert.Equal(t, int64(-4), seller.Positions["ABC"])
	assert.Equal(t, int64(4004), seller.Cash)

	assert.Empty(t, v.Account("nobody").Positions)
}

func TestVenueSnapshotsAndCancelTrader(t *testing.T) {
	v, err := NewVenue([]BookConfig{{Ticker: "ABC", InitialPrice: 1000}, {Ticker: "XYZ", InitialPrice: 2500}})
	require.NoError(t, err)
	defer v.Stop()

	abc, _ := v.Book("ABC")
	xyz, _ := v.Book("XYZ")
	require.NoError(t, abc.SubmitOrder(limit("a", "mm", "ABC", Buy, 999, 1)))
	require.NoError(t, xyz.SubmitOrder(limit("x", "mm", "XYZ", Sell, 2501, 1)))

	views, err := v.Snapshots()
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, []Level{{Price: 999, Quantity: 1}}, views["ABC"].Bids)
	assert.Equal(t, int64(2500), views["XYZ"].LastPrice)

	n, err := v.CancelTrader("mm")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestVenueRejectsDuplicateTickers(t *testing.T) {
	_, err := NewVenue([]BookConfig{{Ticker: "ABC"}, {Ticker: "ABC"}})
	assert.ErrorContains(t, err, "duplicate ticker")

	_, err = NewVenue([]BookConfig{{}})
	assert.Error(t, err)
}

func TestVenueStopClosesHubs(t *testing.T) {
	v, err := NewVenue([]BookConfig{{Ticker: "ABC"}})
	require.NoError(t, err)
	views := v.Views().Subscribe(1)
	v.Stop()

	_, open := <-views.C
	assert.False(t, open)

	late := v.Views().Subscribe(1)
	_, open = <-late.C
	assert.False(t, open)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub[int]()
	sub := h.Subscribe(1)
	h.Broadcast(1)
	h.Broadcast(2)

	assert.Equal(t, 1, <-sub.C)
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	_, open := <-sub.C
	assert.False(t, open)
}
