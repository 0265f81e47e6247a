package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sampletrader/options"
	"sampletrader/wire"
)

type recordingStrategy struct {
	calls  int
	last   Snapshot
	orders []wire.Order
}

func (s *recordingStrategy) Name() string { return "recording" }

func (s *recordingStrategy) Decide(snap Snapshot, _ OptionReader) []wire.Order {
	s.calls++
	s.last = snap
	return s.orders
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(strategy Strategy) (*Engine, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	e := New(strategy, options.NewStore(options.Defaults()), Config{Delay: time.Second}, nil)
	e.now = clock.now
	e.lastAction = clock.now()
	return e, clock
}

func marketUpdate(ticker string, last float64, bids, asks wire.Levels) *wire.Inbound {
	return &wire.Inbound{
		MessageType: wire.TypeMarketUpdate,
		MarketState: &wire.MarketState{Ticker: ticker, Bids: bids, Asks: asks, LastPrice: last},
	}
}

func ack(states map[string]wire.MarketState) *wire.Inbound {
	return &wire.Inbound{MessageType: wire.TypeAckRegister, MarketStates: states}
}

func TestSignalFollowsEWMARecurrence(t *testing.T) {
	e, _ := newTestEngine(&recordingStrategy{})

	e.Process(ack(map[string]wire.MarketState{"ABC": {LastPrice: 10}}))

	prices := []float64{10.5, 10.2, 11, 11, 9.75}
	prev, want := 10.0, 0.0
	for _, p := range prices {
		e.Process(marketUpdate("ABC", p, nil, nil))
		want = want*(1-0.2) + 0.2*(p-prev)
		prev = p

		q, ok := e.Quote("ABC")
		require.True(t, ok)
		assert.InDelta(t, want, q.Signal, 1e-12)
		assert.Equal(t, p, q.LastPrice)
	}
}

func TestBulkUpdateResetsSignal(t *testing.T) {
	e, _ := newTestEngine(&recordingStrategy{})
	e.Process(ack(map[string]wire.MarketState{"ABC": {LastPrice: 10}}))
	e.Process(marketUpdate("ABC", 12, nil, nil))

	q, _ := e.Quote("ABC")
	require.InDelta(t, 0.4, q.Signal, 1e-12)

	e.Process(ack(map[string]wire.MarketState{"ABC": {LastPrice: 11}}))
	q, _ = e.Quote("ABC")
	assert.Equal(t, 0.0, q.Signal)
	assert.Equal(t, 11.0, q.LastPrice)
}

func TestEmptySidePreservesTopOfBook(t *testing.T) {
	e, _ := newTestEngine(&recordingStrategy{})
	e.Process(ack(map[string]wire.MarketState{
		"ABC": {Bids: wire.Levels{"9.98": 1, "9.99": 3}, Asks: wire.Levels{"10.02": 1, "10.01": 2}, LastPrice: 10},
	}))

	q, _ := e.Quote("ABC")
	assert.Equal(t, 9.99, q.TopBid)
	assert.Equal(t, 10.01, q.TopAsk)

	e.Process(marketUpdate("ABC", 10, wire.Levels{"9.95": 1}, wire.Levels{}))
	q, _ = e.Quote("ABC")
	assert.Equal(t, 9.95, q.TopBid)
	assert.Equal(t, 10.01, q.TopAsk)
	assert.True(t, q.HasAsk)

	e.Process(marketUpdate("ABC", 10, nil, wire.Levels{"10.50": 4}))
	q, _ = e.Quote("ABC")
	assert.Equal(t, 9.95, q.TopBid)
	assert.Equal(t, 10.5, q.TopAsk)
}

func TestFirstSingleUpdateCreatesQuote(t *testing.T) {
	e, _ := newTestEngine(&recordingStrategy{})
	e.Process(marketUpdate("NEW", 7, wire.Levels{}, wire.Levels{}))

	q, ok := e.Quote("NEW")
	require.True(t, ok)
	assert.Equal(t, 7.0, q.LastPrice)
	assert.Equal(t, 0.0, q.Signal)
	assert.False(t, q.HasBid)
	assert.False(t, q.HasAsk)
}

func TestTraderStateReplacesPositions(t *testing.T) {
	e, _ := newTestEngine(&recordingStrategy{})
	e.Process(&wire.Inbound{TraderState: &wire.TraderState{Positions: map[string]int64{"ABC": 5, "XYZ": -2}}})
	e.Process(&wire.Inbound{TraderState: &wire.TraderState{Positions: map[string]int64{"XYZ": 7}}})

	assert.Equal(t, int64(0), e.Position("ABC"))
	assert.Equal(t, int64(7), e.Position("XYZ"))
}

func TestNoOrdersBeforeStart(t *testing.T) {
	strategy := &recordingStrategy{orders: []wire.Order{{Ticker: "ABC", Buy: true, Quantity: 100, Price: 15}}}
	e, clock := newTestEngine(strategy)

	e.Process(&wire.Inbound{EndTime: wire.NewEndTime(time.Time{})})
	for i := 0; i < 5; i++ {
		clock.advance(2 * time.Second)
		assert.Nil(t, e.Process(marketUpdate("ABC", 10+float64(i), nil, nil)))
	}
	assert.False(t, e.Started())
	assert.Zero(t, strategy.calls)
}

func TestStartSignals(t *testing.T) {
	e, _ := newTestEngine(&recordingStrategy{})
	e.Process(&wire.Inbound{MessageType: wire.TypeStart})
	assert.True(t, e.Started())

	e, _ = newTestEngine(&recordingStrategy{})
	e.Process(&wire.Inbound{EndTime: wire.NewEndTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))})
	assert.True(t, e.Started())
}

func TestEndTimeSentinelFormats(t *testing.T) {
	frames := map[string]bool{
		`{"end_time":"0001-01-01T00:00:00Z"}`:          false,
		`{"end_time":"0001-01-01T00:00:00"}`:           false,
		`{"end_time":"0001-01-01 00:00:00"}`:           false,
		`{"end_time":"0001-01-01T00:00:00-05:00"}`:     false,
		`{"end_time":"0001-01-01T00:00:00.000000"}`:    false,
		`{"end_time":"2017-02-18T14:30:00+00:00"}`:     true,
		`{"end_time":"2017-02-18T14:30:00"}`:           true,
		`{"end_time":"2017-02-18 14:30:00"}`:           true,
		`{"end_time":"2017-02-18 14:30:00.250+01:00"}`: true,
		`{"end_time":"tomorrow"}`:                      true,
	}
	for frame, started := range frames {
		msg, err := wire.DecodeInbound([]byte(frame))
		require.NoError(t, err, frame)
		e, _ := newTestEngine(&recordingStrategy{})
		e.Process(msg)
		assert.Equal(t, started, e.Started(), frame)
	}
}

func TestStartFrameWithNaiveEndTimeKeepsMarketState(t *testing.T) {
	msg, err := wire.DecodeInbound([]byte(`{"message_type":"ACK REGISTER",` +
		`"market_states":{"ABC":{"ticker":"ABC","bids":{"9.9":1},"asks":{"10.1":2},"last_price":10}},` +
		`"trader_state":{"positions":{"ABC":3},"cash":0},` +
		`"end_time":"0001-01-01 00:00:00"}`))
	require.NoError(t, err)

	e, _ := newTestEngine(&recordingStrategy{})
	e.Process(msg)
	assert.False(t, e.Started())
	assert.Equal(t, int64(3), e.Position("ABC"))
	q, ok := e.Quote("ABC")
	require.True(t, ok)
	assert.True(t, q.HasBid)
	assert.True(t, q.HasAsk)
}

func TestDecisionIsRateLimited(t *testing.T) {
	strategy := &recordingStrategy{orders: []wire.Order{{Ticker: "ABC", Buy: true, Quantity: 100, Price: 15}}}
	e, clock := newTestEngine(strategy)
	e.Process(&wire.Inbound{MessageType: wire.TypeStart})

	// still inside the first window
	assert.Nil(t, e.Process(nil))
	assert.Zero(t, strategy.calls)

	clock.advance(1500 * time.Millisecond)
	var produced int
	for i := 0; i < 20; i++ {
		if out := e.Process(marketUpdate("ABC", 10, nil, nil)); out != nil {
			produced++
			mo, ok := out.(*wire.ModifyOrders)
			require.True(t, ok)
			assert.Equal(t, strategy.orders, mo.Orders)
		}
		clock.advance(10 * time.Millisecond)
	}
	assert.Equal(t, 1, produced)
	assert.Equal(t, 1, strategy.calls)

	clock.advance(time.Second)
	assert.NotNil(t, e.Process(nil))
	assert.Equal(t, 2, strategy.calls)
}

func TestEmptyDecisionProducesNothing(t *testing.T) {
	strategy := &recordingStrategy{}
	e, clock := newTestEngine(strategy)
	e.Process(&wire.Inbound{MessageType: wire.TypeStart})
	clock.advance(2 * time.Second)

	assert.Nil(t, e.Process(nil))
	assert.Equal(t, 1, strategy.calls)
}

func TestStrategySeesSnapshot(t *testing.T) {
	strategy := &recordingStrategy{}
	e, clock := newTestEngine(strategy)
	e.Process(&wire.Inbound{
		MessageType:  wire.TypeStart,
		TraderState:  &wire.TraderState{Positions: map[string]int64{"ABC": 3}},
		MarketStates: map[string]wire.MarketState{"ABC": {Bids: wire.Levels{"9.5": 1}, LastPrice: 10}},
	})
	clock.advance(2 * time.Second)
	e.Process(nil)

	require.Equal(t, 1, strategy.calls)
	assert.Equal(t, []string{"ABC"}, strategy.last.Tickers())
	assert.Equal(t, int64(3), strategy.last.Positions["ABC"])
	assert.Equal(t, 9.5, strategy.last.Quotes["ABC"].TopBid)

	// mutating the snapshot must not leak back
	strategy.last.Positions["ABC"] = 99
	assert.Equal(t, int64(3), e.Position("ABC"))
}
