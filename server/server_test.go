package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sampletrader/exchange"
	"sampletrader/wire"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *exchange.Venue, string) {
	t.Helper()
	ticks, err := NewTicks(decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	venue, err := exchange.NewVenue([]exchange.BookConfig{
		{Ticker: "ABC", InitialPrice: ticks.FromPrice(10), MaxDepth: 100},
		{Ticker: "XYZ", InitialPrice: ticks.FromPrice(25), MaxDepth: 100},
	})
	require.NoError(t, err)

	srv := New(venue, ticks, cfg, zap.NewNop())
	httpSrv := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Shutdown()
		httpSrv.Close()
		venue.Stop()
	})
	return srv, venue, "ws" + strings.TrimPrefix(httpSrv.URL, "http")
}

func dial(t *testing.T, base, trader string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(base+"/"+trader, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg wire.Outbound) {
	t.Helper()
	data, err := wire.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// readUntil returns the first frame accepted by match, skipping the rest.
func readUntil(t *testing.T, conn *websocket.Conn, match func(*wire.Inbound) bool) *wire.Inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		msg, err := wire.DecodeInbound(data)
		require.NoError(t, err, string(data))
		if match(msg) {
			return msg
		}
	}
}

func ofType(typ string) func(*wire.Inbound) bool {
	return func(m *wire.Inbound) bool { return m.MessageType == typ }
}

func TestRegisterAck(t *testing.T) {
	_, _, base := newTestServer(t, Config{StartDelay: time.Hour})
	conn := dial(t, base, "alice")
	send(t, conn, wire.Register{})

	ack := readUntil(t, conn, ofType(wire.TypeAckRegister))
	require.NotNil(t, ack.EndTime)
	assert.True(t, ack.EndTime.NotStarted(), "end_time must be the year-one sentinel before start")
	require.Len(t, ack.MarketStates, 2)
	assert.Equal(t, 10.0, ack.MarketStates["ABC"].LastPrice)
	assert.Equal(t, 25.0, ack.MarketStates["XYZ"].LastPrice)
	require.NotNil(t, ack.TraderState)
	assert.Empty(t, ack.TraderState.Positions)
}

func TestRejectsBarePath(t *testing.T) {
	_, _, base := newTestServer(t, Config{StartDelay: time.Hour})
	_, resp, err := websocket.DefaultDialer.Dial(base+"/", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOrdersIgnoredBeforeStart(t *testing.T) {
	srv, venue, base := newTestServer(t, Config{StartDelay: time.Hour})
	conn := dial(t, base, "alice")
	send(t, conn, wire.Register{})
	readUntil(t, conn, ofType(wire.TypeAckRegister))

	send(t, conn, wire.ModifyOrders{Orders: []wire.Order{{Ticker: "ABC", Buy: true, Quantity: 5, Price: 9.9}}})
	// a second register is a round trip, so the order frame has been handled
	send(t, conn, wire.Register{})
	readUntil(t, conn, ofType(wire.TypeAckRegister))

	assert.False(t, srv.Started())
	views, err := venue.Snapshots()
	require.NoError(t, err)
	assert.Empty(t, views["ABC"].Bids)
}

func TestSessionLifecycle(t *testing.T) {
	_, _, base := newTestServer(t, Config{StartDelay: 20 * time.Millisecond, Duration: time.Second})

	maker := dial(t, base, "maker")
	taker := dial(t, base, "taker")
	send(t, maker, wire.Register{})
	send(t, taker, wire.Register{})
	readUntil(t, maker, ofType(wire.TypeAckRegister))
	readUntil(t, taker, ofType(wire.TypeAckRegister))

	start := readUntil(t, maker, ofType(wire.TypeStart))
	require.NotNil(t, start.EndTime)
	assert.False(t, start.EndTime.NotStarted())
	readUntil(t, taker, ofType(wire.TypeStart))

	send(t, maker, wire.ModifyOrders{Orders: []wire.Order{
		{Ticker: "ABC", Buy: false, Quantity: 10, Price: 10.004},
		{Ticker: "ABC", Buy: true, Quantity: 10, Price: 9.9},
		{Ticker: "NOPE", Buy: true, Quantity: 1, Price: 1},
		{Ticker: "ABC", Buy: true, Quantity: 0, Price: 9},
	}})
	update := readUntil(t, taker, func(m *wire.Inbound) bool {
		return m.MessageType == wire.TypeMarketUpdate && len(m.MarketState.Asks) > 0 && len(m.MarketState.Bids) > 0
	})
	assert.Equal(t, "ABC", update.MarketState.Ticker)
	assert.Equal(t, wire.Levels{"10.00": 10}, update.MarketState.Asks)
	assert.Equal(t, wire.Levels{"9.90": 10}, update.MarketState.Bids)

	send(t, taker, wire.ModifyOrders{Orders: []wire.Order{{Ticker: "ABC", Buy: true, Quantity: 4, Price: 10.5}}})

	takerState := readUntil(t, taker, ofType(wire.TypeTraderUpdate))
	assert.Equal(t, int64(4), takerState.TraderState.Positions["ABC"])
	assert.InDelta(t, -40.0, takerState.TraderState.Cash, 1e-9)

	makerState := readUntil(t, maker, ofType(wire.TypeTraderUpdate))
	assert.Equal(t, int64(-4), makerState.TraderState.Positions["ABC"])
	assert.InDelta(t, 40.0, makerState.TraderState.Cash, 1e-9)

	// session end closes the socket normally
	require.NoError(t, taker.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, _, err := taker.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			break
		}
	}
}

func TestReconnectReplacesConnection(t *testing.T) {
	_, _, base := newTestServer(t, Config{StartDelay: time.Hour})
	first := dial(t, base, "alice")
	send(t, first, wire.Register{})
	readUntil(t, first, ofType(wire.TypeAckRegister))

	second := dial(t, base, "alice")
	send(t, second, wire.Register{})
	readUntil(t, second, ofType(wire.TypeAckRegister))

	require.NoError(t, first.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, _, err := first.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
			break
		}
	}
}

func TestTicks(t *testing.T) {
	ticks, err := NewTicks(decimal.RequireFromString("0.01"))
	require.NoError(t, err)

	assert.Equal(t, int64(1000), ticks.FromPrice(10))
	assert.Equal(t, int64(1000), ticks.FromPrice(10.004))
	assert.Equal(t, int64(1001), ticks.FromPrice(10.006))
	assert.Equal(t, int64(1500), ticks.FromDecimal(decimal.RequireFromString("15")))
	assert.Equal(t, 9.99, ticks.Price(999))
	assert.Equal(t, "9.90", ticks.Key(990))

	_, err = NewTicks(decimal.Zero)
	assert.Error(t, err)
}
