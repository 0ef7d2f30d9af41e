package commands_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Aidin1998/fixgate/internal/commands"
	"github.com/Aidin1998/fixgate/internal/correlation"
	"github.com/Aidin1998/fixgate/internal/session"
	"github.com/Aidin1998/fixgate/internal/trading"
	fxerrors "github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/Aidin1998/fixgate/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	ids      *correlation.Correlator
	sessions *session.Resolver
	sender   *testutil.RecordingSender
	builder  *commands.Builder
}

func newFixture(t *testing.T, opts commands.Options) *fixture {
	logger := zaptest.NewLogger(t)
	settings := session.MapSettings{
		"MD":  {session.SettingMarketDataSession: true},
		"ORD": {session.SettingOrderSession: true},
	}
	f := &fixture{
		ids:      correlation.New(0, logger),
		sessions: session.NewResolver(settings, logger),
		sender:   &testutil.RecordingSender{},
	}
	f.builder = commands.NewBuilder(f.ids, f.sessions, f.sender, opts, logger)
	return f
}

func TestRoutingError_NothingSent(t *testing.T) {
	f := newFixture(t, commands.Options{})
	ctx := context.Background()

	_, err := f.builder.SubscribeMarketData(ctx, "EUR/USD")
	assert.True(t, fxerrors.Is(err, fxerrors.Routing))
	_, err = f.builder.QueryAccounts(ctx)
	assert.True(t, fxerrors.Is(err, fxerrors.Routing))

	assert.Empty(t, f.sender.Sent())
	assert.Equal(t, 0, f.ids.Outstanding())
}

func TestFailedRequestKeepsWrappedOutstandingID(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ids := correlation.New(2, logger)
	sessions := session.NewResolver(session.MapSettings{"ORD": {session.SettingOrderSession: true}}, logger)
	sender := &testutil.RecordingSender{}
	builder := commands.NewBuilder(ids, sessions, sender, commands.Options{}, logger)
	ctx := context.Background()

	sessions.Logon("ORD")
	pos, err := builder.QueryPositions(ctx, "ACC")
	require.NoError(t, err)
	_, err = builder.QueryAccounts(ctx)
	require.NoError(t, err)
	_, ok := ids.Resolve("2")
	require.True(t, ok)

	sessions.Logout("ORD")
	_, err = builder.QueryAccounts(ctx)
	require.True(t, fxerrors.Is(err, fxerrors.Routing))
	p, ok := ids.Pending(pos.RequestID)
	require.True(t, ok, "routing failure leaves the outstanding entry alone")
	assert.Equal(t, correlation.KindPositions, p.Kind)
	assert.Equal(t, "ACC", p.Account)

	sessions.Logon("ORD")
	ids.Next()
	sender.Err = errors.New("link down")
	_, err = builder.QueryAccounts(ctx)
	require.True(t, fxerrors.Is(err, fxerrors.Unavailable))
	p, ok = ids.Pending(pos.RequestID)
	require.True(t, ok, "send failure restores the displaced entry")
	assert.Equal(t, correlation.KindPositions, p.Kind)
	assert.Equal(t, 1, ids.Outstanding())
}

func TestRequestsRoutedByRole(t *testing.T) {
	f := newFixture(t, commands.Options{})
	f.sessions.Logon("MD")
	f.sessions.Logon("ORD")
	ctx := context.Background()

	sub, err := f.builder.SubscribeMarketData(ctx, "EUR/USD")
	require.NoError(t, err)
	_, err = f.builder.QueryTradingStatus(ctx)
	require.NoError(t, err)
	_, err = f.builder.QueryPositions(ctx, "ACC")
	require.NoError(t, err)

	sent := f.sender.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, session.ID("MD"), sent[0].Session)
	assert.Equal(t, session.ID("ORD"), sent[1].Session)
	assert.Equal(t, session.ID("ORD"), sent[2].Session)

	p, ok := f.ids.Pending(sub.RequestID)
	require.True(t, ok)
	assert.Equal(t, correlation.KindSubscribe, p.Kind)
	assert.Equal(t, "EUR/USD", p.Symbol)
	assert.Equal(t, 3, f.ids.Outstanding())
}

func TestDistinctIDs(t *testing.T) {
	f := newFixture(t, commands.Options{})
	f.sessions.Logon("ORD")
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		req, err := f.builder.QueryAccounts(context.Background())
		require.NoError(t, err)
		assert.False(t, seen[req.RequestID])
		seen[req.RequestID] = true
	}
}

func TestNewOrder(t *testing.T) {
	f := newFixture(t, commands.Options{})
	f.sessions.Logon("ORD")
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		o, err := f.builder.NewOrder(ctx, commands.NewOrder{
			Symbol: "EUR/USD",
			Side:   trading.SideBuy,
			Type:   trading.OrderTypeMarket,
			Qty:    decimal.NewFromInt(10000),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, o.ClOrdID)
		assert.NotEmpty(t, o.RequestID)
		assert.Equal(t, trading.TimeInForceGTC, o.TimeInForce)

		p, ok := f.ids.Pending(o.RequestID)
		require.True(t, ok)
		assert.Equal(t, o.ClOrdID, p.Ref)
	})

	t.Run("limit without price", func(t *testing.T) {
		_, err := f.builder.NewOrder(ctx, commands.NewOrder{
			Symbol: "EUR/USD",
			Side:   trading.SideSell,
			Type:   trading.OrderTypeLimit,
			Qty:    decimal.NewFromInt(1),
		})
		require.Error(t, err)
		assert.True(t, fxerrors.Is(err, fxerrors.Invalid))

		var e *fxerrors.Error
		require.True(t, fxerrors.As(err, &e))
		require.Len(t, e.Fields, 1)
		assert.Equal(t, "price", e.Fields[0].Field)
	})

	t.Run("bad side and type", func(t *testing.T) {
		_, err := f.builder.NewOrder(ctx, commands.NewOrder{Symbol: "EUR/USD", Qty: decimal.NewFromInt(1)})
		var e *fxerrors.Error
		require.True(t, fxerrors.As(err, &e))
		assert.Len(t, e.Fields, 2)
	})
}

func TestClosePosition(t *testing.T) {
	f := newFixture(t, commands.Options{})
	f.sessions.Logon("ORD")

	req, err := f.builder.ClosePosition(context.Background(), trading.Position{
		PositionID: "P1",
		AccountID:  "ACC",
		Symbol:     "EUR/USD",
		Side:       trading.SideSell,
		Qty:        decimal.NewFromInt(5000),
	}, "close-1")
	require.NoError(t, err)
	assert.Equal(t, trading.SideBuy, req.Side)
	assert.Equal(t, "P1", req.PositionID)
	assert.Equal(t, "close-1", req.ClOrdID)

	_, err = f.builder.ClosePosition(context.Background(), trading.Position{PositionID: "P2"}, "")
	assert.True(t, fxerrors.Is(err, fxerrors.Invalid))
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t, commands.Options{})
	f.sessions.Logon("ORD")

	req, err := f.builder.CancelOrder(context.Background(), trading.Order{ClOrdID: "ref-1", OrderID: "B-1", Symbol: "EUR/USD"})
	require.NoError(t, err)
	assert.Equal(t, "ref-1", req.OrigClOrdID)
	assert.NotEqual(t, "ref-1", req.ClOrdID)
	assert.Equal(t, "B-1", req.OrderID)
}

func TestSendFailureReleasesID(t *testing.T) {
	f := newFixture(t, commands.Options{})
	f.sessions.Logon("ORD")
	f.sender.Err = errors.New("session not connected")

	_, err := f.builder.QueryAccounts(context.Background())
	assert.True(t, fxerrors.Is(err, fxerrors.Unavailable))
	assert.Equal(t, 0, f.ids.Outstanding())
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, commands.Options{SendRate: 1, SendBurst: 1})
	f.sessions.Logon("ORD")

	_, err := f.builder.QueryAccounts(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = f.builder.QueryAccounts(ctx)
	assert.True(t, fxerrors.Is(err, fxerrors.Unavailable))
	assert.Len(t, f.sender.Sent(), 1)
	assert.Equal(t, 1, f.ids.Outstanding())
}
