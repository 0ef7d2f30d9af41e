package marketdata

import (
	"sync"
	"testing"
	"time"

	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(symbol, bid, ask string) Snapshot {
	return Snapshot{
		Symbol:    symbol,
		Bid:       decimal.RequireFromString(bid),
		Ask:       decimal.RequireFromString(ask),
		Timestamp: time.Now(),
	}
}

func TestLatestSnapshot_NotFoundBeforeUpdate(t *testing.T) {
	st := NewState()

	s, err := st.LatestSnapshot("GBP/USD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.Equal(t, Snapshot{}, s)
}

func TestUpdateSnapshot_LastWriteWins(t *testing.T) {
	st := NewState()
	st.UpdateSnapshot(snap("EUR/USD", "1.1000", "1.1002"))
	st.UpdateSnapshot(snap("EUR/USD", "1.0990", "1.0992"))

	s, err := st.LatestSnapshot("EUR/USD")
	require.NoError(t, err)
	assert.Equal(t, "1.099", s.Bid.String())
	assert.Equal(t, "1.0991", s.Mid().String())
	assert.Equal(t, "0.0002", s.Spread().String())
}

func TestMarketDetail(t *testing.T) {
	st := NewState()
	_, err := st.MarketDetail("USD/JPY")
	assert.True(t, errors.Is(err, errors.NotFound))

	st.SetDetail(Detail{Symbol: "USD/JPY", PointSize: decimal.RequireFromString("0.01"), Currency: "USD"})
	d, err := st.MarketDetail("USD/JPY")
	require.NoError(t, err)
	assert.Equal(t, "USD", d.Currency)
}

func TestInstruments_UniqueAndSorted(t *testing.T) {
	st := NewState()
	assert.True(t, st.AddInstrument(Instrument{Symbol: "USD/JPY"}))
	assert.True(t, st.AddInstrument(Instrument{Symbol: "EUR/USD"}))
	assert.False(t, st.AddInstrument(Instrument{Symbol: "EUR/USD", Volume: 9}))

	insts := st.Instruments()
	require.Len(t, insts, 2)
	assert.Equal(t, "EUR/USD", insts[0].Symbol)
	assert.Equal(t, 0, insts[0].Volume)
	assert.Equal(t, "USD/JPY", insts[1].Symbol)
}

func TestMarkSubscribed(t *testing.T) {
	st := NewState()
	st.SetDetail(Detail{Symbol: "EUR/USD", PointSize: decimal.RequireFromString("0.0001")})

	inst, first := st.MarkSubscribed("EUR/USD", "7")
	assert.True(t, first)
	assert.Equal(t, "7", inst.SubscriptionID)
	assert.Equal(t, "0.0001", inst.TickSize.String())

	inst, first = st.MarkSubscribed("EUR/USD", "8")
	assert.False(t, first)
	assert.Equal(t, "7", inst.SubscriptionID)
	assert.Equal(t, 2, inst.Volume)
	assert.Len(t, st.Subscribed(), 1)
}

func TestMarkUnsubscribed(t *testing.T) {
	st := NewState()
	st.MarkSubscribed("EUR/USD", "7")
	st.MarkSubscribed("EUR/USD", "8")

	inst, last := st.MarkUnsubscribed("EUR/USD")
	assert.False(t, last)
	assert.Equal(t, 1, inst.Volume)

	inst, last = st.MarkUnsubscribed("EUR/USD")
	assert.True(t, last)
	assert.Equal(t, "7", inst.SubscriptionID)
	assert.Empty(t, st.Subscribed())

	_, last = st.MarkUnsubscribed("EUR/USD")
	assert.False(t, last)
	_, last = st.MarkUnsubscribed("GBP/USD")
	assert.False(t, last)
}

func TestResetSubscription(t *testing.T) {
	st := NewState()
	st.MarkSubscribed("EUR/USD", "7")
	st.MarkSubscribed("EUR/USD", "8")
	st.SetSubscriptionID("EUR/USD", "9")

	st.ResetSubscription("EUR/USD")
	inst, err := st.Instrument("EUR/USD")
	require.NoError(t, err)
	assert.False(t, inst.Subscribed())
	assert.Empty(t, inst.SubscriptionID)

	_, first := st.MarkSubscribed("EUR/USD", "10")
	assert.True(t, first)
	st.ResetSubscription("GBP/USD")
	_, err = st.Instrument("GBP/USD")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestAbortSubscribed(t *testing.T) {
	st := NewState()
	st.MarkSubscribed("XAU/USD", "")
	st.AbortSubscribed("XAU/USD")
	_, err := st.Instrument("XAU/USD")
	assert.True(t, errors.Is(err, errors.NotFound), "unlisted instrument is dropped")
	assert.Empty(t, st.Instruments())

	st.SetDetail(Detail{Symbol: "EUR/USD"})
	st.AddInstrument(Instrument{Symbol: "EUR/USD"})
	st.MarkSubscribed("EUR/USD", "4")
	st.AbortSubscribed("EUR/USD")
	inst, err := st.Instrument("EUR/USD")
	require.NoError(t, err)
	assert.False(t, inst.Subscribed())
	assert.Empty(t, inst.SubscriptionID)

	st.MarkSubscribed("GBP/USD", "5")
	st.MarkSubscribed("GBP/USD", "")
	st.AbortSubscribed("GBP/USD")
	inst, err = st.Instrument("GBP/USD")
	require.NoError(t, err)
	assert.Equal(t, 1, inst.Volume)
	assert.Equal(t, "5", inst.SubscriptionID)

	st.AbortSubscribed("USD/CHF")
}

func TestRemoveInstrument_DropsSnapshotKeepsDetail(t *testing.T) {
	st := NewState()
	st.MarkSubscribed("EUR/USD", "3")
	st.SetDetail(Detail{Symbol: "EUR/USD"})
	st.UpdateSnapshot(snap("EUR/USD", "1", "2"))

	inst, err := st.RemoveInstrument("EUR/USD")
	require.NoError(t, err)
	assert.Equal(t, "3", inst.SubscriptionID)

	_, err = st.LatestSnapshot("EUR/USD")
	assert.True(t, errors.Is(err, errors.NotFound))
	_, err = st.MarketDetail("EUR/USD")
	assert.NoError(t, err)

	_, err = st.RemoveInstrument("EUR/USD")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestStale(t *testing.T) {
	st := NewState()
	st.UpdateSnapshot(snap("EUR/USD", "1", "2"))
	st.MarkStale()
	assert.True(t, st.Stale())
	_, err := st.LatestSnapshot("EUR/USD")
	assert.NoError(t, err, "stale data is kept for reconciliation")

	st.UpdateSnapshot(snap("EUR/USD", "1", "2"))
	assert.False(t, st.Stale())
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	st := NewState()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			st.UpdateSnapshot(snap("EUR/USD", "1.1", "1.2"))
			st.AddInstrument(Instrument{Symbol: "EUR/USD"})
		}()
		go func() {
			defer wg.Done()
			_, _ = st.LatestSnapshot("EUR/USD")
			_ = st.Instruments()
		}()
	}
	wg.Wait()
	assert.Len(t, st.Instruments(), 1)
}
