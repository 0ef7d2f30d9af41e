package trading

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Aidin1998/fixgate/internal/marketdata"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func posReport(id, symbol string, side Side, qty, open string) PositionReport {
	return PositionReport{
		PositionID: id,
		AccountID:  "ACC",
		Symbol:     symbol,
		Side:       side,
		Qty:        dec(qty),
		OpenPrice:  dec(open),
		OpenTime:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestUpsertPosition_ZeroQtyRemoves(t *testing.T) {
	tr := NewPositionTracker()

	p, removed, err := tr.UpsertPosition(posReport("P123", "EUR/USD", SideBuy, "1000", "1.1"))
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, "P123", p.PositionID)
	assert.Equal(t, 1, tr.Len())

	_, removed, err = tr.UpsertPosition(posReport("P123", "EUR/USD", SideBuy, "0", "1.1"))
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = tr.Position("P123")
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.Empty(t, tr.Positions())
}

func TestUpsertPosition_ClosedReportRemoves(t *testing.T) {
	tr := NewPositionTracker()
	_, _, err := tr.UpsertPosition(posReport("P1", "EUR/USD", SideSell, "1000", "1.1"))
	require.NoError(t, err)

	r := posReport("P1", "EUR/USD", SideSell, "1000", "1.1")
	r.Closed = true
	p, removed, err := tr.UpsertPosition(r)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.True(t, p.Qty.IsZero())
	assert.Equal(t, 0, tr.Len())
}

func TestUpsertPosition_OverwritesKeepingOpenTime(t *testing.T) {
	tr := NewPositionTracker()
	_, _, err := tr.UpsertPosition(posReport("P1", "EUR/USD", SideBuy, "1000", "1.1"))
	require.NoError(t, err)

	r := posReport("P1", "EUR/USD", SideBuy, "3000", "1.1")
	r.OpenTime = time.Time{}
	p, _, err := tr.UpsertPosition(r)
	require.NoError(t, err)
	assert.True(t, p.Qty.Equal(dec("3000")))
	assert.False(t, p.OpenTime.IsZero())
}

func TestUpsertPosition_RequiresID(t *testing.T) {
	_, _, err := NewPositionTracker().UpsertPosition(PositionReport{Qty: dec("1")})
	assert.True(t, errors.Is(err, errors.Invalid))
}

func TestPositionsFor(t *testing.T) {
	tr := NewPositionTracker()
	tr.UpsertPosition(posReport("P2", "EUR/USD", SideBuy, "1", "1"))
	tr.UpsertPosition(posReport("P1", "EUR/USD", SideBuy, "1", "1"))
	tr.UpsertPosition(posReport("P3", "USD/JPY", SideBuy, "1", "150"))

	eur := tr.PositionsFor("EUR/USD")
	require.Len(t, eur, 2)
	assert.Equal(t, "P1", eur[0].PositionID)
	assert.Len(t, tr.Positions(), 3)
}

func TestWinnersAndLosers(t *testing.T) {
	tr := NewPositionTracker()
	tr.UpsertPosition(posReport("L-up", "EUR/USD", SideBuy, "1000", "1.1000"))
	tr.UpsertPosition(posReport("L-down", "EUR/USD", SideBuy, "1000", "1.1300"))
	tr.UpsertPosition(posReport("S-up", "EUR/USD", SideSell, "1000", "1.1300"))
	tr.UpsertPosition(posReport("S-down", "EUR/USD", SideSell, "1000", "1.1000"))
	tr.UpsertPosition(posReport("L-flat", "EUR/USD", SideBuy, "1000", "1.1200"))
	tr.UpsertPosition(posReport("other", "GBP/USD", SideBuy, "1000", "1.0"))

	snap := marketdata.Snapshot{Symbol: "EUR/USD", Bid: dec("1.1200"), Ask: dec("1.1202")}

	ids := func(ps []Position) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.PositionID)
		}
		return out
	}

	winners := tr.Winners("EUR/USD", snap)
	losers := tr.Losers("EUR/USD", snap)
	assert.ElementsMatch(t, []string{"L-up", "S-up"}, ids(winners))
	assert.ElementsMatch(t, []string{"L-down", "S-down", "L-flat"}, ids(losers))
	assert.Len(t, append(winners, losers...), len(tr.PositionsFor("EUR/USD")))

	for _, p := range winners {
		assert.True(t, p.UnrealizedPnL(snap).IsPositive())
	}
}

func TestCurrentPrice(t *testing.T) {
	snap := marketdata.Snapshot{Bid: dec("1.0"), Ask: dec("1.2")}
	assert.Equal(t, "1", Position{Side: SideBuy}.CurrentPrice(snap).String())
	assert.Equal(t, "1.2", Position{Side: SideSell}.CurrentPrice(snap).String())
	assert.Equal(t, int64(-1), Position{Side: SideSell}.Direction())
}

func TestPositionTrackerStale(t *testing.T) {
	tr := NewPositionTracker()
	tr.MarkStale()
	assert.True(t, tr.Stale())
	tr.UpsertPosition(posReport("P1", "EUR/USD", SideBuy, "1", "1"))
	assert.False(t, tr.Stale())
	tr.Clear()
	assert.Equal(t, 0, tr.Len())
}

func TestPositionTracker_ConcurrentUpserts(t *testing.T) {
	tr := NewPositionTracker()
	snap := marketdata.Snapshot{Symbol: "EUR/USD", Bid: dec("1.2"), Ask: dec("1.2002")}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		id := fmt.Sprintf("P%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for _, qty := range []string{"1000", "2000", "3000"} {
				_, _, err := tr.UpsertPosition(posReport(id, "EUR/USD", SideBuy, qty, "1.1"))
				assert.NoError(t, err)
			}
			if i%2 == 1 {
				_, _, err := tr.UpsertPosition(posReport(id, "EUR/USD", SideBuy, "0", "1.1"))
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			_ = tr.Positions()
			_ = tr.PositionsFor("EUR/USD")
			_ = tr.Winners("EUR/USD", snap)
			_ = tr.Len()
		}()
	}
	wg.Wait()

	require.Equal(t, 10, tr.Len())
	for _, p := range tr.Positions() {
		assert.True(t, p.Qty.Equal(dec("3000")), p.PositionID)
	}
	assert.Len(t, tr.Winners("EUR/USD", snap), 10)
}
