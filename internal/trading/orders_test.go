package trading

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// OrderBookTestSuite exercises the order state machine.
type OrderBookTestSuite struct {
	suite.Suite
	book *OrderBook
}

func (suite *OrderBookTestSuite) SetupTest() {
	suite.book = NewOrderBook(zaptest.NewLogger(suite.T()))
	_, err := suite.book.Add(Order{
		ClOrdID: "ref-1",
		Account: "ACC",
		Symbol:  "EUR/USD",
		Side:    SideBuy,
		Type:    OrderTypeMarket,
		Qty:     dec("100000"),
	})
	suite.Require().NoError(err)
}

func TestOrderBookSuite(t *testing.T) {
	suite.Run(t, new(OrderBookTestSuite))
}

func (suite *OrderBookTestSuite) report(execID string, et ExecType, cum, last string) ExecutionReport {
	return ExecutionReport{
		ClOrdID:  "ref-1",
		OrderID:  "B-1",
		ExecID:   execID,
		ExecType: et,
		Symbol:   "EUR/USD",
		CumQty:   dec(cum),
		LastQty:  dec(last),
		LastPx:   dec("1.1"),
		AvgPx:    dec("1.1"),
	}
}

func (suite *OrderBookTestSuite) TestAdd() {
	suite.Run("Duplicate", func() {
		_, err := suite.book.Add(Order{ClOrdID: "ref-1", Qty: dec("1")})
		suite.True(errors.Is(err, errors.Conflict))
	})
	suite.Run("MissingReference", func() {
		_, err := suite.book.Add(Order{Qty: dec("1")})
		suite.True(errors.Is(err, errors.Invalid))
	})
	suite.Run("NonPositiveQty", func() {
		_, err := suite.book.Add(Order{ClOrdID: "ref-2"})
		suite.True(errors.Is(err, errors.Invalid))
	})
	suite.Run("StartsNew", func() {
		o, err := suite.book.Order("ref-1")
		suite.Require().NoError(err)
		suite.Equal(StatusNew, o.Status)
		suite.True(o.LeavesQty.Equal(dec("100000")))
	})
}

func (suite *OrderBookTestSuite) TestPartialThenFull() {
	tr, err := suite.book.ApplyExecution(suite.report("E0", ExecNew, "0", "0"))
	suite.Require().NoError(err)
	suite.False(tr.Changed)
	suite.Equal("B-1", tr.Order.OrderID)

	tr, err = suite.book.ApplyExecution(suite.report("E1", ExecTrade, "40000", "40000"))
	suite.Require().NoError(err)
	suite.True(tr.Changed)
	suite.Equal(StatusPartiallyFilled, tr.To)
	suite.Require().NotNil(tr.Execution)
	suite.True(tr.Execution.Qty.Equal(dec("40000")))

	tr, err = suite.book.ApplyExecution(suite.report("E2", ExecTrade, "100000", "60000"))
	suite.Require().NoError(err)
	suite.Equal(StatusPartiallyFilled, tr.From)
	suite.Equal(StatusFilled, tr.To)

	suite.Empty(suite.book.ActiveOrders())
	suite.Len(suite.book.Executions(), 2)
	suite.Len(suite.book.ExecutionsFor("ref-1"), 2)

	o, err := suite.book.Order("ref-1")
	suite.Require().NoError(err)
	suite.Equal(StatusFilled, o.Status)
}

func (suite *OrderBookTestSuite) TestDuplicateExecIgnored() {
	_, err := suite.book.ApplyExecution(suite.report("E1", ExecTrade, "40000", "40000"))
	suite.Require().NoError(err)
	tr, err := suite.book.ApplyExecution(suite.report("E1", ExecTrade, "40000", "40000"))
	suite.Require().NoError(err)
	suite.False(tr.Changed)
	suite.Nil(tr.Execution)
	suite.Len(suite.book.Executions(), 1)
}

func (suite *OrderBookTestSuite) TestBackwardMovesRejected() {
	_, err := suite.book.ApplyExecution(suite.report("E1", ExecFill, "100000", "100000"))
	suite.Require().NoError(err)

	suite.Run("PartialAfterFilled", func() {
		_, err := suite.book.ApplyExecution(suite.report("E2", ExecPartialFill, "50000", "50000"))
		suite.True(errors.Is(err, errors.Inconsistent))
	})
	suite.Run("CancelAfterFilled", func() {
		_, err := suite.book.ApplyExecution(suite.report("E3", ExecCanceled, "100000", "0"))
		suite.True(errors.Is(err, errors.Inconsistent))
	})
	suite.Run("RejectAfterFilled", func() {
		_, err := suite.book.ApplyExecution(suite.report("E4", ExecRejected, "0", "0"))
		suite.True(errors.Is(err, errors.Inconsistent))
	})
	suite.Run("ReplayOfFinalStatus", func() {
		tr, err := suite.book.ApplyExecution(suite.report("E5", ExecFill, "100000", "0"))
		suite.NoError(err)
		suite.False(tr.Changed)
	})

	o, err := suite.book.Order("ref-1")
	suite.Require().NoError(err)
	suite.Equal(StatusFilled, o.Status)
	suite.Len(suite.book.Executions(), 1)
}

func (suite *OrderBookTestSuite) TestCumQtyRegression() {
	_, err := suite.book.ApplyExecution(suite.report("E1", ExecTrade, "60000", "60000"))
	suite.Require().NoError(err)
	_, err = suite.book.ApplyExecution(suite.report("E2", ExecTrade, "50000", "10000"))
	suite.True(errors.Is(err, errors.Inconsistent))

	o, _ := suite.book.Order("ref-1")
	suite.True(o.CumQty.Equal(dec("60000")))
}

func (suite *OrderBookTestSuite) TestRejectFromPartiallyFilled() {
	_, err := suite.book.ApplyExecution(suite.report("E1", ExecTrade, "10000", "10000"))
	suite.Require().NoError(err)
	tr, err := suite.book.ApplyExecution(suite.report("E2", ExecRejected, "10000", "0"))
	suite.Require().NoError(err)
	suite.Equal(StatusRejected, tr.To)
	suite.Empty(suite.book.ActiveOrders())
}

func (suite *OrderBookTestSuite) TestCancelByOrigClOrdID() {
	r := suite.report("E1", ExecCanceled, "0", "0")
	r.ClOrdID = "cancel-9"
	r.OrigClOrdID = "ref-1"
	tr, err := suite.book.ApplyExecution(r)
	suite.Require().NoError(err)
	suite.Equal("ref-1", tr.Order.ClOrdID)
	suite.Equal(StatusCancelled, tr.To)
}

func (suite *OrderBookTestSuite) TestExpiredCountsAsCancelled() {
	tr, err := suite.book.ApplyExecution(suite.report("E1", ExecExpired, "0", "0"))
	suite.Require().NoError(err)
	suite.Equal(StatusCancelled, tr.To)
}

func (suite *OrderBookTestSuite) TestOrderStatusReport() {
	r := suite.report("E1", ExecOrderStatus, "20000", "0")
	r.OrdStatus = OrdStatusPartiallyFilled
	tr, err := suite.book.ApplyExecution(r)
	suite.Require().NoError(err)
	suite.Equal(StatusPartiallyFilled, tr.To)

	r = suite.report("E2", ExecOrderStatus, "20000", "0")
	r.OrdStatus = OrdStatusNew
	_, err = suite.book.ApplyExecution(r)
	suite.True(errors.Is(err, errors.Inconsistent))
}

func (suite *OrderBookTestSuite) TestUnsolicitedReportAdopted() {
	tr, err := suite.book.ApplyExecution(ExecutionReport{
		ClOrdID:  "foreign",
		OrderID:  "B-77",
		ExecID:   "X1",
		ExecType: ExecNew,
		Symbol:   "USD/JPY",
		Side:     SideSell,
		OrderQty: dec("5000"),
	})
	suite.Require().NoError(err)
	suite.True(tr.Adopted)
	suite.Equal(StatusNew, tr.To)

	orders := suite.book.ActiveOrdersFor("USD/JPY")
	suite.Require().Len(orders, 1)
	suite.Equal("B-77", orders[0].OrderID)

	// later reports may only carry the broker id
	tr, err = suite.book.ApplyExecution(ExecutionReport{OrderID: "B-77", ExecID: "X2", ExecType: ExecFill, CumQty: dec("5000"), LastQty: dec("5000")})
	suite.Require().NoError(err)
	suite.Equal("foreign", tr.Order.ClOrdID)
	suite.Equal(StatusFilled, tr.To)
}

func (suite *OrderBookTestSuite) TestReportWithoutReference() {
	_, err := suite.book.ApplyExecution(ExecutionReport{ExecID: "Z", ExecType: ExecNew})
	suite.True(errors.Is(err, errors.Invalid))
}

func (suite *OrderBookTestSuite) TestStatusNeverDecreases() {
	seq := []ExecutionReport{
		suite.report("E1", ExecTrade, "10000", "10000"),
		suite.report("E2", ExecNew, "0", "0"),
		suite.report("E3", ExecTrade, "5000", "5000"),
		suite.report("E4", ExecTrade, "30000", "20000"),
		suite.report("E5", ExecCanceled, "30000", "0"),
		suite.report("E6", ExecTrade, "100000", "70000"),
		suite.report("E7", ExecRejected, "0", "0"),
	}
	last := StatusNew
	for _, r := range seq {
		_, _ = suite.book.ApplyExecution(r)
		o, err := suite.book.Order("ref-1")
		suite.Require().NoError(err)
		suite.GreaterOrEqual(o.Status.rank(), last.rank())
		if last.Terminal() {
			suite.Equal(last, o.Status)
		}
		last = o.Status
	}
	suite.Equal(StatusCancelled, last)
}

func (suite *OrderBookTestSuite) TestDiscardAndStale() {
	suite.book.Discard("ref-1")
	_, err := suite.book.Order("ref-1")
	suite.True(errors.Is(err, errors.NotFound))

	suite.book.MarkStale()
	suite.True(suite.book.Stale())
	_, err = suite.book.Add(Order{ClOrdID: "ref-3", Qty: dec("1")})
	suite.Require().NoError(err)
	suite.False(suite.book.Stale())

	suite.book.Clear()
	suite.Empty(suite.book.ActiveOrders())
}

func TestOrderBook_ConcurrentExecutions(t *testing.T) {
	book := NewOrderBook(zaptest.NewLogger(t))
	const orders = 20
	for i := 0; i < orders; i++ {
		_, err := book.Add(Order{ClOrdID: fmt.Sprintf("ref-%d", i), Symbol: "EUR/USD", Side: SideBuy, Type: OrderTypeMarket, Qty: dec("400")})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < orders; i++ {
		ref := fmt.Sprintf("ref-%d", i)
		report := func(step int) ExecutionReport {
			return ExecutionReport{
				ClOrdID:  ref,
				OrderID:  "B-" + ref,
				ExecID:   fmt.Sprintf("%s-E%d", ref, step),
				ExecType: ExecTrade,
				Symbol:   "EUR/USD",
				CumQty:   decimal.NewFromInt(int64(step * 100)),
				LastQty:  dec("100"),
				LastPx:   dec("1.1"),
			}
		}
		wg.Add(3)
		go func() {
			defer wg.Done()
			for step := 1; step <= 4; step++ {
				_, _ = book.ApplyExecution(report(step))
			}
		}()
		go func() {
			defer wg.Done()
			// redelivery of the final fill may land before or after the others
			_, _ = book.ApplyExecution(report(4))
		}()
		go func() {
			defer wg.Done()
			_ = book.ActiveOrders()
			_ = book.Executions()
			_, _ = book.Order(ref)
		}()
	}
	wg.Wait()

	assert.Empty(t, book.ActiveOrders())
	for i := 0; i < orders; i++ {
		o, err := book.Order(fmt.Sprintf("ref-%d", i))
		require.NoError(t, err)
		assert.Equal(t, StatusFilled, o.Status)
		assert.True(t, o.CumQty.Equal(dec("400")))
	}
	seen := map[string]bool{}
	for _, e := range book.Executions() {
		assert.False(t, seen[e.ExecID], "execution %s recorded twice", e.ExecID)
		seen[e.ExecID] = true
	}
}
