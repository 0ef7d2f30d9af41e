package journal

import (
	"context"
	"testing"
	"time"

	appconfig "github.com/Aidin1998/fixgate/internal/config"
	"github.com/Aidin1998/fixgate/internal/events"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

type JournalTestSuite struct {
	suite.Suite
	journal *Journal
	events  *events.Dispatcher
	now     time.Time
}

func TestJournalTestSuite(t *testing.T) {
	suite.Run(t, new(JournalTestSuite))
}

func (s *JournalTestSuite) SetupTest() {
	db, err := Open(appconfig.JournalConfig{Enabled: true, Driver: "sqlite", DSN: ":memory:"})
	s.Require().NoError(err)
	s.journal, err = New(db, zaptest.NewLogger(s.T()))
	s.Require().NoError(err)

	s.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.journal.now = func() time.Time {
		s.now = s.now.Add(time.Second)
		return s.now
	}
	s.events = events.NewDispatcher(nil)
	s.journal.Attach(s.events)
}

func (s *JournalTestSuite) TearDownTest() {
	s.NoError(s.journal.Close())
}

func execution(id, symbol string, at time.Time) trading.Execution {
	return trading.Execution{
		ExecID:    id,
		ClOrdID:   "C1",
		OrderID:   "O1",
		Account:   "ACC1",
		Symbol:    symbol,
		Side:      trading.SideBuy,
		Qty:       decimal.NewFromInt(400),
		Price:     decimal.RequireFromString("1.1012"),
		Timestamp: at,
	}
}

func (s *JournalTestSuite) TestRecordsExecutions() {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s.Equal(1, s.events.Execution.Publish(execution("E1", "EUR/USD", t0)))
	s.Equal(1, s.events.Execution.Publish(execution("E2", "USD/JPY", t0.Add(time.Minute))))

	all, err := s.journal.Executions(context.Background(), Filter{})
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal("E1", all[0].ExecID)
	s.True(all[0].Qty.Equal(decimal.NewFromInt(400)))
	s.True(all[0].Price.Equal(decimal.RequireFromString("1.1012")))
	s.Equal("BUY", all[0].Side)

	eur, err := s.journal.Executions(context.Background(), Filter{Symbol: "EUR/USD"})
	s.Require().NoError(err)
	s.Len(eur, 1)

	later, err := s.journal.Executions(context.Background(), Filter{Since: t0.Add(30 * time.Second)})
	s.Require().NoError(err)
	s.Require().Len(later, 1)
	s.Equal("E2", later[0].ExecID)

	limited, err := s.journal.Executions(context.Background(), Filter{Account: "ACC1", Limit: 1})
	s.Require().NoError(err)
	s.Len(limited, 1)
}

func (s *JournalTestSuite) TestDuplicateExecutionIgnored() {
	e := execution("E1", "EUR/USD", time.Time{})
	s.NoError(s.journal.RecordExecution(context.Background(), e))
	s.NoError(s.journal.RecordExecution(context.Background(), e))

	all, err := s.journal.Executions(context.Background(), Filter{})
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.False(all[0].ExecutedAt.IsZero())
}

func (s *JournalTestSuite) TestOrderHistory() {
	o := trading.Order{ClOrdID: "C1", OrderID: "O1", Symbol: "EUR/USD", Account: "ACC1", CumQty: decimal.NewFromInt(400), LeavesQty: decimal.NewFromInt(600)}
	s.events.OrderUpdate.Publish(events.OrderUpdate{Order: o, From: trading.StatusNew, To: trading.StatusPartiallyFilled})
	o.CumQty, o.LeavesQty = decimal.NewFromInt(1000), decimal.Zero
	s.events.OrderUpdate.Publish(events.OrderUpdate{Order: o, From: trading.StatusPartiallyFilled, To: trading.StatusFilled})

	hist, err := s.journal.OrderHistory(context.Background(), "C1")
	s.Require().NoError(err)
	s.Require().Len(hist, 2)
	s.Equal("NEW", hist[0].FromStatus)
	s.Equal("PARTIALLY_FILLED", hist[0].ToStatus)
	s.Equal("FILLED", hist[1].ToStatus)
	s.True(hist[1].CumQty.Equal(decimal.NewFromInt(1000)))

	_, err = s.journal.OrderHistory(context.Background(), "missing")
	s.True(errors.Is(err, errors.NotFound))
}

func (s *JournalTestSuite) TestOpenRejectsUnknownDriver() {
	_, err := Open(appconfig.JournalConfig{Driver: "mysql"})
	s.True(errors.Is(err, errors.Invalid))
}
