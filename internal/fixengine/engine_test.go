package fixengine

import (
	"context"
	"sync"
	"testing"
	"time"

	appconfig "github.com/Aidin1998/fixgate/internal/config"
	"github.com/Aidin1998/fixgate/internal/commands"
	"github.com/Aidin1998/fixgate/internal/gateway"
	"github.com/Aidin1998/fixgate/internal/session"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

var (
	mdSID  = quickfix.SessionID{BeginString: quickfix.BeginStringFIX44, SenderCompID: "CLIENT_MD", TargetCompID: "FXCM"}
	ordSID = quickfix.SessionID{BeginString: quickfix.BeginStringFIX44, SenderCompID: "CLIENT_ORD", TargetCompID: "FXCM"}
)

func testConfig() appconfig.FIXConfig {
	return appconfig.FIXConfig{
		Sessions: []appconfig.SessionConfig{
			{BeginString: "FIX.4.4", SenderCompID: "CLIENT_MD", TargetCompID: "FXCM", Host: "127.0.0.1", Port: 9810, HeartBtInt: 30, MarketData: true},
			{BeginString: "FIX.4.4", SenderCompID: "CLIENT_ORD", TargetCompID: "FXCM", Host: "127.0.0.1", Port: 9810, HeartBtInt: 30, Order: true,
				Extra: map[string]string{"resetonlogon": "Y", "CustomKey": "v"}},
		},
	}
}

// recordingInbound is a gateway.Inbound keeping every callback.
type recordingInbound struct {
	mu    sync.Mutex
	calls []any
}

func (r *recordingInbound) add(v any) {
	r.mu.Lock()
	r.calls = append(r.calls, v)
	r.mu.Unlock()
}

func (r *recordingInbound) last() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func (r *recordingInbound) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type lifecycle struct {
	event string
	id    session.ID
}

func (r *recordingInbound) OnCreate(id session.ID) { r.add(lifecycle{"create", id}) }
func (r *recordingInbound) OnLogon(id session.ID)  { r.add(lifecycle{"logon", id}) }
func (r *recordingInbound) OnLogout(id session.ID) { r.add(lifecycle{"logout", id}) }
func (r *recordingInbound) OnTradingSessionStatus(_ session.ID, m gateway.TradingSessionStatus) {
	r.add(m)
}
func (r *recordingInbound) OnCollateralInquiryAck(_ session.ID, m gateway.CollateralInquiryAck) {
	r.add(m)
}
func (r *recordingInbound) OnCollateralReport(_ session.ID, m gateway.CollateralReport) { r.add(m) }
func (r *recordingInbound) OnRequestForPositionsAck(_ session.ID, m gateway.PositionsAck) {
	r.add(m)
}
func (r *recordingInbound) OnPositionReport(_ session.ID, m trading.PositionReport) { r.add(m) }
func (r *recordingInbound) OnMarketDataSnapshot(_ session.ID, m gateway.MarketDataSnapshot) {
	r.add(m)
}
func (r *recordingInbound) OnMarketDataReject(_ session.ID, m gateway.MarketDataReject) { r.add(m) }
func (r *recordingInbound) OnExecutionReport(_ session.ID, m trading.ExecutionReport)  { r.add(m) }
func (r *recordingInbound) OnOrderCancelReject(_ session.ID, m gateway.OrderCancelReject) {
	r.add(m)
}

type sentMessage struct {
	msg *quickfix.Message
	sid quickfix.SessionID
}

type EngineTestSuite struct {
	suite.Suite
	inbound *recordingInbound
	engine  *Engine
	sent    []sentMessage
	sendErr error
	now     time.Time
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) SetupTest() {
	settings, err := BuildSettings(testConfig())
	s.Require().NoError(err)

	s.inbound = &recordingInbound{}
	s.sent = nil
	s.sendErr = nil
	s.now = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	s.engine = New(s.inbound, settings, Options{Credentials: Credentials{
		Username:         "demo",
		Password:         "secret",
		TargetSubID:      "U100D1",
		TradingSessionID: "FXCM",
	}}, zaptest.NewLogger(s.T()))
	s.engine.now = func() time.Time { return s.now }
	s.engine.sendToTarget = func(m quickfix.Messagable, sid quickfix.SessionID) error {
		if s.sendErr != nil {
			return s.sendErr
		}
		s.sent = append(s.sent, sentMessage{msg: m.ToMessage(), sid: sid})
		return nil
	}
}

func inbound(msgType string) *quickfix.Message {
	msg := quickfix.NewMessage()
	msg.Header.SetString(quickfix.Tag(8), quickfix.BeginStringFIX44)
	msg.Header.SetString(tagMsgType, msgType)
	return msg
}

func (s *EngineTestSuite) TestSendRoutesToSession() {
	err := s.engine.Send(context.Background(), commands.QueryTradingStatus{RequestID: "7"}, sessionID(ordSID))
	s.Require().NoError(err)
	s.Require().Len(s.sent, 1)
	s.Equal(ordSID, s.sent[0].sid)

	msg := s.sent[0].msg
	s.True(msg.IsMsgTypeOf(msgTypeTradingSessionStatusReq))
	s.Equal("7", str(&msg.Body, tagTradSesReqID))
	s.Equal("FXCM", str(&msg.Body, tagTradingSessionID))
	s.Equal(subscriptionSnapshot, str(&msg.Body, tagSubscriptionRequestType))
}

func (s *EngineTestSuite) TestSendUnknownSession() {
	err := s.engine.Send(context.Background(), commands.QueryAccounts{RequestID: "1"}, "FIX.4.4:NOBODY->FXCM")
	s.True(errors.Is(err, errors.Routing))
	s.Empty(s.sent)
}

func (s *EngineTestSuite) TestSendFailures() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.engine.Send(ctx, commands.QueryAccounts{RequestID: "1"}, sessionID(ordSID))
	s.True(errors.Is(err, errors.Unavailable))

	s.sendErr = errors.New("session not found")
	err = s.engine.Send(context.Background(), commands.QueryAccounts{RequestID: "2"}, sessionID(ordSID))
	s.True(errors.Is(err, errors.Unavailable))
}

func (s *EngineTestSuite) TestOnCreateRegistersSession() {
	extra := quickfix.SessionID{BeginString: quickfix.BeginStringFIX44, SenderCompID: "EXTRA", TargetCompID: "FXCM"}
	s.engine.OnCreate(extra)
	s.Equal(lifecycle{"create", sessionID(extra)}, s.inbound.last())

	s.Require().NoError(s.engine.Send(context.Background(), commands.QueryAccounts{RequestID: "3"}, sessionID(extra)))
	s.Equal(extra, s.sent[0].sid)
}

func (s *EngineTestSuite) TestLifecycleCallbacks() {
	s.engine.OnLogon(mdSID)
	s.Equal(lifecycle{"logon", sessionID(mdSID)}, s.inbound.last())
	s.engine.OnLogout(mdSID)
	s.Equal(lifecycle{"logout", sessionID(mdSID)}, s.inbound.last())
}

func (s *EngineTestSuite) TestToAdminAddsCredentials() {
	logon := quickfix.NewMessage()
	logon.Header.SetString(tagMsgType, msgTypeLogon)
	s.engine.ToAdmin(logon, ordSID)
	s.Equal("demo", str(&logon.Body, tagUsername))
	s.Equal("secret", str(&logon.Body, tagPassword))
	s.Equal("U100D1", str(&logon.Header, tagTargetSubID))

	heartbeat := quickfix.NewMessage()
	heartbeat.Header.SetString(tagMsgType, "0")
	s.engine.ToAdmin(heartbeat, ordSID)
	s.False(heartbeat.Body.Has(tagUsername))
	s.Equal("U100D1", str(&heartbeat.Header, tagTargetSubID))
}

func (s *EngineTestSuite) TestToAppAddsTargetSubID() {
	msg := quickfix.NewMessage()
	msg.Header.SetString(tagMsgType, msgTypeNewOrderSingle)
	s.NoError(s.engine.ToApp(msg, ordSID))
	s.Equal("U100D1", str(&msg.Header, tagTargetSubID))
}

func (s *EngineTestSuite) TestFromAppRoutesExecutionReport() {
	msg := inbound(msgTypeExecutionReport)
	msg.Body.SetString(tagClOrdID, "C1")
	msg.Body.SetString(tagOrderID, "O1")
	msg.Body.SetString(tagExecID, "E1")
	msg.Body.SetString(tagExecType, "F")
	msg.Body.SetString(tagOrdStatus, "1")
	msg.Body.SetString(tagSide, sideSell)
	msg.Body.SetString(tagCumQty, "400")
	msg.Body.SetString(tagLastQty, "400")
	msg.Body.SetString(tagLastPx, "1.1012")

	s.Nil(s.engine.FromApp(msg, ordSID))
	er, ok := s.inbound.last().(trading.ExecutionReport)
	s.Require().True(ok)
	s.Equal("C1", er.ClOrdID)
	s.Equal(trading.ExecTrade, er.ExecType)
	s.Equal(trading.OrdStatusPartiallyFilled, er.OrdStatus)
	s.Equal(trading.SideSell, er.Side)
	s.True(er.CumQty.Equal(decimal.NewFromInt(400)))
	s.Equal("1.1012", er.LastPx.String())
}

func (s *EngineTestSuite) TestFromAppDropsMalformedReport() {
	msg := inbound(msgTypeExecutionReport)
	msg.Body.SetString(tagClOrdID, "C1")

	s.Nil(s.engine.FromApp(msg, ordSID))
	s.Equal(0, s.inbound.count())
}

func (s *EngineTestSuite) TestFromAppRejectsUnknownType() {
	rej := s.engine.FromApp(inbound("ZZ"), ordSID)
	s.Require().NotNil(rej)
	s.True(rej.IsBusinessReject())
	s.Equal(0, s.inbound.count())
}

func TestBuildSettingsAndRoles(t *testing.T) {
	settings, err := BuildSettings(testConfig())
	require.NoError(t, err)

	all := settings.SessionSettings()
	require.Len(t, all, 2)
	ord, ok := all[ordSID]
	require.True(t, ok)
	v, err := ord.Setting("ResetOnLogon")
	require.NoError(t, err)
	assert.Equal(t, "Y", v)
	v, err = ord.Setting("CustomKey")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	roles := NewRoles(settings)
	md, ok := roles.BoolSetting(sessionID(mdSID), session.SettingMarketDataSession)
	assert.True(t, ok)
	assert.True(t, md)
	isOrder, ok := roles.BoolSetting(sessionID(mdSID), session.SettingOrderSession)
	assert.True(t, ok)
	assert.False(t, isOrder)

	_, ok = roles.BoolSetting("FIX.4.4:NOBODY->FXCM", session.SettingOrderSession)
	assert.False(t, ok)

	r := session.NewResolver(roles, nil)
	assert.True(t, r.Resolve(sessionID(ordSID)).Has(session.Order))
	assert.False(t, r.Resolve(sessionID(ordSID)).Has(session.MarketData))
}

func TestBuildSettingsRejectsDuplicateSession(t *testing.T) {
	cfg := testConfig()
	cfg.Sessions = append(cfg.Sessions, cfg.Sessions[0])
	_, err := BuildSettings(cfg)
	assert.True(t, errors.Is(err, errors.Invalid))
}
