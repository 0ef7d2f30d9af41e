package fixengine

import (
	"time"

	"github.com/Aidin1998/fixgate/internal/commands"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"
)

const partyIDBroker = "FXCM ID"

// encoder turns gateway requests into outbound messages.
type encoder struct {
	tradingSessionID string
	now              func() time.Time
}

func (e encoder) encode(req commands.Request) (*quickfix.Message, error) {
	switch r := req.(type) {
	case commands.SubscribeMarketData:
		return e.marketDataRequest(r.RequestID, r.Symbol, subscriptionSnapshotUpdates), nil
	case commands.UnsubscribeMarketData:
		// the broker matches an unsubscribe on the MDReqID of the subscription
		return e.marketDataRequest(r.SubscriptionID, r.Symbol, subscriptionDisable), nil
	case commands.NewOrder:
		return e.newOrder(r)
	case commands.ClosePosition:
		return e.closePosition(r), nil
	case commands.CancelOrder:
		return e.cancelOrder(r), nil
	case commands.QueryPositions:
		return e.requestForPositions(r), nil
	case commands.QueryAccounts:
		msg := newMessage(msgTypeCollateralInquiry)
		msg.Body.SetString(tagCollInquiryID, r.RequestID)
		msg.Body.SetString(tagTradingSessionID, e.tradingSessionID)
		msg.Body.SetString(tagSubscriptionRequestType, subscriptionSnapshot)
		return msg, nil
	case commands.QueryTradingStatus:
		msg := newMessage(msgTypeTradingSessionStatusReq)
		msg.Body.SetString(tagTradSesReqID, r.RequestID)
		msg.Body.SetString(tagTradingSessionID, e.tradingSessionID)
		msg.Body.SetString(tagSubscriptionRequestType, subscriptionSnapshot)
		return msg, nil
	default:
		return nil, errors.Invalid.Explain("cannot encode request of kind %s", req.Kind())
	}
}

func newMessage(msgType string) *quickfix.Message {
	msg := quickfix.NewMessage()
	msg.Header.SetString(tagMsgType, msgType)
	return msg
}

func (e encoder) marketDataRequest(id, symbol, subscription string) *quickfix.Message {
	msg := newMessage(msgTypeMarketDataRequest)
	msg.Body.SetString(tagMDReqID, id)
	msg.Body.SetString(tagSubscriptionRequestType, subscription)
	msg.Body.SetInt(tagMarketDepth, 0)

	syms := newRelatedSym()
	syms.Add().SetString(tagSymbol, symbol)
	msg.Body.SetGroup(syms)

	types := newMDEntryTypes()
	for _, t := range []string{mdEntryBid, mdEntryAsk, mdEntryHigh, mdEntryLow} {
		types.Add().SetString(tagMDEntryType, t)
	}
	msg.Body.SetGroup(types)
	return msg
}

func (e encoder) newOrder(r commands.NewOrder) (*quickfix.Message, error) {
	ordType, err := encodeOrdType(r.Type)
	if err != nil {
		return nil, err
	}
	tif, err := encodeTimeInForce(r.TimeInForce)
	if err != nil {
		return nil, err
	}

	msg := newMessage(msgTypeNewOrderSingle)
	e.orderFields(msg, r.RequestID, r.ClOrdID, r.Account, r.Symbol, r.Side, r.Qty)
	msg.Body.SetString(tagOrdType, ordType)
	msg.Body.SetString(tagTimeInForce, tif)
	switch r.Type {
	case trading.OrderTypeLimit:
		msg.Body.SetString(tagPrice, r.Price.String())
	case trading.OrderTypeStop:
		msg.Body.SetString(tagStopPx, r.StopPrice.String())
	}
	return msg, nil
}

func (e encoder) closePosition(r commands.ClosePosition) *quickfix.Message {
	msg := newMessage(msgTypeNewOrderSingle)
	e.orderFields(msg, r.RequestID, r.ClOrdID, r.Account, r.Symbol, r.Side, r.Qty)
	msg.Body.SetString(tagOrdType, ordTypeMarket)
	msg.Body.SetString(tagTimeInForce, tifGTC)
	msg.Body.SetString(tagFXCMPosID, r.PositionID)
	return msg
}

func (e encoder) orderFields(msg *quickfix.Message, reqID, clOrdID, account, symbol string, side trading.Side, qty decimal.Decimal) {
	msg.Body.SetString(tagClOrdID, clOrdID)
	msg.Body.SetString(tagSecondaryClOrdID, reqID)
	msg.Body.SetString(tagAccount, account)
	msg.Body.SetString(tagSymbol, symbol)
	msg.Body.SetString(tagTradingSessionID, e.tradingSessionID)
	msg.Body.SetField(tagTransactTime, quickfix.FIXUTCTimestamp{Time: e.now().UTC()})
	msg.Body.SetString(tagOrderQty, qty.String())
	msg.Body.SetString(tagSide, encodeSide(side))
}

func (e encoder) cancelOrder(r commands.CancelOrder) *quickfix.Message {
	msg := newMessage(msgTypeOrderCancelRequest)
	msg.Body.SetString(tagClOrdID, r.ClOrdID)
	msg.Body.SetString(tagOrigClOrdID, r.OrigClOrdID)
	msg.Body.SetString(tagSecondaryClOrdID, r.RequestID)
	if r.OrderID != "" {
		msg.Body.SetString(tagOrderID, r.OrderID)
	}
	msg.Body.SetString(tagAccount, r.Account)
	msg.Body.SetString(tagSymbol, r.Symbol)
	msg.Body.SetString(tagSide, encodeSide(r.Side))
	msg.Body.SetString(tagOrderQty, r.Qty.String())
	msg.Body.SetField(tagTransactTime, quickfix.FIXUTCTimestamp{Time: e.now().UTC()})
	return msg
}

// requestForPositions asks for the open positions of one account. The
// account is repeated as a party sub id, which the broker routes on.
func (e encoder) requestForPositions(r commands.QueryPositions) *quickfix.Message {
	now := e.now().UTC()
	msg := newMessage(msgTypeRequestForPositions)
	msg.Body.SetString(tagPosReqID, r.RequestID)
	msg.Body.SetInt(tagPosReqType, posReqTypePositions)
	msg.Body.SetString(tagAccount, r.Account)
	msg.Body.SetString(tagSubscriptionRequestType, subscriptionSnapshot)
	msg.Body.SetInt(tagAccountType, accountTypeCrossMargined)
	msg.Body.SetField(tagTransactTime, quickfix.FIXUTCTimestamp{Time: now})
	msg.Body.SetString(tagClearingBusinessDate, now.Format("20060102"))
	msg.Body.SetString(tagTradingSessionID, e.tradingSessionID)

	parties := newParties()
	party := parties.Add()
	party.SetString(tagPartyID, partyIDBroker)
	party.SetString(tagPartyIDSource, "D")
	party.SetInt(tagPartyRole, 3)
	subs := newPartySubIDs()
	sub := subs.Add()
	sub.SetString(tagPartySubID, r.Account)
	sub.SetInt(tagPartySubIDType, partySubIDTypeAccount)
	party.SetGroup(subs)
	msg.Body.SetGroup(parties)
	return msg
}

func encodeSide(s trading.Side) string {
	if s == trading.SideSell {
		return sideSell
	}
	return sideBuy
}

func encodeOrdType(t trading.OrderType) (string, error) {
	switch t {
	case trading.OrderTypeMarket:
		return ordTypeMarket, nil
	case trading.OrderTypeLimit:
		return ordTypeLimit, nil
	case trading.OrderTypeStop:
		return ordTypeStop, nil
	}
	return "", errors.Invalid.Explain("unsupported order type %q", t)
}

func encodeTimeInForce(tif trading.TimeInForce) (string, error) {
	switch tif {
	case trading.TimeInForceGTC, "":
		return tifGTC, nil
	case trading.TimeInForceDay:
		return tifDay, nil
	case trading.TimeInForceIOC:
		return tifIOC, nil
	case trading.TimeInForceFOK:
		return tifFOK, nil
	}
	return "", errors.Invalid.Explain("unsupported time in force %q", tif)
}
