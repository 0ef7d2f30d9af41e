package fixengine

import (
	"time"

	"github.com/Aidin1998/fixgate/internal/gateway"
	"github.com/Aidin1998/fixgate/internal/marketdata"
	"github.com/Aidin1998/fixgate/internal/trading"
	"github.com/Aidin1998/fixgate/pkg/errors"
	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"
)

// fieldReader is satisfied by message bodies and repeating group entries.
type fieldReader interface {
	Has(tag quickfix.Tag) bool
	GetString(tag quickfix.Tag) (string, quickfix.MessageRejectError)
	GetInt(tag quickfix.Tag) (int, quickfix.MessageRejectError)
	GetField(tag quickfix.Tag, parser quickfix.FieldValueReader) quickfix.MessageRejectError
	GetGroup(parser quickfix.FieldGroupReader) quickfix.MessageRejectError
}

// Broker specific tags may appear inside repeating groups. A group entry
// ends at the first tag its template does not know, so the templates
// accept the whole broker range except the parameter group tags.
const (
	brokerTagFirst quickfix.Tag = 9000
	brokerTagLast  quickfix.Tag = 9199
)

func withBrokerTags(except map[quickfix.Tag]bool, tags ...quickfix.Tag) quickfix.GroupTemplate {
	tmpl := make(quickfix.GroupTemplate, 0, len(tags)+int(brokerTagLast-brokerTagFirst)+1)
	seen := make(map[quickfix.Tag]bool, len(tags))
	for _, t := range tags {
		tmpl = append(tmpl, quickfix.GroupElement(t))
		seen[t] = true
	}
	for t := brokerTagFirst; t <= brokerTagLast; t++ {
		if !seen[t] && !except[t] {
			tmpl = append(tmpl, quickfix.GroupElement(t))
		}
	}
	return tmpl
}

var paramTags = map[quickfix.Tag]bool{
	tagFXCMNoParams:   true,
	tagFXCMParamName:  true,
	tagFXCMParamValue: true,
}

func newSecurityList() *quickfix.RepeatingGroup {
	return quickfix.NewRepeatingGroup(tagNoRelatedSym, withBrokerTags(paramTags,
		tagSymbol, tagCurrency, quickfix.Tag(48), quickfix.Tag(22), quickfix.Tag(107),
		quickfix.Tag(167), quickfix.Tag(228), tagContractMultiplier, quickfix.Tag(460),
		quickfix.Tag(561),
		tagFXCMSymPrecision, tagFXCMSymPointSize, tagFXCMMaxQuantity, tagFXCMMinQuantity,
	))
}

func newParams() *quickfix.RepeatingGroup {
	return quickfix.NewRepeatingGroup(tagFXCMNoParams, quickfix.GroupTemplate{
		quickfix.GroupElement(tagFXCMParamName),
		quickfix.GroupElement(tagFXCMParamValue),
	})
}

func newPartySubIDs() *quickfix.RepeatingGroup {
	return quickfix.NewRepeatingGroup(tagNoPartySubIDs, quickfix.GroupTemplate{
		quickfix.GroupElement(tagPartySubID),
		quickfix.GroupElement(tagPartySubIDType),
	})
}

func newParties() *quickfix.RepeatingGroup {
	return quickfix.NewRepeatingGroup(tagNoPartyIDs, quickfix.GroupTemplate{
		quickfix.GroupElement(tagPartyID),
		quickfix.GroupElement(tagPartyIDSource),
		quickfix.GroupElement(tagPartyRole),
		newPartySubIDs(),
	})
}

func newPositions() *quickfix.RepeatingGroup {
	return quickfix.NewRepeatingGroup(tagNoPositions, quickfix.GroupTemplate{
		quickfix.GroupElement(tagPosType),
		quickfix.GroupElement(tagLongQty),
		quickfix.GroupElement(tagShortQty),
		quickfix.GroupElement(quickfix.Tag(706)),
	})
}

func newMDEntries() *quickfix.RepeatingGroup {
	return quickfix.NewRepeatingGroup(tagNoMDEntries, withBrokerTags(nil,
		tagMDEntryType, tagMDEntryPx, quickfix.Tag(271), tagMDEntryDate, tagMDEntryTime,
		quickfix.Tag(276), quickfix.Tag(282), quickfix.Tag(299), tagCurrency,
		tagTradingSessionID, quickfix.Tag(346),
	))
}

func newMDEntryTypes() *quickfix.RepeatingGroup {
	return quickfix.NewRepeatingGroup(tagNoMDEntryTypes, quickfix.GroupTemplate{
		quickfix.GroupElement(tagMDEntryType),
	})
}

func newRelatedSym() *quickfix.RepeatingGroup {
	return quickfix.NewRepeatingGroup(tagNoRelatedSym, quickfix.GroupTemplate{
		quickfix.GroupElement(tagSymbol),
	})
}

// readGroup loads rg from f. A missing group is empty. A malformed group
// keeps the entries read before the error, which is reported alongside.
func readGroup(f fieldReader, rg *quickfix.RepeatingGroup) error {
	if !f.Has(rg.Tag()) {
		return nil
	}
	if err := f.GetGroup(rg); err != nil {
		return errors.Invalid.Explain("group %d", rg.Tag()).Wrap(err)
	}
	return nil
}

func str(f fieldReader, tag quickfix.Tag) string {
	v, _ := f.GetString(tag)
	return v
}

func required(f fieldReader, tag quickfix.Tag) (string, error) {
	v, err := f.GetString(tag)
	if err != nil {
		return "", errors.Invalid.Explain("tag %d", tag).Wrap(err)
	}
	return v, nil
}

func integer(f fieldReader, tag quickfix.Tag) (int, error) {
	if !f.Has(tag) {
		return 0, nil
	}
	v, err := f.GetInt(tag)
	if err != nil {
		return 0, errors.Invalid.Explain("tag %d", tag).Wrap(err)
	}
	return v, nil
}

func amount(f fieldReader, tag quickfix.Tag) (decimal.Decimal, error) {
	if !f.Has(tag) {
		return decimal.Zero, nil
	}
	var d quickfix.FIXDecimal
	if err := f.GetField(tag, &d); err != nil {
		return decimal.Zero, errors.Invalid.Explain("tag %d", tag).Wrap(err)
	}
	return d.Decimal, nil
}

func timestamp(f fieldReader, tag quickfix.Tag) time.Time {
	if !f.Has(tag) {
		return time.Time{}
	}
	var ts quickfix.FIXUTCTimestamp
	if err := f.GetField(tag, &ts); err != nil {
		return time.Time{}
	}
	return ts.Time
}

func decodeSide(v string) trading.Side {
	switch v {
	case sideBuy:
		return trading.SideBuy
	case sideSell:
		return trading.SideSell
	}
	return ""
}

func decodeOrdType(v string) trading.OrderType {
	switch v {
	case ordTypeMarket:
		return trading.OrderTypeMarket
	case ordTypeLimit:
		return trading.OrderTypeLimit
	case ordTypeStop:
		return trading.OrderTypeStop
	}
	return ""
}

// decoder collects the first error of a sequence of field reads.
type decoder struct {
	f   fieldReader
	err error
}

func (d *decoder) amount(tag quickfix.Tag) decimal.Decimal {
	v, err := amount(d.f, tag)
	if d.err == nil {
		d.err = err
	}
	return v
}

func (d *decoder) integer(tag quickfix.Tag) int {
	v, err := integer(d.f, tag)
	if d.err == nil {
		d.err = err
	}
	return v
}

func (d *decoder) group(rg *quickfix.RepeatingGroup) {
	if err := readGroup(d.f, rg); err != nil && d.err == nil {
		d.err = err
	}
}

func decodeTradingSessionStatus(msg *quickfix.Message) (gateway.TradingSessionStatus, error) {
	body := &msg.Body
	d := &decoder{f: body}
	m := gateway.TradingSessionStatus{
		RequestID: str(body, tagTradSesReqID),
		Status:    d.integer(tagTradSesStatus),
		Text:      str(body, tagText),
	}

	secs := newSecurityList()
	d.group(secs)
	for i := 0; i < secs.Len(); i++ {
		g := secs.Get(i)
		gd := &decoder{f: g}
		detail := marketdata.Detail{
			Symbol:             str(g, tagSymbol),
			Currency:           str(g, tagCurrency),
			PointSize:          gd.amount(tagFXCMSymPointSize),
			Precision:          gd.integer(tagFXCMSymPrecision),
			MinQty:             gd.amount(tagFXCMMinQuantity),
			MaxQty:             gd.amount(tagFXCMMaxQuantity),
			ContractMultiplier: gd.amount(tagContractMultiplier),
		}
		if gd.err != nil && d.err == nil {
			d.err = gd.err
		}
		if detail.Symbol != "" {
			m.Securities = append(m.Securities, detail)
		}
	}

	params := newParams()
	d.group(params)
	if params.Len() > 0 {
		m.Params = make(map[string]string, params.Len())
		for i := 0; i < params.Len(); i++ {
			g := params.Get(i)
			if name := str(g, tagFXCMParamName); name != "" {
				m.Params[name] = str(g, tagFXCMParamValue)
			}
		}
	}
	return m, d.err
}

func decodeCollateralInquiryAck(msg *quickfix.Message) (gateway.CollateralInquiryAck, error) {
	d := &decoder{f: &msg.Body}
	m := gateway.CollateralInquiryAck{
		RequestID: str(&msg.Body, tagCollInquiryID),
		Status:    d.integer(tagCollInquiryStatus),
		Text:      str(&msg.Body, tagText),
	}
	return m, d.err
}

func decodeCollateralReport(msg *quickfix.Message) (gateway.CollateralReport, error) {
	body := &msg.Body
	d := &decoder{f: body}
	m := gateway.CollateralReport{
		RequestID: str(body, tagCollInquiryID),
		Account:   str(body, tagAccount),
		Balance:   d.amount(tagCashOutstanding),
		Currency:  str(body, tagCurrency),
	}

	parties := newParties()
	d.group(parties)
	for i := 0; i < parties.Len(); i++ {
		subs := newPartySubIDs()
		if err := readGroup(parties.Get(i), subs); err != nil && d.err == nil {
			d.err = err
		}
		for j := 0; j < subs.Len(); j++ {
			g := subs.Get(j)
			if m.Parties == nil {
				m.Parties = make(map[string]string)
			}
			m.Parties[str(g, tagPartySubIDType)] = str(g, tagPartySubID)
		}
	}
	return m, d.err
}

func decodePositionsAck(msg *quickfix.Message) (gateway.PositionsAck, error) {
	body := &msg.Body
	d := &decoder{f: body}
	m := gateway.PositionsAck{
		RequestID: str(body, tagPosReqID),
		Account:   str(body, tagAccount),
		Result:    d.integer(tagPosReqResult),
		Status:    d.integer(tagPosReqStatus),
		Text:      str(body, tagText),
	}
	return m, d.err
}

func decodePositionReport(msg *quickfix.Message) (trading.PositionReport, error) {
	body := &msg.Body
	d := &decoder{f: body}
	m := trading.PositionReport{
		PositionID: str(body, tagFXCMPosID),
		AccountID:  str(body, tagAccount),
		Symbol:     str(body, tagSymbol),
		Currency:   str(body, tagCurrency),
		RequestID:  str(body, tagPosReqID),
		OpenPrice:  d.amount(tagSettlPrice),
		OpenTime:   timestamp(body, tagFXCMPosOpenTime),
		Closed:     d.integer(tagPosReqType) == posReqTypeClosed,
	}

	positions := newPositions()
	d.group(positions)
	for i := 0; i < positions.Len(); i++ {
		gd := &decoder{f: positions.Get(i)}
		long, short := gd.amount(tagLongQty), gd.amount(tagShortQty)
		if gd.err != nil && d.err == nil {
			d.err = gd.err
		}
		switch {
		case long.IsPositive():
			m.Side, m.Qty = trading.SideBuy, long
		case short.IsPositive():
			m.Side, m.Qty = trading.SideSell, short
		}
	}
	return m, d.err
}

func decodeMarketDataSnapshot(msg *quickfix.Message, received time.Time) (gateway.MarketDataSnapshot, error) {
	body := &msg.Body
	d := &decoder{f: body}
	m := gateway.MarketDataSnapshot{
		RequestID: str(body, tagMDReqID),
		Snapshot:  marketdata.Snapshot{Symbol: str(body, tagSymbol)},
	}

	entries := newMDEntries()
	d.group(entries)
	for i := 0; i < entries.Len(); i++ {
		g := entries.Get(i)
		gd := &decoder{f: g}
		px := gd.amount(tagMDEntryPx)
		if gd.err != nil && d.err == nil {
			d.err = gd.err
		}
		switch str(g, tagMDEntryType) {
		case mdEntryBid:
			m.Snapshot.Bid = px
		case mdEntryAsk:
			m.Snapshot.Ask = px
		case mdEntryHigh:
			m.Snapshot.High = px
		case mdEntryLow:
			m.Snapshot.Low = px
		}
		if m.Snapshot.Timestamp.IsZero() {
			m.Snapshot.Timestamp = entryTime(str(g, tagMDEntryDate), str(g, tagMDEntryTime))
		}
	}
	if m.Snapshot.Timestamp.IsZero() {
		m.Snapshot.Timestamp = received
	}
	return m, d.err
}

// entryTime joins an MDEntryDate and MDEntryTime. Either layout of the
// time, with or without milliseconds, is accepted.
func entryTime(date, clock string) time.Time {
	if date == "" || clock == "" {
		return time.Time{}
	}
	for _, layout := range []string{"20060102 15:04:05.000", "20060102 15:04:05"} {
		if t, err := time.ParseInLocation(layout, date+" "+clock, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

func decodeMarketDataReject(msg *quickfix.Message) (gateway.MarketDataReject, error) {
	id, err := required(&msg.Body, tagMDReqID)
	if err != nil {
		return gateway.MarketDataReject{}, err
	}
	return gateway.MarketDataReject{
		RequestID: id,
		Reason:    str(&msg.Body, tagMDReqRejReason),
		Text:      str(&msg.Body, tagText),
	}, nil
}

func decodeExecutionReport(msg *quickfix.Message) (trading.ExecutionReport, error) {
	body := &msg.Body
	d := &decoder{f: body}
	m := trading.ExecutionReport{
		ClOrdID:      str(body, tagClOrdID),
		OrigClOrdID:  str(body, tagOrigClOrdID),
		OrderID:      str(body, tagOrderID),
		ExecID:       str(body, tagExecID),
		Account:      str(body, tagAccount),
		Symbol:       str(body, tagSymbol),
		Side:         decodeSide(str(body, tagSide)),
		OrdType:      decodeOrdType(str(body, tagOrdType)),
		OrderQty:     d.amount(tagOrderQty),
		Price:        d.amount(tagPrice),
		StopPrice:    d.amount(tagStopPx),
		CumQty:       d.amount(tagCumQty),
		LeavesQty:    d.amount(tagLeavesQty),
		LastQty:      d.amount(tagLastQty),
		LastPx:       d.amount(tagLastPx),
		AvgPx:        d.amount(tagAvgPx),
		PositionID:   str(body, tagFXCMPosID),
		Text:         str(body, tagText),
		TransactTime: timestamp(body, tagTransactTime),
	}
	execType, err := required(body, tagExecType)
	if err != nil {
		return m, err
	}
	if len(execType) != 1 {
		return m, errors.Invalid.Explain("ExecType %q", execType)
	}
	m.ExecType = trading.ExecType(execType[0])
	if s := str(body, tagOrdStatus); len(s) == 1 {
		m.OrdStatus = trading.OrdStatus(s[0])
	}
	return m, d.err
}

func decodeOrderCancelReject(msg *quickfix.Message) (gateway.OrderCancelReject, error) {
	body := &msg.Body
	return gateway.OrderCancelReject{
		ClOrdID:     str(body, tagClOrdID),
		OrigClOrdID: str(body, tagOrigClOrdID),
		OrderID:     str(body, tagOrderID),
		Reason:      str(body, tagCxlRejReason),
		Text:        str(body, tagText),
	}, nil
}
