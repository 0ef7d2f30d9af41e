package fixengine

import "github.com/quickfixgo/quickfix"

// Message types handled or sent by the adapter.
const (
	msgTypeLogon                   = "A"
	msgTypeExecutionReport         = "8"
	msgTypeOrderCancelReject       = "9"
	msgTypeNewOrderSingle          = "D"
	msgTypeOrderCancelRequest      = "F"
	msgTypeMarketDataRequest       = "V"
	msgTypeMarketDataSnapshot      = "W"
	msgTypeMarketDataRequestReject = "Y"
	msgTypeTradingSessionStatusReq = "g"
	msgTypeTradingSessionStatus    = "h"
	msgTypeCollateralInquiry       = "BB"
	msgTypeCollateralInquiryAck    = "BG"
	msgTypeCollateralReport        = "BA"
	msgTypeRequestForPositions     = "AN"
	msgTypeRequestForPositionsAck  = "AO"
	msgTypePositionReport          = "AP"
)

// Standard tags.
const (
	tagAvgPx                   quickfix.Tag = 6
	tagMsgType                 quickfix.Tag = 35
	tagAccount                 quickfix.Tag = 1
	tagClOrdID                 quickfix.Tag = 11
	tagCumQty                  quickfix.Tag = 14
	tagCurrency                quickfix.Tag = 15
	tagExecID                  quickfix.Tag = 17
	tagLastPx                  quickfix.Tag = 31
	tagLastQty                 quickfix.Tag = 32
	tagOrderID                 quickfix.Tag = 37
	tagOrderQty                quickfix.Tag = 38
	tagOrdStatus               quickfix.Tag = 39
	tagOrdType                 quickfix.Tag = 40
	tagOrigClOrdID             quickfix.Tag = 41
	tagPrice                   quickfix.Tag = 44
	tagSide                    quickfix.Tag = 54
	tagSymbol                  quickfix.Tag = 55
	tagTargetSubID             quickfix.Tag = 57
	tagText                    quickfix.Tag = 58
	tagTimeInForce             quickfix.Tag = 59
	tagTransactTime            quickfix.Tag = 60
	tagStopPx                  quickfix.Tag = 99
	tagCxlRejReason            quickfix.Tag = 102
	tagNoRelatedSym            quickfix.Tag = 146
	tagExecType                quickfix.Tag = 150
	tagLeavesQty               quickfix.Tag = 151
	tagContractMultiplier      quickfix.Tag = 231
	tagMDReqID                 quickfix.Tag = 262
	tagSubscriptionRequestType quickfix.Tag = 263
	tagMarketDepth             quickfix.Tag = 264
	tagNoMDEntryTypes          quickfix.Tag = 267
	tagNoMDEntries             quickfix.Tag = 268
	tagMDEntryType             quickfix.Tag = 269
	tagMDEntryPx               quickfix.Tag = 270
	tagMDEntryDate             quickfix.Tag = 272
	tagMDEntryTime             quickfix.Tag = 273
	tagMDReqRejReason          quickfix.Tag = 281
	tagTradSesReqID            quickfix.Tag = 335
	tagTradingSessionID        quickfix.Tag = 336
	tagTradSesStatus           quickfix.Tag = 340
	tagPartyIDSource           quickfix.Tag = 447
	tagPartyID                 quickfix.Tag = 448
	tagPartyRole               quickfix.Tag = 452
	tagNoPartyIDs              quickfix.Tag = 453
	tagPartySubID              quickfix.Tag = 523
	tagSecondaryClOrdID        quickfix.Tag = 526
	tagUsername                quickfix.Tag = 553
	tagPassword                quickfix.Tag = 554
	tagAccountType             quickfix.Tag = 581
	tagNoPositions             quickfix.Tag = 702
	tagPosType                 quickfix.Tag = 703
	tagLongQty                 quickfix.Tag = 704
	tagShortQty                quickfix.Tag = 705
	tagPosReqID                quickfix.Tag = 710
	tagClearingBusinessDate    quickfix.Tag = 715
	tagPosReqType              quickfix.Tag = 724
	tagPosReqResult            quickfix.Tag = 728
	tagPosReqStatus            quickfix.Tag = 729
	tagSettlPrice              quickfix.Tag = 730
	tagNoPartySubIDs           quickfix.Tag = 802
	tagPartySubIDType          quickfix.Tag = 803
	tagCashOutstanding         quickfix.Tag = 901
	tagCollInquiryID           quickfix.Tag = 909
	tagCollInquiryStatus       quickfix.Tag = 945
)

// Broker specific tags.
const (
	tagFXCMSymPrecision quickfix.Tag = 9001
	tagFXCMSymPointSize quickfix.Tag = 9002
	tagFXCMNoParams     quickfix.Tag = 9016
	tagFXCMParamName    quickfix.Tag = 9017
	tagFXCMParamValue   quickfix.Tag = 9018
	tagFXCMPosID        quickfix.Tag = 9041
	tagFXCMPosOpenTime  quickfix.Tag = 9044
	tagFXCMMaxQuantity  quickfix.Tag = 9094
	tagFXCMMinQuantity  quickfix.Tag = 9095
)

// Field values.
const (
	sideBuy  = "1"
	sideSell = "2"

	ordTypeMarket = "1"
	ordTypeLimit  = "2"
	ordTypeStop   = "3"

	tifDay = "0"
	tifGTC = "1"
	tifIOC = "3"
	tifFOK = "4"

	subscriptionSnapshot        = "0"
	subscriptionSnapshotUpdates = "1"
	subscriptionDisable         = "2"

	mdEntryBid  = "0"
	mdEntryAsk  = "1"
	mdEntryHigh = "7"
	mdEntryLow  = "8"

	posReqTypePositions = 0
	posReqTypeClosed    = 1

	// account carried on the non-customer side of the books, cross margined
	accountTypeCrossMargined = 6
	partySubIDTypeAccount    = 2
)
