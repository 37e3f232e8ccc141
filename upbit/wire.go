package upbit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"upbitflow/models"
)

// Outbound wire shape: [{"ticket": <uuid>}, {"type": <channel>, "codes": [...]}]

type ticketFrame struct {
	Ticket string `json:"ticket"`
}

type subscribeFrame struct {
	Type  string   `json:"type"`
	Codes []string `json:"codes,omitempty"`
}

func subscribeRequest(ch Channel, codes []string) []any {
	return []any{
		ticketFrame{Ticket: uuid.NewString()},
		subscribeFrame{Type: ch.String(), Codes: codes},
	}
}

type wireHeader struct {
	Type string `json:"type"`
}

type wireTicker struct {
	Code              string          `json:"code"`
	OpeningPrice      decimal.Decimal `json:"opening_price"`
	HighPrice         decimal.Decimal `json:"high_price"`
	LowPrice          decimal.Decimal `json:"low_price"`
	TradePrice        decimal.Decimal `json:"trade_price"`
	PrevClosingPrice  decimal.Decimal `json:"prev_closing_price"`
	SignedChangePrice decimal.Decimal `json:"signed_change_price"`
	SignedChangeRate  decimal.Decimal `json:"signed_change_rate"`
	AccTradeVolume24H decimal.Decimal `json:"acc_trade_volume_24h"`
	AccTradePrice24H  decimal.Decimal `json:"acc_trade_price_24h"`
	TradeTimestamp    int64           `json:"trade_timestamp"`
	Timestamp         int64           `json:"timestamp"`
}

type wireBookUnit struct {
	AskPrice float64 `json:"ask_price"`
	BidPrice float64 `json:"bid_price"`
	AskSize  float64 `json:"ask_size"`
	BidSize  float64 `json:"bid_size"`
}

type wireOrderBook struct {
	Code         string         `json:"code"`
	Timestamp    int64          `json:"timestamp"`
	TotalAskSize float64        `json:"total_ask_size"`
	TotalBidSize float64        `json:"total_bid_size"`
	Units        []wireBookUnit `json:"orderbook_units"`
	StreamType   string         `json:"stream_type"`
}

type wireTrade struct {
	Code           string          `json:"code"`
	TradePrice     decimal.Decimal `json:"trade_price"`
	TradeVolume    decimal.Decimal `json:"trade_volume"`
	AskBid         string          `json:"ask_bid"`
	TradeTimestamp int64           `json:"trade_timestamp"`
	SequentialID   int64           `json:"sequential_id"`
	Timestamp      int64           `json:"timestamp"`
}

type wireMyOrder struct {
	Code            string           `json:"code"`
	UUID            string           `json:"uuid"`
	AskBid          string           `json:"ask_bid"`
	OrderType       string           `json:"order_type"`
	State           string           `json:"state"`
	TradeUUID       string           `json:"trade_uuid"`
	Price           decimal.Decimal  `json:"price"`
	AvgPrice        decimal.Decimal  `json:"avg_price"`
	Volume          decimal.Decimal  `json:"volume"`
	RemainingVolume decimal.Decimal  `json:"remaining_volume"`
	ExecutedVolume  decimal.Decimal  `json:"executed_volume"`
	ExecutedFunds   *decimal.Decimal `json:"executed_funds"`
	TradesCount     int              `json:"trades_count"`
	PaidFee         *decimal.Decimal `json:"paid_fee"`
	OrderTimestamp  int64            `json:"order_timestamp"`
	TradeTimestamp  int64            `json:"trade_timestamp"`
	Timestamp       int64            `json:"timestamp"`
}

type wireAssetEntry struct {
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
	Locked   decimal.Decimal `json:"locked"`
}

type wireAsset struct {
	Assets         []wireAssetEntry `json:"assets"`
	AssetTimestamp int64            `json:"asset_timestamp"`
	Timestamp      int64            `json:"timestamp"`
}

func iso8601(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

// sideFromAskBid maps the venue's ASK/BID marker to a normalized side.
func sideFromAskBid(askBid string) string {
	if askBid == "BID" {
		return models.SideBuy
	}
	return models.SideSell
}

// orderStatus normalizes the venue's order state.
func orderStatus(state string) string {
	switch state {
	case "wait", "watch", "trade":
		return models.OrderOpen
	case "done":
		return models.OrderClosed
	case "cancel":
		return models.OrderCanceled
	default:
		return state
	}
}

// orderType collapses the venue's order types to limit/market.
func orderType(t string) string {
	if t == "limit" {
		return "limit"
	}
	return "market"
}
