package upbit

// Channel identifies a streaming data category on the venue.
type Channel int

const (
	ChannelUnknown Channel = iota
	ChannelTicker
	ChannelOrderBook
	ChannelTrade
	ChannelMyOrder
	ChannelMyAsset
)

// ParseChannel maps the wire `type` discriminator to a channel kind.
func ParseChannel(wire string) Channel {
	switch wire {
	case "ticker":
		return ChannelTicker
	case "orderbook":
		return ChannelOrderBook
	case "trade":
		return ChannelTrade
	case "myOrder":
		return ChannelMyOrder
	case "myAsset":
		return ChannelMyAsset
	default:
		return ChannelUnknown
	}
}

// String returns the venue's wire name for the channel. It doubles as the
// prefix of correlation keys and subscription hashes.
func (c Channel) String() string {
	switch c {
	case ChannelTicker:
		return "ticker"
	case ChannelOrderBook:
		return "orderbook"
	case ChannelTrade:
		return "trade"
	case ChannelMyOrder:
		return "myOrder"
	case ChannelMyAsset:
		return "myAsset"
	default:
		return "unknown"
	}
}

// Private reports whether the channel requires the authenticated endpoint.
func (c Channel) Private() bool {
	return c == ChannelMyOrder || c == ChannelMyAsset
}
