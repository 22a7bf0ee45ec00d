package domain

// TimestampLayout renders timestamps in tables. Trailing zero fractions are
// dropped, so whole seconds print as "2006-01-02 15:04:05".
const TimestampLayout = "2006-01-02 15:04:05.999999999"

// Raw table columns, in file order.
const (
	ColTradingDatetime     = "trading_datetime"
	ColOpenPrice           = "open_price"
	ColHighPrice           = "high_price"
	ColLowPrice            = "low_price"
	ColClosePrice          = "close_price"
	ColVolume              = "volume"
	ColCloseTime           = "close_time"
	ColQuoteAssetVolume    = "quote_asset_volume"
	ColNumberOfTrades      = "number_of_trades"
	ColTakerBuyBaseVolume  = "taker_buy_base_volume"
	ColTakerBuyQuoteVolume = "taker_buy_quote_volume"
	ColIgnore              = "ignore"
	ColDate                = "date"
)

// Canonical table columns.
const (
	ColTimestamp = "timestamp"
	ColAssetName = "asset_name"
	ColOpen      = "open"
	ColHigh      = "high"
	ColLow       = "low"
	ColClose     = "close"
)

var RawHeader = []string{
	ColTradingDatetime,
	ColOpenPrice,
	ColHighPrice,
	ColLowPrice,
	ColClosePrice,
	ColVolume,
	ColCloseTime,
	ColQuoteAssetVolume,
	ColNumberOfTrades,
	ColTakerBuyBaseVolume,
	ColTakerBuyQuoteVolume,
	ColDate,
}

var CanonicalHeader = []string{
	ColTimestamp,
	ColAssetName,
	ColOpen,
	ColHigh,
	ColLow,
	ColClose,
	ColVolume,
}
