package domain

import "time"

// CandleRow is one kline as published in the daily archive, tagged with the
// calendar date of the file it came from.
type CandleRow struct {
	OpenTime            time.Time
	Open                float64
	High                float64
	Low                 float64
	Close               float64
	Volume              float64
	CloseTime           time.Time
	QuoteVolume         float64
	Trades              int64
	TakerBuyBaseVolume  float64
	TakerBuyQuoteVolume float64
	Date                time.Time
}

// RawDataset holds rows in the order their tasks completed, not in time order.
type RawDataset []CandleRow

// Candle is the canonical, normalized row.
type Candle struct {
	Timestamp time.Time
	AssetName string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}
