package types

import "fmt"

// Asset identifies a tradable instrument on a venue. It is comparable and
// usable as a map key.
type Asset struct {
	Symbol   string `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Exchange string `yaml:"exchange" json:"exchange" csv:"exchange" validate:"required"`
}

// NewAsset creates an asset for a symbol on an exchange.
func NewAsset(symbol, exchange string) Asset {
	return Asset{Symbol: symbol, Exchange: exchange}
}

// Key returns the canonical string key "<EXCHANGE>-<SYMBOL>-<TF>" used to
// label candle streams, indicator cache entries, and persisted rows.
func (a Asset) Key(tf Timeframe) string {
	return fmt.Sprintf("%s-%s-%s", a.Exchange, a.Symbol, tf)
}

// String returns "<EXCHANGE>-<SYMBOL>".
func (a Asset) String() string {
	return fmt.Sprintf("%s-%s", a.Exchange, a.Symbol)
}
