package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a fill confirmed by a broker. Prices and commissions stay
// decimal so persisted values round-trip without drift.
type Transaction struct {
	TransactionID string          `yaml:"transaction_id" json:"transaction_id" csv:"transaction_id"`
	OrderID       string          `yaml:"order_id" json:"order_id" csv:"order_id"`
	Asset         Asset           `yaml:"asset" json:"asset" csv:"asset"`
	Timeframe     Timeframe       `yaml:"timeframe" json:"timeframe" csv:"timeframe"`
	StrategyName  string          `yaml:"strategy_name" json:"strategy_name" csv:"strategy_name"`
	Action        Action          `yaml:"action" json:"action" csv:"action"`
	Direction     Direction       `yaml:"direction" json:"direction" csv:"direction"`
	Size          float64         `yaml:"size" json:"size" csv:"size"`
	Price         decimal.Decimal `yaml:"price" json:"price" csv:"price"`
	Commission    decimal.Decimal `yaml:"commission" json:"commission" csv:"commission"`
	Timestamp     time.Time       `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
}

// Cost is the signed cash impact of the transaction: negative for buys,
// positive for sells, commission always subtracted.
func (t *Transaction) Cost() decimal.Decimal {
	gross := t.Price.Mul(decimal.NewFromFloat(t.Size))
	if t.Action == ActionBuy {
		return gross.Neg().Sub(t.Commission)
	}

	return gross.Sub(t.Commission)
}
