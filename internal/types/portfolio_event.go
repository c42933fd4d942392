package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioEventType classifies entries in the portfolio history.
type PortfolioEventType string

const (
	// PortfolioEventTransaction records a fill applied to the portfolio.
	PortfolioEventTransaction PortfolioEventType = "symbol_transaction"
	// PortfolioEventOrderRejected records a venue rejection.
	PortfolioEventOrderRejected PortfolioEventType = "order_rejected"
	// PortfolioEventSynchronization records a live reconciliation where the
	// venue state overrode local state.
	PortfolioEventSynchronization PortfolioEventType = "synchronization"
	// PortfolioEventStrategyHalted records a fatal invariant violation that
	// stopped one strategy instance.
	PortfolioEventStrategyHalted PortfolioEventType = "strategy_halted"
	// PortfolioEventCashDeposit and PortfolioEventCashWithdrawal record
	// explicit funding changes.
	PortfolioEventCashDeposit    PortfolioEventType = "cash_deposit"
	PortfolioEventCashWithdrawal PortfolioEventType = "cash_withdrawal"
)

// PortfolioEvent is one entry of the append-only portfolio history. Events
// for a bar appear in the order the underlying transactions occurred.
type PortfolioEvent struct {
	Type        PortfolioEventType `yaml:"type" json:"type" csv:"type"`
	Timestamp   time.Time          `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
	Asset       Asset              `yaml:"asset" json:"asset" csv:"asset"`
	Transaction *Transaction       `yaml:"transaction" json:"transaction" csv:"-"`
	CashAfter   decimal.Decimal    `yaml:"cash_after" json:"cash_after" csv:"cash_after"`
	Description string             `yaml:"description" json:"description" csv:"description"`
}
