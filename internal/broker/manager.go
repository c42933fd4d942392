package broker

import (
	"context"

	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// IsolationMode controls which open positions count against a strategy's
// sizing budget.
type IsolationMode string

const (
	// IsolationExchange counts every position on the order's exchange.
	IsolationExchange IsolationMode = "EXCHANGE"
	// IsolationSymbol counts positions for the symbol on the exchange.
	IsolationSymbol IsolationMode = "SYMBOL"
	// IsolationAsset counts positions for the exact
	// (exchange, symbol, timeframe) tuple.
	IsolationAsset IsolationMode = "ASSET"
	// IsolationStrategy counts the strategy's positions on every exchange.
	IsolationStrategy IsolationMode = "STRATEGY"

	IsolationStrategyAndExchange IsolationMode = "STRATEGY_AND_EXCHANGE"
	IsolationStrategyAndSymbol   IsolationMode = "STRATEGY_AND_SYMBOL"
	IsolationStrategyAndAsset    IsolationMode = "STRATEGY_AND_ASSET"
)

// SizingScope names the position horizon a sizing request runs under.
type SizingScope struct {
	Asset        types.Asset
	Timeframe    types.Timeframe
	StrategyName string
}

// Manager routes orders to the broker responsible for each exchange and
// applies the isolation mode when sizing entries.
type Manager struct {
	brokers   map[string]Broker
	isolation IsolationMode
	log       *logger.Logger
}

// NewManager creates a manager over brokers keyed by their exchange.
func NewManager(isolation IsolationMode, log *logger.Logger, brokers ...Broker) *Manager {
	byExchange := make(map[string]Broker, len(brokers))
	for _, b := range brokers {
		byExchange[b.Exchange()] = b
	}

	return &Manager{brokers: byExchange, isolation: isolation, log: log}
}

// Broker returns the broker for an exchange.
func (m *Manager) Broker(exchange string) (Broker, error) {
	b, ok := m.brokers[exchange]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeNoBrokerForVenue,
			"no broker registered for exchange %q", exchange)
	}

	return b, nil
}

// Brokers returns every registered broker.
func (m *Manager) Brokers() []Broker {
	out := make([]Broker, 0, len(m.brokers))
	for _, b := range m.brokers {
		out = append(out, b)
	}

	return out
}

// ExecuteOrder routes the order to its exchange's broker.
func (m *Manager) ExecuteOrder(order types.Order) error {
	b, err := m.Broker(order.Asset.Exchange)
	if err != nil {
		return err
	}

	return b.ExecuteOrder(order)
}

// CancelOrder cancels a resting order on the exchange that holds it.
func (m *Manager) CancelOrder(exchange, orderID string) error {
	b, err := m.Broker(exchange)
	if err != nil {
		return err
	}

	return b.CancelOrder(orderID)
}

// UpdatePrice forwards the bar to the broker for its exchange. Bars for
// unregistered exchanges are ignored.
func (m *Manager) UpdatePrice(candle types.Candle) error {
	b, ok := m.brokers[candle.Asset.Exchange]
	if !ok {
		return nil
	}

	return b.UpdatePrice(candle)
}

// Synchronize reconciles every broker with its venue.
func (m *Manager) Synchronize(ctx context.Context) error {
	for _, b := range m.brokers {
		if err := b.Synchronize(ctx); err != nil {
			return err
		}
	}

	return nil
}

// AvailableCash returns the sizing budget for a scope under the
// configured isolation mode: the target broker's cash minus the entry
// cost of every open position inside the scope's horizon.
func (m *Manager) AvailableCash(scope SizingScope) (float64, error) {
	b, err := m.Broker(scope.Asset.Exchange)
	if err != nil {
		return 0, err
	}

	budget := b.Portfolio().CashFloat() - m.committedCost(scope)
	if budget < 0 {
		return 0, nil
	}

	return budget, nil
}

// MaxEntryOrderSize sizes an entry under the configured isolation mode.
func (m *Manager) MaxEntryOrderSize(scope SizingScope, direction types.Direction) (float64, error) {
	b, err := m.Broker(scope.Asset.Exchange)
	if err != nil {
		return 0, err
	}

	budget, err := m.AvailableCash(scope)
	if err != nil || budget <= 0 {
		return 0, err
	}

	return b.MaxEntryOrderSize(scope.Asset, direction, optional.Some(budget))
}

// committedCost sums the entry cost of open positions inside the scope's
// horizon across all brokers.
func (m *Manager) committedCost(scope SizingScope) float64 {
	total := 0.0

	for _, b := range m.brokers {
		for _, pos := range b.Portfolio().Positions() {
			if !m.inHorizon(scope, b.Exchange(), pos) {
				continue
			}

			entry, _ := pos.EntryCost().Float64()
			total += entry
		}
	}

	return total
}

func (m *Manager) inHorizon(scope SizingScope, exchange string, pos *types.Position) bool {
	sameExchange := exchange == scope.Asset.Exchange
	sameSymbol := sameExchange && pos.Asset.Symbol == scope.Asset.Symbol
	sameAsset := sameSymbol && pos.Timeframe == scope.Timeframe
	sameStrategy := pos.StrategyName == scope.StrategyName

	switch m.isolation {
	case IsolationExchange:
		return sameExchange
	case IsolationSymbol:
		return sameSymbol
	case IsolationAsset:
		return sameAsset
	case IsolationStrategy:
		return sameStrategy
	case IsolationStrategyAndExchange:
		return sameStrategy && sameExchange
	case IsolationStrategyAndSymbol:
		return sameStrategy && sameSymbol
	case IsolationStrategyAndAsset:
		return sameStrategy && sameAsset
	default:
		return sameExchange
	}
}
