package order

import (
	"go.uber.org/zap"

	"github.com/rxtech-lab/tradeloop/internal/broker"
	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// Manager mediates between signals and brokers: it sizes each signal,
// asks the creator for orders, routes them, and cancels the surviving
// bracket leg when its sibling fills.
type Manager struct {
	sizer   *PositionSizer
	creator *OrderCreator
	brokers *broker.Manager
	log     *logger.Logger

	// siblings maps an exit leg's order ID to the IDs of the other exit
	// legs created from the same signal.
	siblings map[string][]string
}

// NewManager wires the order pipeline and subscribes to fill
// confirmations on every broker.
func NewManager(sizer *PositionSizer, creator *OrderCreator, brokers *broker.Manager, log *logger.Logger) *Manager {
	m := &Manager{
		sizer:    sizer,
		creator:  creator,
		brokers:  brokers,
		log:      log,
		siblings: make(map[string][]string),
	}

	for _, b := range brokers.Brokers() {
		b.OnTransaction(m.onFill)
	}

	return m
}

// PrepareOrders sizes the signal and creates its orders without routing
// them. A signal that sizes to nothing yields no orders and no error;
// the strategy keeps running.
func (m *Manager) PrepareOrders(signal types.Signal) ([]types.Order, error) {
	size, price, err := m.sizer.Size(signal)
	if err != nil {
		return nil, err
	}

	if size <= 0 {
		m.log.Info("signal sized to zero, dropping",
			zap.String("signal_id", signal.ID()),
			zap.String("asset", signal.Asset.String()),
		)

		return nil, nil
	}

	orders, err := m.creator.CreateOrders(signal, size, price)
	if err != nil {
		return nil, err
	}

	m.linkExitLegs(signal, orders)

	return orders, nil
}

// Route dispatches one prepared order to its venue's broker.
func (m *Manager) Route(order types.Order) error {
	return m.brokers.ExecuteOrder(order)
}

// HandleSignal sizes the signal, creates its orders, and routes them.
func (m *Manager) HandleSignal(signal types.Signal) ([]types.Order, error) {
	orders, err := m.PrepareOrders(signal)
	if err != nil {
		return nil, err
	}

	for _, o := range orders {
		if err := m.Route(o); err != nil {
			// a rejected leg is recorded by the broker; keep routing the
			// rest unless the venue itself is missing
			if errors.HasCode(err, errors.ErrCodeNoBrokerForVenue) {
				return orders, err
			}

			m.log.Warn("order routing failed",
				zap.String("order_id", o.OrderID),
				zap.Error(err),
			)
		}
	}

	return orders, nil
}

// linkExitLegs records which exit legs belong together so one fill can
// cancel the rest.
func (m *Manager) linkExitLegs(signal types.Signal, orders []types.Order) {
	if signal.IsExit {
		return
	}

	var exits []string

	for _, o := range orders {
		if o.IsExit {
			exits = append(exits, o.OrderID)
		}
	}

	if len(exits) < 2 {
		return
	}

	for _, id := range exits {
		for _, other := range exits {
			if other != id {
				m.siblings[id] = append(m.siblings[id], other)
			}
		}
	}
}

// onFill cancels the sibling legs of a filled bracket exit.
func (m *Manager) onFill(tx types.Transaction, order types.Order) {
	others, ok := m.siblings[order.OrderID]
	if !ok {
		return
	}

	delete(m.siblings, order.OrderID)

	for _, id := range others {
		delete(m.siblings, id)

		if err := m.brokers.CancelOrder(order.Asset.Exchange, id); err != nil {
			m.log.Warn("failed to cancel sibling bracket leg",
				zap.String("order_id", id),
				zap.Error(err),
			)
		}
	}
}
