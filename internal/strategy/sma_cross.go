package strategy

import (
	"github.com/rxtech-lab/tradeloop/internal/engine"
	"github.com/rxtech-lab/tradeloop/internal/feed"
	"github.com/rxtech-lab/tradeloop/internal/types"
)

// SMACrossConfig configures the moving-average crossover strategy.
type SMACrossConfig struct {
	Symbol     string  `yaml:"symbol" json:"symbol" jsonschema:"description=Instrument symbol to trade" validate:"required"`
	Exchange   string  `yaml:"exchange" json:"exchange" jsonschema:"description=Venue the symbol trades on" validate:"required"`
	Timeframe  string  `yaml:"timeframe" json:"timeframe" jsonschema:"description=Bar interval such as 1m or 1h" validate:"required"`
	FastPeriod int     `yaml:"fast_period" json:"fast_period" jsonschema:"description=Lookback of the fast moving average" validate:"required,gt=0"`
	SlowPeriod int     `yaml:"slow_period" json:"slow_period" jsonschema:"description=Lookback of the slow moving average" validate:"required,gtfield=FastPeriod"`
	Confidence float64 `yaml:"confidence" json:"confidence" jsonschema:"description=Fraction of available cash committed per entry" validate:"required,gt=0,lte=1"`
}

// SMACross goes long when the fast average crosses above the slow one
// and exits when it crosses back below. It never shorts.
type SMACross struct {
	cfg   SMACrossConfig
	asset types.Asset
	tf    types.Timeframe
}

func NewSMACross() *SMACross {
	return &SMACross{}
}

func (s *SMACross) Name() string { return "sma_cross" }

func (s *SMACross) EngineVersion() string { return "main" }

func (s *SMACross) Initialize(config string) error {
	cfg, err := LoadConfig[SMACrossConfig](config)
	if err != nil {
		return err
	}

	tf, err := types.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return err
	}

	s.cfg = cfg
	s.asset = types.NewAsset(cfg.Symbol, cfg.Exchange)
	s.tf = tf

	return nil
}

func (s *SMACross) Subscriptions() []feed.Subscription {
	return []feed.Subscription{{Asset: s.asset, Timeframe: s.tf}}
}

func (s *SMACross) OnCandle(ctx *engine.Context, candle types.Candle, tf types.Timeframe) error {
	cross, err := ctx.Indicators().SMACrossover(s.asset, s.tf, s.cfg.FastPeriod, s.cfg.SlowPeriod)
	if err != nil {
		return err
	}

	switch cross.Data {
	case 1:
		if ctx.HasOpenedPosition(s.asset, types.DirectionLong) {
			return nil
		}

		ctx.EmitSignal(types.Signal{
			Asset:           s.asset,
			Timeframe:       s.tf,
			Action:          types.ActionBuy,
			Direction:       types.DirectionLong,
			ConfidenceLevel: s.cfg.Confidence,
		})

	case -1:
		if !ctx.HasOpenedPosition(s.asset, types.DirectionLong) {
			return nil
		}

		ctx.EmitSignal(types.Signal{
			Asset:           s.asset,
			Timeframe:       s.tf,
			Action:          types.ActionSell,
			Direction:       types.DirectionLong,
			ConfidenceLevel: 1,
			IsExit:          true,
		})
	}

	return nil
}
