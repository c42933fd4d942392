// Command tradeloop runs the trading engine: backtests over historical
// CSV data, live trading against Binance, and the market data download
// pipeline that feeds both.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/rxtech-lab/tradeloop/internal/broker"
	"github.com/rxtech-lab/tradeloop/internal/calendar"
	"github.com/rxtech-lab/tradeloop/internal/clock"
	"github.com/rxtech-lab/tradeloop/internal/engine"
	"github.com/rxtech-lab/tradeloop/internal/feed"
	"github.com/rxtech-lab/tradeloop/internal/indicator"
	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/marketdata"
	"github.com/rxtech-lab/tradeloop/internal/order"
	"github.com/rxtech-lab/tradeloop/internal/persistence"
	"github.com/rxtech-lab/tradeloop/internal/strategy"
	"github.com/rxtech-lab/tradeloop/internal/types"
)

func main() {
	cmd := &cli.Command{
		Name:  "tradeloop",
		Usage: "Event-driven strategy backtesting and live trading",
		Commands: []*cli.Command{
			backtestCommand(),
			liveCommand(),
			downloadCommand(),
			schemaCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func backtestCommand() *cli.Command {
	return &cli.Command{
		Name:  "backtest",
		Usage: "Run a strategy over historical CSV data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Candle CSV file (timestamp,open,high,low,close,volume)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Strategy config YAML file",
				Required: true,
			},
			&cli.FloatFlag{
				Name:  "funds",
				Usage: "Initial cash",
				Value: 10000,
			},
			&cli.StringFlag{
				Name:  "fee",
				Usage: "Fee model: zero_commission, interactive_broker, percentage",
				Value: string(broker.FeeModelZero),
			},
			&cli.StringFlag{
				Name:  "isolation",
				Usage: "Sizing isolation mode",
				Value: string(broker.IsolationExchange),
			},
			&cli.IntFlag{
				Name:  "warmup",
				Usage: "Bars of indicator warmup history",
				Value: 0,
			},
			&cli.BoolFlag{
				Name:  "close-eod",
				Usage: "Flatten every position at the end of each trading session",
			},
			&cli.StringFlag{
				Name:    "results",
				Aliases: []string{"r"},
				Usage:   "Directory for Parquet result export",
			},
		},
		Action: backtestAction,
	}
}

func backtestAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	configDoc, err := os.ReadFile(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to read strategy config: %w", err)
	}

	strat := strategy.NewSMACross()
	if err := strat.Initialize(string(configDoc)); err != nil {
		return err
	}

	subs := strat.Subscriptions()
	if len(subs) == 0 {
		return fmt.Errorf("strategy %s has no subscriptions", strat.Name())
	}

	sub := subs[0]

	f, err := feed.NewHistoricalFeed(":memory:", log)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.LoadCSV(cmd.String("data"), sub); err != nil {
		return err
	}

	clk := clock.NewSimulationClock()
	sim := broker.NewSimulationBroker(broker.SimulationConfig{
		Exchange:     sub.Asset.Exchange,
		Currency:     "USD",
		InitialFunds: cmd.Float("funds"),
		FeeModel:     broker.FeeModelName(cmd.String("fee")),
	}, clk, log)
	brokers := broker.NewManager(broker.IsolationMode(cmd.String("isolation")), log, sim)

	orders := order.NewManager(
		order.NewPositionSizer(brokers, false),
		order.NewOrderCreator(order.CreatorConfig{
			FixedOrderType: types.OrderTypeMarket,
			Style:          order.StyleSingle,
		}),
		brokers, log)

	eng := engine.NewEngine(engine.Config{
		Mode:            engine.ModeBacktest,
		CloseAtEndOfDay: cmd.Bool("close-eod"),
		WarmupBars:      int(cmd.Int("warmup")),
	}, f, clk, indicator.NewManager(log), orders, brokers, log)

	if cmd.Bool("close-eod") {
		eng.SetCalendar(sub.Asset.Exchange, calendar.NewAlwaysOpenCalendar())
	}

	store, err := persistence.NewStore(":memory:", log)
	if err != nil {
		return err
	}
	defer store.Close()

	eng.SetRecorder(store)

	if err := eng.Register(strategy.NewSMACross(), string(configDoc)); err != nil {
		return err
	}

	if err := eng.Run(ctx); err != nil {
		return err
	}

	printResults(sim, store)

	if dir := cmd.String("results"); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}

		if err := store.Export(dir); err != nil {
			return err
		}

		fmt.Printf("results exported to %s\n", dir)
	}

	return nil
}

func printResults(sim *broker.SimulationBroker, store *persistence.Store) {
	p := sim.Portfolio()
	fmt.Printf("final cash:   %s %s\n", p.Cash().StringFixed(2), p.Currency())
	fmt.Printf("final equity: %s %s\n", p.Equity().StringFixed(2), p.Currency())
	fmt.Printf("closed pnl:   %s %s\n", p.ClosedPnl().StringFixed(2), p.Currency())

	stats, err := store.Stats()
	if err != nil {
		fmt.Printf("stats unavailable: %v\n", err)

		return
	}

	for _, st := range stats {
		fmt.Printf("%s-%s [%s]: %d fills, bought %.4f, sold %.4f, fees %.2f, net cash flow %.2f\n",
			st.Exchange, st.Symbol, st.StrategyName,
			st.Fills, st.BoughtSize, st.SoldSize, st.TotalCommission, st.NetCashFlow)
	}
}

func liveCommand() *cli.Command {
	return &cli.Command{
		Name:  "live",
		Usage: "Trade a strategy live against Binance",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Strategy config YAML file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "currency",
				Usage: "Quote currency of the trading account",
				Value: "USDT",
			},
			&cli.BoolFlag{
				Name:  "testnet",
				Usage: "Use the Binance spot testnet",
			},
			&cli.IntFlag{
				Name:  "sync-interval",
				Usage: "Seconds between venue reconciliations",
				Value: 60,
			},
		},
		Action: liveAction,
	}
}

func liveAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	configDoc, err := os.ReadFile(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to read strategy config: %w", err)
	}

	strat := strategy.NewSMACross()
	if err := strat.Initialize(string(configDoc)); err != nil {
		return err
	}

	subs := strat.Subscriptions()
	if len(subs) == 0 {
		return fmt.Errorf("strategy %s has no subscriptions", strat.Name())
	}

	bnc, err := broker.NewBinanceBroker(broker.BinanceConfig{
		APIKey:     os.Getenv("BINANCE_API_KEY"),
		SecretKey:  os.Getenv("BINANCE_SECRET_KEY"),
		UseTestnet: cmd.Bool("testnet"),
		Currency:   cmd.String("currency"),
	}, clock.NewLiveClock(), log)
	if err != nil {
		return err
	}

	brokers := broker.NewManager(broker.IsolationExchange, log, bnc)
	orders := order.NewManager(
		order.NewPositionSizer(brokers, false),
		order.NewOrderCreator(order.CreatorConfig{
			FixedOrderType: types.OrderTypeMarket,
			Style:          order.StyleSingle,
		}),
		brokers, log)

	live := feed.NewLiveFeed("", subs, log)

	eng := engine.NewEngine(engine.Config{Mode: engine.ModeLive}, live, clock.NewLiveClock(),
		indicator.NewManager(log), orders, brokers, log)

	if err := eng.Register(strategy.NewSMACross(), string(configDoc)); err != nil {
		return err
	}

	if err := bnc.Synchronize(ctx); err != nil {
		return err
	}

	// periodic reconciliation against venue truth
	go func() {
		ticker := time.NewTicker(time.Duration(cmd.Int("sync-interval")) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := brokers.Synchronize(ctx); err != nil {
					log.Warn("venue synchronization failed", zap.Error(err))
				}
			}
		}
	}()

	return live.Run(ctx, func(sub feed.Subscription, candle types.Candle) {
		if err := eng.Step(sub, candle); err != nil {
			log.Error("failed to process live bar", zap.Error(err))
		}
	})
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download historical candles to CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "symbol",
				Aliases:  []string{"s"},
				Usage:    "Instrument symbol",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "exchange",
				Usage: "Venue name recorded with the data",
				Value: "BINANCE",
			},
			&cli.StringFlag{
				Name:  "timeframe",
				Usage: "Bar interval (1m, 5m, 15m, 30m, 1h, 4h, 1d)",
				Value: "1m",
			},
			&cli.TimestampFlag{
				Name:     "start",
				Usage:    "Start date in YYYY-MM-DD format",
				Required: true,
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.TimestampFlag{
				Name:  "end",
				Usage: "End date in YYYY-MM-DD format, defaults to today",
				Value: time.Now(),
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Data provider: binance or polygon",
				Value:   "binance",
			},
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Usage:    "Output CSV path",
				Required: true,
			},
		},
		Action: downloadAction,
	}
}

func downloadAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	tf, err := types.ParseTimeframe(cmd.String("timeframe"))
	if err != nil {
		return err
	}

	var provider marketdata.Provider

	switch cmd.String("provider") {
	case "polygon":
		provider, err = marketdata.NewPolygonProvider(os.Getenv("POLYGON_API_KEY"))
		if err != nil {
			return err
		}
	case "binance":
		provider = marketdata.NewBinanceProvider()
	default:
		return fmt.Errorf("unknown provider %q", cmd.String("provider"))
	}

	w, err := marketdata.NewCSVWriter(cmd.String("out"))
	if err != nil {
		return err
	}

	path, err := marketdata.NewDownloader(provider, log).Download(ctx, marketdata.DownloadParams{
		Asset:     types.NewAsset(cmd.String("symbol"), cmd.String("exchange")),
		Timeframe: tf,
		Start:     cmd.Timestamp("start"),
		End:       cmd.Timestamp("end"),
	}, w)
	if err != nil {
		return err
	}

	fmt.Printf("downloaded to %s\n", path)

	return nil
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Print the JSON schema of the strategy config",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			schema, err := strategy.ConfigSchema[strategy.SMACrossConfig]()
			if err != nil {
				return err
			}

			fmt.Println(schema)

			return nil
		},
	}
}
