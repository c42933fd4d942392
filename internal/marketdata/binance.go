package marketdata

import (
	"context"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// binanceKlineBatch is the venue's maximum klines per request.
const binanceKlineBatch = 1000

// BinanceProvider fetches historical klines from the Binance REST API.
// Market data endpoints need no credentials.
type BinanceProvider struct {
	client *binance.Client
}

func NewBinanceProvider() *BinanceProvider {
	return &BinanceProvider{client: binance.NewClient("", "")}
}

func (p *BinanceProvider) Name() string { return "binance" }

func (p *BinanceProvider) Candles(ctx context.Context, params DownloadParams) func(yield func(types.Candle, error) bool) {
	return func(yield func(types.Candle, error) bool) {
		start := params.Start.UnixMilli()
		end := params.End.UnixMilli()

		for start < end {
			klines, err := p.client.NewKlinesService().
				Symbol(params.Asset.Symbol).
				Interval(string(params.Timeframe)).
				StartTime(start).
				EndTime(end).
				Limit(binanceKlineBatch).
				Do(ctx)
			if err != nil {
				yield(types.Candle{}, errors.Wrap(errors.ErrCodeTransientVenue, "binance klines request failed", err))

				return
			}

			if len(klines) == 0 {
				return
			}

			for _, k := range klines {
				candle, err := parseKline(params.Asset, k)
				if err != nil {
					yield(types.Candle{}, err)

					return
				}

				if !yield(candle, nil) {
					return
				}
			}

			start = klines[len(klines)-1].CloseTime + 1
		}
	}
}

func parseKline(asset types.Asset, k *binance.Kline) (types.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return types.Candle{}, errors.Wrapf(errors.ErrCodeInvalidCandle, err, "malformed kline open %q", k.Open)
	}

	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return types.Candle{}, errors.Wrapf(errors.ErrCodeInvalidCandle, err, "malformed kline high %q", k.High)
	}

	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return types.Candle{}, errors.Wrapf(errors.ErrCodeInvalidCandle, err, "malformed kline low %q", k.Low)
	}

	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return types.Candle{}, errors.Wrapf(errors.ErrCodeInvalidCandle, err, "malformed kline close %q", k.Close)
	}

	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return types.Candle{}, errors.Wrapf(errors.ErrCodeInvalidCandle, err, "malformed kline volume %q", k.Volume)
	}

	return types.Candle{
		Asset:     asset,
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}
