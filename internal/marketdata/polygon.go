package marketdata

import (
	"context"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// PolygonProvider fetches aggregates from the Polygon REST API.
type PolygonProvider struct {
	client *polygon.Client
}

func NewPolygonProvider(apiKey string) (*PolygonProvider, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeConfig, "polygon api key is required")
	}

	return &PolygonProvider{client: polygon.New(apiKey)}, nil
}

func (p *PolygonProvider) Name() string { return "polygon" }

// polygonSpan maps a timeframe onto Polygon's (multiplier, timespan)
// aggregate addressing.
func polygonSpan(tf types.Timeframe) (int, models.Timespan, error) {
	switch tf {
	case types.Timeframe1m:
		return 1, models.Minute, nil
	case types.Timeframe5m:
		return 5, models.Minute, nil
	case types.Timeframe15m:
		return 15, models.Minute, nil
	case types.Timeframe30m:
		return 30, models.Minute, nil
	case types.Timeframe1h:
		return 1, models.Hour, nil
	case types.Timeframe4h:
		return 4, models.Hour, nil
	case types.Timeframe1d:
		return 1, models.Day, nil
	default:
		return 0, "", errors.Newf(errors.ErrCodeInvalidTimeframe, "polygon does not serve timeframe %q", tf)
	}
}

func (p *PolygonProvider) Candles(ctx context.Context, params DownloadParams) func(yield func(types.Candle, error) bool) {
	return func(yield func(types.Candle, error) bool) {
		multiplier, timespan, err := polygonSpan(params.Timeframe)
		if err != nil {
			yield(types.Candle{}, err)

			return
		}

		//nolint:exhaustruct // third-party struct with many optional fields
		listParams := models.ListAggsParams{
			Ticker:     params.Asset.Symbol,
			Multiplier: multiplier,
			Timespan:   timespan,
			From:       models.Millis(params.Start),
			To:         models.Millis(params.End),
		}.WithLimit(50000)

		iter := p.client.ListAggs(ctx, listParams)

		for iter.Next() {
			agg := iter.Item()

			candle := types.Candle{
				Asset:     params.Asset,
				Timestamp: time.Time(agg.Timestamp).UTC(),
				Open:      agg.Open,
				High:      agg.High,
				Low:       agg.Low,
				Close:     agg.Close,
				Volume:    agg.Volume,
			}

			if !yield(candle, nil) {
				return
			}
		}

		if iterErr := iter.Err(); iterErr != nil {
			yield(types.Candle{}, errors.Wrap(errors.ErrCodeTransientVenue, "polygon aggregate iteration failed", iterErr))
		}
	}
}
