// Package marketdata downloads historical candles from external data
// providers and writes them somewhere a feed can read: a CSV file or a
// feed's DuckDB store directly.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// DownloadParams bounds one download request.
type DownloadParams struct {
	Asset     types.Asset     `validate:"required"`
	Timeframe types.Timeframe `validate:"required"`
	Start     time.Time       `validate:"required"`
	End       time.Time       `validate:"required,gtfield=Start"`
}

// Provider fetches candles from an external data source as a lazy
// iterator, ascending by timestamp.
type Provider interface {
	Name() string
	Candles(ctx context.Context, params DownloadParams) func(yield func(types.Candle, error) bool)
}

// CandleWriter receives downloaded candles. Finalize reports where the
// data ended up.
type CandleWriter interface {
	Write(candle types.Candle) error
	Finalize() (string, error)
}

// Downloader pulls candles from a provider into a writer with terminal
// progress reporting.
type Downloader struct {
	provider Provider
	validate *validator.Validate
	log      *logger.Logger
}

func NewDownloader(provider Provider, log *logger.Logger) *Downloader {
	return &Downloader{
		provider: provider,
		validate: validator.New(),
		log:      log,
	}
}

// Download fetches every candle in the requested range and hands it to
// the writer. It returns the writer's output location.
func (d *Downloader) Download(ctx context.Context, params DownloadParams, w CandleWriter) (string, error) {
	if err := d.validate.Struct(params); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidParameter, "invalid download parameters", err)
	}

	totalDays := int(params.End.Sub(params.Start).Hours()/24) + 1

	bar := progressbar.NewOptions(totalDays,
		progressbar.OptionSetDescription(fmt.Sprintf("Downloading %s %s", params.Asset.String(), params.Timeframe)),
		progressbar.OptionShowCount(),
	)

	written := 0

	for candle, err := range d.provider.Candles(ctx, params) {
		if err != nil {
			return "", err
		}

		if err := w.Write(candle); err != nil {
			return "", err
		}

		written++
		if written%1000 == 0 {
			bar.Set(int(candle.Timestamp.Sub(params.Start).Hours() / 24))
		}
	}

	bar.Finish()

	d.log.Info("download complete",
		zap.String("provider", d.provider.Name()),
		zap.String("asset", params.Asset.String()),
		zap.Int("candles", written),
	)

	return w.Finalize()
}
