package marketdata

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/rxtech-lab/tradeloop/internal/feed"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// CSVWriter streams candles into a CSV file the historical feed can
// ingest with LoadCSV.
type CSVWriter struct {
	path string
	file *os.File
	w    *csv.Writer
}

func NewCSVWriter(path string) (*CSVWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreWriteFailed, err, "failed to create %s", path)
	}

	w := csv.NewWriter(file)

	if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		file.Close()

		return nil, errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to write csv header", err)
	}

	return &CSVWriter{path: path, file: file, w: w}, nil
}

func (c *CSVWriter) Write(candle types.Candle) error {
	record := []string{
		candle.Timestamp.UTC().Format(time.RFC3339),
		strconv.FormatFloat(candle.Open, 'f', -1, 64),
		strconv.FormatFloat(candle.High, 'f', -1, 64),
		strconv.FormatFloat(candle.Low, 'f', -1, 64),
		strconv.FormatFloat(candle.Close, 'f', -1, 64),
		strconv.FormatFloat(candle.Volume, 'f', -1, 64),
	}

	if err := c.w.Write(record); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to write csv row", err)
	}

	return nil
}

func (c *CSVWriter) Finalize() (string, error) {
	c.w.Flush()

	if err := c.w.Error(); err != nil {
		c.file.Close()

		return "", errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to flush csv", err)
	}

	if err := c.file.Close(); err != nil {
		return "", errors.Wrapf(errors.ErrCodeStoreWriteFailed, err, "failed to close %s", c.path)
	}

	return c.path, nil
}

// feedWriterBatch bounds memory while inserting into the feed store.
const feedWriterBatch = 5000

// FeedWriter loads candles straight into a historical feed's store,
// skipping the CSV intermediate.
type FeedWriter struct {
	feed    *feed.HistoricalFeed
	sub     feed.Subscription
	pending []types.Candle
}

func NewFeedWriter(f *feed.HistoricalFeed, sub feed.Subscription) *FeedWriter {
	return &FeedWriter{feed: f, sub: sub}
}

func (f *FeedWriter) Write(candle types.Candle) error {
	f.pending = append(f.pending, candle)

	if len(f.pending) >= feedWriterBatch {
		return f.flush()
	}

	return nil
}

func (f *FeedWriter) flush() error {
	if len(f.pending) == 0 {
		return nil
	}

	if err := f.feed.AddCandles(f.sub, f.pending); err != nil {
		return err
	}

	f.pending = f.pending[:0]

	return nil
}

func (f *FeedWriter) Finalize() (string, error) {
	if err := f.flush(); err != nil {
		return "", err
	}

	return f.sub.Key(), nil
}
