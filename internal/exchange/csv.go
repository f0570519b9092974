package exchange

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/skalibog/volflow/pkg/models"
)

// csvColumns ожидаемый заголовок файла истории
var csvColumns = []string{"open_time", "open", "high", "low", "close", "volume"}

// CSVFeed воспроизводит историю свечей из CSV: либо закрытыми барами,
// либо синтетическими тиками open -> low/high -> close.
type CSVFeed struct {
	Symbol   string
	Interval string
	// Ticks true: по четыре тика на свечу, false: одна закрытая свеча
	Ticks bool

	candles []models.Candle
}

// LoadCSV читает файл свечей
func LoadCSV(path, symbol, interval string) (*CSVFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия %s: %w", path, err)
	}
	defer f.Close()

	return ReadCSV(f, symbol, interval)
}

// ReadCSV разбирает CSV с колонками open_time,open,high,low,close,volume.
// open_time - миллисекунды unix или RFC3339.
func ReadCSV(r io.Reader, symbol, interval string) (*CSVFeed, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения заголовка CSV: %w", err)
	}
	if len(header) < len(csvColumns) {
		return nil, fmt.Errorf("ожидались колонки %s, получено %v", strings.Join(csvColumns, ","), header)
	}
	for i, col := range csvColumns {
		if strings.ToLower(strings.TrimSpace(header[i])) != col {
			return nil, fmt.Errorf("колонка %d: ожидалась %q, получено %q", i+1, col, header[i])
		}
	}

	step, _ := models.IntervalDuration(interval)
	feed := &CSVFeed{Symbol: symbol, Interval: interval}
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("строка %d: %w", line, err)
		}

		c, err := parseRow(rec, symbol, interval)
		if err != nil {
			return nil, fmt.Errorf("строка %d: %w", line, err)
		}
		if step > 0 {
			c.CloseTime = c.OpenTime.Add(step - time.Millisecond)
		}
		feed.candles = append(feed.candles, c)
	}

	return feed, nil
}

// Candles свечи файла
func (f *CSVFeed) Candles() []models.Candle { return f.candles }

// Stream отдает тики в канал до конца файла или отмены контекста
func (f *CSVFeed) Stream(ctx context.Context) <-chan models.Tick {
	out := make(chan models.Tick)
	go func() {
		defer close(out)
		for _, c := range f.candles {
			ticks := []models.Tick{{Candle: c, Final: true}}
			if f.Ticks {
				ticks = syntheticTicks(c)
			}
			for _, t := range ticks {
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// syntheticTicks раскладывает свечу на путь цены. Для растущей свечи
// сначала минимум, затем максимум; для падающей наоборот.
func syntheticTicks(c models.Candle) []models.Tick {
	path := []float64{c.Open, c.Low, c.High, c.Close}
	if c.Close < c.Open {
		path = []float64{c.Open, c.High, c.Low, c.Close}
	}

	ticks := make([]models.Tick, len(path))
	partial := c
	partial.High, partial.Low = c.Open, c.Open
	for i, price := range path {
		partial.High = math.Max(partial.High, price)
		partial.Low = math.Min(partial.Low, price)
		partial.Close = price
		partial.Volume = c.Volume * float64(i+1) / float64(len(path))
		ticks[i] = models.Tick{Candle: partial, Final: i == len(path)-1}
	}
	return ticks
}

func parseRow(rec []string, symbol, interval string) (models.Candle, error) {
	if len(rec) < len(csvColumns) {
		return models.Candle{}, fmt.Errorf("ожидалось %d колонок, получено %d", len(csvColumns), len(rec))
	}

	openTime, err := parseTime(rec[0])
	if err != nil {
		return models.Candle{}, err
	}

	values := make([]float64, 5)
	for i := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("колонка %s: %w", csvColumns[i+1], err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return models.Candle{}, fmt.Errorf("колонка %s: недопустимое значение %v", csvColumns[i+1], v)
		}
		values[i] = v
	}

	return models.Candle{
		Symbol:   symbol,
		Interval: interval,
		OpenTime: openTime,
		Open:     values[0],
		High:     values[1],
		Low:      values[2],
		Close:    values[3],
		Volume:   values[4],
	}, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("время %q: ожидались миллисекунды или RFC3339", s)
	}
	return t.UTC(), nil
}
