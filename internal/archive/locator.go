package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/0xc0d3d00d/klinearchive/internal/domain"
)

const DefaultBaseURL = "https://data.binance.vision/data/spot/daily/klines"

// Locator derives archive resource names for one symbol and interval.
//
//	{base}/{SYMBOL}/{INTERVAL}/{SYMBOL}-{INTERVAL}-{YYYY-MM-DD}.zip
type Locator struct {
	BaseURL  string
	Symbol   string
	Interval domain.Interval
}

func (l Locator) FileName(date time.Time) string {
	return fmt.Sprintf("%s-%s-%s.zip", l.Symbol, l.Interval, date.Format(domain.DateLayout))
}

func (l Locator) URL(date time.Time) string {
	base := strings.TrimRight(l.BaseURL, "/")
	return fmt.Sprintf("%s/%s/%s/%s", base, l.Symbol, l.Interval, l.FileName(date))
}

func (l Locator) Task(date time.Time) domain.FetchTask {
	return domain.FetchTask{
		Date: date,
		Name: l.FileName(date),
		URL:  l.URL(date),
	}
}

// Tasks builds one task per calendar date in [start, end].
func (l Locator) Tasks(start, end time.Time) ([]domain.FetchTask, error) {
	dates, err := domain.Dates(start, end)
	if err != nil {
		return nil, err
	}

	tasks := make([]domain.FetchTask, 0, len(dates))
	for _, d := range dates {
		tasks = append(tasks, l.Task(d))
	}
	return tasks, nil
}
