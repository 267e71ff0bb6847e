package analytics

import (
	"slices"
	"strings"
	"time"

	"grosirpos/backend/internal/domain"
)

const dateLayout = "2006-01-02"

type DailyStat struct {
	Date           string  `json:"date"`
	TotalCents     int64   `json:"total_cents"`
	RetailCents    int64   `json:"retail_cents"`
	WholesaleCents int64   `json:"wholesale_cents"`
	Count          int     `json:"count"`
	AverageCents   float64 `json:"average_cents"`
}

// DailySeries buckets sales by calendar date in loc, the zone dates are shown
// in, and returns the buckets in ascending date order.
func DailySeries(sales []domain.Sale, loc *time.Location) []DailyStat {
	if loc == nil {
		loc = time.Local
	}
	index := make(map[string]int)
	series := make([]DailyStat, 0)
	for _, s := range sales {
		key := s.CreatedAt.In(loc).Format(dateLayout)
		i, ok := index[key]
		if !ok {
			i = len(series)
			index[key] = i
			series = append(series, DailyStat{Date: key})
		}
		day := &series[i]
		day.TotalCents += s.TotalCents
		day.Count++
		if s.Channel == domain.ChannelWholesale {
			day.WholesaleCents += s.TotalCents
		} else {
			day.RetailCents += s.TotalCents
		}
	}
	for i := range series {
		series[i].AverageCents = ratio(series[i].TotalCents, int64(series[i].Count), 1)
	}
	slices.SortFunc(series, func(a, b DailyStat) int {
		return strings.Compare(a.Date, b.Date)
	})
	return series
}
