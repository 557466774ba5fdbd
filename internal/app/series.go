package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Fuchsoria/revenue-admin/internal/storage"
)

const (
	SeriesDays = 30

	labelLayout      = "02-01"
	chartType        = "line"
	chartBackground  = "rgba(255, 255, 255, 0)"
	chartBorderWidth = "1"
)

type ChartPayload struct {
	Type string    `json:"type"`
	Data ChartData `json:"data"`
}

type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor string    `json:"backgroundColor"`
	BorderColor     string    `json:"borderColor"`
	BorderWidth     string    `json:"borderWidth"`
}

// Window returns the SeriesDays calendar days before today, oldest first. Today is excluded.
func Window(today time.Time) []time.Time {
	today = storage.Day(today)

	days := make([]time.Time, SeriesDays)
	for i := range days {
		days[i] = today.AddDate(0, 0, i-SeriesDays)
	}

	return days
}

// BuildSeries assembles the 30 day revenue chart of every site the user owns. Each record is
// placed in the slot of its own date; days without a record stay at zero.
func (a *App) BuildSeries(ctx context.Context, userID int64) (ChartPayload, error) {
	if _, err := a.storage.GetUser(ctx, userID); err != nil {
		return ChartPayload{}, notFound("user", userID, err)
	}

	today := storage.Day(a.now().UTC())
	window := Window(today)

	labels := make([]string, len(window))
	slots := make(map[time.Time]int, len(window))

	for i, day := range window {
		labels[i] = day.Format(labelLayout)
		slots[day] = i
	}

	sites, err := a.storage.ListSites(ctx, userID)
	if err != nil {
		return ChartPayload{}, fmt.Errorf("cannot list sites of user %d, %w", userID, err)
	}

	datasets := make([]Dataset, 0, len(sites))

	for _, site := range sites {
		records, err := a.storage.ListRevenue(ctx, storage.RevenueQuery{
			UserID: userID,
			SiteID: site.ID,
			From:   window[0],
			To:     today,
			Limit:  SeriesDays,
		})
		if err != nil {
			return ChartPayload{}, fmt.Errorf("cannot list revenue of site %d, %w", site.ID, err)
		}

		data := make([]float64, SeriesDays)

		for _, r := range records {
			if i, ok := slots[storage.Day(r.Day)]; ok {
				data[i] = r.Revenue.InexactFloat64()
			}
		}

		datasets = append(datasets, Dataset{
			Label:           site.Link,
			Data:            data,
			BackgroundColor: chartBackground,
			BorderColor:     Color(site.Link),
			BorderWidth:     chartBorderWidth,
		})
	}

	a.metrics.ObserveChart()

	return ChartPayload{
		Type: chartType,
		Data: ChartData{Labels: labels, Datasets: datasets},
	}, nil
}
