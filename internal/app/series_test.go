package app

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/Fuchsoria/revenue-admin/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func (f *fixture) seed(t *testing.T, site storage.Site, revenue map[time.Time]string) {
	t.Helper()

	records := make([]storage.RevenueRecord, 0, len(revenue))
	for day, value := range revenue {
		records = append(records, storage.RevenueRecord{
			UserID:    site.UserID,
			SiteID:    site.ID,
			ChannelID: f.channel.ID,
			Day:       day,
			Revenue:   decimal.RequireFromString(value),
		})
	}

	_, err := f.store.InsertRevenueRecords(context.Background(), records)
	require.NoError(t, err)
}

func TestWindow(t *testing.T) {
	window := Window(fixedNow)

	require.Len(t, window, SeriesDays)
	require.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), window[0])
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), window[SeriesDays-1])

	for i := 1; i < len(window); i++ {
		require.Equal(t, window[i-1].AddDate(0, 0, 1), window[i])
	}
}

func TestBuildSeries(t *testing.T) {
	ctx := context.Background()
	today := storage.Day(fixedNow)

	t.Run("test user without sites", func(t *testing.T) {
		f := newFixture(t)

		user, err := f.app.CreateUser(ctx, NewUser{FirstName: "Bo", Email: "bo@example.com", Password: "x"})
		require.NoError(t, err)

		payload, err := f.app.BuildSeries(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "line", payload.Type)
		require.Len(t, payload.Data.Labels, SeriesDays)
		require.Empty(t, payload.Data.Datasets)

		body, err := json.Marshal(payload)
		require.NoError(t, err)
		require.Contains(t, string(body), `"datasets":[]`)
	})

	t.Run("test labels run oldest to newest", func(t *testing.T) {
		f := newFixture(t)

		payload, err := f.app.BuildSeries(ctx, f.user.ID)
		require.NoError(t, err)
		require.Equal(t, "31-01", payload.Data.Labels[0])
		require.Equal(t, "01-02", payload.Data.Labels[1])
		require.Equal(t, "29-02", payload.Data.Labels[SeriesDays-1])
	})

	t.Run("test every dataset has one point per day", func(t *testing.T) {
		for _, count := range []int{0, 5, 1000} {
			f := newFixture(t)

			revenue := make(map[time.Time]string, count)
			for i := 1; i <= count; i++ {
				revenue[today.AddDate(0, 0, -i)] = "1.25"
			}

			f.seed(t, f.site, revenue)

			payload, err := f.app.BuildSeries(ctx, f.user.ID)
			require.NoError(t, err)
			require.Len(t, payload.Data.Datasets, 1)

			dataset := payload.Data.Datasets[0]
			require.Len(t, dataset.Data, SeriesDays, "records: %d", count)
			require.Equal(t, "acme", dataset.Label)
			require.Equal(t, Color("acme"), dataset.BorderColor)
			require.Equal(t, "rgba(255, 255, 255, 0)", dataset.BackgroundColor)
			require.Equal(t, "1", dataset.BorderWidth)

			filled := 0
			for _, v := range dataset.Data {
				if v != 0 {
					filled++
				}
			}

			expected := count
			if expected > SeriesDays {
				expected = SeriesDays
			}

			require.Equal(t, expected, filled, "records: %d", count)
		}
	})

	t.Run("test records land on their own dates", func(t *testing.T) {
		f := newFixture(t)

		f.seed(t, f.site, map[time.Time]string{
			today:                    "100",
			today.AddDate(0, 0, -1):  "1.50",
			today.AddDate(0, 0, -10): "10",
			today.AddDate(0, 0, -30): "30",
			today.AddDate(0, 0, -31): "31",
		})

		payload, err := f.app.BuildSeries(ctx, f.user.ID)
		require.NoError(t, err)

		data := payload.Data.Datasets[0].Data
		require.Equal(t, 30.0, data[0])
		require.Equal(t, 10.0, data[SeriesDays-10])
		require.Equal(t, 1.5, data[SeriesDays-1])

		sum := 0.0
		for _, v := range data {
			sum += v
		}

		require.Equal(t, 41.5, sum, "today and older days stay outside the window")
	})

	t.Run("test one dataset per site", func(t *testing.T) {
		f := newFixture(t)

		blog, err := f.app.AddSite(ctx, f.user.ID, "blog")
		require.NoError(t, err)

		f.seed(t, blog, map[time.Time]string{today.AddDate(0, 0, -2): "7"})

		payload, err := f.app.BuildSeries(ctx, f.user.ID)
		require.NoError(t, err)
		require.Len(t, payload.Data.Datasets, 2)

		byLabel := map[string]Dataset{}
		for _, d := range payload.Data.Datasets {
			byLabel[d.Label] = d
		}

		require.Equal(t, 7.0, byLabel["blog"].Data[SeriesDays-2])
		require.Zero(t, byLabel["acme"].Data[SeriesDays-2])
		require.Equal(t, Color("blog"), byLabel["blog"].BorderColor)
	})

	t.Run("test unknown user", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.app.BuildSeries(ctx, 999)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestColor(t *testing.T) {
	format := regexp.MustCompile(`^rgba\(\d{1,3}, \d{1,3}, \d{1,3}, 0\.9\)$`)

	t.Run("test stable", func(t *testing.T) {
		require.Equal(t, Color("example.com"), Color("example.com"))
	})

	t.Run("test format", func(t *testing.T) {
		for _, link := range []string{"", "a", "example.com", "https://news.example.org/path", "сайт.рф"} {
			require.Regexp(t, format, Color(link))
		}
	})

	t.Run("test hsl conversion", func(t *testing.T) {
		r, g, b := hslToRGB(0, colorSaturation, colorLightness)
		require.Equal(t, []int{217, 38, 38}, []int{r, g, b})

		r, g, b = hslToRGB(120, colorSaturation, colorLightness)
		require.Equal(t, []int{38, 217, 38}, []int{r, g, b})

		r, g, b = hslToRGB(240, colorSaturation, colorLightness)
		require.Equal(t, []int{38, 38, 217}, []int{r, g, b})
	})
}
