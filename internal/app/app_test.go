package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Fuchsoria/revenue-admin/internal/logger"
	"github.com/Fuchsoria/revenue-admin/internal/parser"
	"github.com/Fuchsoria/revenue-admin/internal/storage"
	memorystorage "github.com/Fuchsoria/revenue-admin/internal/storage/memory"
	"github.com/Fuchsoria/revenue-admin/internal/uploads"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

type message struct {
	routingKey string
	body       string
}

type recordingProducer struct {
	mu       sync.Mutex
	messages []message
}

func (p *recordingProducer) Publish(_ context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.messages = append(p.messages, message{routingKey, string(body)})

	return nil
}

func (p *recordingProducer) sent() []message {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]message(nil), p.messages...)
}

type fixture struct {
	app      *App
	store    *memorystorage.Storage
	producer *recordingProducer
	root     string
	user     storage.User
	site     storage.Site
	channel  storage.Channel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	root := t.TempDir()

	uploadStore, err := uploads.New(root)
	require.NoError(t, err)

	store := memorystorage.New()
	producer := &recordingProducer{}
	logg := logger.NewNop()

	a := New(logg, store, parser.DefaultRegistry(logg), uploadStore,
		WithClock(func() time.Time { return fixedNow }),
		WithProducer(producer),
		WithAdminEmail("root@example.com"),
	)

	require.NoError(t, a.EnsureRoles(ctx))

	user, err := a.CreateUser(ctx, NewUser{FirstName: "Ana", Email: "ana@example.com", Password: "secret"})
	require.NoError(t, err)

	site, err := a.AddSite(ctx, user.ID, "acme")
	require.NoError(t, err)

	channel, err := a.AddChannel(ctx, parser.Network33Across, "33Across")
	require.NoError(t, err)

	return &fixture{
		app:      a,
		store:    store,
		producer: producer,
		root:     root,
		user:     user,
		site:     site,
		channel:  channel,
	}
}

func report(rows ...string) string {
	return "33Across report\nLogin,Date,Estimated Revenue\n" + strings.Join(rows, "\n") + "\n"
}

func (f *fixture) ingest(t *testing.T, body string) (IngestResult, error) {
	t.Helper()

	return f.ingestSite(t, f.site.ID, body)
}

func (f *fixture) ingestSite(t *testing.T, siteID int64, body string) (IngestResult, error) {
	t.Helper()

	return f.app.Ingest(context.Background(), IngestRequest{
		UserID:    f.user.ID,
		ChannelID: f.channel.ID,
		SiteID:    siteID,
		Filename:  "report.csv",
		Body:      strings.NewReader(body),
	})
}

func (f *fixture) revenue(t *testing.T) []storage.RevenueRecord {
	t.Helper()

	return f.siteRevenue(t, f.site.ID)
}

func (f *fixture) siteRevenue(t *testing.T, siteID int64) []storage.RevenueRecord {
	t.Helper()

	records, err := f.store.ListRevenue(context.Background(), storage.RevenueQuery{UserID: f.user.ID, SiteID: siteID})
	require.NoError(t, err)

	return records
}
