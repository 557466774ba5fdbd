package app

import (
	"context"
	"io"
	"time"

	"github.com/Fuchsoria/revenue-admin/internal/lock"
	"github.com/Fuchsoria/revenue-admin/internal/parser"
	"github.com/Fuchsoria/revenue-admin/internal/storage"
	"github.com/Fuchsoria/revenue-admin/internal/uploads"
	"go.uber.org/zap"
)

type App struct {
	logger   Logger
	storage  Storage
	parsers  Parsers
	uploads  Uploads
	locker   lock.Locker
	producer Producer
	metrics  Metrics

	adminEmail string
	now        func() time.Time
}

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	GetInstance() *zap.Logger
}

type Storage interface {
	UpsertRole(ctx context.Context, role storage.Role) (int64, error)
	GetRole(ctx context.Context, id int64) (storage.Role, error)
	ListRoles(ctx context.Context) ([]storage.Role, error)

	CreateUser(ctx context.Context, user storage.User) (int64, error)
	GetUser(ctx context.Context, id int64) (storage.User, error)
	GetUserByEmail(ctx context.Context, email string) (storage.User, error)
	ListUsers(ctx context.Context) ([]storage.User, error)
	UpdateUserEmail(ctx context.Context, id int64, email string) error
	UpdateUserRole(ctx context.Context, id int64, roleID int64) error
	DeleteUser(ctx context.Context, id int64) error

	CreateChannel(ctx context.Context, channel storage.Channel) (int64, error)
	GetChannel(ctx context.Context, id int64) (storage.Channel, error)
	ListChannels(ctx context.Context, visibleOnly bool) ([]storage.Channel, error)

	CreateSite(ctx context.Context, site storage.Site) (int64, error)
	GetSite(ctx context.Context, id int64) (storage.Site, error)
	ListSites(ctx context.Context, userID int64) ([]storage.Site, error)
	DeleteSitesByLink(ctx context.Context, userID int64, link string) (int64, error)

	GetRevenueDays(ctx context.Context, siteID int64, days []time.Time) ([]time.Time, error)
	InsertRevenueRecords(ctx context.Context, records []storage.RevenueRecord) (int64, error)
	ListRevenue(ctx context.Context, q storage.RevenueQuery) ([]storage.RevenueRecord, error)
}

type Parsers interface {
	Resolve(network string) (parser.Decoder, bool)
}

type Uploads interface {
	Stage(network string, filename string, r io.Reader) (*uploads.Upload, error)
}

type Producer interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

type Metrics interface {
	ObserveIngestion(network string, outcome string, inserted int, duplicates int, took time.Duration)
	ObserveChart()
}

type Option func(*App)

// WithAdminEmail makes users created with this email administrators.
func WithAdminEmail(email string) Option {
	return func(a *App) { a.adminEmail = email }
}

func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

func WithProducer(producer Producer) Option {
	return func(a *App) { a.producer = producer }
}

func WithMetrics(metrics Metrics) Option {
	return func(a *App) { a.metrics = metrics }
}

func WithLocker(locker lock.Locker) Option {
	return func(a *App) { a.locker = locker }
}

func New(logger Logger, storage Storage, parsers Parsers, uploads Uploads, opts ...Option) *App {
	a := &App{
		logger:   logger,
		storage:  storage,
		parsers:  parsers,
		uploads:  uploads,
		locker:   lock.NewLocalLocker(),
		producer: nopProducer{},
		metrics:  nopMetrics{},
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

type nopProducer struct{}

func (nopProducer) Publish(context.Context, string, []byte) error { return nil }

type nopMetrics struct{}

func (nopMetrics) ObserveIngestion(string, string, int, int, time.Duration) {}
func (nopMetrics) ObserveChart()                                            {}
