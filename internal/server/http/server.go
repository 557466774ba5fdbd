package internalhttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Fuchsoria/revenue-admin/internal/app"
	"github.com/Fuchsoria/revenue-admin/internal/storage"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = time.Minute
	writeTimeout      = time.Minute
	maxUploadMemory   = 32 << 20
	maxUploadSize     = 64 << 20
)

type Server struct {
	logger Logger
	server *http.Server
}

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type Application interface {
	ListRoles(ctx context.Context) ([]storage.Role, error)
	ListUsers(ctx context.Context) ([]storage.User, error)
	GetUser(ctx context.Context, id int64) (app.UserInfo, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	CreateUser(ctx context.Context, nu app.NewUser) (storage.User, error)
	InviteUser(ctx context.Context, inv app.Invite) (storage.User, error)
	ChangeUserEmail(ctx context.Context, id int64, email string) error
	ChangeAccountType(ctx context.Context, actorID int64, id int64, roleID int64) error
	DeleteUser(ctx context.Context, actorID int64, id int64) error

	ListSites(ctx context.Context, userID int64) ([]storage.Site, error)
	AddSite(ctx context.Context, userID int64, link string) (storage.Site, error)
	DeleteSites(ctx context.Context, userID int64, link string) (int64, error)

	AddChannel(ctx context.Context, name string, publicName string) (storage.Channel, error)
	ListChannels(ctx context.Context, visibleOnly bool) ([]storage.Channel, error)

	Ingest(ctx context.Context, req app.IngestRequest) (app.IngestResult, error)
	BuildSeries(ctx context.Context, userID int64) (app.ChartPayload, error)
}

// NewServer serves the admin API on host:port. metrics may be nil.
func NewServer(application Application, logger Logger, metrics http.Handler, host string, port string) *Server {
	return &Server{
		logger: logger,
		server: &http.Server{
			Addr:              net.JoinHostPort(host, port),
			Handler:           NewRouter(application, logger, metrics),
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	s.logger.Info("http server is listening", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("cannot serve http, %w", err)
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("cannot shutdown http server, %w", err)
	}

	return nil
}
