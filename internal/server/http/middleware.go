package internalhttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Fuchsoria/revenue-admin/internal/app"
	"github.com/go-chi/chi/v5/middleware"
)

const actorHeader = "X-Actor-ID"

type ctxKey string

const actorKey ctxKey = "actor"

func loggingMiddleware(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
				"latency", time.Since(start).String(),
			)
		})
	}
}

// actorMiddleware requires a numeric X-Actor-ID of an existing user.
func actorMiddleware(application Application) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID, err := strconv.ParseInt(r.Header.Get(actorHeader), 10, 64)
			if err != nil || actorID <= 0 {
				writeMessage(w, http.StatusUnauthorized, "missing or invalid "+actorHeader)

				return
			}

			if _, err := application.GetUser(r.Context(), actorID); err != nil {
				if errors.Is(err, app.ErrNotFound) {
					writeMessage(w, http.StatusUnauthorized, "unknown actor")

					return
				}

				writeMessage(w, http.StatusInternalServerError, "internal error")

				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actorID)))
		})
	}
}

func adminMiddleware(application Application, logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin, err := application.IsAdmin(r.Context(), actor(r.Context()))
			if err != nil {
				writeError(w, logger, err)

				return
			}

			if !admin {
				writeMessage(w, http.StatusForbidden, "administrator role required")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func actor(ctx context.Context) int64 {
	if id, ok := ctx.Value(actorKey).(int64); ok {
		return id
	}

	return 0
}
