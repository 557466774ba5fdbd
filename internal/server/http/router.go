package internalhttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(application Application, logger Logger, metrics http.Handler) http.Handler {
	return newRouter(application, logger, metrics, maxUploadSize)
}

func newRouter(application Application, logger Logger, metrics http.Handler, uploadLimit int64) http.Handler {
	h := &handlers{app: application, logger: logger, uploadLimit: uploadLimit}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(actorMiddleware(application))

		r.Get("/users/{userID}/chart", h.chart)

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminMiddleware(application, logger))

			r.Get("/roles", h.listRoles)

			r.Get("/channels", h.listChannels)
			r.Post("/channels", h.addChannel)

			r.Get("/users", h.listUsers)
			r.Post("/users", h.createUser)
			r.Post("/users/invite", h.inviteUser)

			r.Route("/users/{userID}", func(r chi.Router) {
				r.Get("/", h.getUser)
				r.Delete("/", h.deleteUser)
				r.Post("/email", h.changeEmail)
				r.Post("/role", h.changeRole)

				r.Get("/sites", h.listSites)
				r.Post("/sites", h.addSite)
				r.Delete("/sites", h.deleteSites)

				r.Post("/revenue", h.uploadRevenue)
			})
		})
	})

	return r
}
