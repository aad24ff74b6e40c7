package handlers

import (
	"net/http"
	"time"

	"github.com/adi-253/chatfeed/internal/rtdb"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Router holds the handlers mounted by NewRouter.
type Router struct {
	Threads     *ThreadHandler
	Messages    *MessageHandler
	Realtime    *rtdb.Handler
	CORSOrigins []string
	Logger      zerolog.Logger
}

// NewRouter wires the dev backend routes. Realtime may be nil.
func NewRouter(rt Router) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(rt.Logger))
	r.Use(middleware.Recoverer)

	if len(rt.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Cache-Control", UserHeader},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check endpoint
	r.Get("/health", HealthCheck)

	if rt.Realtime != nil {
		r.Get("/rtdb/ws", rt.Realtime.ServeWS)
	}

	r.Route("/chat", func(r chi.Router) {
		r.Use(Identify)
		r.Use(RequireUser)

		r.Post("/api/threads", rt.Threads.CreateThread)
		r.Get("/api/t/{tid}/poll", rt.Messages.Poll)
		r.Post("/api/t/{tid}/send", rt.Messages.Send)

		r.Get("/t/{tid}", rt.Threads.Page)
		r.Post("/t/{tid}/m/{mid}/react", rt.Messages.React)
		r.Post("/t/{tid}/m/{mid}/edit", rt.Messages.Edit)
	})

	return r
}

// requestLogger logs one line per request through zerolog.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("elapsed", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
