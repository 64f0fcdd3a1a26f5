package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"sjsage522/pricescout/logger"
)

// ProcessTimeHeader carries the handling time in seconds
const ProcessTimeHeader = "X-Process-Time"

// NewRouter wires the routes and middleware
func NewRouter(h *Handlers) http.Handler {
	r := mux.NewRouter()
	r.Use(processTime)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	apiV1.HandleFunc("/searches", h.RecentSearches).Methods(http.MethodGet)
	apiV1.HandleFunc("/searches/{id}", h.GetSearch).Methods(http.MethodGet)

	searchRoute := apiV1.PathPrefix("/products").Subrouter()
	if h.opts.RateLimitPerSecond > 0 {
		lmt := tollbooth.NewLimiter(h.opts.RateLimitPerSecond, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
		searchRoute.Use(rateLimit(lmt))
	}
	searchRoute.HandleFunc("/search", h.SearchProducts).Methods(http.MethodPost)

	origins := h.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{ProcessTimeHeader},
	})

	return c.Handler(r)
}

// statusRecorder sets the process time header right before the status line
type statusRecorder struct {
	http.ResponseWriter
	start  time.Time
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
		s.Header().Set(ProcessTimeHeader, strconv.FormatFloat(time.Since(s.start).Seconds(), 'f', 6, 64))
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}

func processTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, start: time.Now()}
		next.ServeHTTP(rec, r)

		logger.ForAPI().Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(rec.start)).
			Msg("Request handled")
	})
}

// rateLimit limits requests per client address
func rateLimit(lmt *limiter.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			if httpErr := tollbooth.LimitByKeys(lmt, []string{host}); httpErr != nil {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
