package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pesalink/internal/config"
	"pesalink/internal/infra/logging"
	"pesalink/internal/infra/redis"
	"pesalink/internal/usecase"
)

type Server struct {
	paymentUC usecase.PaymentUseCase
	limiter   *redis.RateLimiter
	jwtSecret []byte
	rateLimit int
	rateWin   time.Duration
	log       *zerolog.Logger
}

func NewServer(paymentUC usecase.PaymentUseCase, limiter *redis.RateLimiter, apiCfg config.APIConfig, logger *zerolog.Logger) *Server {
	return &Server{
		paymentUC: paymentUC,
		limiter:   limiter,
		jwtSecret: []byte(apiCfg.JWTSecret),
		rateLimit: apiCfg.CallbackRateLimit,
		rateWin:   apiCfg.CallbackRateWindow,
		log:       logger,
	}
}

// Router builds the full route tree. Merchant routes sit behind the JWT
// middleware; the IPN callback is public because the gateway calls it.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.traceID, s.requestLog)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/orders", s.handleCreateOrder)
			r.Get("/orders", s.handleListOrders)
			r.Get("/orders/{trackingID}", s.handleGetOrder)
			r.Get("/status/{trackingID}", s.handleGetStatus)
			r.Post("/orders/{trackingID}/cancel", s.handleCancelOrder)
			r.Post("/ipn", s.handleRegisterIpn)
			r.Get("/ipn", s.handleListIpns)
			r.Put("/credentials", s.handleRotateCredentials)
		})
		r.Get("/ipn/callback", s.handleIpnCallback)
		r.Post("/ipn/callback", s.handleIpnCallback)
	})
	return r
}

func (s *Server) traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithTraceID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logging.With(r.Context(), s.log)
		start := time.Now()
		ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		l.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
