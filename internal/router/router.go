package router

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/agendaclin/booking-api/internal/handler"
	"github.com/agendaclin/booking-api/internal/handler/prometheus"
	"github.com/agendaclin/booking-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimit rate.Limit
	RateBurst int
}

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	availabilityH Handler
	releaseH      Handler
	slotsH        Handler
	bookingH      Handler
}

func NewRouter(
	log *zerolog.Logger,
	auth *middleware.AuthMiddleware,
	availabilityH Handler,
	releaseH Handler,
	slotsH Handler,
	bookingH Handler,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
	)

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  config.RateLimit,
		Burst: config.RateBurst,
	})
	engine.Use(rateLimiter.RateLimit())

	return &Router{
		engine:        engine,
		auth:          auth,
		availabilityH: availabilityH,
		releaseH:      releaseH,
		slotsH:        slotsH,
		bookingH:      bookingH,
	}
}

func (r *Router) Setup() {
	r.engine.GET("/health", handler.Health)
	prometheus.Register(r.engine)

	api := r.engine.Group("/api/v1")
	api.Use(r.auth.Authenticate())

	r.availabilityH.RegisterRoutes(api)
	r.releaseH.RegisterRoutes(api)
	r.slotsH.RegisterRoutes(api)
	r.bookingH.RegisterRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
