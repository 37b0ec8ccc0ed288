package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	goredis "github.com/redis/go-redis/v9"

	redisrepo "github.com/agendaclin/booking-api/internal/repository/redis"
	"github.com/agendaclin/booking-api/internal/service/reservation"
	"github.com/agendaclin/booking-api/pkg/clock"
	"github.com/agendaclin/booking-api/pkg/logger"
	redisbroker "github.com/agendaclin/booking-api/pkg/messaging/redis"
	"github.com/agendaclin/booking-api/pkg/metrics"
	"github.com/agendaclin/booking-api/pkg/worker"
)

// Spec is the worker environment, prefixed SWEEPER_.
type Spec struct {
	RedisURL       string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	ReservationTTL time.Duration `envconfig:"RESERVATION_TTL" default:"90s"`
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"30s"`
	HealthAddr     string        `envconfig:"HEALTH_ADDR" default:":8081"`
}

func main() {
	log := logger.NewLogger(nil)

	var spec Spec
	if err := envconfig.Process("SWEEPER", &spec); err != nil {
		log.Fatal(err, "failed to load environment")
	}

	opts, err := goredis.ParseURL(spec.RedisURL)
	if err != nil {
		log.Fatal(err, "failed to parse Redis URL")
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatal(err, "failed to connect to Redis")
	}
	defer client.Close()

	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{URL: spec.RedisURL}, log.Zerolog())
	if err != nil {
		log.Fatal(err, "failed to create Redis broker")
	}
	defer broker.Close()

	store := redisrepo.NewReservationStore(client)
	m := metrics.NewMetrics("agendaclin", "sweeper")
	svc := reservation.NewService(store, clock.System(), broker, m, log, spec.ReservationTTL)

	setupHealthCheck(spec.HealthAddr, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	worker.NewReservationSweeper(svc, spec.SweepInterval, log).Start(ctx)
}

func setupHealthCheck(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error(err, "health check server failed")
		}
	}()
}
