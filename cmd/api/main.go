package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	_ "github.com/lib/pq"

	"github.com/agendaclin/booking-api/internal/config"
	"github.com/agendaclin/booking-api/internal/email"
	availabilityhandler "github.com/agendaclin/booking-api/internal/handler/availability"
	bookinghandler "github.com/agendaclin/booking-api/internal/handler/booking"
	releasehandler "github.com/agendaclin/booking-api/internal/handler/release"
	slotshandler "github.com/agendaclin/booking-api/internal/handler/slots"
	"github.com/agendaclin/booking-api/internal/middleware"
	"github.com/agendaclin/booking-api/internal/repository/postgres"
	redisrepo "github.com/agendaclin/booking-api/internal/repository/redis"
	"github.com/agendaclin/booking-api/internal/router"
	"github.com/agendaclin/booking-api/internal/service/audit"
	"github.com/agendaclin/booking-api/internal/service/availability"
	"github.com/agendaclin/booking-api/internal/service/booking"
	"github.com/agendaclin/booking-api/internal/service/notification"
	"github.com/agendaclin/booking-api/internal/service/release"
	"github.com/agendaclin/booking-api/internal/service/reservation"
	"github.com/agendaclin/booking-api/internal/service/slots"
	"github.com/agendaclin/booking-api/pkg/clock"
	"github.com/agendaclin/booking-api/pkg/logger"
	redisbroker "github.com/agendaclin/booking-api/pkg/messaging/redis"
	"github.com/agendaclin/booking-api/pkg/metrics"
	"github.com/agendaclin/booking-api/pkg/worker"
)

func main() {
	log := logger.NewLogger(nil)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err, "failed to load config")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal(err, "failed to parse Redis URL")
	}
	redisOpts.MaxRetries = cfg.Redis.MaxRetries
	redisOpts.MinRetryBackoff = cfg.Redis.RetryBackoff
	redisOpts.PoolSize = cfg.Redis.PoolSize
	redisOpts.MinIdleConns = cfg.Redis.MinIdleConns
	redisClient := goredis.NewClient(redisOpts)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal(err, "failed to connect to Redis")
	}
	defer redisClient.Close()

	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, log.Zerolog())
	if err != nil {
		log.Fatal(err, "failed to create Redis broker")
	}
	defer broker.Close()

	availabilityRepo := postgres.NewAvailabilityRepository(db)
	releaseRepo := postgres.NewReleaseScheduleRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	clinicSettingsRepo := postgres.NewClinicSettingsRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	reservationStore := redisrepo.NewReservationStore(redisClient)

	m := metrics.NewMetrics("agendaclin", "booking")
	clk := clock.System()

	availabilitySvc := availability.NewService(availabilityRepo, clk, log)
	releaseSvc := release.NewService(releaseRepo, clk, log)
	reservationSvc := reservation.NewService(reservationStore, clk, broker, m, log, cfg.Reservation.TTL)
	slotsSvc := slots.NewService(availabilitySvc, releaseSvc, reservationSvc, appointmentRepo, clinicSettingsRepo, m, log)
	auditSvc := audit.NewService(auditRepo)

	var sender *email.Sender
	if cfg.SMTP.Host != "" {
		sender = email.NewSender(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}
	notifier := notification.NewService(sender, log)

	bookingSvc := booking.NewService(
		availabilitySvc,
		releaseSvc,
		reservationSvc,
		appointmentRepo,
		patientRepo,
		auditSvc,
		notifier,
		broker,
		m,
		log,
	)

	auth := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	r := router.NewRouter(
		log.Zerolog(),
		auth,
		availabilityhandler.NewHandler(availabilitySvc),
		releasehandler.NewHandler(releaseSvc),
		slotshandler.NewHandler(slotsSvc),
		bookinghandler.NewHandler(bookingSvc),
		router.Config{
			RateLimit: rate.Limit(cfg.RateLimit.RPS),
			RateBurst: cfg.RateLimit.Burst,
		},
	)
	r.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := worker.NewReservationSweeper(reservationSvc, cfg.Reservation.SweepInterval, log)
	go sweeper.Start(ctx)

	cleanup := worker.NewAuditCleanupWorker(auditRepo, cfg.Audit.RetentionDays, cfg.Audit.CleanupInterval, log)
	go cleanup.Start(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		log.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "graceful shutdown failed")
	}
}
