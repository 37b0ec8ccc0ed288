package worker

import (
	"context"
	"time"

	"github.com/agendaclin/booking-api/pkg/logger"
)

// ReservationExpirer reaps overdue slot holds.
type ReservationExpirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// ReservationSweeper periodically removes expired holds so abandoned
// checkouts free their slots even when nobody reads them again.
type ReservationSweeper struct {
	expirer  ReservationExpirer
	interval time.Duration
	logger   *logger.Logger
}

func NewReservationSweeper(expirer ReservationExpirer, interval time.Duration, logger *logger.Logger) *ReservationSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ReservationSweeper{
		expirer:  expirer,
		interval: interval,
		logger:   logger,
	}
}

func (w *ReservationSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("reservation sweeper started", "interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reservation sweeper shutting down")
			return
		case <-ticker.C:
			removed, err := w.expirer.ExpireOverdue(ctx)
			if err != nil {
				w.logger.Error(err, "reservation sweep failed")
				continue
			}
			if removed > 0 {
				w.logger.Info("expired reservations removed", "count", removed)
			}
		}
	}
}
