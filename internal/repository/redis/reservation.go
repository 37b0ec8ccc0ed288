package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/internal/repository"
)

const (
	slotKeyPrefix = "reservation:slot:"
	idKeyPrefix   = "reservation:id:"
)

// reservationStore keeps slot holds in Redis. The slot key carries the
// reservation payload; a secondary id key points back at the slot so
// confirm/cancel can work from the reservation id alone. Key TTLs act as
// a garbage-collection backstop behind the application-level ExpiresAt.
type reservationStore struct {
	client *redis.Client
}

func NewReservationStore(client *redis.Client) repository.ReservationStore {
	return &reservationStore{client: client}
}

func (s *reservationStore) GetSlot(ctx context.Context, slotKey string) (*model.SlotReservation, error) {
	data, err := s.client.Get(ctx, slotKeyPrefix+slotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slot reservation: %w", err)
	}
	var reservation model.SlotReservation
	if err := json.Unmarshal(data, &reservation); err != nil {
		return nil, fmt.Errorf("failed to decode slot reservation: %w", err)
	}
	return &reservation, nil
}

func (s *reservationStore) CompareAndSwapSlot(ctx context.Context, slotKey string, prev, next *model.SlotReservation, ttl time.Duration) error {
	key := slotKeyPrefix + slotKey

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readReservation(ctx, tx, key)
		if err != nil {
			return err
		}
		if !sameReservation(current, prev) {
			return repository.ErrCASMismatch
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode reservation: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			pipe.Set(ctx, idKeyPrefix+next.ID.String(), slotKey, ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return repository.ErrCASMismatch
	}
	return err
}

func (s *reservationStore) UpdateSlot(ctx context.Context, reservation *model.SlotReservation, ttl time.Duration) error {
	payload, err := json.Marshal(reservation)
	if err != nil {
		return fmt.Errorf("failed to encode reservation: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, slotKeyPrefix+reservation.SlotKey(), payload, ttl)
		pipe.Set(ctx, idKeyPrefix+reservation.ID.String(), reservation.SlotKey(), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update slot reservation: %w", err)
	}
	return nil
}

func (s *reservationStore) GetByID(ctx context.Context, id uuid.UUID) (*model.SlotReservation, error) {
	slotKey, err := s.client.Get(ctx, idKeyPrefix+id.String()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reservation id: %w", err)
	}

	reservation, err := s.GetSlot(ctx, slotKey)
	if err != nil {
		return nil, err
	}
	// The slot may already belong to a newer hold.
	if reservation == nil || reservation.ID != id {
		return nil, nil
	}
	return reservation, nil
}

func (s *reservationStore) DeleteSlot(ctx context.Context, reservation *model.SlotReservation) error {
	key := slotKeyPrefix + reservation.SlotKey()

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readReservation(ctx, tx, key)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			// Only release the slot if this hold still owns it.
			if current != nil && current.ID == reservation.ID {
				pipe.Del(ctx, key)
			}
			pipe.Del(ctx, idKeyPrefix+reservation.ID.String())
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// A concurrent writer replaced the slot; the id key is all that is left.
		return s.client.Del(ctx, idKeyPrefix+reservation.ID.String()).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to delete slot reservation: %w", err)
	}
	return nil
}

func (s *reservationStore) ListActive(ctx context.Context) ([]*model.SlotReservation, error) {
	var reservations []*model.SlotReservation

	iter := s.client.Scan(ctx, 0, slotKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read slot reservation: %w", err)
		}
		var reservation model.SlotReservation
		if err := json.Unmarshal(data, &reservation); err != nil {
			continue
		}
		if reservation.Status == model.ReservationStatusActive {
			reservations = append(reservations, &reservation)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan slot reservations: %w", err)
	}
	return reservations, nil
}

func readReservation(ctx context.Context, tx *redis.Tx, key string) (*model.SlotReservation, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slot reservation: %w", err)
	}
	var reservation model.SlotReservation
	if err := json.Unmarshal(data, &reservation); err != nil {
		return nil, fmt.Errorf("failed to decode slot reservation: %w", err)
	}
	return &reservation, nil
}

func sameReservation(a, b *model.SlotReservation) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID && a.Status == b.Status
}
