package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/brototype/portal-backend/internal/config"
	"github.com/brototype/portal-backend/internal/logger"
	"github.com/brototype/portal-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type passcodeConsumer interface {
	Consume(ctx context.Context, code string, userID uuid.UUID) error
}

// PasscodeReconcileWorker consumes passcode_consume_queue and retries
// marking passcodes used for accounts created while the first attempt
// failed.
type PasscodeReconcileWorker struct {
	passcodes   passcodeConsumer
	rdb         *redis.Client
	log         zerolog.Logger
	maxAttempts int
	retryDelay  time.Duration
}

// NewPasscodeReconcileWorker creates a new PasscodeReconcileWorker.
func NewPasscodeReconcileWorker(passcodes passcodeConsumer, rdb *redis.Client, maxAttempts int, log zerolog.Logger) *PasscodeReconcileWorker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &PasscodeReconcileWorker{
		passcodes:   passcodes,
		rdb:         rdb,
		log:         log.With().Str("component", "passcode_reconcile_worker").Logger(),
		maxAttempts: maxAttempts,
		retryDelay:  5 * time.Second,
	}
}

type consumePayload struct {
	Code     string    `json:"code"`
	UserID   uuid.UUID `json:"user_id"`
	Attempts int       `json:"attempts"`
}

// Enqueue schedules a consume retry. Its signature matches
// service.ConsumeFailureHook.
func (w *PasscodeReconcileWorker) Enqueue(ctx context.Context, code string, userID uuid.UUID, cause error) {
	data, err := json.Marshal(consumePayload{Code: code, UserID: userID, Attempts: 1})
	if err != nil {
		return
	}
	if err := w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.PasscodeConsumeQueue, data).Err(); err != nil {
		w.log.Error().Err(err).
			AnErr("cause", cause).
			Str("user_id", userID.String()).
			Str("passcode", logger.MaskSecret(code)).
			Msg("Failed to enqueue passcode consume retry")
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *PasscodeReconcileWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *PasscodeReconcileWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PasscodeConsumeQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var payload consumePayload
	if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	w.reconcile(ctx, &payload)
}

func (w *PasscodeReconcileWorker) reconcile(ctx context.Context, p *consumePayload) {
	log := w.log.With().
		Str("user_id", p.UserID.String()).
		Str("passcode", logger.MaskSecret(p.Code)).
		Int("attempt", p.Attempts).
		Logger()

	err := w.passcodes.Consume(ctx, p.Code, p.UserID)
	switch {
	case err == nil:
		log.Info().Msg("Passcode consumed on retry")
		return
	case errors.Is(err, repository.ErrPasscodeUsed):
		// Someone else holds the code now; nothing left to reconcile.
		log.Warn().Msg("Passcode already used, dropping retry")
		return
	}

	if p.Attempts >= w.maxAttempts {
		log.Error().Err(err).Msg("Passcode consume retries exhausted")
		return
	}

	log.Error().Err(err).Msg("Consume error, retrying")
	p.Attempts++
	if err := w.requeue(ctx, p); err != nil {
		log.Error().Err(err).Msg("Failed to requeue passcode consume retry")
		return
	}

	select {
	case <-time.After(w.retryDelay):
	case <-ctx.Done():
	}
}

// requeue pushes p back on the queue. It survives worker shutdown so a
// retry in progress is not lost.
func (w *PasscodeReconcileWorker) requeue(ctx context.Context, p *consumePayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.PasscodeConsumeQueue, data).Err()
}
