package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/adboardhq/moderation-backend/internal/scoring"
	"github.com/adboardhq/moderation-backend/pkg/config"
	"github.com/adboardhq/moderation-backend/pkg/db/models"
	"github.com/adboardhq/moderation-backend/pkg/enums"
	"github.com/adboardhq/moderation-backend/pkg/logger"
	"github.com/adboardhq/moderation-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type attemptCounter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type counterKeys interface {
	CounterKey(scope, id string) string
}

type deadLetterSender interface {
	Send(ctx context.Context, msg DeadLetterMessage) error
}

type resultCacheWriter interface {
	SetResult(ctx context.Context, view ResultView) error
}

const attemptCounterScope = "task_attempt"

// errStaleResult marks a commit whose target row left the pending state
// through another path, typically a reconciler fail.
var errStaleResult = errors.New("moderation result no longer pending")

// Worker consumes task messages and commits verdicts exactly once. Each
// commit pairs the ledger insert with the result transition in one
// transaction, so a redelivered event either sees the ledger row or the
// terminal status and acks without side effects.
type Worker struct {
	repo         Repository
	tx           txRunner
	scorer       scoring.Scorer
	subscription *gcppubsub.Subscriber
	attempts     attemptCounter
	keys         counterKeys
	dlq          deadLetterSender
	cache        resultCacheWriter
	pipeline     *metrics.PipelineMetrics
	cfg          config.ModerationConfig
	logg         *logger.Logger
	now          func() time.Time
}

// WorkerParams collects the worker's dependencies.
type WorkerParams struct {
	Repo         Repository
	Tx           txRunner
	Scorer       scoring.Scorer
	Subscription *gcppubsub.Subscriber
	Attempts     attemptCounter
	Keys         counterKeys
	DLQ          deadLetterSender
	Cache        resultCacheWriter
	Pipeline     *metrics.PipelineMetrics
	Config       config.ModerationConfig
	Logger       *logger.Logger
}

// NewWorker builds the moderation consumer.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Repo == nil {
		return nil, errors.New("moderation repository is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Scorer == nil {
		return nil, errors.New("scorer is required")
	}
	if params.Attempts == nil {
		return nil, errors.New("attempt counter is required")
	}
	if params.Keys == nil {
		return nil, errors.New("counter key builder is required")
	}
	if params.DLQ == nil {
		return nil, errors.New("dead letter sender is required")
	}
	if params.Cache == nil {
		return nil, errors.New("result cache is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Config.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", params.Config.MaxAttempts)
	}
	return &Worker{
		repo:         params.Repo,
		tx:           params.Tx,
		scorer:       params.Scorer,
		subscription: params.Subscription,
		attempts:     params.Attempts,
		keys:         params.Keys,
		dlq:          params.DLQ,
		cache:        params.Cache,
		pipeline:     params.Pipeline,
		cfg:          params.Config,
		logg:         params.Logger,
		now:          time.Now,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (w *Worker) Run(ctx context.Context) error {
	if w.subscription == nil {
		return errors.New("worker subscription is required")
	}
	return w.subscription.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		result := w.process(ctx, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (w *Worker) process(ctx context.Context, data []byte) processResult {
	msg, err := DecodeTaskMessage(data)
	if err != nil {
		return w.deadLetterMalformed(ctx, data, err)
	}

	logCtx := w.logg.WithFields(ctx, map[string]any{
		"event_id": msg.EventID,
		"item_id":  msg.ItemID,
		"task_id":  msg.ModerationResultID,
	})

	seen, err := w.repo.SeenEvent(logCtx, msg.EventID)
	if err != nil {
		w.logg.Error(logCtx, "ledger lookup failed", err)
		return w.redeliver()
	}
	if seen {
		w.logg.Info(logCtx, "event already committed, dropping redelivery")
		w.countTask(metrics.OutcomeDuplicate)
		return processResult{ack: true}
	}

	row, err := w.repo.GetByID(logCtx, msg.ModerationResultID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The advertisement was closed mid-flight and the cascade
			// removed the row. Nothing left to moderate.
			w.logg.Info(logCtx, "result row gone, item closed mid-flight")
			w.countTask(metrics.OutcomeOrphaned)
			return processResult{ack: true}
		}
		w.logg.Error(logCtx, "result lookup failed", err)
		return w.redeliver()
	}
	if row.Status.IsTerminal() {
		w.logg.Info(logCtx, "result already terminal, dropping redelivery")
		w.countTask(metrics.OutcomeDuplicate)
		return processResult{ack: true}
	}

	attempt, err := w.attempts.IncrWithTTL(logCtx, w.keys.CounterKey(attemptCounterScope, msg.EventID), w.cfg.AttemptTTL)
	if err != nil {
		// Counting is advisory. Losing it briefly risks extra retries,
		// not duplicate commits.
		w.logg.Error(logCtx, "attempt counter unavailable", err)
		attempt = 1
	}
	if attempt > int64(w.cfg.MaxAttempts) {
		return w.deadLetterExhausted(logCtx, msg, row.CreatedAt, attempt)
	}

	started := w.now()
	verdict, scoreErr := w.scorer.Score(logCtx, msg.AdPayload)
	if w.pipeline != nil {
		w.pipeline.ObserveScoring(w.now().Sub(started))
	}
	if scoreErr != nil {
		if scoring.IsTransient(scoreErr) {
			w.logg.Warn(w.logg.WithField(logCtx, "error", scoreErr.Error()), "transient scoring failure, redelivering")
			return w.redeliver()
		}
		return w.commitFailure(logCtx, msg, row.CreatedAt, scoreErr.Error())
	}

	return w.commitVerdict(logCtx, msg, row.CreatedAt, verdict)
}

// commitVerdict writes the ledger row and the completed transition in one
// transaction, then refreshes the cache best effort.
func (w *Worker) commitVerdict(ctx context.Context, msg TaskMessage, createdAt time.Time, verdict scoring.Result) processResult {
	processedAt := w.now().UTC()
	committed, result := w.commit(ctx, msg, metrics.OutcomeCompleted, func(tx *gorm.DB) (bool, error) {
		return w.repo.CompleteTx(tx, msg.ModerationResultID, verdict.IsViolation, verdict.Probability, processedAt)
	})
	if !committed {
		return result
	}

	isViolation := verdict.IsViolation
	probability := verdict.Probability
	w.cacheResult(ctx, ResultView{
		TaskID:      msg.ModerationResultID,
		ItemID:      msg.ItemID,
		Status:      enums.ModerationCompleted,
		IsViolation: &isViolation,
		Probability: &probability,
		CreatedAt:   createdAt,
		ProcessedAt: &processedAt,
	})
	w.logg.Info(ctx, "moderation task completed")
	return result
}

func (w *Worker) commitFailure(ctx context.Context, msg TaskMessage, createdAt time.Time, reason string) processResult {
	processedAt := w.now().UTC()
	committed, result := w.commit(ctx, msg, metrics.OutcomeFailed, func(tx *gorm.DB) (bool, error) {
		return w.repo.FailTx(tx, msg.ModerationResultID, reason, processedAt)
	})
	if !committed {
		return result
	}

	w.cacheResult(ctx, ResultView{
		TaskID:       msg.ModerationResultID,
		ItemID:       msg.ItemID,
		Status:       enums.ModerationFailed,
		ErrorMessage: &reason,
		CreatedAt:    createdAt,
		ProcessedAt:  &processedAt,
	})
	w.logg.Warn(w.logg.WithField(ctx, "reason", reason), "moderation task failed terminally")
	return result
}

// commit runs the exactly-once transaction: ledger insert plus the status
// transition. Ledger conflicts and cascade deletes roll the transaction back
// and ack as benign duplicates or orphans.
func (w *Worker) commit(ctx context.Context, msg TaskMessage, outcome string, transition func(tx *gorm.DB) (bool, error)) (bool, processResult) {
	err := w.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := w.repo.InsertProcessedEventTx(tx, models.ProcessedEvent{
			EventID:            msg.EventID,
			ItemID:             msg.ItemID,
			ModerationResultID: msg.ModerationResultID,
		}); err != nil {
			return err
		}
		updated, err := transition(tx)
		if err != nil {
			return err
		}
		if !updated {
			return errStaleResult
		}
		return nil
	})

	switch {
	case err == nil:
		w.countTask(outcome)
		return true, processResult{ack: true}
	case errors.Is(err, ErrDuplicateEvent):
		w.logg.Info(ctx, "concurrent delivery already committed")
		w.countTask(metrics.OutcomeDuplicate)
		return false, processResult{ack: true}
	case errors.Is(err, ErrResultGone):
		w.logg.Info(ctx, "result row gone during commit, item closed mid-flight")
		w.countTask(metrics.OutcomeOrphaned)
		return false, processResult{ack: true}
	case errors.Is(err, errStaleResult):
		w.logg.Info(ctx, "result left pending state through another path")
		w.countTask(metrics.OutcomeDuplicate)
		return false, processResult{ack: true}
	default:
		w.logg.Error(ctx, "commit transaction failed", err)
		return false, w.redeliver()
	}
}

func (w *Worker) deadLetterMalformed(ctx context.Context, data []byte, cause error) processResult {
	w.logg.Error(ctx, "undecodable task message", cause)
	dead := DeadLetterMessage{
		FailureReason: fmt.Sprintf("malformed payload: %v", cause),
		FailedAt:      w.now().UTC(),
		RawPayload:    append([]byte(nil), data...),
	}
	if err := w.dlq.Send(ctx, dead); err != nil {
		w.logg.Error(ctx, "dead letter publish failed", err)
		return w.redeliver()
	}
	w.countTask(metrics.OutcomeDeadLetter)
	if w.pipeline != nil {
		w.pipeline.IncDeadLetter()
	}
	return processResult{ack: true}
}

// deadLetterExhausted ships the task to the dead-letter channel and fails the
// row so the item's pending slot frees up. The DLQ publish happens first: if
// it fails the message is redelivered and no state changes.
func (w *Worker) deadLetterExhausted(ctx context.Context, msg TaskMessage, createdAt time.Time, attempt int64) processResult {
	reason := fmt.Sprintf("retry attempts exhausted after %d deliveries", attempt)
	dead := DeadLetterMessage{
		TaskMessage:   msg,
		FailureReason: reason,
		AttemptCount:  attempt,
		FailedAt:      w.now().UTC(),
	}
	if err := w.dlq.Send(ctx, dead); err != nil {
		w.logg.Error(ctx, "dead letter publish failed", err)
		return w.redeliver()
	}
	if w.pipeline != nil {
		w.pipeline.IncDeadLetter()
	}
	return w.commitFailure(ctx, msg, createdAt, reason)
}

func (w *Worker) cacheResult(ctx context.Context, view ResultView) {
	if err := w.cache.SetResult(ctx, view); err != nil {
		w.logg.Error(ctx, "result cache refresh failed", err)
	}
}

func (w *Worker) redeliver() processResult {
	w.countTask(metrics.OutcomeRedelivery)
	return processResult{nack: true}
}

func (w *Worker) countTask(outcome string) {
	if w.pipeline != nil {
		w.pipeline.IncTask(outcome)
	}
}
