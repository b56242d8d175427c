package moderation

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/sethvargo/go-retry"

	"github.com/adboardhq/moderation-backend/internal/ads"
	pkgerrors "github.com/adboardhq/moderation-backend/pkg/errors"
	"github.com/adboardhq/moderation-backend/pkg/logger"
)

const (
	publishTimeout     = 15 * time.Second
	publishMaxRetries  = 3
	publishBackoffBase = 250 * time.Millisecond
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type gcpPublisher struct {
	inner *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.inner == nil {
		return nil
	}
	return p.inner.Publish(ctx, msg)
}

// TaskPublisher publishes task messages with bounded fibonacci retry. A
// publish that still fails after retries is reported to the caller; the
// pending row it belongs to is picked up later by reconciliation.
type TaskPublisher struct {
	pub  publisher
	logg *logger.Logger
}

// NewTaskPublisher wraps a Pub/Sub publisher handle.
func NewTaskPublisher(pub *gcppubsub.Publisher, logg *logger.Logger) (*TaskPublisher, error) {
	if pub == nil {
		return nil, errors.New("pubsub publisher is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &TaskPublisher{pub: &gcpPublisher{inner: pub}, logg: logg}, nil
}

func newTaskPublisherForTest(pub publisher, logg *logger.Logger) *TaskPublisher {
	return &TaskPublisher{pub: pub, logg: logg}
}

// PublishTask encodes and publishes one task message.
func (t *TaskPublisher) PublishTask(ctx context.Context, msg TaskMessage) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(publishMaxRetries, retry.NewFibonacci(publishBackoffBase))
	attempt := 0
	return retry.Do(publishCtx, backoff, func(ctx context.Context) error {
		attempt++
		result := t.pub.Publish(ctx, &gcppubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"event_id": msg.EventID,
			},
		})
		if result == nil {
			return errors.New("publisher returned nil result")
		}
		if _, err := result.Get(ctx); err != nil {
			logCtx := t.logg.WithEventID(ctx, msg.EventID)
			logCtx = t.logg.WithField(logCtx, "attempt", attempt)
			t.logg.Warn(logCtx, "task publish attempt failed")
			return retry.RetryableError(err)
		}
		return nil
	})
}

type taskPublisher interface {
	PublishTask(ctx context.Context, msg TaskMessage) error
}

type adSnapshots interface {
	FindSnapshot(ctx context.Context, itemID int64) (*ads.Snapshot, error)
}

// Producer owns the submit path: reserve the item's pending slot, then
// enqueue the task for asynchronous scoring.
type Producer struct {
	repo      Repository
	ads       adSnapshots
	publisher taskPublisher
	logg      *logger.Logger
}

// NewProducer builds the task producer.
func NewProducer(repo Repository, snapshots adSnapshots, publisher taskPublisher, logg *logger.Logger) (*Producer, error) {
	if repo == nil {
		return nil, errors.New("moderation repository is required")
	}
	if snapshots == nil {
		return nil, errors.New("advertisement snapshots are required")
	}
	if publisher == nil {
		return nil, errors.New("task publisher is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Producer{repo: repo, ads: snapshots, publisher: publisher, logg: logg}, nil
}

// Submit reserves the pending slot for the item and publishes a scoring task.
// The row is created before the publish: if the publish fails the caller gets
// a dependency error and the pending row is republished by reconciliation.
func (p *Producer) Submit(ctx context.Context, itemID int64) (*ResultView, error) {
	if itemID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id must be positive")
	}

	snapshot, err := p.ads.FindSnapshot(ctx, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load advertisement")
	}
	if snapshot == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "advertisement not found")
	}

	row, err := p.repo.ReservePending(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrAlreadyPending) {
			return nil, p.alreadyPendingError(ctx, itemID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve moderation task")
	}

	msg := NewTaskMessage(row.ID, *snapshot)
	logCtx := p.logg.WithItemID(ctx, itemID)
	logCtx = p.logg.WithEventID(logCtx, msg.EventID)
	logCtx = p.logg.WithTaskID(logCtx, row.ID)

	if err := p.publisher.PublishTask(ctx, msg); err != nil {
		// The pending row stays; reconciliation republishes it with a
		// fresh event id once it turns stale.
		p.logg.Error(logCtx, "task publish failed, leaving row for reconciliation", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue moderation task")
	}

	p.logg.Info(logCtx, "moderation task enqueued")
	view := NewResultView(*row)
	return &view, nil
}

func (p *Producer) alreadyPendingError(ctx context.Context, itemID int64) error {
	conflict := pkgerrors.New(pkgerrors.CodeAlreadyPending, "item already has a pending moderation task")
	existing, err := p.repo.LatestByItem(ctx, itemID)
	if err == nil && existing != nil {
		return conflict.WithDetails(map[string]any{"task_id": existing.ID})
	}
	return conflict
}
