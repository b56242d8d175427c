package moderation

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/adboardhq/moderation-backend/pkg/logger"
)

// DeadLetterPublisher ships enriched failure payloads to the dead-letter
// topic. Callers only ack the poisoned delivery after a send succeeds, so the
// payload is never lost even when this publish has to be retried.
type DeadLetterPublisher struct {
	pub  publisher
	logg *logger.Logger
	now  func() time.Time
}

// NewDeadLetterPublisher wraps the dead-letter topic handle.
func NewDeadLetterPublisher(pub *gcppubsub.Publisher, logg *logger.Logger) (*DeadLetterPublisher, error) {
	if pub == nil {
		return nil, errors.New("dead letter publisher is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &DeadLetterPublisher{pub: &gcpPublisher{inner: pub}, logg: logg, now: time.Now}, nil
}

// Send publishes one dead-letter payload.
func (d *DeadLetterPublisher) Send(ctx context.Context, msg DeadLetterMessage) error {
	if msg.FailedAt.IsZero() {
		msg.FailedAt = d.now().UTC()
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	attrs := map[string]string{"failure_reason": msg.FailureReason}
	if msg.EventID != "" {
		attrs["event_id"] = msg.EventID
	}
	result := d.pub.Publish(publishCtx, &gcppubsub.Message{Data: data, Attributes: attrs})
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return err
	}

	logCtx := d.logg.WithEventID(ctx, msg.EventID)
	logCtx = d.logg.WithField(logCtx, "failure_reason", msg.FailureReason)
	d.logg.Warn(logCtx, "task shipped to dead letter topic")
	return nil
}
