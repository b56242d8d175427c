package moderation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adboardhq/moderation-backend/internal/ads"
)

// TaskMessage is the queue payload for one moderation task. The event_id is
// minted per publish, so a republished task carries a fresh identity while
// moderation_result_id still pins it to the same pending row.
type TaskMessage struct {
	EventID            string       `json:"event_id"`
	ItemID             int64        `json:"item_id"`
	ModerationResultID int64        `json:"moderation_result_id"`
	AdPayload          ads.Snapshot `json:"ad_payload"`
}

// NewTaskMessage mints a task message with a fresh event identity.
func NewTaskMessage(resultID int64, payload ads.Snapshot) TaskMessage {
	return TaskMessage{
		EventID:            uuid.NewString(),
		ItemID:             payload.ItemID,
		ModerationResultID: resultID,
		AdPayload:          payload,
	}
}

// Validate checks the structural invariants a consumer relies on.
func (m TaskMessage) Validate() error {
	if _, err := uuid.Parse(m.EventID); err != nil {
		return fmt.Errorf("invalid event id %q: %w", m.EventID, err)
	}
	if m.ItemID <= 0 {
		return fmt.Errorf("invalid item id %d", m.ItemID)
	}
	if m.ModerationResultID <= 0 {
		return fmt.Errorf("invalid moderation result id %d", m.ModerationResultID)
	}
	if m.AdPayload.ItemID != m.ItemID {
		return fmt.Errorf("payload item id %d does not match task item id %d", m.AdPayload.ItemID, m.ItemID)
	}
	return nil
}

// Encode serializes the message for publishing.
func (m TaskMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeTaskMessage parses and validates a queue payload.
func DecodeTaskMessage(data []byte) (TaskMessage, error) {
	var msg TaskMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return TaskMessage{}, fmt.Errorf("decode task message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return TaskMessage{}, err
	}
	return msg, nil
}

// DeadLetterMessage is the enriched payload sent to the dead-letter channel.
// RawPayload carries the original bytes when the task could not be decoded.
type DeadLetterMessage struct {
	TaskMessage
	FailureReason string          `json:"failure_reason"`
	AttemptCount  int64           `json:"attempt_count"`
	FailedAt      time.Time       `json:"failed_at"`
	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`
}

// Encode serializes the dead-letter payload for publishing.
func (m DeadLetterMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}
