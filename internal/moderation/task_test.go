package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adboardhq/moderation-backend/internal/ads"
	"github.com/adboardhq/moderation-backend/pkg/logger"
)

func TestTaskMessageRoundTrip(t *testing.T) {
	msg := NewTaskMessage(7, ads.Snapshot{ItemID: 5, SellerID: 2, Name: "n", Description: "d"})
	require.NoError(t, msg.Validate())

	data, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := DecodeTaskMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestDecodeTaskMessageRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":         "{broken",
		"missing event id": `{"item_id":1,"moderation_result_id":2,"ad_payload":{"item_id":1}}`,
		"bad item id":      `{"event_id":"` + uuid.NewString() + `","item_id":0,"moderation_result_id":2,"ad_payload":{"item_id":0}}`,
		"payload mismatch": `{"event_id":"` + uuid.NewString() + `","item_id":1,"moderation_result_id":2,"ad_payload":{"item_id":9}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeTaskMessage([]byte(payload))
			assert.Error(t, err)
		})
	}
}

type stubPublishResult struct {
	id  string
	err error
}

func (s *stubPublishResult) Get(ctx context.Context) (string, error) { return s.id, s.err }

type stubPublisher struct {
	results []*stubPublishResult
	calls   int
	msgs    []*gcppubsub.Message
}

func (s *stubPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	s.msgs = append(s.msgs, msg)
	result := s.results[s.calls]
	if s.calls < len(s.results)-1 {
		s.calls++
	}
	return result
}

func TestTaskPublisherRetriesTransientFailures(t *testing.T) {
	pub := &stubPublisher{results: []*stubPublishResult{
		{err: errors.New("deadline exceeded")},
		{id: "server-id"},
	}}
	publisher := newTaskPublisherForTest(pub, logger.New(logger.Options{ServiceName: "publisher-test"}))
	msg := NewTaskMessage(7, ads.Snapshot{ItemID: 5, Description: "d"})

	err := publisher.PublishTask(context.Background(), msg)

	require.NoError(t, err)
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, msg.EventID, pub.msgs[0].Attributes["event_id"])
}

func TestTaskPublisherGivesUpAfterRetries(t *testing.T) {
	pub := &stubPublisher{results: []*stubPublishResult{
		{err: errors.New("unavailable")},
	}}
	publisher := newTaskPublisherForTest(pub, logger.New(logger.Options{ServiceName: "publisher-test"}))

	err := publisher.PublishTask(context.Background(), NewTaskMessage(7, ads.Snapshot{ItemID: 5, Description: "d"}))

	require.Error(t, err)
	assert.Len(t, pub.msgs, 1+publishMaxRetries)
}

func TestDeadLetterPublisherStampsFailedAt(t *testing.T) {
	pub := &stubPublisher{results: []*stubPublishResult{{id: "server-id"}}}
	logg := logger.New(logger.Options{ServiceName: "dlq-test"})
	dlq := &DeadLetterPublisher{pub: pub, logg: logg, now: timeNowFixture}

	err := dlq.Send(context.Background(), DeadLetterMessage{
		TaskMessage:   NewTaskMessage(7, ads.Snapshot{ItemID: 5, Description: "d"}),
		FailureReason: "retry attempts exhausted after 6 deliveries",
		AttemptCount:  6,
	})

	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)
	decoded, err := decodeDeadLetter(pub.msgs[0].Data)
	require.NoError(t, err)
	assert.False(t, decoded.FailedAt.IsZero())
	assert.Equal(t, "retry attempts exhausted after 6 deliveries", pub.msgs[0].Attributes["failure_reason"])
}

func timeNowFixture() time.Time {
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func decodeDeadLetter(data []byte) (DeadLetterMessage, error) {
	var msg DeadLetterMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}
