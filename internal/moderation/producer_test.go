package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adboardhq/moderation-backend/internal/ads"
	"github.com/adboardhq/moderation-backend/pkg/db/models"
	"github.com/adboardhq/moderation-backend/pkg/enums"
	pkgerrors "github.com/adboardhq/moderation-backend/pkg/errors"
	"github.com/adboardhq/moderation-backend/pkg/logger"
)

type fakeProducerRepo struct {
	fakeWorkerRepo
	reserve func(ctx context.Context, itemID int64) (*models.ModerationResult, error)
	latest  func(ctx context.Context, itemID int64) (*models.ModerationResult, error)
}

func (f *fakeProducerRepo) ReservePending(ctx context.Context, itemID int64) (*models.ModerationResult, error) {
	return f.reserve(ctx, itemID)
}

func (f *fakeProducerRepo) LatestByItem(ctx context.Context, itemID int64) (*models.ModerationResult, error) {
	if f.latest != nil {
		return f.latest(ctx, itemID)
	}
	return nil, ErrNotFound
}

type fakeSnapshots struct {
	snapshot *ads.Snapshot
	err      error
}

func (f *fakeSnapshots) FindSnapshot(ctx context.Context, itemID int64) (*ads.Snapshot, error) {
	return f.snapshot, f.err
}

type fakeTaskPublisher struct {
	published []TaskMessage
	err       error
}

func (f *fakeTaskPublisher) PublishTask(ctx context.Context, msg TaskMessage) error {
	f.published = append(f.published, msg)
	return f.err
}

func newProducerFixture(t *testing.T, repo Repository, snapshots adSnapshots, pub taskPublisher) *Producer {
	t.Helper()
	producer, err := NewProducer(repo, snapshots, pub, logger.New(logger.Options{ServiceName: "producer-test"}))
	require.NoError(t, err)
	return producer
}

func TestProducerSubmitReservesAndPublishes(t *testing.T) {
	repo := &fakeProducerRepo{
		reserve: func(ctx context.Context, itemID int64) (*models.ModerationResult, error) {
			return &models.ModerationResult{ID: 42, ItemID: itemID, Status: enums.ModerationPending}, nil
		},
	}
	snapshots := &fakeSnapshots{snapshot: &ads.Snapshot{ItemID: 5, SellerID: 2, Name: "listing", Description: "ok"}}
	pub := &fakeTaskPublisher{}
	producer := newProducerFixture(t, repo, snapshots, pub)

	view, err := producer.Submit(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, int64(42), view.TaskID)
	assert.Equal(t, enums.ModerationPending, view.Status)
	require.Len(t, pub.published, 1)
	assert.Equal(t, int64(42), pub.published[0].ModerationResultID)
	assert.Equal(t, int64(5), pub.published[0].ItemID)
	assert.NotEmpty(t, pub.published[0].EventID)
}

func TestProducerSubmitRejectsUnknownItem(t *testing.T) {
	producer := newProducerFixture(t, &fakeProducerRepo{}, &fakeSnapshots{}, &fakeTaskPublisher{})

	_, err := producer.Submit(context.Background(), 5)

	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestProducerSubmitTranslatesPendingConflict(t *testing.T) {
	repo := &fakeProducerRepo{
		reserve: func(ctx context.Context, itemID int64) (*models.ModerationResult, error) {
			return nil, ErrAlreadyPending
		},
		latest: func(ctx context.Context, itemID int64) (*models.ModerationResult, error) {
			return &models.ModerationResult{ID: 17, ItemID: itemID, Status: enums.ModerationPending}, nil
		},
	}
	snapshots := &fakeSnapshots{snapshot: &ads.Snapshot{ItemID: 5, Description: "ok"}}
	pub := &fakeTaskPublisher{}
	producer := newProducerFixture(t, repo, snapshots, pub)

	_, err := producer.Submit(context.Background(), 5)

	require.True(t, pkgerrors.Is(err, pkgerrors.CodeAlreadyPending))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(17), details["task_id"])
	assert.Empty(t, pub.published)
}

func TestProducerSubmitSurfacesPublishFailure(t *testing.T) {
	repo := &fakeProducerRepo{
		reserve: func(ctx context.Context, itemID int64) (*models.ModerationResult, error) {
			return &models.ModerationResult{ID: 42, ItemID: itemID, Status: enums.ModerationPending}, nil
		},
	}
	snapshots := &fakeSnapshots{snapshot: &ads.Snapshot{ItemID: 5, Description: "ok"}}
	pub := &fakeTaskPublisher{err: errors.New("broker unavailable")}
	producer := newProducerFixture(t, repo, snapshots, pub)

	_, err := producer.Submit(context.Background(), 5)

	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
	// The reservation stays for the reconciler to republish.
	require.Len(t, pub.published, 1)
}

func TestProducerSubmitValidatesItemID(t *testing.T) {
	producer := newProducerFixture(t, &fakeProducerRepo{}, &fakeSnapshots{}, &fakeTaskPublisher{})

	_, err := producer.Submit(context.Background(), 0)

	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
