package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adboardhq/moderation-backend/internal/ads"
	"github.com/adboardhq/moderation-backend/internal/scoring"
	"github.com/adboardhq/moderation-backend/pkg/config"
	"github.com/adboardhq/moderation-backend/pkg/db/models"
	"github.com/adboardhq/moderation-backend/pkg/enums"
	pkgerrors "github.com/adboardhq/moderation-backend/pkg/errors"
	"github.com/adboardhq/moderation-backend/pkg/logger"
	"github.com/adboardhq/moderation-backend/pkg/pagination"
)

type fakeQueryRepo struct {
	fakeWorkerRepo
	list func(ctx context.Context, query ListQuery) ([]models.ModerationResult, *pagination.Cursor, error)
}

func (f *fakeQueryRepo) List(ctx context.Context, query ListQuery) ([]models.ModerationResult, *pagination.Cursor, error) {
	if f.list != nil {
		return f.list(ctx, query)
	}
	return nil, nil, nil
}

type fakeResultCache struct {
	result      *ResultView
	prediction  *Prediction
	setResults  []ResultView
	setPredicts []Prediction
}

func (f *fakeResultCache) GetResult(ctx context.Context, taskID int64) (*ResultView, error) {
	return f.result, nil
}

func (f *fakeResultCache) SetResult(ctx context.Context, view ResultView) error {
	f.setResults = append(f.setResults, view)
	return nil
}

func (f *fakeResultCache) GetPrediction(ctx context.Context, itemID int64) (*Prediction, error) {
	return f.prediction, nil
}

func (f *fakeResultCache) SetPrediction(ctx context.Context, prediction Prediction) error {
	f.setPredicts = append(f.setPredicts, prediction)
	return nil
}

func newQueryService(t *testing.T, repo Repository, cache resultCache, snapshots adSnapshots) *Service {
	t.Helper()
	scorer := scoring.NewModel(config.ScoringConfig{Threshold: 0.5})
	svc, err := NewService(repo, cache, scorer, snapshots, logger.New(logger.Options{ServiceName: "service-test"}))
	require.NoError(t, err)
	return svc
}

func TestGetResultReadsThroughCache(t *testing.T) {
	cached := &ResultView{TaskID: 3, ItemID: 1, Status: enums.ModerationCompleted}
	svc := newQueryService(t, &fakeQueryRepo{}, &fakeResultCache{result: cached}, &fakeSnapshots{})

	view, err := svc.GetResult(context.Background(), 3)

	require.NoError(t, err)
	assert.Equal(t, cached, view)
}

func TestGetResultFallsBackToDatabaseAndCaches(t *testing.T) {
	repo := &fakeQueryRepo{}
	repo.getByID = func(ctx context.Context, id int64) (*models.ModerationResult, error) {
		return &models.ModerationResult{ID: id, ItemID: 1, Status: enums.ModerationPending, CreatedAt: time.Now().UTC()}, nil
	}
	cache := &fakeResultCache{}
	svc := newQueryService(t, repo, cache, &fakeSnapshots{})

	view, err := svc.GetResult(context.Background(), 3)

	require.NoError(t, err)
	assert.Equal(t, enums.ModerationPending, view.Status)
	require.Len(t, cache.setResults, 1)
	assert.Equal(t, int64(3), cache.setResults[0].TaskID)
}

func TestGetResultUnknownTask(t *testing.T) {
	repo := &fakeQueryRepo{}
	repo.getByID = func(ctx context.Context, id int64) (*models.ModerationResult, error) {
		return nil, ErrNotFound
	}
	svc := newQueryService(t, repo, &fakeResultCache{}, &fakeSnapshots{})

	_, err := svc.GetResult(context.Background(), 3)

	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestHistoryEncodesNextCursor(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeQueryRepo{
		list: func(ctx context.Context, query ListQuery) ([]models.ModerationResult, *pagination.Cursor, error) {
			rows := []models.ModerationResult{
				{ID: 2, ItemID: 1, Status: enums.ModerationCompleted, CreatedAt: now},
				{ID: 1, ItemID: 1, Status: enums.ModerationFailed, CreatedAt: now.Add(-time.Minute)},
			}
			return rows, &pagination.Cursor{CreatedAt: now.Add(-2 * time.Minute), ID: 0}, nil
		},
	}
	svc := newQueryService(t, repo, &fakeResultCache{}, &fakeSnapshots{})

	page, err := svc.History(context.Background(), 1, pagination.Params{Limit: 2})

	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(2), page.Items[0].TaskID)
	assert.NotEmpty(t, page.Cursor)

	cursor, err := pagination.ParseCursor(page.Cursor)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor.ID)
}

func TestHistoryRejectsBadCursor(t *testing.T) {
	svc := newQueryService(t, &fakeQueryRepo{}, &fakeResultCache{}, &fakeSnapshots{})

	_, err := svc.History(context.Background(), 1, pagination.Params{Cursor: "!!not-base64!!"})

	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestPredictUsesCachedVerdict(t *testing.T) {
	cache := &fakeResultCache{prediction: &Prediction{ItemID: 4, IsViolation: true, Probability: 0.8}}
	svc := newQueryService(t, &fakeQueryRepo{}, cache, &fakeSnapshots{})

	prediction, err := svc.Predict(context.Background(), 4)

	require.NoError(t, err)
	assert.True(t, prediction.IsViolation)
	assert.Empty(t, cache.setPredicts)
}

func TestPredictScoresAndCachesOnMiss(t *testing.T) {
	snapshots := &fakeSnapshots{snapshot: &ads.Snapshot{
		ItemID:           4,
		Description:      "a long and perfectly reasonable description",
		ImagesQty:        2,
		IsVerifiedSeller: true,
	}}
	cache := &fakeResultCache{}
	svc := newQueryService(t, &fakeQueryRepo{}, cache, snapshots)

	prediction, err := svc.Predict(context.Background(), 4)

	require.NoError(t, err)
	assert.False(t, prediction.IsViolation)
	require.Len(t, cache.setPredicts, 1)
	assert.Equal(t, int64(4), cache.setPredicts[0].ItemID)
}

func TestPredictUnknownItem(t *testing.T) {
	svc := newQueryService(t, &fakeQueryRepo{}, &fakeResultCache{}, &fakeSnapshots{})

	_, err := svc.Predict(context.Background(), 4)

	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestPredictPayloadSkipsStorage(t *testing.T) {
	cache := &fakeResultCache{}
	svc := newQueryService(t, &fakeQueryRepo{}, cache, &fakeSnapshots{})

	prediction, err := svc.PredictPayload(context.Background(), ads.Snapshot{
		ItemID:      99,
		Description: "short",
		ImagesQty:   0,
	})

	require.NoError(t, err)
	assert.True(t, prediction.IsViolation)
	assert.Empty(t, cache.setPredicts)
}
