package moderation

import (
	"context"
	"errors"

	"github.com/adboardhq/moderation-backend/internal/ads"
	"github.com/adboardhq/moderation-backend/internal/scoring"
	pkgerrors "github.com/adboardhq/moderation-backend/pkg/errors"
	"github.com/adboardhq/moderation-backend/pkg/logger"
	"github.com/adboardhq/moderation-backend/pkg/pagination"
)

type resultCache interface {
	GetResult(ctx context.Context, taskID int64) (*ResultView, error)
	SetResult(ctx context.Context, view ResultView) error
	GetPrediction(ctx context.Context, itemID int64) (*Prediction, error)
	SetPrediction(ctx context.Context, prediction Prediction) error
}

// HistoryPage is one page of an item's moderation history.
type HistoryPage struct {
	Items  []ResultView
	Cursor string
}

// Service answers moderation reads: task lookups, per-item history and
// synchronous predictions. Writes go through Producer and Worker.
type Service struct {
	repo   Repository
	cache  resultCache
	scorer scoring.Scorer
	ads    adSnapshots
	logg   *logger.Logger
}

// NewService builds the moderation read service.
func NewService(repo Repository, cache resultCache, scorer scoring.Scorer, snapshots adSnapshots, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("moderation repository is required")
	}
	if cache == nil {
		return nil, errors.New("moderation cache is required")
	}
	if scorer == nil {
		return nil, errors.New("scorer is required")
	}
	if snapshots == nil {
		return nil, errors.New("advertisement snapshots are required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{repo: repo, cache: cache, scorer: scorer, ads: snapshots, logg: logg}, nil
}

// GetResult returns the result view for a task, reading through the cache.
func (s *Service) GetResult(ctx context.Context, taskID int64) (*ResultView, error) {
	if taskID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "task id must be positive")
	}

	cached, err := s.cache.GetResult(ctx, taskID)
	if err != nil {
		s.logg.Error(s.logg.WithTaskID(ctx, taskID), "result cache read failed", err)
	}
	if cached != nil {
		return cached, nil
	}

	row, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "moderation result not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load moderation result")
	}

	view := NewResultView(*row)
	if err := s.cache.SetResult(ctx, view); err != nil {
		s.logg.Error(s.logg.WithTaskID(ctx, taskID), "result cache write failed", err)
	}
	return &view, nil
}

// History lists an item's moderation results, newest first.
func (s *Service) History(ctx context.Context, itemID int64, params pagination.Params) (*HistoryPage, error) {
	if itemID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id must be positive")
	}

	query := ListQuery{ItemID: itemID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list moderation results")
	}

	page := &HistoryPage{Items: make([]ResultView, 0, len(rows))}
	for _, row := range rows {
		page.Items = append(page.Items, NewResultView(row))
	}
	if next != nil {
		page.Cursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

// Predict scores a stored advertisement synchronously. Verdicts are cached
// per item until the advertisement changes or closes.
func (s *Service) Predict(ctx context.Context, itemID int64) (*Prediction, error) {
	if itemID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id must be positive")
	}

	cached, err := s.cache.GetPrediction(ctx, itemID)
	if err != nil {
		s.logg.Error(s.logg.WithItemID(ctx, itemID), "prediction cache read failed", err)
	}
	if cached != nil {
		return cached, nil
	}

	snapshot, err := s.ads.FindSnapshot(ctx, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load advertisement")
	}
	if snapshot == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "advertisement not found")
	}

	prediction, err := s.score(ctx, *snapshot)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetPrediction(ctx, *prediction); err != nil {
		s.logg.Error(s.logg.WithItemID(ctx, itemID), "prediction cache write failed", err)
	}
	return prediction, nil
}

// PredictPayload scores a caller-supplied payload without touching storage or
// the cache. Used for ad-hoc checks before an advertisement exists.
func (s *Service) PredictPayload(ctx context.Context, payload ads.Snapshot) (*Prediction, error) {
	return s.score(ctx, payload)
}

func (s *Service) score(ctx context.Context, payload ads.Snapshot) (*Prediction, error) {
	verdict, err := s.scorer.Score(ctx, payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "score advertisement")
	}
	return &Prediction{
		ItemID:      payload.ItemID,
		IsViolation: verdict.IsViolation,
		Probability: verdict.Probability,
	}, nil
}
