package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/multierr"

	"github.com/adboardhq/moderation-backend/pkg/db/models"
	"github.com/adboardhq/moderation-backend/pkg/enums"
	"github.com/adboardhq/moderation-backend/pkg/logger"
	redispkg "github.com/adboardhq/moderation-backend/pkg/redis"
)

const (
	resultCacheScope     = "moderation_result"
	predictionCacheScope = "prediction"

	// Pending rows change soon, so their cached view stays short lived.
	pendingResultTTL  = 15 * time.Second
	terminalResultTTL = 24 * time.Hour
	predictionTTL     = 24 * time.Hour
)

// ResultView is the externally visible shape of a moderation result.
type ResultView struct {
	TaskID       int64                  `json:"task_id"`
	ItemID       int64                  `json:"item_id"`
	Status       enums.ModerationStatus `json:"status"`
	IsViolation  *bool                  `json:"is_violation,omitempty"`
	Probability  *float64               `json:"probability,omitempty"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	ProcessedAt  *time.Time             `json:"processed_at,omitempty"`
}

// NewResultView maps a database row to its API shape.
func NewResultView(row models.ModerationResult) ResultView {
	return ResultView{
		TaskID:       row.ID,
		ItemID:       row.ItemID,
		Status:       row.Status,
		IsViolation:  row.IsViolation,
		Probability:  row.Probability,
		ErrorMessage: row.ErrorMessage,
		CreatedAt:    row.CreatedAt,
		ProcessedAt:  row.ProcessedAt,
	}
}

// Prediction is a synchronous scoring verdict cached per item.
type Prediction struct {
	ItemID      int64   `json:"item_id"`
	IsViolation bool    `json:"is_violation"`
	Probability float64 `json:"probability"`
}

type keyBuilder interface {
	CacheKey(scope, id string) string
}

// Cache is the read-through layer over Redis for moderation lookups. Misses
// and marshal failures degrade to database reads, never to request errors.
type Cache struct {
	store redispkg.Store
	keys  keyBuilder
	logg  *logger.Logger
}

// NewCache builds the moderation cache.
func NewCache(store redispkg.Store, keys keyBuilder, logg *logger.Logger) (*Cache, error) {
	if store == nil {
		return nil, errors.New("redis store is required")
	}
	if keys == nil {
		return nil, errors.New("key builder is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Cache{store: store, keys: keys, logg: logg}, nil
}

func (c *Cache) resultKey(taskID int64) string {
	return c.keys.CacheKey(resultCacheScope, strconv.FormatInt(taskID, 10))
}

func (c *Cache) predictionKey(itemID int64) string {
	return c.keys.CacheKey(predictionCacheScope, strconv.FormatInt(itemID, 10))
}

// GetResult returns the cached view for a task, or nil on a miss.
func (c *Cache) GetResult(ctx context.Context, taskID int64) (*ResultView, error) {
	raw, err := c.store.Get(ctx, c.resultKey(taskID))
	if err != nil {
		if errors.Is(err, redispkg.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var view ResultView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		c.logg.Warn(c.logg.WithTaskID(ctx, taskID), "dropping unreadable cached moderation result")
		return nil, nil
	}
	return &view, nil
}

// SetResult stores a view with a TTL chosen by its status.
func (c *Cache) SetResult(ctx context.Context, view ResultView) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return err
	}
	ttl := pendingResultTTL
	if view.Status.IsTerminal() {
		ttl = terminalResultTTL
	}
	return c.store.Set(ctx, c.resultKey(view.TaskID), payload, ttl)
}

// GetPrediction returns the cached synchronous verdict for an item, or nil.
func (c *Cache) GetPrediction(ctx context.Context, itemID int64) (*Prediction, error) {
	raw, err := c.store.Get(ctx, c.predictionKey(itemID))
	if err != nil {
		if errors.Is(err, redispkg.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var prediction Prediction
	if err := json.Unmarshal([]byte(raw), &prediction); err != nil {
		c.logg.Warn(c.logg.WithItemID(ctx, itemID), "dropping unreadable cached prediction")
		return nil, nil
	}
	return &prediction, nil
}

// SetPrediction caches a synchronous verdict for an item.
func (c *Cache) SetPrediction(ctx context.Context, prediction Prediction) error {
	payload, err := json.Marshal(prediction)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.predictionKey(prediction.ItemID), payload, predictionTTL)
}

// InvalidateItem drops the per-item prediction entry.
func (c *Cache) InvalidateItem(ctx context.Context, itemID int64) error {
	return c.store.Del(ctx, c.predictionKey(itemID))
}

// InvalidateTasks drops cached result views for the given task ids.
func (c *Cache) InvalidateTasks(ctx context.Context, taskIDs []int64) error {
	var combined error
	for _, taskID := range taskIDs {
		combined = multierr.Append(combined, c.store.Del(ctx, c.resultKey(taskID)))
	}
	return combined
}
