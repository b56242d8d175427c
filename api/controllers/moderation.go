package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/adboardhq/moderation-backend/api/responses"
	"github.com/adboardhq/moderation-backend/api/validators"
	"github.com/adboardhq/moderation-backend/internal/ads"
	"github.com/adboardhq/moderation-backend/internal/moderation"
	pkgerrors "github.com/adboardhq/moderation-backend/pkg/errors"
	"github.com/adboardhq/moderation-backend/pkg/logger"
	"github.com/adboardhq/moderation-backend/pkg/pagination"
)

// ModerationReader answers result and prediction reads.
type ModerationReader interface {
	GetResult(ctx context.Context, taskID int64) (*moderation.ResultView, error)
	History(ctx context.Context, itemID int64, params pagination.Params) (*moderation.HistoryPage, error)
	Predict(ctx context.Context, itemID int64) (*moderation.Prediction, error)
	PredictPayload(ctx context.Context, payload ads.Snapshot) (*moderation.Prediction, error)
}

// TaskSubmitter enqueues asynchronous moderation tasks.
type TaskSubmitter interface {
	Submit(ctx context.Context, itemID int64) (*moderation.ResultView, error)
}

type predictRequest struct {
	ItemID           int64  `json:"item_id" validate:"gte=0"`
	SellerID         int64  `json:"seller_id" validate:"gte=0"`
	Name             string `json:"name"`
	Description      string `json:"description" validate:"required"`
	Category         int    `json:"category" validate:"gte=0"`
	ImagesQty        int    `json:"images_qty" validate:"gte=0"`
	IsVerifiedSeller bool   `json:"is_verified_seller"`
}

type asyncPredictRequest struct {
	ItemID int64 `json:"item_id" validate:"required,gte=0"`
}

type historyResponse struct {
	Items  []moderation.ResultView `json:"items"`
	Cursor string                  `json:"cursor,omitempty"`
}

// Predict scores a caller-supplied payload synchronously without persisting
// anything. The item does not need to exist.
func Predict(svc ModerationReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "moderation service unavailable"))
			return
		}

		var req predictRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		prediction, err := svc.PredictPayload(r.Context(), ads.Snapshot{
			ItemID:           req.ItemID,
			SellerID:         req.SellerID,
			Name:             req.Name,
			Description:      req.Description,
			Category:         req.Category,
			ImagesQty:        req.ImagesQty,
			IsVerifiedSeller: req.IsVerifiedSeller,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, prediction)
	}
}

// SimplePredict scores a stored advertisement, serving repeat calls from the
// prediction cache.
func SimplePredict(svc ModerationReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "moderation service unavailable"))
			return
		}

		itemID, err := validators.ParseQueryInt64(r, "item_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		prediction, err := svc.Predict(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, prediction)
	}
}

// AsyncPredict reserves the item's pending slot and enqueues a moderation
// task. The verdict is fetched later via the result endpoint.
func AsyncPredict(producer TaskSubmitter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if producer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "moderation producer unavailable"))
			return
		}

		var req asyncPredictRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := producer.Submit(r.Context(), req.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, view)
	}
}

// ModerationResult returns the state of a single task by its identifier.
func ModerationResult(svc ModerationReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "moderation service unavailable"))
			return
		}

		raw := chi.URLParam(r, "taskID")
		taskID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || taskID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "task id must be a positive integer"))
			return
		}

		view, err := svc.GetResult(r.Context(), taskID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// ModerationHistory lists an item's moderation results newest first with
// cursor pagination.
func ModerationHistory(svc ModerationReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "moderation service unavailable"))
			return
		}

		itemID, err := parseItemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.History(r.Context(), itemID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, historyResponse{Items: page.Items, Cursor: page.Cursor})
	}
}
