package controllers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/adboardhq/moderation-backend/api/responses"
	"github.com/adboardhq/moderation-backend/api/validators"
	"github.com/adboardhq/moderation-backend/internal/ads"
	pkgerrors "github.com/adboardhq/moderation-backend/pkg/errors"
	"github.com/adboardhq/moderation-backend/pkg/logger"
)

const maxAdTextLen = 4096

type createAdRequest struct {
	ItemID      int64  `json:"item_id" validate:"required,gte=0"`
	SellerID    int64  `json:"seller_id" validate:"gte=0"`
	Name        string `json:"name" validate:"required,max=256"`
	Description string `json:"description" validate:"required"`
	Category    int    `json:"category" validate:"gte=0"`
	ImagesQty   int    `json:"images_qty" validate:"gte=0"`
}

type closeAdRequest struct {
	ItemID int64 `json:"item_id" validate:"required,gte=0"`
}

type closeAdResponse struct {
	ItemID       int64 `json:"item_id"`
	TasksRemoved int   `json:"tasks_removed"`
}

// CreateAdvertisement lists a new advertisement for a registered seller.
func CreateAdvertisement(svc ads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "advertisements service unavailable"))
			return
		}

		var req createAdRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ad, err := svc.Create(r.Context(), ads.CreateAdInput{
			ItemID:      req.ItemID,
			SellerID:    req.SellerID,
			Name:        validators.SanitizeString(req.Name, maxAdTextLen),
			Description: validators.SanitizeString(req.Description, maxAdTextLen),
			Category:    req.Category,
			ImagesQty:   req.ImagesQty,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, ad)
	}
}

// GetAdvertisement returns the moderation-relevant snapshot of an ad.
func GetAdvertisement(svc ads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "advertisements service unavailable"))
			return
		}

		itemID, err := parseItemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := svc.GetSnapshot(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, snapshot)
	}
}

// CloseAdvertisement removes an ad together with its moderation history and
// drops any cached verdicts for it.
func CloseAdvertisement(svc ads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "advertisements service unavailable"))
			return
		}

		var req closeAdRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Close(r.Context(), req.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, closeAdResponse{
			ItemID:       result.ItemID,
			TasksRemoved: len(result.ModerationResultIDs),
		})
	}
}

func parseItemIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "itemID")
	itemID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || itemID < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "item id must be a non-negative integer")
	}
	return itemID, nil
}
