package controllers

import (
	"net/http"

	"github.com/adboardhq/moderation-backend/api/responses"
	"github.com/adboardhq/moderation-backend/api/validators"
	"github.com/adboardhq/moderation-backend/internal/users"
	pkgerrors "github.com/adboardhq/moderation-backend/pkg/errors"
	"github.com/adboardhq/moderation-backend/pkg/logger"
)

type createUserRequest struct {
	UserID           int64 `json:"user_id" validate:"required,gte=0"`
	IsVerifiedSeller bool  `json:"is_verified_seller"`
}

// CreateUser registers a seller account with a client-assigned identifier.
func CreateUser(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "users service unavailable"))
			return
		}

		var req createUserRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.Create(r.Context(), users.CreateUserInput{
			ID:               req.UserID,
			IsVerifiedSeller: req.IsVerifiedSeller,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, user)
	}
}
