package http

import (
	"net/http"

	"github.com/aussiebroadwan/starter/internal/api/domain"
	"github.com/aussiebroadwan/starter/internal/api/service"
	"github.com/aussiebroadwan/starter/pkg/authsdk"
	"github.com/aussiebroadwan/starter/pkg/httpx"
	"github.com/aussiebroadwan/starter/pkg/pagination"
)

type UsersHandler struct {
	UserService *service.UserService
	Errors      *ErrorWriter
}

// HandleMe returns the authenticated user.
//
//	@Summary		Current user
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.User
//	@Failure		401	{object}	authsdk.APIError	"invalid_token, token_expired or user_not_found"
//	@Router			/v1/users/me [get]
func (h *UsersHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := httpx.SubjectFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	user, err := h.UserService.Get(ctx, userID)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
}

// HandleList returns a page of users.
//
//	@Summary		List users
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Param			page	query		int	false	"Page number (default 1)"
//	@Param			limit	query		int	false	"Page size, 1-100 (default 20)"
//	@Success		200		{object}	authsdk.UserPage
//	@Failure		400		{object}	authsdk.APIError	"invalid_request"
//	@Failure		401		{object}	authsdk.APIError	"invalid_token or token_expired"
//	@Router			/v1/users [get]
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.ParseParams(r.URL.Query())
	if err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	page, err := h.UserService.List(r.Context(), params)
	if err != nil {
		h.Errors.Write(w, r, err)
		return
	}

	out := make([]authsdk.User, 0, len(page.Data))
	for _, u := range page.Data {
		out = append(out, userResponse(u))
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.UserPage{Data: out, Meta: page.Meta})
}

func userResponse(u domain.User) authsdk.User {
	return authsdk.User{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Image:         u.Image,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
