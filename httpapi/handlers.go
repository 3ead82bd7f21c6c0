package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/middleware"
	"github.com/MrEthical07/goCred/password"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type checkTokenResponse struct {
	Valid     bool      `json:"valid"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := a.engine.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		a.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := a.engine.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		a.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pair)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := a.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pair)
}

// handleLogout always answers 200. The bearer token, when present, is
// revoked on a best-effort basis; a request without one has nothing to
// revoke and succeeds trivially.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := middleware.BearerToken(r); ok {
		a.engine.Logout(r.Context(), token)
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) handleCheckToken(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, goCred.ErrUnauthenticated.Error())
		return
	}

	ident, err := a.engine.Resolve(r.Context(), token)
	if err != nil {
		a.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, checkTokenResponse{
		Valid:     true,
		UserID:    ident.UserID,
		Role:      ident.Role,
		ExpiresAt: ident.ExpiresAt,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, goCred.ErrUnauthenticated.Error())
		return
	}

	user, err := a.engine.FindUserByID(r.Context(), ident.UserID)
	if err != nil {
		// A token that resolves but whose account is gone is treated as
		// unauthenticated, not as a missing resource.
		if errors.Is(err, goCred.ErrUserNotFound) {
			err = goCred.ErrUnauthenticated
		}
		a.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (a *API) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, goCred.ErrUnauthenticated.Error())
		return
	}

	user, err := a.engine.FindUserByID(r.Context(), ident.UserID)
	if err != nil {
		if errors.Is(err, goCred.ErrUserNotFound) {
			err = goCred.ErrUnauthenticated
		}
		a.respondEngineError(w, err)
		return
	}
	a.applyUserUpdate(w, r, ident, user.Username)
}

// handleUpdateUser lets a user edit their own account and admins edit any
// account. Role changes are admin-only regardless of target.
func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, goCred.ErrUnauthenticated.Error())
		return
	}

	username := chi.URLParam(r, "username")
	if !a.engine.IsAdmin(ident) {
		self, err := a.engine.FindUserByID(r.Context(), ident.UserID)
		if err != nil || self.Username != username {
			respondError(w, http.StatusForbidden, goCred.ErrForbidden.Error())
			return
		}
	}
	a.applyUserUpdate(w, r, ident, username)
}

func (a *API) applyUserUpdate(w http.ResponseWriter, r *http.Request, ident *goCred.Identity, username string) {
	var upd goCred.UserUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	if upd.Role != nil && !a.engine.IsAdmin(ident) {
		respondError(w, http.StatusForbidden, goCred.ErrForbidden.Error())
		return
	}

	user, err := a.engine.UpdateUser(r.Context(), username, upd)
	if err != nil {
		a.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.engine.ListUsers(r.Context())
	if err != nil {
		a.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.engine.FindUser(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		a.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.DeleteUser(r.Context(), chi.URLParam(r, "username")); err != nil {
		a.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// respondEngineError maps the engine's error taxonomy onto status codes.
// Unknown errors become opaque 500s; details stay in the server log.
func (a *API) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goCred.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, goCred.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, goCred.ErrUnauthenticated.Error())
	case errors.Is(err, goCred.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, goCred.ErrUserNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, goCred.ErrUserExists):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, password.ErrEmptyPassword), errors.Is(err, password.ErrPasswordTooLong):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, goCred.ErrStoreUnavailable):
		a.logger.Printf("httpapi: store failure: %v", err)
		respondError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		a.logger.Printf("httpapi: internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
