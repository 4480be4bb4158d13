package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"reporting-gateway/internal/access"
	"reporting-gateway/internal/auth"
	"reporting-gateway/internal/models"
	"reporting-gateway/pkg/errors"

	"go.uber.org/zap"
)

// AuthHandler serves login, refresh, validation and the caller profile.
type AuthHandler struct {
	verifier *auth.Verifier
	tokens   *auth.TokenService
	resolver *access.Resolver
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(verifier *auth.Verifier, tokens *auth.TokenService, resolver *access.Resolver, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		verifier: verifier,
		tokens:   tokens,
		resolver: resolver,
		logger:   logger,
	}
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, errors.Wrap(err, errors.ErrInvalidRequest))
		return
	}
	if req.Username == "" || req.Password == "" {
		sendError(w, errors.WithMessage(errors.ErrInvalidRequest, "username and password are required"))
		return
	}

	principal, err := h.verifier.Verify(ctx, req.Username, req.Password)
	if err != nil {
		if stderrors.Is(err, auth.ErrAuthentication) {
			h.logger.Info("Login failed", zap.String("username", req.Username), zap.Error(err))
			sendError(w, errors.ErrInvalidCredentials)
			return
		}
		h.logger.Error("Failed to verify credentials", zap.String("username", req.Username), zap.Error(err))
		sendError(w, errors.Wrap(err, errors.ErrInternalServer))
		return
	}

	allowed, err := h.resolver.ResolveAllowedWhiteLabels(ctx, principal)
	if err != nil {
		h.logger.Error("Failed to resolve white labels", zap.Int64("user_id", principal.ID), zap.Error(err))
		sendError(w, errors.Wrap(err, errors.ErrInternalServer))
		return
	}

	pair, err := h.tokens.Issue(ctx, principal)
	if err != nil {
		h.logger.Error("Failed to issue tokens", zap.Int64("user_id", principal.ID), zap.Error(err))
		sendError(w, errors.Wrap(err, errors.ErrInternalServer))
		return
	}

	h.logger.Info("User logged in", zap.Int64("user_id", principal.ID), zap.String("username", principal.Username))

	sendJSON(w, http.StatusOK, &models.LoginResponse{
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          pair.ExpiresIn,
		RefreshToken:       pair.RefreshToken,
		DisplayName:        principal.DisplayName,
		Roles:              principal.Roles,
		AllowedWhiteLabels: allowed,
	})
}

// HandleRefresh handles POST /api/auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, errors.Wrap(err, errors.ErrInvalidRequest))
		return
	}

	pair, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	switch {
	case stderrors.Is(err, auth.ErrInvalidRefreshToken):
		sendError(w, errors.ErrInvalidRefreshToken)
		return
	case stderrors.Is(err, auth.ErrExpiredRefreshToken):
		sendError(w, errors.ErrExpiredRefreshToken)
		return
	case err != nil:
		h.logger.Error("Failed to refresh tokens", zap.Error(err))
		sendError(w, errors.Wrap(err, errors.ErrInternalServer))
		return
	}

	sendJSON(w, http.StatusOK, &models.TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
		RefreshToken: pair.RefreshToken,
	})
}

// HandleValidate handles POST /api/auth/validate. It always answers 200 and
// reports validity in the body.
func (h *AuthHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, errors.Wrap(err, errors.ErrInvalidRequest))
		return
	}

	valid := false
	if req.Token != "" {
		if _, err := h.tokens.ValidateAccess(req.Token); err != nil {
			h.logger.Debug("Token validation failed", zap.Error(err))
		} else {
			valid = true
		}
	}

	sendJSON(w, http.StatusOK, &models.ValidateResponse{Valid: valid})
}

// HandleMe handles GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, errors.ErrInvalidToken)
		return
	}

	perms, err := h.resolver.Resolve(r.Context(), principal)
	if err != nil {
		h.logger.Error("Failed to resolve permissions", zap.Int64("user_id", principal.ID), zap.Error(err))
		sendError(w, errors.Wrap(err, errors.ErrInternalServer))
		return
	}

	resp := &models.MeResponse{
		ID:                 principal.ID,
		Username:           principal.Username,
		DisplayName:        principal.DisplayName,
		Roles:              principal.Roles,
		Admin:              perms.Admin(),
		AllowedWhiteLabels: perms.WhiteLabels(),
		AllowedAffiliates:  map[string][]string{},
	}
	if !perms.Admin() {
		for _, wl := range resp.AllowedWhiteLabels {
			affs := perms.AllowedAffiliates(wl)
			switch {
			case affs.All:
				resp.AllowedAffiliates[strconv.Itoa(wl)] = []string{access.AffiliateAll}
			case len(affs.IDs()) > 0:
				resp.AllowedAffiliates[strconv.Itoa(wl)] = affs.IDs()
			}
		}
	}

	sendJSON(w, http.StatusOK, resp)
}
