package middleware

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"reporting-gateway/internal/auth"
	"reporting-gateway/internal/models"
	"reporting-gateway/pkg/errors"

	"go.uber.org/zap"
)

// TokenExpiredHeader is set on 401 responses caused by an expired token.
const TokenExpiredHeader = "Token-Expired"

// AccessTokenQueryParam carries the token on streaming handshakes, where
// clients cannot set headers.
const AccessTokenQueryParam = "access_token"

// TokenValidator validates gateway access tokens.
type TokenValidator interface {
	ValidateAccess(tokenString string) (*models.Principal, error)
}

// AuthMiddleware requires a valid bearer token and stores the principal in
// the request context. Requests under streamPrefix may pass the token as a
// query parameter instead.
func AuthMiddleware(validator TokenValidator, streamPrefix string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" && streamPrefix != "" && strings.HasPrefix(r.URL.Path, streamPrefix) {
				token = r.URL.Query().Get(AccessTokenQueryParam)
			}
			if token == "" {
				writeError(w, errors.WithMessage(errors.ErrInvalidToken, "Missing bearer token"))
				return
			}

			principal, err := validator.ValidateAccess(token)
			if err != nil {
				if stderrors.Is(err, auth.ErrTokenExpired) {
					w.Header().Set(TokenExpiredHeader, "true")
				}
				logger.Debug("Rejected access token", zap.String("path", r.URL.Path), zap.Error(err))
				writeError(w, errors.ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeError(w http.ResponseWriter, err *errors.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             err.Code,
		"error_description": err.Message,
	})
}
