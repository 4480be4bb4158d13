package handlers

import (
	"encoding/json"
	"net/http"

	"reporting-gateway/internal/auth"
	"reporting-gateway/pkg/errors"

	"go.uber.org/zap"
)

// JWKSHandler publishes the token verification keys
type JWKSHandler struct {
	keyManager *auth.KeyManager
	logger     *zap.Logger
}

// NewJWKSHandler creates a new JWKS handler
func NewJWKSHandler(keyManager *auth.KeyManager, logger *zap.Logger) *JWKSHandler {
	return &JWKSHandler{
		keyManager: keyManager,
		logger:     logger,
	}
}

// HandleJWKS handles GET /.well-known/jwks.json
func (h *JWKSHandler) HandleJWKS(w http.ResponseWriter, r *http.Request) {
	data, err := json.Marshal(h.keyManager.JWKSet())
	if err != nil {
		h.logger.Error("Failed to marshal JWKS", zap.Error(err))
		sendError(w, errors.ErrInternalServer)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// HandleHealth handles GET /health
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
