package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"reporting-gateway/internal/cache"
	"reporting-gateway/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PrincipalLoader re-reads a principal from the user directory.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID int64) (*models.Principal, error)
}

// TokenConfig holds the fixed token parameters.
type TokenConfig struct {
	Issuer             string
	Audience           string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	RefreshTokenLength int
	ClockSkew          time.Duration
}

// TokenService issues, refreshes and validates gateway tokens.
type TokenService struct {
	keys   *KeyManager
	store  cache.RefreshTokenStore
	loader PrincipalLoader
	cfg    TokenConfig
	now    func() time.Time
	parser *jwt.Parser
	logger *zap.Logger
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the token service's time source.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// WithPrincipalLoader makes Refresh re-hydrate the principal from the
// directory instead of reissuing the snapshot taken at login.
func WithPrincipalLoader(loader PrincipalLoader) TokenOption {
	return func(s *TokenService) {
		s.loader = loader
	}
}

// NewTokenService creates a token service
func NewTokenService(keys *KeyManager, store cache.RefreshTokenStore, cfg TokenConfig, logger *zap.Logger, opts ...TokenOption) *TokenService {
	s := &TokenService{
		keys:   keys,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{SigningAlgorithm}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)

	return s
}

// Issue signs an access token for p and stores a new refresh token.
func (s *TokenService) Issue(ctx context.Context, p *models.Principal) (*models.TokenPair, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTokenExpiry)

	claims := jwt.MapClaims{
		"iss": s.cfg.Issuer,
		"aud": s.cfg.Audience,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"jti": uuid.NewString(),
	}
	encodePrincipal(p, claims)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keys.KeyID()

	signed, err := token.SignedString(s.keys.PrivateKey())
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := s.generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	data := &models.RefreshTokenData{
		UserID:      p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Roles:       canonicalRoles(p.Roles),
		WhiteLabels: p.WhiteLabels,
		Affiliates:  p.Affiliates,
		ExpiresAt:   now.Add(s.cfg.RefreshTokenExpiry),
	}
	if err := s.store.Store(ctx, refreshToken, data, s.cfg.RefreshTokenExpiry); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &models.TokenPair{
		AccessToken:  signed,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.AccessTokenExpiry.Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh consumes refreshToken and issues a new pair for its owner. The
// token is removed from the store before anything else happens, so at most
// one caller can redeem it.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	data, err := s.store.Take(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("take refresh token: %w", err)
	}
	if data == nil {
		return nil, ErrInvalidRefreshToken
	}
	if !s.now().Before(data.ExpiresAt) {
		return nil, ErrExpiredRefreshToken
	}

	principal := data.Principal()
	if s.loader != nil {
		principal, err = s.loader.LoadPrincipal(ctx, data.UserID)
		if errors.Is(err, ErrAuthentication) {
			s.logger.Info("Refresh refused for unavailable account",
				zap.Int64("user_id", data.UserID),
				zap.String("username", data.Username),
				zap.Error(err))
			return nil, ErrInvalidRefreshToken
		}
		if err != nil {
			return nil, fmt.Errorf("rehydrate principal: %w", err)
		}
	}

	return s.Issue(ctx, principal)
}

// ValidateAccess verifies an access token and rebuilds its principal from
// the embedded claims.
func (s *TokenService) ValidateAccess(tokenString string) (*models.Principal, error) {
	token, err := s.parser.ParseWithClaims(tokenString, jwt.MapClaims{}, s.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	p, err := decodePrincipal(claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return p, nil
}

func (s *TokenService) keyFunc(token *jwt.Token) (interface{}, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, errors.New("missing kid in token header")
	}
	return s.keys.PublicKey(kid)
}

// generateRefreshToken generates a cryptographically secure random refresh token
func (s *TokenService) generateRefreshToken() (string, error) {
	b := make([]byte, s.cfg.RefreshTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
