package models

import (
	"strings"
	"time"
)

// DefaultRole is assigned to any authenticated principal without roles.
const DefaultRole = "User"

// User represents a gateway account as stored in the directory
type User struct {
	ID                  int64      `db:"id"`
	Username            string     `db:"username"`
	DisplayName         string     `db:"display_name"`
	Email               string     `db:"email"`
	PasswordHash        string     `db:"password_hash"`
	Active              bool       `db:"active"`
	FailedLoginAttempts int        `db:"failed_login_attempts"`
	LockoutEnd          *time.Time `db:"lockout_end"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// IsLockedOut reports whether a lockout window is still open at now.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnd != nil && u.LockoutEnd.After(now)
}

// Grants holds the roles and resource grants recorded for a user.
type Grants struct {
	Roles       []string
	WhiteLabels []int
	Affiliates  map[int][]string
}

// Principal is an authenticated caller with its identity, roles and grants.
// It is built once per login or per validated token and never mutated.
type Principal struct {
	ID          int64            `json:"id"`
	Username    string           `json:"username"`
	DisplayName string           `json:"displayName"`
	Active      bool             `json:"active"`
	Roles       []string         `json:"roles"`
	WhiteLabels []int            `json:"whiteLabels"`
	Affiliates  map[int][]string `json:"affiliates"`
}

// NewPrincipal hydrates a principal from a directory user and its grants.
func NewPrincipal(u *User, g *Grants) *Principal {
	p := &Principal{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Active:      u.Active,
		Affiliates:  map[int][]string{},
	}
	if g != nil {
		p.Roles = append(p.Roles, g.Roles...)
		p.WhiteLabels = append(p.WhiteLabels, g.WhiteLabels...)
		for wl, affs := range g.Affiliates {
			p.Affiliates[wl] = append([]string(nil), affs...)
		}
	}
	if len(p.Roles) == 0 {
		p.Roles = []string{DefaultRole}
	}
	return p
}

// HasRole reports whether the principal holds role, ignoring case.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// RefreshTokenData is the snapshot stored alongside an outstanding refresh token.
type RefreshTokenData struct {
	UserID      int64            `json:"user_id"`
	Username    string           `json:"username"`
	DisplayName string           `json:"display_name"`
	Roles       []string         `json:"roles"`
	WhiteLabels []int            `json:"white_labels,omitempty"`
	Affiliates  map[int][]string `json:"affiliates,omitempty"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

// Principal rebuilds the principal captured when the token was issued.
func (d *RefreshTokenData) Principal() *Principal {
	return NewPrincipal(
		&User{ID: d.UserID, Username: d.Username, DisplayName: d.DisplayName, Active: true},
		&Grants{Roles: d.Roles, WhiteLabels: d.WhiteLabels, Affiliates: d.Affiliates},
	)
}

// TokenPair is an issued access/refresh token pair
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	ExpiresAt    time.Time
}

// TokenResponse represents the refresh endpoint response
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
	RefreshToken string `json:"refreshToken"`
}

// LoginRequest represents a username/password login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	AccessToken        string   `json:"accessToken"`
	TokenType          string   `json:"tokenType"`
	ExpiresIn          int64    `json:"expiresIn"`
	RefreshToken       string   `json:"refreshToken"`
	DisplayName        string   `json:"displayName"`
	Roles              []string `json:"roles"`
	AllowedWhiteLabels []int    `json:"allowedWhiteLabels"`
}

// RefreshRequest represents a refresh token exchange
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ValidateRequest represents a token validation request
type ValidateRequest struct {
	Token string `json:"token"`
}

// ValidateResponse represents a token validation response
type ValidateResponse struct {
	Valid bool `json:"valid"`
}

// MeResponse describes the caller and the resources it may query
type MeResponse struct {
	ID                 int64               `json:"id"`
	Username           string              `json:"username"`
	DisplayName        string              `json:"displayName"`
	Roles              []string            `json:"roles"`
	Admin              bool                `json:"admin"`
	AllowedWhiteLabels []int               `json:"allowedWhiteLabels"`
	AllowedAffiliates  map[string][]string `json:"allowedAffiliates"`
}
