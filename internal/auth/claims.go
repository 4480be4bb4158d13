package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"reporting-gateway/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names carried by gateway access tokens. Roles are written under both
// role names because downstream consumers disagree on which one they read.
const (
	ClaimDisplayName     = "name"
	ClaimUsername        = "unique_name"
	ClaimRole            = "role"
	ClaimRoleURI         = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
	ClaimWhiteLabel      = "WhiteLabel"
	ClaimAffiliatePrefix = "Affiliate:"
)

var errMalformedClaims = errors.New("auth: malformed principal claims")

// encodePrincipal writes the principal's identity and grants into claims.
func encodePrincipal(p *models.Principal, claims jwt.MapClaims) {
	claims["sub"] = strconv.FormatInt(p.ID, 10)
	claims[ClaimDisplayName] = p.DisplayName
	claims[ClaimUsername] = p.Username

	roles := canonicalRoles(p.Roles)
	claims[ClaimRole] = roles
	claims[ClaimRoleURI] = roles

	if len(p.WhiteLabels) > 0 {
		claims[ClaimWhiteLabel] = append([]int(nil), p.WhiteLabels...)
	}
	for wl, affs := range p.Affiliates {
		if len(affs) == 0 {
			continue
		}
		claims[ClaimAffiliatePrefix+strconv.Itoa(wl)] = append([]string(nil), affs...)
	}
}

// decodePrincipal rebuilds a principal from validated claims.
func decodePrincipal(claims jwt.MapClaims) (*models.Principal, error) {
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q", errMalformedClaims, sub)
	}

	p := &models.Principal{
		ID:          id,
		DisplayName: stringClaim(claims[ClaimDisplayName]),
		Username:    stringClaim(claims[ClaimUsername]),
		Active:      true,
		Affiliates:  map[int][]string{},
	}

	roles := append(stringListClaim(claims[ClaimRole]), stringListClaim(claims[ClaimRoleURI])...)
	p.Roles = canonicalRoles(roles)

	if p.WhiteLabels, err = intListClaim(claims[ClaimWhiteLabel]); err != nil {
		return nil, err
	}

	for name, value := range claims {
		suffix, ok := strings.CutPrefix(name, ClaimAffiliatePrefix)
		if !ok {
			continue
		}
		wl, err := strconv.Atoi(suffix)
		if err != nil {
			return nil, fmt.Errorf("%w: affiliate claim %q", errMalformedClaims, name)
		}
		if affs := stringListClaim(value); len(affs) > 0 {
			p.Affiliates[wl] = affs
		}
	}

	return p, nil
}

// canonicalRoles trims, de-duplicates (case-insensitively, keeping the first
// spelling) and defaults an empty role list.
func canonicalRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if slices.ContainsFunc(out, func(seen string) bool { return strings.EqualFold(seen, r) }) {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		out = append(out, models.DefaultRole)
	}
	return out
}

func stringClaim(v any) string {
	s, _ := v.(string)
	return s
}

// stringListClaim accepts both a single value and an array, since issuers
// collapse one-element repeated claims to a scalar.
func stringListClaim(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func intListClaim(v any) ([]int, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []int:
		return t, nil
	case []any:
		out := make([]int, 0, len(t))
		for _, item := range t {
			n, err := intClaim(item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	default:
		n, err := intClaim(t)
		if err != nil {
			return nil, err
		}
		return []int{n}, nil
	}
}

func intClaim(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case json.Number:
		n, err := t.Int64()
		return int(n), err
	case string:
		return strconv.Atoi(t)
	}
	return 0, fmt.Errorf("%w: white label %v", errMalformedClaims, v)
}
