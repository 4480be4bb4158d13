package access

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"reporting-gateway/internal/models"

	"go.uber.org/zap"
)

// AffiliateAll as a stored affiliate grant authorizes every affiliate of
// that white label.
const AffiliateAll = "all"

// AffiliateSet is the set of affiliates a principal may query within one
// white label. All is the ALL sentinel.
type AffiliateSet struct {
	All bool
	ids map[string]struct{}
}

// AllAffiliates returns the ALL sentinel set.
func AllAffiliates() AffiliateSet {
	return AffiliateSet{All: true}
}

// NewAffiliateSet builds a set from granted affiliate ids.
func NewAffiliateSet(ids []string) AffiliateSet {
	s := AffiliateSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if strings.EqualFold(id, AffiliateAll) {
			return AllAffiliates()
		}
		s.ids[id] = struct{}{}
	}
	return s
}

// Contains reports whether affiliateID is authorized by the set.
func (s AffiliateSet) Contains(affiliateID string) bool {
	if s.All {
		return true
	}
	_, ok := s.ids[affiliateID]
	return ok
}

// IDs returns the explicit affiliate ids in sorted order, or nil for ALL.
func (s AffiliateSet) IDs() []string {
	if s.All {
		return nil
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// PermissionSet is what one principal may see during one request. All of its
// methods are pure.
type PermissionSet struct {
	admin       bool
	whiteLabels []int
	allowed     map[int]struct{}
	affiliates  map[int]AffiliateSet
}

// NewPermissionSet builds a permission set. For administrators whiteLabels
// is the full catalog and affiliates is ignored.
func NewPermissionSet(admin bool, whiteLabels []int, affiliates map[int][]string) *PermissionSet {
	wls := slices.Clone(whiteLabels)
	slices.Sort(wls)
	wls = slices.Compact(wls)

	ps := &PermissionSet{
		admin:       admin,
		whiteLabels: wls,
		allowed:     make(map[int]struct{}, len(wls)),
		affiliates:  make(map[int]AffiliateSet, len(affiliates)),
	}
	for _, id := range wls {
		ps.allowed[id] = struct{}{}
	}
	if !admin {
		for wl, affs := range affiliates {
			ps.affiliates[wl] = NewAffiliateSet(affs)
		}
	}
	return ps
}

// Admin reports whether the administrator override applies.
func (ps *PermissionSet) Admin() bool {
	return ps.admin
}

// WhiteLabels returns every allowed white label in ascending order.
func (ps *PermissionSet) WhiteLabels() []int {
	out := make([]int, len(ps.whiteLabels))
	copy(out, ps.whiteLabels)
	return out
}

// FilterWhiteLabels narrows requested to the allowed white labels, keeping
// request order and duplicates. An empty request means everything allowed.
func (ps *PermissionSet) FilterWhiteLabels(requested []int) []int {
	if len(requested) == 0 {
		return ps.WhiteLabels()
	}
	out := make([]int, 0, len(requested))
	for _, id := range requested {
		if ps.HasWhiteLabelAccess(id) {
			out = append(out, id)
		}
	}
	return out
}

// HasWhiteLabelAccess reports whether whiteLabelID is allowed.
func (ps *PermissionSet) HasWhiteLabelAccess(whiteLabelID int) bool {
	_, ok := ps.allowed[whiteLabelID]
	return ok
}

// AllowedAffiliates returns the affiliate grant for whiteLabelID, regardless
// of whether the white label itself is granted.
func (ps *PermissionSet) AllowedAffiliates(whiteLabelID int) AffiliateSet {
	if ps.admin {
		return AllAffiliates()
	}
	return ps.affiliates[whiteLabelID]
}

// HasAffiliateAccess requires access to the white label first, then an
// affiliate grant within it.
func (ps *PermissionSet) HasAffiliateAccess(whiteLabelID int, affiliateID string) bool {
	if !ps.HasWhiteLabelAccess(whiteLabelID) {
		return false
	}
	if ps.admin {
		return true
	}
	return ps.AllowedAffiliates(whiteLabelID).Contains(affiliateID)
}

// HasAffiliateAccessAny reports whether any of whiteLabelIDs grants affiliateID.
func (ps *PermissionSet) HasAffiliateAccessAny(whiteLabelIDs []int, affiliateID string) bool {
	for _, wl := range whiteLabelIDs {
		if ps.HasAffiliateAccess(wl, affiliateID) {
			return true
		}
	}
	return false
}

// GrantSource re-reads a principal's grants from the directory.
type GrantSource interface {
	LoadGrants(ctx context.Context, userID int64) (*models.Grants, error)
}

// Resolver computes permission sets for principals.
type Resolver struct {
	catalog   *Catalog
	grants    GrantSource
	adminRole string
	logger    *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithGrantSource makes the resolver read non-administrator grants from the
// directory on every request instead of trusting the token snapshot.
func WithGrantSource(grants GrantSource) ResolverOption {
	return func(r *Resolver) {
		r.grants = grants
	}
}

// NewResolver creates a resolver. adminRole is matched case-insensitively.
func NewResolver(catalog *Catalog, adminRole string, logger *zap.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		catalog:   catalog,
		adminRole: adminRole,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsAdmin reports whether p holds the administrator role.
func (r *Resolver) IsAdmin(p *models.Principal) bool {
	return p.HasRole(r.adminRole)
}

// Resolve computes the permission set for p.
func (r *Resolver) Resolve(ctx context.Context, p *models.Principal) (*PermissionSet, error) {
	if r.IsAdmin(p) {
		catalog, err := r.catalog.WhiteLabelIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("load white label catalog: %w", err)
		}
		return NewPermissionSet(true, catalog, nil), nil
	}

	whiteLabels, affiliates := p.WhiteLabels, p.Affiliates
	if r.grants != nil {
		g, err := r.grants.LoadGrants(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("load grants for user %d: %w", p.ID, err)
		}
		if g == nil {
			r.logger.Debug("No grants on record", zap.Int64("user_id", p.ID))
			return NewPermissionSet(false, nil, nil), nil
		}
		whiteLabels, affiliates = g.WhiteLabels, g.Affiliates
	}
	return NewPermissionSet(false, whiteLabels, affiliates), nil
}

// ResolveAllowedWhiteLabels returns the full catalog for administrators and
// the granted white labels otherwise, ascending.
func (r *Resolver) ResolveAllowedWhiteLabels(ctx context.Context, p *models.Principal) ([]int, error) {
	ps, err := r.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	return ps.WhiteLabels(), nil
}

// ResolveAllowedAffiliates returns ALL for administrators and the granted
// affiliates of whiteLabelID otherwise.
func (r *Resolver) ResolveAllowedAffiliates(ctx context.Context, p *models.Principal, whiteLabelID int) (AffiliateSet, error) {
	if r.IsAdmin(p) {
		return AllAffiliates(), nil
	}
	ps, err := r.Resolve(ctx, p)
	if err != nil {
		return AffiliateSet{}, err
	}
	return ps.AllowedAffiliates(whiteLabelID), nil
}
