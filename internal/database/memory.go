package database

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"reporting-gateway/internal/models"
)

var _ Directory = (*MemoryDirectory)(nil)

// MemoryDirectory is an in-process Directory for tests and local tooling.
// Every value handed out is a copy.
type MemoryDirectory struct {
	mu          sync.Mutex
	nextID      int64
	users       map[int64]*models.User
	byUsername  map[string]int64
	grants      map[int64]*models.Grants
	whiteLabels map[int]string
}

// NewMemoryDirectory creates an empty directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		nextID:      1,
		users:       make(map[int64]*models.User),
		byUsername:  make(map[string]int64),
		grants:      make(map[int64]*models.Grants),
		whiteLabels: make(map[int]string),
	}
}

func (d *MemoryDirectory) Close() error { return nil }

func (d *MemoryDirectory) Migrate(context.Context) error { return nil }

func (d *MemoryDirectory) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, nil
	}
	return copyUser(d.users[id]), nil
}

func (d *MemoryDirectory) GetUserByID(_ context.Context, userID int64) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (d *MemoryDirectory) LoadGrants(_ context.Context, userID int64) (*models.Grants, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g := d.grants[userID]
	out := &models.Grants{Affiliates: map[int][]string{}}
	if g == nil {
		return out, nil
	}
	out.Roles = slices.Clone(g.Roles)
	out.WhiteLabels = slices.Clone(g.WhiteLabels)
	for wl, affs := range g.Affiliates {
		out.Affiliates[wl] = slices.Clone(affs)
	}
	return out, nil
}

func (d *MemoryDirectory) RecordFailedLogin(_ context.Context, userID int64, threshold int, lockoutUntil time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return 0, ErrNoSuchUser
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		until := lockoutUntil
		u.LockoutEnd = &until
	}
	return u.FailedLoginAttempts, nil
}

func (d *MemoryDirectory) RecordSuccessfulLogin(_ context.Context, userID int64, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return ErrNoSuchUser
	}
	u.FailedLoginAttempts = 0
	u.LockoutEnd = nil
	u.LastLoginAt = &at
	return nil
}

func (d *MemoryDirectory) ListWhiteLabelIDs(context.Context) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]int, 0, len(d.whiteLabels))
	for id := range d.whiteLabels {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (d *MemoryDirectory) UpsertWhiteLabel(_ context.Context, id int, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.whiteLabels[id] = name
	return nil
}

func (d *MemoryDirectory) CreateUser(_ context.Context, user *models.User) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := strings.ToLower(user.Username)
	if _, exists := d.byUsername[key]; exists {
		return 0, ErrUserExists
	}
	u := copyUser(user)
	u.ID = d.nextID
	d.nextID++
	d.users[u.ID] = u
	d.byUsername[key] = u.ID
	d.grants[u.ID] = &models.Grants{Affiliates: map[int][]string{}}
	return u.ID, nil
}

func (d *MemoryDirectory) SetActive(_ context.Context, userID int64, active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return ErrNoSuchUser
	}
	u.Active = active
	return nil
}

func (d *MemoryDirectory) SetRoles(_ context.Context, userID int64, roles []string) error {
	return d.updateGrants(userID, func(g *models.Grants) { g.Roles = slices.Clone(roles) })
}

func (d *MemoryDirectory) SetWhiteLabelGrants(_ context.Context, userID int64, whiteLabelIDs []int) error {
	return d.updateGrants(userID, func(g *models.Grants) { g.WhiteLabels = slices.Clone(whiteLabelIDs) })
}

func (d *MemoryDirectory) SetAffiliateGrants(_ context.Context, userID int64, whiteLabelID int, affiliateIDs []string) error {
	return d.updateGrants(userID, func(g *models.Grants) {
		if len(affiliateIDs) == 0 {
			delete(g.Affiliates, whiteLabelID)
			return
		}
		g.Affiliates[whiteLabelID] = slices.Clone(affiliateIDs)
	})
}

func (d *MemoryDirectory) updateGrants(userID int64, fn func(*models.Grants)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[userID]; !ok {
		return ErrNoSuchUser
	}
	fn(d.grants[userID])
	return nil
}

func copyUser(u *models.User) *models.User {
	c := *u
	if u.LockoutEnd != nil {
		t := *u.LockoutEnd
		c.LockoutEnd = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}
