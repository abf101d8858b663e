package core

import (
	"context"
	"errors"
)

const (
	RoleAdmin     = "admin"
	RoleClinician = "clinician"
)

// DefaultAdmin is the account seeded by `cocarectl create-admin`.
var DefaultAdmin = User{
	ID:        "dev-user",
	Email:     "admin@cocaresync.com",
	FirstName: "Admin",
	LastName:  "User",
	Role:      RoleAdmin,
}

// CurrentUser returns the stored user for id. Authenticated subjects without
// a user row are returned as clinicians.
func (s *Service) CurrentUser(ctx context.Context, id string) (*User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return &User{ID: id, Role: RoleClinician}, nil
	}
	return u, err
}

// EnsureUser creates or updates u.
func (s *Service) EnsureUser(ctx context.Context, u User) (*User, error) {
	if u.Role == "" {
		u.Role = RoleClinician
	}
	return s.store.UpsertUser(ctx, u)
}
