package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Well-known usernames created by Bootstrap.
const (
	GuestUsername      = "guest"
	SuperAdminUsername = "admin"
)

// seedPasswordLength is the number of alphanumeric characters in the seeded superAdmin password.
const seedPasswordLength = 16

// BootstrapResult carries the credentials generated for the seeded
// superAdmin. Both fields are empty when seeding was skipped.
type BootstrapResult struct {
	GuestCreated      bool
	SuperAdminCreated bool
	Password          string
	TOTPSecret        string
}

// Bootstrap ensures the guest identity and at least one superAdmin exist.
// A new superAdmin gets random credentials that are logged once at WARN.
func Bootstrap(ctx context.Context, identities IdentityStore, logger *slog.Logger) (*BootstrapResult, error) {
	result := &BootstrapResult{}

	created, err := seedGuest(ctx, identities)
	if err != nil {
		return nil, err
	}
	result.GuestCreated = created
	if created {
		logger.Info("guest identity created")
	}

	count, err := identities.CountByRole(ctx, RoleSuperAdmin)
	if err != nil {
		return nil, fmt.Errorf("checking superAdmin count: %w", err)
	}
	if count > 0 {
		logger.Info("superAdmin exists, skipping seed")
		return result, nil
	}

	password, err := randomString(seedPasswordLength, alphanumericAlphabet)
	if err != nil {
		return nil, fmt.Errorf("generating seed password: %w", err)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing seed password: %w", err)
	}
	secret, err := GenerateTOTPSecret(DefaultTOTPSecretLength)
	if err != nil {
		return nil, err
	}

	admin := &Identity{
		Username:     SuperAdminUsername,
		DisplayName:  "Super Administrator",
		Role:         RoleSuperAdmin,
		Permissions:  []string{CapabilityAddNewAdmin},
		PasswordHash: hash,
		TOTPSecret:   secret,
	}
	if err := identities.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("creating seed superAdmin: %w", err)
	}

	logger.Warn("seed superAdmin account created",
		"username", SuperAdminUsername,
		"password", password,
		"totp_secret", secret,
		"action_required", "store these credentials now, they are not shown again",
	)

	result.SuperAdminCreated = true
	result.Password = password
	result.TOTPSecret = secret
	return result, nil
}

func seedGuest(ctx context.Context, identities IdentityStore) (bool, error) {
	_, err := identities.GetByUsername(ctx, GuestUsername)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return false, fmt.Errorf("checking guest identity: %w", err)
	}

	guest := &Identity{
		Username:    GuestUsername,
		DisplayName: "Guest",
		Role:        RoleGuest,
		Permissions: []string{},
	}
	if err := identities.Create(ctx, guest); err != nil && !errors.Is(err, ErrUsernameTaken) {
		return false, fmt.Errorf("creating guest identity: %w", err)
	}
	return true, nil
}
