package auth

import (
	"regexp"
	"slices"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 1-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleGuest is the anonymous placeholder identity. It holds no
	// credentials and can never log in.
	RoleGuest Role = "guest"

	// RoleUser is a self-registered or admin-created account.
	RoleUser Role = "user"

	// RoleAdmin may grant capabilities it already holds itself.
	RoleAdmin Role = "admin"

	// RoleSuperAdmin may grant and revoke any capability and manage OAuth apps.
	// The first one is seeded at bootstrap with credentials logged once.
	RoleSuperAdmin Role = "superAdmin"
)

// ValidRoles lists every role in ascending order of authority.
var ValidRoles = []Role{RoleGuest, RoleUser, RoleAdmin, RoleSuperAdmin}

// IsValid returns true if r is one of the four enumerated roles.
func (r Role) IsValid() bool {
	return slices.Contains(ValidRoles, r)
}

// Rank returns the position of r in the role ladder, or -1 for unknown roles.
func (r Role) Rank() int {
	return slices.Index(ValidRoles, r)
}

// AtLeast reports whether r ranks at or above other.
// Unknown roles never satisfy the comparison.
func (r Role) AtLeast(other Role) bool {
	rank := r.Rank()
	return rank >= 0 && rank >= other.Rank()
}

// Well-known capability names.
const (
	// CapabilityUser is the default capability given to registered accounts.
	CapabilityUser = "user"

	// CapabilityRegister on the guest identity opens anonymous self-registration.
	CapabilityRegister = "register"

	// CapabilityAddNewAdmin is held by the seeded superAdmin.
	CapabilityAddNewAdmin = "addNewAdmin"
)

// Identity represents one account.
type Identity struct {
	Username     string    `json:"username"`
	DisplayName  string    `json:"nickname"`
	Role         Role      `json:"role"`
	Permissions  []string  `json:"permissions"`
	PasswordHash string    `json:"-"` // never serialised
	TOTPSecret   string    `json:"-"` // never serialised
	Version      int64     `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasCapability returns true if the identity holds the exact capability.
func (i *Identity) HasCapability(capability string) bool {
	return slices.Contains(i.Permissions, capability)
}

// NormalizePermissions returns a sorted copy of perms with duplicates and
// empty entries removed. A nil input yields an empty, non-nil slice.
func NormalizePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// RefreshToken represents one active session.
type RefreshToken struct {
	Value     string    `json:"-"` // never serialised
	UUID      string    `json:"uuid"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the record is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TokenPair is returned to callers after login or refresh.
// RefreshToken is empty when a refresh did not rotate the session.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	RefreshTokenUUID string    `json:"refreshTokenUuid"`
	ExpiresAt        time.Time `json:"expiresAt"`
}
