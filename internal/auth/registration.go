package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// MinPasswordLength is the shortest accepted password, in characters.
const MinPasswordLength = 8

// RegisterRequest carries the fields for a new account.
type RegisterRequest struct {
	Username    string
	DisplayName string
	Password    string

	// CreatedBy is the authenticated operator, empty for self-registration.
	CreatedBy string
}

// Registration is the result of a successful Register. TOTPSecret is the
// only copy of the secret that ever leaves the service.
type Registration struct {
	Identity   *Identity
	TOTPSecret string
}

// RegistrarOption customises a Registrar.
type RegistrarOption func(*Registrar)

// WithDefaultPermissions sets the capabilities given to new accounts.
func WithDefaultPermissions(perms []string) RegistrarOption {
	return func(r *Registrar) {
		r.defaultPerms = NormalizePermissions(perms)
	}
}

// WithTOTPSecretLength sets the length of generated TOTP secrets.
func WithTOTPSecretLength(n int) RegistrarOption {
	return func(r *Registrar) {
		if n > 0 {
			r.totpLength = n
		}
	}
}

// WithRegistrationEvents sets where registration outcomes are reported.
func WithRegistrationEvents(events EventRecorder) RegistrarOption {
	return func(r *Registrar) {
		if events != nil {
			r.events = events
		}
	}
}

// Registrar creates user accounts.
type Registrar struct {
	identities   IdentityStore
	defaultPerms []string
	totpLength   int
	events       EventRecorder
}

// NewRegistrar creates a registrar. New accounts get the "user" capability
// unless WithDefaultPermissions says otherwise.
func NewRegistrar(identities IdentityStore, opts ...RegistrarOption) *Registrar {
	r := &Registrar{
		identities:   identities,
		defaultPerms: []string{CapabilityUser},
		totpLength:   DefaultTOTPSecretLength,
		events:       nopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates req and stores a new identity with role user.
func (r *Registrar) Register(ctx context.Context, req RegisterRequest) (*Registration, error) {
	reg, err := r.register(ctx, req)
	if err != nil {
		r.emit(ctx, EventRegisterFailed, req, err)
		return nil, err
	}
	r.emit(ctx, EventRegistered, req, nil)
	return reg, nil
}

func (r *Registrar) register(ctx context.Context, req RegisterRequest) (*Registration, error) {
	if !IsValidUsername(req.Username) {
		return nil, ErrInvalidUsername
	}
	if utf8.RuneCountInString(req.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	_, err := r.identities.GetByUsername(ctx, req.Username)
	switch {
	case err == nil:
		return nil, ErrUsernameTaken
	case !errors.Is(err, ErrIdentityNotFound):
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	secret, err := GenerateTOTPSecret(r.totpLength)
	if err != nil {
		return nil, err
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	identity := &Identity{
		Username:     req.Username,
		DisplayName:  displayName,
		Role:         RoleUser,
		Permissions:  append([]string(nil), r.defaultPerms...),
		PasswordHash: hash,
		TOTPSecret:   secret,
	}
	if err := r.identities.Create(ctx, identity); err != nil {
		return nil, err
	}

	return &Registration{Identity: identity, TOTPSecret: secret}, nil
}

// SelfRegistrationOpen reports whether anonymous callers may register,
// which is the case while the guest identity holds the register capability.
func (r *Registrar) SelfRegistrationOpen(ctx context.Context) (bool, error) {
	guest, err := r.identities.GetByUsername(ctx, GuestUsername)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return false, nil
		}
		return false, err
	}
	return guest.HasCapability(CapabilityRegister), nil
}

func (r *Registrar) emit(ctx context.Context, typ EventType, req RegisterRequest, err error) {
	r.events.Record(ctx, Event{
		Type:       typ,
		Username:   req.CreatedBy,
		Target:     req.Username,
		RemoteAddr: RemoteAddrFromContext(ctx),
		Err:        err,
		Time:       time.Now().UTC(),
	})
}
