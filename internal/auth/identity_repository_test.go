package auth

import (
	"errors"
	"slices"
	"testing"
)

func identityStores(t *testing.T) map[string]IdentityStore {
	t.Helper()
	return map[string]IdentityStore{
		"sqlite": NewIdentityStore(testDB(t)),
		"memory": NewMemoryIdentityStore(),
	}
}

func TestIdentityStore_CreateAndGet(t *testing.T) {
	for name, store := range identityStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			created := seedIdentity(t, store, "alice", RoleUser, "user", "user", "")

			if created.Version != 1 {
				t.Errorf("Version = %d, want 1", created.Version)
			}

			got, err := store.GetByUsername(ctx, "alice")
			if err != nil {
				t.Fatalf("GetByUsername() error = %v", err)
			}
			if got.Role != RoleUser || got.DisplayName != "alice" {
				t.Errorf("GetByUsername() = %+v", got)
			}
			if !slices.Equal(got.Permissions, []string{"user"}) {
				t.Errorf("Permissions = %v, want [user]", got.Permissions)
			}
			if got.PasswordHash == "" || got.TOTPSecret == "" {
				t.Error("credentials should round-trip")
			}

			if _, err := store.GetByUsername(ctx, "nobody"); !errors.Is(err, ErrIdentityNotFound) {
				t.Errorf("GetByUsername(nobody) error = %v, want ErrIdentityNotFound", err)
			}
		})
	}
}

func TestIdentityStore_DuplicateUsername(t *testing.T) {
	for name, store := range identityStores(t) {
		t.Run(name, func(t *testing.T) {
			seedIdentity(t, store, "alice", RoleUser)

			err := store.Create(t.Context(), &Identity{Username: "alice", DisplayName: "Other", Role: RoleAdmin})
			if !errors.Is(err, ErrUsernameTaken) {
				t.Errorf("Create() duplicate error = %v, want ErrUsernameTaken", err)
			}
		})
	}
}

func TestIdentityStore_RejectsUnknownRole(t *testing.T) {
	for name, store := range identityStores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Create(t.Context(), &Identity{Username: "x", Role: Role("owner")})
			if err == nil {
				t.Error("Create() with unknown role should fail")
			}
		})
	}
}

func TestIdentityStore_UpdatePermissionsCAS(t *testing.T) {
	for name, store := range identityStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			seedIdentity(t, store, "alice", RoleUser, "user")

			updated, err := store.UpdatePermissions(ctx, "alice", []string{"user", "report"}, 1)
			if err != nil {
				t.Fatalf("UpdatePermissions() error = %v", err)
			}
			if updated.Version != 2 {
				t.Errorf("Version = %d, want 2", updated.Version)
			}
			if !slices.Equal(updated.Permissions, []string{"report", "user"}) {
				t.Errorf("Permissions = %v", updated.Permissions)
			}

			if _, err := store.UpdatePermissions(ctx, "alice", []string{}, 1); !errors.Is(err, ErrConflict) {
				t.Errorf("stale UpdatePermissions() error = %v, want ErrConflict", err)
			}
			if _, err := store.UpdatePermissions(ctx, "nobody", []string{}, 1); !errors.Is(err, ErrIdentityNotFound) {
				t.Errorf("UpdatePermissions(nobody) error = %v, want ErrIdentityNotFound", err)
			}
		})
	}
}

func TestIdentityStore_CountByRole(t *testing.T) {
	for name, store := range identityStores(t) {
		t.Run(name, func(t *testing.T) {
			seedIdentity(t, store, "root", RoleSuperAdmin)
			seedIdentity(t, store, "alice", RoleUser)
			seedIdentity(t, store, "bob", RoleUser)

			count, err := store.CountByRole(t.Context(), RoleUser)
			if err != nil {
				t.Fatalf("CountByRole() error = %v", err)
			}
			if count != 2 {
				t.Errorf("CountByRole(user) = %d, want 2", count)
			}

			count, err = store.CountByRole(t.Context(), RoleAdmin)
			if err != nil {
				t.Fatalf("CountByRole() error = %v", err)
			}
			if count != 0 {
				t.Errorf("CountByRole(admin) = %d, want 0", count)
			}
		})
	}
}

func TestMemoryIdentityStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryIdentityStore()
	seedIdentity(t, store, "alice", RoleUser, "user")

	got, err := store.GetByUsername(t.Context(), "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	got.Permissions[0] = "tampered"
	got.Role = RoleSuperAdmin

	again, err := store.GetByUsername(t.Context(), "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if again.Role != RoleUser || again.Permissions[0] != "user" {
		t.Error("mutating a returned identity must not change the store")
	}
}
