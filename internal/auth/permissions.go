package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Operation is a capability mutation.
type Operation string

// Supported operations.
const (
	OperationGrant  Operation = "grant"
	OperationRevoke Operation = "revoke"
)

// maxUpdateAttempts bounds the compare-and-set retry loop in ModifyPermission.
const maxUpdateAttempts = 5

// ParseOperation accepts exactly "grant" or "revoke".
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OperationGrant, OperationRevoke:
		return Operation(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOperation, s)
	}
}

// Authorize decides whether operator may apply op with capability to the
// identity named target. It returns nil when allowed.
//
// Rules, first match wins:
//   - nobody may modify their own capabilities
//   - superAdmin may grant and revoke anything
//   - admin may grant a capability it holds itself
//   - everything else is denied
func Authorize(operator *Identity, target string, op Operation, capability string) error {
	if operator == nil {
		return ErrInsufficientPermissions
	}
	if operator.Username == target {
		return ErrSelfModificationDenied
	}

	switch op {
	case OperationGrant:
		if operator.Role == RoleSuperAdmin {
			return nil
		}
		if operator.Role == RoleAdmin && operator.HasCapability(capability) {
			return nil
		}
	case OperationRevoke:
		if operator.Role == RoleSuperAdmin {
			return nil
		}
	default:
		return ErrInvalidOperation
	}
	return ErrInsufficientPermissions
}

// applyOperation returns the capability set after op. It never mutates perms.
func applyOperation(perms []string, op Operation, capability string) []string {
	out := slices.Clone(perms)
	switch op {
	case OperationGrant:
		out = append(out, capability)
	case OperationRevoke:
		out = slices.DeleteFunc(out, func(p string) bool { return p == capability })
	}
	return NormalizePermissions(out)
}

// PermissionService applies authorised capability changes.
type PermissionService struct {
	identities IdentityStore
	events     EventRecorder
}

// NewPermissionService creates a permission service. A nil recorder discards events.
func NewPermissionService(identities IdentityStore, events EventRecorder) *PermissionService {
	if events == nil {
		events = nopRecorder{}
	}
	return &PermissionService{identities: identities, events: events}
}

// ModifyPermission grants or revokes capability on target on behalf of
// operator and returns the updated target.
//
// Operator and target are re-read on every attempt. A concurrent change to
// the target surfaces as a version conflict and the whole decision is
// retried; after maxUpdateAttempts ErrConflict is returned.
func (s *PermissionService) ModifyPermission(ctx context.Context, operatorUsername, targetUsername, capability, operation string) (*Identity, error) {
	op, err := ParseOperation(operation)
	if err != nil {
		return nil, err
	}
	if capability == "" {
		return nil, ErrInvalidCapability
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		updated, err := s.tryModify(ctx, operatorUsername, targetUsername, op, capability)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrInsufficientPermissions) || errors.Is(err, ErrSelfModificationDenied) {
				s.emit(ctx, EventPermissionDenied, operatorUsername, targetUsername, op, capability, err)
			}
			return nil, err
		}

		s.emit(ctx, EventPermissionChanged, operatorUsername, targetUsername, op, capability, nil)
		return updated, nil
	}

	s.emit(ctx, EventPermissionDenied, operatorUsername, targetUsername, op, capability, ErrConflict)
	return nil, ErrConflict
}

func (s *PermissionService) tryModify(ctx context.Context, operatorUsername, targetUsername string, op Operation, capability string) (*Identity, error) {
	operator, err := s.identities.GetByUsername(ctx, operatorUsername)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrInsufficientPermissions
		}
		return nil, err
	}
	if operator.Username == targetUsername {
		return nil, ErrSelfModificationDenied
	}

	target, err := s.identities.GetByUsername(ctx, targetUsername)
	if err != nil {
		return nil, err
	}

	if err := Authorize(operator, target.Username, op, capability); err != nil {
		return nil, err
	}

	next := applyOperation(target.Permissions, op, capability)
	return s.identities.UpdatePermissions(ctx, target.Username, next, target.Version)
}

func (s *PermissionService) emit(ctx context.Context, typ EventType, operator, target string, op Operation, capability string, err error) {
	s.events.Record(ctx, Event{
		Type:       typ,
		Username:   operator,
		Target:     target,
		Detail:     string(op) + " " + capability,
		RemoteAddr: RemoteAddrFromContext(ctx),
		Err:        err,
		Time:       time.Now().UTC(),
	})
}
