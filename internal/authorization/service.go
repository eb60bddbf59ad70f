package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize reports nil when actor may perform action on object.
	Authorize(ctx context.Context, actor string, object string, action string) error
	// AssignRole binds actor to role, replacing any previous binding.
	AssignRole(actor string, role string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrForbidden     = errors.New("forbidden")
)
