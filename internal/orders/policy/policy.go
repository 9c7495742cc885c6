// Package policy decides which actor may perform which operation. It is a
// pure function of the actor, the action and the affected account; it
// never touches the store.
package policy

import (
	"fmt"

	e "github.com/gartstein/orderdesk/internal/orders/errors"
	"github.com/gartstein/orderdesk/internal/orders/models"
)

// Action names an operation subject to authorization.
type Action string

const (
	UserCreate         Action = "user.create"
	UserList           Action = "user.list"
	UserDelete         Action = "user.delete"
	UserChangePassword Action = "user.change_password"

	CatalogRead  Action = "catalog.read"
	CatalogWrite Action = "catalog.write"

	OrderRead  Action = "order.read"
	OrderWrite Action = "order.write"
)

// Target identifies the account a user action applies to. It is the zero
// value for actions that do not concern an existing account.
type Target struct {
	UserID   int64
	Username string
	// Protected marks the seeded administrator, which nobody may delete.
	Protected bool
}

// TargetOf builds the Target for u.
func TargetOf(u models.User) Target {
	return Target{UserID: u.ID, Username: u.Username, Protected: u.Protected()}
}

// Authorize returns nil when actor may perform action on target. Denials
// wrap ErrUnauthenticated or ErrForbidden.
func Authorize(actor models.Actor, action Action, target Target) error {
	if !actor.Authenticated() {
		return e.ErrUnauthenticated
	}

	switch action {
	case CatalogRead, CatalogWrite, OrderRead, OrderWrite:
		return nil
	case UserCreate, UserList:
		return requireAdmin(actor, action)
	case UserChangePassword:
		if self(actor, target) {
			return nil
		}
		return requireAdmin(actor, action)
	case UserDelete:
		if target.Protected {
			return fmt.Errorf("%w: the %q account cannot be deleted", e.ErrForbidden, models.AdminUsername)
		}
		if self(actor, target) {
			return fmt.Errorf("%w: an account cannot delete itself", e.ErrForbidden)
		}
		return requireAdmin(actor, action)
	}
	return fmt.Errorf("%w: unknown action %q", e.ErrForbidden, action)
}

func requireAdmin(actor models.Actor, action Action) error {
	if !actor.IsAdmin {
		return fmt.Errorf("%w: %s requires an administrator", e.ErrForbidden, action)
	}
	return nil
}

func self(actor models.Actor, target Target) bool {
	if target.UserID != 0 && actor.UserID != 0 {
		return target.UserID == actor.UserID
	}
	return target.Username != "" && target.Username == actor.Username
}
