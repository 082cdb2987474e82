package vmware

import (
	"context"
	"fmt"
	"slices"

	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25/types"
)

// RequiredPrivileges lists the privileges the machinery account needs on
// every analysis machine.
var RequiredPrivileges = []string{
	"VirtualMachine.State.CreateSnapshot",
	"VirtualMachine.State.RevertToSnapshot",
	"VirtualMachine.State.RemoveSnapshot",
	"VirtualMachine.Interact.PowerOff",
	"Datastore.Browse",
}

// UserPrivileges returns the privileges the given user holds on a machine.
func (s *Session) UserPrivileges(ctx context.Context, vm *Machine, user string) ([]string, error) {
	if err := s.owns(vm.SessionID(), vm.String()); err != nil {
		return nil, err
	}

	authManager := object.NewAuthorizationManager(s.client.Client)

	results, err := authManager.FetchUserPrivilegeOnEntities(ctx, []types.ManagedObjectReference{vm.Reference()}, user)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user privileges: %w", err)
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("no privileges returned for user %s", user)
	}

	return results[0].Privileges, nil
}

// ValidatePrivileges checks whether the specified user has all the required privileges
// on a machine.
//
// Parameters:
//   - ctx: the context for the API request.
//   - conn: the session the machine handle belongs to.
//   - vm: the machine to check privileges on.
//   - required: a list of privilege names that the user must have.
//   - user: the name of the user to validate.
//
// Returns an error if:
//   - fetching the user's privileges fails,
//   - no privileges are returned for the user,
//   - or the user is missing any of the required privileges.
func ValidatePrivileges(ctx context.Context, conn Conn, vm *Machine, required []string, user string) error {
	granted, err := conn.UserPrivileges(ctx, vm, user)
	if err != nil {
		return err
	}

	var missing []string
	for _, req := range required {
		if !slices.Contains(granted, req) {
			missing = append(missing, req)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("user %s is missing required privileges on %s: %v", user, vm.Label(), missing)
	}

	return nil
}
