// Package sharing computes journal collaborator changes from a submitted
// sharing batch. The computation is pure; the caller applies the result
// inside an optimistic store transaction.
package sharing

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"daybook/api/internal/roles"
	"daybook/api/internal/store"
)

// MaxCollaborators caps active collaborators plus pending invitations on a
// single journal.
const MaxCollaborators = 10

// Person is one requested assignment in a sharing batch.
type Person struct {
	Email string     `json:"email"`
	Role  roles.Role `json:"role"`
}

// ValidationError reports a malformed batch, rejected before any store
// round-trip.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// InvariantError reports a batch whose computed result would violate a
// journal invariant. The whole transaction aborts.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string { return e.Reason }

// ValidateBatch normalizes a raw batch: at most MaxCollaborators entries,
// every address a valid email, every role a known input role. Duplicate
// addresses collapse to the last-seen entry.
func ValidateBatch(people []Person) ([]Person, error) {
	if len(people) > MaxCollaborators {
		return nil, &ValidationError{Reason: fmt.Sprintf("you can only share with up to %d people", MaxCollaborators)}
	}

	byEmail := make(map[string]roles.Role, len(people))
	order := make([]string, 0, len(people))
	for _, person := range people {
		email := strings.ToLower(strings.TrimSpace(person.Email))
		if email == "" {
			return nil, &ValidationError{Reason: "contact address is required"}
		}
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("invalid contact address %q", email)}
		}
		if !person.Role.Storable() && person.Role != roles.RoleRemove {
			return nil, &ValidationError{Reason: fmt.Sprintf("unknown role %q", person.Role)}
		}
		if _, seen := byEmail[email]; !seen {
			order = append(order, email)
		}
		byEmail[email] = person.Role
	}

	normalized := make([]Person, 0, len(order))
	for _, email := range order {
		normalized = append(normalized, Person{Email: email, Role: byEmail[email]})
	}
	return normalized, nil
}

// Diff is the computed outcome of applying a batch to a journal's current
// sharing state.
type Diff struct {
	Access  store.AccessMap
	Pending store.PendingMap
	// NewInvites lists pending addresses that were not pending before this
	// batch; each gets exactly one invitation notification.
	NewInvites []string
}

// CanShare is the authorization guard: true iff the caller holds a
// sharing-privileged role in the access map. It must be evaluated against
// the access map read inside the same transaction attempt that will write
// the new state.
func CanShare(access store.AccessMap, callerID string) bool {
	collaborator, ok := access[callerID]
	if !ok {
		return false
	}
	return roles.CanShare(collaborator.Role)
}

// Compute applies a validated batch to the current state.
//
// Addresses resolving to an existing collaborator have their role updated
// in place (profile fields preserved) or, for to_remove, the collaborator
// dropped — except collaborators currently holding admin, which the diff
// never removes. Unresolved addresses become or update pending
// invitations; to_remove for an unresolved address is a no-op. Entries not
// mentioned in the batch are left untouched, and previously pending
// invitations survive unless accepted elsewhere.
//
// Compute rejects results exceeding MaxCollaborators or left without any
// admin.
func Compute(access store.AccessMap, pending store.PendingMap, batch []Person) (Diff, error) {
	nextAccess := access.Clone()
	nextPending := pending.Clone()

	emailToID := make(map[string]string, len(access))
	for id, collaborator := range access {
		emailToID[strings.ToLower(collaborator.Email)] = id
	}

	var newInvites []string
	for _, person := range batch {
		if id, ok := emailToID[person.Email]; ok {
			if person.Role == roles.RoleRemove {
				if nextAccess[id].Role != roles.RoleAdmin {
					delete(nextAccess, id)
				}
				continue
			}
			collaborator := nextAccess[id]
			collaborator.Role = person.Role
			nextAccess[id] = collaborator
			continue
		}

		// Unresolved address: removal needs a resolved principal, so
		// to_remove is meaningless here.
		if person.Role == roles.RoleRemove {
			continue
		}
		if _, alreadyPending := pending[person.Email]; !alreadyPending {
			newInvites = append(newInvites, person.Email)
		}
		nextPending[person.Email] = person.Role
	}

	if len(nextAccess)+len(nextPending) > MaxCollaborators {
		return Diff{}, &InvariantError{Reason: fmt.Sprintf("you can only share with up to %d people", MaxCollaborators)}
	}
	if countAdmins(nextAccess) == 0 {
		return Diff{}, &InvariantError{Reason: "a journal must keep at least one admin"}
	}

	sort.Strings(newInvites)
	return Diff{Access: nextAccess, Pending: nextPending, NewInvites: newInvites}, nil
}

// Accept moves a pending invitation for the given address into the access
// map under the accepting principal's id, using the caller-asserted
// profile snapshot. Returns false when the address is not pending; the
// caller treats that as an idempotent no-op.
func Accept(access store.AccessMap, pending store.PendingMap, principalID, email, displayName, photoURL string) (store.AccessMap, store.PendingMap, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	role, ok := pending[email]
	if !ok {
		return access, pending, false
	}

	nextAccess := access.Clone()
	nextPending := pending.Clone()
	delete(nextPending, email)
	nextAccess[principalID] = store.Collaborator{
		Role:        role,
		Email:       email,
		DisplayName: displayName,
		PhotoURL:    photoURL,
	}
	return nextAccess, nextPending, true
}

func countAdmins(access store.AccessMap) int {
	n := 0
	for _, collaborator := range access {
		if collaborator.Role == roles.RoleAdmin {
			n++
		}
	}
	return n
}
