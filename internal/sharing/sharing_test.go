package sharing

import (
	"errors"
	"reflect"
	"testing"

	"daybook/api/internal/roles"
	"daybook/api/internal/store"
)

func baseAccess() store.AccessMap {
	return store.AccessMap{
		"u-admin": {Role: roles.RoleAdmin, Email: "a@x.com", DisplayName: "Ada", PhotoURL: "https://p/a.png"},
		"u-ed":    {Role: roles.RoleEditor, Email: "e@x.com", DisplayName: "Ed"},
	}
}

func TestValidateBatchRejectsOversize(t *testing.T) {
	people := make([]Person, MaxCollaborators+1)
	for i := range people {
		people[i] = Person{Email: "p" + string(rune('a'+i)) + "@x.com", Role: roles.RoleViewer}
	}
	_, err := ValidateBatch(people)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestValidateBatchRejectsBadAddress(t *testing.T) {
	for _, bad := range []string{"", "not-an-email", "a@@x.com"} {
		_, err := ValidateBatch([]Person{{Email: bad, Role: roles.RoleViewer}})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("address %q: expected ValidationError, got %v", bad, err)
		}
	}
}

func TestValidateBatchRejectsUnknownRole(t *testing.T) {
	_, err := ValidateBatch([]Person{{Email: "b@x.com", Role: roles.Role("owner")}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestValidateBatchDeduplicatesLastWins(t *testing.T) {
	batch, err := ValidateBatch([]Person{
		{Email: "B@x.com", Role: roles.RoleViewer},
		{Email: "b@x.com", Role: roles.RoleEditor},
	})
	if err != nil {
		t.Fatalf("ValidateBatch failed: %v", err)
	}
	want := []Person{{Email: "b@x.com", Role: roles.RoleEditor}}
	if !reflect.DeepEqual(batch, want) {
		t.Fatalf("got %+v, want %+v", batch, want)
	}
}

func TestComputeInvitesUnresolvedAddress(t *testing.T) {
	access := store.AccessMap{
		"admin1": {Role: roles.RoleAdmin, Email: "a@x.com"},
	}
	diff, err := Compute(access, store.PendingMap{}, []Person{{Email: "b@x.com", Role: roles.RoleViewer}})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if !reflect.DeepEqual(diff.Access, access) {
		t.Fatalf("access changed: %+v", diff.Access)
	}
	if diff.Pending["b@x.com"] != roles.RoleViewer {
		t.Fatalf("pending = %+v, want b@x.com as viewer", diff.Pending)
	}
	if !reflect.DeepEqual(diff.NewInvites, []string{"b@x.com"}) {
		t.Fatalf("new invites = %v, want exactly one for b@x.com", diff.NewInvites)
	}
}

func TestComputeDoesNotReinviteAlreadyPending(t *testing.T) {
	access := store.AccessMap{"admin1": {Role: roles.RoleAdmin, Email: "a@x.com"}}
	pending := store.PendingMap{"b@x.com": roles.RoleViewer}

	diff, err := Compute(access, pending, []Person{{Email: "b@x.com", Role: roles.RoleEditor}})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(diff.NewInvites) != 0 {
		t.Fatalf("expected no new invites, got %v", diff.NewInvites)
	}
	if diff.Pending["b@x.com"] != roles.RoleEditor {
		t.Fatalf("pending role not updated: %+v", diff.Pending)
	}
}

func TestComputePreservesUnmentionedEntries(t *testing.T) {
	access := baseAccess()
	pending := store.PendingMap{"inv@x.com": roles.RoleReporter}

	diff, err := Compute(access, pending, []Person{{Email: "new@x.com", Role: roles.RoleViewer}})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if diff.Access["u-ed"].Role != roles.RoleEditor {
		t.Fatalf("unmentioned editor was altered: %+v", diff.Access["u-ed"])
	}
	if diff.Access["u-admin"].Role != roles.RoleAdmin {
		t.Fatalf("unmentioned admin was altered: %+v", diff.Access["u-admin"])
	}
	if diff.Pending["inv@x.com"] != roles.RoleReporter {
		t.Fatalf("previously pending invite was dropped: %+v", diff.Pending)
	}
}

func TestComputeRemovesResolvedCollaborator(t *testing.T) {
	diff, err := Compute(baseAccess(), store.PendingMap{}, []Person{{Email: "e@x.com", Role: roles.RoleRemove}})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if _, ok := diff.Access["u-ed"]; ok {
		t.Fatal("editor should have been removed")
	}
	if _, ok := diff.Access["u-admin"]; !ok {
		t.Fatal("admin must survive")
	}
}

func TestComputeIgnoresRemovalOfAdmin(t *testing.T) {
	diff, err := Compute(baseAccess(), store.PendingMap{}, []Person{{Email: "a@x.com", Role: roles.RoleRemove}})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if diff.Access["u-admin"].Role != roles.RoleAdmin {
		t.Fatalf("admin was removed or altered: %+v", diff.Access)
	}
}

func TestComputeIgnoresRemovalOfPendingOnlyAddress(t *testing.T) {
	access := store.AccessMap{"admin1": {Role: roles.RoleAdmin, Email: "a@x.com"}}
	pending := store.PendingMap{"x@example.com": roles.RoleViewer}

	diff, err := Compute(access, pending, []Person{{Email: "x@example.com", Role: roles.RoleRemove}})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if diff.Pending["x@example.com"] != roles.RoleViewer {
		t.Fatalf("pending entry for unresolved address must be unaffected: %+v", diff.Pending)
	}
	if len(diff.NewInvites) != 0 {
		t.Fatalf("no invites expected, got %v", diff.NewInvites)
	}
}

func TestComputeUpdatesRolePreservingProfile(t *testing.T) {
	diff, err := Compute(baseAccess(), store.PendingMap{}, []Person{{Email: "e@x.com", Role: roles.RoleReporter}})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	got := diff.Access["u-ed"]
	if got.Role != roles.RoleReporter {
		t.Fatalf("role = %q, want reporter", got.Role)
	}
	if got.Email != "e@x.com" || got.DisplayName != "Ed" {
		t.Fatalf("profile fields not preserved: %+v", got)
	}
}

func TestComputeRejectsSoleAdminDowngrade(t *testing.T) {
	access := store.AccessMap{"u1": {Role: roles.RoleAdmin, Email: "a@x.com"}}
	_, err := Compute(access, store.PendingMap{}, []Person{{Email: "a@x.com", Role: roles.RoleEditor}})
	var ierr *InvariantError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected InvariantError, got %v", err)
	}
}

func TestComputeAllowsAdminDowngradeWhenAnotherRemains(t *testing.T) {
	access := store.AccessMap{
		"u1": {Role: roles.RoleAdmin, Email: "a@x.com"},
		"u2": {Role: roles.RoleAdmin, Email: "b@x.com"},
	}
	diff, err := Compute(access, store.PendingMap{}, []Person{{Email: "a@x.com", Role: roles.RoleViewer}})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if diff.Access["u1"].Role != roles.RoleViewer {
		t.Fatalf("downgrade not applied: %+v", diff.Access["u1"])
	}
	if diff.Access["u2"].Role != roles.RoleAdmin {
		t.Fatalf("remaining admin altered: %+v", diff.Access["u2"])
	}
}

func TestComputeEnforcesCapWithNoPartialApplication(t *testing.T) {
	access := store.AccessMap{"admin1": {Role: roles.RoleAdmin, Email: "a@x.com"}}
	for i := 0; i < 8; i++ {
		id := string(rune('b' + i))
		access["u-"+id] = store.Collaborator{Role: roles.RoleViewer, Email: id + "@x.com"}
	}
	if len(access) != 9 {
		t.Fatalf("setup: access size = %d", len(access))
	}

	_, err := Compute(access, store.PendingMap{}, []Person{
		{Email: "new1@x.com", Role: roles.RoleViewer},
		{Email: "new2@x.com", Role: roles.RoleViewer},
	})
	var ierr *InvariantError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected InvariantError for cap, got %v", err)
	}
}

func TestComputeCapCountsPendingInvitations(t *testing.T) {
	access := store.AccessMap{"admin1": {Role: roles.RoleAdmin, Email: "a@x.com"}}
	pending := store.PendingMap{}
	for i := 0; i < 9; i++ {
		pending["p"+string(rune('a'+i))+"@x.com"] = roles.RoleViewer
	}

	_, err := Compute(access, pending, []Person{{Email: "one-more@x.com", Role: roles.RoleViewer}})
	var ierr *InvariantError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected InvariantError for cap, got %v", err)
	}
}

func TestCanShare(t *testing.T) {
	access := baseAccess()
	if !CanShare(access, "u-admin") {
		t.Fatal("admin must be allowed to share")
	}
	if CanShare(access, "u-ed") {
		t.Fatal("editor must not be allowed to share")
	}
	if CanShare(access, "unknown") {
		t.Fatal("absent caller must not be allowed to share")
	}
}

func TestAcceptMovesPendingToAccess(t *testing.T) {
	access := store.AccessMap{"admin1": {Role: roles.RoleAdmin, Email: "a@x.com"}}
	pending := store.PendingMap{"b@x.com": roles.RoleReporter}

	nextAccess, nextPending, moved := Accept(access, pending, "u-new", "B@x.com", "Bea", "https://p/b.png")
	if !moved {
		t.Fatal("expected invitation to be accepted")
	}
	if _, ok := nextPending["b@x.com"]; ok {
		t.Fatal("pending entry should be gone")
	}
	got := nextAccess["u-new"]
	if got.Role != roles.RoleReporter || got.Email != "b@x.com" || got.DisplayName != "Bea" || got.PhotoURL != "https://p/b.png" {
		t.Fatalf("unexpected access entry: %+v", got)
	}
}

func TestAcceptIsNoOpWhenNotPending(t *testing.T) {
	access := store.AccessMap{"admin1": {Role: roles.RoleAdmin, Email: "a@x.com"}}
	pending := store.PendingMap{}

	nextAccess, nextPending, moved := Accept(access, pending, "u-new", "b@x.com", "Bea", "")
	if moved {
		t.Fatal("expected no-op")
	}
	if len(nextAccess) != 1 || len(nextPending) != 0 {
		t.Fatalf("state changed on no-op: access=%+v pending=%+v", nextAccess, nextPending)
	}
}

func TestAcceptTwiceYieldsSingleEntry(t *testing.T) {
	access := store.AccessMap{"admin1": {Role: roles.RoleAdmin, Email: "a@x.com"}}
	pending := store.PendingMap{"b@x.com": roles.RoleViewer}

	access2, pending2, moved := Accept(access, pending, "u-new", "b@x.com", "Bea", "")
	if !moved {
		t.Fatal("first accept should move the entry")
	}
	access3, pending3, moved := Accept(access2, pending2, "u-new", "b@x.com", "Bea", "")
	if moved {
		t.Fatal("second accept must be a no-op")
	}
	if !reflect.DeepEqual(access3, access2) || !reflect.DeepEqual(pending3, pending2) {
		t.Fatal("second accept changed state")
	}
	count := 0
	for id := range access3 {
		if id == "u-new" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one entry for u-new, got %d", count)
	}
}
