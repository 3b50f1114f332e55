package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"daybook/api/internal/config"
	"daybook/api/internal/roles"
	"daybook/api/internal/sharing"
	"daybook/api/internal/store"
)

type fakeStore struct {
	users    map[string]store.User
	journals map[string]store.Journal
	entries  map[string]store.Entry
	outbox   []store.OutboundMail

	applyCalls int
	// applyFn overrides ApplySharingState when set; nil means apply the
	// version-guarded write against the in-memory journal map.
	applyFn func(journalID string, expectedVersion int64, access store.AccessMap, pending store.PendingMap, invites []store.OutboundMail) (bool, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]store.User{},
		journals: map[string]store.Journal{},
		entries:  map[string]store.Entry{},
	}
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) InsertJournal(_ context.Context, journal store.Journal) error {
	f.journals[journal.ID] = journal
	return nil
}

func (f *fakeStore) GetJournal(_ context.Context, id string) (store.Journal, error) {
	journal, ok := f.journals[id]
	if !ok {
		return store.Journal{}, sql.ErrNoRows
	}
	return journal, nil
}

func (f *fakeStore) ListJournalsFor(_ context.Context, userID string) ([]store.Journal, error) {
	var out []store.Journal
	for _, journal := range f.journals {
		if _, ok := journal.Access[userID]; ok {
			out = append(out, journal)
		}
	}
	return out, nil
}

func (f *fakeStore) ApplySharingState(_ context.Context, journalID string, expectedVersion int64, access store.AccessMap, pending store.PendingMap, invites []store.OutboundMail) (bool, error) {
	f.applyCalls++
	if f.applyFn != nil {
		return f.applyFn(journalID, expectedVersion, access, pending, invites)
	}
	journal, ok := f.journals[journalID]
	if !ok || journal.Version != expectedVersion {
		return false, nil
	}
	journal.Access = access
	journal.PendingAccess = pending
	journal.Version++
	f.journals[journalID] = journal
	f.outbox = append(f.outbox, invites...)
	return true, nil
}

func (f *fakeStore) InsertEntry(_ context.Context, entry store.Entry) error {
	f.entries[entry.ID] = entry
	return nil
}

func (f *fakeStore) ListEntries(_ context.Context, journalID string) ([]store.Entry, error) {
	var out []store.Entry
	for _, entry := range f.entries {
		if entry.JournalID == journalID && entry.IsActive {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeStore) DeactivateEntry(_ context.Context, journalID, entryID string) (bool, error) {
	entry, ok := f.entries[entryID]
	if !ok || entry.JournalID != journalID || !entry.IsActive {
		return false, nil
	}
	entry.IsActive = false
	f.entries[entryID] = entry
	return true, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeSessions struct {
	refresh map[string]store.User
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{refresh: map[string]store.User{}}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, _ time.Time) error {
	f.refresh[tokenHash] = user
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	user, ok := f.refresh[tokenHash]
	if !ok {
		return store.User{}, errors.New("refresh session not found")
	}
	return user, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeSessions) Ping(context.Context) error { return nil }

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	data := newFakeStore()
	svc := New(config.Config{
		TokenSecret: "test-secret-0123456789",
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  time.Hour,
		AppBaseURL:  "http://localhost:3000",
	}, data, newFakeSessions())
	return svc, data
}

func displayName(userID string) string {
	return strings.ToUpper(userID[:1]) + userID[1:]
}

func testSession(userID string) Session {
	return Session{
		UserID:   userID,
		UserName: displayName(userID),
		Email:    userID + "@example.com",
		PhotoURL: "https://img.example.com/" + userID + ".png",
	}
}

func seedJournal(data *fakeStore, id string, access store.AccessMap, pending store.PendingMap) {
	if pending == nil {
		pending = store.PendingMap{}
	}
	data.journals[id] = store.Journal{
		ID:            id,
		Title:         "Household",
		Type:          "simple-cashflow",
		Access:        access,
		PendingAccess: pending,
		Version:       1,
		CreatedBy:     "ana",
	}
}

func collaborator(role roles.Role, userID string) store.Collaborator {
	return store.Collaborator{
		Role:        role,
		Email:       userID + "@example.com",
		DisplayName: displayName(userID),
		PhotoURL:    "https://img.example.com/" + userID + ".png",
	}
}

func wantDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError with code %s, got %v", code, err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, domainErr.Code, domainErr.Message)
	}
}

// ── Journals ──

func TestCreateJournalCreatorIsSoleAdmin(t *testing.T) {
	svc, data := newTestService(t)
	session := testSession("ana")

	payload, err := svc.CreateJournal(context.Background(), session, "Household 2026", "")
	if err != nil {
		t.Fatalf("CreateJournal() error = %v", err)
	}
	if payload["role"] != "admin" {
		t.Fatalf("expected creator role admin, got %v", payload["role"])
	}

	if len(data.journals) != 1 {
		t.Fatalf("expected 1 journal, got %d", len(data.journals))
	}
	for _, journal := range data.journals {
		if len(journal.Access) != 1 {
			t.Fatalf("expected creator as sole collaborator, got %d", len(journal.Access))
		}
		me := journal.Access["ana"]
		if me.Role != roles.RoleAdmin || me.Email != "ana@example.com" || me.DisplayName == "" {
			t.Fatalf("unexpected creator collaborator: %+v", me)
		}
		if journal.Version != 1 || journal.Type != "simple-cashflow" {
			t.Fatalf("unexpected journal: %+v", journal)
		}
	}
}

func TestCreateJournalValidation(t *testing.T) {
	svc, _ := newTestService(t)
	session := testSession("ana")

	cases := []struct {
		name        string
		title       string
		journalType string
	}{
		{name: "title too short", title: "ab"},
		{name: "title too long", title: strings.Repeat("x", 51)},
		{name: "unknown type", title: "Household", journalType: "ledger"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateJournal(context.Background(), session, tc.title, tc.journalType)
			wantDomainCode(t, err, CodeInvalidArgument)
		})
	}
}

func TestGetJournalHidesPendingFromNonAdmins(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{
		"ana": collaborator(roles.RoleAdmin, "ana"),
		"bob": collaborator(roles.RoleViewer, "bob"),
	}, store.PendingMap{"carla@example.com": roles.RoleEditor})

	asAdmin, err := svc.GetJournal(context.Background(), testSession("ana"), "jrn_1")
	if err != nil {
		t.Fatalf("GetJournal() as admin error = %v", err)
	}
	if _, ok := asAdmin["pendingAccess"]; !ok {
		t.Fatal("expected pendingAccess in admin payload")
	}

	asViewer, err := svc.GetJournal(context.Background(), testSession("bob"), "jrn_1")
	if err != nil {
		t.Fatalf("GetJournal() as viewer error = %v", err)
	}
	if _, ok := asViewer["pendingAccess"]; ok {
		t.Fatal("expected pendingAccess hidden from viewer payload")
	}
}

func TestGetJournalDeniedForOutsiders(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{"ana": collaborator(roles.RoleAdmin, "ana")}, nil)

	_, err := svc.GetJournal(context.Background(), testSession("mallory"), "jrn_1")
	wantDomainCode(t, err, CodePermissionDenied)
}

// ── Sharing ──

func TestShareBatchValidation(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{"ana": collaborator(roles.RoleAdmin, "ana")}, nil)
	session := testSession("ana")

	oversize := make([]sharing.Person, 11)
	for i := range oversize {
		oversize[i] = sharing.Person{Email: fmt.Sprintf("p%d@example.com", i), Role: roles.RoleViewer}
	}

	cases := []struct {
		name   string
		people []sharing.Person
	}{
		{name: "empty batch", people: nil},
		{name: "oversize batch", people: oversize},
		{name: "invalid address", people: []sharing.Person{{Email: "not-an-email", Role: roles.RoleViewer}}},
		{name: "unknown role", people: []sharing.Person{{Email: "bob@example.com", Role: "owner"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ShareBatch(context.Background(), session, "jrn_1", tc.people)
			wantDomainCode(t, err, CodeInvalidArgument)
		})
	}
	if data.applyCalls != 0 {
		t.Fatalf("expected no write attempts for invalid batches, got %d", data.applyCalls)
	}
}

func TestShareBatchRequiresAdmin(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{
		"ana": collaborator(roles.RoleAdmin, "ana"),
		"bob": collaborator(roles.RoleEditor, "bob"),
	}, nil)

	_, err := svc.ShareBatch(context.Background(), testSession("bob"), "jrn_1", []sharing.Person{
		{Email: "carla@example.com", Role: roles.RoleViewer},
	})
	wantDomainCode(t, err, CodePermissionDenied)
}

func TestShareBatchMissingJournal(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ShareBatch(context.Background(), testSession("ana"), "jrn_missing", []sharing.Person{
		{Email: "carla@example.com", Role: roles.RoleViewer},
	})
	wantDomainCode(t, err, CodeNotFound)
}

func TestShareBatchQueuesOneInvitePerNewAddress(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{"ana": collaborator(roles.RoleAdmin, "ana")}, nil)

	payload, err := svc.ShareBatch(context.Background(), testSession("ana"), "jrn_1", []sharing.Person{
		{Email: "Carla@Example.com", Role: roles.RoleEditor},
	})
	if err != nil {
		t.Fatalf("ShareBatch() error = %v", err)
	}

	pending := payload["pendingAccess"].(map[string]any)
	if pending["carla@example.com"] != "editor" {
		t.Fatalf("expected carla pending as editor, got %v", pending)
	}
	if len(data.outbox) != 1 {
		t.Fatalf("expected exactly 1 queued invitation, got %d", len(data.outbox))
	}
	invite := data.outbox[0]
	if invite.ToAddress != "carla@example.com" {
		t.Fatalf("unexpected invite recipient %q", invite.ToAddress)
	}
	if !strings.Contains(invite.Body, "Household") || !strings.Contains(invite.Body, "editor") {
		t.Fatal("expected invitation body to mention the journal and role")
	}
	if !strings.Contains(invite.Body, "/journals/jrn_1/accept") {
		t.Fatal("expected invitation body to carry the accept link")
	}
}

func TestShareBatchDoesNotReinviteAlreadyPending(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{"ana": collaborator(roles.RoleAdmin, "ana")},
		store.PendingMap{"carla@example.com": roles.RoleViewer})

	payload, err := svc.ShareBatch(context.Background(), testSession("ana"), "jrn_1", []sharing.Person{
		{Email: "carla@example.com", Role: roles.RoleEditor},
	})
	if err != nil {
		t.Fatalf("ShareBatch() error = %v", err)
	}

	pending := payload["pendingAccess"].(map[string]any)
	if pending["carla@example.com"] != "editor" {
		t.Fatalf("expected pending role upgraded to editor, got %v", pending)
	}
	if len(data.outbox) != 0 {
		t.Fatalf("expected no new invitation for an already-pending address, got %d", len(data.outbox))
	}
}

func TestShareBatchUpdatesRolePreservingProfile(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{
		"ana": collaborator(roles.RoleAdmin, "ana"),
		"bob": collaborator(roles.RoleViewer, "bob"),
	}, nil)

	_, err := svc.ShareBatch(context.Background(), testSession("ana"), "jrn_1", []sharing.Person{
		{Email: "bob@example.com", Role: roles.RoleEditor},
	})
	if err != nil {
		t.Fatalf("ShareBatch() error = %v", err)
	}

	bob := data.journals["jrn_1"].Access["bob"]
	if bob.Role != roles.RoleEditor {
		t.Fatalf("expected bob promoted to editor, got %s", bob.Role)
	}
	if bob.DisplayName != "Bob" || bob.PhotoURL == "" {
		t.Fatalf("expected bob's profile preserved, got %+v", bob)
	}
	if len(data.outbox) != 0 {
		t.Fatal("expected no invitation for an existing collaborator")
	}
}

func TestShareBatchLeavesUnmentionedMembersUntouched(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{
		"ana": collaborator(roles.RoleAdmin, "ana"),
		"bob": collaborator(roles.RoleViewer, "bob"),
	}, store.PendingMap{"dave@example.com": roles.RoleReporter})

	_, err := svc.ShareBatch(context.Background(), testSession("ana"), "jrn_1", []sharing.Person{
		{Email: "carla@example.com", Role: roles.RoleViewer},
	})
	if err != nil {
		t.Fatalf("ShareBatch() error = %v", err)
	}

	journal := data.journals["jrn_1"]
	if journal.Access["bob"].Role != roles.RoleViewer {
		t.Fatal("expected bob untouched")
	}
	if journal.PendingAccess["dave@example.com"] != roles.RoleReporter {
		t.Fatal("expected dave's pending invitation untouched")
	}
}

func TestShareBatchRemovesCollaborator(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{
		"ana": collaborator(roles.RoleAdmin, "ana"),
		"bob": collaborator(roles.RoleEditor, "bob"),
	}, nil)

	_, err := svc.ShareBatch(context.Background(), testSession("ana"), "jrn_1", []sharing.Person{
		{Email: "bob@example.com", Role: roles.RoleRemove},
	})
	if err != nil {
		t.Fatalf("ShareBatch() error = %v", err)
	}
	if _, ok := data.journals["jrn_1"].Access["bob"]; ok {
		t.Fatal("expected bob removed")
	}
}

func TestShareBatchNeverRemovesAdmins(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{
		"ana": collaborator(roles.RoleAdmin, "ana"),
		"bob": collaborator(roles.RoleAdmin, "bob"),
	}, nil)

	_, err := svc.ShareBatch(context.Background(), testSession("ana"), "jrn_1", []sharing.Person{
		{Email: "bob@example.com", Role: roles.RoleRemove},
	})
	if err != nil {
		t.Fatalf("ShareBatch() error = %v", err)
	}
	if data.journals["jrn_1"].Access["bob"].Role != roles.RoleAdmin {
		t.Fatal("expected admin bob untouched by removal")
	}
}

func TestShareBatchRemoveUnknownAddressIsNoOp(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{"ana": collaborator(roles.RoleAdmin, "ana")}, nil)

	payload, err := svc.ShareBatch(context.Background(), testSession("ana"), "jrn_1", []sharing.Person{
		{Email: "ghost@example.com", Role: roles.RoleRemove},
	})
	if err != nil {
		t.Fatalf("ShareBatch() error = %v", err)
	}
	pending := payload["pendingAccess"].(map[string]any)
	if len(pending) != 0 {
		t.Fatalf("expected removal of unknown address to leave pending empty, got %v", pending)
	}
	if len(data.outbox) != 0 {
		t.Fatal("expected no invitation queued")
	}
}

func TestShareBatchRejectsSoleAdminDowngrade(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{"ana": collaborator(roles.RoleAdmin, "ana")}, nil)

	_, err := svc.ShareBatch(context.Background(), testSession("ana"), "jrn_1", []sharing.Person{
		{Email: "ana@example.com", Role: roles.RoleViewer},
	})
	wantDomainCode(t, err, CodeInvalidArgument)
	if data.journals["jrn_1"].Access["ana"].Role != roles.RoleAdmin {
		t.Fatal("expected journal state unchanged after rejected downgrade")
	}
}

func TestShareBatchEnforcesCollaboratorCap(t *testing.T) {
	svc, data := newTestService(t)
	access := store.AccessMap{"ana": collaborator(roles.RoleAdmin, "ana")}
	pending := store.PendingMap{}
	for i := 0; i < 9; i++ {
		pending[fmt.Sprintf("p%d@example.com", i)] = roles.RoleViewer
	}
	seedJournal(data, "jrn_1", access, pending)

	_, err := svc.ShareBatch(context.Background(), testSession("ana"), "jrn_1", []sharing.Person{
		{Email: "overflow@example.com", Role: roles.RoleViewer},
	})
	wantDomainCode(t, err, CodeInvalidArgument)
}

func TestShareBatchRetriesOnVersionConflict(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{"ana": collaborator(roles.RoleAdmin, "ana")}, nil)

	conflicts := 2
	data.applyFn = func(journalID string, expectedVersion int64, access store.AccessMap, pending store.PendingMap, invites []store.OutboundMail) (bool, error) {
		if conflicts > 0 {
			conflicts--
			// Concurrent writer bumped the version between read and write.
			journal := data.journals[journalID]
			journal.Version++
			data.journals[journalID] = journal
			return false, nil
		}
		journal := data.journals[journalID]
		if journal.Version != expectedVersion {
			return false, nil
		}
		journal.Access = access
		journal.PendingAccess = pending
		journal.Version++
		data.journals[journalID] = journal
		data.outbox = append(data.outbox, invites...)
		return true, nil
	}

	_, err := svc.ShareBatch(context.Background(), testSession("ana"), "jrn_1", []sharing.Person{
		{Email: "carla@example.com", Role: roles.RoleViewer},
	})
	if err != nil {
		t.Fatalf("ShareBatch() error = %v", err)
	}
	if data.applyCalls != 3 {
		t.Fatalf("expected 2 conflicted attempts plus a successful one, got %d write calls", data.applyCalls)
	}
	if len(data.outbox) != 1 {
		t.Fatalf("expected exactly 1 invitation despite retries, got %d", len(data.outbox))
	}
}

func TestShareBatchFailsAfterRetriesExhausted(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{"ana": collaborator(roles.RoleAdmin, "ana")}, nil)
	data.applyFn = func(string, int64, store.AccessMap, store.PendingMap, []store.OutboundMail) (bool, error) {
		return false, nil
	}

	_, err := svc.ShareBatch(context.Background(), testSession("ana"), "jrn_1", []sharing.Person{
		{Email: "carla@example.com", Role: roles.RoleViewer},
	})
	wantDomainCode(t, err, CodeServerError)
	if data.applyCalls != shareRetryAttempts {
		t.Fatalf("expected %d write attempts, got %d", shareRetryAttempts, data.applyCalls)
	}
}

func TestGetShareStateRequiresAdmin(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{
		"ana": collaborator(roles.RoleAdmin, "ana"),
		"bob": collaborator(roles.RoleViewer, "bob"),
	}, nil)

	if _, err := svc.GetShareState(context.Background(), testSession("ana"), "jrn_1"); err != nil {
		t.Fatalf("GetShareState() as admin error = %v", err)
	}
	_, err := svc.GetShareState(context.Background(), testSession("bob"), "jrn_1")
	wantDomainCode(t, err, CodePermissionDenied)
}

// ── Acceptance ──

func TestAcceptInvitationMovesPendingToAccess(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{"ana": collaborator(roles.RoleAdmin, "ana")},
		store.PendingMap{"carla@example.com": roles.RoleEditor})

	payload, err := svc.AcceptInvitation(context.Background(), testSession("carla"), "jrn_1")
	if err != nil {
		t.Fatalf("AcceptInvitation() error = %v", err)
	}
	if payload["accepted"] != true || payload["role"] != "editor" {
		t.Fatalf("unexpected accept payload: %v", payload)
	}

	journal := data.journals["jrn_1"]
	carla, ok := journal.Access["carla"]
	if !ok {
		t.Fatal("expected carla in access map")
	}
	if carla.Role != roles.RoleEditor || carla.Email != "carla@example.com" ||
		carla.DisplayName != "Carla" || carla.PhotoURL == "" {
		t.Fatalf("expected profile snapshot on accepted collaborator, got %+v", carla)
	}
	if _, stillPending := journal.PendingAccess["carla@example.com"]; stillPending {
		t.Fatal("expected invitation cleared from pending")
	}
}

func TestAcceptInvitationWithoutPendingIsNoOp(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{"ana": collaborator(roles.RoleAdmin, "ana")}, nil)

	payload, err := svc.AcceptInvitation(context.Background(), testSession("carla"), "jrn_1")
	if err != nil {
		t.Fatalf("AcceptInvitation() error = %v", err)
	}
	if payload["accepted"] != false {
		t.Fatalf("expected accepted=false, got %v", payload)
	}
	if data.journals["jrn_1"].Version != 1 {
		t.Fatal("expected no write for a no-op accept")
	}
}

func TestAcceptInvitationIsIdempotent(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{"ana": collaborator(roles.RoleAdmin, "ana")},
		store.PendingMap{"carla@example.com": roles.RoleViewer})
	session := testSession("carla")

	if _, err := svc.AcceptInvitation(context.Background(), session, "jrn_1"); err != nil {
		t.Fatalf("first accept error = %v", err)
	}
	versionAfterFirst := data.journals["jrn_1"].Version

	payload, err := svc.AcceptInvitation(context.Background(), session, "jrn_1")
	if err != nil {
		t.Fatalf("second accept error = %v", err)
	}
	if payload["accepted"] != false || payload["role"] != "viewer" {
		t.Fatalf("expected idempotent second accept reporting current role, got %v", payload)
	}
	if data.journals["jrn_1"].Version != versionAfterFirst {
		t.Fatal("expected second accept to write nothing")
	}
}

// ── Entries ──

func TestAddEntryValidationAndGuards(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{
		"ana": collaborator(roles.RoleAdmin, "ana"),
		"bob": collaborator(roles.RoleViewer, "bob"),
	}, nil)

	valid := EntryInput{Description: "Groceries", Date: "2026-08-30", Type: "paid", Value: 45.90}

	_, err := svc.AddEntry(context.Background(), testSession("bob"), "jrn_1", valid)
	wantDomainCode(t, err, CodePermissionDenied)

	cases := []struct {
		name  string
		input EntryInput
	}{
		{name: "short description", input: EntryInput{Description: "ab", Date: "2026-08-30", Type: "paid", Value: 1}},
		{name: "bad type", input: EntryInput{Description: "Groceries", Date: "2026-08-30", Type: "transfer", Value: 1}},
		{name: "zero value", input: EntryInput{Description: "Groceries", Date: "2026-08-30", Type: "paid", Value: 0}},
		{name: "bad date", input: EntryInput{Description: "Groceries", Date: "30/08/2026", Type: "paid", Value: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddEntry(context.Background(), testSession("ana"), "jrn_1", tc.input)
			wantDomainCode(t, err, CodeInvalidArgument)
		})
	}

	payload, err := svc.AddEntry(context.Background(), testSession("ana"), "jrn_1", valid)
	if err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if payload["date"] != "2026-08-30" || payload["type"] != "paid" {
		t.Fatalf("unexpected entry payload: %v", payload)
	}
}

func TestDeleteEntryNotFound(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{"ana": collaborator(roles.RoleAdmin, "ana")}, nil)

	_, err := svc.DeleteEntry(context.Background(), testSession("ana"), "jrn_1", "ent_missing")
	wantDomainCode(t, err, CodeNotFound)
}

func TestDeleteEntryRequiresEditor(t *testing.T) {
	svc, data := newTestService(t)
	seedJournal(data, "jrn_1", store.AccessMap{
		"ana": collaborator(roles.RoleAdmin, "ana"),
		"bob": collaborator(roles.RoleReporter, "bob"),
	}, nil)
	data.entries["ent_1"] = store.Entry{ID: "ent_1", JournalID: "jrn_1", IsActive: true}

	_, err := svc.DeleteEntry(context.Background(), testSession("bob"), "jrn_1", "ent_1")
	wantDomainCode(t, err, CodePermissionDenied)

	if _, err := svc.DeleteEntry(context.Background(), testSession("ana"), "jrn_1", "ent_1"); err != nil {
		t.Fatalf("DeleteEntry() as admin error = %v", err)
	}
	if data.entries["ent_1"].IsActive {
		t.Fatal("expected entry deactivated")
	}
}
