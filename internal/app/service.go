package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"daybook/api/internal/auth"
	"daybook/api/internal/authpw"
	"daybook/api/internal/config"
	"daybook/api/internal/email"
	"daybook/api/internal/roles"
	"daybook/api/internal/sharing"
	"daybook/api/internal/store"
	"daybook/api/internal/util"
)

// shareRetryAttempts bounds the optimistic retry loop for sharing writes.
// Each attempt rereads the journal, recomputes the diff, and tries the
// version-guarded write again.
const shareRetryAttempts = 5

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	PhotoURL     string
	JTI          string
	ExpiresAt    time.Time
}

type EntryInput struct {
	Description string  `json:"description"`
	Date        string  `json:"date"`
	Type        string  `json:"type"`
	Value       float64 `json:"value"`
}

var allowedEntryTypes = map[string]struct{}{
	"received": {},
	"paid":     {},
}

var allowedJournalTypes = map[string]struct{}{
	"simple-cashflow": {},
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	InsertJournal(context.Context, store.Journal) error
	GetJournal(context.Context, string) (store.Journal, error)
	ListJournalsFor(context.Context, string) ([]store.Journal, error)
	ApplySharingState(context.Context, string, int64, store.AccessMap, store.PendingMap, []store.OutboundMail) (bool, error)
	InsertEntry(context.Context, store.Entry) error
	ListEntries(context.Context, string) ([]store.Entry, error)
	DeactivateEntry(context.Context, string, string) (bool, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(context.Context, string, store.User, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	Ping(ctx context.Context) error
}

type entrySearcher interface {
	IndexEntry(ctx context.Context, entry store.Entry) error
	RemoveEntry(ctx context.Context, entryID string) error
	Search(ctx context.Context, journalIDs []string, query string, limit int) ([]store.Entry, error)
}

type journalExporter interface {
	StatementPDF(ctx context.Context, journal store.Journal, entries []store.Entry) ([]byte, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authPw   *authpw.Service
	mail     *email.Service
	search   entrySearcher
	exporter journalExporter
}

func New(cfg config.Config, dataStore dataStore, sessions sessionStore) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
	}
}

func (s *Service) SetAuthPasswordService(svc *authpw.Service) { s.authPw = svc }

func (s *Service) AuthPasswordService() *authpw.Service { return s.authPw }

func (s *Service) SetMailService(svc *email.Service) { s.mail = svc }

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

func (s *Service) SetSearchIndex(idx entrySearcher) { s.search = idx }

func (s *Service) SetExporter(exporter journalExporter) { s.exporter = exporter }

// ── Sessions ──

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:     user.ID,
		Name:    user.DisplayName,
		Email:   user.Email,
		Picture: user.PhotoURL,
		JTI:     jti,
		Exp:     expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		PhotoURL:     user.PhotoURL,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken rebuilds a session from access token claims. The claims
// carry the profile snapshot, so no store round-trip is needed.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Email:     claims.Email,
		PhotoURL:  claims.Picture,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// SendVerificationEmail mails a signup verification link when SMTP is
// configured; otherwise it is a no-op and the caller falls back to the
// dev token response.
func (s *Service) SendVerificationEmail(to, userName, token string) error {
	if !s.SMTPConfigured() {
		return nil
	}
	url := s.cfg.AppBaseURL + "/verify-email?token=" + token
	return s.mail.SendVerificationEmail(to, userName, url)
}

func (s *Service) SendPasswordResetEmail(to, userName, token string) error {
	if !s.SMTPConfigured() {
		return nil
	}
	url := s.cfg.AppBaseURL + "/reset-password?token=" + token
	return s.mail.SendPasswordResetEmail(to, userName, url)
}

// ── Journals ──

func (s *Service) CreateJournal(ctx context.Context, session Session, title, journalType string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if len(title) < 3 || len(title) > 50 {
		return nil, errInvalidArgument("title must be between 3 and 50 characters")
	}
	if journalType == "" {
		journalType = "simple-cashflow"
	}
	if _, ok := allowedJournalTypes[journalType]; !ok {
		return nil, errInvalidArgument("unknown journal type")
	}

	journal := store.Journal{
		ID:    util.NewID("jrn"),
		Title: title,
		Type:  journalType,
		Access: store.AccessMap{
			session.UserID: {
				Role:        roles.RoleAdmin,
				Email:       session.Email,
				DisplayName: session.UserName,
				PhotoURL:    session.PhotoURL,
			},
		},
		PendingAccess: store.PendingMap{},
		Version:       1,
		CreatedBy:     session.UserID,
	}
	if err := s.store.InsertJournal(ctx, journal); err != nil {
		return nil, err
	}
	return journalPayload(journal, roles.RoleAdmin), nil
}

func (s *Service) ListJournals(ctx context.Context, session Session) ([]map[string]any, error) {
	journals, err := s.store.ListJournalsFor(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(journals))
	for _, journal := range journals {
		role, _ := callerRole(journal, session.UserID)
		items = append(items, journalPayload(journal, role))
	}
	return items, nil
}

func (s *Service) GetJournal(ctx context.Context, session Session, journalID string) (map[string]any, error) {
	journal, err := s.loadJournal(ctx, journalID)
	if err != nil {
		return nil, err
	}
	role, ok := callerRole(journal, session.UserID)
	if !ok || !roles.CanView(role) {
		return nil, errPermissionDenied("you do not have access to this journal")
	}
	return journalPayload(journal, role), nil
}

// ── Sharing ──

// ShareBatch applies a batch of role assignments to a journal. Validation
// happens once up front; authorization and the diff are recomputed inside
// every optimistic attempt so they always reflect the state being
// replaced.
func (s *Service) ShareBatch(ctx context.Context, session Session, journalID string, people []sharing.Person) (map[string]any, error) {
	batch, err := sharing.ValidateBatch(people)
	if err != nil {
		return nil, errInvalidArgument(err.Error())
	}
	if len(batch) == 0 {
		return nil, errInvalidArgument("at least one person is required")
	}

	for attempt := 0; attempt < shareRetryAttempts; attempt++ {
		journal, err := s.loadJournal(ctx, journalID)
		if err != nil {
			return nil, err
		}
		if !sharing.CanShare(journal.Access, session.UserID) {
			return nil, errPermissionDenied("only admins can share this journal")
		}

		diff, err := sharing.Compute(journal.Access, journal.PendingAccess, batch)
		if err != nil {
			var invariantErr *sharing.InvariantError
			if errors.As(err, &invariantErr) {
				return nil, errInvalidArgument(invariantErr.Reason)
			}
			return nil, err
		}

		invites, err := s.invitationMail(journal, session, diff)
		if err != nil {
			return nil, err
		}

		applied, err := s.store.ApplySharingState(ctx, journal.ID, journal.Version, diff.Access, diff.Pending, invites)
		if err != nil {
			return nil, err
		}
		if applied {
			return sharingPayload(diff.Access, diff.Pending), nil
		}
	}
	return nil, errInternal("the journal changed too many times while sharing, please retry")
}

// AcceptInvitation moves the caller's pending invitation into the access
// map. Accepting with no pending invitation is a no-op, including repeat
// accepts of the same invitation.
func (s *Service) AcceptInvitation(ctx context.Context, session Session, journalID string) (map[string]any, error) {
	for attempt := 0; attempt < shareRetryAttempts; attempt++ {
		journal, err := s.loadJournal(ctx, journalID)
		if err != nil {
			return nil, err
		}

		nextAccess, nextPending, moved := sharing.Accept(
			journal.Access,
			journal.PendingAccess,
			session.UserID,
			session.Email,
			session.UserName,
			session.PhotoURL,
		)
		if !moved {
			payload := map[string]any{"accepted": false}
			if role, ok := callerRole(journal, session.UserID); ok {
				payload["role"] = string(role)
			}
			return payload, nil
		}

		applied, err := s.store.ApplySharingState(ctx, journal.ID, journal.Version, nextAccess, nextPending, nil)
		if err != nil {
			return nil, err
		}
		if applied {
			return map[string]any{
				"accepted": true,
				"role":     string(nextAccess[session.UserID].Role),
			}, nil
		}
	}
	return nil, errInternal("the journal changed too many times while accepting, please retry")
}

func (s *Service) GetShareState(ctx context.Context, session Session, journalID string) (map[string]any, error) {
	journal, err := s.loadJournal(ctx, journalID)
	if err != nil {
		return nil, err
	}
	if !sharing.CanShare(journal.Access, session.UserID) {
		return nil, errPermissionDenied("only admins can view sharing details")
	}
	return sharingPayload(journal.Access, journal.PendingAccess), nil
}

func (s *Service) invitationMail(journal store.Journal, session Session, diff sharing.Diff) ([]store.OutboundMail, error) {
	if len(diff.NewInvites) == 0 {
		return nil, nil
	}
	acceptURL := s.cfg.AppBaseURL + "/journals/" + journal.ID + "/accept"
	mails := make([]store.OutboundMail, 0, len(diff.NewInvites))
	for _, addr := range diff.NewInvites {
		subject, body, err := email.RenderInvitation(email.InvitationData{
			JournalTitle: journal.Title,
			InviterName:  session.UserName,
			Role:         string(diff.Pending[addr]),
			AcceptURL:    acceptURL,
		})
		if err != nil {
			return nil, fmt.Errorf("render invitation for %s: %w", addr, err)
		}
		mails = append(mails, store.OutboundMail{
			ToAddress: addr,
			Subject:   subject,
			Body:      body,
		})
	}
	return mails, nil
}

// ── Entries ──

func (s *Service) AddEntry(ctx context.Context, session Session, journalID string, input EntryInput) (map[string]any, error) {
	journal, err := s.loadJournal(ctx, journalID)
	if err != nil {
		return nil, err
	}
	role, ok := callerRole(journal, session.UserID)
	if !ok || !roles.CanAddEntry(role) {
		return nil, errPermissionDenied("your role cannot add entries to this journal")
	}

	description := strings.TrimSpace(input.Description)
	if len(description) < 3 || len(description) > 254 {
		return nil, errInvalidArgument("description must be between 3 and 254 characters")
	}
	if _, ok := allowedEntryTypes[input.Type]; !ok {
		return nil, errInvalidArgument("type must be 'received' or 'paid'")
	}
	if input.Value <= 0 {
		return nil, errInvalidArgument("value must be greater than zero")
	}
	date, err := time.Parse("2006-01-02", input.Date)
	if err != nil {
		return nil, errInvalidArgument("date must be in YYYY-MM-DD format")
	}

	entry := store.Entry{
		ID:          util.NewID("ent"),
		JournalID:   journal.ID,
		Description: description,
		Date:        date,
		Type:        input.Type,
		Value:       input.Value,
		CreatedBy:   session.UserID,
		IsActive:    true,
	}
	if err := s.store.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	if s.search != nil {
		// Indexing failures must not fail the write.
		_ = s.search.IndexEntry(ctx, entry)
	}
	return entryPayload(entry), nil
}

func (s *Service) ListEntries(ctx context.Context, session Session, journalID string) ([]map[string]any, error) {
	journal, err := s.loadJournal(ctx, journalID)
	if err != nil {
		return nil, err
	}
	role, ok := callerRole(journal, session.UserID)
	if !ok || !roles.CanView(role) {
		return nil, errPermissionDenied("you do not have access to this journal")
	}

	entries, err := s.store.ListEntries(ctx, journal.ID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, entryPayload(entry))
	}
	return items, nil
}

func (s *Service) DeleteEntry(ctx context.Context, session Session, journalID, entryID string) (map[string]any, error) {
	journal, err := s.loadJournal(ctx, journalID)
	if err != nil {
		return nil, err
	}
	role, ok := callerRole(journal, session.UserID)
	if !ok || !roles.CanEditEntries(role) {
		return nil, errPermissionDenied("your role cannot delete entries in this journal")
	}

	removed, err := s.store.DeactivateEntry(ctx, journal.ID, entryID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, errNotFound("entry not found")
	}
	if s.search != nil {
		_ = s.search.RemoveEntry(ctx, entryID)
	}
	return map[string]any{"ok": true}, nil
}

// SearchEntries searches across every journal the caller can view.
func (s *Service) SearchEntries(ctx context.Context, session Session, query string, limit int) ([]map[string]any, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errInvalidArgument("q is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if s.search == nil {
		return nil, errInternal("search is not configured")
	}

	journals, err := s.store.ListJournalsFor(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	journalIDs := make([]string, 0, len(journals))
	for _, journal := range journals {
		journalIDs = append(journalIDs, journal.ID)
	}
	if len(journalIDs) == 0 {
		return []map[string]any{}, nil
	}

	entries, err := s.search.Search(ctx, journalIDs, query, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, entryPayload(entry))
	}
	return items, nil
}

// ── Export ──

func (s *Service) ExportJournal(ctx context.Context, session Session, journalID string) ([]byte, error) {
	if s.exporter == nil {
		return nil, errInternal("export is not configured")
	}
	journal, err := s.loadJournal(ctx, journalID)
	if err != nil {
		return nil, err
	}
	role, ok := callerRole(journal, session.UserID)
	if !ok || !roles.CanView(role) {
		return nil, errPermissionDenied("you do not have access to this journal")
	}

	entries, err := s.store.ListEntries(ctx, journal.ID)
	if err != nil {
		return nil, err
	}
	return s.exporter.StatementPDF(ctx, journal, entries)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

// ── Helpers ──

func (s *Service) loadJournal(ctx context.Context, journalID string) (store.Journal, error) {
	journal, err := s.store.GetJournal(ctx, journalID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Journal{}, errNotFound("journal not found")
	}
	if err != nil {
		return store.Journal{}, err
	}
	return journal, nil
}

func callerRole(journal store.Journal, userID string) (roles.Role, bool) {
	collaborator, ok := journal.Access[userID]
	if !ok {
		return "", false
	}
	return collaborator.Role, true
}

func journalPayload(journal store.Journal, viewerRole roles.Role) map[string]any {
	payload := map[string]any{
		"id":        journal.ID,
		"title":     journal.Title,
		"type":      journal.Type,
		"access":    accessPayload(journal.Access),
		"createdBy": journal.CreatedBy,
		"createdAt": journal.CreatedAt,
		"updatedAt": journal.UpdatedAt,
		"role":      string(viewerRole),
	}
	// Pending invitations are only visible to admins.
	if viewerRole == roles.RoleAdmin {
		payload["pendingAccess"] = pendingPayload(journal.PendingAccess)
	}
	return payload
}

func sharingPayload(access store.AccessMap, pending store.PendingMap) map[string]any {
	return map[string]any{
		"access":        accessPayload(access),
		"pendingAccess": pendingPayload(pending),
	}
}

func accessPayload(access store.AccessMap) map[string]any {
	out := make(map[string]any, len(access))
	for id, collaborator := range access {
		out[id] = map[string]any{
			"role":        string(collaborator.Role),
			"email":       collaborator.Email,
			"displayName": collaborator.DisplayName,
			"photoURL":    collaborator.PhotoURL,
		}
	}
	return out
}

func pendingPayload(pending store.PendingMap) map[string]any {
	out := make(map[string]any, len(pending))
	for addr, role := range pending {
		out[addr] = string(role)
	}
	return out
}

func entryPayload(entry store.Entry) map[string]any {
	return map[string]any{
		"id":          entry.ID,
		"journalId":   entry.JournalID,
		"description": entry.Description,
		"date":        entry.Date.Format("2006-01-02"),
		"type":        entry.Type,
		"value":       entry.Value,
		"createdBy":   entry.CreatedBy,
		"createdAt":   entry.CreatedAt,
	}
}
