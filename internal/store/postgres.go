package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Users ──

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, photo_url, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, NULLIF($7, ''))
	`, user.ID, user.DisplayName, user.Email, user.PhotoURL, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, photo_url, password_hash, is_email_verified
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PhotoURL, &user.PasswordHash, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, photo_url, password_hash, is_email_verified
		FROM users
		WHERE email=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PhotoURL, &user.PasswordHash, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE password_resets SET used_at=NOW() WHERE token=$1
	`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ── Journals ──

func (s *PostgresStore) InsertJournal(ctx context.Context, journal Journal) error {
	accessJSON, pendingJSON, err := marshalSharing(journal.Access, journal.PendingAccess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journals (id, title, jtype, access, pending_access, version, created_by)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, 1, $6)
	`, journal.ID, journal.Title, journal.Type, accessJSON, pendingJSON, journal.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert journal: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJournal(ctx context.Context, journalID string) (Journal, error) {
	var journal Journal
	var accessRaw, pendingRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, jtype, access, pending_access, version, created_by, created_at, updated_at
		FROM journals
		WHERE id=$1
	`, journalID).Scan(
		&journal.ID,
		&journal.Title,
		&journal.Type,
		&accessRaw,
		&pendingRaw,
		&journal.Version,
		&journal.CreatedBy,
		&journal.CreatedAt,
		&journal.UpdatedAt,
	)
	if err != nil {
		return Journal{}, err
	}
	if err := unmarshalSharing(accessRaw, pendingRaw, &journal); err != nil {
		return Journal{}, err
	}
	return journal, nil
}

func (s *PostgresStore) ListJournalsFor(ctx context.Context, userID string) ([]Journal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, jtype, access, pending_access, version, created_by, created_at, updated_at
		FROM journals
		WHERE jsonb_exists(access, $1)
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list journals: %w", err)
	}
	defer rows.Close()

	items := make([]Journal, 0)
	for rows.Next() {
		var journal Journal
		var accessRaw, pendingRaw []byte
		if err := rows.Scan(
			&journal.ID,
			&journal.Title,
			&journal.Type,
			&accessRaw,
			&pendingRaw,
			&journal.Version,
			&journal.CreatedBy,
			&journal.CreatedAt,
			&journal.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		if err := unmarshalSharing(accessRaw, pendingRaw, &journal); err != nil {
			return nil, err
		}
		items = append(items, journal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journals: %w", err)
	}
	return items, nil
}

// ApplySharingState writes a journal's new access and pending-access maps
// together with any invitation outbox rows, in one transaction guarded by
// the version read earlier. Returns false without writing anything when a
// concurrent writer bumped the version first; the caller rereads and
// retries the whole read-compute-write unit.
func (s *PostgresStore) ApplySharingState(ctx context.Context, journalID string, expectedVersion int64, access AccessMap, pending PendingMap, invites []OutboundMail) (bool, error) {
	accessJSON, pendingJSON, err := marshalSharing(access, pending)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin sharing tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE journals
		SET access=$2::jsonb, pending_access=$3::jsonb, version=version+1, updated_at=NOW()
		WHERE id=$1 AND version=$4
	`, journalID, accessJSON, pendingJSON, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("update sharing state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update sharing state rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	for _, invite := range invites {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mail_outbox (to_address, subject, body)
			VALUES ($1, $2, $3)
		`, invite.ToAddress, invite.Subject, invite.Body); err != nil {
			return false, fmt.Errorf("enqueue invitation mail: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit sharing tx: %w", err)
	}
	return true, nil
}

// ── Entries ──

func (s *PostgresStore) InsertEntry(ctx context.Context, entry Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, journal_id, description, entry_date, entry_type, value, created_by, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
	`, entry.ID, entry.JournalID, entry.Description, entry.Date, entry.Type, entry.Value, entry.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEntries(ctx context.Context, journalID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, journal_id, description, entry_date, entry_type, value, created_by, is_active, created_at
		FROM entries
		WHERE journal_id=$1 AND is_active
		ORDER BY entry_date DESC, created_at DESC
	`, journalID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	items := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(
			&entry.ID,
			&entry.JournalID,
			&entry.Description,
			&entry.Date,
			&entry.Type,
			&entry.Value,
			&entry.CreatedBy,
			&entry.IsActive,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeactivateEntry(ctx context.Context, journalID, entryID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE entries SET is_active=FALSE
		WHERE journal_id=$1 AND id=$2 AND is_active
	`, journalID, entryID)
	if err != nil {
		return false, fmt.Errorf("deactivate entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate entry rows: %w", err)
	}
	return affected > 0, nil
}

// ── Mail outbox ──

func (s *PostgresStore) ListUnsentMail(ctx context.Context, limit int) ([]OutboundMail, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, to_address, subject, body, created_at
		FROM mail_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsent mail: %w", err)
	}
	defer rows.Close()

	items := make([]OutboundMail, 0)
	for rows.Next() {
		var item OutboundMail
		if err := rows.Scan(&item.ID, &item.ToAddress, &item.Subject, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MarkMailSent(ctx context.Context, mailID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mail_outbox SET sent_at=NOW() WHERE id=$1
	`, mailID)
	if err != nil {
		return fmt.Errorf("mark mail sent: %w", err)
	}
	return nil
}

// ── Billing ──

func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO billing_subscriptions (id, customer_id, user_id, status, price_id, current_period_end, cancel_at_period_end)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			customer_id=EXCLUDED.customer_id,
			status=EXCLUDED.status,
			price_id=EXCLUDED.price_id,
			current_period_end=EXCLUDED.current_period_end,
			cancel_at_period_end=EXCLUDED.cancel_at_period_end,
			updated_at=NOW()
	`, sub.ID, sub.CustomerID, sub.UserID, sub.Status, sub.PriceID, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkSubscriptionCanceled(ctx context.Context, subscriptionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE billing_subscriptions SET status='canceled', updated_at=NOW() WHERE id=$1
	`, subscriptionID)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

func marshalSharing(access AccessMap, pending PendingMap) (string, string, error) {
	if access == nil {
		access = AccessMap{}
	}
	if pending == nil {
		pending = PendingMap{}
	}
	accessJSON, err := json.Marshal(access)
	if err != nil {
		return "", "", fmt.Errorf("marshal access map: %w", err)
	}
	pendingJSON, err := json.Marshal(pending)
	if err != nil {
		return "", "", fmt.Errorf("marshal pending map: %w", err)
	}
	return string(accessJSON), string(pendingJSON), nil
}

func unmarshalSharing(accessRaw, pendingRaw []byte, journal *Journal) error {
	journal.Access = AccessMap{}
	journal.PendingAccess = PendingMap{}
	if len(accessRaw) > 0 {
		if err := json.Unmarshal(accessRaw, &journal.Access); err != nil {
			return fmt.Errorf("unmarshal access map: %w", err)
		}
	}
	if len(pendingRaw) > 0 {
		if err := json.Unmarshal(pendingRaw, &journal.PendingAccess); err != nil {
			return fmt.Errorf("unmarshal pending map: %w", err)
		}
	}
	return nil
}
