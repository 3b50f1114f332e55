package store

import (
	"time"

	"daybook/api/internal/roles"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PhotoURL              string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Collaborator is the per-principal value of a journal's access map: the
// granted role plus a profile snapshot captured when access was granted.
type Collaborator struct {
	Role        roles.Role `json:"role"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	PhotoURL    string     `json:"photoURL"`
}

// AccessMap maps principal id to collaborator record.
type AccessMap map[string]Collaborator

// PendingMap maps a not-yet-registered contact address to the role it was
// invited with.
type PendingMap map[string]roles.Role

// Clone returns a copy safe to mutate without aliasing the original.
func (m AccessMap) Clone() AccessMap {
	out := make(AccessMap, len(m))
	for id, c := range m {
		out[id] = c
	}
	return out
}

func (m PendingMap) Clone() PendingMap {
	out := make(PendingMap, len(m))
	for addr, role := range m {
		out[addr] = role
	}
	return out
}

type Journal struct {
	ID            string
	Title         string
	Type          string
	Access        AccessMap
	PendingAccess PendingMap
	// Version guards optimistic concurrency: sharing state writes only
	// apply when the stored version still matches the one read.
	Version   int64
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Entry struct {
	ID          string
	JournalID   string
	Description string
	Date        time.Time
	Type        string
	Value       float64
	CreatedBy   string
	IsActive    bool
	CreatedAt   time.Time
}

// OutboundMail is a row in the transactional mail outbox. Rows are written
// in the same transaction as the state change that caused them and picked
// up later by the dispatcher.
type OutboundMail struct {
	ID        int64
	ToAddress string
	Subject   string
	Body      string
	SentAt    *time.Time
	CreatedAt time.Time
}

type Subscription struct {
	ID                string
	CustomerID        string
	UserID            string
	Status            string
	PriceID           string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
