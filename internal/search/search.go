// Package search indexes journal entries in Meilisearch, falling back to
// a PostgreSQL query when the index is unavailable.
package search

import (
	"time"

	"daybook/api/internal/store"
)

// EntryRecord is the data we index for a journal entry.
type EntryRecord struct {
	ID          string  `json:"id"`
	JournalID   string  `json:"journalId"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	Type        string  `json:"type"`
	Value       float64 `json:"value"`
	CreatedBy   string  `json:"createdBy"`
}

func recordFromEntry(entry store.Entry) EntryRecord {
	return EntryRecord{
		ID:          entry.ID,
		JournalID:   entry.JournalID,
		Description: entry.Description,
		Date:        entry.Date.Format("2006-01-02"),
		Type:        entry.Type,
		Value:       entry.Value,
		CreatedBy:   entry.CreatedBy,
	}
}

func (r EntryRecord) toEntry() store.Entry {
	date, _ := time.Parse("2006-01-02", r.Date)
	return store.Entry{
		ID:          r.ID,
		JournalID:   r.JournalID,
		Description: r.Description,
		Date:        date,
		Type:        r.Type,
		Value:       r.Value,
		CreatedBy:   r.CreatedBy,
		IsActive:    true,
	}
}
