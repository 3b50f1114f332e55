package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"daybook/api/internal/store"
)

// PgSearch implements entry search against PostgreSQL as a fallback when
// Meilisearch is unavailable.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Search matches active entry descriptions with a case-insensitive
// substring query, restricted to the given journals.
func (p *PgSearch) Search(ctx context.Context, journalIDs []string, query string, limit int) ([]store.Entry, error) {
	if strings.TrimSpace(query) == "" || len(journalIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	args := []any{"%" + query + "%"}
	placeholders := make([]string, 0, len(journalIDs))
	for i, id := range journalIDs {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, id)
	}
	args = append(args, limit)

	sqlText := fmt.Sprintf(`
		SELECT id, journal_id, description, entry_date, entry_type, value, created_by, is_active, created_at
		FROM entries
		WHERE is_active AND description ILIKE $1 AND journal_id IN (%s)
		ORDER BY entry_date DESC, created_at DESC
		LIMIT $%d`, strings.Join(placeholders, ", "), len(journalIDs)+2)

	rows, err := p.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("pg entry search: %w", err)
	}
	defer rows.Close()

	var entries []store.Entry
	for rows.Next() {
		var entry store.Entry
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
			return nil, fmt.Errorf("pg entry scan: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LoadActiveEntries returns every active entry for full reindexing.
func (p *PgSearch) LoadActiveEntries(ctx context.Context) ([]store.Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, journal_id, description, entry_date, entry_type, value, created_by, is_active, created_at
		FROM entries
		WHERE is_active
	`)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	entries := make([]store.Entry, 0)
	for rows.Next() {
		var entry store.Entry
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
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
