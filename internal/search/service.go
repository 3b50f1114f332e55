package search

import (
	"context"
	"log"

	"daybook/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to
// PostgreSQL. meili may be nil when Meilisearch is not configured.
type Service struct {
	meili *Meili
	pg    *PgSearch
}

func NewService(meili *Meili, pg *PgSearch) *Service {
	return &Service{meili: meili, pg: pg}
}

// Search runs an entry search restricted to the given journals.
func (s *Service) Search(ctx context.Context, journalIDs []string, query string, limit int) ([]store.Entry, error) {
	if s.meili != nil && s.meili.Healthy() {
		records, err := s.meili.Search(journalIDs, query, limit)
		if err == nil {
			entries := make([]store.Entry, 0, len(records))
			for _, record := range records {
				entries = append(entries, record.toEntry())
			}
			return entries, nil
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}
	return s.pg.Search(ctx, journalIDs, query, limit)
}

// IndexEntry pushes an entry into Meilisearch (fire-and-forget).
func (s *Service) IndexEntry(ctx context.Context, entry store.Entry) error {
	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	go func() {
		if err := s.meili.IndexEntry(recordFromEntry(entry)); err != nil {
			log.Printf("search: index entry %s: %v", entry.ID, err)
		}
	}()
	return nil
}

// RemoveEntry deletes an entry from Meilisearch (fire-and-forget).
func (s *Service) RemoveEntry(ctx context.Context, entryID string) error {
	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	go func() {
		if err := s.meili.DeleteEntry(entryID); err != nil {
			log.Printf("search: delete entry %s: %v", entryID, err)
		}
	}()
	return nil
}

// ReindexAllFromPG pushes every active entry into Meilisearch. Called at
// startup when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pg == nil {
		return
	}
	entries, err := s.pg.LoadActiveEntries(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	records := make([]EntryRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, recordFromEntry(entry))
	}
	if err := s.meili.IndexEntries(records); err != nil {
		log.Printf("search: reindex entries: %v", err)
	}
}
