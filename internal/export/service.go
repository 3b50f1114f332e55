package export

import (
	"context"
	"fmt"
	"time"

	"daybook/api/internal/store"
)

// Service renders journal statements as PDF.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// StatementPDF renders the journal's active entries as a PDF statement.
func (s *Service) StatementPDF(ctx context.Context, journal store.Journal, entries []store.Entry) ([]byte, error) {
	data := TemplateData{
		Title:       journal.Title,
		GeneratedAt: time.Now(),
		Entries:     make([]TemplateEntry, 0, len(entries)),
	}
	for _, entry := range entries {
		data.Entries = append(data.Entries, TemplateEntry{
			Description: entry.Description,
			Date:        entry.Date,
			Type:        entry.Type,
			Value:       entry.Value,
		})
		switch entry.Type {
		case "received":
			data.TotalReceived += entry.Value
		case "paid":
			data.TotalPaid += entry.Value
		}
	}
	data.Balance = data.TotalReceived - data.TotalPaid

	html, err := RenderStatementHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}

	result, err := exportPDF(html, journal.Title)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}
