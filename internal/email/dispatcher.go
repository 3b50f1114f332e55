package email

import (
	"context"
	"log"
	"time"

	"daybook/api/internal/store"
)

type outboxStore interface {
	ListUnsentMail(ctx context.Context, limit int) ([]store.OutboundMail, error)
	MarkMailSent(ctx context.Context, mailID int64) error
}

type htmlSender interface {
	IsConfigured() bool
	SendHTMLEmail(to []string, subject, htmlBody string) error
}

// Dispatcher drains the transactional mail outbox. State changes enqueue
// rows inside their own database transaction; the dispatcher picks them up
// afterwards so a failed SMTP send never rolls back a committed change.
type Dispatcher struct {
	sender   htmlSender
	outbox   outboxStore
	interval time.Duration
	batch    int
}

func NewDispatcher(sender htmlSender, outbox outboxStore, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Dispatcher{
		sender:   sender,
		outbox:   outbox,
		interval: interval,
		batch:    20,
	}
}

// Run polls the outbox until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Flush(ctx); err != nil {
				log.Printf(`{"component":"mail_dispatcher","error":%q}`, err.Error())
			}
		}
	}
}

// Flush sends one batch of unsent mail. Rows that fail to send stay
// unsent and are retried on the next tick.
func (d *Dispatcher) Flush(ctx context.Context) error {
	if !d.sender.IsConfigured() {
		return nil
	}

	pending, err := d.outbox.ListUnsentMail(ctx, d.batch)
	if err != nil {
		return err
	}

	for _, item := range pending {
		if err := d.sender.SendHTMLEmail([]string{item.ToAddress}, item.Subject, item.Body); err != nil {
			log.Printf(`{"component":"mail_dispatcher","mail_id":%d,"error":%q}`, item.ID, err.Error())
			continue
		}
		if err := d.outbox.MarkMailSent(ctx, item.ID); err != nil {
			return err
		}
	}
	return nil
}
