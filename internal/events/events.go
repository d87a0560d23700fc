// Package events publishes domain events onto the job queue after commit.
// Publishing is fire and forget: the transaction that produced the event has
// already committed, so a failed enqueue is logged and dropped rather than
// unwinding ledger state.
package events

import (
	"context"
	"log/slog"

	"github.com/atlas-erp/atlas-ledger/internal/applications"
	"github.com/atlas-erp/atlas-ledger/internal/documents"
	"github.com/atlas-erp/atlas-ledger/internal/ledger"
	"github.com/atlas-erp/atlas-ledger/jobs"
)

// Event names carried on the queue.
const (
	JournalPosted        = "ledger.journal_posted"
	JournalReversed      = "ledger.journal_reversed"
	DocumentCreated      = "documents.created"
	DocumentTransitioned = "documents.transitioned"
	ApplicationApplied   = "applications.applied"
	ApplicationUnapplied = "applications.unapplied"
)

// Publisher fans domain events out to the asynq queue. It satisfies the
// EventPort of every service.
type Publisher struct {
	client *jobs.Client
	logger *slog.Logger
}

// NewPublisher constructs a Publisher. A nil client disables publishing,
// which tests and the worker process use.
func NewPublisher(client *jobs.Client, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

func (p *Publisher) publish(ctx context.Context, payload jobs.DomainEventPayload) {
	if p == nil || p.client == nil {
		return
	}
	if _, err := p.client.EnqueueDomainEvent(ctx, payload); err != nil && p.logger != nil {
		p.logger.Warn("event publish failed", "event", payload.Name, "error", err)
	}
}

// JournalPosted implements ledger.EventPort.
func (p *Publisher) JournalPosted(ctx context.Context, entry ledger.JournalEntry) {
	p.publish(ctx, jobs.DomainEventPayload{
		Name: JournalPosted,
		Meta: map[string]any{
			"entry_id":      entry.ID,
			"source_module": entry.SourceModule,
			"source_id":     entry.SourceID.String(),
			"date":          entry.Date.Format("2006-01-02"),
		},
	})
}

// JournalReversed implements ledger.EventPort.
func (p *Publisher) JournalReversed(ctx context.Context, original int64, reversal ledger.JournalEntry) {
	p.publish(ctx, jobs.DomainEventPayload{
		Name: JournalReversed,
		Meta: map[string]any{
			"original_entry_id": original,
			"reversal_entry_id": reversal.ID,
		},
	})
}

// DocumentCreated implements documents.EventPort.
func (p *Publisher) DocumentCreated(ctx context.Context, doc documents.Document) {
	p.publish(ctx, jobs.DomainEventPayload{
		Name: DocumentCreated,
		Meta: map[string]any{
			"document_id": doc.ID,
			"family":      doc.Family,
			"number":      doc.Number,
		},
	})
}

// DocumentTransitioned implements documents.EventPort.
func (p *Publisher) DocumentTransitioned(ctx context.Context, doc documents.Document, action documents.Action, entry *ledger.JournalEntry) {
	meta := map[string]any{
		"document_id": doc.ID,
		"family":      doc.Family,
		"number":      doc.Number,
		"action":      action,
		"status":      doc.Status,
	}
	if entry != nil {
		meta["journal_entry_id"] = entry.ID
	}
	p.publish(ctx, jobs.DomainEventPayload{Name: DocumentTransitioned, Meta: meta})
}

// Applied implements applications.EventPort.
func (p *Publisher) Applied(ctx context.Context, app applications.Application) {
	p.publish(ctx, jobs.DomainEventPayload{
		Name: ApplicationApplied,
		Meta: map[string]any{
			"application_id": app.ID,
			"source_id":      app.SourceID,
			"target_id":      app.TargetID,
			"amount":         int64(app.Amount),
		},
	})
}

// Unapplied implements applications.EventPort.
func (p *Publisher) Unapplied(ctx context.Context, app applications.Application) {
	p.publish(ctx, jobs.DomainEventPayload{
		Name: ApplicationUnapplied,
		Meta: map[string]any{
			"application_id": app.ID,
			"source_id":      app.SourceID,
			"target_id":      app.TargetID,
		},
	})
}
