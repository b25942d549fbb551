package router

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/langrelay/langrelay/internal/dedup"
	"github.com/langrelay/langrelay/internal/models"
	"github.com/langrelay/langrelay/internal/store"
)

// Pipeline runs one webhook delivery through dedup, classification and
// routing. Messages inside a batch are processed sequentially in provider
// order; concurrent deliveries are safe because each stage guards its own
// state.
type Pipeline struct {
	dedup      *dedup.Deduplicator
	classifier *Classifier
	router     *Router
	journal    store.Store
}

// NewPipeline wires the pipeline stages together. The journal store may be
// the same Store the router uses; journal writes are best-effort and never
// affect the novelty decision.
func NewPipeline(d *dedup.Deduplicator, c *Classifier, r *Router, journal store.Store) *Pipeline {
	return &Pipeline{dedup: d, classifier: c, router: r, journal: journal}
}

// HandleDelivery processes one webhook delivery batch. It never returns an
// error: a delivery is acknowledged regardless of processing outcome, so
// failures are logged and swallowed here.
func (p *Pipeline) HandleDelivery(ctx context.Context, payload models.WebhookPayload) {
	deliveryID := uuid.NewString()
	var seen, routed int
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, raw := range change.Value.Messages {
				seen++
				if p.processMessage(ctx, deliveryID, raw) {
					routed++
				}
			}
			if n := len(change.Value.Statuses); n > 0 {
				slog.Debug("Pipeline.HandleDelivery: ignoring statuses", "deliveryID", deliveryID, "count", n)
			}
		}
	}
	slog.Info("Pipeline.HandleDelivery: delivery processed", "deliveryID", deliveryID, "messages", seen, "routed", routed)
}

// processMessage runs one raw message through the pipeline. Returns true when
// the message was new and reached the router.
func (p *Pipeline) processMessage(ctx context.Context, deliveryID string, raw models.InboundMessage) bool {
	if !p.dedup.Accept(raw.ID) {
		slog.Debug("Pipeline.processMessage: duplicate dropped", "deliveryID", deliveryID, "messageID", raw.ID)
		return false
	}
	if p.journal != nil {
		if err := p.journal.RecordInbound(raw.ID, raw.From); err != nil {
			slog.Warn("Pipeline.processMessage: journal write failed", "deliveryID", deliveryID, "messageID", raw.ID, "error", err)
		}
	}

	unit := p.classifier.Classify(raw)
	if !unit.Kind.IsActionable() {
		slog.Debug("Pipeline.processMessage: not actionable", "deliveryID", deliveryID, "messageID", raw.ID, "kind", unit.Kind)
		return false
	}

	if err := p.router.Route(ctx, unit); err != nil {
		slog.Error("Pipeline.processMessage: routing failed",
			"deliveryID", deliveryID, "messageID", raw.ID, "sender", unit.Sender, "kind", unit.Kind, "error", err)
		return false
	}

	if p.journal != nil {
		if err := p.journal.MarkProcessed(raw.ID); err != nil {
			slog.Warn("Pipeline.processMessage: journal update failed", "deliveryID", deliveryID, "messageID", raw.ID, "error", err)
		}
	}
	return true
}
