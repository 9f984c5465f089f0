// Package handlers wires the HTTP surface: webhook ingestion, the OAuth
// install flow, the CRM card read endpoint, and health.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"crm-insights/internal/common/logging"
	"crm-insights/internal/dispatch"
	"crm-insights/internal/enrichment"
	"crm-insights/internal/events"
	"crm-insights/internal/signature"
)

// maxWebhookBody caps how much of a webhook request is read.
const maxWebhookBody = 4 << 20

// WebhookHandler ingests webhook batches: verify, dedup, enqueue, ack.
type WebhookHandler struct {
	verifier *signature.Verifier
	gate     *events.Gate
	queue    *dispatch.Queue
	enricher *enrichment.Enricher
	logger   logging.Logger
}

// NewWebhookHandler creates the ingestion handler.
func NewWebhookHandler(
	verifier *signature.Verifier,
	gate *events.Gate,
	queue *dispatch.Queue,
	enricher *enrichment.Enricher,
	logger logging.Logger,
) *WebhookHandler {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &WebhookHandler{
		verifier: verifier,
		gate:     gate,
		queue:    queue,
		enricher: enricher,
		logger:   logger,
	}
}

// ServeHTTP handles POSTed webhook batches. The signature is checked over
// the raw body before anything is parsed; a bad signature rejects the whole
// batch with 401. Admitted events are queued and the batch is acknowledged
// immediately so the platform never waits on enrichment.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !h.verifier.VerifyRequest(r, rawBody) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	// An authentic batch is always acknowledged with 200; a non-2xx here
	// would make the platform retry and eventually disable the
	// subscription. A body that is not an event array is dropped.
	var batch []events.InboundEvent
	if err := json.Unmarshal(rawBody, &batch); err != nil {
		h.logger.Warn("Dropping webhook body that is not an event array",
			logging.Field{Key: "error", Value: err.Error()},
		)
		batch = nil
	}

	admitted := 0
	for i := range batch {
		event := batch[i]
		if !h.gate.Admit(r.Context(), &event) {
			continue
		}
		if h.queue.Enqueue(func(ctx context.Context) {
			h.enricher.Process(ctx, &event)
		}) {
			admitted++
		} else {
			// the job was shed, so give a future redelivery its chance
			h.gate.Release(r.Context(), &event)
		}
	}

	h.logger.Info("Webhook batch accepted",
		logging.Field{Key: "events", Value: len(batch)},
		logging.Field{Key: "admitted", Value: admitted},
	)

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
