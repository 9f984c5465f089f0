// Package enrichment runs the per-event pipeline stage: fetch the source
// record, summarize its content, validate the result, and hand a write-back
// job to the writer. It runs on the dispatch queue's single consumer, so at
// most one enrichment is in flight at a time.
package enrichment

import (
	"context"
	"strconv"
	"strings"

	"crm-insights/internal/common/logging"
	"crm-insights/internal/credentials"
	"crm-insights/internal/events"
	"crm-insights/internal/hubspot"
	"crm-insights/internal/insight"
	"crm-insights/internal/insightcache"
	"crm-insights/internal/retry"
	"crm-insights/internal/summarizer"
	"crm-insights/internal/writeback"
)

// strictRetryPrefix is prepended to the content on the second summarizer
// attempt after a schema failure.
const strictRetryPrefix = "Return STRICT JSON only.\n\n"

// relatedTypes are the association lists fetched with the source record.
var relatedTypes = []string{
	hubspot.ObjectTypeContacts,
	hubspot.ObjectTypeDeals,
	hubspot.ObjectTypeCompanies,
}

// Enricher processes admitted events end to end.
type Enricher struct {
	provider   credentials.Provider
	crm        *hubspot.Client
	summarizer summarizer.Summarizer
	writer     *writeback.Writer
	insights   *insightcache.Cache
	retryCfg   retry.Config
	logger     logging.Logger
}

// New wires the enrichment stage.
func New(
	provider credentials.Provider,
	crm *hubspot.Client,
	sum summarizer.Summarizer,
	writer *writeback.Writer,
	insights *insightcache.Cache,
	logger logging.Logger,
) *Enricher {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Enricher{
		provider:   provider,
		crm:        crm,
		summarizer: sum,
		writer:     writer,
		insights:   insights,
		retryCfg:   retry.DefaultConfig(),
		logger:     logger,
	}
}

// Process runs one event through the pipeline. Every failure path drops the
// event after logging; nothing here returns an error because there is no
// caller positioned to handle one.
func (e *Enricher) Process(ctx context.Context, event *events.InboundEvent) {
	objectType := event.ObjectType()
	if objectType == "" {
		e.logger.Debug("Ignoring unhandled subscription",
			logging.Field{Key: "subscription_type", Value: event.SubscriptionType},
		)
		return
	}

	tenantID := event.TenantID()
	fields := []logging.Field{
		{Key: "tenant_id", Value: tenantID},
		{Key: "object_type", Value: objectType},
		{Key: "object_id", Value: event.ObjectID},
	}

	// No credentials means the tenant never installed the app or its
	// refresh is broken; either way this event cannot be served.
	if _, err := e.provider.AccessToken(ctx, tenantID); err != nil {
		e.logger.Debug("Skipping event for tenant without credentials", fields...)
		return
	}

	record, err := e.fetchRecord(ctx, tenantID, objectType, event)
	if err != nil {
		e.logger.Error("Failed to fetch source record", err, fields...)
		return
	}

	content := recordContent(objectType, record)
	if content == "" {
		e.logger.Debug("Source record has no content to summarize", fields...)
		return
	}

	ins, err := e.summarize(ctx, content)
	if err != nil {
		e.logger.Error("Abandoning event after summarizer failures", err, fields...)
		return
	}

	related := relatedRecords(record)
	if len(related) == 0 {
		related = e.lookupAssociations(ctx, tenantID, objectType, record.ID)
	}
	job := &writeback.Job{
		TenantID:   tenantID,
		PortalID:   event.PortalID,
		SourceType: objectType,
		SourceID:   record.ID,
		Insight:    ins,
		Related:    related,
	}
	e.resolveOwners(ctx, tenantID, record, job)

	if _, err := e.writer.Write(ctx, job); err != nil {
		e.logger.Error("Write-back failed", err, fields...)
	}

	for relatedType, ids := range related {
		for _, id := range ids {
			if err := e.insights.Put(ctx, relatedType, id, ins); err != nil {
				e.logger.Warn("Failed to cache insight",
					logging.Field{Key: "record_type", Value: relatedType},
					logging.Field{Key: "record_id", Value: id},
				)
			}
		}
	}

	e.logger.Info("Event enriched", fields...)
}

func (e *Enricher) fetchRecord(ctx context.Context, tenantID, objectType string, event *events.InboundEvent) (*hubspot.Record, error) {
	properties := []string{"hs_created_by_user_id"}
	switch objectType {
	case hubspot.ObjectTypeMeetings:
		properties = append(properties, "hs_meeting_title", "hs_meeting_body")
	case hubspot.ObjectTypeNotes:
		properties = append(properties, "hs_note_body")
	}

	return retry.DoValue(ctx, e.retryCfg, func() (*hubspot.Record, error) {
		return e.crm.GetByID(ctx, tenantID, objectType, event.ObjectIDString(), properties, relatedTypes)
	})
}

// summarize asks the model once, and once more with the strict prefix when
// the first response fails schema validation. A second failure abandons the
// event; there is no point burning more tokens on a model that will not
// produce the shape.
func (e *Enricher) summarize(ctx context.Context, content string) (*insight.Insight, error) {
	raw, err := e.summarizer.Summarize(ctx, content)
	if err != nil {
		return nil, err
	}
	ins, err := insight.Parse([]byte(raw))
	if err == nil {
		return ins, nil
	}

	e.logger.Warn("Summarizer output failed validation, retrying strictly",
		logging.Field{Key: "error", Value: err.Error()},
	)
	raw, err = e.summarizer.Summarize(ctx, strictRetryPrefix+content)
	if err != nil {
		return nil, err
	}
	return insight.Parse([]byte(raw))
}

// resolveOwners maps the record creator and any action-item owner emails to
// CRM owner ids. The roster read is best effort; without it tasks simply go
// unassigned.
func (e *Enricher) resolveOwners(ctx context.Context, tenantID string, record *hubspot.Record, job *writeback.Job) {
	owners, err := retry.DoValue(ctx, e.retryCfg, func() ([]hubspot.Owner, error) {
		return e.crm.Owners(ctx, tenantID)
	})
	if err != nil {
		e.logger.Warn("Failed to list owners, tasks will be unassigned",
			logging.Field{Key: "tenant_id", Value: tenantID},
		)
		return
	}

	byUserID := make(map[string]string, len(owners))
	byEmail := make(map[string]string, len(owners))
	for _, o := range owners {
		if o.UserID != 0 {
			byUserID[strconv.FormatInt(o.UserID, 10)] = o.ID
		}
		if o.Email != "" {
			byEmail[strings.ToLower(o.Email)] = o.ID
		}
	}

	if creator := record.Properties["hs_created_by_user_id"]; creator != "" {
		job.DefaultOwnerID = byUserID[creator]
	}

	job.ActionItemOwners = make([]string, len(job.Insight.ActionItems))
	for i, item := range job.Insight.ActionItems {
		if item.OwnerEmail != "" {
			job.ActionItemOwners[i] = byEmail[strings.ToLower(item.OwnerEmail)]
		}
	}
}

// lookupAssociations queries the association API directly when the record
// response carried no association lists. Best effort; a failed probe just
// leaves that type out.
func (e *Enricher) lookupAssociations(ctx context.Context, tenantID, objectType, objectID string) map[string][]string {
	related := make(map[string][]string)
	for _, relatedType := range relatedTypes {
		refs, err := retry.DoValue(ctx, e.retryCfg, func() ([]hubspot.AssociationRef, error) {
			return e.crm.AssociationsGetAll(ctx, tenantID, objectType, objectID, relatedType)
		})
		if err != nil {
			e.logger.Debug("Association lookup failed",
				logging.Field{Key: "object_id", Value: objectID},
				logging.Field{Key: "related_type", Value: relatedType},
			)
			continue
		}
		for _, ref := range refs {
			related[relatedType] = append(related[relatedType], ref.ID)
		}
	}
	return related
}

// recordContent builds the summarizer prompt from the fetched properties.
func recordContent(objectType string, record *hubspot.Record) string {
	switch objectType {
	case hubspot.ObjectTypeMeetings:
		title := strings.TrimSpace(record.Properties["hs_meeting_title"])
		body := strings.TrimSpace(record.Properties["hs_meeting_body"])
		if title == "" && body == "" {
			return ""
		}
		return "Title: " + title + "\nBody: " + body
	case hubspot.ObjectTypeNotes:
		body := strings.TrimSpace(record.Properties["hs_note_body"])
		if body == "" {
			return ""
		}
		return "Note: " + body
	}
	return ""
}

// relatedRecords flattens the association lists returned with the record.
func relatedRecords(record *hubspot.Record) map[string][]string {
	related := make(map[string][]string)
	for _, relatedType := range relatedTypes {
		results, ok := record.Associations[relatedType]
		if !ok {
			continue
		}
		seen := make(map[string]bool)
		for _, ref := range results.Results {
			if ref.ID == "" || seen[ref.ID] {
				continue
			}
			seen[ref.ID] = true
			related[relatedType] = append(related[relatedType], ref.ID)
		}
	}
	return related
}
