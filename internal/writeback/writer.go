// Package writeback materializes a validated insight in the CRM: one summary
// note attached to the source record, plus a task per action item. Each
// mutation is best effort; a failure is logged and the rest proceed, so a
// partially written insight is possible but never blocks the pipeline.
package writeback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm-insights/internal/common/logging"
	"crm-insights/internal/hubspot"
	"crm-insights/internal/insight"
)

// Task status and priority values the platform expects.
const (
	TaskStatusWaiting  = "WAITING"
	TaskPriorityLow    = "LOW"
	TaskPriorityMedium = "MEDIUM"
	TaskPriorityHigh   = "HIGH"
)

// Job carries everything the writer needs for one insight.
type Job struct {
	TenantID   string
	PortalID   int64
	SourceType string
	SourceID   string
	Insight    *insight.Insight
	// DefaultOwnerID is the owner for tasks whose action item names nobody.
	DefaultOwnerID string
	// ActionItemOwners is parallel to the insight's action items; empty
	// entries fall back to DefaultOwnerID.
	ActionItemOwners []string
	// Related lists associated record ids by type (contacts, deals, companies).
	Related map[string][]string
}

func (j *Job) ownerFor(i int) string {
	if i < len(j.ActionItemOwners) && j.ActionItemOwners[i] != "" {
		return j.ActionItemOwners[i]
	}
	return j.DefaultOwnerID
}

// Result reports what the writer managed to create.
type Result struct {
	NoteID  string
	TaskIDs []string
}

// Writer turns jobs into CRM mutations.
type Writer struct {
	crm    *hubspot.Client
	logger logging.Logger
	now    func() time.Time
}

// NewWriter creates a writer over the platform client.
func NewWriter(crm *hubspot.Client, logger logging.Logger) *Writer {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Writer{crm: crm, logger: logger, now: time.Now}
}

// Write creates the tasks first so the note can link to them, then the note,
// then the associations. It returns what was created; an error is returned
// only when nothing could be written at all.
func (w *Writer) Write(ctx context.Context, job *Job) (*Result, error) {
	result := &Result{}
	taskURLs := make([]string, len(job.Insight.ActionItems))

	for i, item := range job.Insight.ActionItems {
		taskID := w.createTask(ctx, job, i, item)
		if taskID == "" {
			continue
		}
		result.TaskIDs = append(result.TaskIDs, taskID)
		taskURLs[i] = TaskURL(job.PortalID, taskID)
	}

	noteID := w.createNote(ctx, job, taskURLs)
	result.NoteID = noteID
	if noteID == "" && len(result.TaskIDs) == 0 {
		return result, fmt.Errorf("write-back produced nothing for %s %s", job.SourceType, job.SourceID)
	}

	if noteID != "" {
		w.associateNote(ctx, job, noteID)
	}
	for _, taskID := range result.TaskIDs {
		w.associateTask(ctx, job, taskID)
	}
	return result, nil
}

func (w *Writer) createTask(ctx context.Context, job *Job, index int, item insight.ActionItem) string {
	properties := map[string]string{
		"hs_task_subject":  item.Title,
		"hs_task_status":   TaskStatusWaiting,
		"hs_task_priority": taskPriority(item.Priority),
		"hs_timestamp":     dueTimestamp(item.SuggestedDueDate, w.now()),
	}
	if body := taskBody(item); body != "" {
		properties["hs_task_body"] = body
	}
	if owner := job.ownerFor(index); owner != "" {
		properties["hubspot_owner_id"] = owner
	}

	record, err := w.crm.Create(ctx, job.TenantID, hubspot.ObjectTypeTasks, properties, nil)
	if err != nil {
		w.logger.Error("Failed to create task", err,
			logging.Field{Key: "source_id", Value: job.SourceID},
			logging.Field{Key: "title", Value: item.Title},
		)
		return ""
	}
	return record.ID
}

func taskBody(item insight.ActionItem) string {
	var parts []string
	if item.OwnerEmail != "" {
		parts = append(parts, "Suggested owner: "+item.OwnerEmail)
	}
	if item.SuggestedDueDate != "" {
		parts = append(parts, "Suggested due date: "+item.SuggestedDueDate)
	}
	return strings.Join(parts, "\n")
}

// taskPriority maps insight priorities onto the platform's scale. Anything
// unrecognized lands in the middle.
func taskPriority(priority string) string {
	switch priority {
	case insight.PriorityLow:
		return TaskPriorityLow
	case insight.PriorityHigh:
		return TaskPriorityHigh
	}
	return TaskPriorityMedium
}

// dueTimestamp converts a suggested YYYY-MM-DD date to epoch milliseconds,
// falling back to one business-ish day out when absent or unparseable.
func dueTimestamp(suggested string, now time.Time) string {
	if suggested != "" {
		if due, err := time.Parse("2006-01-02", suggested); err == nil {
			return fmt.Sprintf("%d", due.UnixMilli())
		}
	}
	return fmt.Sprintf("%d", now.Add(24*time.Hour).UnixMilli())
}

func (w *Writer) createNote(ctx context.Context, job *Job, taskURLs []string) string {
	properties := map[string]string{
		"hs_note_body": RenderNoteBody(job.Insight, taskURLs, w.now()),
		"hs_timestamp": fmt.Sprintf("%d", w.now().UnixMilli()),
	}

	// A meeting source gets the platform-defined note association in the
	// create call; other sources are linked afterwards.
	var specs []hubspot.AssociationSpec
	if job.SourceType == hubspot.ObjectTypeMeetings {
		specs = append(specs, hubspot.DefinedAssociation(job.SourceID, hubspot.AssociationTypeNoteToMeeting))
	}

	record, err := w.crm.Create(ctx, job.TenantID, hubspot.ObjectTypeNotes, properties, specs)
	if err != nil {
		w.logger.Error("Failed to create summary note", err,
			logging.Field{Key: "source_type", Value: job.SourceType},
			logging.Field{Key: "source_id", Value: job.SourceID},
		)
		return ""
	}
	return record.ID
}

func (w *Writer) associateNote(ctx context.Context, job *Job, noteID string) {
	if job.SourceType != hubspot.ObjectTypeMeetings {
		w.associate(ctx, job, hubspot.ObjectTypeNotes, noteID, job.SourceType, job.SourceID)
	}
	for relatedType, ids := range job.Related {
		for _, id := range ids {
			w.associate(ctx, job, hubspot.ObjectTypeNotes, noteID, relatedType, id)
		}
	}
}

func (w *Writer) associateTask(ctx context.Context, job *Job, taskID string) {
	w.associate(ctx, job, hubspot.ObjectTypeTasks, taskID, job.SourceType, job.SourceID)
	for relatedType, ids := range job.Related {
		for _, id := range ids {
			w.associate(ctx, job, hubspot.ObjectTypeTasks, taskID, relatedType, id)
		}
	}
}

func (w *Writer) associate(ctx context.Context, job *Job, fromType, fromID, toType, toID string) {
	if err := w.crm.Associate(ctx, job.TenantID, fromType, fromID, toType, toID); err != nil {
		w.logger.Error("Failed to associate records", err,
			logging.Field{Key: "from", Value: fromType + "/" + fromID},
			logging.Field{Key: "to", Value: toType + "/" + toID},
		)
	}
}
