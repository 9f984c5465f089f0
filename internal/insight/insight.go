// Package insight defines the structured enrichment result produced from a
// meeting or note body, along with the strict schema validation applied
// before an insight may reach the writer or the cache. Invalid shapes are
// rejected whole; there is no partial acceptance.
package insight

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"

	"crm-insights/internal/common/errors"
)

// Priority levels the summarizer may assign to an action item.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

var validate = validator.New()

// ActionItem is a single follow-up extracted from the source record.
// The summarizer may emit a bare string, which normalizes to just a title.
type ActionItem struct {
	Title            string `json:"title" validate:"required"`
	OwnerEmail       string `json:"owner_email,omitempty" validate:"omitempty,email"`
	SuggestedDueDate string `json:"suggested_due_date,omitempty"`
	Priority         string `json:"priority,omitempty" validate:"omitempty,oneof=low normal high"`
}

// UnmarshalJSON accepts either a JSON object or a bare string title
func (a *ActionItem) UnmarshalJSON(data []byte) error {
	var title string
	if err := json.Unmarshal(data, &title); err == nil {
		*a = ActionItem{Title: title}
		return nil
	}

	type plain ActionItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = ActionItem(p)
	return nil
}

// Insight is the enrichment result. Summary is always non-empty after
// validation; the three lists are always present, defaulting to empty.
type Insight struct {
	Summary     string       `json:"summary" validate:"required"`
	Decisions   []string     `json:"decisions"`
	ActionItems []ActionItem `json:"action_items" validate:"dive"`
	NextSteps   []string     `json:"next_steps"`
}

// UnmarshalJSON normalizes the summarizer's looser output shape: summary may
// be a string or a list of bullet strings (joined by newlines), and omitted
// lists become empty.
func (i *Insight) UnmarshalJSON(data []byte) error {
	var raw struct {
		Summary     json.RawMessage `json:"summary"`
		Decisions   []string        `json:"decisions"`
		ActionItems []ActionItem    `json:"action_items"`
		NextSteps   []string        `json:"next_steps"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var summary string
	if len(raw.Summary) > 0 {
		if err := json.Unmarshal(raw.Summary, &summary); err != nil {
			var bullets []string
			if err := json.Unmarshal(raw.Summary, &bullets); err != nil {
				return errors.ValidationError("summary must be a string or a list of strings")
			}
			summary = strings.Join(bullets, "\n")
		}
	}

	*i = Insight{
		Summary:     summary,
		Decisions:   raw.Decisions,
		ActionItems: raw.ActionItems,
		NextSteps:   raw.NextSteps,
	}
	i.fillDefaults()
	return nil
}

func (i *Insight) fillDefaults() {
	if i.Decisions == nil {
		i.Decisions = []string{}
	}
	if i.ActionItems == nil {
		i.ActionItems = []ActionItem{}
	}
	if i.NextSteps == nil {
		i.NextSteps = []string{}
	}
}

// Validate checks the insight against the schema. A zero-length summary or a
// malformed action item rejects the whole insight.
func (i *Insight) Validate() error {
	i.fillDefaults()
	if strings.TrimSpace(i.Summary) == "" {
		return errors.ValidationError("summary must not be empty")
	}
	if err := validate.Struct(i); err != nil {
		return errors.ValidationError("insight failed schema validation: " + err.Error())
	}
	return nil
}

// Parse decodes and validates a summarizer response. The input must be a
// JSON object; anything else, or any schema violation, is a validation error.
func Parse(data []byte) (*Insight, error) {
	var ins Insight
	if err := json.Unmarshal(data, &ins); err != nil {
		return nil, errors.ValidationError("summarizer response is not valid JSON: " + err.Error())
	}
	if err := ins.Validate(); err != nil {
		return nil, err
	}
	return &ins, nil
}
