package writeback

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"crm-insights/internal/insight"
)

var renderTime = time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)

func TestRenderNoteBody_Full(t *testing.T) {
	ins := &insight.Insight{
		Summary:   "Quarterly review went well",
		Decisions: []string{"renew for 12 months"},
		ActionItems: []insight.ActionItem{
			{Title: "send contract", OwnerEmail: "ann@example.com", SuggestedDueDate: "2026-09-15", Priority: "high"},
			{Title: "book follow-up"},
		},
		NextSteps: []string{"schedule kickoff"},
	}

	body := RenderNoteBody(ins, []string{"https://app.hubspot.com/contacts/12345/tasks/1", ""}, renderTime)

	assert.True(t, strings.HasPrefix(body, "## Meeting Insights\n\n### Summary\nQuarterly review went well\n"))
	assert.Contains(t, body, "### Decisions\n- renew for 12 months\n")
	assert.Contains(t, body, "- [ ] send contract (owner: ann@example.com, due: 2026-09-15, priority: high) ([View task](https://app.hubspot.com/contacts/12345/tasks/1))")
	assert.Contains(t, body, "- [ ] book follow-up\n")
	assert.Contains(t, body, "### Next Steps\n- schedule kickoff\n")
	assert.True(t, strings.HasSuffix(body, "_Generated by Meeting Insights • 2026-08-31T10:30:00Z_"))
}

func TestRenderNoteBody_OmitsEmptySections(t *testing.T) {
	ins := &insight.Insight{Summary: "Short call"}
	body := RenderNoteBody(ins, nil, renderTime)

	assert.Contains(t, body, "### Summary")
	assert.NotContains(t, body, "### Decisions")
	assert.NotContains(t, body, "### Action Items")
	assert.NotContains(t, body, "### Next Steps")
}

func TestTaskURL(t *testing.T) {
	assert.Equal(t, "https://app.hubspot.com/contacts/12345/tasks/900", TaskURL(12345, "900"))
	assert.Equal(t, "", TaskURL(0, "900"))
	assert.Equal(t, "", TaskURL(12345, ""))
}
