package writeback

import (
	"fmt"
	"strings"
	"time"

	"crm-insights/internal/insight"
)

// TaskURL builds the in-app deep link for a created task. Both ids are
// required; without them no link is rendered.
func TaskURL(portalID int64, taskID string) string {
	if portalID == 0 || taskID == "" {
		return ""
	}
	return fmt.Sprintf("https://app.hubspot.com/contacts/%d/tasks/%s", portalID, taskID)
}

// RenderNoteBody renders the insight as the markdown note body. taskURLs is
// parallel to the action items; empty entries render the item without a link.
// Empty sections are omitted entirely.
func RenderNoteBody(ins *insight.Insight, taskURLs []string, generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("## Meeting Insights\n\n")
	b.WriteString("### Summary\n")
	b.WriteString(ins.Summary)
	b.WriteString("\n")

	if len(ins.Decisions) > 0 {
		b.WriteString("\n### Decisions\n")
		for _, d := range ins.Decisions {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}

	if len(ins.ActionItems) > 0 {
		b.WriteString("\n### Action Items\n")
		for i, item := range ins.ActionItems {
			b.WriteString("- [ ] ")
			b.WriteString(item.Title)
			if meta := itemMeta(item); meta != "" {
				b.WriteString(" (" + meta + ")")
			}
			if i < len(taskURLs) && taskURLs[i] != "" {
				fmt.Fprintf(&b, " ([View task](%s))", taskURLs[i])
			}
			b.WriteString("\n")
		}
	}

	if len(ins.NextSteps) > 0 {
		b.WriteString("\n### Next Steps\n")
		for _, s := range ins.NextSteps {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	fmt.Fprintf(&b, "\n_Generated by Meeting Insights • %s_",
		generatedAt.UTC().Format(time.RFC3339))
	return b.String()
}

func itemMeta(item insight.ActionItem) string {
	var parts []string
	if item.OwnerEmail != "" {
		parts = append(parts, "owner: "+item.OwnerEmail)
	}
	if item.SuggestedDueDate != "" {
		parts = append(parts, "due: "+item.SuggestedDueDate)
	}
	if item.Priority != "" {
		parts = append(parts, "priority: "+item.Priority)
	}
	return strings.Join(parts, ", ")
}
