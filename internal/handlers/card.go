package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"crm-insights/internal/common/logging"
	"crm-insights/internal/insightcache"
)

// cardMaxActions caps how many action items the card shows.
const cardMaxActions = 3

// CardHandler serves the CRM card read surface from the insight cache.
// It never recomputes; a record without a cached insight is a 404.
type CardHandler struct {
	insights *insightcache.Cache
	logger   logging.Logger
}

// NewCardHandler creates the card handler.
func NewCardHandler(insights *insightcache.Cache, logger logging.Logger) *CardHandler {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &CardHandler{insights: insights, logger: logger}
}

type cardResponse struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Actions     []string  `json:"actions"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ServeHTTP answers the platform's card fetch. The card iframe sends the
// record id as associatedObjectId, with the object type when it has one.
func (h *CardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	recordID := r.URL.Query().Get("associatedObjectId")
	if recordID == "" {
		recordID = r.URL.Query().Get("objectId")
	}
	if recordID == "" {
		http.Error(w, "missing object id", http.StatusBadRequest)
		return
	}

	var entry *insightcache.Entry
	var found bool
	if recordType := r.URL.Query().Get("associatedObjectType"); recordType != "" {
		entry, found = h.insights.Get(r.Context(), recordType, recordID)
	} else {
		entry, found = h.insights.Lookup(r.Context(), recordID)
	}
	if !found {
		http.Error(w, "no insight for record", http.StatusNotFound)
		return
	}

	resp := cardResponse{
		Title:       "Meeting Insights",
		Summary:     entry.Insight.Summary,
		Actions:     []string{},
		GeneratedAt: entry.StoredAt,
	}
	for i, item := range entry.Insight.ActionItems {
		if i == cardMaxActions {
			break
		}
		resp.Actions = append(resp.Actions, item.Title)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode card response", err)
	}
}
