package hubspot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-insights/internal/common/errors"
	"crm-insights/internal/credentials"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(server.URL, credentials.NewStaticProvider("test-token"), nil)
	return client, server
}

func TestGetByID(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/meetings/555", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "hs_meeting_title,hs_meeting_body", r.URL.Query().Get("properties"))
		assert.Equal(t, "contacts,deals", r.URL.Query().Get("associations"))

		_ = json.NewEncoder(w).Encode(Record{
			ID:         "555",
			Properties: map[string]string{"hs_meeting_title": "Kickoff"},
			Associations: map[string]AssociationResults{
				"contacts": {Results: []AssociationRef{{ID: "42", Type: "meeting_to_contact"}}},
			},
		})
	})
	defer server.Close()

	record, err := client.GetByID(context.Background(), "12345", ObjectTypeMeetings, "555",
		[]string{"hs_meeting_title", "hs_meeting_body"}, []string{"contacts", "deals"})
	require.NoError(t, err)
	assert.Equal(t, "Kickoff", record.Properties["hs_meeting_title"])
	assert.Equal(t, "42", record.Associations["contacts"].Results[0].ID)
}

func TestGetByID_NotFound(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"status":"error"}`, http.StatusNotFound)
	})
	defer server.Close()

	_, err := client.GetByID(context.Background(), "12345", ObjectTypeNotes, "1", nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	assert.False(t, errors.IsTransient(err))
}

func TestGetByID_RemoteErrorCarriesStatus(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})
	defer server.Close()

	_, err := client.GetByID(context.Background(), "12345", ObjectTypeNotes, "1", nil, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, errors.StatusCode(err))
	assert.True(t, errors.IsTransient(err))
}

func TestCreate_WithAssociations(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/crm/v3/objects/notes", r.URL.Path)

		var body struct {
			Properties   map[string]string `json:"properties"`
			Associations []AssociationSpec `json:"associations"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "summary body", body.Properties["hs_note_body"])
		require.Len(t, body.Associations, 1)
		assert.Equal(t, "555", body.Associations[0].To.ID)
		assert.Equal(t, AssociationTypeNoteToMeeting, body.Associations[0].Types[0].TypeID)
		assert.Equal(t, AssociationCategoryHubSpotDefined, body.Associations[0].Types[0].Category)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Record{ID: "900"})
	})
	defer server.Close()

	record, err := client.Create(context.Background(), "12345", ObjectTypeNotes,
		map[string]string{"hs_note_body": "summary body"},
		[]AssociationSpec{DefinedAssociation("555", AssociationTypeNoteToMeeting)})
	require.NoError(t, err)
	assert.Equal(t, "900", record.ID)
}

func TestAssociate(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/crm/v4/objects/notes/900/associations/default/contacts/42", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"COMPLETE"}`))
	})
	defer server.Close()

	err := client.Associate(context.Background(), "12345", ObjectTypeNotes, "900", ObjectTypeContacts, "42")
	assert.NoError(t, err)
}

func TestAssociationsGetAll(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v4/objects/meetings/555/associations/contacts", r.URL.Path)
		_, _ = w.Write([]byte(`{"results":[{"toObjectId":42},{"toObjectId":43}]}`))
	})
	defer server.Close()

	refs, err := client.AssociationsGetAll(context.Background(), "12345", ObjectTypeMeetings, "555", ObjectTypeContacts)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "42", refs[0].ID)
	assert.Equal(t, ObjectTypeContacts, refs[0].Type)
}

func TestOwners_FollowsPaging(t *testing.T) {
	var pages int
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/owners", r.URL.Path)
		pages++
		if r.URL.Query().Get("after") == "" {
			_, _ = w.Write([]byte(`{"results":[{"id":"1","email":"ann@example.com","userId":77}],"paging":{"next":{"after":"cursor-1"}}}`))
			return
		}
		assert.Equal(t, "cursor-1", r.URL.Query().Get("after"))
		_, _ = w.Write([]byte(`{"results":[{"id":"2","email":"bob@example.com","userId":78}]}`))
	})
	defer server.Close()

	owners, err := client.Owners(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	require.Len(t, owners, 2)
	assert.Equal(t, "ann@example.com", owners[0].Email)
	assert.Equal(t, int64(78), owners[1].UserID)
}

func TestDo_CredentialErrorShortCircuits(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, credentials.NewStaticProvider(""), nil)
	_, err := client.GetByID(context.Background(), "12345", ObjectTypeNotes, "1", nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeCredential))
	assert.False(t, called, "no request is made without a token")
}
