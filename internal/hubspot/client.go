// Package hubspot is a thin client for the CRM platform's object, association,
// and owner APIs. It resolves a bearer token per tenant, paces requests with a
// shared limiter, and surfaces non-2xx responses as remote errors carrying the
// upstream status so callers can classify them for retry.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"crm-insights/internal/common/errors"
	"crm-insights/internal/common/logging"
	"crm-insights/internal/credentials"
)

// CRM object types used by the pipeline.
const (
	ObjectTypeContacts  = "contacts"
	ObjectTypeDeals     = "deals"
	ObjectTypeCompanies = "companies"
	ObjectTypeMeetings  = "meetings"
	ObjectTypeNotes     = "notes"
	ObjectTypeTasks     = "tasks"
)

// AssociationTypeNoteToMeeting is the platform-defined association between a
// note and the meeting it annotates.
const AssociationTypeNoteToMeeting = 190

// AssociationCategoryHubSpotDefined marks platform-defined association types.
const AssociationCategoryHubSpotDefined = "HUBSPOT_DEFINED"

// Record is a CRM object with its requested properties and associations.
type Record struct {
	ID           string                        `json:"id"`
	Properties   map[string]string             `json:"properties"`
	Associations map[string]AssociationResults `json:"associations,omitempty"`
}

// AssociationResults holds one association list from a record response.
type AssociationResults struct {
	Results []AssociationRef `json:"results"`
}

// AssociationRef points at one associated object.
type AssociationRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// AssociationSpec attaches an object at creation time.
type AssociationSpec struct {
	To    AssociationTarget `json:"to"`
	Types []AssociationType `json:"types"`
}

// AssociationTarget identifies the object being associated.
type AssociationTarget struct {
	ID string `json:"id"`
}

// AssociationType names the association category and type id.
type AssociationType struct {
	Category string `json:"associationCategory"`
	TypeID   int    `json:"associationTypeId"`
}

// DefinedAssociation builds a platform-defined association spec.
func DefinedAssociation(toID string, typeID int) AssociationSpec {
	return AssociationSpec{
		To:    AssociationTarget{ID: toID},
		Types: []AssociationType{{Category: AssociationCategoryHubSpotDefined, TypeID: typeID}},
	}
}

// Owner is a CRM user who can own records.
type Owner struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	UserID    int64  `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Client calls the CRM platform on behalf of tenants.
type Client struct {
	baseURL    string
	provider   credentials.Provider
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logging.Logger
}

// NewClient creates a platform client. The limiter paces all tenants
// together, staying under the platform's burst guidance.
func NewClient(baseURL string, provider credentials.Provider, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		provider:   provider,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(9), 9),
		logger:     logger,
	}
}

// GetByID fetches one object with the given properties and association lists.
func (c *Client) GetByID(ctx context.Context, tenantID, objectType, objectID string, properties, associations []string) (*Record, error) {
	query := url.Values{}
	if len(properties) > 0 {
		query.Set("properties", strings.Join(properties, ","))
	}
	if len(associations) > 0 {
		query.Set("associations", strings.Join(associations, ","))
	}

	var record Record
	path := fmt.Sprintf("/crm/v3/objects/%s/%s", objectType, objectID)
	if err := c.do(ctx, tenantID, http.MethodGet, path, query, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create creates an object, optionally associating it in the same call.
func (c *Client) Create(ctx context.Context, tenantID, objectType string, properties map[string]string, associations []AssociationSpec) (*Record, error) {
	body := map[string]interface{}{"properties": properties}
	if len(associations) > 0 {
		body["associations"] = associations
	}

	var record Record
	path := fmt.Sprintf("/crm/v3/objects/%s", objectType)
	if err := c.do(ctx, tenantID, http.MethodPost, path, nil, body, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Update patches an object's properties.
func (c *Client) Update(ctx context.Context, tenantID, objectType, objectID string, properties map[string]string) (*Record, error) {
	var record Record
	path := fmt.Sprintf("/crm/v3/objects/%s/%s", objectType, objectID)
	body := map[string]interface{}{"properties": properties}
	if err := c.do(ctx, tenantID, http.MethodPatch, path, nil, body, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Associate links two objects with the platform's default association for
// the type pair.
func (c *Client) Associate(ctx context.Context, tenantID, fromType, fromID, toType, toID string) error {
	path := fmt.Sprintf("/crm/v4/objects/%s/%s/associations/default/%s/%s",
		fromType, fromID, toType, toID)
	return c.do(ctx, tenantID, http.MethodPut, path, nil, nil, nil)
}

// AssociationsGetAll lists the objects of toType associated with one object.
func (c *Client) AssociationsGetAll(ctx context.Context, tenantID, objectType, objectID, toType string) ([]AssociationRef, error) {
	var out struct {
		Results []struct {
			ToObjectID int64 `json:"toObjectId"`
		} `json:"results"`
	}
	path := fmt.Sprintf("/crm/v4/objects/%s/%s/associations/%s", objectType, objectID, toType)
	if err := c.do(ctx, tenantID, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}

	refs := make([]AssociationRef, 0, len(out.Results))
	for _, r := range out.Results {
		refs = append(refs, AssociationRef{ID: fmt.Sprintf("%d", r.ToObjectID), Type: toType})
	}
	return refs, nil
}

// Owners lists all record owners for the tenant, following pagination.
func (c *Client) Owners(ctx context.Context, tenantID string) ([]Owner, error) {
	var owners []Owner
	after := ""
	for {
		query := url.Values{}
		query.Set("limit", "100")
		if after != "" {
			query.Set("after", after)
		}

		var page struct {
			Results []Owner `json:"results"`
			Paging  *struct {
				Next struct {
					After string `json:"after"`
				} `json:"next"`
			} `json:"paging"`
		}
		if err := c.do(ctx, tenantID, http.MethodGet, "/crm/v3/owners", query, nil, &page); err != nil {
			return nil, err
		}

		owners = append(owners, page.Results...)
		if page.Paging == nil || page.Paging.Next.After == "" {
			return owners, nil
		}
		after = page.Paging.Next.After
	}
}

func (c *Client) do(ctx context.Context, tenantID, method, path string, query url.Values, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.InternalError("rate limiter wait cancelled", err)
	}

	token, err := c.provider.AccessToken(ctx, tenantID)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.InternalError("failed to encode request body", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return errors.InternalError("failed to create platform request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	operation := fmt.Sprintf("%s %s", method, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WrapRemoteError(operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.WrapRemoteError(operation, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return errors.NotFoundError(operation)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewRemoteError(operation, resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.InternalError("failed to decode platform response", err)
		}
	}
	return nil
}
