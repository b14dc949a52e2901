package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrMissingSubmissionID indicates a submission call without an identifier.
	ErrMissingSubmissionID = errors.New("platform: submission id required")
	// ErrMissingFormID indicates an update payload without the owning form id.
	ErrMissingFormID = errors.New("platform: form id required for update")
	// ErrMissingRevision indicates an update payload without the optimistic
	// concurrency revision. The platform rejects stale revisions server-side.
	ErrMissingRevision = errors.New("platform: revision required for update")
)

// Submitter identifies who filed a submission, as reported by the platform.
type Submitter struct {
	ApplicationID string `json:"applicationId,omitempty"`
	MemberID      string `json:"memberId,omitempty"`
	VisitorID     string `json:"visitorId,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

// Submission is one form entry owned by the platform's forms service. Fields
// is an open mapping; this system never validates its structure.
type Submission struct {
	ID          string                 `json:"id"`
	FormID      string                 `json:"formId"`
	Namespace   string                 `json:"namespace"`
	Revision    string                 `json:"revision"`
	Status      string                 `json:"status"`
	Seen        bool                   `json:"seen"`
	Submitter   Submitter              `json:"submitter"`
	CreatedDate time.Time              `json:"createdDate"`
	UpdatedDate time.Time              `json:"updatedDate"`
	Fields      map[string]interface{} `json:"fields"`
}

// SubmissionQuery selects a page of submissions within one namespace, newest
// first. CreatedBefore implements keyset pagination over createdDate.
type SubmissionQuery struct {
	Namespace     string     `json:"namespace"`
	CreatedBefore *time.Time `json:"createdBefore,omitempty"`
	Limit         int        `json:"limit,omitempty"`
}

// SubmissionPage is one page of query results.
type SubmissionPage struct {
	Items      []Submission `json:"items"`
	TotalCount int          `json:"totalCount"`
}

// SubmissionUpdate is the write payload for UpdateSubmission. The platform
// replaces the whole field map, so callers must read-merge first.
type SubmissionUpdate struct {
	FormID    string                 `json:"formId"`
	Revision  string                 `json:"revision"`
	Namespace string                 `json:"namespace"`
	Fields    map[string]interface{} `json:"fields"`
}

// FormsClient talks to the platform's forms-submission API.
type FormsClient struct {
	client *resty.Client
}

// NewFormsClient constructs a forms-submission client.
func NewFormsClient(cfg ClientConfig) *FormsClient {
	return &FormsClient{client: newRestyClient(cfg)}
}

// QuerySubmissions returns one page of submissions for the namespace.
func (c *FormsClient) QuerySubmissions(ctx context.Context, query SubmissionQuery) (SubmissionPage, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&query).
		Post("/v1/submissions/query")
	if err != nil || resp.StatusCode() != http.StatusOK {
		return SubmissionPage{}, newUpstreamError("forms.query", resp, err)
	}
	var page SubmissionPage
	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return SubmissionPage{}, newUpstreamError("forms.query", nil, err)
	}
	return page, nil
}

// GetSubmission fetches a single submission by identifier.
func (c *FormsClient) GetSubmission(ctx context.Context, submissionID string) (Submission, error) {
	if submissionID == "" {
		return Submission{}, ErrMissingSubmissionID
	}
	resp, err := c.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/v1/submissions/%s", submissionID))
	if err != nil || resp.StatusCode() != http.StatusOK {
		return Submission{}, newUpstreamError("forms.get", resp, err)
	}
	var submission Submission
	if err := json.Unmarshal(resp.Body(), &submission); err != nil {
		return Submission{}, newUpstreamError("forms.get", nil, err)
	}
	return submission, nil
}

// UpdateSubmission writes the merged field map back under the supplied
// revision. A stale revision fails server-side.
func (c *FormsClient) UpdateSubmission(ctx context.Context, submissionID string, update SubmissionUpdate) (Submission, error) {
	if submissionID == "" {
		return Submission{}, ErrMissingSubmissionID
	}
	if update.FormID == "" {
		return Submission{}, ErrMissingFormID
	}
	if update.Revision == "" {
		return Submission{}, ErrMissingRevision
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&update).
		Put(fmt.Sprintf("/v1/submissions/%s", submissionID))
	if err != nil || resp.StatusCode() != http.StatusOK {
		return Submission{}, newUpstreamError("forms.update", resp, err)
	}
	var submission Submission
	if err := json.Unmarshal(resp.Body(), &submission); err != nil {
		return Submission{}, newUpstreamError("forms.update", nil, err)
	}
	return submission, nil
}

// DeleteSubmission removes a submission. The platform treats permanent=false
// as a soft delete (the record moves to its trash namespace).
func (c *FormsClient) DeleteSubmission(ctx context.Context, submissionID string, permanent bool) error {
	if submissionID == "" {
		return ErrMissingSubmissionID
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("permanent", strconv.FormatBool(permanent)).
		Delete(fmt.Sprintf("/v1/submissions/%s", submissionID))
	if err != nil || (resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent) {
		return newUpstreamError("forms.delete", resp, err)
	}
	return nil
}
