package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/praxislabs/patientdesk/backend/internal/auth"
	"github.com/praxislabs/patientdesk/backend/internal/labels"
	"github.com/praxislabs/patientdesk/backend/internal/notes"
	"github.com/praxislabs/patientdesk/backend/internal/platform"
	"github.com/praxislabs/patientdesk/backend/internal/signatures"
	"github.com/praxislabs/patientdesk/backend/internal/submissions"
)

const testBearerToken = "good-token"

type stubSessionValidator struct {
	claims auth.SessionClaims
	err    error
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	return s.claims, s.err
}

type stubBackendTokenManager struct {
	issued      string
	issueErr    error
	validateErr error
}

func (s stubBackendTokenManager) IssueBackendToken(context.Context, auth.SessionClaims) (string, int64, error) {
	if s.issueErr != nil {
		return "", 0, s.issueErr
	}
	return s.issued, 1800, nil
}

func (s stubBackendTokenManager) ValidateToken(token string) (string, error) {
	if s.validateErr != nil {
		return "", s.validateErr
	}
	if token != testBearerToken {
		return "", errors.New("unknown token")
	}
	return "staff-1", nil
}

type stubStaffResolver struct {
	staffID string
	err     error
}

func (s stubStaffResolver) ResolveStaffID(auth.SessionClaims) (string, error) {
	return s.staffID, s.err
}

// memoryStore is an in-memory collection store shared by the handler tests.
type memoryStore struct {
	items   map[string][]platform.Item
	nextID  int
	failure error
	queries int
}

func (m *memoryStore) Query(_ context.Context, req platform.QueryRequest) (platform.QueryResult, error) {
	m.queries++
	if m.failure != nil {
		return platform.QueryResult{}, m.failure
	}
	matched := make([]platform.Item, 0)
	for _, item := range m.items[req.Collection] {
		if matchesFilters(item, req.Filters) {
			matched = append(matched, item)
			if req.Limit > 0 && len(matched) >= req.Limit {
				break
			}
		}
	}
	return platform.QueryResult{Items: matched, TotalCount: len(matched)}, nil
}

func matchesFilters(item platform.Item, filters []platform.Filter) bool {
	for _, filter := range filters {
		switch filter.Op {
		case platform.FilterOpEq:
			if item[filter.Field] != filter.Value {
				return false
			}
		case platform.FilterOpHasSome:
			values, _ := filter.Value.([]string)
			found := false
			for _, candidate := range values {
				if item.String(filter.Field) == candidate {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (m *memoryStore) Insert(_ context.Context, collection string, item platform.Item) (platform.Item, error) {
	if m.failure != nil {
		return nil, m.failure
	}
	if m.items == nil {
		m.items = make(map[string][]platform.Item)
	}
	m.nextID++
	stored := make(platform.Item, len(item)+1)
	for key, value := range item {
		stored[key] = value
	}
	stored[platform.ItemFieldID] = fmt.Sprintf("item-%d", m.nextID)
	m.items[collection] = append(m.items[collection], stored)
	return stored, nil
}

func (m *memoryStore) Update(_ context.Context, collection string, item platform.Item) (platform.Item, error) {
	if m.failure != nil {
		return nil, m.failure
	}
	for i, existing := range m.items[collection] {
		if existing.ID() == item.ID() {
			m.items[collection][i] = item
			return item, nil
		}
	}
	return nil, errors.New("memory store: item not found")
}

type fakeFormsAPI struct {
	submissions map[string]platform.Submission
	pages       []platform.SubmissionPage
	pageIndex   int
	updated     *platform.SubmissionUpdate
	deletedID   string
	permanent   bool
	failure     error
}

func (f *fakeFormsAPI) QuerySubmissions(context.Context, platform.SubmissionQuery) (platform.SubmissionPage, error) {
	if f.failure != nil {
		return platform.SubmissionPage{}, f.failure
	}
	if f.pageIndex >= len(f.pages) {
		return platform.SubmissionPage{}, nil
	}
	page := f.pages[f.pageIndex]
	f.pageIndex++
	return page, nil
}

func (f *fakeFormsAPI) GetSubmission(_ context.Context, submissionID string) (platform.Submission, error) {
	if f.failure != nil {
		return platform.Submission{}, f.failure
	}
	submission, ok := f.submissions[submissionID]
	if !ok {
		return platform.Submission{}, errors.New("fake forms: not found")
	}
	return submission, nil
}

func (f *fakeFormsAPI) UpdateSubmission(_ context.Context, submissionID string, update platform.SubmissionUpdate) (platform.Submission, error) {
	if f.failure != nil {
		return platform.Submission{}, f.failure
	}
	f.updated = &update
	submission := f.submissions[submissionID]
	submission.Fields = update.Fields
	f.submissions[submissionID] = submission
	return submission, nil
}

func (f *fakeFormsAPI) DeleteSubmission(_ context.Context, submissionID string, permanent bool) error {
	if f.failure != nil {
		return f.failure
	}
	f.deletedID = submissionID
	f.permanent = permanent
	return nil
}

type fakeFilesAPI struct {
	elevatedURL string
	elevatedErr error
	fallbackURL string
	fallbackErr error
}

func (f *fakeFilesAPI) GenerateDownloadURL(_ context.Context, _ string, elevated bool) (string, error) {
	if elevated {
		return f.elevatedURL, f.elevatedErr
	}
	return f.fallbackURL, f.fallbackErr
}

type routerFixture struct {
	handler http.Handler
	store   *memoryStore
	forms   *fakeFormsAPI
	files   *fakeFilesAPI
}

func newTestRouter(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &memoryStore{}
	forms := &fakeFormsAPI{submissions: map[string]platform.Submission{}}
	files := &fakeFilesAPI{}

	labelsService, err := labels.NewService(labels.ServiceConfig{Data: store})
	if err != nil {
		t.Fatalf("failed to build labels service: %v", err)
	}
	notesStore, err := notes.NewStore(notes.StoreConfig{Data: store})
	if err != nil {
		t.Fatalf("failed to build notes store: %v", err)
	}
	submissionsService, err := submissions.NewService(submissions.ServiceConfig{Forms: forms})
	if err != nil {
		t.Fatalf("failed to build submissions service: %v", err)
	}
	signaturesService, err := signatures.NewService(signatures.ServiceConfig{
		Files:      files,
		Data:       store,
		HTTPClient: resty.New(),
	})
	if err != nil {
		t.Fatalf("failed to build signatures service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator: stubSessionValidator{claims: auth.SessionClaims{UserID: "platform:staff-1"}},
		TokenManager:     stubBackendTokenManager{issued: "issued-token"},
		StaffResolver:    stubStaffResolver{staffID: "staff-1"},
		Submissions:      submissionsService,
		Notes:            notesStore,
		Labels:           labelsService,
		Signatures:       signaturesService,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &routerFixture{handler: handler, store: store, forms: forms, files: files}
}

func (f *routerFixture) doAuthorized(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, body)
	request.Header.Set("Authorization", "Bearer "+testBearerToken)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder, data interface{}) responseEnvelope {
	t.Helper()
	envelope := responseEnvelope{Data: data}
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return envelope
}
