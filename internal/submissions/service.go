// Package submissions wraps the platform's forms-submission API for the
// dashboard: paginated listing, read-merge edits, and soft deletion. The
// submission field map is owned by the forms service and never structurally
// validated here.
package submissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/praxislabs/patientdesk/backend/internal/availability"
	"github.com/praxislabs/patientdesk/backend/internal/platform"
	"go.uber.org/zap"
)

const (
	// DefaultNamespace is the forms namespace holding patient registrations.
	DefaultNamespace = "forms/patient-intake"
	// DefaultFlexibilityField is the boolean form field marking a patient as
	// available at any time slot.
	DefaultFlexibilityField = "form_field_ab01"
	// DefaultSignatureField is the attachment field carrying the uploaded
	// signature. Edits must never touch it.
	DefaultSignatureField = "signature_3730"

	defaultPageSize   = 100
	defaultMaxResults = 300
)

var (
	errMissingFormsClient = errors.New("submissions: forms client is required")
	// ErrMissingSubmissionID indicates an operation without a submission id.
	ErrMissingSubmissionID = errors.New("submissions: submission id is required")
	// ErrMissingFormID indicates the stored submission lacks its owning form id.
	ErrMissingFormID = errors.New("submissions: formId is missing or empty")
	// ErrMissingRevision indicates the stored submission lacks the concurrency
	// revision required for updates.
	ErrMissingRevision = errors.New("submissions: revision is missing or empty")
)

// FormsAPI is the slice of the forms-submission contract the service uses.
type FormsAPI interface {
	QuerySubmissions(ctx context.Context, query platform.SubmissionQuery) (platform.SubmissionPage, error)
	GetSubmission(ctx context.Context, submissionID string) (platform.Submission, error)
	UpdateSubmission(ctx context.Context, submissionID string, update platform.SubmissionUpdate) (platform.Submission, error)
	DeleteSubmission(ctx context.Context, submissionID string, permanent bool) error
}

// ServiceConfig describes the dependencies of the submission service.
type ServiceConfig struct {
	Forms            FormsAPI
	Namespace        string
	PageSize         int
	MaxResults       int
	FlexibilityField string
	SignatureField   string
	WeekdayFields    []string
	Logger           *zap.Logger
}

// Service exposes the dashboard's submission operations.
type Service struct {
	forms            FormsAPI
	namespace        string
	pageSize         int
	maxResults       int
	flexibilityField string
	signatureField   string
	weekdayFields    []string
	logger           *zap.Logger
}

// NewService constructs the submission service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Forms == nil {
		return nil, errMissingFormsClient
	}
	service := &Service{
		forms:            cfg.Forms,
		namespace:        cfg.Namespace,
		pageSize:         cfg.PageSize,
		maxResults:       cfg.MaxResults,
		flexibilityField: cfg.FlexibilityField,
		signatureField:   cfg.SignatureField,
		weekdayFields:    cfg.WeekdayFields,
		logger:           cfg.Logger,
	}
	if service.namespace == "" {
		service.namespace = DefaultNamespace
	}
	if service.pageSize <= 0 {
		service.pageSize = defaultPageSize
	}
	if service.maxResults <= 0 {
		service.maxResults = defaultMaxResults
	}
	if service.flexibilityField == "" {
		service.flexibilityField = DefaultFlexibilityField
	}
	if service.signatureField == "" {
		service.signatureField = DefaultSignatureField
	}
	if len(service.weekdayFields) == 0 {
		service.weekdayFields = availability.WeekdayFields
	}
	if service.logger == nil {
		service.logger = zap.NewNop()
	}
	return service, nil
}

// List loads submissions newest-first with keyset pagination over createdDate,
// stopping at a short page or the configured result cap.
func (s *Service) List(ctx context.Context) ([]platform.Submission, error) {
	collected := make([]platform.Submission, 0, s.pageSize)
	query := platform.SubmissionQuery{Namespace: s.namespace, Limit: s.pageSize}
	for {
		page, err := s.forms.QuerySubmissions(ctx, query)
		if err != nil {
			s.logger.Error("submission listing failed", zap.Error(err))
			return nil, fmt.Errorf("submissions: list: %w", err)
		}
		collected = append(collected, page.Items...)
		if len(page.Items) < s.pageSize || len(collected) >= s.maxResults {
			break
		}
		last := page.Items[len(page.Items)-1]
		createdBefore := last.CreatedDate
		query.CreatedBefore = &createdBefore
	}
	return collected, nil
}

// Get fetches one submission by identifier.
func (s *Service) Get(ctx context.Context, submissionID string) (platform.Submission, error) {
	if submissionID == "" {
		return platform.Submission{}, ErrMissingSubmissionID
	}
	submission, err := s.forms.GetSubmission(ctx, submissionID)
	if err != nil {
		s.logger.Error("submission fetch failed", zap.String("submission_id", submissionID), zap.Error(err))
		return platform.Submission{}, fmt.Errorf("submissions: get %s: %w", submissionID, err)
	}
	return submission, nil
}

// DisplayFields returns a copy of the submission's field map with availability
// arrays converted to display format. A set flexibility flag selects the full
// canonical slot list for every weekday regardless of the stored arrays.
func (s *Service) DisplayFields(submission platform.Submission) map[string]interface{} {
	display := make(map[string]interface{}, len(submission.Fields))
	for key, value := range submission.Fields {
		display[key] = value
	}
	flexible := isTruthy(submission.Fields[s.flexibilityField])
	for _, field := range s.weekdayFields {
		display[field] = availability.EffectiveSlots(toStringSlice(display[field]), flexible)
	}
	return display
}

// Edit re-reads the latest revision, merges the changed fields over the
// existing map, and writes everything back under the fresh revision. Keys not
// part of the edit survive, and the signature attachment is carried through
// exactly as stored.
func (s *Service) Edit(ctx context.Context, submissionID string, changes map[string]interface{}) (platform.Submission, error) {
	if submissionID == "" {
		return platform.Submission{}, ErrMissingSubmissionID
	}
	latest, err := s.Get(ctx, submissionID)
	if err != nil {
		return platform.Submission{}, err
	}
	if latest.FormID == "" {
		return platform.Submission{}, ErrMissingFormID
	}
	if latest.Revision == "" {
		return platform.Submission{}, ErrMissingRevision
	}

	merged := make(map[string]interface{}, len(latest.Fields)+len(changes))
	for key, value := range latest.Fields {
		merged[key] = value
	}
	for key, value := range changes {
		if key == s.signatureField {
			continue
		}
		merged[key] = value
	}

	for _, field := range s.weekdayFields {
		if _, changed := changes[field]; changed {
			merged[field] = availability.ToStoredAll(toStringSlice(merged[field]))
		}
	}
	if isTruthy(merged[s.flexibilityField]) {
		for _, field := range s.weekdayFields {
			merged[field] = availability.FullStoredSlots()
		}
	}

	if stored, ok := latest.Fields[s.signatureField]; ok {
		merged[s.signatureField] = stored
	} else {
		delete(merged, s.signatureField)
	}

	updated, err := s.forms.UpdateSubmission(ctx, submissionID, platform.SubmissionUpdate{
		FormID:    latest.FormID,
		Revision:  latest.Revision,
		Namespace: s.namespace,
		Fields:    merged,
	})
	if err != nil {
		s.logger.Error("submission update failed",
			zap.String("submission_id", submissionID),
			zap.String("revision", latest.Revision),
			zap.Error(err))
		return platform.Submission{}, fmt.Errorf("submissions: edit %s: %w", submissionID, err)
	}
	return updated, nil
}

// Delete removes the submission; permanent=false is the soft delete the
// dashboard uses.
func (s *Service) Delete(ctx context.Context, submissionID string, permanent bool) error {
	if submissionID == "" {
		return ErrMissingSubmissionID
	}
	if err := s.forms.DeleteSubmission(ctx, submissionID, permanent); err != nil {
		s.logger.Error("submission delete failed",
			zap.String("submission_id", submissionID),
			zap.Bool("permanent", permanent),
			zap.Error(err))
		return fmt.Errorf("submissions: delete %s: %w", submissionID, err)
	}
	return nil
}

func isTruthy(value interface{}) bool {
	flag, ok := value.(bool)
	return ok && flag
}

// toStringSlice tolerates both decoded-JSON arrays and plain string values;
// legacy rows occasionally store a single token instead of an array.
func toStringSlice(value interface{}) []string {
	switch typed := value.(type) {
	case []string:
		return typed
	case []interface{}:
		values := make([]string, 0, len(typed))
		for _, member := range typed {
			if text, ok := member.(string); ok {
				values = append(values, text)
			}
		}
		return values
	case string:
		if typed == "" {
			return nil
		}
		return []string{typed}
	default:
		return nil
	}
}
