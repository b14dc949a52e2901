package labels

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/praxislabs/patientdesk/backend/internal/notes"
	"github.com/praxislabs/patientdesk/backend/internal/platform"
	"go.uber.org/zap"
)

// The dashboard reads at most this many rows from either collection when
// building the union of known labels.
const listScanLimit = 1000

var (
	errMissingDataStore = errors.New("labels: data store is required")
	// ErrEmailRequired indicates a label assignment without a usable email.
	ErrEmailRequired = errors.New("labels: email is required for label assignment")
	// ErrLabelNameRequired indicates a blank label name.
	ErrLabelNameRequired = errors.New("labels: label name is required")
	// ErrSubmissionIDRequired indicates a legacy-path call without a submission id.
	ErrSubmissionIDRequired = errors.New("labels: submission id is required")
	// ErrNoTagsToRemove indicates a removal call with an empty tag list.
	ErrNoTagsToRemove = errors.New("labels: tags to remove are required")
)

// ServiceError tags a failure with a dotted operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opListAll = "labels.list_all"
	opAssign  = "labels.assign"
	opByEmail = "labels.by_email"
	opBatch   = "labels.batch_by_emails"
	opLegacy  = "labels.legacy_by_submission"
	opRemove  = "labels.remove_from_submission"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// DataStore is the slice of the collection-store contract the label service
// uses. Both the Labels and Notes collections go through it.
type DataStore interface {
	Query(ctx context.Context, req platform.QueryRequest) (platform.QueryResult, error)
	Insert(ctx context.Context, collection string, item platform.Item) (platform.Item, error)
	Update(ctx context.Context, collection string, item platform.Item) (platform.Item, error)
}

// ServiceConfig describes the dependencies of the label service.
type ServiceConfig struct {
	Data             DataStore
	LabelsCollection string
	NotesCollection  string
	Logger           *zap.Logger
}

// Service resolves and mutates patient labels across both storage shapes.
type Service struct {
	data             DataStore
	labelsCollection string
	notesCollection  string
	logger           *zap.Logger
}

// NewService constructs the label service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Data == nil {
		return nil, newServiceError("labels.service.new", "missing_data_store", errMissingDataStore)
	}
	labelsCollection := cfg.LabelsCollection
	if labelsCollection == "" {
		labelsCollection = DefaultCollection
	}
	notesCollection := cfg.NotesCollection
	if notesCollection == "" {
		notesCollection = notes.DefaultCollection
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		data:             cfg.Data,
		labelsCollection: labelsCollection,
		notesCollection:  notesCollection,
		logger:           logger,
	}, nil
}

// ListAll returns the deduplicated union of every trimmed, non-empty tag found
// in either collection, sorted for a stable wire order.
func (s *Service) ListAll(ctx context.Context) ([]Label, error) {
	noteRows, err := s.data.Query(ctx, platform.QueryRequest{Collection: s.notesCollection, Limit: listScanLimit})
	if err != nil {
		s.logError(opListAll, "notes_query_failed", err)
		return nil, newServiceError(opListAll, "notes_query_failed", err)
	}
	labelRows, err := s.data.Query(ctx, platform.QueryRequest{Collection: s.labelsCollection, Limit: listScanLimit})
	if err != nil {
		s.logError(opListAll, "labels_query_failed", err)
		return nil, newServiceError(opListAll, "labels_query_failed", err)
	}

	seen := make(map[string]struct{})
	collect := func(items []platform.Item, field string) {
		for _, item := range items {
			for _, tag := range item.StringSlice(field) {
				trimmed := strings.TrimSpace(tag)
				if trimmed == "" {
					continue
				}
				seen[trimmed] = struct{}{}
			}
		}
	}
	collect(noteRows.Items, notes.FieldLabelTags)
	collect(labelRows.Items, FieldLabelTags)

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	listed := make([]Label, 0, len(keys))
	for _, key := range keys {
		listed = append(listed, Label{Key: key, DisplayName: key, Type: LabelTypeUserDefined})
	}
	return listed, nil
}

// AssignRequest carries one label assignment for an email.
type AssignRequest struct {
	SubmissionID string
	Email        string
	Name         string
	Tags         []string
}

// Assign replaces the tag set stored for the email. The write is a full
// replace with last-write-wins semantics: concurrent assignments for the same
// email race, and the later write keeps the whole record.
func (s *Service) Assign(ctx context.Context, req AssignRequest) (Record, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return Record{}, newServiceError(opAssign, "missing_email", ErrEmailRequired)
	}

	existing, err := s.data.Query(ctx, platform.QueryRequest{
		Collection: s.labelsCollection,
		Filters:    []platform.Filter{platform.Eq(FieldEmail, email)},
		Limit:      1,
	})
	if err != nil {
		s.logError(opAssign, "lookup_failed", err, zap.String("email", email))
		return Record{}, newServiceError(opAssign, "lookup_failed", err)
	}

	item := platform.Item{
		FieldEmail:     email,
		FieldLabelTags: req.Tags,
	}

	var stored platform.Item
	if len(existing.Items) > 0 {
		item[platform.ItemFieldID] = existing.Items[0].ID()
		stored, err = s.data.Update(ctx, s.labelsCollection, item)
	} else {
		stored, err = s.data.Insert(ctx, s.labelsCollection, item)
	}
	if err != nil {
		s.logError(opAssign, "write_failed", err,
			zap.String("email", email),
			zap.String("submission_id", req.SubmissionID))
		return Record{}, newServiceError(opAssign, "write_failed", err)
	}
	return recordFromItem(stored), nil
}

// ByEmail returns the tags stored for the email. An empty email is an empty
// result, not an error.
func (s *Service) ByEmail(ctx context.Context, email string) ([]string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return []string{}, nil
	}
	result, err := s.data.Query(ctx, platform.QueryRequest{
		Collection: s.labelsCollection,
		Filters:    []platform.Filter{platform.Eq(FieldEmail, trimmed)},
		Limit:      1,
	})
	if err != nil {
		s.logError(opByEmail, "lookup_failed", err, zap.String("email", trimmed))
		return nil, newServiceError(opByEmail, "lookup_failed", err)
	}
	if len(result.Items) == 0 {
		return []string{}, nil
	}
	tags := result.Items[0].StringSlice(FieldLabelTags)
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

// BatchByEmails resolves tags for many emails in one collection query. Every
// requested email appears as a key in the result, with an empty list when no
// record exists.
func (s *Service) BatchByEmails(ctx context.Context, emails []string) (map[string][]string, error) {
	valid := make([]string, 0, len(emails))
	for _, email := range emails {
		trimmed := strings.TrimSpace(email)
		if trimmed != "" {
			valid = append(valid, trimmed)
		}
	}
	resolved := make(map[string][]string, len(valid))
	if len(valid) == 0 {
		return resolved, nil
	}
	for _, email := range valid {
		resolved[email] = []string{}
	}

	result, err := s.data.Query(ctx, platform.QueryRequest{
		Collection: s.labelsCollection,
		Filters:    []platform.Filter{platform.HasSome(FieldEmail, valid)},
		Limit:      listScanLimit,
	})
	if err != nil {
		s.logError(opBatch, "query_failed", err, zap.Int("email_count", len(valid)))
		return nil, newServiceError(opBatch, "query_failed", err)
	}
	for _, item := range result.Items {
		email := item.String(FieldEmail)
		if email == "" {
			continue
		}
		resolved[email] = item.StringSlice(FieldLabelTags)
	}
	return resolved, nil
}

// LegacyBySubmission returns the deprecated per-submission tags from the note
// row. These do not propagate across submissions.
func (s *Service) LegacyBySubmission(ctx context.Context, submissionID string) ([]string, error) {
	if strings.TrimSpace(submissionID) == "" {
		return nil, newServiceError(opLegacy, "missing_submission_id", ErrSubmissionIDRequired)
	}
	result, err := s.data.Query(ctx, platform.QueryRequest{
		Collection: s.notesCollection,
		Filters:    []platform.Filter{platform.Eq(notes.FieldSubmissionID, submissionID)},
		Limit:      1,
	})
	if err != nil {
		s.logError(opLegacy, "lookup_failed", err, zap.String("submission_id", submissionID))
		return nil, newServiceError(opLegacy, "lookup_failed", err)
	}
	if len(result.Items) == 0 {
		return []string{}, nil
	}
	tags := result.Items[0].StringSlice(notes.FieldLabelTags)
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

// Create validates a label name and returns the label value. Nothing is
// persisted: a label only becomes durable once Assign stores it for an email
// or a note row carries it.
func (s *Service) Create(displayName string) (Label, error) {
	trimmed := strings.TrimSpace(displayName)
	if trimmed == "" {
		return Label{}, newServiceError("labels.create", "missing_name", ErrLabelNameRequired)
	}
	return Label{Key: trimmed, DisplayName: trimmed, Type: LabelTypeUserDefined}, nil
}

// RemoveRequest carries one legacy-path tag removal.
type RemoveRequest struct {
	SubmissionID string
	Email        string
	Name         string
	Tags         []string
}

// RemoveFromSubmission filters tags out of the note row's legacy tag set. The
// Labels collection is untouched. When no note exists the call succeeds as a
// no-op and returns nil.
func (s *Service) RemoveFromSubmission(ctx context.Context, req RemoveRequest) (*notes.Note, error) {
	if strings.TrimSpace(req.SubmissionID) == "" {
		return nil, newServiceError(opRemove, "missing_submission_id", ErrSubmissionIDRequired)
	}
	if len(req.Tags) == 0 {
		return nil, newServiceError(opRemove, "missing_tags", ErrNoTagsToRemove)
	}

	result, err := s.data.Query(ctx, platform.QueryRequest{
		Collection: s.notesCollection,
		Filters:    []platform.Filter{platform.Eq(notes.FieldSubmissionID, req.SubmissionID)},
		Limit:      1,
	})
	if err != nil {
		s.logError(opRemove, "lookup_failed", err, zap.String("submission_id", req.SubmissionID))
		return nil, newServiceError(opRemove, "lookup_failed", err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}

	noteItem := result.Items[0]
	current := noteItem.StringSlice(notes.FieldLabelTags)
	remaining := make([]string, 0, len(current))
	for _, tag := range current {
		if !containsTag(req.Tags, tag) {
			remaining = append(remaining, tag)
		}
	}

	updated := platform.Item{
		platform.ItemFieldID:    noteItem.ID(),
		notes.FieldSubmissionID: req.SubmissionID,
		notes.FieldEmail:        req.Email,
		notes.FieldName:         req.Name,
		notes.FieldText:         noteItem.String(notes.FieldText),
		notes.FieldLabelTags:    remaining,
	}
	stored, err := s.data.Update(ctx, s.notesCollection, updated)
	if err != nil {
		s.logError(opRemove, "write_failed", err, zap.String("submission_id", req.SubmissionID))
		return nil, newServiceError(opRemove, "write_failed", err)
	}
	note := noteFromStoredItem(stored)
	return &note, nil
}

func containsTag(tags []string, candidate string) bool {
	for _, tag := range tags {
		if tag == candidate {
			return true
		}
	}
	return false
}

func noteFromStoredItem(item platform.Item) notes.Note {
	return notes.Note{
		ID:           item.ID(),
		SubmissionID: item.String(notes.FieldSubmissionID),
		Email:        item.String(notes.FieldEmail),
		Name:         item.String(notes.FieldName),
		Text:         item.String(notes.FieldText),
		LabelTags:    item.StringSlice(notes.FieldLabelTags),
		CreatedDate:  item.String(platform.ItemFieldCreatedDate),
		UpdatedDate:  item.String(platform.ItemFieldUpdatedDate),
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("label service error", attrs...)
}
