package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/praxislabs/patientdesk/backend/internal/platform"
	"go.uber.org/zap"
)

const defaultListLimit = 100

var (
	errMissingDataStore = errors.New("notes: data store is required")
	// ErrMissingSubmissionID indicates a note operation without a submission id.
	ErrMissingSubmissionID = errors.New("notes: submission id is required")
)

// DataStore is the slice of the collection-store contract the note store uses.
type DataStore interface {
	Query(ctx context.Context, req platform.QueryRequest) (platform.QueryResult, error)
	Insert(ctx context.Context, collection string, item platform.Item) (platform.Item, error)
	Update(ctx context.Context, collection string, item platform.Item) (platform.Item, error)
}

// StoreConfig describes the dependencies of the note store.
type StoreConfig struct {
	Data       DataStore
	Collection string
	Logger     *zap.Logger
}

// Store reads and writes note rows keyed by submission id.
type Store struct {
	data       DataStore
	collection string
	logger     *zap.Logger
}

// NewStore constructs the note store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Data == nil {
		return nil, errMissingDataStore
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{data: cfg.Data, collection: collection, logger: logger}, nil
}

// Get returns the note for a submission, or nil when none exists. A missing
// row is an empty result, not an error.
func (s *Store) Get(ctx context.Context, submissionID string) (*Note, error) {
	if strings.TrimSpace(submissionID) == "" {
		return nil, ErrMissingSubmissionID
	}
	result, err := s.data.Query(ctx, platform.QueryRequest{
		Collection: s.collection,
		Filters:    []platform.Filter{platform.Eq(FieldSubmissionID, submissionID)},
		Limit:      1,
	})
	if err != nil {
		s.logger.Error("note lookup failed", zap.String("submission_id", submissionID), zap.Error(err))
		return nil, fmt.Errorf("notes: get %s: %w", submissionID, err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}
	note := noteFromItem(result.Items[0])
	return &note, nil
}

// List returns up to limit note rows, newest first. Used by the debug listing
// surface only.
func (s *Store) List(ctx context.Context, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	result, err := s.data.Query(ctx, platform.QueryRequest{Collection: s.collection, Limit: limit})
	if err != nil {
		s.logger.Error("note listing failed", zap.Error(err))
		return nil, fmt.Errorf("notes: list: %w", err)
	}
	listed := make([]Note, 0, len(result.Items))
	for _, item := range result.Items {
		listed = append(listed, noteFromItem(item))
	}
	return listed, nil
}

// SaveRequest carries one note write. NoteID may be empty; the store then
// resolves the row by submission id before deciding between update and insert,
// so at most one note per submission ever exists.
type SaveRequest struct {
	SubmissionID string
	Email        string
	Name         string
	Text         string
	NoteID       string
}

// Save updates the note row for the submission, creating it lazily on first
// use. The write is a full-row replace; existing label tags are read first and
// carried through so a text save cannot drop them.
func (s *Store) Save(ctx context.Context, req SaveRequest) (Note, error) {
	submissionID := strings.TrimSpace(req.SubmissionID)
	if submissionID == "" {
		return Note{}, ErrMissingSubmissionID
	}

	noteID := req.NoteID
	var labelTags []string
	existing, err := s.Get(ctx, submissionID)
	if err != nil {
		return Note{}, err
	}
	if existing != nil {
		labelTags = existing.LabelTags
		if noteID == "" {
			noteID = existing.ID
		}
	}

	item := platform.Item{
		FieldSubmissionID: submissionID,
		FieldEmail:        req.Email,
		FieldName:         req.Name,
		FieldText:         req.Text,
	}
	if labelTags != nil {
		item[FieldLabelTags] = labelTags
	}

	var stored platform.Item
	if noteID != "" {
		item[platform.ItemFieldID] = noteID
		stored, err = s.data.Update(ctx, s.collection, item)
	} else {
		stored, err = s.data.Insert(ctx, s.collection, item)
	}
	if err != nil {
		s.logger.Error("note save failed",
			zap.String("submission_id", submissionID),
			zap.String("note_id", noteID),
			zap.Error(err))
		return Note{}, fmt.Errorf("notes: save %s: %w", submissionID, err)
	}
	return noteFromItem(stored), nil
}
