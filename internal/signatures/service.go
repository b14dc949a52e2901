// Package signatures resolves uploaded signature images: short-lived download
// URLs from the platform file service, server-side fetch-and-convert to a
// base64 data URL, and a best-effort cache collection keyed by submission id.
package signatures

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/praxislabs/patientdesk/backend/internal/platform"
	"go.uber.org/zap"
)

// DefaultCacheCollection holds one cached data URL per submission.
const DefaultCacheCollection = "SignatureCache"

// Field keys of a cache row.
const (
	FieldSubmissionID    = "submissionId"
	FieldSignatureBase64 = "signatureBase64"
)

const (
	defaultContentType  = "image/png"
	defaultFetchTimeout = 30 * time.Second
)

var (
	errMissingFilesClient = errors.New("signatures: files client is required")
	errMissingDataStore   = errors.New("signatures: data store is required")
	// ErrMissingFileID indicates a download-URL call without a file id.
	ErrMissingFileID = errors.New("signatures: file id is required")
	// ErrMissingImageURL indicates a fetch call without an image URL.
	ErrMissingImageURL = errors.New("signatures: image url is required")
	// ErrMissingSubmissionID indicates a cache lookup without a submission id.
	ErrMissingSubmissionID = errors.New("signatures: submission id is required")
	// ErrNotCached indicates no cached signature exists for the submission.
	ErrNotCached = errors.New("signatures: signature not found in cache")
)

// FilesAPI is the slice of the file-service contract the service uses.
type FilesAPI interface {
	GenerateDownloadURL(ctx context.Context, fileID string, elevated bool) (string, error)
}

// DataStore is the slice of the collection-store contract used for the cache.
type DataStore interface {
	Query(ctx context.Context, req platform.QueryRequest) (platform.QueryResult, error)
	Insert(ctx context.Context, collection string, item platform.Item) (platform.Item, error)
	Update(ctx context.Context, collection string, item platform.Item) (platform.Item, error)
}

// ServiceConfig describes the dependencies of the signature service.
type ServiceConfig struct {
	Files           FilesAPI
	Data            DataStore
	HTTPClient      *resty.Client
	CacheCollection string
	Logger          *zap.Logger
}

// Service resolves signature images for the patient sheet.
type Service struct {
	files      FilesAPI
	data       DataStore
	httpClient *resty.Client
	collection string
	logger     *zap.Logger
}

// NewService constructs the signature service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Files == nil {
		return nil, errMissingFilesClient
	}
	if cfg.Data == nil {
		return nil, errMissingDataStore
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resty.New().SetTimeout(defaultFetchTimeout)
	}
	collection := cfg.CacheCollection
	if collection == "" {
		collection = DefaultCacheCollection
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		files:      cfg.Files,
		data:       cfg.Data,
		httpClient: httpClient,
		collection: collection,
		logger:     logger,
	}, nil
}

// DownloadURL resolves a short-lived download URL for the signature file. The
// elevated call runs first; when it fails the unelevated endpoint is tried for
// files whose visibility permits anonymous access. The elevated error is the
// one surfaced when both fail.
func (s *Service) DownloadURL(ctx context.Context, fileID string) (string, error) {
	if strings.TrimSpace(fileID) == "" {
		return "", ErrMissingFileID
	}
	url, elevatedErr := s.files.GenerateDownloadURL(ctx, fileID, true)
	if elevatedErr == nil && url != "" {
		return url, nil
	}
	s.logger.Warn("elevated download url failed, trying unelevated",
		zap.String("file_id", fileID),
		zap.Error(elevatedErr))

	url, fallbackErr := s.files.GenerateDownloadURL(ctx, fileID, false)
	if fallbackErr == nil && url != "" {
		return url, nil
	}
	if elevatedErr == nil {
		elevatedErr = fallbackErr
	}
	return "", fmt.Errorf("signatures: download url for %s: %w", fileID, elevatedErr)
}

// FetchAsDataURL downloads the image server-side (the browser cannot, due to
// cross-origin restrictions) and returns it as a base64 data URL. When a
// submission id is supplied the result is also upserted into the cache
// collection; a cache-write failure is logged and swallowed.
func (s *Service) FetchAsDataURL(ctx context.Context, imageURL, submissionID string) (string, error) {
	if strings.TrimSpace(imageURL) == "" {
		return "", ErrMissingImageURL
	}
	resp, err := s.httpClient.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return "", fmt.Errorf("signatures: fetch image: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("signatures: fetch image: status %d", resp.StatusCode())
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(resp.Body()))

	if submissionID != "" {
		if err := s.Cache(ctx, submissionID, dataURL); err != nil {
			s.logger.Warn("signature cache write failed",
				zap.String("submission_id", submissionID),
				zap.Error(err))
		}
	}
	return dataURL, nil
}

// Cached returns the cached data URL for a submission, or ErrNotCached.
func (s *Service) Cached(ctx context.Context, submissionID string) (string, error) {
	if strings.TrimSpace(submissionID) == "" {
		return "", ErrMissingSubmissionID
	}
	result, err := s.data.Query(ctx, platform.QueryRequest{
		Collection: s.collection,
		Filters:    []platform.Filter{platform.Eq(FieldSubmissionID, submissionID)},
		Limit:      1,
	})
	if err != nil {
		return "", fmt.Errorf("signatures: cache lookup %s: %w", submissionID, err)
	}
	if len(result.Items) == 0 {
		return "", ErrNotCached
	}
	cached := result.Items[0].String(FieldSignatureBase64)
	if cached == "" {
		return "", ErrNotCached
	}
	return cached, nil
}

// Cache upserts the data URL for a submission: update when a cache row exists,
// insert otherwise.
func (s *Service) Cache(ctx context.Context, submissionID, dataURL string) error {
	if strings.TrimSpace(submissionID) == "" {
		return ErrMissingSubmissionID
	}
	existing, err := s.data.Query(ctx, platform.QueryRequest{
		Collection: s.collection,
		Filters:    []platform.Filter{platform.Eq(FieldSubmissionID, submissionID)},
		Limit:      1,
	})
	if err != nil {
		return fmt.Errorf("signatures: cache lookup %s: %w", submissionID, err)
	}
	item := platform.Item{
		FieldSubmissionID:    submissionID,
		FieldSignatureBase64: dataURL,
	}
	if len(existing.Items) > 0 {
		item[platform.ItemFieldID] = existing.Items[0].ID()
		_, err = s.data.Update(ctx, s.collection, item)
	} else {
		_, err = s.data.Insert(ctx, s.collection, item)
	}
	if err != nil {
		return fmt.Errorf("signatures: cache write %s: %w", submissionID, err)
	}
	return nil
}
