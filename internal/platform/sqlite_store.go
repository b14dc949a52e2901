package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errMissingStoreDatabase = errors.New("platform: database handle is required")

// CollectionItem is the local-mode row backing one schemaless collection
// record. The payload keeps the platform wire shape so the two store drivers
// stay interchangeable.
type CollectionItem struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	Collection       string `gorm:"column:collection;size:190;not null;index:idx_collection_items_collection"`
	DataJSON         string `gorm:"column:data_json;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CollectionItem) TableName() string {
	return "collection_items"
}

// SQLiteStoreConfig configures the local collection-store driver.
type SQLiteStoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// SQLiteStore implements the collection-store contract against a local sqlite
// database. It exists for development and tests; production runs against the
// hosted platform through DataClient.
type SQLiteStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewSQLiteStore constructs a local collection store.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Database == nil {
		return nil, errMissingStoreDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SQLiteStore{db: cfg.Database, clock: clock}, nil
}

// Query loads the collection and applies the filters in memory. Collections in
// this system stay small (the dashboard caps reads at 1000 rows), so the
// simple scan matches the hosted API's observable behavior.
func (s *SQLiteStore) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	if req.Collection == "" {
		return QueryResult{}, ErrMissingCollection
	}

	var rows []CollectionItem
	if err := s.db.WithContext(ctx).
		Where("collection = ?", req.Collection).
		Order("created_at_s DESC").
		Find(&rows).Error; err != nil {
		return QueryResult{}, &UpstreamError{Operation: "data.query", Err: err}
	}

	result := QueryResult{Items: make([]Item, 0, len(rows))}
	for _, row := range rows {
		item, err := decodeItem(row)
		if err != nil {
			return QueryResult{}, &UpstreamError{Operation: "data.query", Err: err}
		}
		matched, err := matchesFilters(item, req.Filters)
		if err != nil {
			return QueryResult{}, err
		}
		if !matched {
			continue
		}
		result.Items = append(result.Items, item)
		if req.Limit > 0 && len(result.Items) >= req.Limit {
			break
		}
	}
	result.TotalCount = len(result.Items)
	return result, nil
}

// Insert stamps identifier and timestamps onto the item and stores it.
func (s *SQLiteStore) Insert(ctx context.Context, collection string, item Item) (Item, error) {
	if collection == "" {
		return nil, ErrMissingCollection
	}
	itemID, err := uuid.NewV7()
	if err != nil {
		return nil, &UpstreamError{Operation: "data.insert", Err: err}
	}

	now := s.clock().UTC()
	stored := make(Item, len(item)+3)
	for key, value := range item {
		stored[key] = value
	}
	stored[ItemFieldID] = itemID.String()
	stored[ItemFieldCreatedDate] = now.Format(time.RFC3339)
	stored[ItemFieldUpdatedDate] = now.Format(time.RFC3339)

	payload, err := json.Marshal(stored)
	if err != nil {
		return nil, &UpstreamError{Operation: "data.insert", Err: err}
	}
	row := CollectionItem{
		ID:               itemID.String(),
		Collection:       collection,
		DataJSON:         string(payload),
		CreatedAtSeconds: now.Unix(),
		UpdatedAtSeconds: now.Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, &UpstreamError{Operation: "data.insert", Err: err}
	}
	return stored, nil
}

// Update replaces the stored item, mirroring the platform's full-row replace.
func (s *SQLiteStore) Update(ctx context.Context, collection string, item Item) (Item, error) {
	if collection == "" {
		return nil, ErrMissingCollection
	}
	itemID := item.ID()
	if itemID == "" {
		return nil, ErrMissingItemID
	}

	var row CollectionItem
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, itemID).
		Take(&row).Error
	if err != nil {
		return nil, &UpstreamError{Operation: "data.update", Err: err}
	}

	existing, err := decodeItem(row)
	if err != nil {
		return nil, &UpstreamError{Operation: "data.update", Err: err}
	}

	now := s.clock().UTC()
	stored := make(Item, len(item)+3)
	for key, value := range item {
		stored[key] = value
	}
	stored[ItemFieldID] = itemID
	stored[ItemFieldCreatedDate] = existing.String(ItemFieldCreatedDate)
	stored[ItemFieldUpdatedDate] = now.Format(time.RFC3339)

	payload, err := json.Marshal(stored)
	if err != nil {
		return nil, &UpstreamError{Operation: "data.update", Err: err}
	}
	updates := map[string]interface{}{
		"data_json":    string(payload),
		"updated_at_s": now.Unix(),
	}
	if err := s.db.WithContext(ctx).
		Model(&CollectionItem{}).
		Where("collection = ? AND id = ?", collection, itemID).
		Updates(updates).Error; err != nil {
		return nil, &UpstreamError{Operation: "data.update", Err: err}
	}
	return stored, nil
}

func decodeItem(row CollectionItem) (Item, error) {
	var item Item
	if err := json.Unmarshal([]byte(row.DataJSON), &item); err != nil {
		return nil, fmt.Errorf("decode collection item %s: %w", row.ID, err)
	}
	return item, nil
}

func matchesFilters(item Item, filters []Filter) (bool, error) {
	for _, filter := range filters {
		switch filter.Op {
		case FilterOpEq:
			if item[filter.Field] != filter.Value {
				return false, nil
			}
		case FilterOpHasSome:
			values, ok := filter.Value.([]string)
			if !ok {
				return false, fmt.Errorf("platform: hasSome filter on %q requires string values", filter.Field)
			}
			fieldValue := item.String(filter.Field)
			found := false
			for _, candidate := range values {
				if candidate == fieldValue {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("platform: unsupported filter op %q", filter.Op)
		}
	}
	return true, nil
}
