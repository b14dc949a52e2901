package platform

import (
	"errors"
)

// Field names the hosting platform stamps onto every collection item.
const (
	ItemFieldID          = "_id"
	ItemFieldCreatedDate = "_createdDate"
	ItemFieldUpdatedDate = "_updatedDate"
)

// Filter operators supported by the collection query API.
const (
	FilterOpEq       = "eq"
	FilterOpHasSome  = "hasSome"
	FilterOpLessThan = "lt"
)

var (
	// ErrMissingCollection indicates a request without a collection name.
	ErrMissingCollection = errors.New("platform: collection name required")
	// ErrMissingItemID indicates an update payload without an item identifier.
	ErrMissingItemID = errors.New("platform: item id required for update")
)

// Item is a schemaless collection record. The platform enforces no structure
// beyond the stamped _id/_createdDate/_updatedDate fields.
type Item map[string]interface{}

// ID returns the stamped item identifier, or an empty string.
func (i Item) ID() string {
	return i.String(ItemFieldID)
}

// String returns the named field when it holds a string value.
func (i Item) String(field string) string {
	value, ok := i[field].(string)
	if !ok {
		return ""
	}
	return value
}

// Bool returns the named field when it holds a boolean value.
func (i Item) Bool(field string) bool {
	value, ok := i[field].(bool)
	return ok && value
}

// StringSlice returns the string members of the named field. Non-string
// members are dropped, matching how tag arrays are read everywhere.
func (i Item) StringSlice(field string) []string {
	raw, ok := i[field].([]interface{})
	if !ok {
		if typed, ok := i[field].([]string); ok {
			return typed
		}
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, member := range raw {
		if text, ok := member.(string); ok {
			values = append(values, text)
		}
	}
	return values
}

// Filter narrows a collection query to items matching one field condition.
type Filter struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// Eq builds an equality filter.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Op: FilterOpEq, Value: value}
}

// HasSome builds a membership filter matching items whose field equals any of
// the provided values.
func HasSome(field string, values []string) Filter {
	return Filter{Field: field, Op: FilterOpHasSome, Value: values}
}

// QueryRequest describes one collection query.
type QueryRequest struct {
	Collection string
	Filters    []Filter
	Limit      int
}

// QueryResult carries a page of items plus the total match count reported by
// the store.
type QueryResult struct {
	Items      []Item `json:"items"`
	TotalCount int    `json:"totalCount"`
}
