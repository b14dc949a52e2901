// Package labels implements patient tagging across two denormalized indexes:
// the email-keyed Labels collection (current) and the per-submission tag array
// on note rows (legacy). Label identity is the trimmed tag string; there is no
// separate label registry.
package labels

import (
	"github.com/praxislabs/patientdesk/backend/internal/platform"
)

// DefaultCollection is the collection holding email-keyed label records.
const DefaultCollection = "Labels"

// LabelTypeUserDefined is the only label type the dashboard produces.
const LabelTypeUserDefined = "USER_DEFINED"

// Field keys of a label record inside the Labels collection.
const (
	FieldEmail     = "email"
	FieldLabelTags = "labelTags"
)

// Label is the wire shape of one known label. Key and DisplayName are always
// identical; the trimmed text is the identity.
type Label struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
	Type        string `json:"labelType"`
}

// Record is the decoded email-keyed label row. All submissions sharing the
// email display this tag set.
type Record struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	LabelTags   []string `json:"labelTags"`
	CreatedDate string   `json:"createdDate"`
	UpdatedDate string   `json:"updatedDate"`
}

func recordFromItem(item platform.Item) Record {
	return Record{
		ID:          item.ID(),
		Email:       item.String(FieldEmail),
		LabelTags:   item.StringSlice(FieldLabelTags),
		CreatedDate: item.String(platform.ItemFieldCreatedDate),
		UpdatedDate: item.String(platform.ItemFieldUpdatedDate),
	}
}
