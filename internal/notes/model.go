// Package notes stores the per-submission free-text note. Each submission has
// at most one note row in the Notes collection; the row also carries the
// legacy per-submission label tags consumed by the labels package.
package notes

import (
	"github.com/praxislabs/patientdesk/backend/internal/platform"
)

// DefaultCollection is the collection holding note rows.
const DefaultCollection = "Notes"

// Field keys of a note row inside the Notes collection.
const (
	FieldSubmissionID = "submissionId"
	FieldEmail        = "email"
	FieldName         = "name"
	FieldText         = "notes"
	FieldLabelTags    = "labelTags"
)

// Note is the decoded note row. LabelTags is the deprecated per-submission
// label storage, kept readable for the legacy resolution path.
type Note struct {
	ID           string   `json:"id"`
	SubmissionID string   `json:"submissionId"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	Text         string   `json:"notes"`
	LabelTags    []string `json:"labelTags"`
	CreatedDate  string   `json:"createdDate"`
	UpdatedDate  string   `json:"updatedDate"`
}

func noteFromItem(item platform.Item) Note {
	return Note{
		ID:           item.ID(),
		SubmissionID: item.String(FieldSubmissionID),
		Email:        item.String(FieldEmail),
		Name:         item.String(FieldName),
		Text:         item.String(FieldText),
		LabelTags:    item.StringSlice(FieldLabelTags),
		CreatedDate:  item.String(platform.ItemFieldCreatedDate),
		UpdatedDate:  item.String(platform.ItemFieldUpdatedDate),
	}
}
