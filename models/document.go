package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DocumentType classifies an uploaded document and drives how strictly its
// extracted metadata is validated.
type DocumentType string

const (
	TypeScientificArticle DocumentType = "scientific_article"
	TypeTechnicalSheet    DocumentType = "technical_sheet"
	TypeProtocol          DocumentType = "protocol"
	TypeAdvertisingFlyer  DocumentType = "advertising_flyer"
	TypeOther             DocumentType = "other"
)

// Valid reports whether t is one of the known document types.
func (t DocumentType) Valid() bool {
	switch t {
	case TypeScientificArticle, TypeTechnicalSheet, TypeProtocol, TypeAdvertisingFlyer, TypeOther:
		return true
	}
	return false
}

// ProcessingStatus is the lifecycle state of a document.
// Transitions: pending -> processing -> done | failed. A failed document can
// be moved back to processing by an explicit reprocessing request.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusDone       ProcessingStatus = "done"
	StatusFailed     ProcessingStatus = "failed"
)

// StringList is a []string persisted as a JSON column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("unsupported type %T for StringList", value)
}

// Document is a single uploaded technical file and its extracted metadata.
// Records are created in "pending" by the upload flow; every later mutation
// goes through the processing pipeline.
type Document struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FilePath     string       `json:"file_path"`
	DocumentType DocumentType `json:"document_type" gorm:"index;default:'other'"`

	ExtractedTitle string     `json:"extracted_title,omitempty"`
	Authors        StringList `json:"authors" gorm:"type:jsonb"`
	Keywords       StringList `json:"keywords" gorm:"type:jsonb"`

	// Plain-text extraction from the source PDF. Written right after
	// extraction so it survives any downstream failure.
	RawText string `json:"raw_text,omitempty" gorm:"type:text"`
	// AI summary, or a truncated raw_text fallback when no summary exists.
	FullText string `json:"full_text,omitempty" gorm:"type:text"`

	ProcessingStatus ProcessingStatus `json:"processing_status" gorm:"index;default:'pending'"`
	// Set only while processing_status is "failed".
	ErrorDetails *string `json:"error_details,omitempty"`
}

// TableName pins the table name explicitly.
func (Document) TableName() string {
	return "documents"
}
