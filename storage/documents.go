package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"doc-hand/models"
)

// ErrDocumentNotFound is returned when an id matches no document record.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore reads and updates persisted document records.
type DocumentStore interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
	ListByStatus(ctx context.Context, status models.ProcessingStatus) ([]models.Document, error)
}

// GormDocumentStore implements DocumentStore on the documents table.
type GormDocumentStore struct {
	db *gorm.DB
}

func NewDocumentStore(db *gorm.DB) *GormDocumentStore {
	return &GormDocumentStore{db: db}
}

func (s *GormDocumentStore) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	return &doc, nil
}

func (s *GormDocumentStore) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update document %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *GormDocumentStore) ListByStatus(ctx context.Context, status models.ProcessingStatus) ([]models.Document, error) {
	var docs []models.Document
	if err := s.db.WithContext(ctx).Where("processing_status = ?", status).Order("created_at asc").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents by status %s: %w", status, err)
	}
	return docs, nil
}
