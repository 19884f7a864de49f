package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/zapdesk/zapdesk/internal/model"
)

// AttendantStore manages support agents.
type AttendantStore struct {
	db *gorm.DB
}

// NewAttendantStore creates an attendant store.
func NewAttendantStore(db *gorm.DB) *AttendantStore {
	return &AttendantStore{db: db}
}

// ListActive returns active attendants ordered by name.
func (s *AttendantStore) ListActive(ctx context.Context) ([]model.Attendant, error) {
	attendants := make([]model.Attendant, 0)
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("name ASC").
		Find(&attendants).Error
	if err != nil {
		return nil, err
	}
	return attendants, nil
}

// Get returns an attendant by id.
func (s *AttendantStore) Get(ctx context.Context, id uint) (*model.Attendant, error) {
	var att model.Attendant
	if err := s.db.WithContext(ctx).First(&att, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &att, nil
}

// Create inserts a new attendant. The name is the natural identity, so a
// case-insensitive duplicate is rejected with ErrDuplicate before insert.
func (s *AttendantStore) Create(ctx context.Context, name string) (*model.Attendant, error) {
	name = strings.TrimSpace(name)

	var count int64
	err := s.db.WithContext(ctx).Model(&model.Attendant{}).
		Where("LOWER(name) = LOWER(?)", name).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicate
	}

	att := &model.Attendant{Name: name, Active: true}
	if err := s.db.WithContext(ctx).Create(att).Error; err != nil {
		return nil, err
	}
	return att, nil
}
