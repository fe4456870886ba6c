package store

import (
	"errors"

	"gorm.io/gorm"
)

// MatchExists reports whether any enforcement match exists for the entity.
func (s *Store) MatchExists(entityID int64) (bool, error) {
	var count int64
	err := s.db.Model(&FilterMatch{}).Where("entity_id = ?", entityID).Count(&count).Error
	return count > 0, err
}

// RecordMatch inserts the enforcement match, or loads the existing one when
// the entity was already actioned (re-entrant safe: the unique constraint on
// entity_id resolves the race). Returns whether this call created the row.
func (s *Store) RecordMatch(m *FilterMatch) (bool, error) {
	err := s.db.Create(m).Error
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, err
	}
	var existing FilterMatch
	if err := s.db.Where("entity_id = ?", m.EntityID).First(&existing).Error; err != nil {
		return false, err
	}
	*m = existing
	return false, nil
}

// GetMatch returns nil, nil when the match is unknown. The source filter is
// preloaded for appeal notifications.
func (s *Store) GetMatch(id uint) (*FilterMatch, error) {
	var m FilterMatch
	err := s.db.Preload("Filter").First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) GetMatchByEntity(entityID int64) (*FilterMatch, error) {
	var m FilterMatch
	err := s.db.Preload("Filter").Where("entity_id = ?", entityID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
