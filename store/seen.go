package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// HasSeen reports whether the entity was already scanned.
func (s *Store) HasSeen(entityID int64, entityType EntityType) (bool, error) {
	var count int64
	err := s.db.Model(&SeenMarker{}).
		Where("entity_id = ? AND entity_type = ?", entityID, entityType).
		Count(&count).Error
	return count > 0, err
}

// AnySeen reports whether any of the given entities carries a seen marker.
// Used by the scanner to short-circuit pagination on a fully caught-up page.
func (s *Store) AnySeen(entityIDs []int64, entityType EntityType) (bool, error) {
	if len(entityIDs) == 0 {
		return false, nil
	}
	var count int64
	err := s.db.Model(&SeenMarker{}).
		Where("entity_id IN ? AND entity_type = ?", entityIDs, entityType).
		Count(&count).Error
	return count > 0, err
}

// MarkSeen writes a seen marker. A concurrent pass inserting the same marker
// is not an error; the uniqueness constraint doing its job is the expected
// outcome of two overlapping scans.
func (s *Store) MarkSeen(entityID int64, entityType EntityType, url string) error {
	err := s.db.Create(&SeenMarker{
		EntityID:   entityID,
		EntityType: entityType,
		URL:        url,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

// GCSeen deletes seen markers past the retention window and returns how many
// rows went away.
func (s *Store) GCSeen(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res := s.db.Where("updated_at < ?", cutoff).Delete(&SeenMarker{})
	return res.RowsAffected, res.Error
}
