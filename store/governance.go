package store

import (
	"errors"

	"gorm.io/gorm"
)

// GetVoteThread looks up a tracked vote thread by platform post ID. Returns
// nil, nil when the post isn't tracked.
func (s *Store) GetVoteThread(postID int64) (*VoteThread, error) {
	var v VoteThread
	err := s.db.Preload("Author").Preload("Author.Roles").Preload("Author.Tags").
		Where("post_id = ?", postID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) CreateVoteThread(v *VoteThread) error {
	err := s.db.Create(v).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// another pass tracked the post first; treat as already created
		return s.db.Where("post_id = ?", v.PostID).First(v).Error
	}
	return err
}

func (s *Store) SaveVoteThread(v *VoteThread) error {
	return s.db.Save(v).Error
}

// ActiveVoteThreads returns threads not yet locked, ie still being refreshed
// on the governance schedule. Expired threads stay active until the final
// tally is published and the platform post locked.
func (s *Store) ActiveVoteThreads() ([]VoteThread, error) {
	var threads []VoteThread
	err := s.db.Preload("Author").Preload("Author.Roles").Preload("Author.Tags").
		Where("locked = ?", false).Order("post_id asc").Find(&threads).Error
	return threads, err
}
