package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/fedimod/vigil/moderr"
)

// CreateAppeal inserts a new pending appeal. The unique constraint on
// (requester, match) backs the one-appeal-per-requester invariant; the
// workflow layer checks first, so hitting the constraint is a domain error.
func (s *Store) CreateAppeal(a *Appeal) error {
	if a.Status == "" {
		a.Status = AppealPending
	}
	err := s.db.Create(a).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return moderr.Domain("appeal already exists for %s on match %d", a.RequesterURL, a.MatchID)
	}
	return err
}

// GetAppeal returns nil, nil when the appeal is unknown. Match and its
// source filter are preloaded.
func (s *Store) GetAppeal(id uint) (*Appeal, error) {
	var a Appeal
	err := s.db.Preload("Match").Preload("Match.Filter").First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) FindAppealByRequester(requesterURL string, matchID uint) (*Appeal, error) {
	var a Appeal
	err := s.db.Where("requester_url = ? AND match_id = ?", requesterURL, matchID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AppealsForMatch returns every appeal lodged against one enforcement match,
// oldest first.
func (s *Store) AppealsForMatch(matchID uint) ([]Appeal, error) {
	var appeals []Appeal
	err := s.db.Where("match_id = ?", matchID).Order("id asc").Find(&appeals).Error
	return appeals, err
}

// SetAppealStatus transitions one appeal and records who resolved it.
func (s *Store) SetAppealStatus(id uint, status AppealStatus, resolverURL, reply string) error {
	updates := map[string]any{
		"status":       status,
		"resolver_url": resolverURL,
	}
	if reply != "" {
		updates["reply"] = reply
	}
	res := s.db.Model(&Appeal{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return moderr.Domain("appeal %d does not exist", id)
	}
	return nil
}

func (s *Store) ListAppeals(status AppealStatus, limit int) ([]Appeal, error) {
	q := s.db.Preload("Match").Order("id desc").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var appeals []Appeal
	err := q.Find(&appeals).Error
	return appeals, err
}
