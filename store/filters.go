package store

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"gorm.io/gorm"

	"github.com/fedimod/vigil/moderr"
)

// CreateFilter validates and persists a new filter. The pattern must be a
// valid regex; duplicates (by pattern) are a domain error.
func (s *Store) CreateFilter(f *Filter) error {
	if !f.Action.Valid() {
		return moderr.Domain("unknown action tier: %q", f.Action)
	}
	if !f.Target.Valid() {
		return moderr.Domain("unknown filter target: %q", f.Target)
	}
	if f.Scope == "" {
		f.Scope = ScopeGlobal
	}
	if _, err := regexp.Compile("(?i)" + f.Pattern); err != nil {
		return moderr.UserFacing("invalid filter pattern %q: %v", f.Pattern, err)
	}
	if err := s.db.Create(f).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return moderr.Domain("filter already exists: %s", f.Pattern)
		}
		return err
	}
	s.logger.Info("filter created", "id", f.ID, "target", f.Target, "action", f.Action)
	return nil
}

// GetFilter returns nil, nil when no filter has the given ID.
func (s *Store) GetFilter(id uint) (*Filter, error) {
	var f Filter
	err := s.db.First(&f, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) GetFilterByPattern(pattern string) (*Filter, error) {
	var f Filter
	err := s.db.Where("pattern = ?", pattern).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) UpdateFilter(f *Filter) error {
	if !f.Action.Valid() {
		return moderr.Domain("unknown action tier: %q", f.Action)
	}
	if _, err := regexp.Compile("(?i)" + f.Pattern); err != nil {
		return moderr.UserFacing("invalid filter pattern %q: %v", f.Pattern, err)
	}
	return s.db.Save(f).Error
}

// DeleteFilter removes a filter and cascades its match history (and any
// appeals hanging off those matches).
func (s *Store) DeleteFilter(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var matchIDs []uint
		if err := tx.Model(&FilterMatch{}).Where("filter_id = ?", id).Pluck("id", &matchIDs).Error; err != nil {
			return err
		}
		if len(matchIDs) > 0 {
			if err := tx.Where("match_id IN ?", matchIDs).Delete(&Appeal{}).Error; err != nil {
				return err
			}
			if err := tx.Where("filter_id = ?", id).Delete(&FilterMatch{}).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&Filter{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return moderr.Domain("filter %d does not exist", id)
		}
		return nil
	})
}

// FiltersByTargets fetches all filters for the given target types, sorted
// most-severe-first with filter ID ascending as the tie-break. The ordering
// is the evaluation order; it must be deterministic.
func (s *Store) FiltersByTargets(targets ...FilterTarget) ([]Filter, error) {
	var filters []Filter
	if err := s.db.Where("target IN ?", targets).Find(&filters).Error; err != nil {
		return nil, fmt.Errorf("fetching filters: %w", err)
	}
	sort.Slice(filters, func(i, j int) bool {
		ri, rj := filters[i].Action.SeverityRank(), filters[j].Action.SeverityRank()
		if ri != rj {
			return ri < rj
		}
		return filters[i].ID < filters[j].ID
	})
	return filters, nil
}

func (s *Store) ListFilters() ([]Filter, error) {
	var filters []Filter
	if err := s.db.Order("id asc").Find(&filters).Error; err != nil {
		return nil, err
	}
	return filters, nil
}
