package store

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fedimod/vigil/moderr"
)

// GetUser looks up a user by canonical actor URL (lowercased), preloading
// roles and tags. Returns nil, nil when unknown.
func (s *Store) GetUser(actorURL string) (*User, error) {
	var u User
	err := s.db.Preload("Roles").Preload("Tags").
		Where("actor_url = ?", strings.ToLower(actorURL)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureUser returns the existing user or creates a bare one. A concurrent
// insert of the same actor is resolved by re-reading.
func (s *Store) EnsureUser(actorURL string) (*User, error) {
	actorURL = strings.ToLower(actorURL)
	u, err := s.GetUser(actorURL)
	if err != nil || u != nil {
		return u, err
	}
	nu := User{ActorURL: actorURL}
	err = s.db.Create(&nu).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.GetUser(actorURL)
	}
	if err != nil {
		return nil, err
	}
	return &nu, nil
}

func (s *Store) AddRole(userID uint, role Role) error {
	if !role.Valid() {
		return moderr.Domain("unknown role: %q", role)
	}
	err := s.db.Create(&UserRole{UserID: userID, Role: role}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

func (s *Store) RemoveRole(userID uint, role Role) error {
	if !role.Valid() {
		return moderr.Domain("unknown role: %q", role)
	}
	return s.db.Where("user_id = ? AND role = ?", userID, role).Delete(&UserRole{}).Error
}

func (s *Store) HasRole(userID uint, role Role) (bool, error) {
	var count int64
	err := s.db.Model(&UserRole{}).Where("user_id = ? AND role = ?", userID, role).Count(&count).Error
	return count > 0, err
}

// SetTag upserts one tag on a user.
func (s *Store) SetTag(userID uint, key, value, flair string, expires *time.Time) error {
	tag := UserTag{UserID: userID, Key: key, Value: value, Flair: flair, ExpiresAt: expires}
	err := s.db.Create(&tag).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	return s.db.Model(&UserTag{}).
		Where("user_id = ? AND key = ?", userID, key).
		Updates(map[string]any{"value": value, "flair": flair, "expires_at": expires}).Error
}

func (s *Store) GetTag(userID uint, key string) (*UserTag, error) {
	var t UserTag
	err := s.db.Where("user_id = ? AND key = ?", userID, key).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) RemoveTag(userID uint, key string) error {
	return s.db.Where("user_id = ? AND key = ?", userID, key).Delete(&UserTag{}).Error
}

// CountVouchesBy counts how many users carry a "vouched" tag whose value is
// the given voucher's actor URL.
func (s *Store) CountVouchesBy(voucherURL string) (int64, error) {
	var count int64
	err := s.db.Model(&UserTag{}).
		Where("key = ? AND value = ?", "vouched", strings.ToLower(voucherURL)).
		Count(&count).Error
	return count, err
}

// HasRole checks the preloaded role set.
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r.Role == role {
			return true
		}
	}
	return false
}

func (u *User) IsModerator() bool {
	return u.HasRole(RoleAdmin) || u.HasRole(RoleModerator)
}

// ActiveTag returns the named tag if present and unexpired.
func (u *User) ActiveTag(key string, now time.Time) *UserTag {
	for i := range u.Tags {
		if u.Tags[i].Key == key && !u.Tags[i].Expired(now) {
			return &u.Tags[i]
		}
	}
	return nil
}
