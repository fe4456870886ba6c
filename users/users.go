// Package users manages the role and tag layer on top of the store: who is
// an admin or moderator, who is trusted or known, who may vote in
// governance, and what flair a user carries. Donation-tier tags and vouches
// feed into eligibility alongside explicit roles.
package users

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/fedimod/vigil/moderr"
	"github.com/fedimod/vigil/platform"
	"github.com/fedimod/vigil/store"
)

// TierKeys are the tag keys holding donation tiers from the ledger sync.
var TierKeys = []string{"kofi_tier", "liberapay_tier"}

// TagVouched marks a user someone trusted has vouched for; the tag value is
// the voucher's actor URL.
const TagVouched = "vouched"

type Config struct {
	// Donation tiers / tag keys granting each standing.
	TrustedTiers []string
	TrustedTags  []string
	KnownTiers   []string
	KnownTags    []string
	VotingTiers  []string
	VotingTags   []string

	// VouchesPerUser caps how many outstanding vouches a non-moderator may
	// hold at once.
	VouchesPerUser int

	// FlairPriority maps tag key to priority; lower number wins when a user
	// carries several flaired tags.
	FlairPriority map[string]int

	AdminFlair    string
	OutsiderFlair string
}

type Service struct {
	Store  *store.Store
	Client platform.Client
	Config Config
	Logger *slog.Logger
}

func NewService(st *store.Store, client platform.Client, cfg Config, logger *slog.Logger) *Service {
	if cfg.VouchesPerUser <= 0 {
		cfg.VouchesPerUser = 2
	}
	return &Service{Store: st, Client: client, Config: cfg, Logger: logger.With("system", "users")}
}

// EnsureAdmin guarantees the operator account exists and carries the admin
// role. Called once at startup.
func (s *Service) EnsureAdmin(ctx context.Context, actorURL string) error {
	if actorURL == "" {
		return moderr.Domain("admin actor URL not configured")
	}
	u, err := s.Store.EnsureUser(actorURL)
	if err != nil {
		return fmt.Errorf("ensuring admin user: %w", err)
	}
	return s.Store.AddRole(u.ID, store.RoleAdmin)
}

// GrantRole applies the privilege rules from the moderation policy: admin is
// never grantable, moderator requires an admin requester, trusted requires a
// moderator requester.
func (s *Service) GrantRole(ctx context.Context, requesterURL, targetURL string, role store.Role) error {
	requester, err := s.Store.GetUser(requesterURL)
	if err != nil {
		return err
	}
	if requester == nil || !requester.IsModerator() {
		return moderr.UserFacing("sorry, you do not have enough rights to do a users operation")
	}
	switch role {
	case store.RoleAdmin:
		return moderr.UserFacing("the admin role cannot be assigned")
	case store.RoleModerator:
		if !requester.HasRole(store.RoleAdmin) {
			return moderr.UserFacing("sorry, you do not have enough rights to make users into moderators")
		}
	case store.RoleTrusted:
		if !requester.IsModerator() {
			return moderr.UserFacing("sorry, you do not have enough rights to make users trusted")
		}
	}
	target, err := s.Store.EnsureUser(targetURL)
	if err != nil {
		return err
	}
	if err := s.Store.AddRole(target.ID, role); err != nil {
		return err
	}
	s.Logger.Info("role granted", "role", role, "target", target.ActorURL, "requester", requester.ActorURL)
	return nil
}

// RevokeRole removes a role; admin is never removable and moderator removal
// requires an admin requester.
func (s *Service) RevokeRole(ctx context.Context, requesterURL, targetURL string, role store.Role) error {
	requester, err := s.Store.GetUser(requesterURL)
	if err != nil {
		return err
	}
	if requester == nil || !requester.IsModerator() {
		return moderr.UserFacing("sorry, you do not have enough rights to do a users operation")
	}
	if role == store.RoleAdmin {
		return moderr.UserFacing("the admin role cannot be removed")
	}
	if role == store.RoleModerator && !requester.HasRole(store.RoleAdmin) {
		return moderr.UserFacing("sorry, you do not have enough rights to remove moderators")
	}
	target, err := s.Store.GetUser(targetURL)
	if err != nil {
		return err
	}
	if target == nil {
		return moderr.UserFacing("user %s is not known", targetURL)
	}
	return s.Store.RemoveRole(target.ID, role)
}

func (s *Service) hasTierTag(u *store.User, tiers []string, now time.Time) bool {
	if len(tiers) == 0 {
		return false
	}
	for _, key := range TierKeys {
		tag := u.ActiveTag(key, now)
		if tag != nil && slices.Contains(tiers, strings.ToLower(tag.Value)) {
			return true
		}
	}
	return false
}

func (s *Service) hasAnyTag(u *store.User, keys []string, now time.Time) bool {
	for _, key := range keys {
		if u.ActiveTag(key, now) != nil {
			return true
		}
	}
	return false
}

// CanVote: explicit voter role, or a configured voting tier/tag.
func (s *Service) CanVote(u *store.User) bool {
	now := time.Now().UTC()
	return u.HasRole(store.RoleVoter) ||
		s.hasTierTag(u, s.Config.VotingTiers, now) ||
		s.hasAnyTag(u, s.Config.VotingTags, now)
}

func (s *Service) IsTrusted(u *store.User) bool {
	now := time.Now().UTC()
	return u.HasRole(store.RoleTrusted) || u.IsModerator() ||
		s.hasTierTag(u, s.Config.TrustedTiers, now) ||
		s.hasAnyTag(u, s.Config.TrustedTags, now)
}

func (s *Service) IsKnown(u *store.User) bool {
	now := time.Now().UTC()
	return u.HasRole(store.RoleKnown) || s.IsTrusted(u) ||
		s.hasTierTag(u, s.Config.KnownTiers, now) ||
		s.hasAnyTag(u, s.Config.KnownTags, now)
}

// BypassesFilters reports whether content from this actor skips evaluation
// entirely. Unknown actors never bypass.
func (s *Service) BypassesFilters(ctx context.Context, actorURL string) (bool, error) {
	u, err := s.Store.GetUser(actorURL)
	if err != nil {
		return false, err
	}
	if u == nil {
		return false, nil
	}
	return s.IsKnown(u), nil
}
