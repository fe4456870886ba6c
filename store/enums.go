package store

import (
	"fmt"
	"time"
)

// ActionTier is the enforcement a filter carries when it matches. The
// severity order is defined exactly once, in severityRank, and evaluation
// always walks filters most-severe-first.
type ActionTier string

const (
	TierPermaBan   ActionTier = "permaban"
	TierBan30      ActionTier = "ban30"
	TierBan7       ActionTier = "ban7"
	TierReportOnly ActionTier = "report"
	TierRemove     ActionTier = "remove"
	TierRemoveBan  ActionTier = "remban"
)

// severityRank: lower sorts first during evaluation. RemoveBan ranks last
// despite being a ban tier; the original moderation deployments relied on
// that ordering so it is preserved.
var severityRank = map[ActionTier]int{
	TierPermaBan:   0,
	TierBan30:      1,
	TierBan7:       2,
	TierReportOnly: 3,
	TierRemove:     4,
	TierRemoveBan:  5,
}

// AllTiers in severity order.
var AllTiers = []ActionTier{TierPermaBan, TierBan30, TierBan7, TierReportOnly, TierRemove, TierRemoveBan}

func (t ActionTier) Valid() bool {
	_, ok := severityRank[t]
	return ok
}

// SeverityRank panics on an unknown tier; tiers are validated at filter
// creation so a bad value here means corrupted state.
func (t ActionTier) SeverityRank() int {
	r, ok := severityRank[t]
	if !ok {
		panic(fmt.Sprintf("unknown action tier: %q", t))
	}
	return r
}

// Removes reports whether a match at this tier takes the content down.
func (t ActionTier) Removes() bool {
	return t != TierReportOnly
}

// Bans reports whether a match at this tier also bans the author.
func (t ActionTier) Bans() bool {
	switch t {
	case TierPermaBan, TierBan30, TierBan7, TierRemoveBan:
		return true
	}
	return false
}

// PurgesData reports whether the ban removes all of the author's content.
func (t ActionTier) PurgesData() bool {
	return t == TierRemoveBan
}

// BanExpiry returns when a ban at this tier lapses; nil means indefinite.
// Ban duration is a pure function of the tier.
func (t ActionTier) BanExpiry(now time.Time) *time.Time {
	var d time.Duration
	switch t {
	case TierBan30:
		d = 30 * 24 * time.Hour
	case TierBan7:
		d = 7 * 24 * time.Hour
	default:
		return nil
	}
	exp := now.Add(d)
	return &exp
}

func ParseActionTier(s string) (ActionTier, error) {
	t := ActionTier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown action tier: %q", s)
	}
	return t, nil
}

// FilterTarget is the content field a filter's pattern runs against.
type FilterTarget string

const (
	TargetReport   FilterTarget = "report"
	TargetContent  FilterTarget = "content"
	TargetURL      FilterTarget = "url"
	TargetUsername FilterTarget = "username"
)

func (ft FilterTarget) Valid() bool {
	switch ft {
	case TargetReport, TargetContent, TargetURL, TargetUsername:
		return true
	}
	return false
}

func ParseFilterTarget(s string) (FilterTarget, error) {
	ft := FilterTarget(s)
	if !ft.Valid() {
		return "", fmt.Errorf("unknown filter target: %q", s)
	}
	return ft, nil
}

// ScopeGlobal filters apply everywhere; ScopeLocal only to items from
// same-instance communities. Any other scope value names a single community.
const (
	ScopeGlobal = "global"
	ScopeLocal  = "local"
)

type EntityType string

const (
	EntityPost    EntityType = "post"
	EntityComment EntityType = "comment"
	EntityReport  EntityType = "report"
)

type AppealStatus string

const (
	AppealPending  AppealStatus = "pending"
	AppealRestored AppealStatus = "restored"
	AppealRejected AppealStatus = "rejected"
)

type VoteKind string

const (
	VoteSimpleMajority VoteKind = "simple_majority"
	VoteSenseCheck     VoteKind = "sense_check"
	VoteOther          VoteKind = "other"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleTrusted   Role = "trusted"
	RoleKnown     Role = "known"
	RoleVoter     Role = "voter"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleTrusted, RoleKnown, RoleVoter:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}
