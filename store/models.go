package store

import (
	"time"
)

// Filter is a persisted moderation rule: a case-insensitive regex, the field
// it runs against, the enforcement tier it triggers, and its jurisdiction.
type Filter struct {
	ID          uint   `gorm:"primarykey" json:"id"`
	Pattern     string `gorm:"uniqueIndex;not null" json:"pattern"`
	Target      FilterTarget `gorm:"index;not null" json:"target"`
	Action      ActionTier   `gorm:"not null" json:"action"`
	Scope       string       `gorm:"index;not null;default:global" json:"scope"`
	Reason      string       `gorm:"not null" json:"reason"`
	Description string       `json:"description,omitempty"`
	OwnerID     uint         `gorm:"index" json:"owner_id"`
	Owner       *User        `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// FilterMatch is the immutable record of one applied enforcement decision.
// EntityID is unique: an entity is actioned at most once, ever.
type FilterMatch struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	EntityID   int64      `gorm:"uniqueIndex;not null" json:"entity_id"`
	EntityType EntityType `gorm:"index;not null" json:"entity_type"`
	ReportID   *int64     `gorm:"uniqueIndex" json:"report_id,omitempty"`
	URL        string     `gorm:"not null" json:"url"`
	Content    string     `gorm:"not null" json:"content"`
	ActorURL   string     `gorm:"index;not null" json:"actor_url"`
	FilterID   uint       `gorm:"index" json:"filter_id"`
	Filter     *Filter    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// SeenMarker proves an item has been scanned this era, matched or not.
// Uniqueness on (entity, type) is the cross-worker race guard.
type SeenMarker struct {
	ID         uint       `gorm:"primarykey"`
	EntityID   int64      `gorm:"uniqueIndex:idx_seen_entity;not null"`
	EntityType EntityType `gorm:"uniqueIndex:idx_seen_entity;not null"`
	URL        string
	CreatedAt  time.Time
	UpdatedAt  time.Time `gorm:"index"`
}

// Appeal is one user's request to reverse one enforcement match. The
// (RequesterURL, MatchID) pair is unique at the store level; the workflow
// enforces the same invariant before inserting.
type Appeal struct {
	ID           uint         `gorm:"primarykey" json:"id"`
	MessageID    int64        `gorm:"uniqueIndex" json:"message_id"`
	RequesterID  int64        `gorm:"index;not null" json:"requester_id"`
	RequesterURL string       `gorm:"uniqueIndex:idx_appeal_requester_match;not null" json:"requester_url"`
	Message      string       `json:"message"`
	Reply        string       `json:"reply,omitempty"`
	Status       AppealStatus `gorm:"index;not null;default:pending" json:"status"`
	MatchID      uint         `gorm:"uniqueIndex:idx_appeal_requester_match;index;not null" json:"match_id"`
	Match        *FilterMatch `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	FilterID     uint         `gorm:"index" json:"filter_id"`
	ResolverURL  string       `json:"resolver_url,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type User struct {
	ID        uint   `gorm:"primarykey"`
	ActorURL  string `gorm:"uniqueIndex;not null"`
	Roles     []UserRole `gorm:"constraint:OnDelete:CASCADE"`
	Tags      []UserTag  `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserRole struct {
	ID        uint `gorm:"primarykey"`
	UserID    uint `gorm:"uniqueIndex:idx_user_role;not null"`
	Role      Role `gorm:"uniqueIndex:idx_user_role;not null"`
	CreatedAt time.Time
}

// UserTag is a key/value annotation on a user: donation tiers, vouches,
// custom flair. Flair is a markdown image snippet shown next to votes.
type UserTag struct {
	ID        uint   `gorm:"primarykey"`
	UserID    uint   `gorm:"uniqueIndex:idx_user_tag;not null"`
	Key       string `gorm:"uniqueIndex:idx_user_tag;not null"`
	Value     string
	Flair     string
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the tag has lapsed (donation tiers expire).
func (t *UserTag) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// VoteThread tracks one community post under governance vote, including the
// maintained status reply that carries the published tally.
type VoteThread struct {
	ID              uint     `gorm:"primarykey" json:"id"`
	PostID          int64    `gorm:"uniqueIndex;not null" json:"post_id"`
	StatusCommentID *int64   `gorm:"uniqueIndex" json:"status_comment_id,omitempty"`
	Kind            VoteKind `gorm:"not null;default:simple_majority" json:"kind"`
	AuthorID        uint     `gorm:"index;not null" json:"author_id"`
	Author          *User    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Upvotes         int64    `json:"upvotes"`
	Downvotes       int64    `json:"downvotes"`
	Locked          bool     `gorm:"index;not null;default:false" json:"locked"`
	ExpiresAt       time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (v *VoteThread) Expired(now time.Time) bool {
	return v.ExpiresAt.Before(now)
}
