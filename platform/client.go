// Package platform defines the contract between vigil and the federated
// discussion platform it moderates. All wire protocol details live behind the
// Client interface; the rest of the codebase only sees the value types.
package platform

import (
	"context"
	"time"
)

// Client is the full set of platform operations vigil needs. Listings are
// paginated and newest-first; page numbering starts at 1.
type Client interface {
	ListReports(ctx context.Context, page, limit int) ([]Report, error)
	ListPosts(ctx context.Context, communityID int64, page, limit int) ([]Post, error)
	ListComments(ctx context.Context, page, limit int) ([]Comment, error)
	GetPost(ctx context.Context, postID int64) (*Post, error)

	// RemovePost and RemoveComment double as restore calls with removed=false.
	RemovePost(ctx context.Context, postID int64, removed bool, reason string) error
	RemoveComment(ctx context.Context, commentID int64, removed bool, reason string) error
	LockPost(ctx context.Context, postID int64, locked bool) error

	// BanUser with a nil expiry is an indefinite ban; removeData purges the
	// account's content. ban=false lifts an existing ban.
	BanUser(ctx context.Context, personID int64, ban bool, expires *time.Time, removeData bool, reason string) error

	ReportPost(ctx context.Context, postID int64, reason string) error
	ReportComment(ctx context.Context, commentID int64, reason string) error

	// CreateComment returns the new comment's ID. parentID nil means a
	// top-level reply on the post.
	CreateComment(ctx context.Context, postID int64, parentID *int64, content string) (int64, error)
	EditComment(ctx context.Context, commentID int64, content string) error
	DistinguishComment(ctx context.Context, commentID int64, distinguished bool) error

	ListVotes(ctx context.Context, postID int64, page, limit int) ([]Vote, error)
	SiteAdmins(ctx context.Context) ([]Person, error)
	GetPersonByName(ctx context.Context, name string) (*Person, error)

	SendPrivateMessage(ctx context.Context, recipientID int64, content string) error
	ListPrivateMessages(ctx context.Context, unreadOnly bool, page, limit int) ([]PrivateMessage, error)
	MarkPrivateMessageRead(ctx context.Context, pmID int64, read bool) error
}
