package platform

import (
	"time"
)

// Person is a platform account, local or remote.
type Person struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ActorURL string `json:"actor_url"`
	Local    bool   `json:"local"`
}

// Community is the scope a post or comment was published in.
type Community struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Local bool   `json:"local"`
}

type Post struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url"`
	ActivityURL string    `json:"activity_url"`
	Author      Person    `json:"author"`
	Community   Community `json:"community"`
	Removed     bool      `json:"removed"`
	Locked      bool      `json:"locked"`
	Deleted     bool      `json:"deleted"`
	Upvotes     int64     `json:"upvotes"`
	Downvotes   int64     `json:"downvotes"`
	Published   time.Time `json:"published"`
}

type Comment struct {
	ID          int64     `json:"id"`
	PostID      int64     `json:"post_id"`
	Body        string    `json:"body"`
	ActivityURL string    `json:"activity_url"`
	Author      Person    `json:"author"`
	Community   Community `json:"community"`
	Published   time.Time `json:"published"`
}

// Report is a user-filed report against a post or comment. Exactly one of
// Post or Comment is set.
type Report struct {
	ID       int64    `json:"id"`
	Reason   string   `json:"reason"`
	Reporter Person   `json:"reporter"`
	Post     *Post    `json:"post,omitempty"`
	Comment  *Comment `json:"comment,omitempty"`
}

// Vote is one up/down vote on a post. Score is +1 or -1.
type Vote struct {
	Voter Person `json:"voter"`
	Score int64  `json:"score"`
}

type PrivateMessage struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
	Creator Person `json:"creator"`
	Read    bool   `json:"read"`
}
