// Package governance tracks community vote threads and maintains their
// published tallies. A qualifying post in the governance community becomes a
// tracked thread; each cycle refreshes the tally into a single maintained
// status comment until the thread expires and the post is locked.
package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fedimod/vigil/cachestore"
	"github.com/fedimod/vigil/moderr"
	"github.com/fedimod/vigil/notify"
	"github.com/fedimod/vigil/platform"
	"github.com/fedimod/vigil/store"
	"github.com/fedimod/vigil/users"
)

const (
	defaultExpiryDays = 7
	maxExpiryDays     = 30
	votePageSize      = 50
	adminCacheName    = "admins"
	adminCacheKey     = "site"
)

var (
	expiryMarker   = regexp.MustCompile(`(?i)expiry:\s*(\d+)`)
	voteKindMarker = regexp.MustCompile(`(?i)governance type:\s*([a-z_ -]+)`)
)

type Service struct {
	Store    *store.Store
	Client   platform.Client
	Users    *users.Service
	Cache    cachestore.CacheStore
	Notifier notify.Notifier
	Logger   *slog.Logger

	BotName string

	// CommunityID is the governance community polled for new vote threads.
	// Zero disables detection; existing threads are still refreshed.
	CommunityID int64
}

func NewService(st *store.Store, client platform.Client, usvc *users.Service, cache cachestore.CacheStore, notifier notify.Notifier, communityID int64, logger *slog.Logger) *Service {
	return &Service{
		Store:       st,
		Client:      client,
		Users:       usvc,
		Cache:       cache,
		Notifier:    notifier,
		Logger:      logger.With("system", "governance"),
		BotName:     "vigil",
		CommunityID: communityID,
	}
}

// RunCycle is one governance pass: refresh the admin snapshot, pick up new
// qualifying posts, then re-tally every active thread and lock the expired
// ones. Per-thread failures are logged and the pass continues.
func (s *Service) RunCycle(ctx context.Context) {
	if err := s.RefreshAdmins(ctx); err != nil {
		s.Logger.Error("refreshing admin snapshot", "err", err)
	}
	if s.CommunityID != 0 {
		if err := s.DetectThreads(ctx); err != nil {
			s.Logger.Error("detecting vote threads", "err", err)
		}
	}
	threads, err := s.Store.ActiveVoteThreads()
	if err != nil {
		s.Logger.Error("loading active vote threads", "err", err)
		return
	}
	for i := range threads {
		if err := s.UpdateThread(ctx, &threads[i]); err != nil {
			s.Logger.Error("updating vote thread", "post", threads[i].PostID, "err", err)
		}
	}
}

// RefreshAdmins snapshots the platform's site admin set into the cache as a
// JSON list of actor URLs. Consumers read the snapshot, never the live list.
func (s *Service) RefreshAdmins(ctx context.Context) error {
	admins, err := s.Client.SiteAdmins(ctx)
	if err != nil {
		return moderr.Transient("listing site admins", err)
	}
	urls := make([]string, 0, len(admins))
	for _, a := range admins {
		urls = append(urls, strings.ToLower(a.ActorURL))
	}
	blob, err := json.Marshal(urls)
	if err != nil {
		return err
	}
	return s.Cache.Set(ctx, adminCacheName, adminCacheKey, string(blob))
}

func (s *Service) isAdmin(ctx context.Context, actorURL string) bool {
	blob, err := s.Cache.Get(ctx, adminCacheName, adminCacheKey)
	if err != nil || blob == "" {
		return false
	}
	var urls []string
	if err := json.Unmarshal([]byte(blob), &urls); err != nil {
		return false
	}
	actorURL = strings.ToLower(actorURL)
	for _, u := range urls {
		if u == actorURL {
			return true
		}
	}
	return false
}

// DetectThreads walks the first page of the governance community and starts
// tracking qualifying posts. Posts from authors without voting rights, or
// with an empty body, get a control comment and are locked and removed.
func (s *Service) DetectThreads(ctx context.Context) error {
	posts, err := s.Client.ListPosts(ctx, s.CommunityID, 1, 20)
	if err != nil {
		return moderr.Transient("listing governance posts", err)
	}
	for _, p := range posts {
		if p.Removed || p.Deleted || p.Locked {
			continue
		}
		existing, err := s.Store.GetVoteThread(p.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.trackPost(ctx, p); err != nil {
			s.Logger.Error("tracking governance post", "post", p.ID, "err", err)
		}
	}
	return nil
}

func (s *Service) trackPost(ctx context.Context, p platform.Post) error {
	if strings.TrimSpace(p.Body) == "" {
		return s.rejectPost(ctx, p,
			"This governance post has no body text. A vote thread must describe what is being voted on, so this post has been removed. Feel free to post it again with a description.")
	}
	author, err := s.Store.EnsureUser(p.Author.ActorURL)
	if err != nil {
		return err
	}
	if !s.Users.CanVote(author) && !s.isAdmin(ctx, p.Author.ActorURL) {
		return s.rejectPost(ctx, p,
			"Only users with voting rights can open governance vote threads, so this post has been removed.")
	}

	expires := p.Published.Add(time.Duration(parseExpiryDays(p.Body)) * 24 * time.Hour)
	v := &store.VoteThread{
		PostID:    p.ID,
		Kind:      parseVoteKind(p.Body),
		AuthorID:  author.ID,
		ExpiresAt: expires,
	}
	if err := s.Store.CreateVoteThread(v); err != nil {
		return err
	}
	s.Logger.Info("tracking vote thread", "post", p.ID, "kind", v.Kind, "expires", v.ExpiresAt)
	s.Notifier.Send(ctx, fmt.Sprintf("Tracking new governance vote thread on post %d (%s), expires %s",
		p.ID, v.Kind, v.ExpiresAt.Format(time.RFC3339)))
	return nil
}

// rejectPost posts the control comment, then locks and removes the thread.
func (s *Service) rejectPost(ctx context.Context, p platform.Post, explanation string) error {
	if cid, err := s.Client.CreateComment(ctx, p.ID, nil, explanation); err != nil {
		s.Logger.Error("posting control comment", "post", p.ID, "err", err)
	} else if err := s.Client.DistinguishComment(ctx, cid, true); err != nil {
		s.Logger.Error("distinguishing control comment", "comment", cid, "err", err)
	}
	if err := s.Client.LockPost(ctx, p.ID, true); err != nil {
		s.Logger.Error("locking rejected governance post", "post", p.ID, "err", err)
	}
	if err := s.Client.RemovePost(ctx, p.ID, true, fmt.Sprintf("%s: not a valid governance vote thread", s.BotName)); err != nil {
		return moderr.Transient("removing rejected governance post", err)
	}
	s.Logger.Info("rejected governance post", "post", p.ID)
	return nil
}

// UpdateThread refreshes one thread's tally into its status comment. Once the
// thread has expired the final tally is published, the post locked, and the
// thread retired from the active set.
func (s *Service) UpdateThread(ctx context.Context, v *store.VoteThread) error {
	votes, err := s.fetchAllVotes(ctx, v.PostID)
	if err != nil {
		return err
	}
	tally := s.Compute(ctx, votes)
	v.Upvotes = tally.Upvotes
	v.Downvotes = tally.Downvotes

	now := time.Now().UTC()
	expired := v.Expired(now)
	body := s.Format(tally, v, now)

	if v.StatusCommentID == nil {
		cid, err := s.Client.CreateComment(ctx, v.PostID, nil, body)
		if err != nil {
			return moderr.Transient("creating status comment", err)
		}
		if err := s.Client.DistinguishComment(ctx, cid, true); err != nil {
			s.Logger.Error("distinguishing status comment", "comment", cid, "err", err)
		}
		v.StatusCommentID = &cid
	} else if err := s.Client.EditComment(ctx, *v.StatusCommentID, body); err != nil {
		return moderr.Transient("editing status comment", err)
	}

	if expired {
		if err := s.Client.LockPost(ctx, v.PostID, true); err != nil {
			s.Logger.Error("locking expired vote thread", "post", v.PostID, "err", err)
		} else {
			v.Locked = true
			s.Notifier.Send(ctx, fmt.Sprintf("Governance vote on post %d closed: %s", v.PostID, tally.Summary()))
		}
	}
	return s.Store.SaveVoteThread(v)
}

// fetchAllVotes pages through the platform's vote listing, stopping on the
// first short page.
func (s *Service) fetchAllVotes(ctx context.Context, postID int64) ([]platform.Vote, error) {
	var all []platform.Vote
	for page := 1; ; page++ {
		votes, err := s.Client.ListVotes(ctx, postID, page, votePageSize)
		if err != nil {
			return nil, moderr.Transient("listing votes", err)
		}
		all = append(all, votes...)
		if len(votes) < votePageSize {
			return all, nil
		}
	}
}

// parseExpiryDays reads the "expiry: N" marker from the post body, clamped
// to 1..30 days, defaulting to 7.
func parseExpiryDays(body string) int {
	m := expiryMarker.FindStringSubmatch(body)
	if m == nil {
		return defaultExpiryDays
	}
	days, err := strconv.Atoi(m[1])
	if err != nil || days < 1 {
		return 1
	}
	if days > maxExpiryDays {
		return maxExpiryDays
	}
	return days
}

// parseVoteKind reads the "governance type: ..." marker. Unknown or missing
// kinds fall back to a simple majority vote.
func parseVoteKind(body string) store.VoteKind {
	m := voteKindMarker.FindStringSubmatch(body)
	if m == nil {
		return store.VoteSimpleMajority
	}
	kind := strings.TrimSpace(strings.ToLower(m[1]))
	kind = strings.ReplaceAll(kind, "-", " ")
	kind = strings.ReplaceAll(kind, "_", " ")
	switch kind {
	case "simple majority":
		return store.VoteSimpleMajority
	case "sense check":
		return store.VoteSenseCheck
	default:
		return store.VoteOther
	}
}
