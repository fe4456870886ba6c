package governance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimod/vigil/cachestore"
	"github.com/fedimod/vigil/notify"
	"github.com/fedimod/vigil/platform"
	"github.com/fedimod/vigil/store"
	"github.com/fedimod/vigil/users"
)

const govCommunityID = int64(42)

func testService(t *testing.T) (*Service, *platform.MockClient) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open("sqlite://:memory:", 1, logger)
	require.NoError(t, err)
	client := platform.NewMockClient()
	usvc := users.NewService(st, client, users.Config{AdminFlair: "![admin](https://here.example/crown.png \"emoji\")"}, logger)
	cache := cachestore.NewMemCacheStore(100, time.Hour)
	return NewService(st, client, usvc, cache, &notify.Capture{}, govCommunityID, logger), client
}

func addVoter(t *testing.T, svc *Service, url string) *store.User {
	t.Helper()
	u, err := svc.Store.EnsureUser(url)
	require.NoError(t, err)
	require.NoError(t, svc.Store.AddRole(u.ID, store.RoleVoter))
	return u
}

func govCommunity() platform.Community {
	return platform.Community{ID: govCommunityID, Name: "governance", Local: true}
}

func TestComputeTallyScenario(t *testing.T) {
	svc, client := testService(t)
	ctx := context.Background()

	// one admin upvoter, known to the snapshot
	adminURL := "https://here.example/u/admin"
	client.Admins = []platform.Person{{ID: 1, ActorURL: adminURL}}
	require.NoError(t, svc.RefreshAdmins(ctx))

	var votes []platform.Vote
	votes = append(votes, platform.Vote{
		Voter: platform.Person{ID: 1, Name: "admin", ActorURL: adminURL, Local: true},
		Score: 1,
	})
	for i := 0; i < 11; i++ {
		url := fmt.Sprintf("https://here.example/u/yes%d", i)
		addVoter(t, svc, url)
		votes = append(votes, platform.Vote{
			Voter: platform.Person{ID: int64(100 + i), Name: fmt.Sprintf("yes%d", i), ActorURL: url, Local: true},
			Score: 1,
		})
	}
	for i := 0; i < 3; i++ {
		url := fmt.Sprintf("https://here.example/u/no%d", i)
		addVoter(t, svc, url)
		votes = append(votes, platform.Vote{
			Voter: platform.Person{ID: int64(200 + i), Name: fmt.Sprintf("no%d", i), ActorURL: url, Local: true},
			Score: -1,
		})
	}
	// 450 net from local accounts without voting rights
	for i := 0; i < 450; i++ {
		votes = append(votes, platform.Vote{
			Voter: platform.Person{ID: int64(1000 + i), ActorURL: fmt.Sprintf("https://here.example/u/crowd%d", i), Local: true},
			Score: 1,
		})
	}

	tally := svc.Compute(ctx, votes)
	assert.Equal(t, int64(12), tally.Upvotes)
	assert.Equal(t, int64(3), tally.Downvotes)
	assert.InDelta(t, 4.5, tally.LocalTerm, 0.001)
	assert.InDelta(t, 13.5, tally.Score, 0.001)
	// percentage over 12+3+4.5
	assert.InDelta(t, 61.5, tally.Percentage, 0.1)

	thread := &store.VoteThread{Kind: store.VoteSimpleMajority, ExpiresAt: time.Now().Add(time.Hour)}
	body := svc.Format(tally, thread, time.Now())
	// 12 upvoters: grouped counts, one of them the flaired admin
	assert.Contains(t, body, "11 × no flair")
	assert.Contains(t, body, "1 × ![admin]")
	// 3 downvoters: listed individually
	assert.Contains(t, body, "- no0\n")
	assert.Contains(t, body, "+4.5")
}

func TestLocalTermIsBounded(t *testing.T) {
	up := make([]int64, 5000)
	for i := range up {
		up[i] = 1
	}
	assert.InDelta(t, 10, localNonVoterTerm(up), 0.001)

	down := make([]int64, 5000)
	for i := range down {
		down[i] = -1
	}
	assert.InDelta(t, -10, localNonVoterTerm(down), 0.001)

	assert.InDelta(t, 0, localNonVoterTerm(nil), 0.001)
	assert.InDelta(t, 0.5, localNonVoterTerm([]int64{1, 1, 1, 1, 1,
		1, 1, 1, 1, 1,
		1, 1, 1, 1, 1,
		1, 1, 1, 1, 1,
		1, 1, 1, 1, 1,
		1, 1, 1, 1, 1,
		1, 1, 1, 1, 1,
		1, 1, 1, 1, 1,
		1, 1, 1, 1, 1,
		1, 1}), 0.001)
}

func TestExternalSentimentBands(t *testing.T) {
	cases := []struct {
		sum  int64
		want string
	}{
		{0, "Neutral"},
		{1, "Positive"},
		{99, "Positive"},
		{100, "Very Positive"},
		{1000, "Extremely Positive"},
		{-1, "Negative"},
		{-100, "Very Negative"},
		{-5000, "Extremely Negative"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Tally{ExternalSum: c.sum}.ExternalSentiment(), "sum %d", c.sum)
	}
}

func TestPercentageZeroWhenNoVotes(t *testing.T) {
	svc, _ := testService(t)
	tally := svc.Compute(context.Background(), nil)
	assert.Zero(t, tally.Percentage)
	assert.Zero(t, tally.Score)
}

func TestParseExpiryDays(t *testing.T) {
	assert.Equal(t, 7, parseExpiryDays("no marker here"))
	assert.Equal(t, 3, parseExpiryDays("please vote\n\nexpiry: 3"))
	assert.Equal(t, 30, parseExpiryDays("expiry: 90"))
	assert.Equal(t, 1, parseExpiryDays("expiry: 0"))
}

func TestParseVoteKind(t *testing.T) {
	assert.Equal(t, store.VoteSimpleMajority, parseVoteKind("plain body"))
	assert.Equal(t, store.VoteSimpleMajority, parseVoteKind("governance type: Simple Majority"))
	assert.Equal(t, store.VoteSenseCheck, parseVoteKind("governance type: sense-check"))
	assert.Equal(t, store.VoteOther, parseVoteKind("governance type: vibes"))
}

func TestDetectTracksQualifyingPost(t *testing.T) {
	svc, client := testService(t)
	authorURL := "https://here.example/u/organizer"
	addVoter(t, svc, authorURL)

	published := time.Now().UTC().Truncate(time.Second)
	client.Posts = []platform.Post{{
		ID:        500,
		Title:     "Should we defederate?",
		Body:      "Discuss below.\n\nexpiry: 3\ngovernance type: sense check",
		Author:    platform.Person{ID: 9, Name: "organizer", ActorURL: authorURL, Local: true},
		Community: govCommunity(),
		Published: published,
	}}

	require.NoError(t, svc.DetectThreads(context.Background()))

	v, err := svc.Store.GetVoteThread(500)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, store.VoteSenseCheck, v.Kind)
	assert.WithinDuration(t, published.Add(3*24*time.Hour), v.ExpiresAt, time.Second)

	// re-detection does not duplicate
	require.NoError(t, svc.DetectThreads(context.Background()))
}

func TestDetectRejectsEmptyBody(t *testing.T) {
	svc, client := testService(t)
	client.Posts = []platform.Post{{
		ID:        510,
		Title:     "vote now",
		Body:      "   ",
		Author:    platform.Person{ID: 9, ActorURL: "https://here.example/u/organizer", Local: true},
		Community: govCommunity(),
		Published: time.Now(),
	}}

	require.NoError(t, svc.DetectThreads(context.Background()))

	v, err := svc.Store.GetVoteThread(510)
	require.NoError(t, err)
	assert.Nil(t, v)
	require.Len(t, client.CreatedComments, 1)
	assert.Contains(t, client.CreatedComments[0].Content, "no body text")
	assert.True(t, client.LockedPosts[510])
	assert.True(t, client.RemovedPosts[510])
}

func TestDetectRejectsAuthorWithoutVotingRights(t *testing.T) {
	svc, client := testService(t)
	client.Posts = []platform.Post{{
		ID:        520,
		Title:     "vote now",
		Body:      "a real description",
		Author:    platform.Person{ID: 9, ActorURL: "https://here.example/u/rando", Local: true},
		Community: govCommunity(),
		Published: time.Now(),
	}}

	require.NoError(t, svc.DetectThreads(context.Background()))

	v, err := svc.Store.GetVoteThread(520)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.True(t, client.RemovedPosts[520])
}

func TestStatusCommentCreatedOnceThenEdited(t *testing.T) {
	svc, client := testService(t)
	author, err := svc.Store.EnsureUser("https://here.example/u/organizer")
	require.NoError(t, err)
	v := &store.VoteThread{
		PostID:    600,
		Kind:      store.VoteSimpleMajority,
		AuthorID:  author.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, svc.Store.CreateVoteThread(v))

	voterURL := "https://here.example/u/yes"
	addVoter(t, svc, voterURL)
	client.Votes[600] = []platform.Vote{{
		Voter: platform.Person{ID: 3, Name: "yes", ActorURL: voterURL, Local: true},
		Score: 1,
	}}

	require.NoError(t, svc.UpdateThread(context.Background(), v))
	require.Len(t, client.CreatedComments, 1)
	require.NotNil(t, v.StatusCommentID)
	assert.True(t, client.Distinguished[*v.StatusCommentID])

	require.NoError(t, svc.UpdateThread(context.Background(), v))
	assert.Len(t, client.CreatedComments, 1)
	assert.Contains(t, client.EditedComments[*v.StatusCommentID], "In favor: 1")
	assert.Equal(t, int64(1), v.Upvotes)
	assert.False(t, v.Locked)
}

func TestExpiredThreadPublishesFinalTallyAndLocks(t *testing.T) {
	svc, client := testService(t)
	author, err := svc.Store.EnsureUser("https://here.example/u/organizer")
	require.NoError(t, err)
	v := &store.VoteThread{
		PostID:    610,
		Kind:      store.VoteSimpleMajority,
		AuthorID:  author.ID,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, svc.Store.CreateVoteThread(v))

	require.NoError(t, svc.UpdateThread(context.Background(), v))

	assert.True(t, client.LockedPosts[610])
	assert.True(t, v.Locked)
	require.Len(t, client.CreatedComments, 1)
	assert.Contains(t, client.CreatedComments[0].Content, "concluded")

	active, err := svc.Store.ActiveVoteThreads()
	require.NoError(t, err)
	assert.Empty(t, active)
}
