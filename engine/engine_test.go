package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimod/vigil/notify"
	"github.com/fedimod/vigil/platform"
	"github.com/fedimod/vigil/store"
	"github.com/fedimod/vigil/users"
)

func testEngine(t *testing.T) (*Engine, *platform.MockClient, *notify.Capture) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open("sqlite://:memory:", 1, logger)
	require.NoError(t, err)
	client := platform.NewMockClient()
	usvc := users.NewService(st, client, users.Config{}, logger)
	capture := &notify.Capture{}
	return New(st, client, capture, usvc, logger), client, capture
}

func localCommunity() platform.Community {
	return platform.Community{ID: 1, Name: "general", Local: true}
}

func spamAuthor() platform.Person {
	return platform.Person{ID: 77, Name: "pillpusher", ActorURL: "https://spam.example/u/pillpusher"}
}

func mustCreateFilter(t *testing.T, eng *Engine, f store.Filter) store.Filter {
	t.Helper()
	require.NoError(t, eng.Store.CreateFilter(&f))
	return f
}

func TestScanPostsRemovesMatchingPost(t *testing.T) {
	eng, client, capture := testEngine(t)
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `buy.*mg.*online`,
		Target:  store.TargetContent,
		Action:  store.TierRemove,
		Reason:  "pharma spam",
	})
	client.Posts = []platform.Post{{
		ID:          101,
		Title:       "Buy tramadol 50mg online no prescription",
		ActivityURL: "https://here.example/post/101",
		Author:      spamAuthor(),
		Community:   localCommunity(),
	}}

	require.NoError(t, eng.ScanPosts(context.Background()))

	assert.True(t, client.RemovedPosts[101])
	assert.Equal(t, 1, client.PostRemovalCalls)
	assert.Empty(t, client.BanCalls)

	m, err := eng.Store.GetMatchByEntity(101)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "https://spam.example/u/pillpusher", m.ActorURL)

	seen, err := eng.Store.HasSeen(101, store.EntityPost)
	require.NoError(t, err)
	assert.True(t, seen)
	assert.NotEmpty(t, capture.Messages)
}

func TestScanPostsIsIdempotent(t *testing.T) {
	eng, client, _ := testEngine(t)
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `casino`,
		Target:  store.TargetContent,
		Action:  store.TierRemove,
		Reason:  "gambling spam",
	})
	client.Posts = []platform.Post{{
		ID:        200,
		Title:     "best casino bonuses",
		Author:    spamAuthor(),
		Community: localCommunity(),
	}}

	require.NoError(t, eng.ScanPosts(context.Background()))
	require.NoError(t, eng.ScanPosts(context.Background()))

	assert.Equal(t, 1, client.PostRemovalCalls)
}

func TestMostSevereFilterWinsAndSuppressesReport(t *testing.T) {
	eng, client, _ := testEngine(t)
	// the report filter gets the lower ID but the ban filter evaluates first
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `crypto`,
		Target:  store.TargetContent,
		Action:  store.TierReportOnly,
		Reason:  "possible scam",
	})
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `send.*wallet`,
		Target:  store.TargetContent,
		Action:  store.TierPermaBan,
		Reason:  "wallet drain scam",
	})
	client.Posts = []platform.Post{{
		ID:        300,
		Title:     "crypto giveaway, send to this wallet",
		Author:    spamAuthor(),
		Community: localCommunity(),
	}}

	require.NoError(t, eng.ScanPosts(context.Background()))

	assert.True(t, client.RemovedPosts[300])
	require.Len(t, client.BanCalls, 1)
	assert.Nil(t, client.BanCalls[0].Expires)
	assert.Empty(t, client.PostReportCalls)
}

func TestAtMostOneRemovalAndOneBanPerItem(t *testing.T) {
	eng, client, _ := testEngine(t)
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `viagra`,
		Target:  store.TargetContent,
		Action:  store.TierBan7,
		Reason:  "pharma spam",
	})
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `cialis`,
		Target:  store.TargetContent,
		Action:  store.TierRemove,
		Reason:  "pharma spam",
	})
	client.Posts = []platform.Post{{
		ID:        400,
		Title:     "cheap viagra and cialis",
		Author:    spamAuthor(),
		Community: localCommunity(),
	}}

	require.NoError(t, eng.ScanPosts(context.Background()))

	// the ban tier evaluates first; the plain remove filter never fires
	assert.Equal(t, 1, client.PostRemovalCalls)
	require.Len(t, client.BanCalls, 1)
	assert.NotNil(t, client.BanCalls[0].Expires)
	assert.False(t, client.BanCalls[0].RemoveData)
}

func TestRemoveBanTierPurgesData(t *testing.T) {
	eng, client, _ := testEngine(t)
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `csam`,
		Target:  store.TargetContent,
		Action:  store.TierRemoveBan,
		Reason:  "illegal content",
	})
	client.Posts = []platform.Post{{
		ID:        410,
		Title:     "csam link dump",
		Author:    spamAuthor(),
		Community: localCommunity(),
	}}

	require.NoError(t, eng.ScanPosts(context.Background()))

	assert.True(t, client.RemovedPosts[410])
	require.Len(t, client.BanCalls, 1)
	assert.Nil(t, client.BanCalls[0].Expires)
	assert.True(t, client.BanCalls[0].RemoveData)
}

func TestReportOnlyFiresOncePerItem(t *testing.T) {
	eng, client, _ := testEngine(t)
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `sketchy`,
		Target:  store.TargetContent,
		Action:  store.TierReportOnly,
		Reason:  "needs review",
	})
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `dubious`,
		Target:  store.TargetContent,
		Action:  store.TierReportOnly,
		Reason:  "needs review",
	})
	client.Posts = []platform.Post{{
		ID:        500,
		Title:     "a sketchy and dubious offer",
		Author:    spamAuthor(),
		Community: localCommunity(),
	}}

	require.NoError(t, eng.ScanPosts(context.Background()))

	assert.Len(t, client.PostReportCalls, 1)
	assert.False(t, client.RemovedPosts[500])
}

func TestBanExpiryForTimedBans(t *testing.T) {
	eng, client, _ := testEngine(t)
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `flamebait`,
		Target:  store.TargetContent,
		Action:  store.TierBan7,
		Reason:  "repeated flamebait",
	})
	client.Posts = []platform.Post{{
		ID:        600,
		Title:     "pure flamebait",
		Author:    spamAuthor(),
		Community: localCommunity(),
	}}

	require.NoError(t, eng.ScanPosts(context.Background()))

	require.Len(t, client.BanCalls, 1)
	require.NotNil(t, client.BanCalls[0].Expires)
	assert.False(t, client.BanCalls[0].RemoveData)
}

func TestKnownUserBypassesFilters(t *testing.T) {
	eng, client, _ := testEngine(t)
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `casino`,
		Target:  store.TargetContent,
		Action:  store.TierRemove,
		Reason:  "gambling spam",
	})
	author := spamAuthor()
	u, err := eng.Store.EnsureUser(author.ActorURL)
	require.NoError(t, err)
	require.NoError(t, eng.Store.AddRole(u.ID, store.RoleKnown))

	client.Posts = []platform.Post{{
		ID:        700,
		Title:     "my trip report from the casino",
		Author:    author,
		Community: localCommunity(),
	}}

	require.NoError(t, eng.ScanPosts(context.Background()))

	assert.Equal(t, 0, client.PostRemovalCalls)
	// bypassed items still land in the dedup ledger
	seen, err := eng.Store.HasSeen(700, store.EntityPost)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestReportedItemsSkipReportOnlyFilters(t *testing.T) {
	eng, client, _ := testEngine(t)
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `spammy`,
		Target:  store.TargetReport,
		Action:  store.TierReportOnly,
		Reason:  "needs review",
	})
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `slurs`,
		Target:  store.TargetReport,
		Action:  store.TierRemove,
		Reason:  "abusive content",
	})
	client.Reports = []platform.Report{
		{
			ID:     1,
			Reason: "please look at this",
			Post: &platform.Post{
				ID:        800,
				Title:     "spammy garbage",
				Author:    spamAuthor(),
				Community: localCommunity(),
			},
		},
		{
			ID:     2,
			Reason: "abuse",
			Comment: &platform.Comment{
				ID:        801,
				Body:      "comment full of slurs",
				Author:    spamAuthor(),
				Community: localCommunity(),
			},
		},
	}

	require.NoError(t, eng.ScanReports(context.Background()))

	// already flagged by a human, so no second report
	assert.Empty(t, client.PostReportCalls)
	assert.True(t, client.RemovedComments[801])

	// the dedup ledger tracks the report, not its target
	seen, err := eng.Store.HasSeen(1, store.EntityReport)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestLocalScopeSkipsRemoteCommunities(t *testing.T) {
	eng, client, _ := testEngine(t)
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `casino`,
		Target:  store.TargetContent,
		Action:  store.TierRemove,
		Scope:   store.ScopeLocal,
		Reason:  "gambling spam",
	})
	client.Posts = []platform.Post{
		{
			ID:        900,
			Title:     "casino bonuses",
			Author:    spamAuthor(),
			Community: platform.Community{ID: 9, Name: "remote", Local: false},
		},
		{
			ID:        901,
			Title:     "casino bonuses",
			Author:    spamAuthor(),
			Community: localCommunity(),
		},
	}

	require.NoError(t, eng.ScanPosts(context.Background()))

	assert.False(t, client.RemovedPosts[900])
	assert.True(t, client.RemovedPosts[901])
}

func TestNamedScopeOnlyMatchesThatCommunity(t *testing.T) {
	eng, client, _ := testEngine(t)
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `offtopic`,
		Target:  store.TargetContent,
		Action:  store.TierRemove,
		Scope:   "programming",
		Reason:  "off topic",
	})
	client.Posts = []platform.Post{
		{
			ID:        910,
			Title:     "offtopic rant",
			Author:    spamAuthor(),
			Community: localCommunity(),
		},
		{
			ID:        911,
			Title:     "offtopic rant",
			Author:    spamAuthor(),
			Community: platform.Community{ID: 3, Name: "programming", Local: true},
		},
	}

	require.NoError(t, eng.ScanPosts(context.Background()))

	assert.False(t, client.RemovedPosts[910])
	assert.True(t, client.RemovedPosts[911])
}

func TestPlatformFailureStillRecordsMatchAndSeen(t *testing.T) {
	eng, client, _ := testEngine(t)
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `casino`,
		Target:  store.TargetContent,
		Action:  store.TierRemove,
		Reason:  "gambling spam",
	})
	client.ErrOps["remove_post"] = assert.AnError
	client.Posts = []platform.Post{{
		ID:        920,
		Title:     "casino bonuses",
		Author:    spamAuthor(),
		Community: localCommunity(),
	}}

	require.NoError(t, eng.ScanPosts(context.Background()))

	m, err := eng.Store.GetMatchByEntity(920)
	require.NoError(t, err)
	assert.NotNil(t, m)
	seen, err := eng.Store.HasSeen(920, store.EntityPost)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestScanStopsAtFirstSeenPage(t *testing.T) {
	eng, client, _ := testEngine(t)
	// two full pages of clean posts, second page already processed
	for i := int64(1); i <= 20; i++ {
		client.Posts = append(client.Posts, platform.Post{
			ID:        1000 + i,
			Title:     "harmless",
			Author:    spamAuthor(),
			Community: localCommunity(),
		})
	}
	for i := int64(11); i <= 20; i++ {
		require.NoError(t, eng.Store.MarkSeen(1000+i, store.EntityPost, ""))
	}

	require.NoError(t, eng.ScanPosts(context.Background()))

	// page one was fresh and got processed before the short-circuit
	seen, err := eng.Store.HasSeen(1001, store.EntityPost)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestUncompilableFilterIsSkipped(t *testing.T) {
	eng, _, _ := testEngine(t)
	compiled := eng.compileFilters([]store.Filter{
		{Pattern: `(unclosed`, Target: store.TargetContent, Action: store.TierRemove},
		{Pattern: `fine`, Target: store.TargetContent, Action: store.TierRemove},
	})
	assert.Len(t, compiled, 1)
}

func TestURLFilterMatchesPostLink(t *testing.T) {
	eng, client, _ := testEngine(t)
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `shady\.example`,
		Target:  store.TargetURL,
		Action:  store.TierRemove,
		Reason:  "blocked domain",
	})
	client.Posts = []platform.Post{{
		ID:        930,
		Title:     "check this out",
		URL:       "https://shady.example/win",
		Author:    spamAuthor(),
		Community: localCommunity(),
	}}

	require.NoError(t, eng.ScanPosts(context.Background()))
	assert.True(t, client.RemovedPosts[930])
}

func TestUsernameFilterBansAuthor(t *testing.T) {
	eng, client, _ := testEngine(t)
	mustCreateFilter(t, eng, store.Filter{
		Pattern: `^pillpusher$`,
		Target:  store.TargetUsername,
		Action:  store.TierPermaBan,
		Reason:  "spam account pattern",
	})
	client.Comments = []platform.Comment{{
		ID:        940,
		Body:      "hello",
		Author:    spamAuthor(),
		Community: localCommunity(),
	}}

	require.NoError(t, eng.ScanComments(context.Background()))

	assert.True(t, client.RemovedComments[940])
	require.Len(t, client.BanCalls, 1)
	assert.Equal(t, int64(77), client.BanCalls[0].PersonID)
}
