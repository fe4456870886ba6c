package users

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimod/vigil/moderr"
	"github.com/fedimod/vigil/platform"
	"github.com/fedimod/vigil/store"
)

const (
	adminURL = "https://here.example/u/admin"
	modURL   = "https://here.example/u/mod"
)

func testService(t *testing.T, cfg Config) (*Service, *platform.MockClient) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open("sqlite://:memory:", 1, logger)
	require.NoError(t, err)
	client := platform.NewMockClient()
	svc := NewService(st, client, cfg, logger)

	require.NoError(t, svc.EnsureAdmin(context.Background(), adminURL))
	mod, err := st.EnsureUser(modURL)
	require.NoError(t, err)
	require.NoError(t, st.AddRole(mod.ID, store.RoleModerator))
	return svc, client
}

func userFacing(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	_, ok := moderr.AsUserFacing(err)
	assert.True(t, ok, "expected a user-facing error, got %v", err)
}

func TestEnsureAdmin(t *testing.T) {
	svc, _ := testService(t, Config{})
	u, err := svc.Store.GetUser(adminURL)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.HasRole(store.RoleAdmin))

	// idempotent
	require.NoError(t, svc.EnsureAdmin(context.Background(), adminURL))

	err = svc.EnsureAdmin(context.Background(), "")
	assert.True(t, moderr.IsDomain(err))
}

func TestGrantRolePrivilegeRules(t *testing.T) {
	svc, _ := testService(t, Config{})
	ctx := context.Background()
	target := "https://away.example/u/newbie"

	// nobody can hand out admin
	userFacing(t, svc.GrantRole(ctx, adminURL, target, store.RoleAdmin))

	// moderator requires an admin requester
	userFacing(t, svc.GrantRole(ctx, modURL, target, store.RoleModerator))
	require.NoError(t, svc.GrantRole(ctx, adminURL, target, store.RoleModerator))

	// trusted only needs a moderator
	require.NoError(t, svc.GrantRole(ctx, modURL, "https://away.example/u/helper", store.RoleTrusted))

	// plain users grant nothing
	userFacing(t, svc.GrantRole(ctx, "https://away.example/u/rando", target, store.RoleTrusted))
}

func TestRevokeRoleRules(t *testing.T) {
	svc, _ := testService(t, Config{})
	ctx := context.Background()
	target := "https://away.example/u/helper"
	require.NoError(t, svc.GrantRole(ctx, adminURL, target, store.RoleModerator))

	userFacing(t, svc.RevokeRole(ctx, modURL, target, store.RoleModerator))
	userFacing(t, svc.RevokeRole(ctx, adminURL, adminURL, store.RoleAdmin))
	userFacing(t, svc.RevokeRole(ctx, adminURL, "https://away.example/u/ghost", store.RoleTrusted))
	require.NoError(t, svc.RevokeRole(ctx, adminURL, target, store.RoleModerator))

	u, err := svc.Store.GetUser(target)
	require.NoError(t, err)
	assert.False(t, u.IsModerator())
}

func TestStandingFromTiersAndTags(t *testing.T) {
	svc, _ := testService(t, Config{
		TrustedTiers: []string{"gold"},
		KnownTiers:   []string{"bronze"},
		VotingTags:   []string{"vouched"},
	})
	ctx := context.Background()

	url := "https://here.example/u/donor"
	require.NoError(t, svc.ApplyDonationTier(ctx, url, "kofi_tier", "Gold", "", 30))
	u, err := svc.Store.GetUser(url)
	require.NoError(t, err)
	assert.True(t, svc.IsTrusted(u))
	assert.True(t, svc.IsKnown(u)) // trusted implies known
	assert.False(t, svc.CanVote(u))

	url2 := "https://here.example/u/smalldonor"
	require.NoError(t, svc.ApplyDonationTier(ctx, url2, "liberapay_tier", "bronze", "", 30))
	u2, err := svc.Store.GetUser(url2)
	require.NoError(t, err)
	assert.False(t, svc.IsTrusted(u2))
	assert.True(t, svc.IsKnown(u2))

	// expired tiers confer nothing
	url3 := "https://here.example/u/lapsed"
	u3, err := svc.Store.EnsureUser(url3)
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, svc.Store.SetTag(u3.ID, "kofi_tier", "gold", "", &past))
	u3, err = svc.Store.GetUser(url3)
	require.NoError(t, err)
	assert.False(t, svc.IsTrusted(u3))
}

func TestBypassesFilters(t *testing.T) {
	svc, _ := testService(t, Config{})
	ctx := context.Background()

	// unknown actors never bypass
	bypass, err := svc.BypassesFilters(ctx, "https://away.example/u/stranger")
	require.NoError(t, err)
	assert.False(t, bypass)

	url := "https://here.example/u/regular"
	u, err := svc.Store.EnsureUser(url)
	require.NoError(t, err)
	bypass, err = svc.BypassesFilters(ctx, url)
	require.NoError(t, err)
	assert.False(t, bypass)

	require.NoError(t, svc.Store.AddRole(u.ID, store.RoleKnown))
	bypass, err = svc.BypassesFilters(ctx, url)
	require.NoError(t, err)
	assert.True(t, bypass)
}

func TestVouchFlow(t *testing.T) {
	svc, client := testService(t, Config{VouchesPerUser: 2})
	ctx := context.Background()

	trustedURL := "https://here.example/u/elder"
	trusted, err := svc.Store.EnsureUser(trustedURL)
	require.NoError(t, err)
	require.NoError(t, svc.Store.AddRole(trusted.ID, store.RoleTrusted))

	for _, name := range []string{"alice", "bob", "carol", "elder"} {
		client.Persons[name] = platform.Person{
			ID:       int64(len(client.Persons) + 1),
			Name:     name,
			ActorURL: "https://here.example/u/" + name,
			Local:    true,
		}
	}

	// untrusted accounts cannot vouch
	_, err = svc.Vouch(ctx, "https://here.example/u/alice", "bob")
	userFacing(t, err)

	// self-vouch
	_, err = svc.Vouch(ctx, trustedURL, "elder")
	userFacing(t, err)

	// unknown target name
	_, err = svc.Vouch(ctx, trustedURL, "nobody")
	userFacing(t, err)

	target, err := svc.Vouch(ctx, trustedURL, "alice")
	require.NoError(t, err)
	tag, err := svc.Store.GetTag(target.ID, TagVouched)
	require.NoError(t, err)
	require.NotNil(t, tag)
	assert.Equal(t, trustedURL, tag.Value)

	// double vouch for the same target
	_, err = svc.Vouch(ctx, trustedURL, "alice")
	userFacing(t, err)

	// quota: second vouch fine, third rejected
	_, err = svc.Vouch(ctx, trustedURL, "bob")
	require.NoError(t, err)
	_, err = svc.Vouch(ctx, trustedURL, "carol")
	userFacing(t, err)

	// only the voucher can withdraw
	_, err = svc.WithdrawVouch(ctx, modURL, "alice")
	userFacing(t, err)
	_, err = svc.WithdrawVouch(ctx, trustedURL, "alice")
	require.NoError(t, err)
	tag, err = svc.Store.GetTag(target.ID, TagVouched)
	require.NoError(t, err)
	assert.Nil(t, tag)
}

func TestModeratorsSkipVouchQuota(t *testing.T) {
	svc, client := testService(t, Config{VouchesPerUser: 1})
	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "carol"} {
		client.Persons[name] = platform.Person{
			ID:       int64(len(client.Persons) + 1),
			Name:     name,
			ActorURL: "https://here.example/u/" + name,
			Local:    true,
		}
	}
	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := svc.Vouch(ctx, modURL, name)
		require.NoError(t, err)
	}
}

func TestVotingFlairPriority(t *testing.T) {
	svc, _ := testService(t, Config{
		FlairPriority: map[string]int{"kofi_tier": 1, "liberapay_tier": 2},
	})
	u, err := svc.Store.EnsureUser("https://here.example/u/donor")
	require.NoError(t, err)
	require.NoError(t, svc.Store.SetTag(u.ID, "liberapay_tier", "silver", "https://img/l.png", nil))
	require.NoError(t, svc.Store.SetTag(u.ID, "kofi_tier", "gold", "https://img/k.png", nil))
	// unprioritized flair never shows
	require.NoError(t, svc.Store.SetTag(u.ID, "custom", "x", "https://img/c.png", nil))

	u, err = svc.Store.GetUser(u.ActorURL)
	require.NoError(t, err)
	assert.Equal(t, FlairMarkdown("kofi_tier", "https://img/k.png"), svc.VotingFlair(u))

	all := svc.AllFlair(u)
	assert.Contains(t, all, "https://img/l.png")
	assert.Contains(t, all, "https://img/k.png")
	assert.Contains(t, all, "https://img/c.png")
}

func TestFlairMarkdown(t *testing.T) {
	assert.Equal(t, `![gold](https://img/g.png "emoji")`, FlairMarkdown("gold", "https://img/g.png"))
	assert.Empty(t, FlairMarkdown("gold", ""))
}
