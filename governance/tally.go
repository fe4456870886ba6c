package governance

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/fedimod/vigil/platform"
	"github.com/fedimod/vigil/store"
)

// localSampleCap bounds how many local non-voter scores feed the tally; with
// the /100 scaling this keeps their term inside roughly +/-10.
const localSampleCap = 1000

// groupFlairThreshold is the side size past which individual voters are no
// longer listed and their flairs are grouped into counts instead.
const groupFlairThreshold = 10

// VoterEntry is one valid vote, annotated with the voter's flair markdown.
type VoterEntry struct {
	Name  string
	Flair string
}

// Tally is the computed outcome of one vote thread.
type Tally struct {
	Upvotes    int64
	Downvotes  int64
	UpVoters   []VoterEntry
	DownVoters []VoterEntry

	// LocalTerm is the bounded influence of local accounts without voting
	// rights: a capped sample of their scores, summed and divided by 100.
	LocalTerm float64

	// ExternalSum is the raw net score from remote accounts; it only ever
	// surfaces as a qualitative sentiment band.
	ExternalSum int64

	Score      float64
	Percentage float64
}

// Compute partitions the vote list into valid votes, local non-voters, and
// external non-voters, and derives the published numbers. A valid vote comes
// from an account with voting rights or a site admin.
func (s *Service) Compute(ctx context.Context, votes []platform.Vote) Tally {
	var t Tally
	var localScores []int64

	for _, vote := range votes {
		if vote.Score == 0 {
			continue
		}
		u, err := s.Store.GetUser(vote.Voter.ActorURL)
		if err != nil {
			s.Logger.Error("voter lookup failed", "actor", vote.Voter.ActorURL, "err", err)
			continue
		}
		admin := s.isAdmin(ctx, vote.Voter.ActorURL)
		if admin || (u != nil && s.Users.CanVote(u)) {
			flair := ""
			if admin {
				flair = s.Users.Config.AdminFlair
			} else {
				flair = s.Users.VotingFlair(u)
			}
			entry := VoterEntry{Name: vote.Voter.Name, Flair: flair}
			if vote.Score > 0 {
				t.Upvotes++
				t.UpVoters = append(t.UpVoters, entry)
			} else {
				t.Downvotes++
				t.DownVoters = append(t.DownVoters, entry)
			}
			continue
		}
		if vote.Voter.Local {
			localScores = append(localScores, vote.Score)
		} else {
			t.ExternalSum += vote.Score
		}
	}

	t.LocalTerm = localNonVoterTerm(localScores)
	t.Score = float64(t.Upvotes-t.Downvotes) + t.LocalTerm
	denom := float64(t.Upvotes+t.Downvotes) + t.LocalTerm
	if denom > 0 {
		t.Percentage = float64(t.Upvotes) / denom * 100
		if t.Percentage > 100 {
			t.Percentage = 100
		}
	}
	return t
}

// localNonVoterTerm samples at most localSampleCap scores, sums them, and
// scales by 100 rounded to one decimal. The result is clamped to +/-10 so
// local headcount nudges the outcome without dominating it.
func localNonVoterTerm(scores []int64) float64 {
	if len(scores) == 0 {
		return 0
	}
	rand.Shuffle(len(scores), func(i, j int) {
		scores[i], scores[j] = scores[j], scores[i]
	})
	if len(scores) > localSampleCap {
		scores = scores[:localSampleCap]
	}
	var sum int64
	for _, sc := range scores {
		sum += sc
	}
	term := math.Round(float64(sum)/100*10) / 10
	if term > 10 {
		term = 10
	}
	if term < -10 {
		term = -10
	}
	return term
}

// ExternalSentiment maps the external non-voter sum onto qualitative bands.
func (t Tally) ExternalSentiment() string {
	sum := t.ExternalSum
	switch {
	case sum >= 1000:
		return "Extremely Positive"
	case sum >= 100:
		return "Very Positive"
	case sum > 0:
		return "Positive"
	case sum <= -1000:
		return "Extremely Negative"
	case sum <= -100:
		return "Very Negative"
	case sum < 0:
		return "Negative"
	}
	return "Neutral"
}

// Summary is the one-line form used in notifications.
func (t Tally) Summary() string {
	return fmt.Sprintf("%+.1f (%.1f%% in favor)", t.Score, t.Percentage)
}

// Format renders the status comment body for a thread.
func (s *Service) Format(t Tally, v *store.VoteThread, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Vote tally (%s)\n\n", voteKindLabel(v.Kind))
	fmt.Fprintf(&b, "**In favor: %d**\n\n%s\n", t.Upvotes, formatSide(t.UpVoters))
	fmt.Fprintf(&b, "**Against: %d**\n\n%s\n", t.Downvotes, formatSide(t.DownVoters))
	fmt.Fprintf(&b, "Local community sentiment: %+.1f\n\n", t.LocalTerm)
	fmt.Fprintf(&b, "Wider fediverse sentiment: %s\n\n", t.ExternalSentiment())
	fmt.Fprintf(&b, "**Current outcome: %+.1f (%.1f%% in favor)**\n\n", t.Score, t.Percentage)
	if v.Expired(now) {
		b.WriteString("This vote has concluded and the thread is locked.\n")
	} else {
		fmt.Fprintf(&b, "Voting closes at %s.\n", v.ExpiresAt.Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(&b, "\n*This comment is maintained by %s and updates on a schedule.*", s.BotName)
	return b.String()
}

// formatSide lists each voter with flair when the side is small, and groups
// flairs into counts once it exceeds the threshold.
func formatSide(voters []VoterEntry) string {
	if len(voters) == 0 {
		return "*no votes yet*\n"
	}
	if len(voters) <= groupFlairThreshold {
		var b strings.Builder
		for _, v := range voters {
			b.WriteString("- " + v.Name)
			if v.Flair != "" {
				b.WriteString(" " + v.Flair)
			}
			b.WriteString("\n")
		}
		return b.String()
	}

	counts := make(map[string]int)
	var order []string
	for _, v := range voters {
		flair := v.Flair
		if flair == "" {
			flair = "no flair"
		}
		if _, seen := counts[flair]; !seen {
			order = append(order, flair)
		}
		counts[flair]++
	}
	var b strings.Builder
	for _, flair := range order {
		fmt.Fprintf(&b, "- %d × %s\n", counts[flair], flair)
	}
	return b.String()
}

func voteKindLabel(k store.VoteKind) string {
	switch k {
	case store.VoteSimpleMajority:
		return "simple majority"
	case store.VoteSenseCheck:
		return "sense check"
	}
	return "other"
}
