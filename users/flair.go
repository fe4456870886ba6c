package users

import (
	"fmt"
	"time"

	"github.com/fedimod/vigil/store"
)

// FlairMarkdown renders one flair image as inline markdown, the way the
// platform renders custom emoji.
func FlairMarkdown(name, url string) string {
	if url == "" {
		return ""
	}
	return fmt.Sprintf("![%s](%s \"emoji\")", name, url)
}

// VotingFlair picks the user's highest-priority flaired tag (lower number
// wins in Config.FlairPriority) and returns its markdown. Tags without a
// configured priority never show on votes. Empty string means no flair.
func (s *Service) VotingFlair(u *store.User) string {
	now := time.Now().UTC()
	best := ""
	bestPriority := 0
	found := false
	for i := range u.Tags {
		tag := &u.Tags[i]
		if tag.Flair == "" || tag.Expired(now) {
			continue
		}
		priority, ok := s.Config.FlairPriority[tag.Key]
		if !ok {
			continue
		}
		if !found || priority < bestPriority {
			found = true
			bestPriority = priority
			best = FlairMarkdown(tag.Key, tag.Flair)
		}
	}
	return best
}

// AllFlair renders every active flaired tag, in tag order.
func (s *Service) AllFlair(u *store.User) string {
	now := time.Now().UTC()
	out := ""
	for i := range u.Tags {
		tag := &u.Tags[i]
		if tag.Flair == "" || tag.Expired(now) {
			continue
		}
		out += FlairMarkdown(tag.Key, tag.Flair)
	}
	return out
}
