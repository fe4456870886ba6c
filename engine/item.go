package engine

import (
	"github.com/fedimod/vigil/platform"
	"github.com/fedimod/vigil/store"
)

// Item is one content unit under evaluation, normalized from a post, a
// comment, or the target of a report. EntityID/EntityType always name the
// actionable content; ReportID is set when the item arrived via the report
// queue, in which case the seen marker is keyed on the report itself.
type Item struct {
	EntityID    int64
	EntityType  store.EntityType
	ReportID    *int64
	Title       string
	Body        string
	URL         string
	ActivityURL string
	Author      platform.Person
	Community   platform.Community
	FromReport  bool
}

// SeenKey is the identity the dedup ledger tracks for this item.
func (it *Item) SeenKey() (int64, store.EntityType) {
	if it.FromReport && it.ReportID != nil {
		return *it.ReportID, store.EntityReport
	}
	return it.EntityID, it.EntityType
}

func NewPostItem(p platform.Post) *Item {
	return &Item{
		EntityID:    p.ID,
		EntityType:  store.EntityPost,
		Title:       p.Title,
		Body:        p.Body,
		URL:         p.URL,
		ActivityURL: p.ActivityURL,
		Author:      p.Author,
		Community:   p.Community,
	}
}

func NewCommentItem(c platform.Comment) *Item {
	return &Item{
		EntityID:    c.ID,
		EntityType:  store.EntityComment,
		Body:        c.Body,
		ActivityURL: c.ActivityURL,
		Author:      c.Author,
		Community:   c.Community,
	}
}

// NewReportItem wraps the reported post or comment. Returns nil for a
// malformed report carrying neither.
func NewReportItem(r platform.Report) *Item {
	var it *Item
	switch {
	case r.Comment != nil:
		it = NewCommentItem(*r.Comment)
	case r.Post != nil:
		it = NewPostItem(*r.Post)
	default:
		return nil
	}
	id := r.ID
	it.ReportID = &id
	it.FromReport = true
	return it
}

// scopeApplies implements filter jurisdiction: global filters always apply,
// local filters only to same-instance communities, and a named scope only to
// the matching local community.
func scopeApplies(scope string, community platform.Community) bool {
	switch scope {
	case store.ScopeGlobal, "":
		return true
	case store.ScopeLocal:
		return community.Local
	default:
		return community.Local && community.Name == scope
	}
}

// match runs the filter's regex against the field its target selects.
// Report and content filters try the title before the body.
func (cf *compiledFilter) match(it *Item) (string, bool) {
	switch cf.Target {
	case store.TargetReport, store.TargetContent:
		if it.Title != "" && cf.re.MatchString(it.Title) {
			return it.Title, true
		}
		if it.Body != "" && cf.re.MatchString(it.Body) {
			return it.Body, true
		}
	case store.TargetURL:
		if it.URL != "" && cf.re.MatchString(it.URL) {
			return it.URL, true
		}
	case store.TargetUsername:
		if it.Author.Name != "" && cf.re.MatchString(it.Author.Name) {
			return it.Author.Name, true
		}
	}
	return "", false
}
