// Package engine is the moderation core: it scans reports, posts and
// comments against the filter catalog in severity order and escalates
// matches into enforcement actions (report, remove, ban). Every processed
// item gets a seen marker; every applied decision gets exactly one
// enforcement match record.
package engine

import (
	"log/slog"
	"regexp"

	"github.com/fedimod/vigil/notify"
	"github.com/fedimod/vigil/platform"
	"github.com/fedimod/vigil/store"
	"github.com/fedimod/vigil/users"
)

type Engine struct {
	Store    *store.Store
	Client   platform.Client
	Notifier notify.Notifier
	Users    *users.Service
	Logger   *slog.Logger

	// BotName shows up in removal reasons and appeal instructions.
	BotName string

	// PageCap bounds how many newest-first pages one cycle walks per source.
	PageCap         int
	PostPageSize    int
	CommentPageSize int
	ReportPageSize  int
}

func New(st *store.Store, client platform.Client, notifier notify.Notifier, usvc *users.Service, logger *slog.Logger) *Engine {
	return &Engine{
		Store:           st,
		Client:          client,
		Notifier:        notifier,
		Users:           usvc,
		Logger:          logger.With("system", "engine"),
		BotName:         "vigil",
		PageCap:         10,
		PostPageSize:    10,
		CommentPageSize: 50,
		ReportPageSize:  20,
	}
}

// compiledFilter pairs a catalog row with its compiled case-insensitive
// regex. Filters that no longer compile are dropped from the pass with a
// warning rather than wedging the whole cycle.
type compiledFilter struct {
	store.Filter
	re *regexp.Regexp
}

func (eng *Engine) compileFilters(filters []store.Filter) []compiledFilter {
	out := make([]compiledFilter, 0, len(filters))
	for _, f := range filters {
		re, err := regexp.Compile("(?i)" + f.Pattern)
		if err != nil {
			eng.Logger.Warn("skipping uncompilable filter", "id", f.ID, "pattern", f.Pattern, "err", err)
			continue
		}
		out = append(out, compiledFilter{Filter: f, re: re})
	}
	return out
}

// guards carry the per-entity state for one evaluation pass: at most one
// removal and at most one ban per entity, and report-only filters stop
// firing once the entity has been reported.
type guards struct {
	removed  bool
	reported bool
	banned   bool
}
