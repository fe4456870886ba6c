package engine

import (
	"context"
	"fmt"

	"github.com/fedimod/vigil/store"
)

// evaluate runs one item through the filter list (already sorted
// most-severe-first) and escalates the matches. The pass ends early once a
// removal fired; report-only filters stop firing once the entity has been
// reported but never suppress removal-tier filters.
func (eng *Engine) evaluate(ctx context.Context, it *Item, filters []compiledFilter) error {
	g := &guards{}
	for i := range filters {
		cf := &filters[i]
		if g.removed {
			break
		}
		if g.reported && cf.Action == store.TierReportOnly {
			continue
		}
		// items arriving via the report queue are already flagged for human
		// review; re-reporting them would be noise
		if it.FromReport && cf.Action == store.TierReportOnly {
			continue
		}
		if !scopeApplies(cf.Scope, it.Community) {
			continue
		}
		snippet, ok := cf.match(it)
		if !ok {
			continue
		}
		eng.Logger.Info("filter matched",
			"filter", cf.ID,
			"action", cf.Action,
			"entity", it.EntityID,
			"entity_type", it.EntityType,
			"actor", it.Author.ActorURL,
		)
		eng.Notifier.Send(ctx, fmt.Sprintf(
			"Matched filter %d (%s) from %s on %s %d: %s",
			cf.ID, cf.Action, it.Author.ActorURL, it.EntityType, it.EntityID, truncate(snippet, 80),
		))
		if err := eng.escalate(ctx, it, cf, snippet, g); err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
