package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fedimod/vigil/store"
)

// escalate turns a matched filter into a concrete enforcement action. The
// enforcement match record is persisted before the platform call so a
// platform outage never loses the decision; platform failures are logged and
// the pass continues. Guards ensure at most one removal and one ban per
// entity per pass.
func (eng *Engine) escalate(ctx context.Context, it *Item, cf *compiledFilter, snippet string, g *guards) error {
	m := &store.FilterMatch{
		EntityID:   it.EntityID,
		EntityType: it.EntityType,
		ReportID:   it.ReportID,
		URL:        it.ActivityURL,
		Content:    snippet,
		ActorURL:   it.Author.ActorURL,
		FilterID:   cf.ID,
	}
	created, err := eng.Store.RecordMatch(m)
	if err != nil {
		return fmt.Errorf("recording enforcement match: %w", err)
	}
	if created {
		matchesTotal.WithLabelValues(string(cf.Action)).Inc()
	}

	if cf.Action == store.TierReportOnly {
		g.reported = true
		reason := fmt.Sprintf("%s automatic %s report: %s", eng.BotName, it.EntityType, cf.Reason)
		var rerr error
		if it.EntityType == store.EntityComment {
			rerr = eng.Client.ReportComment(ctx, it.EntityID, reason)
		} else {
			rerr = eng.Client.ReportPost(ctx, it.EntityID, reason)
		}
		if rerr != nil {
			actionErrors.WithLabelValues("report").Inc()
			eng.Logger.Error("platform report failed", "entity", it.EntityID, "err", rerr)
			return nil
		}
		actionsTotal.WithLabelValues("report").Inc()
		return nil
	}

	// removal tier
	g.removed = true
	reason := fmt.Sprintf(
		"%s automatic %s removal: %s\n\nAppeal by sending a PM with your reasoning and including the text: `%s request appeal %d`",
		eng.BotName, it.EntityType, cf.Reason, eng.BotName, m.ID,
	)
	var rerr error
	if it.EntityType == store.EntityComment {
		rerr = eng.Client.RemoveComment(ctx, it.EntityID, true, reason)
	} else {
		rerr = eng.Client.RemovePost(ctx, it.EntityID, true, reason)
	}
	if rerr != nil {
		actionErrors.WithLabelValues("remove").Inc()
		eng.Logger.Error("platform removal failed", "entity", it.EntityID, "err", rerr)
	} else {
		actionsTotal.WithLabelValues("remove").Inc()
	}

	if cf.Action.Bans() && !g.banned {
		g.banned = true
		banReason := fmt.Sprintf(
			"%s automatic ban from %s: %s\n\nAppeal by sending a PM with your reasoning and including the text: `%s request appeal %d`",
			eng.BotName, it.EntityType, cf.Reason, eng.BotName, m.ID,
		)
		expires := cf.Action.BanExpiry(time.Now().UTC())
		if berr := eng.Client.BanUser(ctx, it.Author.ID, true, expires, cf.Action.PurgesData(), banReason); berr != nil {
			actionErrors.WithLabelValues("ban").Inc()
			eng.Logger.Error("platform ban failed", "actor", it.Author.ActorURL, "err", berr)
		} else {
			actionsTotal.WithLabelValues("ban").Inc()
			eng.Notifier.Send(ctx, fmt.Sprintf("Banned %s for %s", it.Author.ActorURL, cf.Action))
		}
	}
	return nil
}
