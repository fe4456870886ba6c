package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fedimod/vigil/moderr"
	"github.com/fedimod/vigil/store"
)

// ScanCycle runs one full poll: reports first, then posts, then comments.
// A failing source is logged and the remaining sources still run.
func (eng *Engine) ScanCycle(ctx context.Context) {
	for _, pass := range []struct {
		name string
		scan func(context.Context) error
	}{
		{"reports", eng.ScanReports},
		{"posts", eng.ScanPosts},
		{"comments", eng.ScanComments},
	} {
		if err := pass.scan(ctx); err != nil {
			eng.Logger.Error("scan pass failed", "source", pass.name, "err", err)
		}
	}
}

// ScanReports walks the report queue and evaluates each reported entity
// against report, content and username filters.
func (eng *Engine) ScanReports(ctx context.Context) error {
	defer eng.recoverPass("reports")
	defer observeScan("reports")()

	filters, err := eng.Store.FiltersByTargets(store.TargetReport, store.TargetContent, store.TargetUsername)
	if err != nil {
		return err
	}
	compiled := eng.compileFilters(filters)

	checked := make(map[int64]bool)
	for page := 1; page <= eng.PageCap; page++ {
		reports, err := eng.Client.ListReports(ctx, page, eng.ReportPageSize)
		if err != nil {
			return moderr.Transient("listing reports", err)
		}
		if len(reports) == 0 {
			break
		}
		var ids []int64
		for _, r := range reports {
			if !checked[r.ID] {
				ids = append(ids, r.ID)
			}
		}
		caughtUp, err := eng.Store.AnySeen(ids, store.EntityReport)
		if err != nil {
			return moderr.Transient("checking seen reports", err)
		}
		for _, r := range reports {
			if checked[r.ID] {
				continue
			}
			checked[r.ID] = true
			it := NewReportItem(r)
			if it == nil {
				eng.Logger.Warn("report carries neither post nor comment", "report", r.ID)
				continue
			}
			eng.processItem(ctx, it, compiled)
		}
		if caughtUp || len(reports) < eng.ReportPageSize {
			break
		}
	}
	return nil
}

// ScanPosts evaluates new posts against content, url and username filters.
func (eng *Engine) ScanPosts(ctx context.Context) error {
	defer eng.recoverPass("posts")
	defer observeScan("posts")()

	filters, err := eng.Store.FiltersByTargets(store.TargetContent, store.TargetURL, store.TargetUsername)
	if err != nil {
		return err
	}
	compiled := eng.compileFilters(filters)

	checked := make(map[int64]bool)
	for page := 1; page <= eng.PageCap; page++ {
		posts, err := eng.Client.ListPosts(ctx, 0, page, eng.PostPageSize)
		if err != nil {
			return moderr.Transient("listing posts", err)
		}
		if len(posts) == 0 {
			break
		}
		var ids []int64
		for _, p := range posts {
			if !checked[p.ID] {
				ids = append(ids, p.ID)
			}
		}
		caughtUp, err := eng.Store.AnySeen(ids, store.EntityPost)
		if err != nil {
			return moderr.Transient("checking seen posts", err)
		}
		for _, p := range posts {
			if checked[p.ID] {
				continue
			}
			checked[p.ID] = true
			eng.processItem(ctx, NewPostItem(p), compiled)
		}
		if caughtUp || len(posts) < eng.PostPageSize {
			break
		}
	}
	return nil
}

// ScanComments evaluates new comments against content and username filters.
func (eng *Engine) ScanComments(ctx context.Context) error {
	defer eng.recoverPass("comments")
	defer observeScan("comments")()

	filters, err := eng.Store.FiltersByTargets(store.TargetContent, store.TargetUsername)
	if err != nil {
		return err
	}
	compiled := eng.compileFilters(filters)

	checked := make(map[int64]bool)
	for page := 1; page <= eng.PageCap; page++ {
		comments, err := eng.Client.ListComments(ctx, page, eng.CommentPageSize)
		if err != nil {
			return moderr.Transient("listing comments", err)
		}
		if len(comments) == 0 {
			break
		}
		var ids []int64
		for _, c := range comments {
			if !checked[c.ID] {
				ids = append(ids, c.ID)
			}
		}
		caughtUp, err := eng.Store.AnySeen(ids, store.EntityComment)
		if err != nil {
			return moderr.Transient("checking seen comments", err)
		}
		for _, c := range comments {
			if checked[c.ID] {
				continue
			}
			checked[c.ID] = true
			eng.processItem(ctx, NewCommentItem(c), compiled)
		}
		if caughtUp || len(comments) < eng.CommentPageSize {
			break
		}
	}
	return nil
}

// processItem runs the dedup check, evaluation, and unconditional seen
// marking for one item. Item-level failures are logged and swallowed so one
// bad item never stalls the rest of the page.
func (eng *Engine) processItem(ctx context.Context, it *Item, filters []compiledFilter) {
	seenID, seenType := it.SeenKey()
	seen, err := eng.Store.HasSeen(seenID, seenType)
	if err != nil {
		eng.Logger.Error("seen lookup failed", "entity", seenID, "type", seenType, "err", err)
		return
	}
	if seen {
		return
	}
	itemsScanned.WithLabelValues(string(seenType)).Inc()

	skip := false
	if !it.FromReport {
		bypass, err := eng.Users.BypassesFilters(ctx, it.Author.ActorURL)
		if err != nil {
			eng.Logger.Error("bypass lookup failed", "actor", it.Author.ActorURL, "err", err)
		} else if bypass {
			eng.Logger.Debug("bypassing checks for known user", "actor", it.Author.ActorURL)
			skip = true
		}
	}
	if !skip {
		if err := eng.evaluate(ctx, it, filters); err != nil {
			eng.Logger.Error("evaluation failed", "entity", it.EntityID, "type", it.EntityType, "err", err)
			// fall through: the item still gets a seen marker so a
			// poisoned item cannot wedge the scanner forever
		}
	}
	if err := eng.Store.MarkSeen(seenID, seenType, it.ActivityURL); err != nil {
		eng.Logger.Error("marking seen failed", "entity", seenID, "type", seenType, "err", err)
	}
}

func (eng *Engine) recoverPass(source string) {
	if r := recover(); r != nil {
		eng.Logger.Error("scan pass panicked", "source", source, "panic", fmt.Sprint(r))
	}
}

func observeScan(source string) func() {
	start := time.Now()
	return func() {
		scanDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}
}
