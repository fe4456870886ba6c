// Package appeal implements the reversal workflow for enforcement matches.
// Each requester gets one appeal per match; restoring any appeal restores
// the content once and resolves every sibling appeal with it.
package appeal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fedimod/vigil/moderr"
	"github.com/fedimod/vigil/notify"
	"github.com/fedimod/vigil/platform"
	"github.com/fedimod/vigil/store"
	"github.com/fedimod/vigil/users"
)

type Service struct {
	Store    *store.Store
	Client   platform.Client
	Users    *users.Service
	Notifier notify.Notifier
	Logger   *slog.Logger
	BotName  string
}

func NewService(st *store.Store, client platform.Client, usvc *users.Service, notifier notify.Notifier, logger *slog.Logger) *Service {
	return &Service{
		Store:    st,
		Client:   client,
		Users:    usvc,
		Notifier: notifier,
		Logger:   logger.With("system", "appeal"),
		BotName:  "vigil",
	}
}

// Request lodges an appeal against one enforcement match. The returned string
// is the reply for the requester. Duplicate requests return the current
// status instead of creating anything, and a match that was already restored
// for someone else just says so.
func (s *Service) Request(ctx context.Context, requester platform.Person, messageID int64, matchID uint, message string) (string, error) {
	m, err := s.Store.GetMatch(matchID)
	if err != nil {
		return "", fmt.Errorf("looking up match %d: %w", matchID, err)
	}
	if m == nil {
		return "", moderr.UserFacing("there is no moderation action with ID %d", matchID)
	}

	existing, err := s.Store.FindAppealByRequester(requester.ActorURL, matchID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return fmt.Sprintf("You have already appealed this action. Its current status is: %s", existing.Status), nil
	}

	siblings, err := s.Store.AppealsForMatch(matchID)
	if err != nil {
		return "", err
	}
	for _, sib := range siblings {
		if sib.Status == store.AppealRestored {
			return "This action has already been reversed following an earlier appeal. No further appeal is needed.", nil
		}
	}

	a := &store.Appeal{
		MessageID:    messageID,
		RequesterID:  requester.ID,
		RequesterURL: requester.ActorURL,
		Message:      message,
		MatchID:      matchID,
		FilterID:     m.FilterID,
	}
	if err := s.Store.CreateAppeal(a); err != nil {
		return "", err
	}
	s.Logger.Info("appeal created", "appeal", a.ID, "match", matchID, "requester", requester.ActorURL)

	rule := "unknown rule"
	if m.Filter != nil {
		rule = m.Filter.Reason
	}
	s.notifyModerators(ctx, fmt.Sprintf(
		"New appeal %d from %s against match %d (rule: %s)\n\nOffending content: %s\n\nAppeal message: %s\n\nResolve with `%s appeal restore %d` or `%s appeal reject %d`",
		a.ID, requester.ActorURL, matchID, rule, m.Content, message, s.BotName, a.ID, s.BotName, a.ID,
	))
	s.Notifier.Send(ctx, fmt.Sprintf("New appeal %d from %s against match %d", a.ID, requester.ActorURL, matchID))

	return fmt.Sprintf("Your appeal has been lodged with ID %d. The moderators have been notified and will review it.", a.ID), nil
}

// Restore grants an appeal: the content is un-removed once, the appeal and
// all its pending siblings flip to restored, and every requester is told.
// Restoring an already-restored appeal is a no-op that names the original
// resolver; restoring a rejected appeal proceeds with a warning in the log.
func (s *Service) Restore(ctx context.Context, resolverURL string, appealID uint) (string, error) {
	if err := s.requireModerator(resolverURL); err != nil {
		return "", err
	}
	a, err := s.Store.GetAppeal(appealID)
	if err != nil {
		return "", err
	}
	if a == nil {
		return "", moderr.UserFacing("there is no appeal with ID %d", appealID)
	}
	if a.Status == store.AppealRestored {
		return fmt.Sprintf("Appeal %d was already restored by %s.", a.ID, a.ResolverURL), nil
	}
	if a.Status == store.AppealRejected {
		s.Logger.Warn("restoring previously rejected appeal", "appeal", a.ID, "rejected_by", a.ResolverURL)
	}

	if err := s.unremove(ctx, a.Match, resolverURL); err != nil {
		return "", err
	}

	siblings, err := s.Store.AppealsForMatch(a.MatchID)
	if err != nil {
		return "", err
	}
	for _, sib := range siblings {
		if sib.ID != a.ID && sib.Status != store.AppealPending {
			continue
		}
		if err := s.Store.SetAppealStatus(sib.ID, store.AppealRestored, resolverURL, ""); err != nil {
			return "", err
		}
		if err := s.Client.SendPrivateMessage(ctx, sib.RequesterID,
			fmt.Sprintf("Your appeal %d has been granted and the content restored.", sib.ID)); err != nil {
			s.Logger.Error("appeal grant PM failed", "appeal", sib.ID, "err", err)
		}
	}

	s.Logger.Info("appeal restored", "appeal", a.ID, "match", a.MatchID, "resolver", resolverURL)
	s.Notifier.Send(ctx, fmt.Sprintf("Appeal %d restored by %s", a.ID, resolverURL))
	return fmt.Sprintf("Appeal %d granted. The content has been restored.", a.ID), nil
}

// Reject closes a pending appeal. An optional reply is stored and relayed to
// the requester. Rejecting a resolved appeal changes nothing and reports who
// resolved it.
func (s *Service) Reject(ctx context.Context, resolverURL string, appealID uint, reply string) (string, error) {
	if err := s.requireModerator(resolverURL); err != nil {
		return "", err
	}
	a, err := s.Store.GetAppeal(appealID)
	if err != nil {
		return "", err
	}
	if a == nil {
		return "", moderr.UserFacing("there is no appeal with ID %d", appealID)
	}
	if a.Status != store.AppealPending {
		return fmt.Sprintf("Appeal %d was already resolved (%s) by %s.", a.ID, a.Status, a.ResolverURL), nil
	}
	if err := s.Store.SetAppealStatus(a.ID, store.AppealRejected, resolverURL, reply); err != nil {
		return "", err
	}

	msg := fmt.Sprintf("Your appeal %d has been rejected.", a.ID)
	if reply != "" {
		msg += "\n\nModerator note: " + reply
	}
	if err := s.Client.SendPrivateMessage(ctx, a.RequesterID, msg); err != nil {
		s.Logger.Error("appeal rejection PM failed", "appeal", a.ID, "err", err)
	}

	s.Logger.Info("appeal rejected", "appeal", a.ID, "match", a.MatchID, "resolver", resolverURL)
	return fmt.Sprintf("Appeal %d rejected.", a.ID), nil
}

func (s *Service) requireModerator(actorURL string) error {
	u, err := s.Store.GetUser(actorURL)
	if err != nil {
		return err
	}
	if u == nil || !u.IsModerator() {
		return moderr.UserFacing("sorry, you do not have enough rights to resolve appeals")
	}
	return nil
}

// unremove reverses the platform-side removal exactly once per match. Report
// tier matches never removed anything, so there is nothing to reverse.
func (s *Service) unremove(ctx context.Context, m *store.FilterMatch, resolverURL string) error {
	if m == nil {
		return moderr.Domain("appeal has no enforcement match attached")
	}
	if m.Filter != nil && m.Filter.Action == store.TierReportOnly {
		return nil
	}
	reason := fmt.Sprintf("%s appeal granted by %s", s.BotName, resolverURL)
	var err error
	switch m.EntityType {
	case store.EntityComment:
		err = s.Client.RemoveComment(ctx, m.EntityID, false, reason)
	default:
		err = s.Client.RemovePost(ctx, m.EntityID, false, reason)
	}
	if err != nil {
		return moderr.Transient("restoring content", err)
	}
	return nil
}

// notifyModerators PMs the current site admin set. Delivery failures are
// logged per recipient and never fail the appeal itself.
func (s *Service) notifyModerators(ctx context.Context, msg string) {
	admins, err := s.Client.SiteAdmins(ctx)
	if err != nil {
		s.Logger.Error("fetching site admins for appeal notification", "err", err)
		return
	}
	for _, admin := range admins {
		if err := s.Client.SendPrivateMessage(ctx, admin.ID, msg); err != nil {
			s.Logger.Error("appeal notification PM failed", "recipient", admin.ActorURL, "err", err)
		}
	}
}
