package users

import (
	"context"
	"strings"
	"time"

	"github.com/fedimod/vigil/moderr"
	"github.com/fedimod/vigil/store"
)

// Vouch lets a trusted user mark another account as a valuable member. One
// vouch per target; non-moderators are capped at Config.VouchesPerUser.
func (s *Service) Vouch(ctx context.Context, voucherURL, targetName string) (*store.User, error) {
	voucher, err := s.Store.GetUser(voucherURL)
	if err != nil {
		return nil, err
	}
	if voucher == nil || !s.IsTrusted(voucher) {
		return nil, moderr.UserFacing("sorry, you do not have enough rights to vouch for users")
	}
	person, err := s.Client.GetPersonByName(ctx, targetName)
	if err != nil {
		return nil, moderr.UserFacing("user @%s is not known to this instance; please check the spelling and try again", targetName)
	}
	if strings.EqualFold(person.ActorURL, voucher.ActorURL) {
		return nil, moderr.UserFacing("you cannot vouch for yourself")
	}
	if !voucher.IsModerator() {
		count, err := s.Store.CountVouchesBy(voucher.ActorURL)
		if err != nil {
			return nil, err
		}
		if count >= int64(s.Config.VouchesPerUser) {
			return nil, moderr.UserFacing("you have reached the maximum of %d vouches", s.Config.VouchesPerUser)
		}
	}
	target, err := s.Store.EnsureUser(person.ActorURL)
	if err != nil {
		return nil, err
	}
	existing, err := s.Store.GetTag(target.ID, TagVouched)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if strings.EqualFold(existing.Value, voucher.ActorURL) {
			return nil, moderr.UserFacing("you have already vouched for %s", target.ActorURL)
		}
		return nil, moderr.UserFacing("someone else has already vouched for %s", target.ActorURL)
	}
	if err := s.Store.SetTag(target.ID, TagVouched, strings.ToLower(voucher.ActorURL), "", nil); err != nil {
		return nil, err
	}
	s.Logger.Info("vouch recorded", "voucher", voucher.ActorURL, "target", target.ActorURL)
	return target, nil
}

// WithdrawVouch removes a vouch the requester previously placed.
func (s *Service) WithdrawVouch(ctx context.Context, voucherURL, targetName string) (*store.User, error) {
	voucher, err := s.Store.GetUser(voucherURL)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, moderr.UserFacing("you have not vouched for anyone")
	}
	person, err := s.Client.GetPersonByName(ctx, targetName)
	if err != nil {
		return nil, moderr.UserFacing("user @%s is not known to this instance", targetName)
	}
	target, err := s.Store.GetUser(person.ActorURL)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, moderr.UserFacing("you attempted to withdraw your vouch for %s but no vouch exists", targetName)
	}
	existing, err := s.Store.GetTag(target.ID, TagVouched)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, moderr.UserFacing("you attempted to withdraw your vouch for %s but no vouch exists", targetName)
	}
	if !strings.EqualFold(existing.Value, voucher.ActorURL) {
		return nil, moderr.UserFacing("someone else vouched for %s, not you", target.ActorURL)
	}
	if err := s.Store.RemoveTag(target.ID, TagVouched); err != nil {
		return nil, err
	}
	return target, nil
}

// ApplyDonationTier records a donation tier tag with its flair and expiry.
// Called by the ledger sync when a donation lands.
func (s *Service) ApplyDonationTier(ctx context.Context, actorURL, tierKey, tier, flair string, expireDays int) error {
	u, err := s.Store.EnsureUser(actorURL)
	if err != nil {
		return err
	}
	var expires *time.Time
	if expireDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, expireDays)
		expires = &t
	}
	return s.Store.SetTag(u.ID, tierKey, strings.ToLower(tier), flair, expires)
}
