package core

import (
	"context"
	"fmt"
	"time"
)

// IsValid decides whether l may be resolved at now. A link whose expiry has
// passed is moved to Expired in the store on first evaluation; later calls
// see the terminal status and write nothing.
func (s *Service) IsValid(ctx context.Context, l *LinkRecord, now time.Time) (bool, error) {
	if l.Status.Terminal() {
		return false, nil
	}
	if l.ExpiresAt != nil && now.After(*l.ExpiresAt) {
		if _, err := s.store.SetStatus(ctx, l.ID, StatusExpired, StatusActive); err != nil {
			return false, fmt.Errorf("persist expiry: %w", err)
		}
		l.Status = StatusExpired
		return false, nil
	}
	return true, nil
}

// Revoke moves a link to Revoked. It fails with ErrAlreadyRevoked when the
// link is revoked already, including when a concurrent revoke won the race.
func (s *Service) Revoke(ctx context.Context, id string) (*LinkRecord, error) {
	l, err := s.Link(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status == StatusRevoked {
		return nil, ErrAlreadyRevoked
	}
	changed, err := s.store.SetStatus(ctx, id, StatusRevoked, StatusActive, StatusExpired, StatusInactive)
	if err != nil {
		return nil, internalErr("revoke link", err)
	}
	if !changed {
		return nil, ErrAlreadyRevoked
	}
	l.Status = StatusRevoked
	s.log.WithField("link_id", id).Info("revoked qr link")
	return l, nil
}

// SweepExpired marks every Active link whose expiry has passed as Expired and
// returns how many rows it changed. It only ever writes Expired over Active,
// so it is safe to run alongside scan-time expiry.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.nowFunc().UTC()
	due, err := s.store.QueryByStatusAndExpiry(ctx, StatusActive, now)
	if err != nil {
		return 0, fmt.Errorf("query expired links: %w", err)
	}
	n := 0
	for _, l := range due {
		changed, err := s.store.SetStatus(ctx, l.ID, StatusExpired, StatusActive)
		if err != nil {
			s.log.WithError(err).WithField("link_id", l.ID).Error("expire link failed")
			continue
		}
		if changed {
			n++
		}
	}
	if n > 0 {
		s.log.WithField("count", n).Info("marked qr links as expired")
	}
	return n, nil
}
