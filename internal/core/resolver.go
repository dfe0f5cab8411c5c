package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Resolve turns scan parameters into an absolute redirect URL. On success the
// scan is recorded before returning; recording failures never change the
// outcome.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (*Outcome, error) {
	l, err := s.lookup(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc().UTC()
	ok, err := s.IsValid(ctx, l, now)
	if err != nil {
		return nil, internalErr("validate link", err)
	}
	if !ok {
		return nil, &LinkStateError{Status: l.Status}
	}

	dest := s.destination(ctx, l)
	s.RecordScan(ctx, l, ScanContext{
		Principal:   req.Principal,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		At:          now,
		Destination: dest,
	})
	return &Outcome{URL: dest, Link: l}, nil
}

// lookup applies the reference order: token, then target pair.
func (s *Service) lookup(ctx context.Context, req ResolveRequest) (*LinkRecord, error) {
	token := strings.TrimSpace(req.Token)
	if token != "" {
		l, err := s.store.GetByToken(ctx, token)
		if err == nil {
			return l, nil
		}
		if !IsNotFound(err) {
			return nil, internalErr("lookup token", err)
		}
		// Older payloads carried the link id in the token slot.
		l, err = s.store.GetByID(ctx, token)
		if err == nil {
			return l, nil
		}
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: invalid or unknown qr token", ErrNotFound)
		}
		return nil, internalErr("lookup id", err)
	}

	dt, dn := strings.TrimSpace(req.TargetType), strings.TrimSpace(req.TargetName)
	if dt != "" && dn != "" {
		l, err := s.store.LatestForTarget(ctx, dt, dn)
		if err == nil {
			return l, nil
		}
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: no qr link for %s %s", ErrNotFound, dt, dn)
		}
		return nil, internalErr("lookup target", err)
	}
	return nil, ErrMissingReference
}

// destination picks the redirect target: hook override, stored URLs, the
// record's form route, then the application root.
func (s *Service) destination(ctx context.Context, l *LinkRecord) string {
	if s.hook != nil {
		if u := s.callHook(ctx, l); u != "" {
			return Absolutize(s.baseURL, u)
		}
	}
	candidates := []string{l.RedirectURL}
	// A token payload points back at /qr, so only direct payloads qualify.
	if l.AddressMode == AddressDirect {
		candidates = append(candidates, l.QRURL)
	}
	candidates = append(candidates, l.TargetURL)
	for _, u := range candidates {
		if u = strings.TrimSpace(u); u != "" {
			return Absolutize(s.baseURL, u)
		}
	}
	if l.TargetType != "" && l.TargetName != "" {
		return Absolutize(s.baseURL, FormRoute(l.TargetType, l.TargetName))
	}
	return Absolutize(s.baseURL, "")
}

type hookResult struct {
	url string
	err error
}

// callHook runs the override hook with a deadline. Errors, panics and
// timeouts all mean "no override".
func (s *Service) callHook(ctx context.Context, l *LinkRecord) string {
	ctx, cancel := context.WithTimeout(ctx, s.hookTimeout)
	defer cancel()

	snapshot := *l
	ch := make(chan hookResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- hookResult{err: fmt.Errorf("hook panic: %v", r)}
			}
		}()
		u, err := s.hook.Destination(ctx, &snapshot)
		ch <- hookResult{url: u, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			s.log.WithError(r.err).WithField("link_id", l.ID).Warn("redirect hook failed")
			return ""
		}
		return strings.TrimSpace(r.url)
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("redirect hook timed out after %s", s.hookTimeout)
		}
		s.log.WithError(err).WithField("link_id", l.ID).Warn("redirect hook failed")
		return ""
	}
}
